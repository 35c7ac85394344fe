package cli

import (
	"context"
	"log/slog"

	evmcp "github.com/marioweid/evergreeen-multi-agents/pkg/service/mcp"
	"github.com/marioweid/evergreeen-multi-agents/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func mcpCommand() *cli.Command {
	var (
		cfg  config
		seed string
	)

	flags := []cli.Flag{seedFlag(&seed)}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)
	flags = append(flags, reportFlags(&cfg)...)

	return &cli.Command{
		Name:  "mcp",
		Usage: "Serve MCP over stdio",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setupLogger(ctx)
			a, err := cfg.build(ctx, needRouter)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			if seed != "" {
				result, err := ingest(ctx, a.roadmap, seed)
				if err != nil {
					return err
				}
				logging.From(ctx).Info("roadmap seeded", slog.Int("items", result.Total()), slog.Int("failed", result.Failed))
			}

			deps := evmcp.Deps{
				Registry:     a.registry,
				Reports:      a.reports,
				ReportWindow: cfg.reportWindowLength(c, a),
				Version:      c.Root().Version,
			}
			if a.router != nil {
				deps.Router = a.router
			}
			return evmcp.New(deps).Run(ctx)
		},
	}
}
