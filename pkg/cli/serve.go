package cli

import (
	"context"
	"log/slog"

	"github.com/marioweid/evergreeen-multi-agents/pkg/service/api"
	"github.com/marioweid/evergreeen-multi-agents/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func seedFlag(dst *string) cli.Flag {
	return &cli.StringFlag{
		Name:        "seed",
		Usage:       "Roadmap export file or URL to ingest before serving",
		Sources:     cli.EnvVars("EVERGREEN_SEED"),
		Destination: dst,
	}
}

func serveCommand() *cli.Command {
	var (
		cfg  config
		addr string
		seed string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "Listen address",
			Value:       ":8080",
			Sources:     cli.EnvVars("EVERGREEN_ADDR"),
			Destination: &addr,
		},
		seedFlag(&seed),
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)
	flags = append(flags, reportFlags(&cfg)...)

	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the HTTP API",
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

			deps := api.Deps{
				Roadmap:      a.roadmap,
				Customers:    a.customers,
				Retrieval:    a.retrieval,
				Reports:      a.reports,
				ReportWindow: cfg.reportWindowLength(c, a),
			}
			if a.router != nil {
				deps.Router = a.router
			}
			return api.New(deps).Run(ctx, addr)
		},
	}
}
