package cli

import (
	"context"
	"log/slog"
	"time"

	"github.com/marioweid/evergreeen-multi-agents/pkg/report"
	"github.com/marioweid/evergreeen-multi-agents/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

// reportWindowLength prefers an explicit flag over the config file.
func (cfg *config) reportWindowLength(c *cli.Command, a *app) time.Duration {
	if !c.IsSet("report-window") && a.file.Report.Window > 0 {
		return a.file.Report.Window
	}
	return cfg.reportWindow
}

func reportCommand() *cli.Command {
	var (
		cfg    config
		digest bool
	)

	flags := []cli.Flag{
		&cli.BoolFlag{
			Name:        "digest",
			Usage:       "Print the digest of all reports instead of each report",
			Destination: &digest,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)
	flags = append(flags, reportFlags(&cfg)...)

	return &cli.Command{
		Name:      "report",
		Usage:     "Generate roadmap impact reports for customers",
		ArgsUsage: "[customer...]",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setupLogger(ctx)
			a, err := cfg.build(ctx, needEmbedding)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			window := report.WindowEnding(time.Now(), cfg.reportWindowLength(c, a))
			batch, err := a.reports.Run(ctx, window, c.Args().Slice()...)
			if err != nil {
				return err
			}

			w := c.Root().Writer
			if digest {
				printf(w, "%s", report.RenderBatch(batch))
			} else {
				for i, r := range batch.Reports {
					if i > 0 {
						printf(w, "\n---\n\n")
					}
					printf(w, "%s", r.Body)
					if r.Key != "" {
						logging.From(ctx).Info("report stored", slog.String("customer", r.Customer.Name), slog.String("key", r.Key))
					}
				}
			}
			return batch.Err()
		},
	}
}
