package cli

import (
	"context"

	"github.com/marioweid/evergreeen-multi-agents/pkg/model"
	"github.com/urfave/cli/v3"
)

func statsCommand() *cli.Command {
	var cfg config
	return &cli.Command{
		Name:  "stats",
		Usage: "Show roadmap counts by status",
		Flags: globalFlags(&cfg),
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setupLogger(ctx)
			a, err := cfg.build(ctx, needStore)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			if err := a.repo.Ping(ctx); err != nil {
				return err
			}
			stats, err := a.repo.RoadmapStats(ctx)
			if err != nil {
				return err
			}

			w := c.Root().Writer
			printf(w, "Roadmap items: %d\n", stats.Total)
			for _, s := range []model.RoadmapStatus{model.StatusPlanned, model.StatusRollingOut, model.StatusLaunched, model.StatusCancelled} {
				printf(w, "  %-15s %d\n", s.Label(), stats.ByStatus[s])
			}
			customers, err := a.customers.List(ctx)
			if err != nil {
				return err
			}
			printf(w, "Customers: %d\n", len(customers))
			return nil
		},
	}
}
