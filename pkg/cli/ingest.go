package cli

import (
	"context"
	"os"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	roadmapuc "github.com/marioweid/evergreeen-multi-agents/pkg/usecase/roadmap"
	"github.com/urfave/cli/v3"
)

func ingestCommand() *cli.Command {
	var cfg config

	flags := append(globalFlags(&cfg), llmFlags(&cfg)...)

	return &cli.Command{
		Name:      "ingest",
		Usage:     "Load the Microsoft 365 roadmap export into the store",
		ArgsUsage: "[file or URL]",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setupLogger(ctx)
			a, err := cfg.build(ctx, needEmbedding)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			result, err := ingest(ctx, a.roadmap, c.Args().First())
			if err != nil {
				return err
			}
			printf(c.Root().Writer, "created %d, updated %d, unchanged %d, failed %d\n",
				result.Created, result.Updated, result.Unchanged, result.Failed)
			if result.Failed > 0 {
				return goerr.New("some roadmap items failed to ingest", goerr.V("failed", result.Failed))
			}
			return nil
		},
	}
}

// ingest loads source, a file path or http(s) URL, defaulting to the public
// roadmap API.
func ingest(ctx context.Context, uc *roadmapuc.UseCase, source string) (*roadmapuc.IndexResult, error) {
	if source == "" {
		source = roadmapuc.DefaultSourceURL
	}
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return uc.Fetch(ctx, source)
	}

	f, err := os.Open(source)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open roadmap export", goerr.V("path", source))
	}
	defer f.Close()
	return uc.Ingest(ctx, f)
}
