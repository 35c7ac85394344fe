package cli

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/marioweid/evergreeen-multi-agents/pkg/model"
	"github.com/marioweid/evergreeen-multi-agents/pkg/repository"
	"github.com/marioweid/evergreeen-multi-agents/pkg/retrieval"
	"github.com/urfave/cli/v3"
)

func queryCommand() *cli.Command {
	var (
		cfg       config
		search    bool
		limit     int64
		products  []string
		platforms []string
		statuses  []string
		verbose   bool
	)

	flags := []cli.Flag{
		&cli.BoolFlag{
			Name:        "search",
			Aliases:     []string{"s"},
			Usage:       "Only run a semantic search and print the ranked items",
			Destination: &search,
		},
		&cli.IntFlag{
			Name:        "limit",
			Aliases:     []string{"l"},
			Usage:       "Maximum number of search results",
			Value:       retrieval.DefaultLimit,
			Destination: &limit,
		},
		&cli.StringSliceFlag{
			Name:        "product",
			Usage:       "Restrict search results to a product (repeatable)",
			Destination: &products,
		},
		&cli.StringSliceFlag{
			Name:        "platform",
			Usage:       "Restrict search results to a platform (repeatable)",
			Destination: &platforms,
		},
		&cli.StringSliceFlag{
			Name:        "status",
			Usage:       "Restrict search results to a status (repeatable)",
			Destination: &statuses,
		},
		&cli.BoolFlag{
			Name:        "verbose",
			Aliases:     []string{"v"},
			Usage:       "Print the capability calls of the turn",
			Destination: &verbose,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)

	return &cli.Command{
		Name:      "query",
		Usage:     "Ask a question about the roadmap and its impact on customers",
		ArgsUsage: "<question>",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setupLogger(ctx)
			text := strings.Join(c.Args().Slice(), " ")
			if strings.TrimSpace(text) == "" {
				return goerr.New("question is required")
			}

			need := needLLM
			if search {
				need = needEmbedding
			}
			a, err := cfg.build(ctx, need)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			w := c.Root().Writer
			if search {
				filter := repository.Filter{Products: products, Platforms: platforms}
				for _, raw := range statuses {
					s, ok := model.ParseStatus(raw)
					if !ok {
						return goerr.Wrap(model.ErrInvalidArgument, "unknown status", goerr.V("status", raw))
					}
					filter.Statuses = append(filter.Statuses, s)
				}

				results, err := a.retrieval.Search(ctx, retrieval.Query{Text: text, Limit: int(limit), Filter: filter})
				if err != nil {
					return err
				}
				if len(results) == 0 {
					printf(w, "No matching roadmap items.\n")
				}
				for _, r := range results {
					printf(w, "%2d. [%.2f] %d %s (%s)\n", r.Rank, r.Score, r.Item.ID, r.Item.Title, r.Item.Status.Label())
				}
				return nil
			}

			turn, err := a.router.Handle(ctx, text)
			if err != nil {
				return err
			}
			if verbose {
				for _, call := range turn.ToolCalls {
					args, _ := json.Marshal(call.Args)
					printf(w, "-> %s %s", call.Name, args)
					switch {
					case call.Denied:
						printf(w, " (denied: %s)", call.Error)
					case call.Error != "":
						printf(w, " (error: %s)", call.Error)
					}
					printf(w, "\n")
				}
			}
			printf(w, "%s\n", turn.Answer)
			return nil
		},
	}
}
