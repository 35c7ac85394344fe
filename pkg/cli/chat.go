package cli

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/chzyer/readline"
	"github.com/m-mizutani/goerr/v2"
	"github.com/marioweid/evergreeen-multi-agents/pkg/adapter"
	"github.com/marioweid/evergreeen-multi-agents/pkg/usecase/chat"
	"github.com/marioweid/evergreeen-multi-agents/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func chatCommand() *cli.Command {
	var (
		cfg           config
		historyBucket string
		sessionID     string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "history-bucket",
			Usage:       "Cloud Storage bucket to keep conversations in",
			Sources:     cli.EnvVars("EVERGREEN_HISTORY_BUCKET"),
			Destination: &historyBucket,
		},
		&cli.StringFlag{
			Name:        "session",
			Usage:       "Resume the stored conversation with this ID (requires --history-bucket)",
			Destination: &sessionID,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)

	return &cli.Command{
		Name:  "chat",
		Usage: "Interactive conversation about the roadmap and customers",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setupLogger(ctx)

			a, err := cfg.build(ctx, needLLM)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			opts := []chat.Option{chat.WithSummarizer(a.llm)}
			var storage adapter.Storage
			if historyBucket != "" {
				if storage, err = adapter.NewStorage(ctx, historyBucket); err != nil {
					return goerr.Wrap(err, "failed to create storage")
				}
				opts = append(opts, chat.WithStorage(storage))
			}

			var session *chat.Session
			switch {
			case sessionID != "" && storage == nil:
				return goerr.New("--session requires --history-bucket")
			case sessionID != "":
				if session, err = chat.Resume(ctx, a.router, storage, sessionID, opts...); err != nil {
					return err
				}
			default:
				session = chat.New(a.router, opts...)
			}

			rl, err := readline.NewEx(&readline.Config{
				Prompt:          "> ",
				HistoryFile:     historyFile(),
				InterruptPrompt: "^C",
				EOFPrompt:       "exit",
				Stdout:          c.Root().Writer,
			})
			if err != nil {
				return goerr.Wrap(err, "failed to initialize readline")
			}
			defer rl.Close()

			w := rl.Stdout()
			printf(w, "Chat session %s started. Type 'exit' to quit, '/reset' to forget the conversation.\n", session.ID())

			for {
				line, err := rl.Readline()
				if errors.Is(err, readline.ErrInterrupt) {
					if line == "" {
						break
					}
					continue
				}
				if errors.Is(err, io.EOF) {
					break
				}
				if err != nil {
					return goerr.Wrap(err, "failed to read input")
				}

				message := strings.TrimSpace(line)
				switch message {
				case "":
					continue
				case "exit", "quit":
					printf(w, "\nChat session completed\n")
					return nil
				case "/reset":
					session.Reset()
					printf(w, "Conversation cleared.\n")
					continue
				}

				sp := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
				sp.Suffix = " thinking..."
				sp.Start()
				turn, err := session.Send(ctx, message)
				sp.Stop()

				if err != nil {
					if ctx.Err() != nil {
						return ctx.Err()
					}
					logging.From(ctx).Error("turn failed", logging.ErrAttr(err))
					printf(w, "Sorry, that request failed: %s\n", err.Error())
					continue
				}
				printf(w, "%s\n\n", turn.Answer)
			}

			printf(w, "\nChat session completed\n")
			return nil
		},
	}
}

func historyFile() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return ""
	}
	dir = filepath.Join(dir, "evergreen")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return ""
	}
	return filepath.Join(dir, "chat_history")
}
