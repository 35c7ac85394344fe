package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"
)

// Version is set at build time.
var Version = "dev"

type Error struct {
	Code    int
	Message string
}

// Run executes the evergreen command line. Variables from a .env file in
// the working directory are loaded first and never override the
// environment.
func Run(ctx context.Context, argv []string) *Error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return &Error{Code: 1, Message: "failed to load .env: " + err.Error()}
	}

	cmd := &cli.Command{
		Name:    "evergreen",
		Usage:   "Microsoft 365 roadmap impact assistant",
		Version: Version,
		Commands: []*cli.Command{
			queryCommand(),
			chatCommand(),
			customerCommand(),
			reportCommand(),
			statsCommand(),
			ingestCommand(),
			serveCommand(),
			mcpCommand(),
		},
	}

	if err := cmd.Run(ctx, argv); err != nil {
		return &Error{
			Code:    1,
			Message: err.Error(),
		}
	}

	return nil
}

func printf(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
