package main

import (
	"context"
	"fmt"
	"os"

	commands "github.com/lewisedginton/librus_mcp/internal/cli"
	"github.com/urfave/cli/v2"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func newApp() *cli.App {
	return &cli.App{
		Name:    "librus-mcp",
		Usage:   "Collect Librus Synergia data per child and serve it as MCP tools",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Usage:   "Log level (debug, info, warn, error)",
				EnvVars: []string{"LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "log-format",
				Value:   "json",
				Usage:   "Log format (json, text)",
				EnvVars: []string{"LOG_FORMAT"},
			},
			&cli.StringFlag{
				Name:    "config-file",
				Value:   "",
				Usage:   "Path to configuration file",
				EnvVars: []string{"CONFIG_FILE"},
			},
		},
		Before: func(ctx *cli.Context) error {
			// Store logger in context for commands to use
			ctx.App.Metadata = map[string]interface{}{
				"logger": commands.NewLogger(ctx.String("log-level"), ctx.String("log-format")),
			}
			return nil
		},
		Commands: []*cli.Command{
			commands.ServeCommand(),
			commands.ScrapeCommand(),
			commands.MemoryCommand(),
			commands.ChildrenCommand(),
			commands.LoginCommand(),
			commands.ConfigCommand(),
		},
	}
}

func main() {
	if err := newApp().RunContext(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
