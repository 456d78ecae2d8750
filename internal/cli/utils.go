// Package cli holds the librus-mcp commands.
package cli

import (
	"context"
	"fmt"
	"os"

	appconfig "github.com/lewisedginton/librus_mcp/internal/config"
	"github.com/lewisedginton/librus_mcp/internal/server"
	"github.com/lewisedginton/librus_mcp/pkg/logger"
	"github.com/urfave/cli/v2"
)

const serviceName = "librus-mcp"

// NewLogger builds the CLI logger. It always writes to stderr: stdout carries
// command output and the stdio MCP transport.
func NewLogger(level, format string) logger.Logger {
	return logger.NewLogger(logger.Config{
		Level:   logger.ParseLevel(level),
		Format:  format,
		Service: serviceName,
		Output:  os.Stderr,
	})
}

// getLogger retrieves the logger from the CLI context metadata
func getLogger(ctx *cli.Context) logger.Logger {
	if ctx.App.Metadata != nil {
		if log, ok := ctx.App.Metadata["logger"].(logger.Logger); ok {
			return log
		}
	}
	return NewLogger("info", "json")
}

// loadConfig loads the file named by --config-file. Log flags given on the
// command line win over the file.
func loadConfig(ctx *cli.Context) (*appconfig.AppConfig, logger.Logger, error) {
	log := getLogger(ctx)

	cfg, err := appconfig.Load(ctx.String("config-file"))
	if err != nil {
		log.Error("Failed to load config", logger.ErrorField(err))
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	level, format := cfg.Logging.Level, cfg.Logging.Format
	if ctx.IsSet("log-level") {
		level = ctx.String("log-level")
	}
	if ctx.IsSet("log-format") {
		format = ctx.String("log-format")
	}
	log = NewLogger(level, format)
	cfg.LogConfig(log)
	return cfg, log, nil
}

// withServer builds the components, runs fn and releases them.
func withServer(ctx *cli.Context, fn func(context.Context, *server.Server, logger.Logger) error) error {
	cfg, log, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	s, err := server.New(ctx.Context, cfg, log)
	if err != nil {
		log.Error("Failed to create server", logger.ErrorField(err))
		return fmt.Errorf("failed to create server: %w", err)
	}
	defer func() {
		if err := s.Close(); err != nil {
			log.Warn("Failed to release resources", logger.ErrorField(err))
		}
	}()
	return fn(ctx.Context, s, log)
}

func childArg(ctx *cli.Context) (string, error) {
	if ctx.NArg() != 1 {
		return "", fmt.Errorf("expected exactly one child name or alias, got %d arguments", ctx.NArg())
	}
	return ctx.Args().First(), nil
}
