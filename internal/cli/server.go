package cli

import (
	"context"
	"fmt"

	"github.com/lewisedginton/librus_mcp/internal/server"
	"github.com/lewisedginton/librus_mcp/pkg/logger"
	"github.com/urfave/cli/v2"
)

// ServeCommand returns the command that runs the MCP server
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Serve the MCP tools over stdio or streamable HTTP, with the optional scheduler",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "transport",
				Usage:   "Override mcp.transport (stdio, http)",
				EnvVars: []string{"MCP_TRANSPORT"},
			},
		},
		Action: serveAction,
	}
}

func serveAction(ctx *cli.Context) error {
	cfg, log, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	if t := ctx.String("transport"); t != "" {
		cfg.MCP.Transport = t
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
	}

	s, err := server.New(ctx.Context, cfg, log)
	if err != nil {
		log.Error("Failed to create server", logger.ErrorField(err))
		return fmt.Errorf("failed to create server: %w", err)
	}
	defer func() { _ = s.Close() }()

	log.Info("Starting MCP server", logger.StringField("transport", cfg.MCP.Transport))
	if err := s.Run(ctx.Context); err != nil {
		log.Error("Fatal server error occurred", logger.ErrorField(err))
		return fmt.Errorf("server error: %w", err)
	}
	log.Info("Server exited normally")
	return nil
}

// LoginCommand establishes and saves a portal session for a child
func LoginCommand() *cli.Command {
	return &cli.Command{
		Name:      "login",
		Usage:     "Log in to the portal for a child and save the session cookies",
		ArgsUsage: "<child>",
		Action: func(ctx *cli.Context) error {
			name, err := childArg(ctx)
			if err != nil {
				return err
			}
			return withServer(ctx, func(c context.Context, s *server.Server, log logger.Logger) error {
				child, err := s.Resolver().Lookup(name)
				if err != nil {
					return err
				}
				if err := s.Sessions().Login(c, child.Name); err != nil {
					log.Error("Login failed", logger.ChildField(child.Name), logger.ErrorField(err))
					return fmt.Errorf("login failed for %s: %w", child.Name, err)
				}
				fmt.Fprintf(ctx.App.Writer, "Logged in as %s, session saved.\n", child.Name)
				return nil
			})
		},
	}
}
