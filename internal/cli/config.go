package cli

import (
	"fmt"

	appconfig "github.com/lewisedginton/librus_mcp/internal/config"
	"github.com/lewisedginton/librus_mcp/pkg/logger"
	"github.com/urfave/cli/v2"
)

// ConfigCommand returns a command for configuration operations
func ConfigCommand() *cli.Command {
	return &cli.Command{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Configuration operations",
		Subcommands: []*cli.Command{
			{
				Name:   "validate",
				Usage:  "Validate configuration",
				Action: configValidateAction,
			},
		},
	}
}

func configValidateAction(ctx *cli.Context) error {
	log := getLogger(ctx)
	log.Info("Validating configuration")

	cfg, err := appconfig.Load(ctx.String("config-file"))
	if err != nil {
		log.Error("Configuration validation failed", logger.ErrorField(err))
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	missing := 0
	for _, child := range cfg.Children {
		if child.Login == "" || child.Password == "" {
			missing++
			log.Warn("Child has no portal credentials, only saved sessions will work",
				logger.ChildField(child.Name),
				logger.StringField("env_prefix", appconfig.CredentialEnvPrefix(child.Name)))
		}
	}

	log.Info("Configuration validation passed", logger.IntField("children_without_credentials", missing))
	fmt.Fprintf(ctx.App.Writer, "Configuration is valid (%d children)\n", len(cfg.Children))
	return nil
}
