package cli

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/lewisedginton/librus_mcp/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	content := "storage:\n  local_dir: " + filepath.Join(dir, "data") + "\n" +
		"children:\n  - name: Jakub\n    aliases: [Kuba]\n  - name: Anna\n    login: anna.parent\n    password: secret\n"
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := &cli.App{
		Name:   "librus-mcp",
		Writer: &out,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "log-level", Value: "error"},
			&cli.StringFlag{Name: "log-format", Value: "json"},
			&cli.StringFlag{Name: "config-file"},
		},
		Before: func(ctx *cli.Context) error {
			ctx.App.Metadata = map[string]interface{}{
				"logger": logger.NewLogger(logger.Config{Level: logger.ErrorLevel, Output: io.Discard}),
			}
			return nil
		},
		Commands: []*cli.Command{
			ScrapeCommand(), MemoryCommand(), ChildrenCommand(), LoginCommand(), ConfigCommand(),
		},
	}
	err := app.RunContext(context.Background(), append([]string{"librus-mcp", "--log-level", "error"}, args...))
	return out.String(), err
}

func TestConfigValidate(t *testing.T) {
	out, err := run(t, "--config-file", writeConfig(t), "config", "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration is valid (2 children)")
}

func TestConfigValidateRejectsEmptyChildren(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: info\n"), 0o600))

	_, err := run(t, "--config-file", path, "config", "validate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no children configured")
}

func TestChildren(t *testing.T) {
	out, err := run(t, "--config-file", writeConfig(t), "children")
	require.NoError(t, err)
	assert.Contains(t, out, "Jakub (Kuba)  last scrape: never  setup: false")
	assert.Contains(t, out, "Anna  last scrape: never")
}

func TestMemoryByAlias(t *testing.T) {
	out, err := run(t, "--config-file", writeConfig(t), "memory", "kuba")
	require.NoError(t, err)
	assert.Contains(t, out, "# Memory: Jakub")
	assert.Contains(t, out, "No grades yet.")
}

func TestChildArgument(t *testing.T) {
	cfg := writeConfig(t)

	_, err := run(t, "--config-file", cfg, "scrape")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected exactly one child")

	_, err = run(t, "--config-file", cfg, "login", "Zosia")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown child")
}
