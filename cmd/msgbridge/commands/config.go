package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"

	"github.com/florianilch/msgbridge/internal/app"
)

// environ is swapped in tests.
var environ = os.Environ

func configCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Inspect the effective configuration",
		Commands: []*cli.Command{
			{
				Name:   "show",
				Usage:  "Print the merged configuration with secrets masked",
				Action: configShowAction,
			},
		},
	}
}

func configShowAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	out, err := json.MarshalIndent(cfg.Masked(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	_, err = fmt.Fprintln(cmd.Root().Writer, string(out))
	return err
}

// loadConfig merges the config file, environment and the command line flags that are
// set on cmd or its parents.
func loadConfig(cmd *cli.Command) (*app.Config, error) {
	path := cmd.String("config")
	if path == "" {
		path = defaultConfigPath()
	}

	overrides := make(map[string]any)
	if cmd.IsSet("log-level") {
		overrides["log.level"] = cmd.String("log-level")
	}
	if cmd.IsSet("log-format") {
		overrides["log.format"] = cmd.String("log-format")
	}
	if cmd.IsSet("port") {
		overrides["server.port"] = cmd.Int("port")
	}

	return app.LoadConfig(app.LoadOptions{
		Path:      path,
		Profile:   cmd.String("profile"),
		Environ:   environ,
		Overrides: overrides,
	})
}

// defaultConfigPath returns <user config dir>/msgbridge/config.toml when it exists.
func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	path := filepath.Join(dir, "msgbridge", "config.toml")
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}
