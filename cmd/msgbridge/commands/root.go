package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/urfave/cli/v3"

	"github.com/florianilch/msgbridge/internal/app"
	"github.com/florianilch/msgbridge/internal/observability"
)

// Execute runs the root command with the given context and arguments.
func Execute(ctx context.Context, args []string, version, commit string) error {
	return newRootCommand(version, commit).Run(ctx, args)
}

func newRootCommand(version, commit string) *cli.Command {
	return &cli.Command{
		Name:    "msgbridge",
		Usage:   "Messages API gateway for Chat Completions upstreams",
		Version: fmt.Sprintf("%s (%s)", version, commit),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to a TOML config file",
				Sources: cli.EnvVars(app.EnvPrefix + "CONFIG"),
			},
			&cli.StringFlag{
				Name:    "profile",
				Usage:   "config profile to apply",
				Sources: cli.EnvVars(app.EnvPrefix + "PROFILE"),
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level (debug|info|warn|error)",
			},
		},
		Commands: []*cli.Command{
			startCommand(version, commit),
			keysCommand(),
			configCommand(),
		},
	}
}

func startCommand(version, commit string) *cli.Command {
	return &cli.Command{
		Name:  "start",
		Usage: "Starts the gateway",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "log format (text|json)",
			},
			&cli.IntFlag{
				Name:  "port",
				Usage: "listen port",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return startAction(ctx, cmd, version, commit)
		},
	}
}

func startAction(ctx context.Context, cmd *cli.Command, version, commit string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	level, err := cfg.Log.SlogLevel()
	if err != nil {
		return err
	}

	// Set up observability before creating app
	shutdownLogs, err := observability.Instrument(ctx, observability.Options{
		Level:    level,
		Format:   cfg.Log.Format,
		Exporter: cfg.Log.Exporter,
	})
	if err != nil {
		return fmt.Errorf("failed to set up observability layer: %w", err)
	}

	application, err := app.New(ctx, cfg)
	if err != nil {
		_ = shutdownLogs(context.WithoutCancel(ctx))
		return fmt.Errorf("failed to create app: %w", err)
	}
	application.OnShutdown(shutdownLogs)

	slog.InfoContext(ctx, "starting", "version", version, "commit", commit, "profile", cfg.ActiveProfile)

	if err := application.Start(ctx); err != nil {
		return fmt.Errorf("app failed to start: %w", err)
	}

	slog.InfoContext(ctx, "stopped gracefully")
	return nil
}
