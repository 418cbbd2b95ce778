package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/prophezy/oracle-resolver/internal/app"
	"github.com/prophezy/oracle-resolver/internal/config"
)

// cli carries state shared by every subcommand.
type cli struct {
	configPath string
	verbose    bool

	cfg    *config.Config
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           "oraclectl",
		Short:         "Operator tooling for the oracle resolver",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.load()
		},
	}
	root.PersistentFlags().StringVar(&c.configPath, "config", "config.toml", "path to configuration file")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "log at debug level")

	root.AddCommand(
		encryptKeyCmd(c),
		resolveCmd(c),
		recentCmd(c),
		leaderboardCmd(c),
		migrateCmd(c),
		reconcileCmd(c),
		archivesCmd(c),
		auditCmd(c),
		configCmd(c),
	)
	return root
}

// load reads the configuration and sets up a text logger on stderr so
// command output on stdout stays clean.
func (c *cli) load() error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	level := slog.LevelWarn
	if c.verbose {
		level = slog.LevelDebug
	}
	c.cfg = cfg
	c.logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	return nil
}

// withServices wires dependencies for mode, builds the services and hands
// both to fn. Everything is torn down when fn returns.
func (c *cli) withServices(ctx context.Context, mode string, fn func(*app.Dependencies, *app.Services) error) error {
	cfg := *c.cfg
	cfg.Mode = mode
	if err := cfg.Validate(); err != nil {
		return err
	}

	deps, cleanup, err := app.Wire(ctx, &cfg, c.logger)
	if err != nil {
		return err
	}
	defer cleanup()

	return fn(deps, app.BuildServices(app.ResolutionSettings(cfg.Resolution), deps, c.logger))
}

func requirePositive(name string, v int64) error {
	if v <= 0 {
		return fmt.Errorf("--%s must be a positive integer", name)
	}
	return nil
}
