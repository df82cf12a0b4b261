package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/qepting91/wb-harvester/internal/app"
	"github.com/qepting91/wb-harvester/internal/config"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// version is set at build time with -ldflags.
var version = "dev"

type globals struct {
	cfgFile  string
	logLevel string
	v        *viper.Viper
}

func newRootCommand() *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:           "harvester",
		Short:         "Collect search frequency statistics for Wildberries categories",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			g.v = config.New()
			if err := config.ReadFile(g.v, g.cfgFile); err != nil {
				return err
			}
			if cmd.Flags().Changed("log-level") {
				g.v.Set("log_level", g.logLevel)
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&g.cfgFile, "config", "", "optional config file (yaml, json or toml)")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "override LOG_LEVEL")

	root.AddCommand(
		newBotCommand(g),
		newHarvestCommand(g),
		newBatchCommand(g),
		newResolveCommand(g),
		newDashboardCommand(g),
		&cobra.Command{
			Use:   "version",
			Short: "Print the version number",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "harvester %s\n", version)
			},
		},
	)
	return root
}

// setup loads configuration, installs the logger and wires the app. The
// returned context is cancelled on SIGINT or SIGTERM.
func (g *globals) setup(cmd *cobra.Command) (context.Context, *app.App, func(), error) {
	cfg, err := config.Load(g.v)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}

	logger, closeLog, err := app.NewLogger(cfg.LogLevel, cfg.LogDir)
	if err != nil {
		return nil, nil, nil, err
	}
	slog.SetDefault(logger)

	a, err := app.New(cfg, afero.NewOsFs(), logger)
	if err != nil {
		_ = closeLog()
		return nil, nil, nil, err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	cleanup := func() {
		stop()
		if err := a.Close(); err != nil {
			logger.Error("Shutdown error", "error", err)
		}
		_ = closeLog()
	}
	return ctx, a, cleanup, nil
}
