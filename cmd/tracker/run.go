package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"mercator-hq/tracker/pkg/cli"
	"mercator-hq/tracker/pkg/config"
	"mercator-hq/tracker/pkg/telemetry/logging"
)

var runFlags struct {
	listenAddress string
	logLevel      string
	dryRun        bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the control API and configured proxies",
	Long: `Start the tracker with the specified configuration.

The control API listens on server.listen_address. Proxies listed under
"proxies" in the configuration are started immediately; the orchestrator
registers the rest through POST /v1/proxies.

Examples:
  # Start with default config
  tracker run

  # Start with custom config
  tracker run --config /etc/tracker/config.yaml

  # Override listen address
  tracker run --listen 0.0.0.0:4000

  # Validate config without starting
  tracker run --dry-run`,
	RunE: runTracker,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override control API listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting")
}

// loadConfig initializes the configuration singleton from --config and
// applies the global flags.
func loadConfig() (*config.Config, error) {
	if err := config.Initialize(cfgFile); err != nil {
		return nil, cli.NewConfigError(cfgFile, "failed to load config", err)
	}
	cfg := config.GetConfig()
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}
	return cfg, nil
}

// setupLogging installs the process logger.
func setupLogging(cfg *config.Config) (*logging.Logger, error) {
	logger, err := logging.New(logging.Config{
		Level:     cfg.Telemetry.Logging.Level,
		Format:    cfg.Telemetry.Logging.Format,
		AddSource: cfg.Telemetry.Logging.AddSource,
		Writer:    os.Stderr,
	})
	if err != nil {
		return nil, cli.NewConfigError(cfgFile, "invalid logging configuration", err)
	}
	logger.SetDefault()
	return logger, nil
}

func runTracker(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if runFlags.listenAddress != "" {
		cfg.Server.ListenAddress = runFlags.listenAddress
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}

	logger, err := setupLogging(cfg)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if runFlags.dryRun {
		fmt.Fprintln(out, "✓ Configuration valid")
		return nil
	}

	ctx, stop := cli.SetupSignalHandler(context.Background())
	defer stop()

	printBanner(out, cfg)

	store, err := openStore(ctx, &cfg.Store)
	if err != nil {
		return cli.NewCommandError("run", err)
	}
	fmt.Fprintf(out, "✓ Log store opened (%s)\n", cfg.Store.Backend)

	svc := newService(cfg, store)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := svc.close(shutdownCtx); err != nil {
			slog.Error("shutdown incomplete", "error", err)
		}
	}()

	if svc.pruner != nil {
		if err := svc.pruner.Start(ctx); err != nil {
			slog.Warn("failed to start retention scheduler", "error", err)
		} else if next := svc.pruner.NextPruning(); next != nil {
			slog.Debug("retention scheduler started", "next_pruning", next)
		}
	}

	if n := len(cfg.Proxies); n > 0 {
		started := svc.registerStatic(ctx, cfg.Proxies)
		fmt.Fprintf(out, "✓ Proxies started (%d of %d)\n", started, n)
	}

	if cfg.Watch {
		watcher, err := config.NewWatcher(cfgFile, 0, func(next *config.Config) {
			svc.applyReload(next, logger.SetLevel)
		})
		if err != nil {
			slog.Warn("config watching disabled", "error", err)
		} else {
			go func() {
				if err := watcher.Watch(ctx); err != nil {
					slog.Error("config watcher failed", "error", err)
				}
			}()
			defer watcher.Stop()
		}
	}

	addr, err := svc.server.Listen()
	if err != nil {
		return cli.NewCommandError("run", err)
	}

	fmt.Fprintln(out)
	fmt.Fprintf(out, "✓ Control API listening on %s\n", addr)
	fmt.Fprintf(out, "✓ Health endpoint: http://%s/health\n", addr)
	if svc.collector != nil {
		fmt.Fprintf(out, "✓ Metrics endpoint: http://%s%s\n", addr, cfg.Telemetry.Metrics.Path)
	}
	fmt.Fprintln(out, "\nPress Ctrl+C to stop")

	if err := svc.server.Start(ctx); err != nil {
		return cli.NewCommandError("run", err)
	}

	fmt.Fprintln(out, "\nShutting down gracefully...")
	return nil
}

func printBanner(out io.Writer, cfg *config.Config) {
	fmt.Fprintf(out, "Tracker v%s\n", Version)
	fmt.Fprintf(out, "Loading configuration from: %s\n", cfgFile)
	fmt.Fprintln(out, "✓ Configuration loaded")

	slog.Debug("store configured", "backend", cfg.Store.Backend)
	slog.Debug("static proxies configured", "count", len(cfg.Proxies))
	if cfg.Retention.Days > 0 || cfg.Retention.MaxRecordsPerDeployment > 0 {
		slog.Debug("retention enabled",
			"days", cfg.Retention.Days,
			"max_records_per_deployment", cfg.Retention.MaxRecordsPerDeployment,
			"schedule", cfg.Retention.PruneSchedule,
		)
	}
}
