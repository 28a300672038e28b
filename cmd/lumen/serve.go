// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lumen Contributors

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/lumenlauncher/lumen/internal/api"
	"github.com/lumenlauncher/lumen/internal/command"
	"github.com/lumenlauncher/lumen/internal/config"
	"github.com/lumenlauncher/lumen/internal/logging"
	"github.com/lumenlauncher/lumen/internal/observability"
	"github.com/lumenlauncher/lumen/internal/plugin"
	"github.com/lumenlauncher/lumen/internal/plugin/capability"
	"github.com/lumenlauncher/lumen/internal/plugin/hostapi"
	"github.com/lumenlauncher/lumen/internal/plugin/runtime"
	"github.com/lumenlauncher/lumen/internal/search"
	"github.com/lumenlauncher/lumen/pkg/errutil"
)

const shutdownTimeout = 5 * time.Second

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the launcher daemon",
		Long: `Start the launcher daemon: scan the plugin catalog, load enabled
plugins into the sandbox runtime, and serve launcher requests.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), cmd)
		},
	}

	cmd.Flags().String("plugins.dir", "", "plugin catalog directory (default: XDG data dir)")
	cmd.Flags().String("log.level", "", "log level (debug, info, warn, error)")
	cmd.Flags().String("log.format", "", "log format (json or text)")
	cmd.Flags().String("api.addr", "", "local API listen address")
	cmd.Flags().Bool("metrics.enabled", false, "serve metrics and health probes")
	cmd.Flags().String("metrics.addr", "", "metrics/health HTTP address")

	return cmd
}

func runServe(ctx context.Context, cmd *cobra.Command) error {
	cfgPath := configFile
	if cfgPath == "" {
		cfgPath = config.DefaultPath()
	}
	cfg, err := config.Load(cfgPath, cmd.Flags())
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if cfg.Log.Format != "json" && cfg.Log.Format != "text" {
		return fmt.Errorf("log format must be 'json' or 'text', got %q", cfg.Log.Format)
	}

	logging.SetDefault("lumen", version, cfg.Log.Format, logging.ParseLevel(cfg.Log.Level))

	slog.Info("starting launcher daemon",
		"plugins_dir", cfg.Plugins.Dir,
		"log_format", cfg.Log.Format,
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	loader := plugin.NewLoader(cfg.Plugins.Dir)
	scanned, err := loader.Scan(ctx)
	if err != nil {
		return fmt.Errorf("failed to scan plugin catalog: %w", err)
	}
	slog.Info("plugin catalog scanned", "count", len(scanned))

	enforcer := capability.NewEnforcer()
	host := hostapi.NewHost(enforcer,
		hostapi.WithHTTPTimeout(time.Duration(cfg.Plugins.HTTPTimeoutSeconds)*time.Second),
		hostapi.WithDataDirFunc(cfg.DataDirFor),
		hostapi.WithConfigPathFunc(cfg.ConfigPathFor),
	)

	commands := command.NewRegistry()
	rt := runtime.New(host, otel.Tracer("lumen.runtime"),
		runtime.WithCommandRegistrar(commands),
	)
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := rt.Close(shutdownCtx); err != nil {
			slog.Warn("failed to close plugin runtime", "error", err)
		}
	}()

	if cfg.Plugins.Autoload {
		for _, id := range scanned {
			sp, ok := loader.Get(id)
			if !ok || !sp.Enabled {
				continue
			}
			if err := rt.Load(ctx, sp); err != nil {
				// One broken plugin must not take the daemon down.
				errutil.LogError(slog.Default().With("plugin", id), "failed to load plugin", err)
			}
		}
		slog.Info("plugins loaded", "loaded", len(rt.LoadedIDs()))
	}

	aggregator := search.NewAggregator(search.NewPluginProvider(loader, rt))

	apiServer := api.NewServer(cfg.API.Addr, aggregator, commands, rt, loader)
	apiErrChan, err := apiServer.Start()
	if err != nil {
		return fmt.Errorf("failed to start api server: %w", err)
	}
	go func() {
		if serveErr, ok := <-apiErrChan; ok && serveErr != nil {
			slog.Error("api server failed", "error", serveErr)
			cancel()
		}
	}()
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := apiServer.Stop(shutdownCtx); err != nil {
			slog.Warn("failed to stop api server", "error", err)
		}
	}()

	// Start observability server if configured
	var obsServer *observability.Server
	if cfg.Metrics.Enabled {
		obsServer = observability.NewServer(cfg.Metrics.Addr, func() bool { return true })
		obsErrChan, err := obsServer.Start()
		if err != nil {
			return fmt.Errorf("failed to start observability server: %w", err)
		}
		go func() {
			if serveErr, ok := <-obsErrChan; ok && serveErr != nil {
				slog.Error("observability server failed", "error", serveErr)
				cancel()
			}
		}()
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer shutdownCancel()
			if err := obsServer.Stop(shutdownCtx); err != nil {
				slog.Warn("failed to stop observability server", "error", err)
			}
		}()
	}

	// Handle signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		slog.Info("received signal, shutting down", "signal", sig)
	case <-ctx.Done():
		slog.Info("context cancelled, shutting down")
	}

	return nil
}
