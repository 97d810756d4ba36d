package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/obsidianstack/detqc/agent/internal/alerts"
	"github.com/obsidianstack/detqc/agent/internal/api"
	"github.com/obsidianstack/detqc/agent/internal/compute"
	"github.com/obsidianstack/detqc/agent/internal/config"
	"github.com/obsidianstack/detqc/agent/internal/histstore"
	"github.com/obsidianstack/detqc/agent/internal/telemetry"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Evaluate every cycle_interval and expose self-metrics and a JSON API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return serve(ctx, root.configPath)
		},
	}
}

func serve(ctx context.Context, configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	slog.Info("detqc starting",
		"cycle_interval", cfg.CycleInterval,
		"workers", cfg.Workers,
		"metrics", len(cfg.Metrics),
		"hits_path", cfg.Occupancy.HitsPath,
	)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// Alert targets and the cycle interval are fixed at start-up; a reload
	// changes what is evaluated.
	notifier := alerts.New(cfg.Alerts)
	defer notifier.Wait()

	store := histstore.New(cfg.Store.TTL)
	engine, err := compute.NewEngine(cfg, store,
		compute.WithTelemetry(telemetry.New(reg)),
		compute.WithAlerts(notifier),
	)
	if err != nil {
		return err
	}

	go store.Run(ctx)

	if configPath != "" {
		go func() {
			if err := config.Watch(ctx, configPath, func(updated *config.Config) {
				if err := engine.Reconfigure(updated); err != nil {
					slog.Error("config rejected, keeping previous config", "err", err)
					return
				}
				slog.Info("config hot-reloaded", "metrics", len(updated.Metrics))
			}); err != nil {
				slog.Error("config watcher stopped", "err", err)
			}
		}()
	}

	var srv *http.Server
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
		mux.Handle("/api/", api.New(engine, notifier, store))
		srv = &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			slog.Info("metrics and api endpoint listening", "addr", cfg.MetricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics endpoint failed", "err", err)
			}
		}()
	}

	engine.Process(ctx, time.Now())
	ticker := time.NewTicker(cfg.CycleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("detqc shutting down")
			if srv != nil {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}
			return nil
		case t := <-ticker.C:
			engine.Process(ctx, t)
		}
	}
}
