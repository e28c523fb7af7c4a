package main

import (
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cachepulse/cachepulse/pkg/config"
	"github.com/cachepulse/cachepulse/pkg/journal"
	"github.com/cachepulse/cachepulse/pkg/metrics"
	"github.com/cachepulse/cachepulse/pkg/monitor"
)

func main() {
	configPath := flag.String("config", "/etc/cachepulse/config.yaml", "Path to config file")
	providerAddr := flag.String("provider", "", "Cache health endpoint (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			slog.Error("failed to load config", "path", *configPath, "error", err)
			os.Exit(1)
		}
		slog.Info("no config file found, using defaults", "path", *configPath)
		cfg = config.Default()
	}
	if *providerAddr != "" {
		cfg.Provider.Addr = *providerAddr
	}

	// ── Collaborators ─────────────────────────────────────────────
	var provider monitor.HealthProvider
	if cfg.Provider.Addr != "" {
		provider = monitor.NewHTTPProvider(cfg.Provider.Addr)
	} else {
		slog.Warn("no provider addr configured, background polling disabled")
	}

	var sink monitor.Sink
	if cfg.Metrics.MetricsEnabled() {
		sink = metrics.NewSink()
	}

	var eventWriter monitor.EventWriter
	if cfg.Journal.Enabled {
		jnl, err := journal.Open(cfg.Journal.Path, cfg.Journal.Retention)
		if err != nil {
			slog.Error("failed to open event journal", "path", cfg.Journal.Path, "error", err)
			os.Exit(1)
		}
		defer jnl.Close()
		eventWriter = jnl
		slog.Info("event journal enabled", "path", cfg.Journal.Path, "retention", cfg.Journal.Retention)
	}

	// ── Monitor ───────────────────────────────────────────────────
	mon := monitor.New(monitor.Config{
		MaxEvents:      cfg.Monitor.MaxEvents,
		PollInterval:   cfg.Monitor.PollInterval,
		ErrorBackoff:   cfg.Monitor.ErrorBackoff,
		PollTimeout:    cfg.Monitor.PollTimeout,
		SlowThreshold:  cfg.Monitor.SlowThreshold,
		WarnThreshold:  cfg.Monitor.WarnThreshold,
		AnalysisWindow: cfg.Monitor.AnalysisWindow,
	}, provider, sink, eventWriter)
	monitor.SetDefault(mon)
	mon.StartBackgroundMonitoring()

	stop := make(chan struct{})

	// ── Metrics & health endpoint ─────────────────────────────────
	if cfg.Metrics.MetricsEnabled() {
		metrics.RegisterHealthCheck("monitor", func() error {
			mon.GetMonitorHealth() // always succeeds; the check is liveness only
			return nil
		})
		go func() {
			slog.Info("metrics server listening", "addr", cfg.Metrics.Addr)
			if err := metrics.MetricsServer(cfg.Metrics.Addr, stop); err != nil {
				slog.Error("metrics server failed", "error", err)
			}
		}()

		// Keep buffer gauges current.
		go func() {
			ticker := time.NewTicker(15 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-stop:
					return
				case <-ticker.C:
					metrics.SetBufferGauges(mon.EventCount(), mon.MaxEvents())
				}
			}
		}()
	}

	slog.Info("cachepulse monitor running",
		"max_events", cfg.Monitor.MaxEvents,
		"poll_interval", cfg.Monitor.PollInterval,
		"provider", cfg.Provider.Addr)

	// ── Wait for shutdown signal ──────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("shutting down", "signal", sig)

	close(stop)
	monitor.ShutdownDefault()
}
