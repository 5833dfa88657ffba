package commands

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/distbuilder/internal/build"
	"git.home.luguber.info/inful/distbuilder/internal/config"
	"git.home.luguber.info/inful/distbuilder/internal/metrics"
	"git.home.luguber.info/inful/distbuilder/internal/watch"
)

const shutdownTimeout = 5 * time.Second

// WatchCmd implements the 'watch' command.
type WatchCmd struct {
	Format      string   `short:"f" help:"Module format of the output (esm|cjs). Defaults to the configured format."`
	Bundle      bool     `help:"Inline imported modules into each entry"`
	Ignore      []string `help:"Additional doublestar patterns (relative to the source directory) to ignore"`
	Concurrency int      `name:"rebuild-concurrency" help:"Max concurrent rebuilds of distinct paths"`
	MetricsAddr string   `name:"metrics-addr" help:"Serve Prometheus metrics on this address (host:port)"`
}

func (w *WatchCmd) Run(g *Global, root *CLI) error {
	cfg, err := root.LoadConfig()
	if err != nil {
		return err
	}
	w.apply(cfg)

	ctx := g.context()
	var rec metrics.Recorder = metrics.NoopRecorder{}
	if cfg.Watch.MetricsAddr != "" {
		reg := prom.NewRegistry()
		rec = metrics.NewPrometheusRecorder(reg)
		stop := serveMetrics(cfg.Watch.MetricsAddr, reg)
		defer stop()
	}

	orch := build.NewOrchestrator(cfg).WithRecorder(rec)
	loop := watch.New(orch, w.Request(cfg), watch.Options{
		SourceRoot:  cfg.SourceRoot(),
		OutputRoot:  cfg.OutputRoot(),
		Ignore:      cfg.Watch.Ignore,
		Concurrency: cfg.Watch.Concurrency,
		Recorder:    rec,
	})
	return loop.Run(ctx)
}

// apply folds watch flags into the configuration.
func (w *WatchCmd) apply(cfg *config.Config) {
	cfg.Watch.Ignore = append(cfg.Watch.Ignore, w.Ignore...)
	if w.Concurrency > 0 {
		cfg.Watch.Concurrency = w.Concurrency
	}
	if w.MetricsAddr != "" {
		cfg.Watch.MetricsAddr = w.MetricsAddr
	}
}

// Request is the template request of the watch loop. Watch builds always
// run in development mode.
func (w *WatchCmd) Request(cfg *config.Config) build.Request {
	return build.Request{
		Format: formatOrDefault(w.Format, cfg),
		Mode:   config.ModeDevelopment,
		Bundle: w.Bundle,
	}
}

// serveMetrics exposes reg on addr until the returned stop func is called.
func serveMetrics(addr string, reg *prom.Registry) func() {
	srv := metrics.NewServer(addr, reg)
	go func() {
		slog.Info("Serving metrics", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Metrics server failed", slog.String("addr", addr), slog.String("error", err.Error()))
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			slog.Warn("Metrics server shutdown", slog.String("error", err.Error()))
		}
	}
}
