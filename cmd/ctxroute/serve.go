package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/log/global"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ctxroute/internal/attention"
	"github.com/fyrsmithlabs/ctxroute/internal/config"
	ctxhttp "github.com/fyrsmithlabs/ctxroute/internal/http"
	"github.com/fyrsmithlabs/ctxroute/internal/logging"
	"github.com/fyrsmithlabs/ctxroute/internal/retrieval"
	"github.com/fyrsmithlabs/ctxroute/internal/router"
	"github.com/fyrsmithlabs/ctxroute/internal/snapshot"
	"github.com/fyrsmithlabs/ctxroute/internal/telemetry"
)

func newServeCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Serve routing, feedback, attention, benchmark and memory retrieval over
HTTP. The model is restored from the snapshot on start, auto-saved during
learning, and saved once more on shutdown (SIGINT or SIGTERM).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
}

// serve starts the server and blocks until ctx is cancelled.
//
// Startup order:
//  1. Telemetry providers (degraded telemetry never blocks startup)
//  2. Logger, bridged to OTEL when telemetry is enabled
//  3. Router restored from the snapshot, with auto-save
//  4. Optional snapshot watcher for hot reload
//  5. Attention engine and optional memory index
//  6. HTTP server
func serve(ctx context.Context, cfg *config.Config) error {
	tel, err := telemetry.New(ctx, telemetry.FromAppConfig(cfg.Observability, version))
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		_ = tel.Shutdown(shutdownCtx)
	}()

	logger, err := initLogger(cfg, tel)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()
	zl := logger.Underlying()

	logger.Info(ctx, "starting ctxroute",
		zap.String("version", version),
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
		zap.Bool("telemetry", tel.IsEnabled()),
	)
	if h := tel.Health(); h.Degraded {
		logger.Warn(ctx, "telemetry degraded, continuing without it", zap.String("reason", h.Reason))
	}

	path, err := config.ExpandPath(cfg.Snapshot.Path)
	if err != nil {
		return err
	}
	store, err := snapshot.NewFileStore(path, zl.Named("snapshot"))
	if err != nil {
		return err
	}

	routerMetrics, err := router.NewMetrics(tel.Meter(router.InstrumentationName))
	if err != nil {
		logger.Warn(ctx, "router metrics unavailable", zap.Error(err))
	}
	r, err := router.New(router.ConfigFromApp(cfg),
		router.WithLogger(zl.Named("router")),
		router.WithSnapshotter(store),
		router.WithMetrics(routerMetrics),
		router.WithTracer(tel.Tracer(router.InstrumentationName)),
	)
	if err != nil {
		return err
	}
	found, err := store.Restore(ctx, r)
	if err != nil {
		return err
	}
	logger.Info(ctx, "router ready",
		zap.String("snapshot", path),
		zap.Bool("restored", found),
		zap.Int("states", r.Stats().TableSize),
	)

	if cfg.Snapshot.Watch {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return fmt.Errorf("creating snapshot directory: %w", err)
		}
		w, err := snapshot.NewWatcher(store, r, zl.Named("watcher"))
		if err != nil {
			return err
		}
		if err := w.Start(ctx); err != nil {
			return err
		}
		defer w.Stop()
		go logReloads(ctx, logger, w)
	}

	attnMetrics, err := attention.NewMetrics(tel.Meter(attention.InstrumentationName))
	if err != nil {
		logger.Warn(ctx, "attention metrics unavailable", zap.Error(err))
	}
	engine, err := newEngine(cfg, zl.Named("attention"),
		attention.WithMetrics(attnMetrics),
		attention.WithTracer(tel.Tracer(attention.InstrumentationName)),
	)
	if err != nil {
		return err
	}

	var index *retrieval.Index
	if cfg.Retrieval.Enabled {
		rcfg := retrieval.ConfigFromApp(cfg)
		if rcfg.Path, err = config.ExpandPath(rcfg.Path); err != nil {
			return err
		}
		index, err = retrieval.NewIndex(rcfg, engine, zl.Named("retrieval"),
			retrieval.WithTracer(tel.Tracer(retrieval.InstrumentationName)),
		)
		if err != nil {
			return fmt.Errorf("failed to open memory index: %w", err)
		}
	}

	server, err := ctxhttp.NewServer(ctxhttp.Deps{
		Router:    r,
		Engine:    engine,
		Index:     index,
		Telemetry: tel,
		Metrics:   ctxhttp.NewHTTPMetrics(tel.Meter("github.com/fyrsmithlabs/ctxroute/internal/http"), zl),
	}, zl.Named("http"), &ctxhttp.Config{
		Host:                cfg.Server.Host,
		Port:                cfg.Server.Port,
		Version:             version,
		AttentionRPS:        cfg.Server.AttentionRPS,
		BenchmarkVectors:    cfg.Benchmark.NumVectors,
		BenchmarkDimensions: cfg.Benchmark.Dimensions,
		BenchmarkIterations: cfg.Benchmark.Iterations,
	})
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case <-ctx.Done():
		logger.Info(ctx, "shutting down", zap.Duration("shutdown_timeout", cfg.Server.ShutdownTimeout))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error(shutdownCtx, "http shutdown failed", zap.Error(err))
	}
	if err := store.Save(shutdownCtx, r.Export()); err != nil {
		logger.Error(shutdownCtx, "final snapshot failed", zap.Error(err))
		return err
	}
	logger.Info(shutdownCtx, "shutdown complete", zap.Int("states", r.Stats().TableSize))
	return nil
}

// initLogger builds the service logger. When telemetry is enabled, records
// are also sent through the global OTEL log provider.
func initLogger(cfg *config.Config, tel *telemetry.Telemetry) (*logging.Logger, error) {
	logCfg, err := logging.FromAppConfig(cfg.Logging)
	if err != nil {
		return nil, err
	}
	if !tel.IsEnabled() {
		return logging.NewLogger(logCfg, nil)
	}
	if tel.LoggerProvider() == nil {
		tel.SetLoggerProvider(global.GetLoggerProvider())
	}
	logCfg.Output.OTEL = true
	return logging.NewLogger(logCfg, tel.LoggerProvider())
}

func logReloads(ctx context.Context, logger *logging.Logger, w *snapshot.Watcher) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.Events():
			if !ok {
				return
			}
			if ev.Err != nil {
				logger.Warn(ctx, "snapshot reload rejected", zap.Error(ev.Err))
				continue
			}
			logger.Info(ctx, "snapshot reloaded", zap.String("snapshot_id", ev.SnapshotID))
		}
	}
}
