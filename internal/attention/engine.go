package attention

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Path identifies which algorithm produced a result.
type Path string

// Attention paths.
const (
	PathDirect Path = "direct"
	PathTiled  Path = "tiled"
)

// Result is the output of one attention computation.
type Result struct {
	Output  [][]float32   `json:"output"`
	Elapsed time.Duration `json:"elapsed"`
	Path    Path          `json:"path"`
	Backend string        `json:"backend"`
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithMetrics sets the OTEL metrics.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithTracer sets the tracer used for attention spans.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) {
		if t != nil {
			e.tracer = t
		}
	}
}

// WithClock sets the time source used for timing and history.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// Engine computes attention and keeps benchmark history.
// All methods are safe for concurrent use.
type Engine struct {
	backend Backend
	logger  *zap.Logger
	tracer  trace.Tracer
	metrics *Metrics
	now     func() time.Time

	mu  sync.RWMutex
	cfg Config

	histMu  sync.Mutex
	history []BenchmarkResult
}

// New creates an engine. The backend is fixed for the engine's lifetime.
func New(cfg Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	backend, err := NewBackend(cfg.Backend, cfg.Workers)
	if err != nil {
		return nil, err
	}
	cfg.Backend = backend.Name()

	e := &Engine{
		backend: backend,
		cfg:     cfg,
		logger:  zap.NewNop(),
		tracer:  otel.Tracer(InstrumentationName),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Config returns the current configuration.
func (e *Engine) Config() Config {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cfg
}

// SetConfig applies p and returns the resulting configuration. On error the
// configuration is unchanged.
func (e *Engine) SetConfig(p ConfigPatch) (Config, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	next, err := e.cfg.apply(p)
	if err != nil {
		return e.cfg, err
	}
	e.cfg = next
	e.logger.Info("attention config updated",
		zap.Int("block_size", next.BlockSize),
		zap.Float64("temperature", next.Temperature),
		zap.Int("tiled_threshold", next.TiledThreshold),
	)
	return next, nil
}

// Attention computes softmax(q·kᵀ / (sqrt(D)·temperature))·v. It uses the
// tiled path when len(q)*len(k) exceeds the tiled threshold.
func (e *Engine) Attention(ctx context.Context, q, k, v [][]float32) (*Result, error) {
	cfg := e.Config()
	path := PathDirect
	if len(q)*len(k) > cfg.TiledThreshold {
		path = PathTiled
	}
	return e.run(ctx, cfg, path, q, k, v)
}

// Direct forces the materialized-score path.
func (e *Engine) Direct(ctx context.Context, q, k, v [][]float32) (*Result, error) {
	return e.run(ctx, e.Config(), PathDirect, q, k, v)
}

// Tiled forces the blocked online-softmax path.
func (e *Engine) Tiled(ctx context.Context, q, k, v [][]float32) (*Result, error) {
	return e.run(ctx, e.Config(), PathTiled, q, k, v)
}

// Weights returns the attention distribution of query over keys, using the
// same score scaling as Attention.
func (e *Engine) Weights(query []float32, keys [][]float32) ([]float32, error) {
	dim, err := validate([][]float32{query}, keys, keys)
	if err != nil {
		return nil, err
	}
	row := make([]float32, len(keys))
	softmaxRow(query, keys, scoreScale(dim, e.Config().Temperature), row)
	return row, nil
}

func (e *Engine) run(ctx context.Context, cfg Config, path Path, q, k, v [][]float32) (*Result, error) {
	dim, err := validate(q, k, v)
	if err != nil {
		return nil, err
	}

	ctx, span := e.tracer.Start(ctx, "attention."+string(path),
		trace.WithAttributes(
			attribute.Int("attention.queries", len(q)),
			attribute.Int("attention.keys", len(k)),
			attribute.Int("attention.dimensions", dim),
			attribute.String("attention.backend", e.backend.Name()),
		),
	)
	defer span.End()

	scale := scoreScale(dim, cfg.Temperature)
	start := e.now()

	var out [][]float32
	if path == PathTiled {
		out, err = e.backend.Tiled(ctx, q, k, v, cfg.BlockSize, scale)
	} else {
		out, err = e.backend.Direct(ctx, q, k, v, scale)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("attention %s: %w", path, err)
	}

	elapsed := e.now().Sub(start)
	e.metrics.Record(ctx, path, elapsed)
	if ce := e.logger.Check(zap.DebugLevel, "attention computed"); ce != nil {
		ce.Write(
			zap.String("path", string(path)),
			zap.Int("queries", len(q)),
			zap.Int("keys", len(k)),
			zap.Duration("elapsed", elapsed),
		)
	}

	return &Result{Output: out, Elapsed: elapsed, Path: path, Backend: e.backend.Name()}, nil
}
