// Package retrieval stores memory vectors in an embedded chromem-go
// collection and blends the nearest memories into a single context vector
// with the attention engine.
package retrieval

import (
	"context"
	"fmt"
	"maps"
	"math"
	"os"
	"time"

	"github.com/google/uuid"
	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ctxroute/internal/attention"
	"github.com/fyrsmithlabs/ctxroute/internal/config"
)

// InstrumentationName is the name used for OTEL instrumentation.
const InstrumentationName = "github.com/fyrsmithlabs/ctxroute/internal/retrieval"

const (
	metaRoute     = "route"
	metaCreatedAt = "created_at"
)

// Config holds index settings.
type Config struct {
	// Path is the persistence directory. Empty keeps the index in memory.
	Path       string
	Compress   bool
	Collection string
	Dimensions int
}

// ConfigFromApp extracts index settings from the application config.
func ConfigFromApp(app *config.Config) Config {
	return Config{
		Path:       app.Retrieval.Path,
		Compress:   app.Retrieval.Compress,
		Collection: app.Retrieval.Collection,
		Dimensions: app.Retrieval.Dimensions,
	}
}

// Validate checks the config for errors.
func (c Config) Validate() error {
	if c.Collection == "" {
		return fmt.Errorf("%w: collection name is required", ErrInvalidConfig)
	}
	if c.Dimensions <= 0 {
		return fmt.Errorf("%w: dimensions must be positive, got %d", ErrInvalidConfig, c.Dimensions)
	}
	return nil
}

// Memory is a stored piece of context with a precomputed embedding.
type Memory struct {
	ID        string            `json:"id"`
	Content   string            `json:"content"`
	Route     string            `json:"route,omitempty"`
	Embedding []float32         `json:"embedding"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
}

// Match is a retrieved memory with its cosine similarity and its share of
// the blended context.
type Match struct {
	Memory     Memory  `json:"memory"`
	Similarity float32 `json:"similarity"`
	Weight     float32 `json:"weight"`
}

// Result is the outcome of Retrieve. Context is nil when nothing matched.
type Result struct {
	Matches []Match   `json:"matches"`
	Context []float32 `json:"context,omitempty"`
}

// Index is a memory vector index.
type Index struct {
	db         *chromem.DB
	collection *chromem.Collection
	engine     *attention.Engine
	cfg        Config
	logger     *zap.Logger
	tracer     trace.Tracer
	now        func() time.Time
}

// Option configures an Index.
type Option func(*Index)

// WithTracer sets the tracer used for index spans.
func WithTracer(t trace.Tracer) Option {
	return func(i *Index) {
		if t != nil {
			i.tracer = t
		}
	}
}

// WithClock sets the time source for memory timestamps.
func WithClock(now func() time.Time) Option {
	return func(i *Index) {
		if now != nil {
			i.now = now
		}
	}
}

// NewIndex opens the index described by cfg. Matches are blended with engine.
func NewIndex(cfg Config, engine *attention.Engine, logger *zap.Logger, opts ...Option) (*Index, error) {
	if engine == nil {
		return nil, fmt.Errorf("%w: attention engine is required", ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var db *chromem.DB
	if cfg.Path == "" {
		db = chromem.NewDB()
	} else {
		path, err := config.ExpandPath(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("expanding path: %w", err)
		}
		if err := os.MkdirAll(path, 0700); err != nil {
			return nil, fmt.Errorf("creating directory %s: %w", path, err)
		}
		db, err = chromem.NewPersistentDB(path, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("creating chromem DB: %w", err)
		}
		cfg.Path = path
	}

	collection, err := db.GetOrCreateCollection(cfg.Collection, nil, noEmbedding)
	if err != nil {
		return nil, fmt.Errorf("getting/creating collection %s: %w", cfg.Collection, err)
	}

	idx := &Index{
		db:         db,
		collection: collection,
		engine:     engine,
		cfg:        cfg,
		logger:     logger,
		tracer:     otel.Tracer(InstrumentationName),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(idx)
	}

	logger.Info("memory index initialized",
		zap.String("path", cfg.Path),
		zap.String("collection", cfg.Collection),
		zap.Int("dimensions", cfg.Dimensions),
		zap.Int("count", collection.Count()),
	)
	return idx, nil
}

func noEmbedding(context.Context, string) ([]float32, error) {
	return nil, ErrEmbeddingRequired
}

// Count returns the number of stored memories.
func (i *Index) Count() int {
	return i.collection.Count()
}

// Add stores m and returns its ID, generating one when m.ID is empty.
// Adding an existing ID replaces that memory.
func (i *Index) Add(ctx context.Context, m Memory) (string, error) {
	ctx, span := i.tracer.Start(ctx, "retrieval.Add")
	defer span.End()

	if len(m.Embedding) == 0 {
		return "", ErrEmbeddingRequired
	}
	if len(m.Embedding) != i.cfg.Dimensions {
		return "", fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(m.Embedding), i.cfg.Dimensions)
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = i.now()
	}

	meta := make(map[string]string, len(m.Metadata)+2)
	maps.Copy(meta, m.Metadata)
	meta[metaCreatedAt] = m.CreatedAt.UTC().Format(time.RFC3339Nano)
	if m.Route != "" {
		meta[metaRoute] = m.Route
	}

	doc := chromem.Document{
		ID:        m.ID,
		Content:   m.Content,
		Metadata:  meta,
		Embedding: append([]float32(nil), m.Embedding...),
	}
	if err := i.collection.AddDocument(ctx, doc); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("adding memory: %w", err)
	}

	span.SetAttributes(attribute.String("memory.id", m.ID))
	i.logger.Debug("added memory", zap.String("id", m.ID), zap.String("route", m.Route))
	return m.ID, nil
}

// Retrieve returns up to k memories nearest to query, ordered by similarity,
// and their attention blend. k is capped at the stored count.
//
// Stored embeddings are unit length: the collection normalizes them on add,
// so Match.Memory.Embedding may differ from what was passed to Add. The
// query is normalized the same way before weighting, so weights and the
// blend do not depend on its magnitude.
func (i *Index) Retrieve(ctx context.Context, query []float32, k int) (*Result, error) {
	ctx, span := i.tracer.Start(ctx, "retrieval.Retrieve")
	defer span.End()

	if k <= 0 {
		return nil, fmt.Errorf("%w, got %d", ErrInvalidK, k)
	}
	if len(query) != i.cfg.Dimensions {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(query), i.cfg.Dimensions)
	}

	count := i.collection.Count()
	if count == 0 {
		return &Result{Matches: []Match{}}, nil
	}
	k = min(k, count)
	span.SetAttributes(attribute.Int("k", k))

	found, err := i.collection.QueryEmbedding(ctx, query, k, nil, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("querying collection %s: %w", i.cfg.Collection, err)
	}

	keys := make([][]float32, len(found))
	matches := make([]Match, len(found))
	for n, r := range found {
		keys[n] = r.Embedding
		matches[n] = Match{Memory: fromDocument(r), Similarity: r.Similarity}
	}

	query = unitVector(query)
	weights, err := i.engine.Weights(query, keys)
	if err != nil {
		return nil, fmt.Errorf("weighting matches: %w", err)
	}
	for n := range matches {
		matches[n].Weight = weights[n]
	}

	blended, err := i.engine.Attention(ctx, [][]float32{query}, keys, keys)
	if err != nil {
		return nil, fmt.Errorf("blending matches: %w", err)
	}

	i.logger.Debug("retrieved memories",
		zap.Int("k", k),
		zap.Int("matches", len(matches)),
		zap.String("path", string(blended.Path)),
	)
	return &Result{Matches: matches, Context: blended.Output[0]}, nil
}

// Delete removes memories by ID. Unknown IDs are ignored.
func (i *Index) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := i.collection.Delete(ctx, nil, nil, ids...); err != nil {
		return fmt.Errorf("deleting memories: %w", err)
	}
	return nil
}

// unitVector returns a normalized copy of v. A zero vector is copied as is.
func unitVector(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	out := make([]float32, len(v))
	if sum == 0 {
		copy(out, v)
		return out
	}
	inv := 1 / math.Sqrt(sum)
	for n, x := range v {
		out[n] = float32(float64(x) * inv)
	}
	return out
}

func fromDocument(r chromem.Result) Memory {
	m := Memory{
		ID:        r.ID,
		Content:   r.Content,
		Embedding: r.Embedding,
		Route:     r.Metadata[metaRoute],
	}
	if ts, err := time.Parse(time.RFC3339Nano, r.Metadata[metaCreatedAt]); err == nil {
		m.CreatedAt = ts
	}
	extra := make(map[string]string, len(r.Metadata))
	for k, v := range r.Metadata {
		if k != metaRoute && k != metaCreatedAt {
			extra[k] = v
		}
	}
	if len(extra) > 0 {
		m.Metadata = extra
	}
	return m
}
