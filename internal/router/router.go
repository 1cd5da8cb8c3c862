package router

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/fyrsmithlabs/ctxroute/internal/logging"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// maxAlternatives is how many runner-up routes a Decision lists.
const maxAlternatives = 3

// Alternative is a runner-up route and its value.
type Alternative struct {
	Route string  `json:"route"`
	Value float64 `json:"value"`
}

// Decision is the result of a routing call.
type Decision struct {
	Route        string        `json:"route"`
	Index        int           `json:"index"`
	Confidence   float64       `json:"confidence"`
	Values       []float64     `json:"values"`
	Explored     bool          `json:"explored"`
	Alternatives []Alternative `json:"alternatives"`
	StateKey     string        `json:"stateKey"`
	Cached       bool          `json:"cached"`
}

func (d Decision) clone() Decision {
	out := d
	out.Values = append([]float64(nil), d.Values...)
	out.Alternatives = append([]Alternative(nil), d.Alternatives...)
	return out
}

// Stats summarizes learner state.
type Stats struct {
	UpdateCount      uint64  `json:"updateCount"`
	StepCount        uint64  `json:"stepCount"`
	TableSize        int     `json:"tableSize"`
	Epsilon          float64 `json:"epsilon"`
	AvgTDError       float64 `json:"avgTdError"`
	CacheSize        int     `json:"cacheSize"`
	CacheHits        uint64  `json:"cacheHits"`
	CacheMisses      uint64  `json:"cacheMisses"`
	ReplaySize       int     `json:"replaySize"`
	TotalExperiences uint64  `json:"totalExperiences"`
}

// Snapshotter receives a model every AutoSaveInterval updates.
type Snapshotter interface {
	Save(ctx context.Context, m *Model) error
}

// Option configures a Router.
type Option func(*Router)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Router) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithClock overrides time.Now for recency, cache TTL and metadata.
func WithClock(now func() time.Time) Option {
	return func(r *Router) {
		if now != nil {
			r.now = now
		}
	}
}

// WithSnapshotter sets the auto-save sink.
func WithSnapshotter(s Snapshotter) Option {
	return func(r *Router) {
		r.snapshotter = s
	}
}

// WithMetrics sets the OTEL metrics.
func WithMetrics(m *Metrics) Option {
	return func(r *Router) {
		r.metrics = m
	}
}

// WithTracer sets the tracer used for Route and Update spans.
func WithTracer(t trace.Tracer) Option {
	return func(r *Router) {
		if t != nil {
			r.tracer = t
		}
	}
}

// WithCacheMetrics sets the Prometheus decision cache metrics. Defaults to
// the process-wide collectors from NewCacheMetrics.
func WithCacheMetrics(m *CacheMetrics) Option {
	return func(r *Router) {
		r.cacheMetrics = m
	}
}

// Router is an epsilon-greedy tabular Q-learning router.
// All methods are safe for concurrent use.
type Router struct {
	cfg        Config
	encoder    Encoder
	routeIndex map[string]int

	logger       *zap.Logger
	tracer       trace.Tracer
	metrics      *Metrics
	cacheMetrics *CacheMetrics
	snapshotter  Snapshotter
	now          func() time.Time

	mu          sync.Mutex
	table       *qTable
	cache       *decisionCache
	replay      *ReplayBuffer
	rng         *rand.Rand
	epsilon     float64
	updateCount uint64
	stepCount   uint64
	avgTDError  float64
}

// New creates a router from cfg.
func New(cfg Config, opts ...Option) (*Router, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid router config: %w", err)
	}

	r := &Router{
		cfg:        cfg,
		encoder:    NewEncoder(cfg.StateBuckets),
		routeIndex: make(map[string]int, len(cfg.Routes)),
		logger:     zap.NewNop(),
		tracer:     otel.Tracer(InstrumentationName),
		now:        time.Now,
		epsilon:    cfg.ExplorationInitial,
	}
	r.cfg.Routes = append([]string(nil), cfg.Routes...)
	for i, route := range r.cfg.Routes {
		r.routeIndex[route] = i
	}
	for _, opt := range opts {
		opt(r)
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	r.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	r.table = newQTable(len(r.cfg.Routes))

	if cfg.Cache.Enabled {
		if r.cacheMetrics == nil {
			r.cacheMetrics = NewCacheMetrics()
		}
		c, err := newDecisionCache(cfg.Cache.Size, cfg.Cache.TTL, r.now, r.cacheMetrics)
		if err != nil {
			return nil, err
		}
		r.cache = c
	}
	if cfg.Replay.Enabled {
		r.replay = NewReplayBuffer(cfg.Replay.Capacity, r.rng)
	}
	if r.metrics == nil {
		m, err := NewMetrics(nil)
		if err != nil {
			r.logger.Warn("router metrics unavailable", zap.Error(err))
		}
		r.metrics = m
	}
	return r, nil
}

// Routes returns the configured route labels in action-index order.
func (r *Router) Routes() []string {
	return append([]string(nil), r.cfg.Routes...)
}

// Encode returns the state key the router uses for task.
func (r *Router) Encode(task string) string {
	return r.encoder.Encode(task)
}

// Route selects a route for task. With explore set, a random route is
// picked with probability epsilon; otherwise the highest-valued route wins,
// ties going to the lowest index. Route never changes learned state.
// Greedy decisions are served from and stored in the decision cache.
func (r *Router) Route(ctx context.Context, task string, explore bool) Decision {
	ctx, span := r.tracer.Start(ctx, "router.Route")
	defer span.End()

	key := r.encoder.Encode(task)

	r.mu.Lock()
	d, cached := r.routeLocked(key, explore)
	r.mu.Unlock()

	span.SetAttributes(
		attribute.String("route", d.Route),
		attribute.Bool("explored", d.Explored),
		attribute.Bool("cached", cached),
	)
	r.metrics.RecordDecision(ctx, d)
	if ce := r.logger.Check(logging.TraceLevel, "route selected"); ce != nil {
		ce.Write(append(logging.ContextFields(ctx),
			logging.TaskText("task", task),
			zap.String("state_key", key),
			zap.String("route", d.Route),
			zap.Float64("confidence", d.Confidence),
			zap.Bool("explored", d.Explored),
			zap.Bool("cached", cached),
		)...)
	}
	return d
}

func (r *Router) routeLocked(key string, explore bool) (Decision, bool) {
	if !explore && r.cache != nil {
		if d, ok := r.cache.get(key); ok {
			d.Cached = true
			return d, true
		}
	}

	values := r.table.values(key)
	idx := argmax(values)
	explored := false
	if explore && r.rng.Float64() < r.epsilon {
		idx = r.rng.IntN(len(values))
		explored = true
	}

	d := Decision{
		Route:        r.cfg.Routes[idx],
		Index:        idx,
		Confidence:   Softmax(values)[idx],
		Values:       values,
		Explored:     explored,
		Alternatives: r.alternatives(values, idx),
		StateKey:     key,
	}
	if !explore && r.cache != nil {
		r.cache.put(key, d)
	}
	return d.clone(), false
}

// alternatives returns the top runner-up routes by value, descending,
// ties by index.
func (r *Router) alternatives(values []float64, selected int) []Alternative {
	idx := make([]int, 0, len(values)-1)
	for i := range values {
		if i != selected {
			idx = append(idx, i)
		}
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return values[idx[a]] > values[idx[b]]
	})
	if len(idx) > maxAlternatives {
		idx = idx[:maxAlternatives]
	}
	out := make([]Alternative, len(idx))
	for i, j := range idx {
		out[i] = Alternative{Route: r.cfg.Routes[j], Value: values[j]}
	}
	return out
}

// Update applies reward for a terminal transition and returns the raw TD
// error. Unknown actions are ignored and return 0.
func (r *Router) Update(ctx context.Context, task, action string, reward float64) float64 {
	return r.update(ctx, task, action, reward, nil)
}

// UpdateTransition applies reward bootstrapped from nextTask's best value.
func (r *Router) UpdateTransition(ctx context.Context, task, action string, reward float64, nextTask string) float64 {
	return r.update(ctx, task, action, reward, &nextTask)
}

func (r *Router) update(ctx context.Context, task, action string, reward float64, nextTask *string) float64 {
	ctx, span := r.tracer.Start(ctx, "router.Update")
	defer span.End()

	idx, ok := r.routeIndex[action]
	if !ok {
		r.logger.Debug("ignoring update for unknown route",
			append(logging.ContextFields(ctx), zap.String("action", action))...)
		span.SetAttributes(attribute.Bool("ignored", true))
		return 0
	}

	key := r.encoder.Encode(task)
	var nextKey *string
	if nextTask != nil {
		k := r.encoder.Encode(*nextTask)
		nextKey = &k
	}

	r.mu.Lock()
	now := r.now()
	td := r.applyTD(key, idx, reward, nextKey)
	r.table.touch(r.table.getOrCreate(key), now)

	absTD := math.Abs(td)
	r.updateCount++
	r.stepCount++
	r.avgTDError += (absTD - r.avgTDError) / float64(r.updateCount)
	r.epsilon = math.Min(r.epsilon, Epsilon(r.cfg.DecayType,
		r.cfg.ExplorationInitial, r.cfg.ExplorationFinal, r.cfg.ExplorationDecay, r.updateCount))

	changed := []string{key}
	replayed := 0
	if r.replay != nil {
		r.replay.Push(Experience{
			StateKey:     key,
			Action:       idx,
			Reward:       reward,
			NextStateKey: nextKey,
			Timestamp:    now,
			Priority:     absTD,
		})
		for _, exp := range r.replay.Sample(r.cfg.Replay.BatchSize) {
			// Pruned states stay pruned.
			if _, ok := r.table.get(exp.StateKey); !ok {
				continue
			}
			r.applyTD(exp.StateKey, exp.Action, exp.Reward, exp.NextStateKey)
			r.stepCount++
			replayed++
			changed = append(changed, exp.StateKey)
		}
	}

	pruned := r.table.prune(r.cfg.MaxStates, key)
	changed = append(changed, pruned...)
	if r.cache != nil {
		r.cache.invalidate(changed...)
	}

	var snapshot *Model
	if r.snapshotter != nil && r.cfg.AutoSaveInterval > 0 && r.updateCount%uint64(r.cfg.AutoSaveInterval) == 0 {
		snapshot = r.exportLocked()
	}
	tableSize := r.table.len()
	epsilon := r.epsilon
	r.mu.Unlock()

	span.SetAttributes(
		attribute.String("route", action),
		attribute.Float64("td_error", td),
		attribute.Int("replayed", replayed),
	)
	r.metrics.RecordUpdate(ctx, action, absTD)
	r.logger.Debug("q-value updated", append(logging.ContextFields(ctx),
		logging.TaskText("task", task),
		zap.String("state_key", key),
		zap.String("route", action),
		zap.Float64("reward", reward),
		zap.Float64("td_error", td),
		zap.Float64("epsilon", epsilon),
		zap.Int("replayed", replayed),
	)...)

	if len(pruned) > 0 {
		r.metrics.RecordPruned(ctx, len(pruned))
		r.logger.Info("pruned q-table", append(logging.ContextFields(ctx),
			zap.Int("evicted", len(pruned)),
			zap.Int("table_size", tableSize),
			zap.Int("max_states", r.cfg.MaxStates),
		)...)
	}

	if snapshot != nil {
		if err := r.snapshotter.Save(ctx, snapshot); err != nil {
			r.logger.Warn("auto-save failed", append(logging.ContextFields(ctx),
				zap.String("snapshot_id", snapshot.Metadata.SnapshotID),
				zap.Error(err),
			)...)
		}
	}
	return td
}

// applyTD moves Q(key)[action] toward the one-step target and returns the
// TD error. The entry is created if missing; next states are never created.
func (r *Router) applyTD(key string, action int, reward float64, nextKey *string) float64 {
	target := reward
	if nextKey != nil {
		target += r.cfg.Gamma * r.table.maxValue(*nextKey)
	}
	e := r.table.getOrCreate(key)
	td := target - e.Values[action]
	e.Values[action] += r.cfg.LearningRate * td
	return td
}

// Stats returns current learner statistics.
func (r *Router) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Stats{
		UpdateCount:      r.updateCount,
		StepCount:        r.stepCount,
		TableSize:        r.table.len(),
		Epsilon:          r.epsilon,
		AvgTDError:       r.avgTDError,
		TotalExperiences: r.totalExperiencesLocked(),
	}
	if r.cache != nil {
		s.CacheSize = r.cache.len()
		s.CacheHits = r.cache.hits
		s.CacheMisses = r.cache.misses
	}
	if r.replay != nil {
		s.ReplaySize = r.replay.Len()
	}
	return s
}

// totalExperiencesLocked reads the count kept by the replay buffer. A
// router without one records no experiences.
func (r *Router) totalExperiencesLocked() uint64 {
	if r.replay == nil {
		return 0
	}
	return r.replay.Total()
}

// Reset discards all learned state and restores initial exploration.
func (r *Router) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.table = newQTable(len(r.cfg.Routes))
	r.epsilon = r.cfg.ExplorationInitial
	r.updateCount = 0
	r.stepCount = 0
	r.avgTDError = 0
	if r.cache != nil {
		r.cache.purge()
		r.cache.hits, r.cache.misses = 0, 0
	}
	if r.replay != nil {
		r.replay.Clear()
	}
}

// Export returns a deep copy of the learned state.
func (r *Router) Export() *Model {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.exportLocked()
}

func (r *Router) exportLocked() *Model {
	table := make(map[string]ModelEntry, r.table.len())
	for k, e := range r.table.entries {
		table[k] = ModelEntry{
			Values:     append([]float64(nil), e.Values...),
			Visits:     e.Visits,
			LastUpdate: e.LastUpdate,
		}
	}
	return &Model{
		Version: ModelVersion,
		Config: ModelConfig{
			Routes:             append([]string(nil), r.cfg.Routes...),
			LearningRate:       r.cfg.LearningRate,
			Gamma:              r.cfg.Gamma,
			ExplorationInitial: r.cfg.ExplorationInitial,
			ExplorationFinal:   r.cfg.ExplorationFinal,
			ExplorationDecay:   r.cfg.ExplorationDecay,
			DecayType:          r.cfg.DecayType,
			MaxStates:          r.cfg.MaxStates,
		},
		QTable: table,
		Stats: ModelStats{
			StepCount:   r.stepCount,
			UpdateCount: r.updateCount,
			AvgTDError:  r.avgTDError,
			Epsilon:     r.epsilon,
		},
		Metadata: ModelMetadata{
			SavedAt:          r.now(),
			TotalExperiences: r.totalExperiencesLocked(),
			SnapshotID:       uuid.NewString(),
		},
	}
}

// Import replaces the Q-table and statistics with m. On error nothing
// changes. Tables over MaxStates are pruned least-recently-updated first.
// The decision cache is cleared; the replay buffer keeps its experiences
// and takes the model's experience count.
func (r *Router) Import(m *Model) error {
	if err := m.validate(r.cfg.Routes); err != nil {
		return err
	}
	table := m.toTable(len(r.cfg.Routes))
	// A model saved under a larger MaxStates is pruned on the way in.
	pruned := table.prune(r.cfg.MaxStates, "")

	r.mu.Lock()
	r.table = table
	r.updateCount = m.Stats.UpdateCount
	r.stepCount = m.Stats.StepCount
	r.avgTDError = m.Stats.AvgTDError
	r.epsilon = m.Stats.Epsilon
	if r.replay != nil {
		r.replay.total = m.Metadata.TotalExperiences
	}
	if r.cache != nil {
		r.cache.purge()
	}
	size := table.len()
	r.mu.Unlock()

	r.logger.Info("model imported",
		zap.String("snapshot_id", m.Metadata.SnapshotID),
		zap.Int("table_size", size),
		zap.Int("pruned", len(pruned)),
		zap.Uint64("update_count", m.Stats.UpdateCount),
	)
	return nil
}

// Softmax returns the max-subtracted softmax of values.
func Softmax(values []float64) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}
	maxV := math.Inf(-1)
	for _, v := range values {
		if v > maxV {
			maxV = v
		}
	}
	var sum float64
	for i, v := range values {
		out[i] = math.Exp(v - maxV)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

// argmax returns the index of the largest value, lowest index on ties.
func argmax(values []float64) int {
	best := 0
	for i := 1; i < len(values); i++ {
		if values[i] > values[best] {
			best = i
		}
	}
	return best
}
