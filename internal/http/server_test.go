package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ctxroute/internal/attention"
	"github.com/fyrsmithlabs/ctxroute/internal/retrieval"
	"github.com/fyrsmithlabs/ctxroute/internal/router"
	"github.com/fyrsmithlabs/ctxroute/internal/telemetry"
)

type testServerOpts struct {
	rps       float64
	noIndex   bool
	gatherer  prometheus.Gatherer
	telemetry *telemetry.Telemetry
}

func setupTestServer(t *testing.T, opts testServerOpts) *Server {
	t.Helper()

	rcfg := router.DefaultConfig()
	rcfg.Seed = 42
	rcfg.Replay.Enabled = false
	r, err := router.New(rcfg)
	require.NoError(t, err)

	acfg := attention.DefaultConfig()
	acfg.Warmup = 0
	acfg.Seed = 1
	engine, err := attention.New(acfg)
	require.NoError(t, err)

	deps := Deps{
		Router:    r,
		Engine:    engine,
		Telemetry: opts.telemetry,
		Metrics:   NewHTTPMetrics(nil, zap.NewNop()),
		Gatherer:  opts.gatherer,
	}
	if !opts.noIndex {
		deps.Index, err = retrieval.NewIndex(retrieval.Config{Collection: "memories", Dimensions: 2}, engine, nil)
		require.NoError(t, err)
	}

	server, err := NewServer(deps, zap.NewNop(), &Config{
		Host:                "localhost",
		Port:                9191,
		Version:             "test",
		AttentionRPS:        opts.rps,
		BenchmarkVectors:    16,
		BenchmarkDimensions: 4,
		BenchmarkIterations: 1,
	})
	require.NoError(t, err)
	return server
}

func do(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestNewServer(t *testing.T) {
	r, err := router.New(router.DefaultConfig())
	require.NoError(t, err)
	engine, err := attention.New(attention.DefaultConfig())
	require.NoError(t, err)

	t.Run("uses defaults when config is nil", func(t *testing.T) {
		server, err := NewServer(Deps{Router: r, Engine: engine}, zap.NewNop(), nil)
		require.NoError(t, err)
		assert.Equal(t, "localhost", server.config.Host)
		assert.Equal(t, 9191, server.config.Port)
	})

	t.Run("returns error when logger is nil", func(t *testing.T) {
		_, err := NewServer(Deps{Router: r, Engine: engine}, nil, nil)
		assert.ErrorContains(t, err, "logger is required")
	})

	t.Run("returns error when router is nil", func(t *testing.T) {
		_, err := NewServer(Deps{Engine: engine}, zap.NewNop(), nil)
		assert.ErrorContains(t, err, "router cannot be nil")
	})

	t.Run("returns error when engine is nil", func(t *testing.T) {
		_, err := NewServer(Deps{Router: r}, zap.NewNop(), nil)
		assert.ErrorContains(t, err, "attention engine cannot be nil")
	})
}

func TestHandleHealth(t *testing.T) {
	server := setupTestServer(t, testServerOpts{telemetry: telemetry.NewTestTelemetry().Telemetry})

	rec := do(t, server, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[HealthResponse](t, rec)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "test", resp.Version)
	assert.NotEmpty(t, resp.Telemetry)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestHandleRoute(t *testing.T) {
	server := setupTestServer(t, testServerOpts{})

	t.Run("routes task", func(t *testing.T) {
		rec := do(t, server, http.MethodPost, "/api/v1/route", RouteRequest{Task: strPtr("fix login bug")})
		require.Equal(t, http.StatusOK, rec.Code)

		d := decode[router.Decision](t, rec)
		assert.Contains(t, server.router.Routes(), d.Route)
		assert.Len(t, d.Values, len(server.router.Routes()))
		assert.False(t, d.Explored)
		assert.NotEmpty(t, d.StateKey)
	})

	tests := []struct {
		name string
		body string
	}{
		{"missing task", `{}`},
		{"malformed json", `{"task":`},
		{"oversized task", `{"task":"` + strings.Repeat("a", maxTaskLen+1) + `"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/route", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()
			server.echo.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestHandleFeedback(t *testing.T) {
	server := setupTestServer(t, testServerOpts{})

	t.Run("learns from reward", func(t *testing.T) {
		rec := do(t, server, http.MethodPost, "/api/v1/feedback",
			FeedbackRequest{Task: strPtr("fix login bug"), Route: "coder", Reward: 1})
		require.Equal(t, http.StatusOK, rec.Code)

		resp := decode[FeedbackResponse](t, rec)
		assert.InDelta(t, 1.0, resp.TDError, 1e-9)
		assert.Equal(t, uint64(1), resp.Stats.UpdateCount)
		assert.Equal(t, 1, resp.Stats.TableSize)

		rec = do(t, server, http.MethodPost, "/api/v1/route", RouteRequest{Task: strPtr("fix login bug")})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "coder", decode[router.Decision](t, rec).Route)
	})

	t.Run("bootstraps from next task", func(t *testing.T) {
		next := "write tests for login"
		rec := do(t, server, http.MethodPost, "/api/v1/feedback",
			FeedbackRequest{Task: strPtr("review login fix"), Route: "reviewer", Reward: 0.5, NextTask: &next})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.InDelta(t, 0.5, decode[FeedbackResponse](t, rec).TDError, 1e-9)
	})

	tests := []struct {
		name string
		req  FeedbackRequest
	}{
		{"missing task", FeedbackRequest{Route: "coder", Reward: 1}},
		{"unknown route", FeedbackRequest{Task: strPtr("x"), Route: "pilot", Reward: 1}},
		{"oversized next task", FeedbackRequest{Task: strPtr("x"), Route: "coder", NextTask: strPtr(strings.Repeat("a", maxTaskLen+1))}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, server, http.MethodPost, "/api/v1/feedback", tt.req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestHandleRouteAndFeedback_EmptyTask(t *testing.T) {
	server := setupTestServer(t, testServerOpts{})

	rec := do(t, server, http.MethodPost, "/api/v1/feedback",
		FeedbackRequest{Task: strPtr(""), Route: "tester", Reward: 1, NextTask: strPtr("")})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[FeedbackResponse](t, rec).Stats.TableSize)

	rec = do(t, server, http.MethodPost, "/api/v1/route", RouteRequest{Task: strPtr("")})
	require.Equal(t, http.StatusOK, rec.Code)
	d := decode[router.Decision](t, rec)
	assert.Equal(t, "tester", d.Route)
	assert.Equal(t, server.router.Encode(""), d.StateKey)
}

func TestHandleStats(t *testing.T) {
	server := setupTestServer(t, testServerOpts{})
	server.router.Update(context.Background(), "deploy", "coder", 1)

	rec := do(t, server, http.MethodGet, "/api/v1/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[StatsResponse](t, rec)
	assert.Equal(t, uint64(1), resp.Router.UpdateCount)
	assert.Equal(t, server.router.Routes(), resp.Routes)
	assert.Equal(t, 0, resp.Memories)

	noIndex := setupTestServer(t, testServerOpts{noIndex: true})
	rec = do(t, noIndex, http.MethodGet, "/api/v1/stats", nil)
	assert.Equal(t, -1, decode[StatsResponse](t, rec).Memories)
}

func TestHandleAttention(t *testing.T) {
	server := setupTestServer(t, testServerOpts{})

	t.Run("single key returns its value", func(t *testing.T) {
		rec := do(t, server, http.MethodPost, "/api/v1/attention", AttentionRequest{
			Queries: [][]float32{{1, 0}, {0, 1}},
			Keys:    [][]float32{{0.5, 0.5}},
			Values:  [][]float32{{3, -2}},
		})
		require.Equal(t, http.StatusOK, rec.Code)

		resp := decode[AttentionResponse](t, rec)
		assert.Equal(t, "direct", resp.Path)
		assert.Equal(t, attention.BackendReference, resp.Backend)
		assert.Equal(t, [][]float32{{3, -2}, {3, -2}}, resp.Output)
	})

	t.Run("rejects mismatched shapes", func(t *testing.T) {
		rec := do(t, server, http.MethodPost, "/api/v1/attention", AttentionRequest{
			Queries: [][]float32{{1, 0}},
			Keys:    [][]float32{{1, 0}, {0, 1}},
			Values:  [][]float32{{1, 0}},
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "invalid attention input")
	})
}

func TestHandleAttentionConfig(t *testing.T) {
	server := setupTestServer(t, testServerOpts{})

	rec := do(t, server, http.MethodPatch, "/api/v1/attention/config", map[string]any{"blockSize": 32})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 32, decode[attention.Config](t, rec).BlockSize)

	rec = do(t, server, http.MethodGet, "/api/v1/attention/config", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 32, decode[attention.Config](t, rec).BlockSize)

	rec = do(t, server, http.MethodPatch, "/api/v1/attention/config", map[string]any{"temperature": 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleBenchmark(t *testing.T) {
	server := setupTestServer(t, testServerOpts{})

	rec := do(t, server, http.MethodPost, "/api/v1/benchmark", BenchmarkRequest{})
	require.Equal(t, http.StatusOK, rec.Code)
	res := decode[attention.BenchmarkResult](t, rec)
	assert.Equal(t, 16, res.NumVectors)
	assert.Equal(t, 4, res.Dimensions)

	rec = do(t, server, http.MethodGet, "/api/v1/benchmark/history", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]attention.BenchmarkResult](t, rec), 1)

	rec = do(t, server, http.MethodPost, "/api/v1/benchmark", BenchmarkRequest{NumVectors: maxBenchmarkVectors + 1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, server, http.MethodPost, "/api/v1/benchmark", BenchmarkRequest{NumVectors: -1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleMemories(t *testing.T) {
	server := setupTestServer(t, testServerOpts{})

	rec := do(t, server, http.MethodPost, "/api/v1/memories",
		MemoryRequest{ID: "m1", Content: "login fix", Route: "coder", Embedding: []float32{1, 0}})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "m1", decode[MemoryResponse](t, rec).ID)

	rec = do(t, server, http.MethodPost, "/api/v1/memories",
		MemoryRequest{Content: "docs", Embedding: []float32{0, 1}})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, server, http.MethodPost, "/api/v1/memories/search", SearchRequest{Embedding: []float32{1, 0.1}, K: 1})
	require.Equal(t, http.StatusOK, rec.Code)
	res := decode[retrieval.Result](t, rec)
	require.Len(t, res.Matches, 1)
	assert.Equal(t, "m1", res.Matches[0].Memory.ID)
	assert.Len(t, res.Context, 2)

	tests := []struct {
		name string
		path string
		body any
	}{
		{"unknown route", "/api/v1/memories", MemoryRequest{Content: "x", Route: "pilot", Embedding: []float32{1, 0}}},
		{"wrong dimension", "/api/v1/memories", MemoryRequest{Content: "x", Embedding: []float32{1}}},
		{"missing embedding", "/api/v1/memories", MemoryRequest{Content: "x"}},
		{"zero k", "/api/v1/memories/search", SearchRequest{Embedding: []float32{1, 0}}},
		{"k too large", "/api/v1/memories/search", SearchRequest{Embedding: []float32{1, 0}, K: maxSearchK + 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, server, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestHandleMemories_Disabled(t *testing.T) {
	server := setupTestServer(t, testServerOpts{noIndex: true})

	rec := do(t, server, http.MethodPost, "/api/v1/memories/search", SearchRequest{Embedding: []float32{1, 0}, K: 1})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestAttentionRateLimit(t *testing.T) {
	server := setupTestServer(t, testServerOpts{rps: 1})
	body := AttentionRequest{
		Queries: [][]float32{{1}},
		Keys:    [][]float32{{1}},
		Values:  [][]float32{{1}},
	}

	first := do(t, server, http.MethodPost, "/api/v1/attention", body)
	assert.Equal(t, http.StatusOK, first.Code)

	second := do(t, server, http.MethodPost, "/api/v1/attention", body)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)

	// Non-compute endpoints are not limited.
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, do(t, server, http.MethodGet, "/api/v1/stats", nil).Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "ctxroute_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Add(3)

	server := setupTestServer(t, testServerOpts{gatherer: reg})

	rec := do(t, server, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ctxroute_test_total 3")
}

func strPtr(s string) *string { return &s }
