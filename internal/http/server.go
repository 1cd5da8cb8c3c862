// Package http provides the HTTP API for ctxroute.
package http

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/ctxroute/internal/attention"
	"github.com/fyrsmithlabs/ctxroute/internal/logging"
	"github.com/fyrsmithlabs/ctxroute/internal/retrieval"
	"github.com/fyrsmithlabs/ctxroute/internal/router"
	"github.com/fyrsmithlabs/ctxroute/internal/telemetry"
)

// Request limits for compute endpoints.
const (
	maxTaskLen          = 8192
	maxBenchmarkVectors = 4096
	maxBenchmarkDims    = 4096
	maxBenchmarkIters   = 100
	maxSearchK          = 100
)

// Server provides HTTP endpoints for ctxroute.
type Server struct {
	echo      *echo.Echo
	router    *router.Router
	engine    *attention.Engine
	index     *retrieval.Index
	telemetry *telemetry.Telemetry
	logger    *zap.Logger
	config    *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host    string
	Port    int
	Version string

	// AttentionRPS limits compute endpoints per client IP. 0 disables.
	AttentionRPS float64

	// Benchmark defaults for zero request fields.
	BenchmarkVectors    int
	BenchmarkDimensions int
	BenchmarkIterations int
}

// Deps are the components served over HTTP. Router and Engine are
// required; Index and Telemetry are optional.
type Deps struct {
	Router    *router.Router
	Engine    *attention.Engine
	Index     *retrieval.Index
	Telemetry *telemetry.Telemetry

	// Metrics records request metrics. Nil uses the global meter provider.
	Metrics *HTTPMetrics

	// Gatherer backs GET /metrics. Nil uses the Prometheus default registry.
	Gatherer prometheus.Gatherer
}

// NewServer creates a new HTTP server.
func NewServer(deps Deps, logger *zap.Logger, cfg *Config) (*Server, error) {
	if deps.Router == nil {
		return nil, fmt.Errorf("router cannot be nil")
	}
	if deps.Engine == nil {
		return nil, fmt.Errorf("attention engine cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host:                "localhost",
			Port:                9191,
			AttentionRPS:        20,
			BenchmarkVectors:    512,
			BenchmarkDimensions: 384,
			BenchmarkIterations: 10,
		}
	}
	if deps.Metrics == nil {
		deps.Metrics = NewHTTPMetrics(nil, logger)
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			requestID := c.Response().Header().Get(echo.HeaderXRequestID)
			req := c.Request()
			c.SetRequest(req.WithContext(logging.WithRequestID(req.Context(), requestID)))

			err := next(c)

			logger.Info("http request",
				zap.String("method", req.Method),
				zap.String("uri", req.RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", requestID),
			)
			return err
		}
	})
	e.Use(deps.Metrics.MetricsMiddleware())

	s := &Server{
		echo:      e,
		router:    deps.Router,
		engine:    deps.Engine,
		index:     deps.Index,
		telemetry: deps.Telemetry,
		logger:    logger,
		config:    cfg,
	}
	s.registerRoutes(deps.Gatherer)

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes(gatherer prometheus.Gatherer) {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/route", s.handleRoute)
	v1.POST("/feedback", s.handleFeedback)
	v1.GET("/stats", s.handleStats)
	v1.GET("/attention/config", s.handleAttentionConfig)
	v1.PATCH("/attention/config", s.handleAttentionPatch)
	v1.GET("/benchmark/history", s.handleBenchmarkHistory)
	v1.POST("/memories", s.handleAddMemory)

	var limit []echo.MiddlewareFunc
	if s.config.AttentionRPS > 0 {
		limit = append(limit, middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
			Store: middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
				Rate:      rate.Limit(s.config.AttentionRPS),
				Burst:     max(1, int(math.Ceil(s.config.AttentionRPS))),
				ExpiresIn: 3 * time.Minute,
			}),
		}))
	}
	v1.POST("/attention", s.handleAttention, limit...)
	v1.POST("/benchmark", s.handleBenchmark, limit...)
	v1.POST("/memories/search", s.handleSearch, limit...)
}

// handleHealth reports liveness and telemetry state.
func (s *Server) handleHealth(c echo.Context) error {
	resp := HealthResponse{Status: "ok", Version: s.config.Version}
	if s.telemetry != nil {
		h := s.telemetry.Health()
		switch {
		case h.Degraded:
			resp.Telemetry = "degraded: " + h.Reason
		case s.telemetry.IsEnabled():
			resp.Telemetry = "enabled"
		default:
			resp.Telemetry = "disabled"
		}
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleRoute(c echo.Context) error {
	var req RouteRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid route request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validateTask("task", req.Task); err != nil {
		return err
	}

	d := s.router.Route(c.Request().Context(), *req.Task, req.Explore)
	return c.JSON(http.StatusOK, d)
}

func (s *Server) handleFeedback(c echo.Context) error {
	var req FeedbackRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid feedback request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validateTask("task", req.Task); err != nil {
		return err
	}
	if !s.knownRoute(req.Route) {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("unknown route %q", req.Route))
	}
	if math.IsNaN(req.Reward) || math.IsInf(req.Reward, 0) {
		return echo.NewHTTPError(http.StatusBadRequest, "reward must be finite")
	}

	ctx := c.Request().Context()
	var td float64
	if req.NextTask != nil {
		if err := validateTask("nextTask", req.NextTask); err != nil {
			return err
		}
		td = s.router.UpdateTransition(ctx, *req.Task, req.Route, req.Reward, *req.NextTask)
	} else {
		td = s.router.Update(ctx, *req.Task, req.Route, req.Reward)
	}
	return c.JSON(http.StatusOK, FeedbackResponse{TDError: td, Stats: s.router.Stats()})
}

func (s *Server) handleStats(c echo.Context) error {
	resp := StatsResponse{
		Router:   s.router.Stats(),
		Routes:   s.router.Routes(),
		Memories: -1,
	}
	if s.index != nil {
		resp.Memories = s.index.Count()
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleAttention(c echo.Context) error {
	var req AttentionRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid attention request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	res, err := s.engine.Attention(c.Request().Context(), req.Queries, req.Keys, req.Values)
	if err != nil {
		return s.computeError(err)
	}
	return c.JSON(http.StatusOK, AttentionResponse{
		Output:    res.Output,
		Path:      string(res.Path),
		Backend:   res.Backend,
		ElapsedMs: float64(res.Elapsed) / float64(time.Millisecond),
	})
}

func (s *Server) handleAttentionConfig(c echo.Context) error {
	return c.JSON(http.StatusOK, s.engine.Config())
}

func (s *Server) handleAttentionPatch(c echo.Context) error {
	var patch attention.ConfigPatch
	if err := c.Bind(&patch); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	cfg, err := s.engine.SetConfig(patch)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, cfg)
}

func (s *Server) handleBenchmark(c echo.Context) error {
	var req BenchmarkRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.NumVectors == 0 {
		req.NumVectors = s.config.BenchmarkVectors
	}
	if req.Dimensions == 0 {
		req.Dimensions = s.config.BenchmarkDimensions
	}
	if req.Iterations == 0 {
		req.Iterations = s.config.BenchmarkIterations
	}
	if req.NumVectors > maxBenchmarkVectors || req.Dimensions > maxBenchmarkDims || req.Iterations > maxBenchmarkIters {
		return echo.NewHTTPError(http.StatusBadRequest,
			fmt.Sprintf("benchmark limited to %d vectors, %d dimensions, %d iterations",
				maxBenchmarkVectors, maxBenchmarkDims, maxBenchmarkIters))
	}

	res, err := s.engine.Benchmark(c.Request().Context(), req.NumVectors, req.Dimensions, req.Iterations)
	if err != nil {
		return s.computeError(err)
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) handleBenchmarkHistory(c echo.Context) error {
	return c.JSON(http.StatusOK, s.engine.History())
}

func (s *Server) handleAddMemory(c echo.Context) error {
	if s.index == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "memory retrieval is disabled")
	}
	var req MemoryRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Route != "" && !s.knownRoute(req.Route) {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("unknown route %q", req.Route))
	}

	id, err := s.index.Add(c.Request().Context(), retrieval.Memory{
		ID:        req.ID,
		Content:   req.Content,
		Route:     req.Route,
		Embedding: req.Embedding,
		Metadata:  req.Metadata,
	})
	if err != nil {
		return s.computeError(err)
	}
	return c.JSON(http.StatusCreated, MemoryResponse{ID: id})
}

func (s *Server) handleSearch(c echo.Context) error {
	if s.index == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "memory retrieval is disabled")
	}
	var req SearchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.K > maxSearchK {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("k cannot exceed %d", maxSearchK))
	}

	res, err := s.index.Retrieve(c.Request().Context(), req.Embedding, req.K)
	if err != nil {
		return s.computeError(err)
	}
	return c.JSON(http.StatusOK, res)
}

// computeError maps component errors to HTTP errors.
func (s *Server) computeError(err error) error {
	switch {
	case errors.Is(err, attention.ErrInvalidInput),
		errors.Is(err, retrieval.ErrDimensionMismatch),
		errors.Is(err, retrieval.ErrInvalidK),
		errors.Is(err, retrieval.ErrEmbeddingRequired):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return echo.NewHTTPError(http.StatusServiceUnavailable, "request canceled")
	default:
		s.logger.Error("request failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) knownRoute(route string) bool {
	for _, r := range s.router.Routes() {
		if r == route {
			return true
		}
	}
	return false
}

// validateTask requires the field to be present. Empty text is a valid,
// addressable state.
func validateTask(field string, task *string) error {
	if task == nil {
		return echo.NewHTTPError(http.StatusBadRequest, field+" field is required")
	}
	if len(*task) > maxTaskLen {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("%s exceeds %d bytes", field, maxTaskLen))
	}
	return nil
}

// Start starts the HTTP server. It returns http.ErrServerClosed after Shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
