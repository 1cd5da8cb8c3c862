package http

import (
	"github.com/fyrsmithlabs/ctxroute/internal/retrieval"
	"github.com/fyrsmithlabs/ctxroute/internal/router"
)

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version,omitempty"`
	Telemetry string `json:"telemetry,omitempty"`
}

// RouteRequest is the request body for POST /api/v1/route.
// Task is required; the empty string is a valid task.
type RouteRequest struct {
	Task    *string `json:"task"`
	Explore bool    `json:"explore"`
}

// FeedbackRequest is the request body for POST /api/v1/feedback.
// Task is required; the empty string is a valid task.
type FeedbackRequest struct {
	Task     *string `json:"task"`
	Route    string  `json:"route"`
	Reward   float64 `json:"reward"`
	NextTask *string `json:"nextTask,omitempty"`
}

// FeedbackResponse is the response body for POST /api/v1/feedback.
type FeedbackResponse struct {
	TDError float64      `json:"tdError"`
	Stats   router.Stats `json:"stats"`
}

// StatsResponse is the response body for GET /api/v1/stats.
type StatsResponse struct {
	Router   router.Stats `json:"router"`
	Routes   []string     `json:"routes"`
	Memories int          `json:"memories"`
}

// AttentionRequest is the request body for POST /api/v1/attention.
type AttentionRequest struct {
	Queries [][]float32 `json:"queries"`
	Keys    [][]float32 `json:"keys"`
	Values  [][]float32 `json:"values"`
}

// AttentionResponse is the response body for POST /api/v1/attention.
type AttentionResponse struct {
	Output    [][]float32 `json:"output"`
	Path      string      `json:"path"`
	Backend   string      `json:"backend"`
	ElapsedMs float64     `json:"elapsedMs"`
}

// BenchmarkRequest is the request body for POST /api/v1/benchmark.
// Zero fields take the configured defaults.
type BenchmarkRequest struct {
	NumVectors int `json:"numVectors"`
	Dimensions int `json:"dimensions"`
	Iterations int `json:"iterations"`
}

// MemoryRequest is the request body for POST /api/v1/memories.
type MemoryRequest struct {
	ID        string            `json:"id,omitempty"`
	Content   string            `json:"content"`
	Route     string            `json:"route,omitempty"`
	Embedding []float32         `json:"embedding"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// MemoryResponse is the response body for POST /api/v1/memories.
type MemoryResponse struct {
	ID string `json:"id"`
}

// SearchRequest is the request body for POST /api/v1/memories/search.
type SearchRequest struct {
	Embedding []float32 `json:"embedding"`
	K         int       `json:"k"`
}

// SearchResponse is the response body for POST /api/v1/memories/search.
type SearchResponse = retrieval.Result
