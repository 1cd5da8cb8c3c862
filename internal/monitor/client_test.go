package monitor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ctxhttp "github.com/fyrsmithlabs/ctxroute/internal/http"
)

func TestClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			_ = json.NewEncoder(w).Encode(ctxhttp.HealthResponse{Status: "ok", Version: "1.2.3"})
		case "/api/v1/stats":
			_ = json.NewEncoder(w).Encode(sampleStats(9))
		default:
			http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL + "/")
	assert.Equal(t, srv.URL, c.BaseURL())

	health, err := c.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "1.2.3", health.Version)

	stats, err := c.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(9), stats.Router.UpdateCount)
	assert.Equal(t, 7, stats.Memories)

	err = c.do(context.Background(), http.MethodGet, "/missing", nil, &struct{}{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
}

func TestClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewClient(url).Stats(context.Background())
	assert.Error(t, err)
}
