package retrieval

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/ctxroute/internal/attention"
)

func newTestIndex(t *testing.T, path string) *Index {
	t.Helper()
	engine, err := attention.New(attention.Config{
		BlockSize:      4,
		Temperature:    0.1,
		TiledThreshold: 1024,
		Backend:        attention.BackendReference,
	})
	require.NoError(t, err)

	idx, err := NewIndex(Config{Path: path, Collection: "memories", Dimensions: 3}, engine, nil,
		WithClock(func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }))
	require.NoError(t, err)
	return idx
}

func unit(x, y, z float32) []float32 {
	n := float32(math.Sqrt(float64(x*x + y*y + z*z)))
	return []float32{x / n, y / n, z / n}
}

func seed(t *testing.T, idx *Index) {
	t.Helper()
	memories := []Memory{
		{ID: "login", Content: "fixed login redirect loop", Route: "coder", Embedding: unit(1, 0, 0)},
		{ID: "tests", Content: "added auth integration tests", Route: "tester", Embedding: unit(0, 1, 0)},
		{ID: "docs", Content: "documented token refresh", Route: "documenter", Embedding: unit(0, 0, 1),
			Metadata: map[string]string{"project": "auth"}},
	}
	for _, m := range memories {
		_, err := idx.Add(context.Background(), m)
		require.NoError(t, err)
	}
}

func TestNewIndex_InvalidConfig(t *testing.T) {
	engine, err := attention.New(attention.DefaultConfig())
	require.NoError(t, err)

	tests := []struct {
		name   string
		cfg    Config
		engine *attention.Engine
	}{
		{"missing engine", Config{Collection: "m", Dimensions: 3}, nil},
		{"missing collection", Config{Dimensions: 3}, engine},
		{"zero dimensions", Config{Collection: "m"}, engine},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewIndex(tt.cfg, tt.engine, nil)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestIndex_Add(t *testing.T) {
	idx := newTestIndex(t, "")

	id, err := idx.Add(context.Background(), Memory{Content: "no id", Embedding: unit(1, 1, 0)})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, 1, idx.Count())

	_, err = idx.Add(context.Background(), Memory{Content: "no vector"})
	assert.ErrorIs(t, err, ErrEmbeddingRequired)

	_, err = idx.Add(context.Background(), Memory{Content: "short", Embedding: []float32{1, 0}})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
	assert.Equal(t, 1, idx.Count())
}

func TestIndex_Retrieve(t *testing.T) {
	idx := newTestIndex(t, "")
	seed(t, idx)

	res, err := idx.Retrieve(context.Background(), unit(0.9, 0.3, 0.1), 2)
	require.NoError(t, err)
	require.Len(t, res.Matches, 2)

	top := res.Matches[0]
	assert.Equal(t, "login", top.Memory.ID)
	assert.Equal(t, "coder", top.Memory.Route)
	assert.Equal(t, "fixed login redirect loop", top.Memory.Content)
	assert.Equal(t, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), top.Memory.CreatedAt)
	assert.Equal(t, "tests", res.Matches[1].Memory.ID)
	assert.Greater(t, top.Similarity, res.Matches[1].Similarity)

	assert.Greater(t, top.Weight, res.Matches[1].Weight)
	assert.InDelta(t, 1.0, float64(top.Weight+res.Matches[1].Weight), 1e-5)

	require.Len(t, res.Context, 3)
	assert.Greater(t, res.Context[0], res.Context[1])
	assert.InDelta(t, 0.0, res.Context[2], 1e-6)
}

func TestIndex_RetrieveIgnoresQueryMagnitude(t *testing.T) {
	idx := newTestIndex(t, "")
	_, err := idx.Add(context.Background(), Memory{ID: "a", Content: "a", Embedding: []float32{3, 0, 0}})
	require.NoError(t, err)
	_, err = idx.Add(context.Background(), Memory{ID: "b", Content: "b", Embedding: []float32{0, 0.5, 0}})
	require.NoError(t, err)

	small, err := idx.Retrieve(context.Background(), unit(0.8, 0.6, 0), 2)
	require.NoError(t, err)
	large, err := idx.Retrieve(context.Background(), []float32{8, 6, 0}, 2)
	require.NoError(t, err)

	require.Len(t, large.Matches, 2)
	for n := range small.Matches {
		assert.Equal(t, small.Matches[n].Memory.ID, large.Matches[n].Memory.ID)
		assert.InDelta(t, float64(small.Matches[n].Weight), float64(large.Matches[n].Weight), 1e-5)
	}
	assert.InDeltaSlice(t, small.Context, large.Context, 1e-5)

	for _, m := range large.Matches {
		var norm float64
		for _, x := range m.Memory.Embedding {
			norm += float64(x) * float64(x)
		}
		assert.InDelta(t, 1.0, norm, 1e-5, "stored embeddings are unit length")
	}
}

func TestUnitVector(t *testing.T) {
	in := []float32{3, 4}
	assert.InDeltaSlice(t, []float32{0.6, 0.8}, unitVector(in), 1e-6)
	assert.Equal(t, []float32{3, 4}, in)
	assert.Equal(t, []float32{0, 0}, unitVector([]float32{0, 0}))
}

func TestIndex_RetrieveCapsK(t *testing.T) {
	idx := newTestIndex(t, "")
	seed(t, idx)

	res, err := idx.Retrieve(context.Background(), unit(0, 0, 1), 10)
	require.NoError(t, err)
	require.Len(t, res.Matches, 3)
	assert.Equal(t, "docs", res.Matches[0].Memory.ID)
	assert.Equal(t, map[string]string{"project": "auth"}, res.Matches[0].Memory.Metadata)
}

func TestIndex_RetrieveEmpty(t *testing.T) {
	idx := newTestIndex(t, "")

	res, err := idx.Retrieve(context.Background(), unit(1, 0, 0), 3)
	require.NoError(t, err)
	assert.Empty(t, res.Matches)
	assert.Nil(t, res.Context)
}

func TestIndex_RetrieveInvalid(t *testing.T) {
	idx := newTestIndex(t, "")
	seed(t, idx)

	_, err := idx.Retrieve(context.Background(), unit(1, 0, 0), 0)
	assert.ErrorIs(t, err, ErrInvalidK)

	_, err = idx.Retrieve(context.Background(), []float32{1, 0}, 1)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestIndex_Delete(t *testing.T) {
	idx := newTestIndex(t, "")
	seed(t, idx)

	require.NoError(t, idx.Delete(context.Background(), "login"))
	assert.Equal(t, 2, idx.Count())
	require.NoError(t, idx.Delete(context.Background()))

	res, err := idx.Retrieve(context.Background(), unit(1, 0, 0), 1)
	require.NoError(t, err)
	require.Len(t, res.Matches, 1)
	assert.NotEqual(t, "login", res.Matches[0].Memory.ID)
}

func TestIndex_Persistent(t *testing.T) {
	dir := t.TempDir()
	idx := newTestIndex(t, dir)
	seed(t, idx)

	reopened := newTestIndex(t, dir)
	assert.Equal(t, 3, reopened.Count())

	res, err := reopened.Retrieve(context.Background(), unit(0, 1, 0), 1)
	require.NoError(t, err)
	require.Len(t, res.Matches, 1)
	assert.Equal(t, "tests", res.Matches[0].Memory.ID)
}
