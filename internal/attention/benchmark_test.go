package attention

import (
	"context"
	"math"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngine_Benchmark(t *testing.T) {
	e := newTestEngine(t, func(c *Config) { c.BlockSize = 16 })

	res, err := e.Benchmark(context.Background(), 64, 8, 2)
	require.NoError(t, err)

	assert.Equal(t, 64, res.NumVectors)
	assert.Equal(t, 8, res.Dimensions)
	assert.Equal(t, 2, res.Iterations)
	assert.Equal(t, 16, res.BlockSize)
	assert.Equal(t, BackendReference, res.Backend)
	assert.Equal(t, int64(64*64*4), res.DirectMemoryBytes)
	assert.Equal(t, int64(16*16*4), res.TiledMemoryBytes)
	assert.InDelta(t, 16.0, res.MemoryReduction, 1e-9)
	assert.GreaterOrEqual(t, res.DirectAvg, time.Duration(0))
	assert.GreaterOrEqual(t, res.TiledAvg, time.Duration(0))
	assert.False(t, res.Timestamp.IsZero())

	history := e.History()
	require.Len(t, history, 1)
	assert.Equal(t, *res, history[0])
}

func TestEngine_BenchmarkTiledNotSlower(t *testing.T) {
	if testing.Short() {
		t.Skip("timing test")
	}
	e := newTestEngine(t, func(c *Config) { c.BlockSize = 64 })

	// Best of three runs keeps scheduler noise from failing the check.
	best := 0.0
	for i := 0; i < 3 && best < 1; i++ {
		res, err := e.Benchmark(context.Background(), 512, 128, 3)
		require.NoError(t, err)
		best = max(best, res.Speedup)
	}
	assert.GreaterOrEqual(t, best, 1.0)
}

func TestEngine_BenchmarkInvalid(t *testing.T) {
	tests := []struct {
		name          string
		n, dim, iters int
	}{
		{"zero vectors", 0, 8, 1},
		{"zero dimensions", 8, 0, 1},
		{"zero iterations", 8, 8, 0},
		{"negative vectors", -1, 8, 1},
	}
	e := newTestEngine(t, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Benchmark(context.Background(), tt.n, tt.dim, tt.iters)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
	assert.Empty(t, e.History())
}

func TestEngine_BenchmarkFakeClock(t *testing.T) {
	var tick int64
	clock := func() time.Time {
		tick++
		return time.Unix(0, tick*int64(time.Millisecond))
	}
	cfg := testConfig()
	cfg.Warmup = 0
	e, err := New(cfg, WithClock(clock))
	require.NoError(t, err)

	res, err := e.Benchmark(context.Background(), 4, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, time.Millisecond, res.DirectAvg)
	assert.Equal(t, time.Millisecond, res.TiledAvg)
	assert.InDelta(t, 1.0, res.Speedup, 1e-9)
}

func TestEngine_HistoryBounded(t *testing.T) {
	e := newTestEngine(t, func(c *Config) { c.Warmup = 0 })
	for i := 0; i < maxHistory+5; i++ {
		_, err := e.Benchmark(context.Background(), 2, 2, 1)
		require.NoError(t, err)
	}
	assert.Len(t, e.History(), maxHistory)
}

func TestRandomUnitVectors(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	vecs := RandomUnitVectors(rng, 10, 6)
	require.Len(t, vecs, 10)
	for _, v := range vecs {
		require.Len(t, v, 6)
		var norm float64
		for _, x := range v {
			norm += float64(x) * float64(x)
		}
		assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-5)
	}

	again := RandomUnitVectors(rand.New(rand.NewPCG(1, 2)), 10, 6)
	assert.Equal(t, vecs, again)
}
