package attention

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// maxHistory bounds the benchmark history kept by an engine.
const maxHistory = 256

// BenchmarkResult compares the direct and tiled paths on random inputs.
type BenchmarkResult struct {
	NumVectors        int           `json:"numVectors"`
	Dimensions        int           `json:"dimensions"`
	Iterations        int           `json:"iterations"`
	BlockSize         int           `json:"blockSize"`
	Backend           string        `json:"backend"`
	DirectAvg         time.Duration `json:"directAvg"`
	TiledAvg          time.Duration `json:"tiledAvg"`
	Speedup           float64       `json:"speedup"`
	DirectMemoryBytes int64         `json:"directMemoryBytes"`
	TiledMemoryBytes  int64         `json:"tiledMemoryBytes"`
	MemoryReduction   float64       `json:"memoryReduction"`
	Timestamp         time.Time     `json:"timestamp"`
}

// Benchmark times both paths on numVectors random unit vectors of the given
// dimension, used as queries, keys and values. Untimed warmup runs precede
// the timed iterations. The result is appended to the engine history.
func (e *Engine) Benchmark(ctx context.Context, numVectors, dimensions, iterations int) (*BenchmarkResult, error) {
	switch {
	case numVectors <= 0:
		return nil, inputErr("numVectors must be positive, got %d", numVectors)
	case dimensions <= 0:
		return nil, inputErr("dimensions must be positive, got %d", dimensions)
	case iterations <= 0:
		return nil, inputErr("iterations must be positive, got %d", iterations)
	}

	cfg := e.Config()
	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	rng := rand.New(rand.NewPCG(seed, seed^0x5851f42d4c957f2d))
	q := RandomUnitVectors(rng, numVectors, dimensions)
	k := RandomUnitVectors(rng, numVectors, dimensions)
	v := RandomUnitVectors(rng, numVectors, dimensions)

	directAvg, err := e.timePath(ctx, cfg, PathDirect, q, k, v, iterations)
	if err != nil {
		return nil, err
	}
	tiledAvg, err := e.timePath(ctx, cfg, PathTiled, q, k, v, iterations)
	if err != nil {
		return nil, err
	}

	directMem := int64(numVectors) * int64(numVectors) * 4
	tiledMem := int64(cfg.BlockSize) * int64(cfg.BlockSize) * 4
	res := &BenchmarkResult{
		NumVectors:        numVectors,
		Dimensions:        dimensions,
		Iterations:        iterations,
		BlockSize:         cfg.BlockSize,
		Backend:           e.backend.Name(),
		DirectAvg:         directAvg,
		TiledAvg:          tiledAvg,
		Speedup:           ratio(float64(directAvg), float64(tiledAvg)),
		DirectMemoryBytes: directMem,
		TiledMemoryBytes:  tiledMem,
		MemoryReduction:   ratio(float64(directMem), float64(tiledMem)),
		Timestamp:         e.now(),
	}

	e.histMu.Lock()
	e.history = append(e.history, *res)
	if len(e.history) > maxHistory {
		e.history = append([]BenchmarkResult(nil), e.history[len(e.history)-maxHistory:]...)
	}
	e.histMu.Unlock()

	e.logger.Info("attention benchmark complete",
		zap.Int("num_vectors", numVectors),
		zap.Int("dimensions", dimensions),
		zap.Duration("direct_avg", directAvg),
		zap.Duration("tiled_avg", tiledAvg),
		zap.Float64("speedup", res.Speedup),
		zap.Float64("memory_reduction", res.MemoryReduction),
	)
	return res, nil
}

// History returns benchmark results, oldest first.
func (e *Engine) History() []BenchmarkResult {
	e.histMu.Lock()
	defer e.histMu.Unlock()
	return append([]BenchmarkResult(nil), e.history...)
}

func (e *Engine) timePath(ctx context.Context, cfg Config, path Path, q, k, v [][]float32, iterations int) (time.Duration, error) {
	for i := 0; i < cfg.Warmup; i++ {
		if _, err := e.run(ctx, cfg, path, q, k, v); err != nil {
			return 0, err
		}
	}
	var total time.Duration
	for i := 0; i < iterations; i++ {
		res, err := e.run(ctx, cfg, path, q, k, v)
		if err != nil {
			return 0, err
		}
		total += res.Elapsed
	}
	return total / time.Duration(iterations), nil
}

// RandomUnitVectors returns n vectors of dimension dim drawn uniformly from
// [-1, 1) per component and scaled to unit length.
func RandomUnitVectors(rng *rand.Rand, n, dim int) [][]float32 {
	out := newMatrix(n, dim)
	for _, row := range out {
		var norm float64
		for i := range row {
			x := rng.Float64()*2 - 1
			row[i] = float32(x)
			norm += x * x
		}
		if norm == 0 {
			row[0] = 1
			continue
		}
		scaleVec(float32(1/math.Sqrt(norm)), row)
	}
	return out
}

func ratio(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return a / b
}
