package monitor

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/fyrsmithlabs/ctxroute/internal/attention"
	ctxhttp "github.com/fyrsmithlabs/ctxroute/internal/http"
	"github.com/fyrsmithlabs/ctxroute/internal/router"
)

func TestRenderDecision(t *testing.T) {
	out := RenderDecision("fix login bug", router.Decision{
		Route:        "coder",
		Confidence:   0.61,
		StateKey:     "st_00000000000000ff",
		Explored:     true,
		Alternatives: []router.Alternative{{Route: "debugger", Value: 0.05}},
	})

	assert.Contains(t, out, "fix login bug")
	assert.Contains(t, out, "coder")
	assert.Contains(t, out, "61.0%")
	assert.Contains(t, out, "explored")
	assert.Contains(t, out, "debugger")
}

func TestRenderStats(t *testing.T) {
	out := RenderStats(sampleStats(4))
	assert.Contains(t, out, "Learner")
	assert.Contains(t, out, "0.4200")
	assert.Contains(t, out, "Memories")
	assert.Contains(t, out, "coder, tester")

	noMem := sampleStats(4)
	noMem.Memories = -1
	assert.NotContains(t, RenderStats(noMem), "Memories")

	assert.Contains(t, RenderStats(ctxhttp.StatsResponse{Memories: -1}), "0.0%")
}

func TestRenderBenchmark(t *testing.T) {
	out := RenderBenchmark(attention.BenchmarkResult{
		NumVectors:        512,
		Dimensions:        384,
		Iterations:        10,
		BlockSize:         64,
		Backend:           "reference",
		DirectAvg:         12 * time.Millisecond,
		TiledAvg:          8 * time.Millisecond,
		Speedup:           1.5,
		DirectMemoryBytes: 512 * 512 * 4,
		TiledMemoryBytes:  64 * 64 * 4,
		MemoryReduction:   64,
	})

	assert.Contains(t, out, "512 x 384")
	assert.Contains(t, out, "12.0ms")
	assert.Contains(t, out, "1.50x")
	assert.Contains(t, out, "1.0 MB")
	assert.Contains(t, out, "16.0 KB")
	assert.Contains(t, out, "64.0x")
}

func TestRenderError(t *testing.T) {
	out := RenderError("import failed", errors.New("bad version"))
	assert.Contains(t, out, "import failed")
	assert.Contains(t, out, "bad version")
}
