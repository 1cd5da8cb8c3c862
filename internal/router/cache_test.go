package router

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func TestDecisionCache_HitAndMiss(t *testing.T) {
	clock := newFakeClock()
	c, err := newDecisionCache(4, time.Minute, clock.Now, nil)
	require.NoError(t, err)

	_, ok := c.get("a")
	assert.False(t, ok)

	c.put("a", Decision{Route: "coder", Values: []float64{1, 0}})
	d, ok := c.get("a")
	require.True(t, ok)
	assert.Equal(t, "coder", d.Route)

	d.Values[0] = 42
	again, _ := c.get("a")
	assert.Equal(t, 1.0, again.Values[0], "cached decision must not alias callers")

	entry, ok := c.lru.Peek("a")
	require.True(t, ok)
	assert.Equal(t, uint32(2), entry.hits)

	assert.Equal(t, uint64(2), c.hits)
	assert.Equal(t, uint64(1), c.misses)
}

func TestDecisionCache_TTL(t *testing.T) {
	clock := newFakeClock()
	c, err := newDecisionCache(4, time.Minute, clock.Now, nil)
	require.NoError(t, err)

	c.put("a", Decision{Route: "coder"})
	clock.Advance(59 * time.Second)
	_, ok := c.get("a")
	assert.True(t, ok)

	clock.Advance(time.Second)
	_, ok = c.get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, c.len())
}

func TestDecisionCache_LRUEviction(t *testing.T) {
	c, err := newDecisionCache(2, time.Hour, newFakeClock().Now, NewCacheMetrics())
	require.NoError(t, err)

	c.put("a", Decision{Route: "a"})
	c.put("b", Decision{Route: "b"})
	_, _ = c.get("a")
	c.put("c", Decision{Route: "c"})

	_, ok := c.get("b")
	assert.False(t, ok, "least recently used entry evicted")
	_, ok = c.get("a")
	assert.True(t, ok)
	_, ok = c.get("c")
	assert.True(t, ok)
}

func TestDecisionCache_InvalidateAndPurge(t *testing.T) {
	c, err := newDecisionCache(4, time.Hour, newFakeClock().Now, nil)
	require.NoError(t, err)

	c.put("a", Decision{})
	c.put("b", Decision{})
	c.invalidate("a", "missing")
	assert.Equal(t, 1, c.len())

	c.purge()
	assert.Equal(t, 0, c.len())
}

func TestCacheMetrics_SizeGaugeIsLastWriter(t *testing.T) {
	metrics := &CacheMetrics{
		HitsTotal:      prometheus.NewCounter(prometheus.CounterOpts{Name: "hits"}),
		MissesTotal:    prometheus.NewCounter(prometheus.CounterOpts{Name: "misses"}),
		EvictionsTotal: prometheus.NewCounter(prometheus.CounterOpts{Name: "evictions"}),
		Size:           prometheus.NewGauge(prometheus.GaugeOpts{Name: "size"}),
	}
	a, err := newDecisionCache(8, time.Hour, newFakeClock().Now, metrics)
	require.NoError(t, err)
	b, err := newDecisionCache(8, time.Hour, newFakeClock().Now, metrics)
	require.NoError(t, err)

	a.put("x", Decision{Route: "x"})
	a.put("y", Decision{Route: "y"})
	assert.Equal(t, 2.0, gaugeValue(t, metrics.Size))

	b.put("z", Decision{Route: "z"})
	assert.Equal(t, 1.0, gaugeValue(t, metrics.Size))
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, g.Write(&m))
	return m.GetGauge().GetValue()
}
