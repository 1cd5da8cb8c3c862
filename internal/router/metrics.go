package router

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalCacheMetrics *CacheMetrics
	cacheMetricsOnce   sync.Once
)

// CacheMetrics holds Prometheus metrics for the decision cache.
type CacheMetrics struct {
	HitsTotal      prometheus.Counter
	MissesTotal    prometheus.Counter
	EvictionsTotal prometheus.Counter
	Size           prometheus.Gauge
}

// NewCacheMetrics registers the decision cache metrics once per process.
//
// Metrics:
//   - ctxroute_decision_cache_hits_total
//   - ctxroute_decision_cache_misses_total (includes expired entries)
//   - ctxroute_decision_cache_evictions_total (capacity evictions only)
//   - ctxroute_decision_cache_size
//
// The collectors are shared by every Router in the process. Counters sum
// across routers, but the size gauge holds whatever the last router to
// touch its cache wrote. Pass per-router collectors with WithCacheMetrics
// when several routers run side by side.
func NewCacheMetrics() *CacheMetrics {
	cacheMetricsOnce.Do(func() {
		globalCacheMetrics = &CacheMetrics{
			HitsTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "ctxroute_decision_cache_hits_total",
				Help: "Total number of greedy route decisions served from cache",
			}),
			MissesTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "ctxroute_decision_cache_misses_total",
				Help: "Total number of greedy route lookups not served from cache",
			}),
			EvictionsTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "ctxroute_decision_cache_evictions_total",
				Help: "Total number of decisions evicted to stay within capacity",
			}),
			Size: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "ctxroute_decision_cache_size",
				Help: "Number of cached decisions in the router that last changed its cache",
			}),
		}
	})
	return globalCacheMetrics
}

func (m *CacheMetrics) recordHit() {
	if m != nil {
		m.HitsTotal.Inc()
	}
}

func (m *CacheMetrics) recordMiss() {
	if m != nil {
		m.MissesTotal.Inc()
	}
}

func (m *CacheMetrics) recordEviction() {
	if m != nil {
		m.EvictionsTotal.Inc()
	}
}

func (m *CacheMetrics) setSize(n int) {
	if m != nil {
		m.Size.Set(float64(n))
	}
}
