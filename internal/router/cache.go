package router

import (
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

type cacheEntry struct {
	decision Decision
	storedAt time.Time
	hits     uint32
}

// decisionCache is an LRU of greedy decisions with a TTL checked on read.
// Not safe for concurrent use on its own; the Router lock guards it.
type decisionCache struct {
	lru     *lru.Cache[string, *cacheEntry]
	ttl     time.Duration
	now     func() time.Time
	metrics *CacheMetrics

	hits   uint64
	misses uint64
}

func newDecisionCache(size int, ttl time.Duration, now func() time.Time, m *CacheMetrics) (*decisionCache, error) {
	c, err := lru.New[string, *cacheEntry](size)
	if err != nil {
		return nil, fmt.Errorf("creating decision cache: %w", err)
	}
	return &decisionCache{lru: c, ttl: ttl, now: now, metrics: m}, nil
}

// get returns the cached decision for key. Expired entries are removed
// and count as misses.
func (c *decisionCache) get(key string) (Decision, bool) {
	entry, ok := c.lru.Get(key)
	if ok && c.ttl > 0 && c.now().Sub(entry.storedAt) >= c.ttl {
		c.lru.Remove(key)
		c.metrics.setSize(c.lru.Len())
		ok = false
	}
	if !ok {
		c.misses++
		c.metrics.recordMiss()
		return Decision{}, false
	}
	entry.hits++
	c.hits++
	c.metrics.recordHit()
	return entry.decision.clone(), true
}

func (c *decisionCache) put(key string, d Decision) {
	if evicted := c.lru.Add(key, &cacheEntry{decision: d.clone(), storedAt: c.now()}); evicted {
		c.metrics.recordEviction()
	}
	c.metrics.setSize(c.lru.Len())
}

func (c *decisionCache) invalidate(keys ...string) {
	for _, k := range keys {
		c.lru.Remove(k)
	}
	c.metrics.setSize(c.lru.Len())
}

func (c *decisionCache) purge() {
	c.lru.Purge()
	c.metrics.setSize(0)
}

func (c *decisionCache) len() int {
	return c.lru.Len()
}
