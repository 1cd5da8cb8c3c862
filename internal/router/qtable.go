package router

import (
	"math"
	"sort"
	"time"
)

// pruneRatio is the fraction of MaxStates kept after pruning.
const pruneRatio = 0.8

// QEntry holds the learned values for one state.
type QEntry struct {
	Values     []float64
	Visits     uint32
	LastUpdate time.Time

	// seq orders entries that share a LastUpdate.
	seq uint64
}

// qTable maps state keys to entries. Not safe for concurrent use.
type qTable struct {
	entries    map[string]*QEntry
	numActions int
	seq        uint64
}

func newQTable(numActions int) *qTable {
	return &qTable{
		entries:    make(map[string]*QEntry),
		numActions: numActions,
	}
}

func (t *qTable) len() int {
	return len(t.entries)
}

func (t *qTable) get(key string) (*QEntry, bool) {
	e, ok := t.entries[key]
	return e, ok
}

func (t *qTable) getOrCreate(key string) *QEntry {
	if e, ok := t.entries[key]; ok {
		return e
	}
	e := &QEntry{Values: make([]float64, t.numActions)}
	t.entries[key] = e
	return e
}

// values returns a copy of the values for key, or zeros when absent.
// Absent keys are not created.
func (t *qTable) values(key string) []float64 {
	out := make([]float64, t.numActions)
	if e, ok := t.entries[key]; ok {
		copy(out, e.Values)
	}
	return out
}

// maxValue returns max Q(key), or 0 for an absent key.
func (t *qTable) maxValue(key string) float64 {
	e, ok := t.entries[key]
	if !ok {
		return 0
	}
	best := math.Inf(-1)
	for _, v := range e.Values {
		if v > best {
			best = v
		}
	}
	return best
}

// touch records a visit at now.
func (t *qTable) touch(e *QEntry, now time.Time) {
	t.seq++
	e.Visits++
	e.LastUpdate = now
	e.seq = t.seq
}

// put inserts an entry as-is, assigning it the next recency sequence.
func (t *qTable) put(key string, e *QEntry) {
	t.seq++
	e.seq = t.seq
	t.entries[key] = e
}

// prune evicts the least recently updated entries once the table exceeds
// maxStates, down to floor(pruneRatio*maxStates). keep is never evicted.
// It returns the evicted keys.
func (t *qTable) prune(maxStates int, keep string) []string {
	if maxStates <= 0 || len(t.entries) <= maxStates {
		return nil
	}
	target := int(math.Floor(pruneRatio * float64(maxStates)))

	keys := make([]string, 0, len(t.entries))
	for k := range t.entries {
		if k != keep {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := t.entries[keys[i]], t.entries[keys[j]]
		if !a.LastUpdate.Equal(b.LastUpdate) {
			return a.LastUpdate.Before(b.LastUpdate)
		}
		return a.seq < b.seq
	})

	var evicted []string
	for _, k := range keys {
		if len(t.entries) <= target {
			break
		}
		delete(t.entries, k)
		evicted = append(evicted, k)
	}
	return evicted
}
