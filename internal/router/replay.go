package router

import (
	"math/rand/v2"
	"time"
)

// Experience is one observed transition.
type Experience struct {
	StateKey     string    `json:"stateKey"`
	Action       int       `json:"action"`
	Reward       float64   `json:"reward"`
	NextStateKey *string   `json:"nextStateKey,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
	// Priority is |TD error| when pushed. Sampling ignores it.
	Priority float64 `json:"priority"`
}

// ReplayBuffer is a fixed-capacity circular buffer of experiences.
// Not safe for concurrent use; the Router serializes access.
type ReplayBuffer struct {
	buf   []Experience
	next  int
	size  int
	total uint64
	rng   *rand.Rand
}

// NewReplayBuffer creates a buffer holding at most capacity experiences.
// Capacities below 1 are raised to 1.
func NewReplayBuffer(capacity int, rng *rand.Rand) *ReplayBuffer {
	if capacity < 1 {
		capacity = 1
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &ReplayBuffer{
		buf: make([]Experience, capacity),
		rng: rng,
	}
}

// Push stores exp, overwriting the oldest experience once full.
func (b *ReplayBuffer) Push(exp Experience) {
	b.buf[b.next] = exp
	b.next = (b.next + 1) % len(b.buf)
	if b.size < len(b.buf) {
		b.size++
	}
	b.total++
}

// Sample draws min(n, Len()) distinct experiences uniformly at random.
func (b *ReplayBuffer) Sample(n int) []Experience {
	if n > b.size {
		n = b.size
	}
	if n <= 0 {
		return nil
	}

	idx := make([]int, b.size)
	for i := range idx {
		idx[i] = i
	}
	out := make([]Experience, n)
	for i := 0; i < n; i++ {
		j := i + b.rng.IntN(b.size-i)
		idx[i], idx[j] = idx[j], idx[i]
		out[i] = b.buf[idx[i]]
	}
	return out
}

// Len returns the number of populated slots.
func (b *ReplayBuffer) Len() int { return b.size }

// Total returns how many experiences were ever pushed.
func (b *ReplayBuffer) Total() uint64 { return b.total }

// Clear drops every stored experience and zeroes Total.
func (b *ReplayBuffer) Clear() {
	clear(b.buf)
	b.next = 0
	b.size = 0
	b.total = 0
}
