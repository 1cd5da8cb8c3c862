package router

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestBuffer(capacity int) *ReplayBuffer {
	return NewReplayBuffer(capacity, rand.New(rand.NewPCG(1, 2)))
}

func TestReplayBuffer_PushOverwritesOldest(t *testing.T) {
	b := newTestBuffer(3)
	for i := 0; i < 5; i++ {
		b.Push(Experience{Action: i})
	}

	assert.Equal(t, 3, b.Len())
	assert.Len(t, b.buf, 3)
	assert.Equal(t, uint64(5), b.Total())

	actions := map[int]bool{}
	for _, e := range b.Sample(3) {
		actions[e.Action] = true
	}
	assert.Equal(t, map[int]bool{2: true, 3: true, 4: true}, actions)
}

func TestReplayBuffer_SampleWithoutReplacement(t *testing.T) {
	b := newTestBuffer(100)
	for i := 0; i < 50; i++ {
		b.Push(Experience{Action: i})
	}

	for round := 0; round < 20; round++ {
		got := b.Sample(10)
		assert.Len(t, got, 10)
		seen := map[int]bool{}
		for _, e := range got {
			assert.False(t, seen[e.Action], "duplicate sample %d", e.Action)
			seen[e.Action] = true
		}
	}
}

func TestReplayBuffer_SampleMoreThanPopulated(t *testing.T) {
	b := newTestBuffer(10)
	assert.Empty(t, b.Sample(4))

	b.Push(Experience{Action: 1})
	b.Push(Experience{Action: 2})

	assert.Len(t, b.Sample(32), 2)
	assert.Empty(t, b.Sample(0))
}

func TestReplayBuffer_Clear(t *testing.T) {
	b := newTestBuffer(4)
	b.Push(Experience{Action: 1})
	b.Clear()

	assert.Equal(t, 0, b.Len())
	assert.Zero(t, b.Total())
	assert.Empty(t, b.Sample(1))
}

func TestNewReplayBuffer_MinimumCapacity(t *testing.T) {
	b := NewReplayBuffer(0, nil)
	assert.Len(t, b.buf, 1)
}
