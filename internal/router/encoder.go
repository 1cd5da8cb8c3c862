package router

import (
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// StateKeyPrefix prefixes every encoded state key.
const StateKeyPrefix = "st_"

// Encoder maps task text to state keys. The zero value uses the full
// 64-bit hash space.
type Encoder struct {
	buckets uint64
}

// NewEncoder returns an encoder that reduces hashes modulo buckets.
// A bucket count of 0 leaves the key space unbounded.
func NewEncoder(buckets uint64) Encoder {
	return Encoder{buckets: buckets}
}

// Encode returns the state key for text. Case and runs of whitespace do
// not affect the key. Collisions are accepted: colliding tasks share a row.
func (e Encoder) Encode(text string) string {
	h := xxhash.Sum64String(normalize(text))
	if e.buckets > 0 {
		h %= e.buckets
	}
	return fmt.Sprintf("%s%016x", StateKeyPrefix, h)
}

func normalize(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}
