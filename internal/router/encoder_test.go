package router

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

var stateKeyPattern = regexp.MustCompile(`^st_[0-9a-f]{16}$`)

func TestEncode_Deterministic(t *testing.T) {
	inputs := []string{"", "fix login bug", "Refactor the payment service", "  ünïcode   täsk "}
	for _, in := range inputs {
		first := Encoder{}.Encode(in)
		for i := 0; i < 10; i++ {
			assert.Equal(t, first, Encoder{}.Encode(in))
		}
		assert.Regexp(t, stateKeyPattern, first)
	}
}

func TestEncode_Normalization(t *testing.T) {
	assert.Equal(t, Encoder{}.Encode("fix login bug"), Encoder{}.Encode("  Fix   LOGIN\tbug\n"))
	assert.NotEqual(t, Encoder{}.Encode("fix login bug"), Encoder{}.Encode("fix logout bug"))
}

func TestEncode_FullString(t *testing.T) {
	prefix := "write integration tests for the billing module and then"
	assert.NotEqual(t, Encoder{}.Encode(prefix+" deploy"), Encoder{}.Encode(prefix+" document"))
}

func TestEncoder_Buckets(t *testing.T) {
	enc := NewEncoder(4)
	seen := map[string]bool{}
	for _, task := range []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"} {
		key := enc.Encode(task)
		assert.Regexp(t, stateKeyPattern, key)
		seen[key] = true
	}
	assert.LessOrEqual(t, len(seen), 4)
	assert.Equal(t, enc.Encode("fix login bug"), enc.Encode("fix login bug"))
}
