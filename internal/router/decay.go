package router

import (
	"fmt"
	"math"
)

// DecayType selects the exploration decay law.
type DecayType string

const (
	DecayLinear      DecayType = "linear"
	DecayExponential DecayType = "exponential"
	DecayCosine      DecayType = "cosine"
)

// ParseDecayType validates s as a DecayType.
func ParseDecayType(s string) (DecayType, error) {
	switch d := DecayType(s); d {
	case DecayLinear, DecayExponential, DecayCosine:
		return d, nil
	default:
		return "", fmt.Errorf("unknown decay type %q", s)
	}
}

// Epsilon returns the exploration rate after step updates. The result is
// non-increasing in step and clamped to [final, initial].
func Epsilon(kind DecayType, initial, final float64, decaySteps int, step uint64) float64 {
	if decaySteps <= 0 {
		return final
	}
	progress := float64(step) / float64(decaySteps)

	var eps float64
	switch kind {
	case DecayLinear:
		eps = math.Max(final, initial-progress)
	case DecayCosine:
		eps = final + 0.5*(initial-final)*(1+math.Cos(math.Pi*math.Min(1, progress)))
	default:
		eps = final + (initial-final)*math.Exp(-progress)
	}
	return math.Min(initial, math.Max(final, eps))
}
