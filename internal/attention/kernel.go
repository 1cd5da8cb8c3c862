package attention

import (
	"math"
)

// dot returns a·b with the loop unrolled by four. len(b) >= len(a).
func dot(a, b []float32) float32 {
	n := len(a)
	b = b[:n]
	var s0, s1, s2, s3 float32
	i := 0
	for ; i+4 <= n; i += 4 {
		s0 += a[i] * b[i]
		s1 += a[i+1] * b[i+1]
		s2 += a[i+2] * b[i+2]
		s3 += a[i+3] * b[i+3]
	}
	for ; i < n; i++ {
		s0 += a[i] * b[i]
	}
	return (s0 + s1) + (s2 + s3)
}

// dot4 returns the dot products of four queries with k, loading each
// element of k once. Every query must have len(k) elements.
func dot4(q0, q1, q2, q3, k []float32) (float32, float32, float32, float32) {
	n := len(k)
	q0, q1, q2, q3 = q0[:n], q1[:n], q2[:n], q3[:n]
	var s0, s1, s2, s3 float32
	for i, kv := range k {
		s0 += q0[i] * kv
		s1 += q1[i] * kv
		s2 += q2[i] * kv
		s3 += q3[i] * kv
	}
	return s0, s1, s2, s3
}

// axpy4 adds w_r*x to y_r for four rows, loading each element of x once.
func axpy4(w0, w1, w2, w3 float32, x, y0, y1, y2, y3 []float32) {
	n := len(x)
	y0, y1, y2, y3 = y0[:n], y1[:n], y2[:n], y3[:n]
	for i, xv := range x {
		y0[i] += w0 * xv
		y1[i] += w1 * xv
		y2[i] += w2 * xv
		y3[i] += w3 * xv
	}
}

// axpy adds alpha*x to y.
func axpy(alpha float32, x, y []float32) {
	y = y[:len(x)]
	for i, xv := range x {
		y[i] += alpha * xv
	}
}

// scaleVec multiplies x by alpha in place.
func scaleVec(alpha float32, x []float32) {
	for i := range x {
		x[i] *= alpha
	}
}

func exp32(x float32) float32 {
	return float32(math.Exp(float64(x)))
}

// scoreScale is 1 / (sqrt(D) * temperature).
func scoreScale(dim int, temperature float64) float32 {
	return float32(1 / (math.Sqrt(float64(dim)) * temperature))
}

var negInf = float32(math.Inf(-1))

// validate checks shapes and returns the shared dimension.
func validate(q, k, v [][]float32) (int, error) {
	switch {
	case len(q) == 0:
		return 0, inputErr("queries are empty")
	case len(k) == 0:
		return 0, inputErr("keys are empty")
	case len(v) == 0:
		return 0, inputErr("values are empty")
	case len(k) != len(v):
		return 0, inputErr("%d keys but %d values", len(k), len(v))
	}
	dim := len(q[0])
	if dim == 0 {
		return 0, inputErr("vectors have zero dimensions")
	}
	for name, set := range map[string][][]float32{"query": q, "key": k, "value": v} {
		for i, vec := range set {
			if len(vec) != dim {
				return 0, inputErr("%s %d has dimension %d, want %d", name, i, len(vec), dim)
			}
		}
	}
	return dim, nil
}

func newMatrix(rows, cols int) [][]float32 {
	backing := make([]float32, rows*cols)
	out := make([][]float32, rows)
	for i := range out {
		out[i] = backing[i*cols : (i+1)*cols : (i+1)*cols]
	}
	return out
}
