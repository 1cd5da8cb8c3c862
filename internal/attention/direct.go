package attention

// softmaxRow writes softmax(query·kᵀ·scale) into row and reports whether the
// row sum was nonzero.
func softmaxRow(query []float32, k [][]float32, scale float32, row []float32) bool {
	rowMax := negInf
	for j, key := range k {
		s := dot(query, key) * scale
		row[j] = s
		if s > rowMax {
			rowMax = s
		}
	}

	var sum float32
	for j, s := range row {
		w := exp32(s - rowMax)
		row[j] = w
		sum += w
	}
	if sum == 0 {
		return false
	}
	inv := 1 / sum
	for j := range row {
		row[j] *= inv
	}
	return true
}

// directRows computes output rows [q0, q1) from the full score matrix.
// scores holds one row of len(k) per query.
func directRows(q, k, v [][]float32, q0, q1 int, scale float32, scores [][]float32, out [][]float32) {
	for i := q0; i < q1; i++ {
		row := scores[i]
		if !softmaxRow(q[i], k, scale, row) {
			continue
		}
		dst := out[i]
		for j, w := range row {
			axpy(w, v[j], dst)
		}
	}
}
