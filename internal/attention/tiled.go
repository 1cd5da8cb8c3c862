package attention

// tileState is the online softmax state of one query block. scores is the
// query block x key block scratch tile.
type tileState struct {
	max    []float32
	sum    []float32
	acc    [][]float32
	scores [][]float32
}

// newTileState sizes a state for query blocks of up to rows queries and key
// blocks of up to cols keys.
func newTileState(rows, cols, dim int) *tileState {
	return &tileState{
		max:    make([]float32, rows),
		sum:    make([]float32, rows),
		acc:    newMatrix(rows, dim),
		scores: newMatrix(rows, cols),
	}
}

// reset prepares the state for a query block of rows queries.
func (st *tileState) reset(rows int) {
	st.max = st.max[:rows]
	st.sum = st.sum[:rows]
	for r := 0; r < rows; r++ {
		st.max[r] = negInf
		st.sum[r] = 0
		clear(st.acc[r])
	}
}

// process folds keys [k0, k1) into the state of queries [q0, q0+rows).
// Queries are taken four at a time so each key and value row is loaded
// once per group instead of once per query.
func (st *tileState) process(q, k, v [][]float32, q0, k0, k1 int, scale float32) {
	rows := len(st.max)
	width := k1 - k0

	r := 0
	for ; r+4 <= rows; r += 4 {
		a, b, c, d := q[q0+r], q[q0+r+1], q[q0+r+2], q[q0+r+3]
		sa, sb, sc, sd := st.scores[r][:width], st.scores[r+1][:width], st.scores[r+2][:width], st.scores[r+3][:width]
		for j := range width {
			s0, s1, s2, s3 := dot4(a, b, c, d, k[k0+j])
			sa[j], sb[j], sc[j], sd[j] = s0*scale, s1*scale, s2*scale, s3*scale
		}
	}
	for ; r < rows; r++ {
		query, row := q[q0+r], st.scores[r][:width]
		for j := range width {
			row[j] = dot(query, k[k0+j]) * scale
		}
	}

	for r := 0; r < rows; r++ {
		st.rescale(r, st.scores[r][:width])
	}

	r = 0
	for ; r+4 <= rows; r += 4 {
		sa, sb, sc, sd := st.scores[r], st.scores[r+1], st.scores[r+2], st.scores[r+3]
		ya, yb, yc, yd := st.acc[r], st.acc[r+1], st.acc[r+2], st.acc[r+3]
		for j := range width {
			axpy4(sa[j], sb[j], sc[j], sd[j], v[k0+j], ya, yb, yc, yd)
		}
	}
	for ; r < rows; r++ {
		row, acc := st.scores[r], st.acc[r]
		for j := range width {
			axpy(row[j], v[k0+j], acc)
		}
	}
}

// rescale updates the running max and sum of query r for a block of
// scores, rescales its accumulator when the max grows, and turns scores
// into unnormalized weights in place.
func (st *tileState) rescale(r int, scores []float32) {
	blockMax := negInf
	for _, s := range scores {
		if s > blockMax {
			blockMax = s
		}
	}

	oldMax := st.max[r]
	newMax := max(oldMax, blockMax)
	if oldMax != negInf && newMax != oldMax {
		correction := exp32(oldMax - newMax)
		st.sum[r] *= correction
		scaleVec(correction, st.acc[r])
	}
	st.max[r] = newMax

	sum := st.sum[r]
	for j, s := range scores {
		w := exp32(s - newMax)
		scores[j] = w
		sum += w
	}
	st.sum[r] = sum
}

// finalize writes normalized rows into out starting at q0.
func (st *tileState) finalize(out [][]float32, q0 int) {
	for r := range st.max {
		row := out[q0+r]
		if st.sum[r] == 0 {
			continue
		}
		inv := 1 / st.sum[r]
		for i, a := range st.acc[r] {
			row[i] = a * inv
		}
	}
}

// tiledBlock computes output rows for query block qb, folding key blocks in
// ascending order.
func tiledBlock(st *tileState, q, k, v [][]float32, qb [2]int, kBlocks [][2]int, scale float32, out [][]float32) {
	st.reset(qb[1] - qb[0])
	for _, kb := range kBlocks {
		st.process(q, k, v, qb[0], kb[0], kb[1], scale)
	}
	st.finalize(out, qb[0])
}

// blocks splits n items into [start, end) ranges of at most size.
func blocks(n, size int) [][2]int {
	out := make([][2]int, 0, (n+size-1)/size)
	for start := 0; start < n; start += size {
		out = append(out, [2]int{start, min(start+size, n)})
	}
	return out
}
