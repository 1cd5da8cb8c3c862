// Package attention computes scaled dot-product attention over caller-owned
// float32 vector sets.
//
// Two paths produce the same output within float32 rounding:
//
//   - direct materializes the full N x M score matrix and applies a
//     max-subtracted softmax per query row.
//   - tiled walks key blocks and query blocks, keeping an online softmax
//     state (running max, running sum, weighted accumulator) per query, so
//     the score scratch is bounded by blockSize x blockSize.
//
// Engine.Attention picks tiled when N*M exceeds the configured threshold.
// The threshold is a performance heuristic only. Computation runs on a
// Backend chosen once at construction: the sequential reference backend or
// the parallel backend, which spreads independent query blocks over an
// errgroup without changing per-query accumulation order.
package attention
