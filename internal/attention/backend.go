package attention

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Backend computes both attention paths. Implementations must agree on
// output within float32 rounding. Inputs are validated by the engine.
type Backend interface {
	Name() string
	Direct(ctx context.Context, q, k, v [][]float32, scale float32) ([][]float32, error)
	Tiled(ctx context.Context, q, k, v [][]float32, blockSize int, scale float32) ([][]float32, error)
}

// NewBackend returns the backend registered under name.
func NewBackend(name string, workers int) (Backend, error) {
	switch name {
	case "", BackendReference:
		return referenceBackend{}, nil
	case BackendParallel:
		if workers <= 0 {
			workers = runtime.GOMAXPROCS(0)
		}
		return &parallelBackend{workers: workers}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, name)
	}
}

// referenceBackend runs single-threaded. The tiled walk puts query blocks
// in the outer loop and key blocks in the inner loop, so one block's
// running state stays hot while the keys stream past it.
type referenceBackend struct{}

func (referenceBackend) Name() string { return BackendReference }

func (referenceBackend) Direct(ctx context.Context, q, k, v [][]float32, scale float32) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := newMatrix(len(q), len(v[0]))
	directRows(q, k, v, 0, len(q), scale, newMatrix(len(q), len(k)), out)
	return out, nil
}

func (referenceBackend) Tiled(ctx context.Context, q, k, v [][]float32, blockSize int, scale float32) ([][]float32, error) {
	dim := len(v[0])
	out := newMatrix(len(q), dim)
	kBlocks := blocks(len(k), blockSize)
	st := newTileState(min(blockSize, len(q)), min(blockSize, len(k)), dim)

	for _, qb := range blocks(len(q), blockSize) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		tiledBlock(st, q, k, v, qb, kBlocks, scale, out)
	}
	return out, nil
}

// parallelBackend spreads query blocks across goroutines. Each query still
// folds key blocks in ascending order, so results match the reference
// backend exactly.
type parallelBackend struct {
	workers int
}

func (p *parallelBackend) Name() string { return BackendParallel }

func (p *parallelBackend) Direct(ctx context.Context, q, k, v [][]float32, scale float32) ([][]float32, error) {
	out := newMatrix(len(q), len(v[0]))
	scores := newMatrix(len(q), len(k))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	chunk := max(1, (len(q)+p.workers-1)/p.workers)
	for _, b := range blocks(len(q), chunk) {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			directRows(q, k, v, b[0], b[1], scale, scores, out)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *parallelBackend) Tiled(ctx context.Context, q, k, v [][]float32, blockSize int, scale float32) ([][]float32, error) {
	dim := len(v[0])
	out := newMatrix(len(q), dim)
	kBlocks := blocks(len(k), blockSize)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for _, qb := range blocks(len(q), blockSize) {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			st := newTileState(qb[1]-qb[0], min(blockSize, len(k)), dim)
			tiledBlock(st, q, k, v, qb, kBlocks, scale, out)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
