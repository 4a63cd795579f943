package multislice

import (
	"context"
	"fmt"
	"iter"

	"golang.org/x/sync/errgroup"
)

// Ensemble runs n independent jobs with at most workers in flight and
// returns their results in index order. The first failure cancels the
// remaining jobs. A non-positive workers value means no limit.
func Ensemble[T any](ctx context.Context, n, workers int, job func(ctx context.Context, i int) (T, error)) ([]T, error) {
	results := make([]T, n)

	g, ctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for i := 0; i < n; i++ {
		g.Go(func() error {
			r, err := job(ctx, i)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// EnsembleSeq is Ensemble over a lazily produced sequence of n inputs.
// The next input is pulled only once a worker is free, so at most
// workers+1 inputs are alive at a time. Indices must lie in [0, n).
func EnsembleSeq[S, T any](ctx context.Context, seq iter.Seq2[int, S], n, workers int, job func(ctx context.Context, i int, s S) (T, error)) ([]T, error) {
	results := make([]T, n)

	g, gctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	var seqErr error
	for i, s := range seq {
		if gctx.Err() != nil {
			break
		}
		if i < 0 || i >= n {
			seqErr = fmt.Errorf("multislice: sequence index %d outside [0, %d)", i, n)
			break
		}
		g.Go(func() error {
			r, err := job(gctx, i, s)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if seqErr != nil {
		return nil, seqErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// ParallelFor splits [0, n) into chunks of at least minChunk and runs fn on
// each chunk concurrently.
func ParallelFor(ctx context.Context, n, minChunk, workers int, fn func(ctx context.Context, start, end int) error) error {
	if workers < 1 {
		workers = 1
	}
	if minChunk < 1 {
		minChunk = 1
	}
	if n <= minChunk || workers == 1 {
		return fn(ctx, 0, n)
	}
	if n/minChunk < workers {
		workers = n / minChunk
	}
	chunkSize := (n + workers - 1) / workers

	g, ctx := errgroup.WithContext(ctx)
	for start := 0; start < n; start += chunkSize {
		end := min(start+chunkSize, n)
		g.Go(func() error {
			return fn(ctx, start, end)
		})
	}
	return g.Wait()
}
