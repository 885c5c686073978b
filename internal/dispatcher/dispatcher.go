// Package dispatcher fans batches of tasks out to a bounded worker pool.
// Tasks return results; they never touch shared state owned by the caller.
package dispatcher

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/pncp-crawler/internal/metrics"
)

// Pool runs at most Size tasks at once.
type Pool struct {
	size int
}

// New creates a Pool. Non-positive sizes mean one worker.
func New(size int) *Pool {
	if size <= 0 {
		size = 1
	}
	return &Pool{size: size}
}

// Size returns the pool's concurrency limit.
func (p *Pool) Size() int { return p.size }

// Map applies fn to every input using the pool and returns the results in
// input order. Inputs not yet started when ctx is done are skipped and keep
// the zero value of R.
func Map[T, R any](ctx context.Context, p *Pool, inputs []T, fn func(context.Context, T) R) []R {
	results := make([]R, len(inputs))
	g := new(errgroup.Group)
	g.SetLimit(p.size)
	for i, in := range inputs {
		if ctx.Err() != nil {
			break
		}
		i, in := i, in
		g.Go(func() error {
			metrics.IncActiveWorkers()
			defer metrics.DecActiveWorkers()
			results[i] = fn(ctx, in)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Batches splits items into consecutive chunks of at most size elements.
func Batches[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = 1
	}
	var out [][]T
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		out = append(out, items[start:end])
	}
	return out
}
