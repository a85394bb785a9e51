package sweep

import (
	"context"
	"sync"
)

// Run calls fn for every index in [0, n) with at most concurrency calls in
// flight. Work is issued in sub-batches of concurrency items; ctx is checked
// between sub-batches, so cancellation lets the in-flight sub-batch finish
// and marks every unstarted index with ctx.Err(). The returned slice holds
// one error (or nil) per index.
func Run(ctx context.Context, n, concurrency int, fn func(ctx context.Context, i int) error) []error {
	if concurrency <= 0 {
		concurrency = 1
	}
	errs := make([]error, n)

	for start := 0; start < n; start += concurrency {
		if err := ctx.Err(); err != nil {
			for i := start; i < n; i++ {
				errs[i] = err
			}
			return errs
		}

		end := start + concurrency
		if end > n {
			end = n
		}

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(idx int) {
				defer wg.Done()
				errs[idx] = fn(ctx, idx)
			}(i)
		}
		wg.Wait()
	}
	return errs
}
