// Package concurrent provides small helpers for bounded parallelism.
package concurrent

import (
	"context"
	"sync"
)

// DefaultConcurrency bounds parallel work when the caller passes no limit.
const DefaultConcurrency = 10

// ParallelMap applies fn to every item with at most maxConcurrency calls
// in flight and returns the results in input order. The first error
// observed is returned; remaining calls still run to completion.
func ParallelMap[T, R any](ctx context.Context, items []T, fn func(T) (R, error), maxConcurrency int) ([]R, error) {
	if len(items) == 0 {
		return nil, nil
	}
	if maxConcurrency <= 0 {
		maxConcurrency = DefaultConcurrency
	}

	results := make([]R, len(items))
	errs := make([]error, len(items))

	var wg sync.WaitGroup
	sem := make(chan struct{}, maxConcurrency)
	for i, item := range items {
		wg.Add(1)
		go func(idx int, val T) {
			defer wg.Done()
			select {
			case <-ctx.Done():
				errs[idx] = ctx.Err()
			case sem <- struct{}{}:
				results[idx], errs[idx] = fn(val)
				<-sem
			}
		}(i, item)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return results, err
		}
	}
	return results, nil
}
