package async

import (
	"context"
	"fmt"
	"sync"
)

// Map applies fn to every item with at most limit transforms in flight and
// returns the results in input order regardless of completion order.
//
// The window slides per element: as each transform finishes, the next
// untouched item is submitted immediately. A failure on any element cancels
// the remaining work and is returned; no partial results are produced.
func Map[T, R any](ctx context.Context, items []T, limit int, fn func(ctx context.Context, index int, item T) (R, error)) ([]R, error) {
	if len(items) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = DefaultConcurrentLimit
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
		results  = make([]R, len(items))
	)

	fail := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
			cancel()
		}
		mu.Unlock()
	}

	slots := make(chan struct{}, limit)

	for i, item := range items {
		select {
		case slots <- struct{}{}:
		case <-runCtx.Done():
		}
		if runCtx.Err() != nil {
			break
		}

		wg.Add(1)
		go func(i int, item T) {
			defer wg.Done()
			defer func() { <-slots }()

			r, err := fn(runCtx, i, item)
			if err != nil {
				fail(fmt.Errorf("item %d: %w", i, err))
				return
			}
			mu.Lock()
			results[i] = r
			mu.Unlock()
		}(i, item)
	}

	wg.Wait()

	mu.Lock()
	err := firstErr
	mu.Unlock()
	if err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return results, nil
}

// ForEach runs fn over every item with at most limit operations in flight.
// It has no output ordering obligation, only completion tracking: every
// submitted operation finishes (or fails) before ForEach returns. A failure
// on any element cancels the rest and is returned.
func ForEach[T any](ctx context.Context, items []T, limit int, fn func(ctx context.Context, index int, item T) error) error {
	_, err := Map(ctx, items, limit, func(ctx context.Context, i int, item T) (struct{}, error) {
		return struct{}{}, fn(ctx, i, item)
	})
	return err
}
