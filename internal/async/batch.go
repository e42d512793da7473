package async

import (
	"context"
	"fmt"
	"sync"
)

// BatchOptions configures ProcessBatches.
type BatchOptions struct {
	// Size is the maximum number of items per batch (default DefaultBatchSize).
	Size int

	// Concurrency is the maximum number of batches in flight at once
	// (default DefaultConcurrentLimit).
	Concurrency int

	// OnProgress, if set, is invoked after each batch completes with the
	// number of items processed so far and the total. It must not block;
	// it is purely observational and has no effect on scheduling.
	OnProgress func(completed, total int)
}

// ProcessBatches splits items into batches of opts.Size preserving input
// order, runs up to opts.Concurrency batches concurrently in a sliding
// window, and reassembles the per-item results in input order regardless of
// completion order.
//
// fn must return exactly one result per input item. A failure in any batch
// cancels the remaining in-flight batches and is returned to the caller;
// partially completed batches are discarded.
func ProcessBatches[T, R any](ctx context.Context, items []T, opts BatchOptions, fn func(ctx context.Context, batch []T) ([]R, error)) ([]R, error) {
	if len(items) == 0 {
		return nil, nil
	}

	size := opts.Size
	if size <= 0 {
		size = DefaultBatchSize
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrentLimit
	}

	type batch struct {
		index int
		start int
		items []T
	}

	var batches []batch
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		batches = append(batches, batch{index: len(batches), start: start, items: items[start:end]})
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		firstErr  error
		completed int
		results   = make([][]R, len(batches))
	)

	fail := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
			cancel()
		}
		mu.Unlock()
	}

	// Sliding window: a slot frees as soon as any batch finishes, so the next
	// queued batch starts immediately rather than waiting for a whole wave.
	slots := make(chan struct{}, concurrency)

	for _, b := range batches {
		select {
		case slots <- struct{}{}:
		case <-runCtx.Done():
		}
		if runCtx.Err() != nil {
			break
		}

		wg.Add(1)
		go func(b batch) {
			defer wg.Done()
			defer func() { <-slots }()

			out, err := fn(runCtx, b.items)
			if err != nil {
				fail(fmt.Errorf("batch %d: %w", b.index, err))
				return
			}
			if len(out) != len(b.items) {
				fail(fmt.Errorf("batch %d: got %d results for %d items", b.index, len(out), len(b.items)))
				return
			}

			mu.Lock()
			results[b.index] = out
			completed += len(b.items)
			done, total := completed, len(items)
			mu.Unlock()

			if opts.OnProgress != nil {
				opts.OnProgress(done, total)
			}
		}(b)
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

	merged := make([]R, 0, len(items))
	for _, r := range results {
		merged = append(merged, r...)
	}
	return merged, nil
}
