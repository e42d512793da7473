package async

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// WithTimeout runs fn with a deadline of d relative to now. If fn finishes
// first its result is returned as-is; if the deadline fires first the call
// returns ErrTimeout (wrapped with the elapsed budget) and fn's eventual
// result is discarded. fn receives a context that is cancelled when the
// deadline fires so it can stop early.
func WithTimeout[R any](ctx context.Context, d time.Duration, fn func(ctx context.Context) (R, error)) (R, error) {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	type outcome struct {
		value R
		err   error
	}
	done := make(chan outcome, 1)

	go func() {
		v, err := fn(ctx)
		done <- outcome{value: v, err: err}
	}()

	select {
	case out := <-done:
		// fn may have noticed the expired deadline before our select did;
		// surface that the same way as losing the race outright.
		if out.err != nil && errors.Is(out.err, context.DeadlineExceeded) && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			var zero R
			return zero, fmt.Errorf("timed out after %s: %w", d, ErrTimeout)
		}
		return out.value, out.err
	case <-ctx.Done():
		var zero R
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return zero, fmt.Errorf("timed out after %s: %w", d, ErrTimeout)
		}
		return zero, ctx.Err()
	}
}
