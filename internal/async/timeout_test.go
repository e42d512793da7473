package async

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestWithTimeout_CompletesInTime(t *testing.T) {
	got, err := WithTimeout(context.Background(), time.Second, func(ctx context.Context) (int, error) {
		return 42, nil
	})
	if err != nil {
		t.Fatalf("WithTimeout failed: %v", err)
	}
	if got != 42 {
		t.Errorf("expected 42, got %d", got)
	}
}

func TestWithTimeout_DeadlineExceeded(t *testing.T) {
	start := time.Now()
	_, err := WithTimeout(context.Background(), 20*time.Millisecond, func(ctx context.Context) (int, error) {
		time.Sleep(500 * time.Millisecond)
		return 0, nil
	})
	elapsed := time.Since(start)

	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if elapsed >= 400*time.Millisecond {
		t.Errorf("expected return at the deadline, took %v", elapsed)
	}
}

func TestWithTimeout_PropagatesOperationError(t *testing.T) {
	boom := errors.New("boom")
	_, err := WithTimeout(context.Background(), time.Second, func(ctx context.Context) (int, error) {
		return 0, boom
	})
	if !errors.Is(err, boom) {
		t.Errorf("expected boom, got %v", err)
	}
	if errors.Is(err, ErrTimeout) {
		t.Errorf("operation failure must not look like a timeout: %v", err)
	}
}

func TestWithTimeout_HonoringFnStillTimesOut(t *testing.T) {
	// An fn that watches its context and returns the deadline error must
	// still surface as ErrTimeout to the caller.
	_, err := WithTimeout(context.Background(), 20*time.Millisecond, func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("expected ErrTimeout, got %v", err)
	}
}

func TestWithTimeout_ParentCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := WithTimeout(ctx, time.Second, func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if errors.Is(err, ErrTimeout) {
		t.Errorf("parent cancellation must not look like a timeout: %v", err)
	}
}
