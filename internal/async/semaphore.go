package async

import (
	"context"
	"sync"
)

// Semaphore is a counting semaphore with FIFO fairness: a released permit is
// handed directly to the oldest waiter instead of going through the counter,
// so no newcomer can barge ahead of a blocked caller.
type Semaphore struct {
	mu      sync.Mutex
	permits int
	waiters []chan struct{}
}

// NewSemaphore creates a semaphore with the given number of permits.
func NewSemaphore(permits int) *Semaphore {
	if permits < 0 {
		permits = 0
	}
	return &Semaphore{permits: permits}
}

// Acquire takes a permit, blocking in FIFO order until one is available or
// ctx is cancelled.
func (s *Semaphore) Acquire(ctx context.Context) error {
	s.mu.Lock()
	if s.permits > 0 && len(s.waiters) == 0 {
		s.permits--
		s.mu.Unlock()
		return nil
	}

	ch := make(chan struct{})
	s.waiters = append(s.waiters, ch)
	s.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		s.mu.Lock()
		for i, w := range s.waiters {
			if w == ch {
				s.waiters = append(s.waiters[:i], s.waiters[i+1:]...)
				s.mu.Unlock()
				return ctx.Err()
			}
		}
		s.mu.Unlock()
		// The permit was handed over concurrently with cancellation;
		// pass it on so it is not lost.
		s.Release()
		return ctx.Err()
	}
}

// TryAcquire takes a permit without blocking. It returns false when no
// permit is available or waiters are queued ahead.
func (s *Semaphore) TryAcquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.permits > 0 && len(s.waiters) == 0 {
		s.permits--
		return true
	}
	return false
}

// Release returns a permit, waking exactly the oldest waiter if one exists.
func (s *Semaphore) Release() {
	s.mu.Lock()
	if len(s.waiters) > 0 {
		ch := s.waiters[0]
		s.waiters = s.waiters[1:]
		s.mu.Unlock()
		close(ch)
		return
	}
	s.permits++
	s.mu.Unlock()
}

// Available returns the number of free permits.
func (s *Semaphore) Available() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.permits
}
