package async

import (
	"sync"
	"time"
)

// Debouncer delays an action until a quiet period has elapsed. Each Call
// cancels any pending invocation and reschedules, so only the last call
// within any delay window ever executes.
type Debouncer struct {
	mu    sync.Mutex
	delay time.Duration
	timer *time.Timer
}

// NewDebouncer creates a debouncer with the given quiescence delay.
func NewDebouncer(delay time.Duration) *Debouncer {
	return &Debouncer{delay: delay}
}

// Call schedules fn to run after the delay, replacing any pending action.
func (d *Debouncer) Call(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		d.timer = nil
		d.mu.Unlock()
		fn()
	})
}

// Stop cancels any pending action without running it.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// Throttler limits an action to at most one execution per interval. A call
// arriving inside the interval is deferred to the interval boundary, and
// intermediate calls coalesce into that single deferred execution
// (last call wins).
type Throttler struct {
	mu       sync.Mutex
	interval time.Duration
	last     time.Time
	timer    *time.Timer
	deferred func()
}

// NewThrottler creates a throttler with the given minimum interval.
func NewThrottler(interval time.Duration) *Throttler {
	return &Throttler{interval: interval}
}

// Call executes fn immediately if the interval has elapsed since the last
// execution; otherwise fn becomes the pending action for the next boundary.
func (t *Throttler) Call(fn func()) {
	t.mu.Lock()

	now := time.Now()
	elapsed := now.Sub(t.last)

	if t.timer == nil && elapsed >= t.interval {
		t.last = now
		t.mu.Unlock()
		fn()
		return
	}

	t.deferred = fn
	if t.timer == nil {
		t.timer = time.AfterFunc(t.interval-elapsed, t.fire)
	}
	t.mu.Unlock()
}

// fire runs the coalesced deferred action at the interval boundary.
func (t *Throttler) fire() {
	t.mu.Lock()
	fn := t.deferred
	t.deferred = nil
	t.timer = nil
	t.last = time.Now()
	t.mu.Unlock()

	if fn != nil {
		fn()
	}
}

// Stop cancels any deferred action without running it.
func (t *Throttler) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.deferred = nil
}
