package async

import (
	"container/heap"
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Priority levels for coordinated work.
// Higher values are promoted from the pending queue first.
const (
	PriorityLow    = 0
	PriorityNormal = 10
	PriorityHigh   = 20
)

// WorkFunc is a unit of work run by the Coordinator. The supplied context is
// cancelled when the item is cancelled individually or via CancelAll; work
// should check it at natural suspension points.
type WorkFunc func(ctx context.Context) error

// Coordinator runs submitted work under a fixed concurrency limit.
//
// Work under the limit starts immediately; the rest waits in a queue ordered
// by priority, FIFO within the same priority. The coordinator never retries:
// a returned error is logged and the item is removed.
type Coordinator struct {
	mu      sync.Mutex
	limit   int
	logger  *slog.Logger
	running map[string]*workItem
	pending workItemHeap
	byID    map[string]*workItem
	seq     uint64
	waiters []chan struct{}
}

// CoordinatorConfig configures a new Coordinator.
type CoordinatorConfig struct {
	// Limit is the maximum number of concurrently running items
	// (default DefaultConcurrentLimit).
	Limit  int
	Logger *slog.Logger
}

// NewCoordinator creates a coordinator with the given configuration.
func NewCoordinator(cfg CoordinatorConfig) *Coordinator {
	limit := cfg.Limit
	if limit <= 0 {
		limit = DefaultConcurrentLimit
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Coordinator{
		limit:   limit,
		logger:  logger.With("component", "coordinator"),
		running: make(map[string]*workItem),
		byID:    make(map[string]*workItem),
	}
}

type workItemState int

const (
	statePending workItemState = iota
	stateRunning
	stateCancelled
)

type workItem struct {
	id       string
	priority int
	seq      uint64
	fn       WorkFunc
	parent   context.Context
	cancel   context.CancelFunc
	state    workItemState
}

// Submit schedules fn under the concurrency limit. An empty id is replaced
// with a generated one; the effective id is returned. Submitting an id that
// is already tracked returns ErrDuplicateID.
//
// ctx is the parent of the context handed to fn, so cancelling it also
// cancels the work, including work still pending when ctx expires.
func (c *Coordinator) Submit(ctx context.Context, id string, priority int, fn WorkFunc) (string, error) {
	if id == "" {
		id = uuid.New().String()
	}

	c.mu.Lock()
	if _, exists := c.byID[id]; exists {
		c.mu.Unlock()
		return "", ErrDuplicateID
	}

	c.seq++
	item := &workItem{
		id:       id,
		priority: priority,
		seq:      c.seq,
		fn:       fn,
		parent:   ctx,
		state:    statePending,
	}
	c.byID[id] = item

	if len(c.running) < c.limit {
		c.startLocked(item)
	} else {
		heap.Push(&c.pending, item)
		c.logger.Debug("work queued", "id", id, "priority", priority, "pending", c.pending.Len())
	}
	c.mu.Unlock()

	return id, nil
}

// startLocked moves an item into the running set and launches its goroutine.
// Caller must hold c.mu.
func (c *Coordinator) startLocked(item *workItem) {
	runCtx, cancel := context.WithCancel(item.parent)
	item.cancel = cancel
	item.state = stateRunning
	c.running[item.id] = item

	go func() {
		defer cancel()
		err := item.fn(runCtx)
		if err != nil {
			c.logger.Warn("work failed", "id", item.id, "error", err)
		}
		c.finish(item)
	}()
}

// finish removes a completed item and promotes the next pending one.
func (c *Coordinator) finish(item *workItem) {
	c.mu.Lock()
	delete(c.running, item.id)
	delete(c.byID, item.id)
	c.promoteLocked()
	c.notifyIfIdleLocked()
	c.mu.Unlock()
}

// promoteLocked starts pending items while capacity allows, skipping items
// cancelled while queued. Caller must hold c.mu.
func (c *Coordinator) promoteLocked() {
	for len(c.running) < c.limit && c.pending.Len() > 0 {
		item := heap.Pop(&c.pending).(*workItem)
		if item.state == stateCancelled {
			continue
		}
		c.startLocked(item)
	}
}

// Cancel cancels the work item with the given id. A pending item is removed
// without ever starting; a running item has its context cancelled and may
// still complete side effects before honoring the cancellation.
func (c *Coordinator) Cancel(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, ok := c.byID[id]
	if !ok {
		return
	}

	switch item.state {
	case statePending:
		// Lazy removal: the heap entry is skipped at promotion time.
		item.state = stateCancelled
		delete(c.byID, id)
		c.logger.Debug("pending work cancelled", "id", id)
		c.notifyIfIdleLocked()
	case stateRunning:
		item.cancel()
		c.logger.Debug("running work cancelled", "id", id)
	}
}

// CancelAll cancels every running item and drops every pending item.
func (c *Coordinator) CancelAll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for c.pending.Len() > 0 {
		item := heap.Pop(&c.pending).(*workItem)
		if item.state != stateCancelled {
			delete(c.byID, item.id)
		}
	}
	for _, item := range c.running {
		item.cancel()
	}
	c.logger.Info("all work cancelled", "running", len(c.running))
	c.notifyIfIdleLocked()
}

// AwaitIdle blocks until no work is running or pending, or ctx is cancelled.
func (c *Coordinator) AwaitIdle(ctx context.Context) error {
	c.mu.Lock()
	if c.idleLocked() {
		c.mu.Unlock()
		return nil
	}
	ch := make(chan struct{})
	c.waiters = append(c.waiters, ch)
	c.mu.Unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-ch:
		return nil
	}
}

func (c *Coordinator) idleLocked() bool {
	return len(c.running) == 0 && c.livePendingLocked() == 0
}

// livePendingLocked counts pending items that are not lazily-cancelled heap
// residue. Caller must hold c.mu.
func (c *Coordinator) livePendingLocked() int {
	n := 0
	for _, item := range c.pending {
		if item.state == statePending {
			n++
		}
	}
	return n
}

func (c *Coordinator) notifyIfIdleLocked() {
	if !c.idleLocked() {
		return
	}
	for _, ch := range c.waiters {
		close(ch)
	}
	c.waiters = nil
}

// CoordinatorStatus reports a snapshot of the coordinator's state.
type CoordinatorStatus struct {
	Limit   int `json:"limit"`
	Running int `json:"running"`
	Pending int `json:"pending"`
}

// Status returns the current coordinator state.
func (c *Coordinator) Status() CoordinatorStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CoordinatorStatus{
		Limit:   c.limit,
		Running: len(c.running),
		Pending: c.livePendingLocked(),
	}
}

// workItemHeap orders items by priority (higher first), then submission
// order (lower seq first) for FIFO fairness within a priority level.
type workItemHeap []*workItem

func (h workItemHeap) Len() int { return len(h) }

func (h workItemHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	return h[i].seq < h[j].seq
}

func (h workItemHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *workItemHeap) Push(x any) { *h = append(*h, x.(*workItem)) }

func (h *workItemHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil // avoid memory leak
	*h = old[0 : n-1]
	return item
}
