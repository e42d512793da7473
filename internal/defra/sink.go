package defra

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// OpType represents the type of write operation.
type OpType string

const (
	OpCreate OpType = "create"
	OpUpdate OpType = "update"
	OpUpsert OpType = "upsert"
	OpDelete OpType = "delete"
)

// WriteOp represents a single write operation to be batched.
type WriteOp struct {
	Collection string             // Target collection name
	Document   map[string]any     // Document data (create/update input; upsert uses it for both)
	DocID      string             // For updates/deletes by _docID
	Filter     map[string]any     // For upserts and filtered deletes
	Op         OpType             // Operation type
	result     chan<- WriteResult // Internal, set by SendSync
}

// WriteResult contains the result of a write operation.
type WriteResult struct {
	DocID string // Stable document ID
	Err   error  // Error if operation failed
}

// SinkConfig configures the write sink.
type SinkConfig struct {
	Client        *Client
	BatchSize     int           // Flush after N ops (default: 100)
	FlushInterval time.Duration // Or after duration (default: 5s)
	QueueSize     int           // Buffer size (default: 1000)
	Logger        *slog.Logger
}

// Sink batches and coordinates writes to DefraDB. Fire-and-forget sends let
// callers persist without blocking; failures are logged, never raised.
type Sink struct {
	client *Client
	logger *slog.Logger

	batchSize     int
	flushInterval time.Duration

	queue   chan WriteOp
	batch   []WriteOp
	batchMu sync.Mutex
	flushCh chan struct{} // Signal to flush immediately

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewSink creates a new write sink.
func NewSink(cfg SinkConfig) *Sink {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Second
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Sink{
		client:        cfg.Client,
		logger:        cfg.Logger.With("component", "sink"),
		batchSize:     cfg.BatchSize,
		flushInterval: cfg.FlushInterval,
		queue:         make(chan WriteOp, cfg.QueueSize),
		batch:         make([]WriteOp, 0, cfg.BatchSize),
		flushCh:       make(chan struct{}, 1),
	}
}

// Start begins processing write operations.
func (s *Sink) Start(ctx context.Context) {
	// Queued writes must still flush during shutdown, after the caller's
	// ctx is cancelled, so the sink detaches from its cancellation and
	// ends only via Stop.
	s.ctx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))

	s.wg.Add(1)
	go s.runBatcher()
}

// Stop gracefully shuts down the sink, flushing remaining operations.
func (s *Sink) Stop() {
	s.stopOnce.Do(func() {
		s.logger.Info("stopping sink, flushing remaining operations")

		// Close queue to stop accepting new ops and signal shutdown.
		close(s.queue)

		// Wait for batcher to finish (it flushes what remains).
		s.wg.Wait()

		s.cancel()

		s.logger.Info("sink stopped")
	})
}

// Send queues a write operation (fire-and-forget). Returns immediately
// without waiting for the write to complete.
func (s *Sink) Send(op WriteOp) {
	op.result = nil // Ensure fire-and-forget

	// Recover handles send on closed channel after Stop.
	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn("sink closed, dropping write op",
				"collection", op.Collection,
				"op", op.Op)
		}
	}()

	select {
	case s.queue <- op:
	default:
		// Queue full, try again with shutdown check.
		select {
		case s.queue <- op:
		case <-s.ctx.Done():
			s.logger.Warn("sink closed, dropping write op",
				"collection", op.Collection,
				"op", op.Op)
		}
	}
}

// SendSync queues a write operation and waits for the result.
func (s *Sink) SendSync(ctx context.Context, op WriteOp) (WriteResult, error) {
	resultCh := make(chan WriteResult, 1)
	op.result = resultCh

	select {
	case s.queue <- op:
	case <-s.ctx.Done():
		return WriteResult{}, ErrSinkClosed
	case <-ctx.Done():
		return WriteResult{}, ctx.Err()
	}

	select {
	case result := <-resultCh:
		return result, result.Err
	case <-s.ctx.Done():
		return WriteResult{}, ErrSinkClosed
	case <-ctx.Done():
		return WriteResult{}, ctx.Err()
	}
}

// SinkStatus is a point-in-time view of the sink's backlog.
type SinkStatus struct {
	Queued   int `json:"queued"`
	Batched  int `json:"batched"`
	Capacity int `json:"capacity"`
}

// Status reports the queued and batched write counts.
func (s *Sink) Status() SinkStatus {
	s.batchMu.Lock()
	batched := len(s.batch)
	s.batchMu.Unlock()
	return SinkStatus{
		Queued:   len(s.queue),
		Batched:  batched,
		Capacity: cap(s.queue),
	}
}

// Flush forces an immediate flush of the current batch.
func (s *Sink) Flush(ctx context.Context) error {
	select {
	case s.flushCh <- struct{}{}:
	default:
		// Flush already pending
	}
	return nil
}

// runBatcher collects operations and flushes on size/time triggers.
func (s *Sink) runBatcher() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case op, ok := <-s.queue:
			if !ok {
				// Queue closed, flush remaining and exit.
				s.flushBatch()
				return
			}
			s.addToBatch(op)

		case <-ticker.C:
			s.flushBatch()

		case <-s.flushCh:
			s.flushBatch()
		}
	}
}

// addToBatch adds an operation to the current batch, flushing if full.
func (s *Sink) addToBatch(op WriteOp) {
	s.batchMu.Lock()
	s.batch = append(s.batch, op)
	shouldFlush := len(s.batch) >= s.batchSize
	s.batchMu.Unlock()

	if shouldFlush {
		s.flushBatch()
	}
}

// flushBatch processes the current batch of operations in queue order.
// Order matters: an upsert for a document must not overtake a later delete.
func (s *Sink) flushBatch() {
	s.batchMu.Lock()
	if len(s.batch) == 0 {
		s.batchMu.Unlock()
		return
	}
	ops := s.batch
	s.batch = make([]WriteOp, 0, s.batchSize)
	s.batchMu.Unlock()

	s.logger.Debug("flushing batch", "count", len(ops))

	for _, op := range ops {
		s.process(op)
	}
}

// process executes one write operation and delivers the result to any
// waiting caller.
func (s *Sink) process(op WriteOp) {
	var result WriteResult

	switch op.Op {
	case OpCreate:
		result.DocID, result.Err = s.client.Create(s.ctx, op.Collection, op.Document)
	case OpUpdate:
		result.DocID = op.DocID
		result.Err = s.client.Update(s.ctx, op.Collection, op.DocID, op.Document)
	case OpUpsert:
		result.DocID, result.Err = s.client.Upsert(s.ctx, op.Collection, op.Filter, op.Document, op.Document)
	case OpDelete:
		result.DocID = op.DocID
		if op.DocID != "" {
			result.Err = s.client.Delete(s.ctx, op.Collection, op.DocID)
		} else {
			_, result.Err = s.client.DeleteWhere(s.ctx, op.Collection, op.Filter)
		}
	}

	if result.Err != nil {
		s.logger.Error("write failed",
			"collection", op.Collection,
			"op", op.Op,
			"docID", op.DocID,
			"error", result.Err)
	}

	if op.result != nil {
		op.result <- result
		close(op.result)
	}
}
