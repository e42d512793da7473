package annotate

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/snapgloss/snapgloss/internal/document"
)

// MockName identifies the mock annotator.
const MockName = "mock"

// MockAnnotator implements StreamAnnotator and BatchAnnotator for tests.
// The zero value streams every line in input order and never fails.
type MockAnnotator struct {
	// Latency delays each simulated call.
	Latency time.Duration

	// StreamOrder controls stream delivery order by index. Nil delivers in
	// input order. Indices out of range are skipped; if the order covers
	// only some lines, AnnotateStream reports an incomplete stream.
	StreamOrder []int

	// StreamFailAfter makes AnnotateStream fail after delivering N lines.
	// Zero means never fail.
	StreamFailAfter int

	// StreamErr overrides the error returned when StreamFailAfter trips.
	StreamErr error

	// BatchErr makes AnnotateBatch fail when set.
	BatchErr error

	streamCalls atomic.Int64
	batchCalls  atomic.Int64
}

var (
	_ StreamAnnotator = (*MockAnnotator)(nil)
	_ BatchAnnotator  = (*MockAnnotator)(nil)
)

// Name returns the provider identifier.
func (m *MockAnnotator) Name() string {
	return MockName
}

// AnnotateStream delivers fabricated annotations one at a time.
func (m *MockAnnotator) AnnotateStream(ctx context.Context, texts []string, script document.ScriptVariant, onItem func(index int, ann document.Annotation)) error {
	m.streamCalls.Add(1)

	if err := m.sleep(ctx); err != nil {
		return err
	}

	order := m.StreamOrder
	if order == nil {
		order = make([]int, len(texts))
		for i := range order {
			order[i] = i
		}
	}

	sent := 0
	for _, idx := range order {
		if idx < 0 || idx >= len(texts) {
			continue
		}
		if m.StreamFailAfter > 0 && sent >= m.StreamFailAfter {
			if m.StreamErr != nil {
				return m.StreamErr
			}
			return fmt.Errorf("%w: %d of %d lines delivered", ErrIncompleteStream, sent, len(texts))
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		onItem(idx, mockAnnotation("stream", idx))
		sent++
	}

	if sent < len(texts) {
		return fmt.Errorf("%w: %d of %d lines delivered", ErrIncompleteStream, sent, len(texts))
	}
	return nil
}

// AnnotateBatch returns fabricated annotations for every text.
func (m *MockAnnotator) AnnotateBatch(ctx context.Context, texts []string, script document.ScriptVariant) ([]document.Annotation, error) {
	m.batchCalls.Add(1)

	if err := m.sleep(ctx); err != nil {
		return nil, err
	}
	if m.BatchErr != nil {
		return nil, m.BatchErr
	}

	out := make([]document.Annotation, len(texts))
	for i := range texts {
		out[i] = mockAnnotation("batch", i)
	}
	return out, nil
}

// StreamCalls returns the number of AnnotateStream invocations.
func (m *MockAnnotator) StreamCalls() int64 {
	return m.streamCalls.Load()
}

// BatchCalls returns the number of AnnotateBatch invocations.
func (m *MockAnnotator) BatchCalls() int64 {
	return m.batchCalls.Load()
}

func (m *MockAnnotator) sleep(ctx context.Context) error {
	if m.Latency <= 0 {
		return nil
	}
	select {
	case <-time.After(m.Latency):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// mockAnnotation fabricates a distinguishable annotation so tests can tell
// which path produced it.
func mockAnnotation(path string, index int) document.Annotation {
	return document.Annotation{
		Pinyin:      fmt.Sprintf("%s-pinyin-%d", path, index),
		Translation: fmt.Sprintf("%s-translation-%d", path, index),
	}
}
