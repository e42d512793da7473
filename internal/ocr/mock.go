package ocr

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/snapgloss/snapgloss/internal/document"
)

const MockName = "mock"

// MockProvider is a Provider for testing.
type MockProvider struct {
	// Configurable behavior
	Latency    time.Duration
	ShouldFail bool
	Lines      []Line

	// State
	callCount atomic.Int64
}

// NewMockProvider creates a mock that recognizes two fixed lines.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		Lines: []Line{
			{Text: "你好世界", Region: document.Region{X: 10, Y: 10, Width: 200, Height: 40}, Confidence: 0.98},
			{Text: "hello world", Region: document.Region{X: 10, Y: 60, Width: 220, Height: 40}, Confidence: 0.95},
		},
	}
}

// Name returns the provider identifier.
func (m *MockProvider) Name() string {
	return MockName
}

// Recognize returns the configured lines after the configured latency.
func (m *MockProvider) Recognize(ctx context.Context, image []byte) ([]Line, error) {
	m.callCount.Add(1)

	if m.Latency > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(m.Latency):
		}
	}

	if m.ShouldFail {
		return nil, fmt.Errorf("mock recognition failure")
	}

	out := make([]Line, len(m.Lines))
	copy(out, m.Lines)
	return out, nil
}

// CallCount returns how many times Recognize was invoked.
func (m *MockProvider) CallCount() int64 {
	return m.callCount.Load()
}

// Verify interface
var _ Provider = (*MockProvider)(nil)
