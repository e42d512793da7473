// Package ocr defines the text-recognition boundary: an image goes in, an
// ordered list of positioned text lines comes out. The PaddleOCR client is
// the production implementation; recognition quality itself is the engine's
// problem, this package only owns transport, rate limiting and retries.
package ocr

import (
	"context"

	"github.com/snapgloss/snapgloss/internal/document"
)

// Line is one recognized text line with its position on the source image.
type Line struct {
	Text       string          `json:"text"`
	Region     document.Region `json:"region"`
	Confidence float64         `json:"confidence"`
}

// Provider extracts text lines from an encoded image. Implementations must
// return lines in reading order (top to bottom, then left to right) so entry
// indices are stable across identical captures.
type Provider interface {
	// Name returns the provider identifier (e.g. "paddleocr").
	Name() string

	// Recognize extracts positioned text lines from an encoded image.
	Recognize(ctx context.Context, image []byte) ([]Line, error)
}
