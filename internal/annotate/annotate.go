// Package annotate produces pinyin and English annotations for Chinese text
// lines using an LLM provider.
//
// Two call shapes are supported. Streaming delivers annotations line by line
// as the model emits them, so callers can surface partial results early.
// Batch annotates in structured-output chunks and returns everything at once;
// it is the fallback when a stream dies partway through.
package annotate

import (
	"context"
	"errors"

	"github.com/snapgloss/snapgloss/internal/document"
)

// ErrIncompleteStream reports a stream that ended before covering every
// input line.
var ErrIncompleteStream = errors.New("annotation stream incomplete")

// StreamAnnotator delivers annotations incrementally. onItem may fire in any
// order and more than once per index; the last invocation for an index wins.
// onItem is never invoked concurrently. AnnotateStream returns an error
// wrapping ErrIncompleteStream if the stream ends cleanly but some index was
// never delivered.
type StreamAnnotator interface {
	Name() string
	AnnotateStream(ctx context.Context, texts []string, script document.ScriptVariant, onItem func(index int, ann document.Annotation)) error
}

// BatchAnnotator annotates all texts and returns one annotation per input,
// in input order.
type BatchAnnotator interface {
	Name() string
	AnnotateBatch(ctx context.Context, texts []string, script document.ScriptVariant) ([]document.Annotation, error)
}
