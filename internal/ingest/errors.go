package ingest

import "errors"

// Ingest-level failures. Timeouts surface as async.ErrTimeout so callers can
// classify them with a single errors.Is check across every phase.
var (
	// ErrRecognitionFailed wraps a failed text-recognition call. Recognition
	// failures abort the ingest entirely; no document is created.
	ErrRecognitionFailed = errors.New("text recognition failed")

	// ErrNoProcessableContent means recognition succeeded but found no text.
	ErrNoProcessableContent = errors.New("no processable content detected")

	// ErrStreamingFailed marks the streaming annotation phase as failed. It
	// is recovered automatically by the batch fallback and only reaches the
	// caller inside an ErrFallbackFailed when both paths fail.
	ErrStreamingFailed = errors.New("streaming annotation failed")

	// ErrFallbackFailed means the batch fallback also failed after a stream
	// failure. The document keeps whatever state it reached.
	ErrFallbackFailed = errors.New("fallback annotation failed")

	// ErrPersistenceFailed wraps a store write that the operation cannot
	// proceed without. During ingest, persistence failures are logged and
	// skipped instead.
	ErrPersistenceFailed = errors.New("document persistence failed")
)
