package metrics

import (
	"log/slog"
	"time"

	"github.com/snapgloss/snapgloss/internal/defra"
)

// Collection is the DefraDB collection metrics are stored in.
const Collection = "Metric"

// SinkRecorder writes metrics through the shared DefraDB write sink.
// Record returns before the write lands; a metric dropped by a stopped or
// saturated sink is a log line, never an error surfaced to the caller.
type SinkRecorder struct {
	sink   *defra.Sink
	logger *slog.Logger
}

// NewSinkRecorder creates a sink-backed recorder.
func NewSinkRecorder(sink *defra.Sink, logger *slog.Logger) *SinkRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &SinkRecorder{
		sink:   sink,
		logger: logger.With("component", "metrics"),
	}
}

// Record queues one metric for persistence, stamping CreatedAt if unset.
func (r *SinkRecorder) Record(m Metric) {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	r.sink.Send(defra.WriteOp{
		Collection: Collection,
		Op:         defra.OpCreate,
		Document:   m.ToMap(),
	})
}

// DocumentRecorder stamps every metric with a document id before delegating.
// Collaborator clients are shared across documents, so attribution is added
// at the ingest boundary rather than inside the clients.
type DocumentRecorder struct {
	DocumentID string
	Next       Recorder
}

// Record attributes the metric to the document and forwards it.
func (r DocumentRecorder) Record(m Metric) {
	if r.Next == nil {
		return
	}
	if m.DocumentID == "" {
		m.DocumentID = r.DocumentID
	}
	r.Next.Record(m)
}

// NopRecorder discards all metrics. Wired when no sink exists, such as
// one-shot CLI invocations.
type NopRecorder struct{}

func (NopRecorder) Record(Metric) {}

var (
	_ Recorder = (*SinkRecorder)(nil)
	_ Recorder = DocumentRecorder{}
	_ Recorder = NopRecorder{}
)
