package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/snapgloss/snapgloss/internal/defra"
)

func TestMetric_ToMap_OmitsZeroValues(t *testing.T) {
	m := Metric{
		Operation: OpRecognize,
		Provider:  "paddleocr",
		Items:     4,
		Success:   true,
		CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	data := m.ToMap()

	if data["operation"] != OpRecognize || data["provider"] != "paddleocr" {
		t.Errorf("unexpected attribution: %v", data)
	}
	if data["items"] != 4 {
		t.Errorf("items = %v, want 4", data["items"])
	}
	for _, absent := range []string{"model", "cost_usd", "prompt_tokens", "error_type", "document_id"} {
		if _, ok := data[absent]; ok {
			t.Errorf("zero-value field %q should be omitted", absent)
		}
	}
	if data["created_at"] != "2026-01-02T03:04:05Z" {
		t.Errorf("created_at = %v", data["created_at"])
	}
}

func TestBuildFilterClause(t *testing.T) {
	yes := true
	tests := []struct {
		name   string
		filter Filter
		want   string
	}{
		{"empty", Filter{}, ""},
		{"document", Filter{DocumentID: "doc-1"}, `filter: {document_id: {_eq: "doc-1"}}`},
		{"operation and success", Filter{Operation: OpAnnotateBatch, Success: &yes},
			`filter: {operation: {_eq: "annotate_batch"}, success: {_eq: true}}`},
		{"time window", Filter{
			After:  time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
			Before: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		}, `filter: {created_at: {_gt: "2026-01-01T00:00:00Z"}, created_at: {_lt: "2026-02-01T00:00:00Z"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := buildFilterClause(tt.filter); got != tt.want {
				t.Errorf("buildFilterClause() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestQuery_List(t *testing.T) {
	var receivedQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		receivedQuery = string(body)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data": {"Metric": [
			{"_docID": "bae-m1", "document_id": "doc-1", "operation": "recognize", "provider": "paddleocr", "items": 12, "duration_seconds": 0.8, "success": true, "created_at": "2026-01-02T03:04:05Z"},
			{"_docID": "bae-m2", "document_id": "doc-1", "operation": "annotate_stream", "provider": "openai", "model": "gpt-4o-mini", "cost_usd": 0.002, "total_tokens": 900, "success": false, "error_type": "timeout"}
		]}}`))
	}))
	defer server.Close()

	q := NewQuery(defra.NewClient(server.URL))
	got, err := q.List(context.Background(), Filter{DocumentID: "doc-1"}, 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}

	if !strings.Contains(receivedQuery, `document_id: {_eq: \"doc-1\"}`) {
		t.Errorf("query missing document filter: %s", receivedQuery)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	first := got[0]
	if first.ID != "bae-m1" || first.Operation != OpRecognize || first.Items != 12 || !first.Success {
		t.Errorf("metrics[0] = %+v", first)
	}
	if first.DurationSeconds != 0.8 {
		t.Errorf("DurationSeconds = %v", first.DurationSeconds)
	}
	if !first.CreatedAt.Equal(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)) {
		t.Errorf("CreatedAt = %v", first.CreatedAt)
	}
	second := got[1]
	if second.Model != "gpt-4o-mini" || second.TotalTokens != 900 || second.Success || second.ErrorType != "timeout" {
		t.Errorf("metrics[1] = %+v", second)
	}
}

func TestSummarize(t *testing.T) {
	metrics := []Metric{
		{CostUSD: 0.01, TotalTokens: 100, Items: 5, DurationSeconds: 1.0, Success: true},
		{CostUSD: 0.03, TotalTokens: 300, Items: 10, DurationSeconds: 3.0, Success: true},
		{DurationSeconds: 2.0, Success: false},
	}

	s := summarize(metrics)

	if s.Count != 3 || s.SuccessCount != 2 || s.ErrorCount != 1 {
		t.Errorf("counts = %d/%d/%d", s.Count, s.SuccessCount, s.ErrorCount)
	}
	if s.TotalCostUSD != 0.04 || s.TotalTokens != 400 || s.TotalItems != 15 {
		t.Errorf("totals = %v/%d/%d", s.TotalCostUSD, s.TotalTokens, s.TotalItems)
	}
	if s.TotalTime != 6*time.Second {
		t.Errorf("TotalTime = %v", s.TotalTime)
	}
	if s.AvgTimeSeconds != 2.0 {
		t.Errorf("AvgTimeSeconds = %v", s.AvgTimeSeconds)
	}
}

func TestPercentile(t *testing.T) {
	sorted := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}

	tests := []struct {
		p    float64
		want float64
	}{
		{50, 5.5},
		{100, 10},
		{0, 1},
	}
	for _, tt := range tests {
		if got := percentile(sorted, tt.p); got != tt.want {
			t.Errorf("percentile(%v) = %v, want %v", tt.p, got, tt.want)
		}
	}

	if got := percentile(nil, 50); got != 0 {
		t.Errorf("percentile(nil) = %v, want 0", got)
	}
	if got := percentile([]float64{7}, 99); got != 7 {
		t.Errorf("percentile(single) = %v, want 7", got)
	}
}

func TestDetailedStats_Latency(t *testing.T) {
	var ms []Metric
	for i := 1; i <= 100; i++ {
		ms = append(ms, Metric{DurationSeconds: float64(i) / 10, Success: true})
	}

	stats := detailedStats(ms)

	if stats.LatencyMin != 0.1 || stats.LatencyMax != 10.0 {
		t.Errorf("min/max = %v/%v", stats.LatencyMin, stats.LatencyMax)
	}
	if stats.LatencyP50 < 5.0 || stats.LatencyP50 > 5.1 {
		t.Errorf("p50 = %v", stats.LatencyP50)
	}
	if stats.LatencyP95 < 9.5 || stats.LatencyP95 > 9.6 {
		t.Errorf("p95 = %v", stats.LatencyP95)
	}
}

type capturingRecorder struct {
	got []Metric
}

func (r *capturingRecorder) Record(m Metric) { r.got = append(r.got, m) }

func TestDocumentRecorder_StampsDocumentID(t *testing.T) {
	inner := &capturingRecorder{}
	rec := DocumentRecorder{DocumentID: "doc-9", Next: inner}

	rec.Record(Metric{Operation: OpRecognize})
	rec.Record(Metric{Operation: OpAnnotateStream, DocumentID: "other"})

	if len(inner.got) != 2 {
		t.Fatalf("len = %d, want 2", len(inner.got))
	}
	if inner.got[0].DocumentID != "doc-9" {
		t.Errorf("blank id not stamped: %q", inner.got[0].DocumentID)
	}
	if inner.got[1].DocumentID != "other" {
		t.Errorf("explicit id overwritten: %q", inner.got[1].DocumentID)
	}
}

func TestAttributed(t *testing.T) {
	t.Run("document in context stamps metrics", func(t *testing.T) {
		inner := &capturingRecorder{}
		ctx := WithDocument(context.Background(), "doc-3")

		Attributed(ctx, inner).Record(Metric{Operation: OpRecognize})

		if len(inner.got) != 1 || inner.got[0].DocumentID != "doc-3" {
			t.Fatalf("got %+v, want one metric attributed to doc-3", inner.got)
		}
	})

	t.Run("no document passes recorder through", func(t *testing.T) {
		inner := &capturingRecorder{}

		Attributed(context.Background(), inner).Record(Metric{Operation: OpRecognize})

		if len(inner.got) != 1 || inner.got[0].DocumentID != "" {
			t.Fatalf("got %+v, want one unattributed metric", inner.got)
		}
	})
}

func TestSinkRecorder_WritesThroughSink(t *testing.T) {
	received := make(chan string, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		select {
		case received <- string(body):
		default:
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data": {"create_Metric": [{"_docID": "bae-m"}]}}`))
	}))
	defer server.Close()

	sink := defra.NewSink(defra.SinkConfig{
		Client:        defra.NewClient(server.URL),
		BatchSize:     1,
		FlushInterval: 50 * time.Millisecond,
	})
	sink.Start(context.Background())
	defer sink.Stop()

	rec := NewSinkRecorder(sink, nil)
	rec.Record(Metric{Operation: OpAnnotateBatch, Provider: "openai", Success: true})

	select {
	case body := <-received:
		for _, want := range []string{"create_Metric", "annotate_batch", "created_at"} {
			if !strings.Contains(body, want) {
				t.Errorf("mutation missing %q: %s", want, body)
			}
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for metric write")
	}
}
