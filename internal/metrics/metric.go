// Package metrics provides cost and usage tracking for recognition and
// annotation calls. Metrics are append-only records stored in DefraDB.
package metrics

import "time"

// Operation names attached to metrics.
const (
	OpRecognize      = "recognize"
	OpAnnotateStream = "annotate_stream"
	OpAnnotateBatch  = "annotate_batch"
)

// Metric represents a single recorded remote call.
type Metric struct {
	ID string `json:"_docID,omitempty"`

	// Attribution (for filtering/aggregation)
	DocumentID string `json:"document_id,omitempty"`
	Operation  string `json:"operation,omitempty"`

	// Provider info
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`

	// Cost and tokens
	CostUSD          float64 `json:"cost_usd,omitempty"`
	PromptTokens     int     `json:"prompt_tokens,omitempty"`
	CompletionTokens int     `json:"completion_tokens,omitempty"`
	TotalTokens      int     `json:"total_tokens,omitempty"`

	// Items is the number of lines or texts covered by the call.
	Items int `json:"items,omitempty"`

	DurationSeconds float64 `json:"duration_seconds,omitempty"`

	// Status
	Success   bool   `json:"success"`
	ErrorType string `json:"error_type,omitempty"`

	CreatedAt time.Time `json:"created_at,omitempty"`
}

// ToMap converts the metric to a map for DefraDB storage. Zero values are
// omitted so stored records stay sparse.
func (m *Metric) ToMap() map[string]any {
	data := map[string]any{
		"success":    m.Success,
		"created_at": m.CreatedAt.Format(time.RFC3339),
	}

	if m.DocumentID != "" {
		data["document_id"] = m.DocumentID
	}
	if m.Operation != "" {
		data["operation"] = m.Operation
	}
	if m.Provider != "" {
		data["provider"] = m.Provider
	}
	if m.Model != "" {
		data["model"] = m.Model
	}

	if m.CostUSD > 0 {
		data["cost_usd"] = m.CostUSD
	}
	if m.PromptTokens > 0 {
		data["prompt_tokens"] = m.PromptTokens
	}
	if m.CompletionTokens > 0 {
		data["completion_tokens"] = m.CompletionTokens
	}
	if m.TotalTokens > 0 {
		data["total_tokens"] = m.TotalTokens
	}
	if m.Items > 0 {
		data["items"] = m.Items
	}
	if m.DurationSeconds > 0 {
		data["duration_seconds"] = m.DurationSeconds
	}

	if m.ErrorType != "" {
		data["error_type"] = m.ErrorType
	}

	return data
}

// Recorder receives one metric per remote call. Recording is observational:
// implementations must not block the caller.
type Recorder interface {
	Record(m Metric)
}
