package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/snapgloss/snapgloss/internal/defra"
)

// Query provides read access to stored metrics.
type Query struct {
	client *defra.Client
}

// NewQuery creates a metrics query helper.
func NewQuery(client *defra.Client) *Query {
	return &Query{client: client}
}

// Filter specifies query filters. Zero values match everything.
type Filter struct {
	DocumentID string
	Operation  string
	Provider   string
	Model      string
	After      time.Time
	Before     time.Time
	Success    *bool // nil = any, true = successes only, false = errors only
}

// buildFilterClause builds a GraphQL filter clause from a Filter.
func buildFilterClause(f Filter) string {
	parts := []string{}

	if f.DocumentID != "" {
		parts = append(parts, fmt.Sprintf(`document_id: {_eq: %q}`, f.DocumentID))
	}
	if f.Operation != "" {
		parts = append(parts, fmt.Sprintf(`operation: {_eq: %q}`, f.Operation))
	}
	if f.Provider != "" {
		parts = append(parts, fmt.Sprintf(`provider: {_eq: %q}`, f.Provider))
	}
	if f.Model != "" {
		parts = append(parts, fmt.Sprintf(`model: {_eq: %q}`, f.Model))
	}
	if !f.After.IsZero() {
		parts = append(parts, fmt.Sprintf(`created_at: {_gt: %q}`, f.After.Format(time.RFC3339)))
	}
	if !f.Before.IsZero() {
		parts = append(parts, fmt.Sprintf(`created_at: {_lt: %q}`, f.Before.Format(time.RFC3339)))
	}
	if f.Success != nil {
		parts = append(parts, fmt.Sprintf(`success: {_eq: %v}`, *f.Success))
	}

	if len(parts) == 0 {
		return ""
	}

	result := "filter: {"
	for i, p := range parts {
		if i > 0 {
			result += ", "
		}
		result += p
	}
	result += "}"
	return result
}

// List returns metrics matching the filter. A limit of 0 means no limit.
func (q *Query) List(ctx context.Context, f Filter, limit int) ([]Metric, error) {
	args := ""
	if filterClause := buildFilterClause(f); filterClause != "" {
		args = "(" + filterClause + ")"
	}

	query := fmt.Sprintf(`{
		Metric%s {
			_docID
			document_id
			operation
			provider
			model
			cost_usd
			prompt_tokens
			completion_tokens
			total_tokens
			items
			duration_seconds
			success
			error_type
			created_at
		}
	}`, args)

	resp, err := q.client.Execute(ctx, query, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query metrics: %w", err)
	}
	if errMsg := resp.Error(); errMsg != "" {
		return nil, fmt.Errorf("graphql error: %s", errMsg)
	}

	rawMetrics, ok := resp.Data["Metric"].([]any)
	if !ok {
		return nil, nil
	}

	var metrics []Metric
	for _, raw := range rawMetrics {
		if limit > 0 && len(metrics) >= limit {
			break
		}
		m, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		metrics = append(metrics, parseMetric(m))
	}

	return metrics, nil
}

// parseMetric converts a raw map to a Metric struct.
func parseMetric(m map[string]any) Metric {
	metric := Metric{}

	if v, ok := m["_docID"].(string); ok {
		metric.ID = v
	}
	if v, ok := m["document_id"].(string); ok {
		metric.DocumentID = v
	}
	if v, ok := m["operation"].(string); ok {
		metric.Operation = v
	}
	if v, ok := m["provider"].(string); ok {
		metric.Provider = v
	}
	if v, ok := m["model"].(string); ok {
		metric.Model = v
	}
	if v, ok := m["cost_usd"].(float64); ok {
		metric.CostUSD = v
	}
	if v, ok := m["prompt_tokens"].(float64); ok {
		metric.PromptTokens = int(v)
	}
	if v, ok := m["completion_tokens"].(float64); ok {
		metric.CompletionTokens = int(v)
	}
	if v, ok := m["total_tokens"].(float64); ok {
		metric.TotalTokens = int(v)
	}
	if v, ok := m["items"].(float64); ok {
		metric.Items = int(v)
	}
	if v, ok := m["duration_seconds"].(float64); ok {
		metric.DurationSeconds = v
	}
	if v, ok := m["success"].(bool); ok {
		metric.Success = v
	}
	if v, ok := m["error_type"].(string); ok {
		metric.ErrorType = v
	}
	if v, ok := m["created_at"].(string); ok {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			metric.CreatedAt = t
		}
	}

	return metric
}
