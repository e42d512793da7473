package metrics

import (
	"context"
	"sort"
	"time"
)

// TotalCost returns the total cost for metrics matching the filter.
func (q *Query) TotalCost(ctx context.Context, f Filter) (float64, error) {
	metrics, err := q.List(ctx, f, 0)
	if err != nil {
		return 0, err
	}

	var total float64
	for _, m := range metrics {
		total += m.CostUSD
	}
	return total, nil
}

// TotalTokens returns the total tokens for metrics matching the filter.
func (q *Query) TotalTokens(ctx context.Context, f Filter) (int, error) {
	metrics, err := q.List(ctx, f, 0)
	if err != nil {
		return 0, err
	}

	var total int
	for _, m := range metrics {
		total += m.TotalTokens
	}
	return total, nil
}

// TotalTime returns the total remote-call time for metrics matching the filter.
func (q *Query) TotalTime(ctx context.Context, f Filter) (time.Duration, error) {
	metrics, err := q.List(ctx, f, 0)
	if err != nil {
		return 0, err
	}

	var total float64
	for _, m := range metrics {
		total += m.DurationSeconds
	}
	return time.Duration(total * float64(time.Second)), nil
}

// Summary is the rolled-up view of a set of metrics.
type Summary struct {
	Count          int           `json:"count"`
	TotalCostUSD   float64       `json:"total_cost_usd"`
	TotalTokens    int           `json:"total_tokens"`
	TotalItems     int           `json:"total_items"`
	TotalTime      time.Duration `json:"total_time"`
	SuccessCount   int           `json:"success_count"`
	ErrorCount     int           `json:"error_count"`
	AvgCostUSD     float64       `json:"avg_cost_usd"`
	AvgTokens      float64       `json:"avg_tokens"`
	AvgTimeSeconds float64       `json:"avg_time_seconds"`
}

// GetSummary returns a summary of metrics matching the filter.
func (q *Query) GetSummary(ctx context.Context, f Filter) (*Summary, error) {
	metrics, err := q.List(ctx, f, 0)
	if err != nil {
		return nil, err
	}
	return summarize(metrics), nil
}

func summarize(metrics []Metric) *Summary {
	s := &Summary{Count: len(metrics)}
	for _, m := range metrics {
		s.TotalCostUSD += m.CostUSD
		s.TotalTokens += m.TotalTokens
		s.TotalItems += m.Items
		s.TotalTime += time.Duration(m.DurationSeconds * float64(time.Second))
		if m.Success {
			s.SuccessCount++
		} else {
			s.ErrorCount++
		}
	}

	if s.Count > 0 {
		s.AvgCostUSD = s.TotalCostUSD / float64(s.Count)
		s.AvgTokens = float64(s.TotalTokens) / float64(s.Count)
		s.AvgTimeSeconds = s.TotalTime.Seconds() / float64(s.Count)
	}

	return s
}

// DetailedStats adds latency percentiles and token breakdowns to the summary
// view.
type DetailedStats struct {
	Count        int `json:"count"`
	SuccessCount int `json:"success_count"`
	ErrorCount   int `json:"error_count"`

	TotalCostUSD float64 `json:"total_cost_usd"`
	AvgCostUSD   float64 `json:"avg_cost_usd"`

	// Latency percentiles (seconds)
	LatencyP50 float64 `json:"latency_p50"`
	LatencyP95 float64 `json:"latency_p95"`
	LatencyP99 float64 `json:"latency_p99"`
	LatencyAvg float64 `json:"latency_avg"`
	LatencyMin float64 `json:"latency_min"`
	LatencyMax float64 `json:"latency_max"`

	TotalPromptTokens     int `json:"total_prompt_tokens"`
	TotalCompletionTokens int `json:"total_completion_tokens"`
	TotalTokens           int `json:"total_tokens"`
	TotalItems            int `json:"total_items"`

	AvgPromptTokens     float64 `json:"avg_prompt_tokens"`
	AvgCompletionTokens float64 `json:"avg_completion_tokens"`
	AvgTotalTokens      float64 `json:"avg_total_tokens"`
}

// GetDetailedStats returns detailed statistics for metrics matching the
// filter.
func (q *Query) GetDetailedStats(ctx context.Context, f Filter) (*DetailedStats, error) {
	metrics, err := q.List(ctx, f, 0)
	if err != nil {
		return nil, err
	}
	return detailedStats(metrics), nil
}

// OperationStats returns detailed stats grouped by operation, optionally
// scoped to one document.
func (q *Query) OperationStats(ctx context.Context, documentID string) (map[string]*DetailedStats, error) {
	metrics, err := q.List(ctx, Filter{DocumentID: documentID}, 0)
	if err != nil {
		return nil, err
	}

	byOp := make(map[string][]Metric)
	for _, m := range metrics {
		if m.Operation != "" {
			byOp[m.Operation] = append(byOp[m.Operation], m)
		}
	}

	result := make(map[string]*DetailedStats, len(byOp))
	for op, opMetrics := range byOp {
		result[op] = detailedStats(opMetrics)
	}
	return result, nil
}

func detailedStats(metrics []Metric) *DetailedStats {
	stats := &DetailedStats{Count: len(metrics)}
	if len(metrics) == 0 {
		return stats
	}

	var latencies []float64
	for _, m := range metrics {
		stats.TotalCostUSD += m.CostUSD

		if m.Success {
			stats.SuccessCount++
		} else {
			stats.ErrorCount++
		}

		stats.TotalPromptTokens += m.PromptTokens
		stats.TotalCompletionTokens += m.CompletionTokens
		stats.TotalTokens += m.TotalTokens
		stats.TotalItems += m.Items

		if m.DurationSeconds > 0 {
			latencies = append(latencies, m.DurationSeconds)
		}
	}

	count := float64(stats.Count)
	stats.AvgCostUSD = stats.TotalCostUSD / count
	stats.AvgPromptTokens = float64(stats.TotalPromptTokens) / count
	stats.AvgCompletionTokens = float64(stats.TotalCompletionTokens) / count
	stats.AvgTotalTokens = float64(stats.TotalTokens) / count

	if len(latencies) > 0 {
		sort.Float64s(latencies)

		stats.LatencyMin = latencies[0]
		stats.LatencyMax = latencies[len(latencies)-1]

		var sum float64
		for _, l := range latencies {
			sum += l
		}
		stats.LatencyAvg = sum / float64(len(latencies))

		stats.LatencyP50 = percentile(latencies, 50)
		stats.LatencyP95 = percentile(latencies, 95)
		stats.LatencyP99 = percentile(latencies, 99)
	}

	return stats
}

// percentile calculates the p-th percentile from a sorted slice, with linear
// interpolation between adjacent values.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}

	n := float64(len(sorted))
	idx := (p / 100.0) * (n - 1)

	lower := int(idx)
	upper := lower + 1
	if upper >= len(sorted) {
		return sorted[len(sorted)-1]
	}

	weight := idx - float64(lower)
	return sorted[lower]*(1-weight) + sorted[upper]*weight
}
