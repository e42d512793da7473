package endpoints

import (
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/spf13/cobra"

	"github.com/snapgloss/snapgloss/internal/api"
	"github.com/snapgloss/snapgloss/internal/metrics"
	"github.com/snapgloss/snapgloss/internal/svcctx"
)

// metricsFilterFromQuery builds a metrics filter from request query params.
func metricsFilterFromQuery(r *http.Request) metrics.Filter {
	return metrics.Filter{
		DocumentID: r.URL.Query().Get("document"),
		Operation:  r.URL.Query().Get("operation"),
		Provider:   r.URL.Query().Get("provider"),
		Model:      r.URL.Query().Get("model"),
	}
}

// metricsQueryPath appends filter params to an API path.
func metricsQueryPath(base, document, operation, provider, model string) string {
	q := url.Values{}
	if document != "" {
		q.Set("document", document)
	}
	if operation != "" {
		q.Set("operation", operation)
	}
	if provider != "" {
		q.Set("provider", provider)
	}
	if model != "" {
		q.Set("model", model)
	}
	if len(q) == 0 {
		return base
	}
	return base + "?" + q.Encode()
}

// MetricsSummaryResponse is the response for summary queries.
type MetricsSummaryResponse struct {
	Count            int     `json:"count"`
	TotalCostUSD     float64 `json:"total_cost_usd"`
	TotalTokens      int     `json:"total_tokens"`
	TotalItems       int     `json:"total_items"`
	TotalTimeSeconds float64 `json:"total_time_seconds"`
	SuccessCount     int     `json:"success_count"`
	ErrorCount       int     `json:"error_count"`
	AvgCostUSD       float64 `json:"avg_cost_usd"`
	AvgTokens        float64 `json:"avg_tokens"`
	AvgTimeSeconds   float64 `json:"avg_time_seconds"`
}

// MetricsSummaryEndpoint handles GET /api/metrics/summary.
type MetricsSummaryEndpoint struct{}

var _ api.Endpoint = (*MetricsSummaryEndpoint)(nil)

func (e *MetricsSummaryEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/metrics/summary", e.handler
}

func (e *MetricsSummaryEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Get metrics summary
//	@Description	Aggregate cost, token and latency figures for remote calls
//	@Tags			metrics
//	@Produce		json
//	@Param			document	query		string	false	"Filter by document ID"
//	@Param			operation	query		string	false	"Filter by operation"
//	@Param			provider	query		string	false	"Filter by provider"
//	@Param			model		query		string	false	"Filter by model"
//	@Success		200			{object}	MetricsSummaryResponse
//	@Failure		500			{object}	ErrorResponse
//	@Failure		503			{object}	ErrorResponse
//	@Router			/api/metrics/summary [get]
func (e *MetricsSummaryEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	query := svcctx.MetricsQueryFrom(r.Context())
	if query == nil {
		writeError(w, http.StatusServiceUnavailable, "metrics query not initialized")
		return
	}

	summary, err := query.GetSummary(r.Context(), metricsFilterFromQuery(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, MetricsSummaryResponse{
		Count:            summary.Count,
		TotalCostUSD:     summary.TotalCostUSD,
		TotalTokens:      summary.TotalTokens,
		TotalItems:       summary.TotalItems,
		TotalTimeSeconds: summary.TotalTime.Seconds(),
		SuccessCount:     summary.SuccessCount,
		ErrorCount:       summary.ErrorCount,
		AvgCostUSD:       summary.AvgCostUSD,
		AvgTokens:        summary.AvgTokens,
		AvgTimeSeconds:   summary.AvgTimeSeconds,
	})
}

func (e *MetricsSummaryEndpoint) Command(getServerURL func() string) *cobra.Command {
	var document, operation, provider, model string

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Get metrics summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client := api.NewClient(getServerURL())

			path := metricsQueryPath("/api/metrics/summary", document, operation, provider, model)
			var resp MetricsSummaryResponse
			if err := client.Get(ctx, path, &resp); err != nil {
				return err
			}

			fmt.Printf("Metrics Summary\n")
			fmt.Printf("===============\n")
			fmt.Printf("  Count:       %d\n", resp.Count)
			fmt.Printf("  Success:     %d\n", resp.SuccessCount)
			fmt.Printf("  Errors:      %d\n", resp.ErrorCount)
			fmt.Println()
			fmt.Printf("  Total Cost:  $%.4f\n", resp.TotalCostUSD)
			fmt.Printf("  Avg Cost:    $%.6f\n", resp.AvgCostUSD)
			fmt.Println()
			fmt.Printf("  Total Tokens: %d\n", resp.TotalTokens)
			fmt.Printf("  Avg Tokens:   %.1f\n", resp.AvgTokens)
			fmt.Println()
			fmt.Printf("  Total Time:   %s\n", time.Duration(resp.TotalTimeSeconds*float64(time.Second)))
			fmt.Printf("  Avg Time:     %.2fs\n", resp.AvgTimeSeconds)

			return nil
		},
	}

	cmd.Flags().StringVar(&document, "document", "", "Filter by document ID")
	cmd.Flags().StringVar(&operation, "operation", "", "Filter by operation")
	cmd.Flags().StringVar(&provider, "provider", "", "Filter by provider")
	cmd.Flags().StringVar(&model, "model", "", "Filter by model")

	return cmd
}

// ListMetricsResponse is the response for listing raw metrics.
type ListMetricsResponse struct {
	Metrics []metrics.Metric `json:"metrics"`
	Count   int              `json:"count"`
}

// ListMetricsEndpoint handles GET /api/metrics.
type ListMetricsEndpoint struct{}

var _ api.Endpoint = (*ListMetricsEndpoint)(nil)

func (e *ListMetricsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/metrics", e.handler
}

func (e *ListMetricsEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		List metrics
//	@Description	List raw per-call metric records
//	@Tags			metrics
//	@Produce		json
//	@Param			document	query		string	false	"Filter by document ID"
//	@Param			operation	query		string	false	"Filter by operation"
//	@Param			provider	query		string	false	"Filter by provider"
//	@Param			model		query		string	false	"Filter by model"
//	@Param			limit		query		int		false	"Maximum records (default 100)"
//	@Success		200			{object}	ListMetricsResponse
//	@Failure		500			{object}	ErrorResponse
//	@Failure		503			{object}	ErrorResponse
//	@Router			/api/metrics [get]
func (e *ListMetricsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	query := svcctx.MetricsQueryFrom(r.Context())
	if query == nil {
		writeError(w, http.StatusServiceUnavailable, "metrics query not initialized")
		return
	}

	limit := queryInt(r, "limit", 100)
	if limit < 0 {
		writeError(w, http.StatusBadRequest, "limit must be >= 0")
		return
	}

	list, err := query.List(r.Context(), metricsFilterFromQuery(r), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, ListMetricsResponse{
		Metrics: list,
		Count:   len(list),
	})
}

func (e *ListMetricsEndpoint) Command(getServerURL func() string) *cobra.Command {
	var document, operation, provider, model string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List raw metric records",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client := api.NewClient(getServerURL())

			path := metricsQueryPath("/api/metrics", document, operation, provider, model)
			if limit > 0 {
				sep := "?"
				if path != "/api/metrics" {
					sep = "&"
				}
				path = fmt.Sprintf("%s%slimit=%d", path, sep, limit)
			}

			var resp ListMetricsResponse
			if err := client.Get(ctx, path, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}

	cmd.Flags().StringVar(&document, "document", "", "Filter by document ID")
	cmd.Flags().StringVar(&operation, "operation", "", "Filter by operation")
	cmd.Flags().StringVar(&provider, "provider", "", "Filter by provider")
	cmd.Flags().StringVar(&model, "model", "", "Filter by model")
	cmd.Flags().IntVar(&limit, "limit", 100, "Maximum records")

	return cmd
}
