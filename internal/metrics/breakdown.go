package metrics

import "context"

// DocumentCost returns the total cost attributed to a document.
func (q *Query) DocumentCost(ctx context.Context, documentID string) (float64, error) {
	return q.TotalCost(ctx, Filter{DocumentID: documentID})
}

// OperationCost returns the total cost for one operation across all documents.
func (q *Query) OperationCost(ctx context.Context, operation string) (float64, error) {
	return q.TotalCost(ctx, Filter{Operation: operation})
}

// CostByOperation returns cost grouped by operation for metrics matching the
// filter.
func (q *Query) CostByOperation(ctx context.Context, f Filter) (map[string]float64, error) {
	metrics, err := q.List(ctx, f, 0)
	if err != nil {
		return nil, err
	}

	breakdown := make(map[string]float64)
	for _, m := range metrics {
		breakdown[m.Operation] += m.CostUSD
	}
	return breakdown, nil
}

// CostByModel returns cost grouped by model.
func (q *Query) CostByModel(ctx context.Context, f Filter) (map[string]float64, error) {
	metrics, err := q.List(ctx, f, 0)
	if err != nil {
		return nil, err
	}

	breakdown := make(map[string]float64)
	for _, m := range metrics {
		breakdown[m.Model] += m.CostUSD
	}
	return breakdown, nil
}

// CostByProvider returns cost grouped by provider.
func (q *Query) CostByProvider(ctx context.Context, f Filter) (map[string]float64, error) {
	metrics, err := q.List(ctx, f, 0)
	if err != nil {
		return nil, err
	}

	breakdown := make(map[string]float64)
	for _, m := range metrics {
		breakdown[m.Provider] += m.CostUSD
	}
	return breakdown, nil
}
