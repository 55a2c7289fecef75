package pricing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type metrics struct {
	quotes metric.Int64Counter
}

func newMetrics(m metric.Meter) (*metrics, error) {
	quotes, err := m.Int64Counter("pricing.quotes",
		metric.WithDescription("Formatted price quotes"),
	)
	if err != nil {
		return nil, err
	}
	return &metrics{quotes: quotes}, nil
}

func (m *metrics) recordQuote(ctx context.Context, q *Quote) {
	m.quotes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("discount_type", string(q.AppliedDiscountType)),
		attribute.String("stacking_path", string(q.StackingPath)),
		attribute.Bool("bulk", q.Bulk),
	))
}
