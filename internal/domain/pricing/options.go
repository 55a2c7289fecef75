package pricing

import (
	"time"

	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// DefaultMaxChainDepth bounds the upgrade chain walk.
const DefaultMaxChainDepth = 32

type options struct {
	ppp           PPPTable
	tiers         BulkTiers
	maxChainDepth int
	tracer        trace.Tracer
	meter         metric.Meter
	now           func() time.Time
}

// Option configures a Resolver or Formatter.
type Option func(*options)

// WithPPPTable replaces the country discount table.
func WithPPPTable(t PPPTable) Option {
	return func(o *options) { o.ppp = t }
}

// WithBulkTiers replaces the seat tiers.
func WithBulkTiers(t BulkTiers) Option {
	return func(o *options) { o.tiers = t }
}

// WithMaxChainDepth sets how many purchases an upgrade chain may span.
func WithMaxChainDepth(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxChainDepth = n
		}
	}
}

// WithTracerProvider sets the tracer provider used for spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.tracer = tp.Tracer("pricing") }
}

// WithMeterProvider sets the meter provider used for quote counters.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) { o.meter = mp.Meter("pricing") }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func newOptions(opts []Option) options {
	o := options{
		ppp:           DefaultPPPTable(),
		tiers:         DefaultBulkTiers(),
		maxChainDepth: DefaultMaxChainDepth,
		tracer:        tracenoop.NewTracerProvider().Tracer("pricing"),
		meter:         metricnoop.NewMeterProvider().Meter("pricing"),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
