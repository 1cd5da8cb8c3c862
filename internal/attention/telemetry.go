package attention

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// InstrumentationName is the name used for OTEL instrumentation.
const InstrumentationName = "github.com/fyrsmithlabs/ctxroute/internal/attention"

// Metrics provides OpenTelemetry metrics for attention calls.
type Metrics struct {
	duration metric.Float64Histogram
	calls    metric.Int64Counter
}

// NewMetrics creates attention instruments from meter, or from the global
// meter provider when meter is nil.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		meter = otel.Meter(InstrumentationName)
	}

	duration, err := meter.Float64Histogram(
		"ctxroute.attention.duration.seconds",
		metric.WithDescription("Attention computation latency"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5),
	)
	if err != nil {
		return nil, err
	}

	calls, err := meter.Int64Counter(
		"ctxroute.attention.calls.total",
		metric.WithDescription("Total number of attention computations"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{duration: duration, calls: calls}, nil
}

// Record records one completed computation on path.
func (m *Metrics) Record(ctx context.Context, path Path, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("path", string(path)))
	m.calls.Add(ctx, 1, attrs)
	m.duration.Record(ctx, elapsed.Seconds(), attrs)
}
