package router

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	// InstrumentationName is the name used for OTEL instrumentation.
	InstrumentationName = "github.com/fyrsmithlabs/ctxroute/internal/router"
)

// Metrics provides OpenTelemetry metrics for the router.
type Metrics struct {
	decisionsTotal metric.Int64Counter
	updatesTotal   metric.Int64Counter
	prunedTotal    metric.Int64Counter
	tdError        metric.Float64Histogram

	initialized bool
}

// NewMetrics creates router instruments from meter, or from the global
// meter provider when meter is nil.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		meter = otel.Meter(InstrumentationName)
	}

	m := &Metrics{}
	var err error

	m.decisionsTotal, err = meter.Int64Counter(
		"ctxroute.router.decisions.total",
		metric.WithDescription("Total number of route decisions"),
		metric.WithUnit("{decision}"),
	)
	if err != nil {
		return nil, err
	}

	m.updatesTotal, err = meter.Int64Counter(
		"ctxroute.router.updates.total",
		metric.WithDescription("Total number of accepted reward updates"),
		metric.WithUnit("{update}"),
	)
	if err != nil {
		return nil, err
	}

	m.prunedTotal, err = meter.Int64Counter(
		"ctxroute.router.pruned.total",
		metric.WithDescription("Total number of Q-table entries evicted by pruning"),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		return nil, err
	}

	m.tdError, err = meter.Float64Histogram(
		"ctxroute.router.td_error",
		metric.WithDescription("Absolute temporal-difference error per update"),
		metric.WithUnit("1"),
		metric.WithExplicitBucketBoundaries(0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5),
	)
	if err != nil {
		return nil, err
	}

	m.initialized = true
	return m, nil
}

// RecordDecision records one routing call. The route label set is fixed
// configuration, so it is safe as an attribute.
func (m *Metrics) RecordDecision(ctx context.Context, d Decision) {
	if m == nil || !m.initialized {
		return
	}
	m.decisionsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("route", d.Route),
		attribute.Bool("explored", d.Explored),
		attribute.Bool("cached", d.Cached),
	))
}

// RecordUpdate records an accepted update and its absolute TD error.
func (m *Metrics) RecordUpdate(ctx context.Context, route string, absTDError float64) {
	if m == nil || !m.initialized {
		return
	}
	attrs := metric.WithAttributes(attribute.String("route", route))
	m.updatesTotal.Add(ctx, 1, attrs)
	m.tdError.Record(ctx, absTDError, attrs)
}

// RecordPruned records evicted table entries.
func (m *Metrics) RecordPruned(ctx context.Context, n int) {
	if m == nil || !m.initialized || n == 0 {
		return
	}
	m.prunedTotal.Add(ctx, int64(n))
}
