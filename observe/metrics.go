package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric instrument names.
const (
	MetricCallsTotal     = "tokengate.calls.total"
	MetricCallErrors     = "tokengate.calls.errors"
	MetricTokensConsumed = "tokengate.tokens.consumed"
	MetricTokensLeft     = "tokengate.tokens.left"
	MetricCallDuration   = "tokengate.call.duration_ms"
	MetricTokenWait      = "tokengate.token.wait_ms"
)

type metricsSink struct {
	totalCount   metric.Int64Counter
	errorCount   metric.Int64Counter
	consumed     metric.Int64Counter
	tokensLeft   metric.Int64Gauge
	durationHist metric.Float64Histogram
	waitHist     metric.Float64Histogram
}

// NewMetricsSink creates a Sink that records calls as OpenTelemetry metrics.
func NewMetricsSink(meter metric.Meter) (Sink, error) {
	return newMetricsSink(meter)
}

func newMetricsSink(meter metric.Meter) (*metricsSink, error) {
	var (
		m   metricsSink
		err error
	)

	if m.totalCount, err = meter.Int64Counter(MetricCallsTotal,
		metric.WithDescription("Governed calls, successful or not"),
		metric.WithUnit("{call}"),
	); err != nil {
		return nil, err
	}
	if m.errorCount, err = meter.Int64Counter(MetricCallErrors,
		metric.WithDescription("Governed calls that failed, by error kind"),
		metric.WithUnit("{error}"),
	); err != nil {
		return nil, err
	}
	if m.consumed, err = meter.Int64Counter(MetricTokensConsumed,
		metric.WithDescription("Tokens taken from the local budget"),
		metric.WithUnit("{token}"),
	); err != nil {
		return nil, err
	}
	if m.tokensLeft, err = meter.Int64Gauge(MetricTokensLeft,
		metric.WithDescription("Tokens available after the most recent call"),
		metric.WithUnit("{token}"),
	); err != nil {
		return nil, err
	}
	if m.durationHist, err = meter.Float64Histogram(MetricCallDuration,
		metric.WithDescription("Governed call latency in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}
	if m.waitHist, err = meter.Float64Histogram(MetricTokenWait,
		metric.WithDescription("Time spent waiting for budget in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}

	return &m, nil
}

func (m *metricsSink) Record(ctx context.Context, rec CallRecord) {
	op := metric.WithAttributes(attribute.String("operation", rec.Meta.Operation))

	m.totalCount.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", rec.Meta.Operation),
		attribute.Bool("success", rec.Success),
		attribute.Bool("cached", rec.Cached),
	))
	if !rec.Success {
		m.errorCount.Add(ctx, 1, metric.WithAttributes(
			attribute.String("operation", rec.Meta.Operation),
			attribute.String("error_kind", rec.ErrorKind),
		))
	}
	if rec.TokensConsumed > 0 {
		m.consumed.Add(ctx, int64(rec.TokensConsumed), op)
	}
	m.tokensLeft.Record(ctx, int64(rec.TokensLeft))
	m.durationHist.Record(ctx, rec.LatencyMs(), op)
	m.waitHist.Record(ctx, float64(rec.Waited.Milliseconds()), op)
}
