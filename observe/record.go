package observe

import (
	"context"
	"time"
)

// CallRecord is the telemetry emitted once per governed call.
type CallRecord struct {
	Meta           CallMeta
	TokensConsumed int
	TokensLeft     int
	Latency        time.Duration
	Waited         time.Duration
	Attempts       int
	Success        bool
	ErrorKind      string // empty on success
	Cached         bool
	RefillIn       time.Duration // from the last server hint, if any
	RefillRate     int           // from the last server hint, if any
}

// LatencyMs returns the call latency in milliseconds.
func (r CallRecord) LatencyMs() float64 {
	return float64(r.Latency.Microseconds()) / 1000
}

// Sink receives call records.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: Record is best-effort; it must return quickly and must not
//   affect the call it describes.
type Sink interface {
	Record(ctx context.Context, rec CallRecord)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, rec CallRecord)

// Record calls f.
func (f SinkFunc) Record(ctx context.Context, rec CallRecord) { f(ctx, rec) }

// MultiSink fans a record out to several sinks. A panicking sink is
// recovered so the remaining sinks still see the record.
type MultiSink []Sink

// Record delivers rec to every sink.
func (m MultiSink) Record(ctx context.Context, rec CallRecord) {
	for _, s := range m {
		if s != nil {
			safeRecord(ctx, s, rec)
		}
	}
}

func safeRecord(ctx context.Context, s Sink, rec CallRecord) {
	defer func() { _ = recover() }()
	s.Record(ctx, rec)
}

// NopSink discards records.
func NopSink() Sink { return SinkFunc(func(context.Context, CallRecord) {}) }

type logSink struct {
	logger Logger
}

// NewLogSink logs one entry per call: info on success, warn on failure.
func NewLogSink(logger Logger) Sink {
	if logger == nil {
		logger = NopLogger()
	}
	return &logSink{logger: logger}
}

func (s *logSink) Record(ctx context.Context, rec CallRecord) {
	fields := []Field{
		{Key: "tokens_consumed", Value: rec.TokensConsumed},
		{Key: "tokens_left", Value: rec.TokensLeft},
		{Key: "response_time_ms", Value: rec.LatencyMs()},
		{Key: "attempts", Value: rec.Attempts},
		{Key: "success", Value: rec.Success},
	}
	if rec.Waited > 0 {
		fields = append(fields, Field{Key: "wait_ms", Value: rec.Waited.Milliseconds()})
	}
	if rec.RefillRate > 0 {
		fields = append(fields, Field{Key: "refill_rate", Value: rec.RefillRate})
	}
	if rec.RefillIn > 0 {
		fields = append(fields, Field{Key: "refill_in_ms", Value: rec.RefillIn.Milliseconds()})
	}
	if rec.Cached {
		fields = append(fields, Field{Key: "cached", Value: true})
	}

	l := s.logger.WithOperation(rec.Meta)
	if rec.Success {
		l.Info(ctx, "call completed", fields...)
		return
	}
	fields = append(fields, Field{Key: "error", Value: rec.ErrorKind})
	l.Warn(ctx, "call failed", fields...)
}
