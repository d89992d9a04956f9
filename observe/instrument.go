package observe

// Instrumentation bundles the telemetry a governed client needs.
type Instrumentation struct {
	Tracer Tracer
	Sink   Sink
	Logger Logger
}

// NopInstrumentation returns instrumentation that records nothing.
func NopInstrumentation() Instrumentation {
	return Instrumentation{Tracer: NopTracer(), Sink: NopSink(), Logger: NopLogger()}
}

// InstrumentationFromObserver wires spans, metrics and per-call log entries
// from an Observer.
func InstrumentationFromObserver(obs Observer) (Instrumentation, error) {
	if obs == nil {
		return Instrumentation{}, ErrNilObserver
	}

	metrics, err := newMetricsSink(obs.Meter())
	if err != nil {
		return Instrumentation{}, err
	}

	return Instrumentation{
		Tracer: NewTracer(obs.Tracer()),
		Sink:   MultiSink{metrics, NewLogSink(obs.Logger())},
		Logger: obs.Logger(),
	}, nil
}
