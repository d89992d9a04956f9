package observe

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Config validation errors.
var (
	ErrMissingServiceName     = errors.New("observe: service name is required")
	ErrInvalidSamplePct       = errors.New("observe: sample_pct must be within [0, 1]")
	ErrInvalidTracingExporter = errors.New("observe: unknown tracing exporter")
	ErrInvalidMetricsExporter = errors.New("observe: unknown metrics exporter")
	ErrInvalidLogLevel        = errors.New("observe: unknown log level")
	ErrInvalidLogFormat       = errors.New("observe: unknown log format")
)

// ErrNilObserver is returned when instrumentation is built from a nil
// Observer.
var ErrNilObserver = errors.New("observe: nil observer")

// choices lists the accepted values of a config option. The empty string
// always selects the default.
type choices []string

var (
	tracingExporters = choices{"otlp", "stdout", "none"}
	metricsExporters = choices{"otlp", "prometheus", "stdout", "none"}
	logLevels        = choices{"debug", "info", "warn", "error"}
	logFormats       = choices{"json", "console"}
)

func (c choices) check(sentinel error, v string) error {
	if v == "" || slices.Contains(c, v) {
		return nil
	}
	return fmt.Errorf("%w %q (want %s)", sentinel, v, strings.Join(c, "|"))
}
