package observe

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("log line is not JSON: %v\n%s", err, line)
		}
		out = append(out, entry)
	}
	return out
}

func TestLogger_JSONShape(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("info", &buf)

	logger.Info(context.Background(), "bucket seeded", F("tokens_left", 180))

	entries := decodeLines(t, &buf)
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	e := entries[0]
	if e["msg"] != "bucket seeded" {
		t.Errorf("msg = %v, want bucket seeded", e["msg"])
	}
	if e["level"] != "info" {
		t.Errorf("level = %v, want info", e["level"])
	}
	if _, ok := e["timestamp"]; !ok {
		t.Error("timestamp missing")
	}
	if e["tokens_left"] != float64(180) {
		t.Errorf("tokens_left = %v, want 180", e["tokens_left"])
	}
}

func TestLogger_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("warn", &buf)
	ctx := context.Background()

	logger.Debug(ctx, "debug")
	logger.Info(ctx, "info")
	logger.Warn(ctx, "warn")
	logger.Error(ctx, "error")

	entries := decodeLines(t, &buf)
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2 (warn and error)", len(entries))
	}
}

func TestLogger_UnknownLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("verbose", &buf)

	logger.Debug(context.Background(), "hidden")
	logger.Info(context.Background(), "shown")

	if got := len(decodeLines(t, &buf)); got != 1 {
		t.Errorf("got %d entries, want 1", got)
	}
}

func TestLogger_Redaction(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("info", &buf)

	logger.Info(context.Background(), "request",
		F("key", "abc123"),
		F("api_key", "abc123"),
		F("Authorization", "Bearer xyz"),
		F("path", "/product"),
	)

	out := buf.String()
	if strings.Contains(out, "abc123") || strings.Contains(out, "xyz") {
		t.Errorf("secret leaked into log output: %s", out)
	}
	e := decodeLines(t, &buf)[0]
	if e["path"] != "/product" {
		t.Errorf("path = %v, want /product", e["path"])
	}
	if e["key"] != "[REDACTED]" {
		t.Errorf("key = %v, want [REDACTED]", e["key"])
	}
}

func TestLogger_WithOperation(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("info", &buf).WithOperation(CallMeta{
		Operation: "product",
		CallID:    "c-1",
		Endpoint:  "/product",
	})

	logger.Info(context.Background(), "call completed")

	e := decodeLines(t, &buf)[0]
	for k, want := range map[string]string{"operation": "product", "call_id": "c-1", "endpoint": "/product"} {
		if e[k] != want {
			t.Errorf("%s = %v, want %s", k, e[k], want)
		}
	}
}

func TestLogger_TraceCorrelation(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("info", &buf)

	tp := sdktrace.NewTracerProvider()
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	logger.Info(ctx, "inside span")

	e := decodeLines(t, &buf)[0]
	if e["trace_id"] != span.SpanContext().TraceID().String() {
		t.Errorf("trace_id = %v, want %s", e["trace_id"], span.SpanContext().TraceID())
	}
}

func TestNopLogger(t *testing.T) {
	l := NopLogger()
	l.Info(context.Background(), "ignored")
	if l.With(F("a", 1)) == nil || l.WithOperation(CallMeta{}) == nil {
		t.Error("NopLogger derived loggers are nil")
	}
	if err := l.Sync(); err != nil {
		t.Errorf("Sync() error = %v", err)
	}
}
