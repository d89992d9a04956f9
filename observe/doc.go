// Package observe provides the telemetry used around governed calls.
//
// Every governed call produces exactly one CallRecord, handed to a Sink on a
// best-effort basis: sinks never influence the outcome of the call. The
// package ships three sinks (otel metrics, structured log, and MultiSink to
// fan out) together with a span Tracer and a zap-backed Logger.
//
// Exporter setup lives in observe/exporters; nothing else here performs I/O
// beyond writing logs.
package observe
