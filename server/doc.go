// Package server exposes a governor over HTTP: health probes, Prometheus
// metrics, the current budget, session stats, and an authenticated
// endpoint for operators to correct the budget estimate.
package server
