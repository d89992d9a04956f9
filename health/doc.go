// Package health reports whether a tokengate instance can still do useful
// work.
//
// A Checker reports one component as Healthy, Degraded or Unhealthy. The
// budget checker watches the governor's token estimate and its auth failures:
//
//	agg := health.NewAggregator()
//	agg.Register(health.BudgetChecker(gov, health.BudgetCheckerConfig{}))
//
//	results := agg.CheckAll(ctx)
//	overall := health.Overall(results)
//
// A drained budget is Degraded, not Unhealthy: calls will succeed again once
// the window refills. A rejected API key is Unhealthy until
// AuthFailureWindow has passed without another rejection.
//
// # HTTP Endpoints
//
//	r.Get("/healthz", health.LivenessHandler())
//	r.Get("/readyz", health.ReadinessHandler(agg))
//	r.Get("/health", health.DetailedHandler(agg))
package health
