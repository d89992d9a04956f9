// Package governor spends an upstream token budget on behalf of callers.
//
// A Client owns one token bucket, one retry policy per operation and the
// telemetry for every call it makes. Callers either hand it a closure with
// [Client.Call] or describe the request and let the operation registry
// supply cost, policy and caching with [Client.Do].
//
// Each governed call goes through these stages:
//
//  1. the circuit breaker, when configured;
//  2. the token bucket, waiting up to MaxWait for the cost;
//  3. the retry loop, where every attempt is paced, bulkheaded and bounded
//     by its own timeout;
//  4. reconciliation of the bucket from the server's budget hint;
//  5. one CallRecord to the observe.Sink and one span.
//
// # Errors
//
// Failures keep their classification, so callers branch with errors.Is:
//
//	resp, err := client.Do(ctx, "deals", req)
//	switch {
//	case errors.Is(err, resilience.ErrTokenInsufficient):
//		// defer and try later
//	case errors.Is(err, resilience.ErrNoAccess):
//		// degrade
//	}
//
// # Transport
//
// [HTTPTransport] talks to a JSON API that reports its budget in the body
// (tokensLeft, refillIn, refillRate) or in X-RateLimit headers. Any other
// upstream can be governed by implementing [Transport].
package governor
