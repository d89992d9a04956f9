package governor

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// BatchResult is the outcome of one request in DoAll.
type BatchResult struct {
	Index    int
	Request  *Request
	Response *Response
	Err      error
}

// DoAll sends every request as the named operation with at most concurrency
// calls in flight. Each request succeeds or fails on its own; one failure
// never cancels the rest. Results keep the order of reqs.
//
// A concurrency of zero or less uses the bulkhead size.
func (c *Client) DoAll(ctx context.Context, op string, reqs []*Request, concurrency int) []BatchResult {
	if concurrency <= 0 {
		concurrency = c.gate.Bulkhead().Metrics().MaxConcurrent
	}

	results := make([]BatchResult, len(reqs))
	var g errgroup.Group
	g.SetLimit(concurrency)

	for i, req := range reqs {
		g.Go(func() error {
			resp, err := c.Do(ctx, op, req)
			results[i] = BatchResult{Index: i, Request: req, Response: resp, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// Failed returns the results that carry an error.
func Failed(results []BatchResult) []BatchResult {
	var out []BatchResult
	for _, r := range results {
		if r.Err != nil {
			out = append(out, r)
		}
	}
	return out
}
