package governor

import (
	"context"
	"net/http"
	"net/url"

	"github.com/jonwraymond/tokengate/resilience"
)

// Request describes one upstream request.
type Request struct {
	// Operation is the registered operation name. Do fills it in.
	Operation string

	// Method defaults to GET.
	Method string

	// Path is appended to the transport's base URL.
	Path string

	Params url.Values
	Body   []byte
	Header http.Header

	// Units multiplies the operation's cost for per-item pricing, such as
	// one product lookup covering several identifiers. Zero counts as one.
	Units int
}

func (r *Request) method() string {
	if r.Method == "" {
		return http.MethodGet
	}
	return r.Method
}

// Response is an upstream response together with the budget hint parsed
// from it.
type Response struct {
	Body   []byte
	Status int
	Header http.Header
	Hint   *resilience.BudgetHint

	// Cached is set when the body came from the response cache and no
	// tokens were spent.
	Cached bool
}

// Transport sends one request upstream.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: Send must honor cancellation and deadlines.
// - Errors: failures are returned as *resilience.ClassifiedError, or as
//   network errors resilience.Classify understands. A hint carried by a
//   failure is still applied to the budget.
type Transport interface {
	Send(ctx context.Context, req *Request) (*Response, error)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, req *Request) (*Response, error)

// Send calls f.
func (f TransportFunc) Send(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// AttemptFunc performs one attempt of a governed call.
type AttemptFunc func(ctx context.Context) (*Response, error)
