package auth

import (
	"context"
	"net/http"
)

// Authenticator validates the credentials carried by a request.
//
// Authenticate returns (nil, err) only for internal failures. Rejected
// credentials are reported as a Result with Authenticated false.
type Authenticator interface {
	Name() string

	// Supports reports whether the request carries credentials of this kind.
	Supports(req *Request) bool

	Authenticate(ctx context.Context, req *Request) (*Result, error)
}

// Request holds the parts of an HTTP request authenticators look at.
type Request struct {
	Header http.Header
}

// Result is the outcome of one authentication attempt.
type Result struct {
	Authenticated bool
	Identity      *Identity
	Err           error
	Method        Method
}

func success(id *Identity) *Result {
	return &Result{Authenticated: true, Identity: id, Method: id.Method}
}

func failure(err error, m Method) *Result {
	return &Result{Err: err, Method: m}
}

// Authenticate runs the first authenticator that supports req. It returns
// ErrMissingCredentials in the Result when none does.
func Authenticate(ctx context.Context, req *Request, auths ...Authenticator) (*Result, error) {
	for _, a := range auths {
		if a.Supports(req) {
			return a.Authenticate(ctx, req)
		}
	}
	return failure(ErrMissingCredentials, ""), nil
}
