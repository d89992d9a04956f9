package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/jonwraymond/tokengate/observe"
)

// Middleware authenticates every request with the first supporting
// authenticator and rejects the rest with 401. With no authenticators
// configured every request is rejected.
func Middleware(logger observe.Logger, auths ...Authenticator) func(http.Handler) http.Handler {
	if logger == nil {
		logger = observe.NopLogger()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			res, err := Authenticate(ctx, &Request{Header: r.Header}, auths...)
			if err != nil {
				logger.Error(ctx, "authentication error", observe.F("error", err.Error()))
				writeError(w, http.StatusInternalServerError, "authentication unavailable")
				return
			}
			if !res.Authenticated || res.Identity.Expired(time.Now()) {
				reason := ErrTokenExpired
				if !res.Authenticated {
					reason = res.Err
				}
				if reason == nil {
					reason = ErrInvalidCredentials
				}
				logger.Warn(ctx, "authentication rejected",
					observe.F("method", string(res.Method)),
					observe.F("reason", reason.Error()),
					observe.F("path", r.URL.Path),
				)
				if errors.Is(reason, ErrMissingCredentials) {
					w.Header().Set("WWW-Authenticate", `Bearer realm="tokengate"`)
				}
				writeError(w, http.StatusUnauthorized, reason.Error())
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(ctx, res.Identity)))
		})
	}
}

// RequireRole rejects requests whose identity lacks role with 403.
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !IdentityFromContext(r.Context()).HasRole(role) {
				writeError(w, http.StatusForbidden, ErrForbidden.Error())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
