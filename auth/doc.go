// Package auth guards the operator endpoints of the tokengate server.
//
// Operators authenticate with either an API key (compared by SHA-256 hash,
// so only hashes live in configuration) or an HS256 JWT. Middleware tries
// each configured Authenticator in order and attaches the resulting
// Identity to the request context; RequireRole then gates handlers that
// change governor state.
package auth
