package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// DefaultAPIKeyHeader carries operator API keys.
const DefaultAPIKeyHeader = "X-API-Key"

// APIKey is a registered operator key.
type APIKey struct {
	// Name identifies the key holder and becomes the principal.
	Name string `mapstructure:"name"`

	// Hash is the hex SHA-256 of the key. See HashAPIKey.
	Hash string `mapstructure:"hash"`

	Roles []string `mapstructure:"roles"`
}

// APIKeyAuthenticator accepts keys whose hash is registered.
type APIKeyAuthenticator struct {
	header string
	keys   []APIKey
}

// NewAPIKeyAuthenticator creates an authenticator for keys read from header.
// An empty header means DefaultAPIKeyHeader.
func NewAPIKeyAuthenticator(header string, keys []APIKey) *APIKeyAuthenticator {
	if header == "" {
		header = DefaultAPIKeyHeader
	}
	normalized := make([]APIKey, len(keys))
	for i, k := range keys {
		k.Hash = strings.ToLower(strings.TrimSpace(k.Hash))
		normalized[i] = k
	}
	return &APIKeyAuthenticator{header: header, keys: normalized}
}

func (a *APIKeyAuthenticator) Name() string { return string(MethodAPIKey) }

func (a *APIKeyAuthenticator) Supports(req *Request) bool {
	return req.Header.Get(a.header) != ""
}

// Authenticate compares the key's hash against every registered hash so
// that timing does not reveal which entry matched.
func (a *APIKeyAuthenticator) Authenticate(_ context.Context, req *Request) (*Result, error) {
	key := strings.TrimSpace(req.Header.Get(a.header))
	if key == "" {
		return failure(ErrMissingCredentials, MethodAPIKey), nil
	}

	sum := []byte(HashAPIKey(key))
	var match *APIKey
	for i := range a.keys {
		if subtle.ConstantTimeCompare(sum, []byte(a.keys[i].Hash)) == 1 {
			match = &a.keys[i]
		}
	}
	if match == nil {
		return failure(ErrInvalidCredentials, MethodAPIKey), nil
	}

	return success(&Identity{
		Principal: match.Name,
		Roles:     match.Roles,
		Method:    MethodAPIKey,
	}), nil
}

// HashAPIKey returns the hex SHA-256 of key, the form stored in
// configuration.
func HashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

var _ Authenticator = (*APIKeyAuthenticator)(nil)
