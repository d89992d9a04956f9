package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Cache stores upstream response bodies so identical lookups inside the TTL
// do not spend budget twice. Implementations are safe for concurrent use.
//
// Get never reports backend failures: an unreachable store reads as a miss
// and the call goes upstream.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)

	// Set stores value for ttl. A ttl <= 0 stores nothing.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key. A missing key is not an error.
	Delete(ctx context.Context, key string) error
}

var (
	ErrNilCache       = errors.New("cache: cache is nil")
	ErrInvalidKey     = errors.New("cache: key is invalid")
	ErrKeyTooLong     = errors.New("cache: key exceeds max length")
	ErrUnknownBackend = errors.New("cache: unknown backend")
)

// MaxKeyLength bounds cache keys.
const MaxKeyLength = 512

// ValidateKey rejects blank keys, keys with line breaks and keys longer
// than MaxKeyLength.
func ValidateKey(key string) error {
	switch {
	case strings.TrimSpace(key) == "", strings.ContainsAny(key, "\r\n"):
		return ErrInvalidKey
	case len(key) > MaxKeyLength:
		return fmt.Errorf("%w: %d bytes", ErrKeyTooLong, len(key))
	}
	return nil
}

// Policy decides how long a cacheable operation's response is kept.
type Policy struct {
	// DefaultTTL applies to operations without their own TTL. Zero leaves
	// such operations uncached.
	DefaultTTL time.Duration `mapstructure:"default_ttl"`

	// MaxTTL caps every TTL. Zero means no cap.
	MaxTTL time.Duration `mapstructure:"max_ttl"`
}

// DefaultPolicy keeps responses 5 minutes unless an operation asks for
// more, and never longer than an hour.
func DefaultPolicy() Policy {
	return Policy{DefaultTTL: 5 * time.Minute, MaxTTL: time.Hour}
}

// TTLFor returns the TTL for an operation whose own TTL is opTTL. A result
// of zero means the response is not stored.
func (p Policy) TTLFor(opTTL time.Duration) time.Duration {
	ttl := p.DefaultTTL
	if opTTL > 0 {
		ttl = opTTL
	}
	if p.MaxTTL > 0 {
		ttl = min(ttl, p.MaxTTL)
	}
	return max(ttl, 0)
}
