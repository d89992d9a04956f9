package cache

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"slices"
	"sort"
	"strings"
)

// Request is the cache-relevant shape of an upstream request.
type Request struct {
	Operation string
	Method    string
	Path      string
	Params    url.Values
	Body      []byte
}

// Keyer derives cache keys from requests.
//
// Contract:
// - Determinism: equivalent requests produce the same key regardless of
//   parameter or JSON field order.
// - Concurrency: implementations must be safe for concurrent use.
type Keyer interface {
	Key(req Request) (string, error)
}

// RequestKeyer hashes a request into cache:<operation>:<16 hex chars>.
// Credential parameters are left out so rotating a key keeps the cache warm.
type RequestKeyer struct {
	// Exclude lists query parameters ignored when hashing.
	// Default: key, api_key
	Exclude []string
}

// NewRequestKeyer creates a keyer with the default exclusions.
func NewRequestKeyer() *RequestKeyer {
	return &RequestKeyer{Exclude: []string{"key", "api_key"}}
}

// Key implements Keyer.
func (k *RequestKeyer) Key(req Request) (string, error) {
	if req.Operation == "" {
		return "", fmt.Errorf("%w: operation is required", ErrInvalidKey)
	}

	h := sha256.New()
	fmt.Fprintf(h, "%s\n%s\n", strings.ToUpper(req.Method), req.Path)

	params := url.Values{}
	for name, vals := range req.Params {
		if slices.Contains(k.Exclude, name) {
			continue
		}
		params[name] = vals
	}
	// Encode sorts by parameter name.
	h.Write([]byte(params.Encode()))
	h.Write([]byte{'\n'})

	if len(req.Body) > 0 {
		body, err := canonicalBody(req.Body)
		if err != nil {
			return "", fmt.Errorf("cache: canonicalize body: %w", err)
		}
		h.Write(body)
	}

	sum := h.Sum(nil)
	key := fmt.Sprintf("cache:%s:%s", req.Operation, hex.EncodeToString(sum[:8]))
	return key, ValidateKey(key)
}

// canonicalBody re-encodes a JSON body with sorted object keys. Non-JSON
// bodies are hashed as is.
func canonicalBody(body []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return body, nil
	}
	return canonicalize(v)
}

func canonicalize(v any) ([]byte, error) {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		out := []byte("{")
		for i, k := range keys {
			if i > 0 {
				out = append(out, ',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return nil, err
			}
			vb, err := canonicalize(val[k])
			if err != nil {
				return nil, err
			}
			out = append(append(append(out, kb...), ':'), vb...)
		}
		return append(out, '}'), nil

	case []any:
		out := []byte("[")
		for i, e := range val {
			if i > 0 {
				out = append(out, ',')
			}
			eb, err := canonicalize(e)
			if err != nil {
				return nil, err
			}
			out = append(out, eb...)
		}
		return append(out, ']'), nil

	default:
		return json.Marshal(v)
	}
}

var _ Keyer = (*RequestKeyer)(nil)
