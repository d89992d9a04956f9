package governor

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jonwraymond/tokengate/resilience"
)

// Budget headers understood when the body carries no hint.
const (
	HeaderRemaining  = "X-RateLimit-Remaining"
	HeaderReset      = "X-RateLimit-Reset"
	HeaderRetryAfter = "Retry-After"
)

// DefaultRateLimitRefill is assumed for a 429 that says nothing about when
// the budget comes back.
const DefaultRateLimitRefill = 15 * time.Second

// HTTPConfig configures an HTTPTransport.
type HTTPConfig struct {
	// BaseURL is prefixed to every request path.
	BaseURL string

	// APIKey is sent as the APIKeyParam query parameter. It is never logged.
	APIKey string

	// APIKeyParam names the key parameter.
	// Default: key
	APIKeyParam string

	// UserAgent is sent on every request.
	// Default: tokengate
	UserAgent string

	// MaxBodyBytes limits the response body.
	// Default: 32 MiB
	MaxBodyBytes int64

	// Client sends the requests. Per-attempt deadlines come from the context.
	// Default: a client with no overall timeout
	Client *http.Client
}

// HTTPTransport sends requests to a JSON API that reports its token budget
// alongside each response.
type HTTPTransport struct {
	config HTTPConfig
	base   *url.URL
	now    func() time.Time
}

// NewHTTPTransport creates an HTTP transport.
func NewHTTPTransport(config HTTPConfig) (*HTTPTransport, error) {
	base, err := url.Parse(config.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("%w: base URL %q", ErrInvalidConfig, config.BaseURL)
	}
	if config.APIKeyParam == "" {
		config.APIKeyParam = "key"
	}
	if config.UserAgent == "" {
		config.UserAgent = "tokengate"
	}
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = 32 << 20
	}
	if config.Client == nil {
		config.Client = &http.Client{}
	}

	return &HTTPTransport{config: config, base: base, now: time.Now}, nil
}

// KeyFingerprint identifies the configured API key in logs without
// revealing it.
func (t *HTTPTransport) KeyFingerprint() string {
	return HashKey(t.config.APIKey)
}

// Send implements Transport.
func (t *HTTPTransport) Send(ctx context.Context, req *Request) (*Response, error) {
	u := t.base.JoinPath(req.Path)
	q := url.Values{}
	for k, vs := range req.Params {
		q[k] = append([]string(nil), vs...)
	}
	if t.config.APIKey != "" {
		q.Set(t.config.APIKeyParam, t.config.APIKey)
	}
	u.RawQuery = q.Encode()

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.method(), u.String(), body)
	if err != nil {
		return nil, &resilience.ClassifiedError{Kind: resilience.KindFatal, Err: t.redact(err)}
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	httpReq.Header.Set("User-Agent", t.config.UserAgent)
	httpReq.Header.Set("Accept", "application/json")
	if len(req.Body) > 0 && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	res, err := t.config.Client.Do(httpReq)
	if err != nil {
		return nil, resilience.Classify(t.redact(err))
	}
	defer res.Body.Close()

	data, err := io.ReadAll(io.LimitReader(res.Body, t.config.MaxBodyBytes+1))
	if err != nil {
		return nil, resilience.Classify(t.redact(err))
	}
	if int64(len(data)) > t.config.MaxBodyBytes {
		return nil, &resilience.ClassifiedError{
			Kind:   resilience.KindFatal,
			Status: res.StatusCode,
			Err:    fmt.Errorf("%w: limit %d bytes", ErrBodyTooLarge, t.config.MaxBodyBytes),
		}
	}

	hint := ParseHint(res.Header, data, t.now())
	if res.StatusCode < 200 || res.StatusCode > 299 {
		if res.StatusCode == http.StatusTooManyRequests {
			hint = withDefaultRefill(hint)
		}
		return nil, resilience.ClassifyStatus(res.StatusCode, hint, &resilience.StatusError{
			Status: res.StatusCode,
			Body:   snippet(data),
		})
	}

	return &Response{
		Body:   data,
		Status: res.StatusCode,
		Header: res.Header,
		Hint:   hint,
	}, nil
}

// redact strips the API key from URLs embedded in err.
func (t *HTTPTransport) redact(err error) error {
	var ue *url.Error
	if t.config.APIKey == "" || !errors.As(err, &ue) {
		return err
	}
	ue.URL = strings.ReplaceAll(ue.URL, url.QueryEscape(t.config.APIKey), "REDACTED")
	return err
}

type bodyHint struct {
	TokensLeft     *int   `json:"tokensLeft"`
	RefillIn       *int64 `json:"refillIn"`
	RefillRate     *int   `json:"refillRate"`
	TokensConsumed *int   `json:"tokensConsumed"`
}

// ParseHint extracts the budget hint from a response. Body fields win over
// headers:
//
//   - tokensLeft, or the X-RateLimit-Remaining header;
//   - refillIn in milliseconds, or X-RateLimit-Reset in milliseconds, or
//     Retry-After in seconds or as an HTTP date;
//   - refillRate in tokens per minute;
//   - tokensConsumed, informational only.
//
// It returns nil when the response says nothing about the budget.
func ParseHint(header http.Header, body []byte, now time.Time) *resilience.BudgetHint {
	var h resilience.BudgetHint

	var b bodyHint
	if trimmed := bytes.TrimSpace(body); len(trimmed) > 0 && trimmed[0] == '{' {
		// A body that is not a JSON object, or is malformed, carries no hint.
		_ = json.Unmarshal(trimmed, &b)
	}

	if b.TokensLeft != nil {
		h.TokensLeft = b.TokensLeft
	} else if v, ok := headerInt(header, HeaderRemaining); ok {
		h.TokensLeft = resilience.Int(int(v))
	}

	switch {
	case b.RefillIn != nil && *b.RefillIn >= 0:
		h.RefillIn = resilience.Duration(time.Duration(*b.RefillIn) * time.Millisecond)
	default:
		if v, ok := headerInt(header, HeaderReset); ok && v >= 0 {
			h.RefillIn = resilience.Duration(time.Duration(v) * time.Millisecond)
		} else if d, ok := parseRetryAfter(header.Get(HeaderRetryAfter), now); ok {
			h.RefillIn = resilience.Duration(d)
		}
	}

	if b.RefillRate != nil && *b.RefillRate > 0 {
		h.RefillRate = b.RefillRate
		h.RefillInterval = resilience.Duration(time.Minute)
	}
	h.TokensConsumed = b.TokensConsumed

	if h.IsZero() && h.TokensConsumed == nil {
		return nil
	}
	return &h
}

func withDefaultRefill(h *resilience.BudgetHint) *resilience.BudgetHint {
	if h == nil {
		h = &resilience.BudgetHint{}
	}
	if h.RefillIn == nil {
		h.RefillIn = resilience.Duration(DefaultRateLimitRefill)
	}
	return h
}

func headerInt(header http.Header, name string) (int64, bool) {
	raw := strings.TrimSpace(header.Get(name))
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// parseRetryAfter accepts delay-seconds or an HTTP date.
func parseRetryAfter(val string, now time.Time) (time.Duration, bool) {
	val = strings.TrimSpace(val)
	if val == "" {
		return 0, false
	}
	if secs, err := strconv.ParseFloat(val, 64); err == nil && secs >= 0 {
		return time.Duration(math.Ceil(secs)) * time.Second, true
	}
	if at, err := http.ParseTime(val); err == nil {
		d := at.Sub(now)
		if d < 0 {
			d = 0
		}
		return d, true
	}
	return 0, false
}

// HashKey returns the first 16 hex characters of the key's SHA-256.
func HashKey(key string) string {
	if key == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])[:16]
}

func snippet(body []byte) string {
	const limit = 256
	s := strings.TrimSpace(string(body))
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
