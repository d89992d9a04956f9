package keepa

import (
	"time"

	"github.com/jonwraymond/tokengate/governor"
)

// DefaultBaseURL is the Keepa API root.
const DefaultBaseURL = "https://api.keepa.com"

// Operation names.
const (
	OpProduct     = "product"
	OpDeals       = "deals"
	OpCategory    = "category"
	OpBestsellers = "bestsellers"
	OpSeller      = "seller"
	OpSearch      = "search"
	OpQuery       = "query"
	OpToken       = "token"
)

// Token prices per request, or per ASIN for OpProduct.
const (
	CostProduct     = 15
	CostDeals       = 5
	CostCategory    = 5
	CostBestsellers = 3
	CostSeller      = 5
	CostSearch      = 10
	CostQuery       = 10
)

// MaxASINsPerRequest caps one product lookup.
const MaxASINsPerRequest = 100

// Operations returns the Keepa operation registry. Bulk lookups get a
// longer per-attempt timeout than the lightweight searches.
func Operations() []governor.Operation {
	return []governor.Operation{
		{Name: OpProduct, Cost: CostProduct, Path: "/product", Timeout: 60 * time.Second, Cache: true, CacheTTL: 5 * time.Minute},
		{Name: OpDeals, Cost: CostDeals, Path: "/deal"},
		{Name: OpCategory, Cost: CostCategory, Path: "/search", Timeout: 20 * time.Second, Cache: true, CacheTTL: time.Hour},
		{Name: OpBestsellers, Cost: CostBestsellers, Path: "/bestsellers", Cache: true, CacheTTL: time.Hour},
		{Name: OpSeller, Cost: CostSeller, Path: "/seller", Cache: true, CacheTTL: 30 * time.Minute},
		{Name: OpSearch, Cost: CostSearch, Path: "/search", Timeout: 20 * time.Second, Cache: true, CacheTTL: 15 * time.Minute},
		{Name: OpQuery, Cost: CostQuery, Path: "/query", Method: "POST", Timeout: 60 * time.Second, MaxAttempts: 5},
		{Name: OpToken, Cost: 0, Path: "/token"},
	}
}

// GovernorConfig returns governor defaults with the Keepa registry and the
// default plan's budget of 200 tokens per minute.
func GovernorConfig() governor.Config {
	cfg := governor.DefaultConfig()
	cfg.Bucket.Capacity = 200
	cfg.Bucket.Window = time.Minute
	cfg.Operations = Operations()
	return cfg
}

// NewTransport creates the HTTP transport for the Keepa API. An empty
// baseURL uses DefaultBaseURL.
func NewTransport(apiKey, baseURL string) (*governor.HTTPTransport, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return governor.NewHTTPTransport(governor.HTTPConfig{
		BaseURL:   baseURL,
		APIKey:    apiKey,
		UserAgent: "tokengate-keepa",
	})
}

// SeedRequest is the free token status request used to seed the bucket.
func SeedRequest() *governor.Request {
	return &governor.Request{Operation: OpToken, Path: "/token"}
}
