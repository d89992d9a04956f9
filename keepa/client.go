package keepa

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/jonwraymond/tokengate/governor"
	"github.com/jonwraymond/tokengate/observe"
	"github.com/jonwraymond/tokengate/resilience"
)

// Governed sends registered operations. *governor.Client implements it.
type Governed interface {
	Do(ctx context.Context, op string, req *governor.Request) (*governor.Response, error)
}

// budgeted is implemented by governors that report their bucket, which
// lets Products split lookups the budget could never pay for at once.
type budgeted interface {
	Status() resilience.BucketStatus
}

// Result is a raw Keepa response with the metadata the governor attached.
type Result struct {
	Operation string
	Domain    Domain
	Body      []byte
	Hint      *resilience.BudgetHint
	Cached    bool

	// ItemCount is the number of ASINs or sellers requested.
	ItemCount int

	// Source is the operation that actually produced Body. It differs from
	// Operation when a fallback was used.
	Source string
}

// DealQuery filters a deals request.
type DealQuery struct {
	IncludeCategories []int
	PriceTypes        []int
	Page              int
}

// Option configures a Client.
type Option func(*Client)

// WithDefaultDomain sets the marketplace used when a call passes zero.
// Default: DomainDE
func WithDefaultDomain(d Domain) Option {
	return func(c *Client) {
		c.domain = d
	}
}

// WithLogger sets the logger used for fallback notices.
func WithLogger(l observe.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// Client issues Keepa requests through a governor.
type Client struct {
	gov    Governed
	domain Domain
	logger observe.Logger
}

// New creates a Keepa client.
func New(gov Governed, opts ...Option) *Client {
	c := &Client{gov: gov, domain: DomainDE, logger: observe.NopLogger()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Products looks up up to MaxASINsPerRequest ASINs. The cost is charged per
// ASIN. When the whole list costs more than the bucket can ever hold, it is
// sent as consecutive chunks that each fit the capacity and the bodies are
// merged into one products array; the first failing chunk ends the lookup.
func (c *Client) Products(ctx context.Context, domain Domain, asins []string) (*Result, error) {
	if len(asins) == 0 {
		return nil, fmt.Errorf("%w: no ASINs", ErrEmptyQuery)
	}
	if len(asins) > MaxASINsPerRequest {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManyASINs, len(asins), MaxASINsPerRequest)
	}
	normalized := make([]string, len(asins))
	for i, a := range asins {
		n, err := NormalizeASIN(a)
		if err != nil {
			return nil, err
		}
		normalized[i] = n
	}

	size := c.productChunk()
	if len(normalized) <= size {
		return c.products(ctx, domain, normalized)
	}

	var parts []*Result
	for chunk := range slices.Chunk(normalized, size) {
		res, err := c.products(ctx, domain, chunk)
		if err != nil {
			return nil, fmt.Errorf("%w (chunk %d of %d)", err, len(parts)+1, (len(normalized)+size-1)/size)
		}
		parts = append(parts, res)
	}
	return mergeProducts(parts)
}

func (c *Client) products(ctx context.Context, domain Domain, asins []string) (*Result, error) {
	params := url.Values{"asin": {strings.Join(asins, ",")}}
	return c.do(ctx, OpProduct, domain, params, nil, len(asins))
}

// productChunk returns how many ASINs one product request may carry given
// the governor's bucket capacity.
func (c *Client) productChunk() int {
	b, ok := c.gov.(budgeted)
	if !ok {
		return MaxASINsPerRequest
	}
	n := b.Status().Capacity / CostProduct
	return min(max(n, 1), MaxASINsPerRequest)
}

// mergeProducts joins the products arrays of chunked lookups. Every other
// field, and the hint, comes from the last chunk.
func mergeProducts(parts []*Result) (*Result, error) {
	var (
		products []json.RawMessage
		fields   map[string]json.RawMessage
	)
	merged := *parts[len(parts)-1]
	merged.ItemCount = 0
	merged.Cached = true

	for _, p := range parts {
		fields = map[string]json.RawMessage{}
		if len(p.Body) > 0 {
			if err := json.Unmarshal(p.Body, &fields); err != nil {
				return nil, fmt.Errorf("keepa: merge product chunks: %w", err)
			}
		}
		if raw, ok := fields["products"]; ok {
			var items []json.RawMessage
			if err := json.Unmarshal(raw, &items); err != nil {
				return nil, fmt.Errorf("keepa: merge product chunks: %w", err)
			}
			products = append(products, items...)
		}
		merged.ItemCount += p.ItemCount
		merged.Cached = merged.Cached && p.Cached
	}

	if products == nil {
		products = []json.RawMessage{}
	}
	list, err := json.Marshal(products)
	if err != nil {
		return nil, fmt.Errorf("keepa: merge product chunks: %w", err)
	}
	if fields == nil {
		fields = map[string]json.RawMessage{}
	}
	fields["products"] = list
	if merged.Body, err = json.Marshal(fields); err != nil {
		return nil, fmt.Errorf("keepa: merge product chunks: %w", err)
	}
	return &merged, nil
}

// Deals fetches the current deals page. A plan without deals access fails
// with an error matching resilience.ErrNoAccess.
func (c *Client) Deals(ctx context.Context, domain Domain, q DealQuery) (*Result, error) {
	params := url.Values{"page": {strconv.Itoa(q.Page)}}
	if len(q.IncludeCategories) > 0 {
		params.Set("includeCategories", joinInts(q.IncludeCategories))
	}
	if len(q.PriceTypes) > 0 {
		params.Set("priceTypes", joinInts(q.PriceTypes))
	}
	return c.do(ctx, OpDeals, domain, params, nil, 0)
}

// DealsOrProducts fetches deals, falling back to a product lookup of
// fallback when the plan has no deals access.
func (c *Client) DealsOrProducts(ctx context.Context, domain Domain, q DealQuery, fallback []string) (*Result, error) {
	res, err := c.Deals(ctx, domain, q)
	if err == nil || !errors.Is(err, resilience.ErrNoAccess) {
		return res, err
	}
	if len(fallback) == 0 {
		return nil, fmt.Errorf("%w: %w", ErrNoFallbackASIN, err)
	}

	c.logger.Info(ctx, "deals not available on this plan, using product lookup",
		observe.F("domain", c.resolve(domain).String()),
		observe.F("asins", len(fallback)),
	)
	res, err = c.Products(ctx, domain, fallback)
	if err != nil {
		return nil, err
	}
	res.Operation = OpDeals
	return res, nil
}

// SearchCategories finds category browse nodes by name.
func (c *Client) SearchCategories(ctx context.Context, domain Domain, term string) (*Result, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, fmt.Errorf("%w: category term", ErrEmptyQuery)
	}
	params := url.Values{"type": {"category"}, "term": {term}}
	return c.do(ctx, OpCategory, domain, params, nil, 0)
}

// Bestsellers returns the bestseller list of a category.
func (c *Client) Bestsellers(ctx context.Context, domain Domain, category int64) (*Result, error) {
	params := url.Values{"category": {strconv.FormatInt(category, 10)}}
	return c.do(ctx, OpBestsellers, domain, params, nil, 0)
}

// Sellers looks up seller profiles.
func (c *Client) Sellers(ctx context.Context, domain Domain, sellerIDs []string) (*Result, error) {
	ids := make([]string, 0, len(sellerIDs))
	for _, id := range sellerIDs {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: no seller IDs", ErrEmptyQuery)
	}
	params := url.Values{"seller": {strings.Join(ids, ",")}}
	return c.do(ctx, OpSeller, domain, params, nil, len(ids))
}

// Search runs a keyword product search. Pages start at 1; category zero
// searches everything.
func (c *Client) Search(ctx context.Context, domain Domain, term string, page int, category int64) (*Result, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, fmt.Errorf("%w: search term", ErrEmptyQuery)
	}
	if page < 1 {
		page = 1
	}
	params := url.Values{
		"type": {"product"},
		"term": {term},
		"page": {strconv.Itoa(page)},
	}
	if category > 0 {
		params.Set("category", strconv.FormatInt(category, 10))
	}
	return c.do(ctx, OpSearch, domain, params, nil, 0)
}

// Finder runs a Product Finder query. selection is encoded as the JSON
// request body.
func (c *Client) Finder(ctx context.Context, domain Domain, selection any) (*Result, error) {
	if selection == nil {
		return nil, fmt.Errorf("%w: finder selection", ErrEmptyQuery)
	}
	body, err := json.Marshal(selection)
	if err != nil {
		return nil, fmt.Errorf("keepa: encode selection: %w", err)
	}
	return c.do(ctx, OpQuery, domain, nil, body, 0)
}

// TokenStatus asks the server for the current budget. It costs nothing.
func (c *Client) TokenStatus(ctx context.Context) (*Result, error) {
	resp, err := c.gov.Do(ctx, OpToken, &governor.Request{})
	if err != nil {
		return nil, err
	}
	return &Result{Operation: OpToken, Source: OpToken, Body: resp.Body, Hint: resp.Hint}, nil
}

func (c *Client) do(ctx context.Context, op string, domain Domain, params url.Values, body []byte, items int) (*Result, error) {
	if c.gov == nil {
		return nil, ErrNilGovernor
	}
	domain = c.resolve(domain)
	if !domain.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDomain, int(domain))
	}

	if params == nil {
		params = url.Values{}
	}
	params.Set("domain", strconv.Itoa(int(domain)))

	req := &governor.Request{Params: params, Body: body}
	if op == OpProduct {
		req.Units = items
	}

	resp, err := c.gov.Do(ctx, op, req)
	if err != nil {
		return nil, fmt.Errorf("keepa: %s %s: %w", op, domain, err)
	}

	return &Result{
		Operation: op,
		Domain:    domain,
		Body:      resp.Body,
		Hint:      resp.Hint,
		Cached:    resp.Cached,
		ItemCount: items,
		Source:    op,
	}, nil
}

func (c *Client) resolve(d Domain) Domain {
	if d == 0 {
		return c.domain
	}
	return d
}

// NormalizeASIN upper-cases and validates an ASIN: ten letters or digits.
func NormalizeASIN(asin string) (string, error) {
	a := strings.ToUpper(strings.TrimSpace(asin))
	if len(a) != 10 {
		return "", fmt.Errorf("%w: %q must be 10 characters", ErrInvalidASIN, asin)
	}
	for _, r := range a {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return "", fmt.Errorf("%w: %q", ErrInvalidASIN, asin)
		}
	}
	return a, nil
}

func joinInts(vs []int) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}
