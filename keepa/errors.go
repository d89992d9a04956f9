package keepa

import "errors"

// Sentinel errors for request validation.
var (
	ErrInvalidASIN    = errors.New("keepa: invalid ASIN")
	ErrTooManyASINs   = errors.New("keepa: too many ASINs in one request")
	ErrInvalidDomain  = errors.New("keepa: unknown domain")
	ErrEmptyQuery     = errors.New("keepa: query is empty")
	ErrNilGovernor    = errors.New("keepa: governor is nil")
	ErrNoFallbackASIN = errors.New("keepa: deals unavailable and no fallback ASINs given")
)
