package keepa

import (
	"fmt"
	"strconv"
	"strings"
)

// Domain is a Keepa marketplace ID.
type Domain int

// Marketplaces.
const (
	DomainUS Domain = 1
	DomainUK Domain = 2
	DomainDE Domain = 3
	DomainFR Domain = 4
	DomainJP Domain = 5
	DomainCA Domain = 6
	DomainIT Domain = 8
	DomainES Domain = 9
	DomainIN Domain = 10
	DomainMX Domain = 11
	DomainBR Domain = 12
	DomainNL Domain = 14
)

var domainNames = map[Domain]string{
	DomainUS: "US",
	DomainUK: "UK",
	DomainDE: "DE",
	DomainFR: "FR",
	DomainJP: "JP",
	DomainCA: "CA",
	DomainIT: "IT",
	DomainES: "ES",
	DomainIN: "IN",
	DomainMX: "MX",
	DomainBR: "BR",
	DomainNL: "NL",
}

// String returns the marketplace code, or the numeric ID when unknown.
func (d Domain) String() string {
	if name, ok := domainNames[d]; ok {
		return name
	}
	return strconv.Itoa(int(d))
}

// Valid reports whether d is a known marketplace.
func (d Domain) Valid() bool {
	_, ok := domainNames[d]
	return ok
}

// ParseDomain accepts a marketplace code (case-insensitive, GB as an alias
// for UK) or a numeric ID.
func ParseDomain(s string) (Domain, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "GB" {
		s = "UK"
	}
	for d, name := range domainNames {
		if name == s {
			return d, nil
		}
	}
	if n, err := strconv.Atoi(s); err == nil && Domain(n).Valid() {
		return Domain(n), nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidDomain, s)
}
