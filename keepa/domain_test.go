package keepa

import (
	"errors"
	"testing"
)

func TestParseDomain(t *testing.T) {
	tests := []struct {
		in   string
		want Domain
		err  error
	}{
		{"de", DomainDE, nil},
		{" US ", DomainUS, nil},
		{"GB", DomainUK, nil},
		{"14", DomainNL, nil},
		{"7", 0, ErrInvalidDomain},
		{"xx", 0, ErrInvalidDomain},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDomain(tt.in)
			if !errors.Is(err, tt.err) {
				t.Fatalf("ParseDomain(%q) error = %v, want %v", tt.in, err, tt.err)
			}
			if got != tt.want {
				t.Errorf("ParseDomain(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestDomain_String(t *testing.T) {
	if DomainIT.String() != "IT" {
		t.Errorf("DomainIT.String() = %q", DomainIT.String())
	}
	if Domain(99).String() != "99" {
		t.Errorf("Domain(99).String() = %q", Domain(99).String())
	}
}

func TestNormalizeASIN(t *testing.T) {
	got, err := NormalizeASIN(" b08n5wrwnw ")
	if err != nil || got != "B08N5WRWNW" {
		t.Errorf("NormalizeASIN() = %q, %v", got, err)
	}
}

func TestOperations_Costs(t *testing.T) {
	want := map[string]int{
		OpProduct:     15,
		OpDeals:       5,
		OpCategory:    5,
		OpBestsellers: 3,
		OpSeller:      5,
		OpSearch:      10,
		OpQuery:       10,
		OpToken:       0,
	}

	ops := Operations()
	if len(ops) != len(want) {
		t.Fatalf("len(Operations()) = %d, want %d", len(ops), len(want))
	}
	for _, op := range ops {
		if err := op.Validate(); err != nil {
			t.Errorf("%s: Validate() error = %v", op.Name, err)
		}
		if op.Cost != want[op.Name] {
			t.Errorf("%s cost = %d, want %d", op.Name, op.Cost, want[op.Name])
		}
	}

	cfg := GovernorConfig()
	if cfg.Bucket.Capacity != 200 {
		t.Errorf("Capacity = %d, want 200", cfg.Bucket.Capacity)
	}
}
