// Package asset holds the static description of every tracked instrument.
package asset

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Category separates exchange-traded crypto from the commodity feed.
type Category string

const (
	CategoryCrypto    Category = "crypto"
	CategoryCommodity Category = "commodity"
)

// Descriptor is the immutable configuration of one asset.
type Descriptor struct {
	Symbol    string            `mapstructure:"symbol" json:"symbol"`
	Name      string            `mapstructure:"name" json:"name"`
	Currency  string            `mapstructure:"currency" json:"currency"`
	Category  Category          `mapstructure:"category" json:"category"`
	Providers []string          `mapstructure:"providers" json:"providers"`
	Refs      map[string]string `mapstructure:"refs" json:"-"`
	Fallback  decimal.Decimal   `mapstructure:"fallback" json:"-"`
	Profile   Profile           `mapstructure:"profile" json:"-"`
}

// Profile is the static reference text shown alongside market details.
// LaunchDate is free text because commodities have no meaningful date.
type Profile struct {
	LaunchDate  string `mapstructure:"launch_date" json:"launch_date,omitempty"`
	Description string `mapstructure:"description" json:"description,omitempty"`
	Website     string `mapstructure:"website" json:"website,omitempty"`
	Whitepaper  string `mapstructure:"whitepaper" json:"whitepaper,omitempty"`
}

// Ref returns the provider specific identifier for the asset, or def when none is set.
func (d Descriptor) Ref(provider, def string) string {
	if d.Refs != nil {
		if v := strings.TrimSpace(d.Refs[provider]); v != "" {
			return v
		}
	}
	return def
}

// HasFallback reports whether an emergency price is configured.
func (d Descriptor) HasFallback() bool {
	return d.Fallback.IsPositive()
}

// Registry is an ordered, read-only set of descriptors.
type Registry struct {
	ordered  []Descriptor
	bySymbol map[string]int
}

// NewRegistry validates descriptors and freezes them.
func NewRegistry(descs []Descriptor) (*Registry, error) {
	if len(descs) == 0 {
		return nil, fmt.Errorf("asset registry is empty")
	}

	r := &Registry{
		ordered:  make([]Descriptor, 0, len(descs)),
		bySymbol: make(map[string]int, len(descs)),
	}
	for _, d := range descs {
		d.Symbol = strings.ToUpper(strings.TrimSpace(d.Symbol))
		d.Currency = strings.ToUpper(strings.TrimSpace(d.Currency))
		if err := validate(d); err != nil {
			return nil, err
		}
		if _, dup := r.bySymbol[d.Symbol]; dup {
			return nil, fmt.Errorf("asset %s declared twice", d.Symbol)
		}
		d.Providers = append([]string(nil), d.Providers...)
		refs := make(map[string]string, len(d.Refs))
		for k, v := range d.Refs {
			refs[strings.ToLower(k)] = v
		}
		d.Refs = refs
		r.bySymbol[d.Symbol] = len(r.ordered)
		r.ordered = append(r.ordered, d)
	}
	return r, nil
}

func validate(d Descriptor) error {
	if d.Symbol == "" {
		return fmt.Errorf("asset symbol is required")
	}
	if d.Name == "" {
		return fmt.Errorf("asset %s: name is required", d.Symbol)
	}
	if d.Currency == "" {
		return fmt.Errorf("asset %s: currency is required", d.Symbol)
	}
	if d.Category != CategoryCrypto && d.Category != CategoryCommodity {
		return fmt.Errorf("asset %s: unknown category %q", d.Symbol, d.Category)
	}
	if len(d.Providers) == 0 {
		return fmt.Errorf("asset %s: provider chain is empty", d.Symbol)
	}
	if d.Fallback.IsNegative() {
		return fmt.Errorf("asset %s: fallback price cannot be negative", d.Symbol)
	}
	return nil
}

// All returns descriptors in configuration order.
func (r *Registry) All() []Descriptor {
	out := make([]Descriptor, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// Lookup finds a descriptor by symbol (case-insensitive).
func (r *Registry) Lookup(symbol string) (Descriptor, bool) {
	idx, ok := r.bySymbol[strings.ToUpper(strings.TrimSpace(symbol))]
	if !ok {
		return Descriptor{}, false
	}
	return r.ordered[idx], true
}

// Symbols lists the configured symbols sorted alphabetically.
func (r *Registry) Symbols() []string {
	out := make([]string, 0, len(r.ordered))
	for _, d := range r.ordered {
		out = append(out, d.Symbol)
	}
	sort.Strings(out)
	return out
}

// ProviderNames returns every provider referenced by any descriptor.
func (r *Registry) ProviderNames() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, d := range r.ordered {
		for _, p := range d.Providers {
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			out = append(out, p)
		}
	}
	return out
}

// Len reports the number of assets.
func (r *Registry) Len() int {
	return len(r.ordered)
}
