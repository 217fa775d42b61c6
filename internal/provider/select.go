package provider

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Kind of operation a provider is selected for.
type Kind string

const (
	KindCollection Kind = "collection"
	KindPayout     Kind = "payout"
)

// Capability describes what one provider can serve. Zero Min/Max amounts mean
// unbounded.
type Capability struct {
	Currencies []string
	Kinds      []Kind
	MinAmount  decimal.Decimal
	MaxAmount  decimal.Decimal
}

type registration struct {
	provider   Provider
	capability Capability
}

// Registry holds providers with their capability table. Selection is pure and
// deterministic: given the same inputs and table it always returns the same
// provider. The registry is immutable after construction and safe for
// concurrent use.
type Registry struct {
	entries []registration
}

// NewRegistry builds a registry; registration order is selection precedence.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register appends a provider with its capabilities.
func (r *Registry) Register(p Provider, c Capability) *Registry {
	r.entries = append(r.entries, registration{provider: p, capability: c})
	return r
}

// Get returns a registered provider by name.
func (r *Registry) Get(name string) (Provider, error) {
	for _, e := range r.entries {
		if e.provider.Name() == name {
			return e.provider, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNoProvider, name)
}

// Select chooses a provider for (currency, amount, kind). A non-empty
// preference wins when that provider is capable; otherwise the first capable
// provider in registration order is returned.
func (r *Registry) Select(currency string, amount decimal.Decimal, kind Kind, preference string) (Provider, error) {
	if preference != "" {
		for _, e := range r.entries {
			if e.provider.Name() == preference && e.capability.serves(currency, amount, kind) {
				return e.provider, nil
			}
		}
	}
	for _, e := range r.entries {
		if e.capability.serves(currency, amount, kind) {
			return e.provider, nil
		}
	}
	return nil, fmt.Errorf("%w for %s %s %s", ErrNoProvider, kind, amount, currency)
}

func (c Capability) serves(currency string, amount decimal.Decimal, kind Kind) bool {
	if !contains(c.Currencies, currency) {
		return false
	}
	kindOK := false
	for _, k := range c.Kinds {
		if k == kind {
			kindOK = true
			break
		}
	}
	if !kindOK {
		return false
	}
	if !c.MinAmount.IsZero() && amount.LessThan(c.MinAmount) {
		return false
	}
	if !c.MaxAmount.IsZero() && amount.GreaterThan(c.MaxAmount) {
		return false
	}
	return true
}

func contains(values []string, v string) bool {
	for _, value := range values {
		if value == v {
			return true
		}
	}
	return false
}
