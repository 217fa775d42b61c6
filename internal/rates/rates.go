// Package rates provides exchange-rate quotes with a Redis cache in front of
// a pluggable source.
package rates

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ErrUnsupportedPair indicates the source has no rate for a currency pair.
var ErrUnsupportedPair = errors.New("unsupported currency pair")

// Quote is one exchange-rate observation.
type Quote struct {
	From        string          `json:"from"`
	To          string          `json:"to"`
	Rate        decimal.Decimal `json:"rate"`
	InverseRate decimal.Decimal `json:"inverse_rate"`
	Source      string          `json:"source"`
	Timestamp   time.Time       `json:"timestamp"`
}

// Source produces fresh quotes.
type Source interface {
	Rate(ctx context.Context, from, to string) (Quote, error)
}

// StaticSource serves quotes from a fixed table. Used in development and
// tests; production wires a market-data source instead.
type StaticSource struct {
	rates map[string]decimal.Decimal
}

// NewStaticSource builds a source from a from/to → rate table keyed as
// "FROM/TO".
func NewStaticSource(table map[string]decimal.Decimal) *StaticSource {
	return &StaticSource{rates: table}
}

// Rate returns the configured rate for the pair.
func (s *StaticSource) Rate(_ context.Context, from, to string) (Quote, error) {
	rate, ok := s.rates[from+"/"+to]
	if !ok {
		return Quote{}, fmt.Errorf("%w: %s/%s", ErrUnsupportedPair, from, to)
	}
	return Quote{
		From:        from,
		To:          to,
		Rate:        rate,
		InverseRate: decimal.NewFromInt(1).Div(rate),
		Source:      "static",
		Timestamp:   time.Now().UTC(),
	}, nil
}
