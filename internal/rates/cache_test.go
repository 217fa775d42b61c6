package rates

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/savanna-pay/savanna_pay/internal/logging"
)

type countingSource struct {
	inner Source
	calls int
}

func (c *countingSource) Rate(ctx context.Context, from, to string) (Quote, error) {
	c.calls++
	return c.inner.Rate(ctx, from, to)
}

func newCacheFixture(t *testing.T) (*Service, *countingSource, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { cache.Close() })

	source := &countingSource{inner: NewStaticSource(map[string]decimal.Decimal{
		"KES/USDT": decimal.NewFromFloat(0.0077),
	})}
	return NewService(source, cache, time.Minute, logging.Discard()), source, mr
}

func TestGetRateCachesQuotes(t *testing.T) {
	svc, source, _ := newCacheFixture(t)
	ctx := context.Background()

	first, err := svc.GetRate(ctx, "KES", "USDT")
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	if !first.Rate.Equal(decimal.NewFromFloat(0.0077)) {
		t.Fatalf("rate = %s", first.Rate)
	}

	second, err := svc.GetRate(ctx, "KES", "USDT")
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if !second.Rate.Equal(first.Rate) {
		t.Fatalf("cached rate %s differs from %s", second.Rate, first.Rate)
	}
	if source.calls != 1 {
		t.Fatalf("source called %d times, want 1", source.calls)
	}
}

func TestGetRateExpiryRefetches(t *testing.T) {
	svc, source, mr := newCacheFixture(t)
	ctx := context.Background()

	if _, err := svc.GetRate(ctx, "KES", "USDT"); err != nil {
		t.Fatalf("first: %v", err)
	}
	mr.FastForward(2 * time.Minute)
	if _, err := svc.GetRate(ctx, "KES", "USDT"); err != nil {
		t.Fatalf("after expiry: %v", err)
	}
	if source.calls != 2 {
		t.Fatalf("source called %d times, want 2 after TTL expiry", source.calls)
	}
}

func TestGetRateUnsupportedPair(t *testing.T) {
	svc, _, _ := newCacheFixture(t)

	_, err := svc.GetRate(context.Background(), "KES", "EUR")
	if !errors.Is(err, ErrUnsupportedPair) {
		t.Fatalf("err = %v, want ErrUnsupportedPair", err)
	}
}

func TestGetRateDegradesWhenCacheDown(t *testing.T) {
	svc, source, mr := newCacheFixture(t)
	mr.Close()

	quote, err := svc.GetRate(context.Background(), "KES", "USDT")
	if err != nil {
		t.Fatalf("cache down: %v", err)
	}
	if !quote.Rate.Equal(decimal.NewFromFloat(0.0077)) {
		t.Fatalf("rate = %s", quote.Rate)
	}
	if source.calls != 1 {
		t.Fatalf("source called %d times, want 1", source.calls)
	}
}

func TestStaticSourceInverseRate(t *testing.T) {
	source := NewStaticSource(map[string]decimal.Decimal{
		"KES/USDT": decimal.NewFromFloat(0.008),
	})
	quote, err := source.Rate(context.Background(), "KES", "USDT")
	if err != nil {
		t.Fatalf("rate: %v", err)
	}
	if !quote.InverseRate.Equal(decimal.NewFromInt(125)) {
		t.Fatalf("inverse = %s, want 125", quote.InverseRate)
	}
}
