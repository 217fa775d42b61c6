package provider

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

type stubProvider struct{ name string }

func (s stubProvider) Name() string { return s.name }
func (s stubProvider) InitiateDeposit(context.Context, DepositRequest) (Response, error) {
	return Response{}, nil
}
func (s stubProvider) InitiateWithdrawal(context.Context, WithdrawalRequest) (Response, error) {
	return Response{}, nil
}
func (s stubProvider) QueryStatus(context.Context, string) (Status, error) {
	return Status{}, nil
}

func testRegistry() *Registry {
	return NewRegistry().
		Register(stubProvider{name: "mpesa"}, Capability{
			Currencies: []string{"KES"},
			Kinds:      []Kind{KindCollection, KindPayout},
			MaxAmount:  decimal.NewFromInt(250000),
		}).
		Register(stubProvider{name: "airtel"}, Capability{
			Currencies: []string{"KES", "UGX"},
			Kinds:      []Kind{KindCollection},
		})
}

func TestSelectPrefersRegistrationOrder(t *testing.T) {
	r := testRegistry()

	p, err := r.Select("KES", decimal.NewFromInt(100), KindCollection, "")
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if p.Name() != "mpesa" {
		t.Fatalf("selected %s, want mpesa (first registered)", p.Name())
	}
}

func TestSelectHonorsCapablePreference(t *testing.T) {
	r := testRegistry()

	p, err := r.Select("KES", decimal.NewFromInt(100), KindCollection, "airtel")
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if p.Name() != "airtel" {
		t.Fatalf("selected %s, want preferred airtel", p.Name())
	}
}

func TestSelectIgnoresIncapablePreference(t *testing.T) {
	r := testRegistry()

	// airtel does not serve payouts; preference falls through to mpesa.
	p, err := r.Select("KES", decimal.NewFromInt(100), KindPayout, "airtel")
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if p.Name() != "mpesa" {
		t.Fatalf("selected %s, want mpesa fallback", p.Name())
	}
}

func TestSelectRespectsAmountBounds(t *testing.T) {
	r := testRegistry()

	// Above mpesa's cap; airtel has no bound and serves KES collections.
	p, err := r.Select("KES", decimal.NewFromInt(300000), KindCollection, "")
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if p.Name() != "airtel" {
		t.Fatalf("selected %s, want airtel above mpesa cap", p.Name())
	}

	// Nobody serves KES payouts above the cap.
	if _, err := r.Select("KES", decimal.NewFromInt(300000), KindPayout, ""); !errors.Is(err, ErrNoProvider) {
		t.Fatalf("err = %v, want ErrNoProvider", err)
	}
}

func TestSelectUnknownCurrency(t *testing.T) {
	r := testRegistry()

	if _, err := r.Select("EUR", decimal.NewFromInt(10), KindCollection, ""); !errors.Is(err, ErrNoProvider) {
		t.Fatalf("err = %v, want ErrNoProvider", err)
	}
}

func TestSelectIsDeterministic(t *testing.T) {
	r := testRegistry()

	var names []string
	for i := 0; i < 5; i++ {
		p, err := r.Select("UGX", decimal.NewFromInt(500), KindCollection, "")
		if err != nil {
			t.Fatalf("select %d: %v", i, err)
		}
		names = append(names, p.Name())
	}
	for _, name := range names {
		if name != names[0] {
			t.Fatalf("selection flapped: %v", names)
		}
	}
}

func TestGetByName(t *testing.T) {
	r := testRegistry()

	p, err := r.Get("airtel")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if p.Name() != "airtel" {
		t.Fatalf("got %s", p.Name())
	}
	if _, err := r.Get("equitel"); !errors.Is(err, ErrNoProvider) {
		t.Fatalf("err = %v, want ErrNoProvider", err)
	}
}

func TestStatusTerminalFailureMapping(t *testing.T) {
	cases := []struct {
		code     string
		wantCode string
		terminal bool
	}{
		{ResultSuccess, "", false},
		{ResultInsufficientFunds, "INSUFFICIENT_FUNDS", true},
		{ResultUserCancelled, "USER_CANCELLED", true},
		{ResultPINTimeout, "PIN_TIMEOUT", true},
		{"500.001.1001", "", false},
	}
	for _, tc := range cases {
		code, terminal := Status{ResultCode: tc.code}.TerminalFailure()
		if code != tc.wantCode || terminal != tc.terminal {
			t.Fatalf("code %s: got (%q, %v), want (%q, %v)", tc.code, code, terminal, tc.wantCode, tc.terminal)
		}
	}
}
