package funding

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/savanna-pay/savanna_pay/internal/ledger"
	"github.com/savanna-pay/savanna_pay/internal/provider"
	"github.com/savanna-pay/savanna_pay/internal/transaction"
)

type fakeRail struct {
	name        string
	depositErr  error
	withdrawErr error
	initiated   int
}

func (f *fakeRail) Name() string { return f.name }

func (f *fakeRail) InitiateDeposit(_ context.Context, req provider.DepositRequest) (provider.Response, error) {
	if f.depositErr != nil {
		return provider.Response{}, f.depositErr
	}
	f.initiated++
	return provider.Response{ProviderTxID: "ws_CO_" + req.Reference}, nil
}

func (f *fakeRail) InitiateWithdrawal(_ context.Context, req provider.WithdrawalRequest) (provider.Response, error) {
	if f.withdrawErr != nil {
		return provider.Response{}, f.withdrawErr
	}
	f.initiated++
	return provider.Response{ProviderTxID: "b2c_" + req.Reference}, nil
}

func (f *fakeRail) QueryStatus(_ context.Context, providerTxID string) (provider.Status, error) {
	return provider.Status{ProviderTxID: providerTxID}, nil
}

type fundingFixture struct {
	service    *Service
	ledger     *ledger.Service
	records    transaction.Store
	rail       *fakeRail
	businessID uuid.UUID
}

func newFundingFixture(t *testing.T) *fundingFixture {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	records := transaction.NewMemory()
	ledgerSvc := ledger.NewService(ledger.NewMemory(transaction.StatusLookup(records)), logger)

	rail := &fakeRail{name: "mpesa"}
	registry := provider.NewRegistry().Register(rail, provider.Capability{
		Currencies: []string{"KES"},
		Kinds:      []provider.Kind{provider.KindCollection, provider.KindPayout},
	})

	return &fundingFixture{
		service:    NewService(ledgerSvc, records, registry, nil, logger),
		ledger:     ledgerSvc,
		records:    records,
		rail:       rail,
		businessID: uuid.New(),
	}
}

func (f *fundingFixture) available(t *testing.T) decimal.Decimal {
	t.Helper()
	wallet, err := f.ledger.FindWallet(context.Background(), f.businessID, "KES")
	if err != nil {
		t.Fatalf("find wallet: %v", err)
	}
	return wallet.Available
}

func (f *fundingFixture) fund(t *testing.T, amount int64) {
	t.Helper()
	wallet, err := f.ledger.GetOrCreateWallet(context.Background(), f.businessID, "KES")
	if err != nil {
		t.Fatalf("create wallet: %v", err)
	}
	if _, err := f.ledger.Credit(context.Background(), ledger.MutationInput{
		WalletID:    wallet.ID,
		Amount:      decimal.NewFromInt(amount),
		Type:        ledger.EntryDeposit,
		Description: "opening balance",
	}); err != nil {
		t.Fatalf("fund wallet: %v", err)
	}
}

func TestDepositStaysPendingUntilCallback(t *testing.T) {
	f := newFundingFixture(t)

	rec, err := f.service.Deposit(context.Background(), DepositInput{
		BusinessID: f.businessID,
		Amount:     decimal.NewFromInt(1500),
		Currency:   "KES",
		Phone:      "254712345678",
	})
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if rec.Status != transaction.StatusPending {
		t.Fatalf("status = %s, want pending", rec.Status)
	}
	if rec.Provider != "mpesa" || rec.ProviderTxID == "" {
		t.Fatalf("provider linkage missing: %s %q", rec.Provider, rec.ProviderTxID)
	}
	if got := f.available(t); !got.IsZero() {
		t.Fatalf("available = %s, want 0 before callback", got)
	}
}

func TestCallbackSuccessCreditsExactlyOnce(t *testing.T) {
	f := newFundingFixture(t)

	rec, err := f.service.Deposit(context.Background(), DepositInput{
		BusinessID: f.businessID,
		Amount:     decimal.NewFromInt(1500),
		Currency:   "KES",
		Phone:      "254712345678",
	})
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}

	cb := CallbackInput{
		ProviderTxID: rec.ProviderTxID,
		ResultCode:   provider.ResultSuccess,
		ResultDesc:   "The service request is processed successfully.",
		Amount:       rec.Amount,
	}
	resolved, err := f.service.ProcessCallback(context.Background(), cb)
	if err != nil {
		t.Fatalf("callback: %v", err)
	}
	if resolved.Status != transaction.StatusCompleted {
		t.Fatalf("status = %s, want completed", resolved.Status)
	}
	if got := f.available(t); !got.Equal(decimal.NewFromInt(1500)) {
		t.Fatalf("available = %s, want 1500", got)
	}

	// Provider retries the callback; the credit must not apply twice.
	replayed, err := f.service.ProcessCallback(context.Background(), cb)
	if err != nil {
		t.Fatalf("replayed callback: %v", err)
	}
	if replayed.Status != transaction.StatusCompleted {
		t.Fatalf("replay status = %s", replayed.Status)
	}
	if got := f.available(t); !got.Equal(decimal.NewFromInt(1500)) {
		t.Fatalf("available after replay = %s, want 1500", got)
	}
}

func TestCallbackTerminalFailureFailsWithoutCredit(t *testing.T) {
	f := newFundingFixture(t)

	rec, err := f.service.Deposit(context.Background(), DepositInput{
		BusinessID: f.businessID,
		Amount:     decimal.NewFromInt(800),
		Currency:   "KES",
		Phone:      "254712345678",
	})
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}

	resolved, err := f.service.ProcessCallback(context.Background(), CallbackInput{
		ProviderTxID: rec.ProviderTxID,
		ResultCode:   provider.ResultUserCancelled,
		ResultDesc:   "Request cancelled by user",
	})
	if err != nil {
		t.Fatalf("callback: %v", err)
	}
	if resolved.Status != transaction.StatusFailed {
		t.Fatalf("status = %s, want failed", resolved.Status)
	}
	if resolved.ErrorCode != "USER_CANCELLED" {
		t.Fatalf("error code = %q", resolved.ErrorCode)
	}
	if got := f.available(t); !got.IsZero() {
		t.Fatalf("available = %s, want 0", got)
	}
}

func TestCallbackNonTerminalCodeLeavesPending(t *testing.T) {
	f := newFundingFixture(t)

	rec, err := f.service.Deposit(context.Background(), DepositInput{
		BusinessID: f.businessID,
		Amount:     decimal.NewFromInt(800),
		Currency:   "KES",
		Phone:      "254712345678",
	})
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}

	resolved, err := f.service.ProcessCallback(context.Background(), CallbackInput{
		ProviderTxID: rec.ProviderTxID,
		ResultCode:   "500.001.1001",
		ResultDesc:   "The transaction is being processed",
	})
	if err != nil {
		t.Fatalf("callback: %v", err)
	}
	if resolved.Status != transaction.StatusPending {
		t.Fatalf("status = %s, want pending", resolved.Status)
	}
}

func TestCallbackUnmatched(t *testing.T) {
	f := newFundingFixture(t)

	_, err := f.service.ProcessCallback(context.Background(), CallbackInput{
		ProviderTxID: "ws_CO_unknown",
		ResultCode:   provider.ResultSuccess,
	})
	if !errors.Is(err, ErrCallbackUnmatched) {
		t.Fatalf("err = %v, want ErrCallbackUnmatched", err)
	}
}

func TestWithdrawDebitsUpFront(t *testing.T) {
	f := newFundingFixture(t)
	f.fund(t, 2000)

	rec, err := f.service.Withdraw(context.Background(), WithdrawInput{
		BusinessID: f.businessID,
		Amount:     decimal.NewFromInt(500),
		Currency:   "KES",
		Phone:      "254712345678",
	})
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if rec.Status != transaction.StatusPending {
		t.Fatalf("status = %s, want pending", rec.Status)
	}
	if got := f.available(t); !got.Equal(decimal.NewFromInt(1500)) {
		t.Fatalf("available = %s, want 1500", got)
	}
}

func TestWithdrawInsufficientBalance(t *testing.T) {
	f := newFundingFixture(t)
	f.fund(t, 100)

	rec, err := f.service.Withdraw(context.Background(), WithdrawInput{
		BusinessID: f.businessID,
		Amount:     decimal.NewFromInt(500),
		Currency:   "KES",
		Phone:      "254712345678",
	})
	if !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Fatalf("err = %v, want ErrInsufficientBalance", err)
	}
	if rec.Status != transaction.StatusFailed {
		t.Fatalf("status = %s, want failed", rec.Status)
	}
	if got := f.available(t); !got.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("available = %s, want 100 untouched", got)
	}
}

func TestWithdrawProviderRejectionReversesDebit(t *testing.T) {
	f := newFundingFixture(t)
	f.fund(t, 2000)
	f.rail.withdrawErr = errors.New("b2c endpoint unavailable")

	rec, err := f.service.Withdraw(context.Background(), WithdrawInput{
		BusinessID: f.businessID,
		Amount:     decimal.NewFromInt(500),
		Currency:   "KES",
		Phone:      "254712345678",
	})
	if err == nil {
		t.Fatal("expected provider error")
	}
	if rec.Status != transaction.StatusFailed {
		t.Fatalf("status = %s, want failed", rec.Status)
	}
	if got := f.available(t); !got.Equal(decimal.NewFromInt(2000)) {
		t.Fatalf("available = %s, want 2000 restored", got)
	}
}

func TestPayoutCallbackFailureReversesDebit(t *testing.T) {
	f := newFundingFixture(t)
	f.fund(t, 2000)

	rec, err := f.service.Withdraw(context.Background(), WithdrawInput{
		BusinessID: f.businessID,
		Amount:     decimal.NewFromInt(500),
		Currency:   "KES",
		Phone:      "254712345678",
	})
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}

	resolved, err := f.service.ProcessCallback(context.Background(), CallbackInput{
		ProviderTxID: rec.ProviderTxID,
		ResultCode:   provider.ResultInsufficientFunds,
		ResultDesc:   "The balance is insufficient for the transaction",
	})
	if err != nil {
		t.Fatalf("callback: %v", err)
	}
	if resolved.Status != transaction.StatusFailed {
		t.Fatalf("status = %s, want failed", resolved.Status)
	}
	if got := f.available(t); !got.Equal(decimal.NewFromInt(2000)) {
		t.Fatalf("available = %s, want 2000 restored", got)
	}
}
