package ledger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func newTestService(t *testing.T, statusFn TransactionStatusFn) *Service {
	t.Helper()
	return NewService(NewMemory(statusFn), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func newTestWallet(t *testing.T, svc *Service) Wallet {
	t.Helper()
	wallet, err := svc.GetOrCreateWallet(context.Background(), uuid.New(), "KES")
	if err != nil {
		t.Fatalf("create wallet: %v", err)
	}
	return wallet
}

func TestGetOrCreateWalletIsIdempotent(t *testing.T) {
	svc := newTestService(t, nil)
	businessID := uuid.New()

	first, err := svc.GetOrCreateWallet(context.Background(), businessID, "KES")
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := svc.GetOrCreateWallet(context.Background(), businessID, "KES")
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("got two wallets %s and %s for the same owner", first.ID, second.ID)
	}

	other, err := svc.GetOrCreateWallet(context.Background(), businessID, "USD")
	if err != nil {
		t.Fatalf("other currency: %v", err)
	}
	if other.ID == first.ID {
		t.Fatalf("currencies must not share a wallet")
	}
}

func TestCreditDebitConservation(t *testing.T) {
	svc := newTestService(t, nil)
	wallet := newTestWallet(t, svc)
	ctx := context.Background()

	mutations := []struct {
		credit bool
		amount int64
		typ    EntryType
	}{
		{true, 5000, EntryDeposit},
		{false, 1200, EntryWithdrawal},
		{true, 300, EntryConversionCredit},
		{false, 100, EntryFee},
	}
	for _, m := range mutations {
		in := MutationInput{WalletID: wallet.ID, Amount: decimal.NewFromInt(m.amount), Type: m.typ}
		var err error
		if m.credit {
			_, err = svc.Credit(ctx, in)
		} else {
			_, err = svc.Debit(ctx, in)
		}
		if err != nil {
			t.Fatalf("%s %d: %v", m.typ, m.amount, err)
		}
	}

	current, err := svc.Balance(ctx, wallet.ID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if want := decimal.NewFromInt(4000); !current.Available.Equal(want) {
		t.Fatalf("available = %s, want %s", current.Available, want)
	}

	// Total must equal the sum of signed entry amounts.
	entries, err := svc.History(ctx, wallet.ID, 50)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	sum := decimal.Zero
	for _, e := range entries {
		sum = sum.Add(e.Amount)
	}
	if !sum.Equal(current.Total) {
		t.Fatalf("entry sum %s != total %s", sum, current.Total)
	}
}

func TestCreditIsIdempotentPerTransactionAndType(t *testing.T) {
	svc := newTestService(t, nil)
	wallet := newTestWallet(t, svc)
	ctx := context.Background()
	txID := uuid.New()

	in := MutationInput{
		WalletID:      wallet.ID,
		Amount:        decimal.NewFromInt(1500),
		Type:          EntryDeposit,
		TransactionID: &txID,
	}
	if _, err := svc.Credit(ctx, in); err != nil {
		t.Fatalf("first credit: %v", err)
	}

	// Replays return the wallet unchanged without an error.
	replay, err := svc.Credit(ctx, in)
	if err != nil {
		t.Fatalf("replayed credit: %v", err)
	}
	if want := decimal.NewFromInt(1500); !replay.Available.Equal(want) {
		t.Fatalf("available = %s, want %s after replay", replay.Available, want)
	}

	entries, err := svc.History(ctx, wallet.ID, 50)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}

	// A different entry type under the same transaction is a distinct
	// operation, not a replay.
	if _, err := svc.Credit(ctx, MutationInput{
		WalletID:      wallet.ID,
		Amount:        decimal.NewFromInt(1500),
		Type:          EntryReversal,
		TransactionID: &txID,
	}); err != nil {
		t.Fatalf("reversal credit: %v", err)
	}
	final, err := svc.Balance(ctx, wallet.ID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if want := decimal.NewFromInt(3000); !final.Available.Equal(want) {
		t.Fatalf("available = %s, want %s", final.Available, want)
	}
}

func TestMutationAgainstFinalizedTransactionIsSkipped(t *testing.T) {
	finalized := uuid.New()
	svc := newTestService(t, func(_ context.Context, id uuid.UUID) (string, bool, error) {
		if id == finalized {
			return "completed", true, nil
		}
		return "", false, nil
	})
	wallet := newTestWallet(t, svc)
	ctx := context.Background()

	got, err := svc.Credit(ctx, MutationInput{
		WalletID:      wallet.ID,
		Amount:        decimal.NewFromInt(1000),
		Type:          EntryDeposit,
		TransactionID: &finalized,
	})
	if err != nil {
		t.Fatalf("credit: %v", err)
	}
	if !got.Available.IsZero() {
		t.Fatalf("available = %s, want 0 for a finalized transaction", got.Available)
	}
}

func TestDebitInsufficientBalance(t *testing.T) {
	svc := newTestService(t, nil)
	wallet := newTestWallet(t, svc)
	ctx := context.Background()

	if _, err := svc.Credit(ctx, MutationInput{WalletID: wallet.ID, Amount: decimal.NewFromInt(100), Type: EntryDeposit}); err != nil {
		t.Fatalf("credit: %v", err)
	}
	_, err := svc.Debit(ctx, MutationInput{WalletID: wallet.ID, Amount: decimal.NewFromInt(101), Type: EntryWithdrawal})
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("err = %v, want ErrInsufficientBalance", err)
	}

	current, err := svc.Balance(ctx, wallet.ID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if want := decimal.NewFromInt(100); !current.Available.Equal(want) {
		t.Fatalf("available = %s, want %s after rejected debit", current.Available, want)
	}
}

func TestConcurrentDebitsNeverOverdraw(t *testing.T) {
	svc := newTestService(t, nil)
	wallet := newTestWallet(t, svc)
	ctx := context.Background()

	if _, err := svc.Credit(ctx, MutationInput{WalletID: wallet.ID, Amount: decimal.NewFromInt(100), Type: EntryDeposit}); err != nil {
		t.Fatalf("credit: %v", err)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Debit(ctx, MutationInput{WalletID: wallet.ID, Amount: decimal.NewFromInt(30), Type: EntryWithdrawal})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			} else if !errors.Is(err, ErrInsufficientBalance) {
				t.Errorf("unexpected debit error: %v", err)
			}
		}()
	}
	wg.Wait()

	if succeeded != 3 {
		t.Fatalf("succeeded = %d debits of 30 against 100, want 3", succeeded)
	}
	current, err := svc.Balance(ctx, wallet.ID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if current.Available.IsNegative() {
		t.Fatalf("available went negative: %s", current.Available)
	}
	if want := decimal.NewFromInt(10); !current.Available.Equal(want) {
		t.Fatalf("available = %s, want %s", current.Available, want)
	}
}

func TestLockAndUnlockPreserveTotal(t *testing.T) {
	svc := newTestService(t, nil)
	wallet := newTestWallet(t, svc)
	ctx := context.Background()

	if _, err := svc.Credit(ctx, MutationInput{WalletID: wallet.ID, Amount: decimal.NewFromInt(5000), Type: EntryDeposit}); err != nil {
		t.Fatalf("credit: %v", err)
	}

	locked, err := svc.LockBalance(ctx, wallet.ID, decimal.NewFromInt(2000))
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	if !locked.Available.Equal(decimal.NewFromInt(3000)) || !locked.Pending.Equal(decimal.NewFromInt(2000)) {
		t.Fatalf("after lock: available %s pending %s", locked.Available, locked.Pending)
	}
	if !locked.Total.Equal(decimal.NewFromInt(5000)) {
		t.Fatalf("total changed on lock: %s", locked.Total)
	}

	// Locked funds are not spendable.
	if _, err := svc.Debit(ctx, MutationInput{WalletID: wallet.ID, Amount: decimal.NewFromInt(3500), Type: EntryWithdrawal}); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("err = %v, want ErrInsufficientBalance against locked funds", err)
	}

	unlocked, err := svc.UnlockBalance(ctx, wallet.ID, decimal.NewFromInt(2000))
	if err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if !unlocked.Available.Equal(decimal.NewFromInt(5000)) || !unlocked.Pending.IsZero() {
		t.Fatalf("after unlock: available %s pending %s", unlocked.Available, unlocked.Pending)
	}
}

func TestLockUnlockBounds(t *testing.T) {
	svc := newTestService(t, nil)
	wallet := newTestWallet(t, svc)
	ctx := context.Background()

	if _, err := svc.Credit(ctx, MutationInput{WalletID: wallet.ID, Amount: decimal.NewFromInt(100), Type: EntryDeposit}); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if _, err := svc.LockBalance(ctx, wallet.ID, decimal.NewFromInt(200)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("lock err = %v, want ErrInsufficientBalance", err)
	}
	if _, err := svc.UnlockBalance(ctx, wallet.ID, decimal.NewFromInt(1)); !errors.Is(err, ErrInsufficientPending) {
		t.Fatalf("unlock err = %v, want ErrInsufficientPending", err)
	}
}

func TestMutationsRejectNonPositiveAmounts(t *testing.T) {
	svc := newTestService(t, nil)
	wallet := newTestWallet(t, svc)
	ctx := context.Background()

	for _, amount := range []decimal.Decimal{decimal.Zero, decimal.NewFromInt(-5)} {
		if _, err := svc.Credit(ctx, MutationInput{WalletID: wallet.ID, Amount: amount, Type: EntryDeposit}); !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("credit %s: err = %v, want ErrInvalidAmount", amount, err)
		}
		if _, err := svc.Debit(ctx, MutationInput{WalletID: wallet.ID, Amount: amount, Type: EntryWithdrawal}); !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("debit %s: err = %v, want ErrInvalidAmount", amount, err)
		}
		if _, err := svc.LockBalance(ctx, wallet.ID, amount); !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("lock %s: err = %v, want ErrInvalidAmount", amount, err)
		}
	}
}

func TestBalanceUnknownWallet(t *testing.T) {
	svc := newTestService(t, nil)

	if _, err := svc.Balance(context.Background(), uuid.New()); !errors.Is(err, ErrWalletNotFound) {
		t.Fatalf("err = %v, want ErrWalletNotFound", err)
	}
}

func TestHistoryNewestFirstWithLimit(t *testing.T) {
	svc := newTestService(t, nil)
	wallet := newTestWallet(t, svc)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		if _, err := svc.Credit(ctx, MutationInput{WalletID: wallet.ID, Amount: decimal.NewFromInt(int64(i)), Type: EntryDeposit}); err != nil {
			t.Fatalf("credit %d: %v", i, err)
		}
	}

	entries, err := svc.History(ctx, wallet.ID, 3)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("entries = %d, want 3", len(entries))
	}
	if !entries[0].Amount.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("first entry amount = %s, want newest (5)", entries[0].Amount)
	}
}
