package transaction

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func createPending(t *testing.T, store Store, typ Type) Record {
	t.Helper()
	rec, err := store.Create(context.Background(), Record{
		Reference:  "REF-" + uuid.NewString()[:8],
		BusinessID: uuid.New(),
		WalletID:   uuid.New(),
		Type:       typ,
		Amount:     decimal.NewFromInt(1000),
		Currency:   "KES",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return rec
}

func TestStatusTransitions(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()
	rec := createPending(t, store, TypeCollection)

	processing, err := store.SetProcessing(ctx, rec.ID, "mpesa", "ws_CO_1")
	if err != nil {
		t.Fatalf("set processing: %v", err)
	}
	if processing.Status != StatusProcessing || processing.Provider != "mpesa" {
		t.Fatalf("got %s/%s", processing.Status, processing.Provider)
	}

	completed, err := store.Complete(ctx, rec.ID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if completed.Status != StatusCompleted || completed.CompletedAt == nil {
		t.Fatalf("got %s, completed_at %v", completed.Status, completed.CompletedAt)
	}

	// Terminal records reject further transitions.
	if _, err := store.Fail(ctx, rec.ID, "X", "too late"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("err = %v, want ErrInvalidTransition", err)
	}
	if _, err := store.SetProcessing(ctx, rec.ID, "mpesa", "ws_CO_2"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("err = %v, want ErrInvalidTransition", err)
	}
}

func TestFailRecordsErrorDetail(t *testing.T) {
	store := NewMemory()
	rec := createPending(t, store, TypeCollection)

	failed, err := store.Fail(context.Background(), rec.ID, "TIMEOUT", "no confirmation within 12h")
	if err != nil {
		t.Fatalf("fail: %v", err)
	}
	if failed.Status != StatusFailed || failed.ErrorCode != "TIMEOUT" || failed.FailedAt == nil {
		t.Fatalf("got %s code=%q failed_at=%v", failed.Status, failed.ErrorCode, failed.FailedAt)
	}
}

func TestSetProviderRefKeepsStatusPending(t *testing.T) {
	store := NewMemory()
	rec := createPending(t, store, TypeCollection)

	updated, err := store.SetProviderRef(context.Background(), rec.ID, "mpesa", "ws_CO_9")
	if err != nil {
		t.Fatalf("set provider ref: %v", err)
	}
	if updated.Status != StatusPending {
		t.Fatalf("status = %s, want pending", updated.Status)
	}
	if updated.ProviderTxID != "ws_CO_9" {
		t.Fatalf("provider tx id = %q", updated.ProviderTxID)
	}
}

func TestGetByProviderTxID(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()
	rec := createPending(t, store, TypeCollection)
	if _, err := store.SetProviderRef(ctx, rec.ID, "mpesa", "ws_CO_42"); err != nil {
		t.Fatalf("set provider ref: %v", err)
	}

	found, err := store.GetByProviderTxID(ctx, "ws_CO_42")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if found.ID != rec.ID {
		t.Fatalf("found %s, want %s", found.ID, rec.ID)
	}
	if _, err := store.GetByProviderTxID(ctx, "ws_CO_nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestListPendingAppliesWindowAndRetryCap(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()
	now := time.Now().UTC()

	young := createPending(t, store, TypeCollection)
	ForceCreatedAt(store, young.ID, now.Add(-time.Minute))

	inWindow := createPending(t, store, TypeCollection)
	ForceCreatedAt(store, inWindow.ID, now.Add(-5*time.Minute))

	stale := createPending(t, store, TypeCollection)
	ForceCreatedAt(store, stale.ID, now.Add(-13*time.Hour))

	exhausted := createPending(t, store, TypeCollection)
	ForceCreatedAt(store, exhausted.ID, now.Add(-5*time.Minute))
	for i := 0; i < 3; i++ {
		if _, err := store.IncrementRetry(ctx, exhausted.ID); err != nil {
			t.Fatalf("increment: %v", err)
		}
	}

	otherType := createPending(t, store, TypePayout)
	ForceCreatedAt(store, otherType.ID, now.Add(-5*time.Minute))

	got, err := store.ListPending(ctx, TypeCollection, now.Add(-12*time.Hour), now.Add(-3*time.Minute), 3)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].ID != inWindow.ID {
		t.Fatalf("got %d records, want only the in-window one", len(got))
	}
}

func TestListByBusinessNewestFirst(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()
	businessID := uuid.New()

	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		rec, err := store.Create(ctx, Record{
			Reference:  "REF-" + uuid.NewString()[:8],
			BusinessID: businessID,
			WalletID:   uuid.New(),
			Type:       TypeTransfer,
			Amount:     decimal.NewFromInt(int64(i + 1)),
			Currency:   "KES",
		})
		if err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
		ForceCreatedAt(store, rec.ID, time.Now().UTC().Add(time.Duration(i-10)*time.Minute))
		ids = append(ids, rec.ID)
	}

	got, err := store.ListByBusiness(ctx, businessID, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d records, want 2", len(got))
	}
	if got[0].ID != ids[2] {
		t.Fatalf("first record is not the newest")
	}
}

func TestDuplicateReferenceRejected(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	base := Record{
		Reference:  "REF-SAME",
		BusinessID: uuid.New(),
		WalletID:   uuid.New(),
		Type:       TypeCollection,
		Amount:     decimal.NewFromInt(10),
		Currency:   "KES",
	}
	if _, err := store.Create(ctx, base); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if _, err := store.Create(ctx, base); err == nil {
		t.Fatal("expected duplicate reference to be rejected")
	}
}
