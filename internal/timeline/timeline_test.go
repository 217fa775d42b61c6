package timeline

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestRecorderAppendsInOrder(t *testing.T) {
	r := NewRecorder(NewMemory())
	ctx := context.Background()
	txID := uuid.New()

	steps := []struct {
		name   string
		status Status
	}{
		{"transfer_initiated", StatusSuccess},
		{"wallet_debited", StatusPending},
		{"wallet_debited", StatusSuccess},
		{"rate_calculation", StatusPending},
		{"rate_calculation", StatusFailed},
	}
	for _, s := range steps {
		if err := r.Record(ctx, txID, s.name, s.status, "", nil); err != nil {
			t.Fatalf("record %s: %v", s.name, err)
		}
	}

	entries, err := r.List(ctx, txID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != len(steps) {
		t.Fatalf("entries = %d, want %d", len(entries), len(steps))
	}
	for i, e := range entries {
		if e.Step != steps[i].name || e.Status != steps[i].status {
			t.Fatalf("entry %d = %s/%s, want %s/%s", i, e.Step, e.Status, steps[i].name, steps[i].status)
		}
	}
}

func TestCurrentReturnsLatestEntry(t *testing.T) {
	r := NewRecorder(NewMemory())
	ctx := context.Background()
	txID := uuid.New()

	if _, err := r.Current(ctx, txID); !errors.Is(err, ErrEmpty) {
		t.Fatalf("err = %v, want ErrEmpty", err)
	}

	if err := r.Record(ctx, txID, "wallet_debited", StatusPending, "", nil); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := r.Record(ctx, txID, "wallet_debited", StatusSuccess, "", nil); err != nil {
		t.Fatalf("record: %v", err)
	}

	current, err := r.Current(ctx, txID)
	if err != nil {
		t.Fatalf("current: %v", err)
	}
	if current.Step != "wallet_debited" || current.Status != StatusSuccess {
		t.Fatalf("current = %s/%s", current.Step, current.Status)
	}
}

func TestSucceededCollectsOnlySuccessfulSteps(t *testing.T) {
	r := NewRecorder(NewMemory())
	ctx := context.Background()
	txID := uuid.New()

	pairs := []struct {
		step   string
		status Status
	}{
		{"wallet_debited", StatusSuccess},
		{"rate_calculation", StatusSuccess},
		{"liquidity_check", StatusPending},
		{"liquidity_check", StatusFailed},
	}
	for _, p := range pairs {
		if err := r.Record(ctx, txID, p.step, p.status, "", nil); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	succeeded, err := r.Succeeded(ctx, txID)
	if err != nil {
		t.Fatalf("succeeded: %v", err)
	}
	if !succeeded["wallet_debited"] || !succeeded["rate_calculation"] {
		t.Fatalf("missing successful steps: %v", succeeded)
	}
	if succeeded["liquidity_check"] {
		t.Fatalf("liquidity_check never succeeded: %v", succeeded)
	}
}

func TestTimelinesAreIsolatedPerTransaction(t *testing.T) {
	r := NewRecorder(NewMemory())
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()

	if err := r.Record(ctx, a, "wallet_debited", StatusSuccess, "", nil); err != nil {
		t.Fatalf("record: %v", err)
	}

	entries, err := r.List(ctx, b)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("entries = %d, want none for another transaction", len(entries))
	}
}
