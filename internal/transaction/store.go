package transaction

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Store persists transaction records. Status-changing methods enforce the
// monotonic transition rules and return ErrInvalidTransition when a record is
// already terminal.
type Store interface {
	Create(ctx context.Context, rec Record) (Record, error)
	Get(ctx context.Context, id uuid.UUID) (Record, error)
	GetByReference(ctx context.Context, reference string) (Record, error)
	GetByProviderTxID(ctx context.Context, providerTxID string) (Record, error)

	// SetProviderRef stamps the provider linkage on a record without changing
	// its status. Collections stay pending after initiation because completion
	// only arrives via callback or reconciliation.
	SetProviderRef(ctx context.Context, id uuid.UUID, provider, providerTxID string) (Record, error)

	// SetProcessing moves a pending record to processing and stamps the
	// provider linkage.
	SetProcessing(ctx context.Context, id uuid.UUID, provider, providerTxID string) (Record, error)
	Complete(ctx context.Context, id uuid.UUID) (Record, error)
	Fail(ctx context.Context, id uuid.UUID, errorCode, errorMessage string) (Record, error)

	// IncrementRetry bumps the reconciliation retry counter and returns the
	// new count.
	IncrementRetry(ctx context.Context, id uuid.UUID) (int, error)

	// ListPending returns records of the given type still pending, created
	// within (createdAfter, createdBefore) and below the retry cap. Zero
	// times or a zero cap disable the respective bound.
	ListPending(ctx context.Context, typ Type, createdAfter, createdBefore time.Time, maxRetries int) ([]Record, error)

	ListByBusiness(ctx context.Context, businessID uuid.UUID, limit int) ([]Record, error)
}

// StatusLookup adapts a store into the status probe ledger backends use for
// their finalized-transaction guard. An unknown id reports not-found rather
// than an error, so entries without a linked record stay unguarded.
func StatusLookup(store Store) func(ctx context.Context, id uuid.UUID) (string, bool, error) {
	return func(ctx context.Context, id uuid.UUID) (string, bool, error) {
		rec, err := store.Get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			return "", false, nil
		}
		if err != nil {
			return "", false, err
		}
		return string(rec.Status), true, nil
	}
}
