package ledger

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Mutation describes a balance-affecting operation. Amount is always positive;
// the store derives the entry sign from the operation.
type Mutation struct {
	WalletID      uuid.UUID
	Amount        decimal.Decimal
	Type          EntryType
	Description   string
	TransactionID *uuid.UUID
	Metadata      map[string]string
}

// Store is the contract implemented by ledger backends. Every mutating method
// is atomic: the wallet row is locked for the duration of the operation, the
// idempotency check runs inside the same transaction as the balance update,
// and exactly one entry is appended per applied mutation.
//
// Credit and Debit return ErrDuplicateEntry (with the unchanged wallet) when an
// entry with the same (transaction, type) pair already exists, and
// ErrTransactionFinalized when the linked transaction record is no longer
// pending or processing.
type Store interface {
	GetOrCreateWallet(ctx context.Context, businessID uuid.UUID, currency string) (Wallet, error)
	Wallet(ctx context.Context, walletID uuid.UUID) (Wallet, error)
	FindWallet(ctx context.Context, businessID uuid.UUID, currency string) (Wallet, error)
	Credit(ctx context.Context, m Mutation) (Wallet, error)
	Debit(ctx context.Context, m Mutation) (Wallet, error)
	Lock(ctx context.Context, walletID uuid.UUID, amount decimal.Decimal) (Wallet, error)
	Unlock(ctx context.Context, walletID uuid.UUID, amount decimal.Decimal) (Wallet, error)
	History(ctx context.Context, walletID uuid.UUID, limit int) ([]Entry, error)
}

// TransactionStatusFn reports the status of a linked transaction record. The
// ledger only reads it inside a mutation to refuse crediting a finalized
// transaction; ownership of the record stays with the orchestration layer.
type TransactionStatusFn func(ctx context.Context, id uuid.UUID) (status string, found bool, err error)

const (
	txStatusPending    = "pending"
	txStatusProcessing = "processing"
)

func txMutable(status string) bool {
	return status == txStatusPending || status == txStatusProcessing
}
