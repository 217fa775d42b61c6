package ledger

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidAmount occurs when a mutation is requested with a non-positive amount.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrWalletNotFound indicates the wallet identifier does not resolve.
	ErrWalletNotFound = errors.New("wallet not found")

	// ErrInsufficientBalance occurs when the available balance cannot cover a debit or lock.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrInsufficientPending occurs when the pending balance cannot cover an unlock.
	ErrInsufficientPending = errors.New("insufficient pending balance")

	// ErrDuplicateEntry signals that an entry with the same (transaction, type) pair
	// already exists and the mutation was skipped.
	ErrDuplicateEntry = errors.New("duplicate ledger entry")

	// ErrTransactionFinalized signals that the linked transaction record is no longer
	// pending or processing, so the mutation was skipped.
	ErrTransactionFinalized = errors.New("transaction already finalized")
)

// EntryType classifies a ledger entry.
type EntryType string

const (
	EntryDeposit          EntryType = "deposit"
	EntryWithdrawal       EntryType = "withdrawal"
	EntryConversionDebit  EntryType = "conversion_debit"
	EntryConversionCredit EntryType = "conversion_credit"
	EntryFee              EntryType = "fee"
	EntryReversal         EntryType = "reversal"
)

// Wallet is one balance row per (business, currency). The row is a cached
// projection; the entry log is the source of truth.
type Wallet struct {
	ID                uuid.UUID
	BusinessID        uuid.UUID
	Currency          string
	Available         decimal.Decimal
	Pending           decimal.Decimal
	Total             decimal.Decimal
	LastTransactionAt *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Entry is an immutable, append-only ledger record. Amount is signed:
// positive for credits, negative for debits.
type Entry struct {
	ID            uuid.UUID
	WalletID      uuid.UUID
	Amount        decimal.Decimal
	Type          EntryType
	Description   string
	TransactionID *uuid.UUID
	BalanceAfter  decimal.Decimal
	Metadata      map[string]string
	CreatedAt     time.Time
}
