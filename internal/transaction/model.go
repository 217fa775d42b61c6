package transaction

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound indicates the transaction record does not exist.
	ErrNotFound = errors.New("transaction not found")

	// ErrInvalidTransition indicates a status change that would move a record
	// backwards or out of a terminal state.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Type classifies the unit of work a record represents.
type Type string

const (
	TypeCollection Type = "collection"
	TypePayout     Type = "payout"
	TypeTransfer   Type = "transfer"
	TypeConversion Type = "conversion"
	TypeWithdrawal Type = "withdrawal"
)

// Status is the record lifecycle state. Transitions are monotonic forward
// (pending → processing → completed|failed) except the explicit reversal path.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusReversed   Status = "reversed"
)

// Terminal reports whether no further forward transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusReversed
}

// Record represents one externally visible unit of work operated on by a saga
// or a provider callback.
type Record struct {
	ID            uuid.UUID
	Reference     string
	BusinessID    uuid.UUID
	WalletID      uuid.UUID
	Type          Type
	Status        Status
	Amount        decimal.Decimal
	Currency      string
	Provider      string
	ProviderTxID  string
	RetryCount    int
	ErrorCode     string
	ErrorMessage  string
	Metadata      map[string]string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	CompletedAt   *time.Time
	FailedAt      *time.Time
}

func allowedTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusProcessing || to == StatusCompleted || to == StatusFailed
	case StatusProcessing:
		return to == StatusCompleted || to == StatusFailed
	case StatusCompleted:
		return to == StatusReversed
	default:
		return false
	}
}
