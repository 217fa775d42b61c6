// Package provider defines the uniform capability contract over heterogeneous
// payment rails and the deterministic selection between them.
package provider

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrNoProvider indicates no registered provider can serve a request.
var ErrNoProvider = errors.New("no provider available")

// ErrConfirmationTimeout indicates a blockchain confirmation wait ended
// without reaching the required depth. Orchestrators must treat it as a
// failure of the step, not as a definitive send failure.
var ErrConfirmationTimeout = errors.New("confirmation wait timed out")

// Mobile-money result codes as reported by QueryStatus. Zero is success; the
// listed non-zero codes are terminal user-side failures.
const (
	ResultSuccess           = "0"
	ResultInsufficientFunds = "1"
	ResultUserCancelled     = "1032"
	ResultPINTimeout        = "1037"
)

// DepositRequest asks a rail to collect funds from a payer.
type DepositRequest struct {
	Amount    decimal.Decimal
	Currency  string
	Phone     string
	Reference string
}

// WithdrawalRequest asks a rail to pay out to a destination (phone number or
// chain address, depending on the rail).
type WithdrawalRequest struct {
	Amount      decimal.Decimal
	Currency    string
	Destination string
	Reference   string
}

// Response is the synchronous acknowledgment of an initiation. Completion
// arrives later via callback or polling.
type Response struct {
	ProviderTxID string
	Message      string
}

// Status is the provider-side view of a transaction.
type Status struct {
	ProviderTxID string
	ResultCode   string
	ResultDesc   string
	Amount       decimal.Decimal
	CompletedAt  *time.Time
}

// Succeeded reports whether the provider considers the transaction complete.
func (s Status) Succeeded() bool {
	return s.ResultCode == ResultSuccess
}

// TerminalFailure maps known terminal result codes to an internal error code.
// The second return is false for retryable or still-pending codes.
func (s Status) TerminalFailure() (string, bool) {
	switch s.ResultCode {
	case ResultInsufficientFunds:
		return "INSUFFICIENT_FUNDS", true
	case ResultUserCancelled:
		return "USER_CANCELLED", true
	case ResultPINTimeout:
		return "PIN_TIMEOUT", true
	default:
		return "", false
	}
}

// Provider is implemented per rail (mobile money, custodial exchange,
// blockchain). Every implementation returns a provider transaction id
// synchronously and completes asynchronously.
type Provider interface {
	Name() string
	InitiateDeposit(ctx context.Context, req DepositRequest) (Response, error)
	InitiateWithdrawal(ctx context.Context, req WithdrawalRequest) (Response, error)
	QueryStatus(ctx context.Context, providerTxID string) (Status, error)
}
