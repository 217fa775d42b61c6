// Package transfer orchestrates cross-border transfers as a saga: a sequence
// of forward steps over the ledger and external rails, each recorded on the
// transaction timeline, with compensating rollback when a step fails.
package transfer

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/savanna-pay/savanna_pay/internal/beneficiary"
	"github.com/savanna-pay/savanna_pay/internal/rates"
)

var (
	// ErrInsufficientLiquidity occurs when the custodial exchange cannot
	// cover the stable-asset amount a transfer requires.
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")

	// ErrRollbackFailed indicates compensation could not be applied and the
	// transaction needs operator intervention.
	ErrRollbackFailed = errors.New("rollback failed, manual intervention required")
)

// Timeline step names. These are stable identifiers: support tooling and
// rollback scoping both match on them.
const (
	StepTransferInitiated = "transfer_initiated"
	StepWalletDebited     = "wallet_debited"
	StepRateCalculation   = "rate_calculation"
	StepLiquidityCheck    = "liquidity_check"
	StepNetworkLiquidity  = "ensure_network_liquidity"
	StepSent              = "tron_transfer_sent"
	StepConfirmed         = "tron_confirmed"
	StepCompleted         = "transfer_completed"
	StepRollbackStarted   = "rollback_started"
	StepRollbackCompleted = "rollback_completed"
	StepRollbackFailed    = "rollback_failed"
)

// Beneficiaries resolves transfer recipients. Find applies business scoping
// and the active check.
type Beneficiaries interface {
	Find(ctx context.Context, id, businessID uuid.UUID) (beneficiary.Beneficiary, error)
}

// RateSource produces exchange-rate quotes.
type RateSource interface {
	GetRate(ctx context.Context, from, to string) (rates.Quote, error)
}

// Exchange is the custodial-exchange capability the saga needs.
type Exchange interface {
	Balance(ctx context.Context, asset string) (decimal.Decimal, error)
	Withdraw(ctx context.Context, asset, address string, amount decimal.Decimal, reference string) (string, error)
}

// Blockchain is the on-chain capability the saga needs. WaitForConfirmation
// must return within a bounded duration, wrapping
// provider.ErrConfirmationTimeout when the depth was not reached in time.
type Blockchain interface {
	Balance(ctx context.Context, address string) (decimal.Decimal, error)
	Send(ctx context.Context, to string, amount decimal.Decimal) (string, error)
	WaitForConfirmation(ctx context.Context, txHash string, minConfirmations int) error
}

// Config carries the saga's operating parameters.
type Config struct {
	// StableAsset is the bridging asset, e.g. USDT.
	StableAsset string
	// HotWalletAddress is the on-chain wallet transfers are sent from.
	HotWalletAddress string
	// LiquidityBuffer is added on top of the shortfall when refilling the
	// hot wallet, so consecutive transfers don't each trigger a withdrawal.
	LiquidityBuffer decimal.Decimal
	// MinConfirmations before a send counts as settled.
	MinConfirmations int
	// ChainProvider is recorded on the transaction when the send broadcasts.
	ChainProvider string
}
