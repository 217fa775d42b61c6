package transfer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/savanna-pay/savanna_pay/internal/beneficiary"
	"github.com/savanna-pay/savanna_pay/internal/ledger"
	"github.com/savanna-pay/savanna_pay/internal/notification"
	"github.com/savanna-pay/savanna_pay/internal/provider"
	"github.com/savanna-pay/savanna_pay/internal/timeline"
	"github.com/savanna-pay/savanna_pay/internal/transaction"
)

// Service drives the end-to-end cross-border transfer saga.
type Service struct {
	ledger        *ledger.Service
	records       transaction.Store
	timeline      *timeline.Recorder
	beneficiaries Beneficiaries
	rates         RateSource
	exchange      Exchange
	chain         Blockchain
	notifier      notification.Notifier
	cfg           Config
	logger        *slog.Logger
}

// NewService wires the saga's collaborators.
func NewService(
	ledgerSvc *ledger.Service,
	records transaction.Store,
	recorder *timeline.Recorder,
	beneficiaries Beneficiaries,
	rateSource RateSource,
	exchange Exchange,
	chain Blockchain,
	notifier notification.Notifier,
	cfg Config,
	logger *slog.Logger,
) *Service {
	return &Service{
		ledger:        ledgerSvc,
		records:       records,
		timeline:      recorder,
		beneficiaries: beneficiaries,
		rates:         rateSource,
		exchange:      exchange,
		chain:         chain,
		notifier:      notifier,
		cfg:           cfg,
		logger:        logger,
	}
}

// InitiateInput captures a transfer request.
type InitiateInput struct {
	BusinessID    uuid.UUID
	BeneficiaryID uuid.UUID
	Amount        decimal.Decimal
	Currency      string
}

// stepError tags a failure with the step it occurred in so rollback can
// record it.
type stepError struct {
	step string
	err  error
}

func (e *stepError) Error() string { return fmt.Sprintf("%s: %v", e.step, e.err) }
func (e *stepError) Unwrap() error { return e.err }

// Initiate runs the transfer saga. On success the returned record is
// completed; on failure compensation has been applied (or escalated) and the
// original error is returned alongside the failed record.
//
// Steps 1-5 only touch the ledger and read-only provider calls and are cheap
// to compensate. The on-chain send happens as late as possible, after
// liquidity is already confirmed sufficient, because a broadcast cannot be
// recalled.
func (s *Service) Initiate(ctx context.Context, in InitiateInput) (transaction.Record, error) {
	if in.Amount.LessThanOrEqual(decimal.Zero) {
		return transaction.Record{}, ledger.ErrInvalidAmount
	}
	if in.Currency == "" {
		return transaction.Record{}, fmt.Errorf("currency is required")
	}

	// No transaction record exists yet, so beneficiary failures produce no
	// timeline entries.
	bene, err := s.beneficiaries.Find(ctx, in.BeneficiaryID, in.BusinessID)
	if err != nil {
		return transaction.Record{}, err
	}

	wallet, err := s.ledger.GetOrCreateWallet(ctx, in.BusinessID, in.Currency)
	if err != nil {
		return transaction.Record{}, err
	}

	rec, err := s.records.Create(ctx, transaction.Record{
		Reference:  newReference(),
		BusinessID: in.BusinessID,
		WalletID:   wallet.ID,
		Type:       transaction.TypeTransfer,
		Status:     transaction.StatusPending,
		Amount:     in.Amount,
		Currency:   in.Currency,
		Metadata: map[string]string{
			"beneficiary_id":      bene.ID.String(),
			"destination_address": bene.DestinationAddress,
		},
	})
	if err != nil {
		return transaction.Record{}, err
	}
	if err := s.timeline.Record(ctx, rec.ID, StepTransferInitiated, timeline.StatusSuccess,
		fmt.Sprintf("transfer of %s %s to %s", in.Amount, in.Currency, bene.Name), nil); err != nil {
		// Nothing ran yet, but transfers are not reconciled from outside, so a
		// record left pending here would be stranded forever.
		if failed, failErr := s.records.Fail(ctx, rec.ID, "INTERNAL_ERROR", err.Error()); failErr != nil {
			s.logger.Error("mark transaction failed", "transaction_id", rec.ID, "error", failErr)
		} else {
			rec = failed
		}
		return rec, err
	}

	if txHash, err := s.run(ctx, &rec, bene); err != nil {
		failedStep := ""
		cause := err
		var se *stepError
		if errors.As(err, &se) {
			failedStep = se.step
			cause = se.err
		}
		s.rollback(ctx, &rec, failedStep, txHash, cause)
		return rec, cause
	}

	rec, err = s.records.Complete(ctx, rec.ID)
	if err != nil {
		return rec, err
	}
	if err := s.timeline.Record(ctx, rec.ID, StepCompleted, timeline.StatusSuccess, "transfer settled", nil); err != nil {
		s.logger.Warn("record completion step", "transaction_id", rec.ID, "error", err)
	}
	s.notify(ctx, notification.KindTransferCompleted, rec)
	return rec, nil
}

// run executes the saga steps in order. The returned hash is non-empty as
// soon as chain.Send accepts the broadcast, whether or not the step it ran in
// completed, so the caller can tell "never sent" from "sent, then failed".
func (s *Service) run(ctx context.Context, rec *transaction.Record, bene beneficiary.Beneficiary) (string, error) {
	var (
		quote        = decimal.Zero
		targetAmount decimal.Decimal
		txHash       string
	)

	err := s.step(ctx, rec.ID, StepWalletDebited, func() (map[string]string, error) {
		before, err := s.ledger.Balance(ctx, rec.WalletID)
		if err != nil {
			return nil, err
		}
		after, err := s.ledger.Debit(ctx, ledger.MutationInput{
			WalletID:      rec.WalletID,
			Amount:        rec.Amount,
			Type:          ledger.EntryConversionDebit,
			Description:   fmt.Sprintf("Cross-border transfer %s", rec.Reference),
			TransactionID: &rec.ID,
		})
		if err != nil {
			return nil, err
		}
		return map[string]string{
			"balance_before": before.Available.String(),
			"balance_after":  after.Available.String(),
		}, nil
	})
	if err != nil {
		return txHash, err
	}

	err = s.step(ctx, rec.ID, StepRateCalculation, func() (map[string]string, error) {
		q, err := s.rates.GetRate(ctx, rec.Currency, s.cfg.StableAsset)
		if err != nil {
			return nil, err
		}
		quote = q.Rate
		targetAmount = rec.Amount.Mul(q.Rate)
		return map[string]string{
			"rate":          q.Rate.String(),
			"rate_source":   q.Source,
			"rate_time":     q.Timestamp.Format("2006-01-02T15:04:05Z07:00"),
			"target_amount": targetAmount.String(),
			"target_asset":  s.cfg.StableAsset,
		}, nil
	})
	if err != nil {
		return txHash, err
	}

	err = s.step(ctx, rec.ID, StepLiquidityCheck, func() (map[string]string, error) {
		balance, err := s.exchange.Balance(ctx, s.cfg.StableAsset)
		if err != nil {
			return nil, err
		}
		if balance.LessThan(targetAmount) {
			return map[string]string{"exchange_balance": balance.String(), "required": targetAmount.String()},
				fmt.Errorf("%w: have %s %s, need %s", ErrInsufficientLiquidity, balance, s.cfg.StableAsset, targetAmount)
		}
		return map[string]string{"exchange_balance": balance.String(), "required": targetAmount.String()}, nil
	})
	if err != nil {
		return txHash, err
	}

	err = s.step(ctx, rec.ID, StepNetworkLiquidity, func() (map[string]string, error) {
		onChain, err := s.chain.Balance(ctx, s.cfg.HotWalletAddress)
		if err != nil {
			return nil, err
		}
		if onChain.GreaterThanOrEqual(targetAmount) {
			return map[string]string{"hot_wallet_balance": onChain.String(), "topped_up": "false"}, nil
		}
		shortfall := targetAmount.Sub(onChain).Add(s.cfg.LiquidityBuffer)
		withdrawalID, err := s.exchange.Withdraw(ctx, s.cfg.StableAsset, s.cfg.HotWalletAddress, shortfall, rec.Reference)
		if err != nil {
			return nil, err
		}
		return map[string]string{
			"hot_wallet_balance": onChain.String(),
			"topped_up":          "true",
			"withdrawal_amount":  shortfall.String(),
			"withdrawal_id":      withdrawalID,
		}, nil
	})
	if err != nil {
		return txHash, err
	}

	err = s.step(ctx, rec.ID, StepSent, func() (map[string]string, error) {
		hash, err := s.chain.Send(ctx, bene.DestinationAddress, targetAmount)
		if err != nil {
			return nil, err
		}
		txHash = hash
		updated, err := s.records.SetProcessing(ctx, rec.ID, s.cfg.ChainProvider, hash)
		if err != nil {
			return map[string]string{"tx_hash": hash}, err
		}
		*rec = updated
		return map[string]string{"tx_hash": hash, "amount": targetAmount.String(), "rate": quote.String()}, nil
	})
	if err != nil {
		return txHash, err
	}

	err = s.step(ctx, rec.ID, StepConfirmed, func() (map[string]string, error) {
		if err := s.chain.WaitForConfirmation(ctx, txHash, s.cfg.MinConfirmations); err != nil {
			return map[string]string{"tx_hash": txHash}, err
		}
		return map[string]string{"tx_hash": txHash, "confirmations": fmt.Sprintf("%d", s.cfg.MinConfirmations)}, nil
	})
	return txHash, err
}

// step records the pending entry before fn runs and the success/failed entry
// after, wrapping failures with the step name for rollback scoping.
func (s *Service) step(ctx context.Context, txID uuid.UUID, name string, fn func() (map[string]string, error)) error {
	if err := s.timeline.Record(ctx, txID, name, timeline.StatusPending, "", nil); err != nil {
		return &stepError{step: name, err: err}
	}
	metadata, err := fn()
	if err != nil {
		if recordErr := s.timeline.Record(ctx, txID, name, timeline.StatusFailed, err.Error(), metadata); recordErr != nil {
			s.logger.Error("record step failure", "transaction_id", txID, "step", name, "error", recordErr)
		}
		return &stepError{step: name, err: err}
	}
	if err := s.timeline.Record(ctx, txID, name, timeline.StatusSuccess, "", metadata); err != nil {
		return &stepError{step: name, err: err}
	}
	return nil
}

// rollback compensates the steps that succeeded before failedStep. The
// compensating credit reuses the transaction id with the reversal entry type,
// so retrying rollback can never double-credit. Once a broadcast hash exists
// the funds may already have left the hot wallet, whatever step the failure
// surfaced in; compensation is refused and an operator alert raised instead.
func (s *Service) rollback(ctx context.Context, rec *transaction.Record, failedStep, txHash string, cause error) {
	if err := s.timeline.Record(ctx, rec.ID, StepRollbackStarted, timeline.StatusPending, cause.Error(),
		map[string]string{"failed_step": failedStep}); err != nil {
		s.logger.Error("record rollback start", "transaction_id", rec.ID, "error", err)
	}

	if txHash != "" {
		s.escalate(ctx, rec, fmt.Sprintf("on-chain send %s already broadcast, outcome unknown: %v", txHash, cause))
		return
	}

	succeeded, err := s.timeline.Succeeded(ctx, rec.ID)
	if err != nil {
		s.escalate(ctx, rec, fmt.Sprintf("cannot read timeline for rollback: %v", err))
		return
	}

	if succeeded[StepWalletDebited] {
		if _, err := s.ledger.Credit(ctx, ledger.MutationInput{
			WalletID:      rec.WalletID,
			Amount:        rec.Amount,
			Type:          ledger.EntryReversal,
			Description:   fmt.Sprintf("Reversal of transfer %s", rec.Reference),
			TransactionID: &rec.ID,
			Metadata:      map[string]string{"failed_step": failedStep},
		}); err != nil {
			s.escalate(ctx, rec, fmt.Sprintf("compensating credit failed: %v", err))
			return
		}
	}

	if failed, err := s.records.Fail(ctx, rec.ID, errorCode(cause), cause.Error()); err != nil {
		s.logger.Error("mark transaction failed", "transaction_id", rec.ID, "error", err)
	} else {
		*rec = failed
	}
	if err := s.timeline.Record(ctx, rec.ID, StepRollbackCompleted, timeline.StatusSuccess, "", nil); err != nil {
		s.logger.Error("record rollback completion", "transaction_id", rec.ID, "error", err)
	}
	s.notify(ctx, notification.KindTransferFailed, *rec)
}

// escalate records a terminal rollback failure. It is never retried
// automatically; an operator has to reconcile against the chain explorer and
// settle the ledger by hand.
func (s *Service) escalate(ctx context.Context, rec *transaction.Record, reason string) {
	if err := s.timeline.Record(ctx, rec.ID, StepRollbackFailed, timeline.StatusFailed, reason, nil); err != nil {
		s.logger.Error("record rollback failure", "transaction_id", rec.ID, "error", err)
	}
	if failed, err := s.records.Fail(ctx, rec.ID, "ROLLBACK_FAILED", reason); err != nil {
		s.logger.Error("mark transaction failed", "transaction_id", rec.ID, "error", err)
	} else {
		*rec = failed
	}
	s.logger.Error("rollback failed, manual intervention required",
		"transaction_id", rec.ID, "reference", rec.Reference, "reason", reason)
	if s.notifier != nil {
		_ = s.notifier.Send(ctx, notification.Message{
			Kind:        notification.KindOperatorAlert,
			Destination: rec.BusinessID.String(),
			Body:        fmt.Sprintf("rollback failed for %s: %s", rec.Reference, reason),
		})
	}
}

// Status returns the transaction record for a transfer.
func (s *Service) Status(ctx context.Context, id uuid.UUID) (transaction.Record, error) {
	return s.records.Get(ctx, id)
}

// Timeline returns the full step log for a transfer, including rollback
// entries.
func (s *Service) Timeline(ctx context.Context, id uuid.UUID) ([]timeline.Entry, error) {
	if _, err := s.records.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.timeline.List(ctx, id)
}

// List returns the most recent transfers for a business.
func (s *Service) List(ctx context.Context, businessID uuid.UUID, limit int) ([]transaction.Record, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.records.ListByBusiness(ctx, businessID, limit)
}

func (s *Service) notify(ctx context.Context, kind string, rec transaction.Record) {
	if s.notifier == nil {
		return
	}
	_ = s.notifier.Send(ctx, notification.Message{
		Kind:        kind,
		Destination: rec.BusinessID.String(),
		Body:        fmt.Sprintf("transfer %s: %s", rec.Reference, rec.Status),
	})
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, ErrInsufficientLiquidity):
		return "INSUFFICIENT_LIQUIDITY"
	case errors.Is(err, ledger.ErrInsufficientBalance):
		return "INSUFFICIENT_BALANCE"
	case errors.Is(err, provider.ErrConfirmationTimeout):
		return "CONFIRMATION_TIMEOUT"
	default:
		return "PROVIDER_ERROR"
	}
}

func newReference() string {
	return "TRF-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:12])
}
