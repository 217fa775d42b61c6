// Package funding moves money between mobile-money rails and business
// wallets: collections credit a wallet once the provider confirms, payouts
// debit up front and reverse when the provider reports failure.
package funding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/savanna-pay/savanna_pay/internal/ledger"
	"github.com/savanna-pay/savanna_pay/internal/notification"
	"github.com/savanna-pay/savanna_pay/internal/provider"
	"github.com/savanna-pay/savanna_pay/internal/transaction"
)

// ErrCallbackUnmatched indicates a provider callback references a transaction
// this system never initiated.
var ErrCallbackUnmatched = errors.New("callback does not match any transaction")

// Service drives deposits and withdrawals over the registered rails.
type Service struct {
	ledger    *ledger.Service
	records   transaction.Store
	providers *provider.Registry
	notifier  notification.Notifier
	logger    *slog.Logger
}

// NewService builds a funding service instance.
func NewService(ledgerSvc *ledger.Service, records transaction.Store, providers *provider.Registry, notifier notification.Notifier, logger *slog.Logger) *Service {
	return &Service{ledger: ledgerSvc, records: records, providers: providers, notifier: notifier, logger: logger}
}

// DepositInput captures a mobile-money collection request.
type DepositInput struct {
	BusinessID uuid.UUID
	Amount     decimal.Decimal
	Currency   string
	Phone      string
	// Provider optionally pins a rail; selection falls back to capability
	// order when empty or not capable.
	Provider string
}

// Deposit initiates a collection from the payer's phone. The record stays
// pending until the provider callback (or the reconciliation job) resolves
// it; the wallet is only credited then.
func (s *Service) Deposit(ctx context.Context, in DepositInput) (transaction.Record, error) {
	if in.Amount.LessThanOrEqual(decimal.Zero) {
		return transaction.Record{}, ledger.ErrInvalidAmount
	}
	if in.Phone == "" {
		return transaction.Record{}, fmt.Errorf("phone is required")
	}

	wallet, err := s.ledger.GetOrCreateWallet(ctx, in.BusinessID, in.Currency)
	if err != nil {
		return transaction.Record{}, err
	}

	rail, err := s.providers.Select(in.Currency, in.Amount, provider.KindCollection, in.Provider)
	if err != nil {
		return transaction.Record{}, err
	}

	rec, err := s.records.Create(ctx, transaction.Record{
		Reference:  newReference("DEP"),
		BusinessID: in.BusinessID,
		WalletID:   wallet.ID,
		Type:       transaction.TypeCollection,
		Status:     transaction.StatusPending,
		Amount:     in.Amount,
		Currency:   in.Currency,
		Metadata:   map[string]string{"phone": in.Phone},
	})
	if err != nil {
		return transaction.Record{}, err
	}

	resp, err := rail.InitiateDeposit(ctx, provider.DepositRequest{
		Amount:    in.Amount,
		Currency:  in.Currency,
		Phone:     in.Phone,
		Reference: rec.Reference,
	})
	if err != nil {
		if failed, failErr := s.records.Fail(ctx, rec.ID, "PROVIDER_ERROR", err.Error()); failErr == nil {
			rec = failed
		}
		return rec, fmt.Errorf("initiate deposit via %s: %w", rail.Name(), err)
	}

	rec, err = s.records.SetProviderRef(ctx, rec.ID, rail.Name(), resp.ProviderTxID)
	if err != nil {
		return rec, err
	}

	s.logger.Info("deposit initiated",
		slog.String("reference", rec.Reference),
		slog.String("provider", rail.Name()),
		slog.String("provider_tx_id", resp.ProviderTxID))
	return rec, nil
}

// WithdrawInput captures a mobile-money payout request.
type WithdrawInput struct {
	BusinessID uuid.UUID
	Amount     decimal.Decimal
	Currency   string
	Phone      string
	Provider   string
}

// Withdraw debits the wallet first, then initiates the payout. A synchronous
// provider rejection reverses the debit; an asynchronous failure is reversed
// by the callback.
func (s *Service) Withdraw(ctx context.Context, in WithdrawInput) (transaction.Record, error) {
	if in.Amount.LessThanOrEqual(decimal.Zero) {
		return transaction.Record{}, ledger.ErrInvalidAmount
	}
	if in.Phone == "" {
		return transaction.Record{}, fmt.Errorf("phone is required")
	}

	wallet, err := s.ledger.FindWallet(ctx, in.BusinessID, in.Currency)
	if err != nil {
		return transaction.Record{}, err
	}

	rail, err := s.providers.Select(in.Currency, in.Amount, provider.KindPayout, in.Provider)
	if err != nil {
		return transaction.Record{}, err
	}

	rec, err := s.records.Create(ctx, transaction.Record{
		Reference:  newReference("PAY"),
		BusinessID: in.BusinessID,
		WalletID:   wallet.ID,
		Type:       transaction.TypePayout,
		Status:     transaction.StatusPending,
		Amount:     in.Amount,
		Currency:   in.Currency,
		Metadata:   map[string]string{"phone": in.Phone},
	})
	if err != nil {
		return transaction.Record{}, err
	}

	if _, err := s.ledger.Debit(ctx, ledger.MutationInput{
		WalletID:      wallet.ID,
		Amount:        in.Amount,
		Type:          ledger.EntryWithdrawal,
		Description:   fmt.Sprintf("Payout %s to %s", rec.Reference, in.Phone),
		TransactionID: &rec.ID,
	}); err != nil {
		if failed, failErr := s.records.Fail(ctx, rec.ID, "INSUFFICIENT_BALANCE", err.Error()); failErr == nil {
			rec = failed
		}
		return rec, err
	}

	resp, err := rail.InitiateWithdrawal(ctx, provider.WithdrawalRequest{
		Amount:      in.Amount,
		Currency:    in.Currency,
		Destination: in.Phone,
		Reference:   rec.Reference,
	})
	if err != nil {
		s.reverse(ctx, rec, "provider rejected payout")
		if failed, failErr := s.records.Fail(ctx, rec.ID, "PROVIDER_ERROR", err.Error()); failErr == nil {
			rec = failed
		}
		return rec, fmt.Errorf("initiate payout via %s: %w", rail.Name(), err)
	}

	rec, err = s.records.SetProviderRef(ctx, rec.ID, rail.Name(), resp.ProviderTxID)
	if err != nil {
		return rec, err
	}

	s.logger.Info("payout initiated",
		slog.String("reference", rec.Reference),
		slog.String("provider", rail.Name()),
		slog.String("provider_tx_id", resp.ProviderTxID))
	return rec, nil
}

// CallbackInput is the provider's asynchronous completion report.
type CallbackInput struct {
	ProviderTxID string
	ResultCode   string
	ResultDesc   string
	Amount       decimal.Decimal
}

// ProcessCallback resolves a pending collection or payout from the provider's
// result. Replays are harmless: a record already terminal is returned
// unchanged, and the ledger's idempotency guard makes the credit
// exactly-once.
func (s *Service) ProcessCallback(ctx context.Context, in CallbackInput) (transaction.Record, error) {
	rec, err := s.records.GetByProviderTxID(ctx, in.ProviderTxID)
	if errors.Is(err, transaction.ErrNotFound) {
		return transaction.Record{}, fmt.Errorf("%w: %s", ErrCallbackUnmatched, in.ProviderTxID)
	}
	if err != nil {
		return transaction.Record{}, err
	}
	if rec.Status.Terminal() {
		s.logger.Info("callback replay ignored",
			slog.String("reference", rec.Reference),
			slog.String("status", string(rec.Status)))
		return rec, nil
	}

	status := provider.Status{ProviderTxID: in.ProviderTxID, ResultCode: in.ResultCode, ResultDesc: in.ResultDesc, Amount: in.Amount}
	return s.resolve(ctx, rec, status, "callback")
}

// Resolve applies a provider-side status to a non-terminal record. The
// reconciliation job uses it after polling QueryStatus.
func (s *Service) Resolve(ctx context.Context, rec transaction.Record, status provider.Status) (transaction.Record, error) {
	if rec.Status.Terminal() {
		return rec, nil
	}
	return s.resolve(ctx, rec, status, "reconciliation")
}

// resolve applies a provider-side result to a non-terminal record. Shared by
// the callback path and the reconciliation job.
func (s *Service) resolve(ctx context.Context, rec transaction.Record, status provider.Status, via string) (transaction.Record, error) {
	switch {
	case status.Succeeded():
		if rec.Type == transaction.TypeCollection {
			if _, err := s.ledger.Credit(ctx, ledger.MutationInput{
				WalletID:      rec.WalletID,
				Amount:        rec.Amount,
				Type:          ledger.EntryDeposit,
				Description:   fmt.Sprintf("Collection %s", rec.Reference),
				TransactionID: &rec.ID,
				Metadata:      map[string]string{"via": via},
			}); err != nil {
				return rec, fmt.Errorf("credit collection %s: %w", rec.Reference, err)
			}
		}
		completed, err := s.records.Complete(ctx, rec.ID)
		if errors.Is(err, transaction.ErrInvalidTransition) {
			// Lost the race against another resolver; the credit above was a
			// no-op replay, so the record's winner stands.
			return s.records.Get(ctx, rec.ID)
		}
		if err != nil {
			return rec, err
		}
		s.notify(ctx, completed)
		return completed, nil

	default:
		code, terminal := status.TerminalFailure()
		if !terminal {
			// Still pending on the provider side; leave it for the next
			// callback or reconciliation pass.
			return rec, nil
		}
		if rec.Type == transaction.TypePayout {
			s.reverse(ctx, rec, status.ResultDesc)
		}
		failed, err := s.records.Fail(ctx, rec.ID, code, status.ResultDesc)
		if errors.Is(err, transaction.ErrInvalidTransition) {
			return s.records.Get(ctx, rec.ID)
		}
		if err != nil {
			return rec, err
		}
		return failed, nil
	}
}

// Expire fails a record whose provider outcome never arrived within the
// reconciliation window. A collection was never credited, so expiry is
// bookkeeping only; a payout debited the wallet up front, so the debit is
// reversed before the record is failed.
func (s *Service) Expire(ctx context.Context, rec transaction.Record, detail string) (transaction.Record, error) {
	if rec.Status.Terminal() {
		return rec, nil
	}
	if rec.Type == transaction.TypePayout {
		s.reverse(ctx, rec, "no provider confirmation")
	}
	failed, err := s.records.Fail(ctx, rec.ID, "TIMEOUT", detail)
	if errors.Is(err, transaction.ErrInvalidTransition) {
		return s.records.Get(ctx, rec.ID)
	}
	return failed, err
}

// reverse credits back a payout debit. Safe to call more than once for the
// same record.
func (s *Service) reverse(ctx context.Context, rec transaction.Record, reason string) {
	if _, err := s.ledger.Credit(ctx, ledger.MutationInput{
		WalletID:      rec.WalletID,
		Amount:        rec.Amount,
		Type:          ledger.EntryReversal,
		Description:   fmt.Sprintf("Reversal of payout %s", rec.Reference),
		TransactionID: &rec.ID,
		Metadata:      map[string]string{"reason": reason},
	}); err != nil {
		s.logger.Error("payout reversal failed",
			slog.String("reference", rec.Reference),
			slog.Any("error", err))
	}
}

func (s *Service) notify(ctx context.Context, rec transaction.Record) {
	if s.notifier == nil || rec.Type != transaction.TypeCollection {
		return
	}
	_ = s.notifier.Send(ctx, notification.Message{
		Kind:        notification.KindDepositCompleted,
		Destination: rec.BusinessID.String(),
		Body:        fmt.Sprintf("deposit %s completed: %s %s", rec.Reference, rec.Amount, rec.Currency),
	})
}

func newReference(prefix string) string {
	return prefix + "-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:12]) + "-" + time.Now().UTC().Format("060102")
}
