package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// Service exposes atomic wallet operations over a ledger store. It owns the
// Wallet and Entry records exclusively; every balance change in the system
// goes through this service.
type Service struct {
	store  Store
	logger *slog.Logger
}

// NewService builds a ledger service instance.
func NewService(store Store, logger *slog.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// MutationInput captures the data required for a credit or debit.
type MutationInput struct {
	WalletID      uuid.UUID
	Amount        decimal.Decimal
	Type          EntryType
	Description   string
	TransactionID *uuid.UUID
	Metadata      map[string]string
}

// GetOrCreateWallet returns the wallet for (business, currency), provisioning
// it lazily on first use.
func (s *Service) GetOrCreateWallet(ctx context.Context, businessID uuid.UUID, currency string) (Wallet, error) {
	if currency == "" {
		return Wallet{}, fmt.Errorf("currency is required")
	}
	return s.store.GetOrCreateWallet(ctx, businessID, currency)
}

// Balance returns the wallet row with its current balances.
func (s *Service) Balance(ctx context.Context, walletID uuid.UUID) (Wallet, error) {
	return s.store.Wallet(ctx, walletID)
}

// FindWallet fetches a wallet by (business, currency) without creating one.
func (s *Service) FindWallet(ctx context.Context, businessID uuid.UUID, currency string) (Wallet, error) {
	return s.store.FindWallet(ctx, businessID, currency)
}

// Credit increases the wallet's available balance. When a transaction id is
// supplied the operation is idempotent on (transaction, type): a replay
// returns the wallet unchanged. A credit against a transaction record that is
// already completed, failed or reversed is likewise skipped.
func (s *Service) Credit(ctx context.Context, in MutationInput) (Wallet, error) {
	if in.Amount.LessThanOrEqual(decimal.Zero) {
		return Wallet{}, ErrInvalidAmount
	}

	wallet, err := s.store.Credit(ctx, Mutation(in))
	switch {
	case errors.Is(err, ErrDuplicateEntry):
		s.logger.Warn("duplicate credit skipped",
			slog.String("wallet_id", in.WalletID.String()),
			slog.String("type", string(in.Type)),
			slog.Any("transaction_id", in.TransactionID))
		return wallet, nil
	case errors.Is(err, ErrTransactionFinalized):
		s.logger.Warn("credit against finalized transaction skipped",
			slog.String("wallet_id", in.WalletID.String()),
			slog.Any("transaction_id", in.TransactionID))
		return wallet, nil
	case err != nil:
		return Wallet{}, err
	}
	return wallet, nil
}

// Debit decreases the wallet's available balance, failing with
// ErrInsufficientBalance when it cannot be covered. The same (transaction,
// type) idempotency guard as Credit applies.
func (s *Service) Debit(ctx context.Context, in MutationInput) (Wallet, error) {
	if in.Amount.LessThanOrEqual(decimal.Zero) {
		return Wallet{}, ErrInvalidAmount
	}

	wallet, err := s.store.Debit(ctx, Mutation(in))
	switch {
	case errors.Is(err, ErrDuplicateEntry):
		s.logger.Warn("duplicate debit skipped",
			slog.String("wallet_id", in.WalletID.String()),
			slog.String("type", string(in.Type)),
			slog.Any("transaction_id", in.TransactionID))
		return wallet, nil
	case errors.Is(err, ErrTransactionFinalized):
		s.logger.Warn("debit against finalized transaction skipped",
			slog.String("wallet_id", in.WalletID.String()),
			slog.Any("transaction_id", in.TransactionID))
		return wallet, nil
	case err != nil:
		return Wallet{}, err
	}
	return wallet, nil
}

// LockBalance moves amount from available to pending without changing the
// total balance.
func (s *Service) LockBalance(ctx context.Context, walletID uuid.UUID, amount decimal.Decimal) (Wallet, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return Wallet{}, ErrInvalidAmount
	}
	return s.store.Lock(ctx, walletID, amount)
}

// UnlockBalance moves amount from pending back to available.
func (s *Service) UnlockBalance(ctx context.Context, walletID uuid.UUID, amount decimal.Decimal) (Wallet, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return Wallet{}, ErrInvalidAmount
	}
	return s.store.Unlock(ctx, walletID, amount)
}

// History returns ledger entries for the wallet, newest first.
func (s *Service) History(ctx context.Context, walletID uuid.UUID, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	return s.store.History(ctx, walletID, limit)
}
