package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// PostgresStore persists wallets and ledger entries in PostgreSQL. All
// mutations run in a single transaction that takes a row-level exclusive lock
// on the wallet before reading its balance, serializing concurrent operations
// on the same wallet.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore constructs a Postgres-backed ledger store.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

const walletColumns = `id, business_id, currency, available_balance, pending_balance, total_balance, last_transaction_at, created_at, updated_at`

// GetOrCreateWallet returns the wallet for (business, currency), creating it
// with zero balances on first use. Concurrent creators are resolved by the
// unique constraint on (business_id, currency): first writer wins, losers
// reread.
func (s *PostgresStore) GetOrCreateWallet(ctx context.Context, businessID uuid.UUID, currency string) (Wallet, error) {
	now := time.Now().UTC()
	_, err := s.db.Exec(ctx, `INSERT INTO wallets (id, business_id, currency, available_balance, pending_balance, total_balance, created_at, updated_at)
        VALUES ($1, $2, $3, 0, 0, 0, $4, $4)
        ON CONFLICT (business_id, currency) DO NOTHING`, uuid.New(), businessID, currency, now)
	if err != nil {
		return Wallet{}, fmt.Errorf("create wallet: %w", err)
	}
	return s.FindWallet(ctx, businessID, currency)
}

// Wallet fetches a wallet by identifier.
func (s *PostgresStore) Wallet(ctx context.Context, walletID uuid.UUID) (Wallet, error) {
	row := s.db.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE id = $1`, walletID)
	return scanWallet(row)
}

// FindWallet fetches a wallet by (business, currency).
func (s *PostgresStore) FindWallet(ctx context.Context, businessID uuid.UUID, currency string) (Wallet, error) {
	row := s.db.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE business_id = $1 AND currency = $2`, businessID, currency)
	return scanWallet(row)
}

// Credit increases the available and total balance and appends a
// positive-amount entry.
func (s *PostgresStore) Credit(ctx context.Context, m Mutation) (Wallet, error) {
	return s.mutate(ctx, m, false)
}

// Debit decreases the available and total balance and appends a
// negative-amount entry. Fails with ErrInsufficientBalance when the available
// balance cannot cover the amount.
func (s *PostgresStore) Debit(ctx context.Context, m Mutation) (Wallet, error) {
	return s.mutate(ctx, m, true)
}

func (s *PostgresStore) mutate(ctx context.Context, m Mutation, debit bool) (Wallet, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Wallet{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	wallet, err := lockWallet(ctx, tx, m.WalletID)
	if err != nil {
		return Wallet{}, err
	}

	if m.TransactionID != nil {
		var exists bool
		err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM wallet_transactions WHERE transaction_id = $1 AND type = $2)`,
			*m.TransactionID, m.Type).Scan(&exists)
		if err != nil {
			return Wallet{}, err
		}
		if exists {
			return wallet, ErrDuplicateEntry
		}

		var status string
		err = tx.QueryRow(ctx, `SELECT status FROM transactions WHERE id = $1`, *m.TransactionID).Scan(&status)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			// No linked record; nothing to guard against.
		case err != nil:
			return Wallet{}, err
		case !txMutable(status):
			return wallet, ErrTransactionFinalized
		}
	}

	signed := m.Amount
	if debit {
		if wallet.Available.LessThan(m.Amount) {
			return Wallet{}, ErrInsufficientBalance
		}
		signed = m.Amount.Neg()
	}

	wallet.Available = wallet.Available.Add(signed)
	wallet.Total = wallet.Total.Add(signed)
	now := time.Now().UTC()
	wallet.LastTransactionAt = &now
	wallet.UpdatedAt = now

	if _, err := tx.Exec(ctx, `UPDATE wallets SET available_balance = $2, total_balance = $3, last_transaction_at = $4, updated_at = $4 WHERE id = $1`,
		wallet.ID, wallet.Available, wallet.Total, now); err != nil {
		return Wallet{}, err
	}

	metadata, err := marshalMetadata(m.Metadata)
	if err != nil {
		return Wallet{}, err
	}
	if _, err := tx.Exec(ctx, `INSERT INTO wallet_transactions (id, wallet_id, amount, type, description, transaction_id, balance_after, metadata, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		uuid.New(), wallet.ID, signed, m.Type, m.Description, m.TransactionID, wallet.Available, metadata, now); err != nil {
		return Wallet{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Wallet{}, err
	}
	return wallet, nil
}

// Lock moves amount from the available to the pending balance. Total is
// unchanged, so no entry is appended.
func (s *PostgresStore) Lock(ctx context.Context, walletID uuid.UUID, amount decimal.Decimal) (Wallet, error) {
	return s.move(ctx, walletID, amount, true)
}

// Unlock moves amount from the pending balance back to available.
func (s *PostgresStore) Unlock(ctx context.Context, walletID uuid.UUID, amount decimal.Decimal) (Wallet, error) {
	return s.move(ctx, walletID, amount, false)
}

func (s *PostgresStore) move(ctx context.Context, walletID uuid.UUID, amount decimal.Decimal, lock bool) (Wallet, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Wallet{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	wallet, err := lockWallet(ctx, tx, walletID)
	if err != nil {
		return Wallet{}, err
	}

	if lock {
		if wallet.Available.LessThan(amount) {
			return Wallet{}, ErrInsufficientBalance
		}
		wallet.Available = wallet.Available.Sub(amount)
		wallet.Pending = wallet.Pending.Add(amount)
	} else {
		if wallet.Pending.LessThan(amount) {
			return Wallet{}, ErrInsufficientPending
		}
		wallet.Pending = wallet.Pending.Sub(amount)
		wallet.Available = wallet.Available.Add(amount)
	}
	now := time.Now().UTC()
	wallet.UpdatedAt = now

	if _, err := tx.Exec(ctx, `UPDATE wallets SET available_balance = $2, pending_balance = $3, updated_at = $4 WHERE id = $1`,
		wallet.ID, wallet.Available, wallet.Pending, now); err != nil {
		return Wallet{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Wallet{}, err
	}
	return wallet, nil
}

// History returns ledger entries for the wallet, newest first.
func (s *PostgresStore) History(ctx context.Context, walletID uuid.UUID, limit int) ([]Entry, error) {
	rows, err := s.db.Query(ctx, `SELECT id, wallet_id, amount, type, description, transaction_id, balance_after, metadata, created_at
        FROM wallet_transactions WHERE wallet_id = $1 ORDER BY created_at DESC LIMIT $2`, walletID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var metadata []byte
		if err := rows.Scan(&e.ID, &e.WalletID, &e.Amount, &e.Type, &e.Description, &e.TransactionID, &e.BalanceAfter, &metadata, &e.CreatedAt); err != nil {
			return nil, err
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
				return nil, fmt.Errorf("decode entry metadata: %w", err)
			}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func lockWallet(ctx context.Context, tx pgx.Tx, walletID uuid.UUID) (Wallet, error) {
	row := tx.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE id = $1 FOR UPDATE`, walletID)
	return scanWallet(row)
}

func scanWallet(row pgx.Row) (Wallet, error) {
	var w Wallet
	err := row.Scan(&w.ID, &w.BusinessID, &w.Currency, &w.Available, &w.Pending, &w.Total, &w.LastTransactionAt, &w.CreatedAt, &w.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Wallet{}, ErrWalletNotFound
	}
	if err != nil {
		return Wallet{}, err
	}
	return w, nil
}

func marshalMetadata(m map[string]string) ([]byte, error) {
	if len(m) == 0 {
		return nil, nil
	}
	return json.Marshal(m)
}
