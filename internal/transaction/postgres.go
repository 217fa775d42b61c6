package transaction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore stores transaction records in PostgreSQL.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore builds a store backed by PostgreSQL.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

const recordColumns = `id, reference, business_id, wallet_id, type, status, amount, currency, provider, provider_tx_id, retry_count, error_code, error_message, metadata, created_at, updated_at, completed_at, failed_at`

// Create inserts a new record. Reference uniqueness is enforced by the store.
func (s *PostgresStore) Create(ctx context.Context, rec Record) (Record, error) {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	if rec.Status == "" {
		rec.Status = StatusPending
	}

	metadata, err := marshalMetadata(rec.Metadata)
	if err != nil {
		return Record{}, err
	}
	_, err = s.db.Exec(ctx, `INSERT INTO transactions (id, reference, business_id, wallet_id, type, status, amount, currency, provider, provider_tx_id, retry_count, error_code, error_message, metadata, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $15)`,
		rec.ID, rec.Reference, rec.BusinessID, rec.WalletID, rec.Type, rec.Status, rec.Amount, rec.Currency,
		rec.Provider, rec.ProviderTxID, rec.RetryCount, rec.ErrorCode, rec.ErrorMessage, metadata, now)
	if err != nil {
		return Record{}, fmt.Errorf("create transaction: %w", err)
	}
	return rec, nil
}

// Get fetches a record by identifier.
func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (Record, error) {
	row := s.db.QueryRow(ctx, `SELECT `+recordColumns+` FROM transactions WHERE id = $1`, id)
	return scanRecord(row)
}

// GetByReference fetches a record by its unique reference string.
func (s *PostgresStore) GetByReference(ctx context.Context, reference string) (Record, error) {
	row := s.db.QueryRow(ctx, `SELECT `+recordColumns+` FROM transactions WHERE reference = $1`, reference)
	return scanRecord(row)
}

// GetByProviderTxID fetches a record by the provider-side transaction id.
func (s *PostgresStore) GetByProviderTxID(ctx context.Context, providerTxID string) (Record, error) {
	row := s.db.QueryRow(ctx, `SELECT `+recordColumns+` FROM transactions WHERE provider_tx_id = $1`, providerTxID)
	return scanRecord(row)
}

// SetProviderRef stamps the provider linkage without a status change.
func (s *PostgresStore) SetProviderRef(ctx context.Context, id uuid.UUID, provider, providerTxID string) (Record, error) {
	tag, err := s.db.Exec(ctx, `UPDATE transactions SET provider = $2, provider_tx_id = $3, updated_at = $4
        WHERE id = $1`,
		id, provider, providerTxID, time.Now().UTC())
	if err != nil {
		return Record{}, err
	}
	if tag.RowsAffected() == 0 {
		return Record{}, ErrNotFound
	}
	return s.Get(ctx, id)
}

// SetProcessing moves a pending record to processing with the provider linkage.
func (s *PostgresStore) SetProcessing(ctx context.Context, id uuid.UUID, provider, providerTxID string) (Record, error) {
	tag, err := s.db.Exec(ctx, `UPDATE transactions SET status = $2, provider = $3, provider_tx_id = $4, updated_at = $5
        WHERE id = $1 AND status = $6`,
		id, StatusProcessing, provider, providerTxID, time.Now().UTC(), StatusPending)
	if err != nil {
		return Record{}, err
	}
	return s.afterTransition(ctx, id, tag.RowsAffected())
}

// Complete finalizes a pending or processing record with a completion timestamp.
func (s *PostgresStore) Complete(ctx context.Context, id uuid.UUID) (Record, error) {
	now := time.Now().UTC()
	tag, err := s.db.Exec(ctx, `UPDATE transactions SET status = $2, completed_at = $3, updated_at = $3
        WHERE id = $1 AND status IN ($4, $5)`,
		id, StatusCompleted, now, StatusPending, StatusProcessing)
	if err != nil {
		return Record{}, err
	}
	return s.afterTransition(ctx, id, tag.RowsAffected())
}

// Fail finalizes a pending or processing record with the error details.
func (s *PostgresStore) Fail(ctx context.Context, id uuid.UUID, errorCode, errorMessage string) (Record, error) {
	now := time.Now().UTC()
	tag, err := s.db.Exec(ctx, `UPDATE transactions SET status = $2, error_code = $3, error_message = $4, failed_at = $5, updated_at = $5
        WHERE id = $1 AND status IN ($6, $7)`,
		id, StatusFailed, errorCode, errorMessage, now, StatusPending, StatusProcessing)
	if err != nil {
		return Record{}, err
	}
	return s.afterTransition(ctx, id, tag.RowsAffected())
}

// IncrementRetry bumps the reconciliation retry counter.
func (s *PostgresStore) IncrementRetry(ctx context.Context, id uuid.UUID) (int, error) {
	var count int
	err := s.db.QueryRow(ctx, `UPDATE transactions SET retry_count = retry_count + 1, updated_at = $2
        WHERE id = $1 RETURNING retry_count`, id, time.Now().UTC()).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	return count, err
}

// ListPending returns pending records of the given type within the age window
// and under the retry cap, oldest first.
func (s *PostgresStore) ListPending(ctx context.Context, typ Type, createdAfter, createdBefore time.Time, maxRetries int) ([]Record, error) {
	query := `SELECT ` + recordColumns + ` FROM transactions WHERE type = $1 AND status = $2`
	args := []any{typ, StatusPending}
	if !createdAfter.IsZero() {
		args = append(args, createdAfter)
		query += fmt.Sprintf(" AND created_at > $%d", len(args))
	}
	if !createdBefore.IsZero() {
		args = append(args, createdBefore)
		query += fmt.Sprintf(" AND created_at < $%d", len(args))
	}
	if maxRetries > 0 {
		args = append(args, maxRetries)
		query += fmt.Sprintf(" AND retry_count < $%d", len(args))
	}
	query += " ORDER BY created_at ASC"

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows)
}

// ListByBusiness returns the most recent records for a business.
func (s *PostgresStore) ListByBusiness(ctx context.Context, businessID uuid.UUID, limit int) ([]Record, error) {
	rows, err := s.db.Query(ctx, `SELECT `+recordColumns+` FROM transactions
        WHERE business_id = $1 ORDER BY created_at DESC LIMIT $2`, businessID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows)
}

func (s *PostgresStore) afterTransition(ctx context.Context, id uuid.UUID, affected int64) (Record, error) {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return Record{}, err
	}
	if affected == 0 {
		return Record{}, fmt.Errorf("%w: %s is %s", ErrInvalidTransition, id, rec.Status)
	}
	return rec, nil
}

func scanRecord(row pgx.Row) (Record, error) {
	var rec Record
	var metadata []byte
	err := row.Scan(&rec.ID, &rec.Reference, &rec.BusinessID, &rec.WalletID, &rec.Type, &rec.Status,
		&rec.Amount, &rec.Currency, &rec.Provider, &rec.ProviderTxID, &rec.RetryCount,
		&rec.ErrorCode, &rec.ErrorMessage, &metadata, &rec.CreatedAt, &rec.UpdatedAt, &rec.CompletedAt, &rec.FailedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, err
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &rec.Metadata); err != nil {
			return Record{}, fmt.Errorf("decode transaction metadata: %w", err)
		}
	}
	return rec, nil
}

func scanRecords(rows pgx.Rows) ([]Record, error) {
	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func marshalMetadata(m map[string]string) ([]byte, error) {
	if len(m) == 0 {
		return nil, nil
	}
	return json.Marshal(m)
}
