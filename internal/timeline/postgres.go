package timeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore stores timeline entries in PostgreSQL.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore builds a store backed by PostgreSQL.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// Append inserts one entry. The table is insert-only; there is no update path.
func (s *PostgresStore) Append(ctx context.Context, e Entry) (Entry, error) {
	e.ID = uuid.New()
	e.CreatedAt = time.Now().UTC()

	var metadata []byte
	if len(e.Metadata) > 0 {
		var err error
		metadata, err = json.Marshal(e.Metadata)
		if err != nil {
			return Entry{}, fmt.Errorf("encode timeline metadata: %w", err)
		}
	}

	_, err := s.db.Exec(ctx, `INSERT INTO timeline (id, transaction_id, step, status, message, metadata, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.ID, e.TransactionID, e.Step, e.Status, e.Message, metadata, e.CreatedAt)
	if err != nil {
		return Entry{}, fmt.Errorf("append timeline entry: %w", err)
	}
	return e, nil
}

// List returns entries for a transaction in creation order.
func (s *PostgresStore) List(ctx context.Context, transactionID uuid.UUID) ([]Entry, error) {
	rows, err := s.db.Query(ctx, `SELECT id, transaction_id, step, status, message, metadata, created_at
        FROM timeline WHERE transaction_id = $1 ORDER BY created_at ASC`, transactionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var metadata []byte
		if err := rows.Scan(&e.ID, &e.TransactionID, &e.Step, &e.Status, &e.Message, &metadata, &e.CreatedAt); err != nil {
			return nil, err
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
				return nil, fmt.Errorf("decode timeline metadata: %w", err)
			}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
