package beneficiary

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists beneficiaries.
type Repository interface {
	Create(ctx context.Context, b Beneficiary) (Beneficiary, error)
	Get(ctx context.Context, id uuid.UUID) (Beneficiary, error)
	ListByBusiness(ctx context.Context, businessID uuid.UUID) ([]Beneficiary, error)
}

// PostgresRepository stores beneficiaries in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a beneficiary record.
func (r *PostgresRepository) Create(ctx context.Context, b Beneficiary) (Beneficiary, error) {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	b.CreatedAt = time.Now().UTC()
	_, err := r.db.Exec(ctx, `INSERT INTO beneficiaries (id, business_id, name, country, currency, destination_address, is_active, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		b.ID, b.BusinessID, b.Name, b.Country, b.Currency, b.DestinationAddress, b.IsActive, b.CreatedAt)
	if err != nil {
		return Beneficiary{}, err
	}
	return b, nil
}

// Get fetches a beneficiary by identifier.
func (r *PostgresRepository) Get(ctx context.Context, id uuid.UUID) (Beneficiary, error) {
	row := r.db.QueryRow(ctx, `SELECT id, business_id, name, country, currency, destination_address, is_active, created_at
        FROM beneficiaries WHERE id = $1`, id)
	var b Beneficiary
	err := row.Scan(&b.ID, &b.BusinessID, &b.Name, &b.Country, &b.Currency, &b.DestinationAddress, &b.IsActive, &b.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Beneficiary{}, ErrNotFound
	}
	if err != nil {
		return Beneficiary{}, err
	}
	return b, nil
}

// ListByBusiness returns all beneficiaries registered by a business.
func (r *PostgresRepository) ListByBusiness(ctx context.Context, businessID uuid.UUID) ([]Beneficiary, error) {
	rows, err := r.db.Query(ctx, `SELECT id, business_id, name, country, currency, destination_address, is_active, created_at
        FROM beneficiaries WHERE business_id = $1 ORDER BY created_at DESC`, businessID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Beneficiary
	for rows.Next() {
		var b Beneficiary
		if err := rows.Scan(&b.ID, &b.BusinessID, &b.Name, &b.Country, &b.Currency, &b.DestinationAddress, &b.IsActive, &b.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
