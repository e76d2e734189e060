package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"gatepass/internal/resident/models"
	id "gatepass/pkg/domain"
	"gatepass/pkg/platform/sentinel"
)

// PostgresSchema creates the residents table; applied with postgres.Migrate.
const PostgresSchema = `
CREATE TABLE IF NOT EXISTS residents (
	identity   BIGINT PRIMARY KEY,
	full_name  TEXT NOT NULL,
	flat       TEXT NOT NULL,
	phone      TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS residents_phone_idx ON residents (phone);
`

// PostgresStore persists residents in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed resident store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) FindByPhone(ctx context.Context, phones ...string) (*models.Resident, error) {
	if len(phones) == 0 {
		return nil, sentinel.ErrNotFound
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT identity, full_name, flat, phone, created_at, updated_at
		FROM residents
		WHERE phone = ANY($1)
		ORDER BY created_at, identity
		LIMIT 1`, phones)
	return scanResident(row)
}

func (s *PostgresStore) FindByID(ctx context.Context, requester id.RequesterID) (*models.Resident, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT identity, full_name, flat, phone, created_at, updated_at
		FROM residents
		WHERE identity = $1`, int64(requester))
	return scanResident(row)
}

func (s *PostgresStore) Save(ctx context.Context, resident *models.Resident) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO residents (identity, full_name, flat, phone, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (identity) DO UPDATE SET
			full_name = EXCLUDED.full_name,
			flat = EXCLUDED.flat,
			phone = EXCLUDED.phone,
			updated_at = EXCLUDED.updated_at`,
		int64(resident.ID),
		resident.FullName,
		resident.Flat,
		resident.Phone,
		resident.CreatedAt,
		resident.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save resident: %w", err)
	}
	return nil
}

func scanResident(row *sql.Row) (*models.Resident, error) {
	var (
		r        models.Resident
		identity int64
	)
	err := row.Scan(&identity, &r.FullName, &r.Flat, &r.Phone, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find resident: %w", err)
	}
	r.ID = id.RequesterID(identity)
	return &r, nil
}
