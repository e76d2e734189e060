package store

import (
	"context"
	"database/sql"
	"fmt"

	"gatepass/internal/ledger/models"
	id "gatepass/pkg/domain"
	"gatepass/pkg/platform/sentinel"
)

// PostgresSchema creates the pass_requests table; applied with postgres.Migrate.
const PostgresSchema = `
CREATE TABLE IF NOT EXISTS pass_requests (
	id           BIGINT PRIMARY KEY,
	pass_type    TEXT NOT NULL,
	requester_id BIGINT NOT NULL,
	name         TEXT NOT NULL,
	flat         TEXT NOT NULL,
	phone        TEXT NOT NULL,
	handle       TEXT NOT NULL,
	plate        TEXT NOT NULL DEFAULT '',
	guest_name   TEXT NOT NULL DEFAULT '',
	schedule     TEXT NOT NULL,
	status       TEXT NOT NULL,
	duration     SMALLINT NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL,
	accepted_at  TIMESTAMPTZ
);
`

// Postgres persists requests in PostgreSQL and supports durable status
// updates.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) Append(ctx context.Context, req *models.Request) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pass_requests (
			id, pass_type, requester_id, name, flat, phone, handle,
			plate, guest_name, schedule, status, duration, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO NOTHING`,
		int64(req.ID),
		req.PassType.String(),
		int64(req.Requester.ID),
		req.Requester.Name,
		req.Requester.Flat,
		req.Requester.Phone,
		req.Requester.Handle,
		req.Plate,
		req.GuestName,
		req.Schedule.Descriptor(),
		req.Status.String(),
		int(req.Duration),
		req.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("%w: insert pass request: %v", sentinel.ErrUnavailable, err)
	}
	return nil
}

func (s *Postgres) LastID(ctx context.Context) (id.RequestID, error) {
	var last int64
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(id), 0) FROM pass_requests`).Scan(&last); err != nil {
		return 0, fmt.Errorf("%w: query last request id: %v", sentinel.ErrUnavailable, err)
	}
	return id.RequestID(last), nil
}

// MarkAccepted flips a pending row to accepted. A row that is missing or
// already accepted yields sentinel.ErrInvalidState.
func (s *Postgres) MarkAccepted(ctx context.Context, requestID id.RequestID) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE pass_requests
		SET status = $2, accepted_at = NOW()
		WHERE id = $1 AND status = $3`,
		int64(requestID), models.StatusAccepted.String(), models.StatusPending.String())
	if err != nil {
		return fmt.Errorf("%w: update pass request: %v", sentinel.ErrUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: update pass request: %v", sentinel.ErrUnavailable, err)
	}
	if n == 0 {
		return sentinel.ErrInvalidState
	}
	return nil
}
