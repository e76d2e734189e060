package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"gatepass/internal/platform/sqlitepool"
	"gatepass/internal/resident/models"
	id "gatepass/pkg/domain"
	"gatepass/pkg/platform/sentinel"
)

// SQLiteSchema creates the residents table. Pass it to sqlitepool as part
// of OnConnect. Timestamps are unix nanoseconds so ordering is numeric.
const SQLiteSchema = `
CREATE TABLE IF NOT EXISTS residents (
	identity   INTEGER PRIMARY KEY,
	full_name  TEXT NOT NULL,
	flat       TEXT NOT NULL,
	phone      TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS residents_phone_idx ON residents (phone);
`

// SQLiteStore persists residents in a local SQLite database.
type SQLiteStore struct {
	pool *sqlitepool.Pool
}

func NewSQLite(pool *sqlitepool.Pool) *SQLiteStore {
	return &SQLiteStore{pool: pool}
}

// PrepareSQLite is an sqlitepool OnConnect hook creating the schema.
func PrepareSQLite(conn *sqlite.Conn) error {
	return sqlitex.ExecuteScript(conn, SQLiteSchema, nil)
}

func (s *SQLiteStore) FindByPhone(ctx context.Context, phones ...string) (*models.Resident, error) {
	if len(phones) == 0 {
		return nil, sentinel.ErrNotFound
	}
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", sentinel.ErrUnavailable, err)
	}
	defer s.pool.Put(conn)

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(phones)), ",")
	query := `SELECT identity, full_name, flat, phone, created_at, updated_at
		FROM residents WHERE phone IN (` + placeholders + `)
		ORDER BY created_at, rowid LIMIT 1`
	args := make([]any, len(phones))
	for i, p := range phones {
		args[i] = p
	}
	return s.queryOne(conn, query, args)
}

func (s *SQLiteStore) FindByID(ctx context.Context, requester id.RequesterID) (*models.Resident, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", sentinel.ErrUnavailable, err)
	}
	defer s.pool.Put(conn)
	return s.queryOne(conn, `SELECT identity, full_name, flat, phone, created_at, updated_at
		FROM residents WHERE identity = ?`, []any{int64(requester)})
}

// Save upserts by identity; created_at of an existing record is preserved.
func (s *SQLiteStore) Save(ctx context.Context, resident *models.Resident) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", sentinel.ErrUnavailable, err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn, `INSERT INTO residents
		(identity, full_name, flat, phone, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (identity) DO UPDATE SET
			full_name = excluded.full_name,
			flat = excluded.flat,
			phone = excluded.phone,
			updated_at = excluded.updated_at`, &sqlitex.ExecOptions{
		Args: []any{
			int64(resident.ID),
			resident.FullName,
			resident.Flat,
			resident.Phone,
			resident.CreatedAt.UnixNano(),
			resident.UpdatedAt.UnixNano(),
		},
	})
	if err != nil {
		return fmt.Errorf("save resident: %w", err)
	}
	return nil
}

func (s *SQLiteStore) queryOne(conn *sqlite.Conn, query string, args []any) (*models.Resident, error) {
	var found *models.Resident
	err := sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			found = &models.Resident{
				ID:        id.RequesterID(stmt.ColumnInt64(0)),
				FullName:  stmt.ColumnText(1),
				Flat:      stmt.ColumnText(2),
				Phone:     stmt.ColumnText(3),
				CreatedAt: time.Unix(0, stmt.ColumnInt64(4)).UTC(),
				UpdatedAt: time.Unix(0, stmt.ColumnInt64(5)).UTC(),
			}
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("query resident: %w", err)
	}
	if found == nil {
		return nil, sentinel.ErrNotFound
	}
	return found, nil
}
