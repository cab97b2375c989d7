// Package postgres stores the model request log in PostgreSQL.
package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meikuraledutech/chatbridge"
)

// DB is the subset of *pgxpool.Pool used by PGStore.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PGStore implements chatbridge.RequestLogger on PostgreSQL.
type PGStore struct {
	db DB
}

// New creates a PGStore on an existing pool or connection.
func New(db DB) *PGStore {
	return &PGStore{db: db}
}

// Connect opens a pool for databaseURL and verifies it with a ping.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// Ensure PGStore implements chatbridge.RequestLogger at compile time.
var _ chatbridge.RequestLogger = (*PGStore)(nil)

// Ensure *pgxpool.Pool satisfies DB at compile time.
var _ DB = (*pgxpool.Pool)(nil)

// CreateSchema brings the database up to the latest migration.
func (s *PGStore) CreateSchema(ctx context.Context) error {
	return s.Migrate(ctx)
}

// DropSchema removes every table the store owns, including the migration
// history. Used by tests to start from scratch.
func (s *PGStore) DropSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `
		DROP TABLE IF EXISTS chatbridge_request_logs CASCADE;
		DROP TABLE IF EXISTS chatbridge_migrations CASCADE;
	`)
	return err
}
