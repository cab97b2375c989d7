package postgres

import (
	"context"
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/meikuraledutech/chatbridge"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const createMigrationsTableSQL = `
CREATE TABLE IF NOT EXISTS chatbridge_migrations (
	id         SERIAL PRIMARY KEY,
	name       TEXT NOT NULL UNIQUE,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	checksum   TEXT NOT NULL
);`

// ErrNoMigrations is returned by Rollback when nothing has been applied.
var ErrNoMigrations = errors.New("chatbridge: no applied migrations")

type migration struct {
	name     string
	up       string
	down     string
	checksum string
}

type appliedMigration struct {
	id        int
	appliedAt time.Time
	checksum  string
}

// parseMigrations pairs NAME.up.sql with NAME.down.sql under dir and sorts
// the result by name. A migration without an up file is an error.
func parseMigrations(fsys fs.FS, dir string) ([]migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}

	byName := make(map[string]*migration)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		file := entry.Name()
		var name, direction string
		switch {
		case strings.HasSuffix(file, ".up.sql"):
			name, direction = strings.TrimSuffix(file, ".up.sql"), "up"
		case strings.HasSuffix(file, ".down.sql"):
			name, direction = strings.TrimSuffix(file, ".down.sql"), "down"
		default:
			continue
		}

		data, err := fs.ReadFile(fsys, path.Join(dir, file))
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", file, err)
		}
		m, ok := byName[name]
		if !ok {
			m = &migration{name: name}
			byName[name] = m
		}
		if direction == "up" {
			m.up = string(data)
			sum := sha256.Sum256(data)
			m.checksum = hex.EncodeToString(sum[:])
		} else {
			m.down = string(data)
		}
	}

	out := make([]migration, 0, len(byName))
	for _, m := range byName {
		if m.up == "" {
			return nil, fmt.Errorf("migration %s has no up file", m.name)
		}
		out = append(out, *m)
	}
	slices.SortFunc(out, func(a, b migration) int { return strings.Compare(a.name, b.name) })
	return out, nil
}

func loadMigrations() ([]migration, error) {
	return parseMigrations(migrationsFS, "migrations")
}

func (s *PGStore) appliedMigrations(ctx context.Context) (map[string]appliedMigration, error) {
	if _, err := s.db.Exec(ctx, createMigrationsTableSQL); err != nil {
		return nil, fmt.Errorf("chatbridge: ensure migrations table: %w", err)
	}

	rows, err := s.db.Query(ctx, `SELECT id, name, applied_at, checksum FROM chatbridge_migrations ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("chatbridge: get applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]appliedMigration)
	for rows.Next() {
		var (
			name string
			rec  appliedMigration
		)
		if err := rows.Scan(&rec.id, &name, &rec.appliedAt, &rec.checksum); err != nil {
			return nil, fmt.Errorf("chatbridge: scan migration: %w", err)
		}
		applied[name] = rec
	}
	return applied, rows.Err()
}

// inTx runs fn in a transaction, rolling back on any error.
func (s *PGStore) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

// Migrate applies all pending migrations in order, each in its own
// transaction. An applied migration whose file changed is an error.
func (s *PGStore) Migrate(ctx context.Context) error {
	migrations, err := loadMigrations()
	if err != nil {
		return fmt.Errorf("chatbridge: load migrations: %w", err)
	}
	applied, err := s.appliedMigrations(ctx)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if rec, ok := applied[m.name]; ok {
			if rec.checksum != m.checksum {
				return fmt.Errorf("chatbridge: migration %s checksum mismatch (recorded %s, file %s)", m.name, rec.checksum, m.checksum)
			}
			continue
		}

		err := s.inTx(ctx, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, m.up); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, `INSERT INTO chatbridge_migrations (name, checksum) VALUES ($1, $2)`, m.name, m.checksum)
			return err
		})
		if err != nil {
			return fmt.Errorf("chatbridge: apply migration %s: %w", m.name, err)
		}
	}
	return nil
}

// Rollback reverts the most recently applied migration and returns its name.
func (s *PGStore) Rollback(ctx context.Context) (string, error) {
	applied, err := s.appliedMigrations(ctx)
	if err != nil {
		return "", err
	}
	var (
		lastName string
		last     appliedMigration
	)
	for name, rec := range applied {
		if rec.id > last.id {
			lastName, last = name, rec
		}
	}
	if lastName == "" {
		return "", ErrNoMigrations
	}

	migrations, err := loadMigrations()
	if err != nil {
		return "", fmt.Errorf("chatbridge: load migrations: %w", err)
	}
	idx := slices.IndexFunc(migrations, func(m migration) bool { return m.name == lastName })
	if idx < 0 || migrations[idx].down == "" {
		return "", fmt.Errorf("chatbridge: no down migration for %s", lastName)
	}

	err = s.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, migrations[idx].down); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `DELETE FROM chatbridge_migrations WHERE id = $1`, last.id)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("chatbridge: roll back %s: %w", lastName, err)
	}
	return lastName, nil
}

// MigrationStatus returns all migrations with their applied status.
func (s *PGStore) MigrationStatus(ctx context.Context) ([]chatbridge.MigrationRecord, error) {
	migrations, err := loadMigrations()
	if err != nil {
		return nil, fmt.Errorf("chatbridge: load migrations: %w", err)
	}
	applied, err := s.appliedMigrations(ctx)
	if err != nil {
		return nil, err
	}
	return migrationStatus(migrations, applied), nil
}

func migrationStatus(migrations []migration, applied map[string]appliedMigration) []chatbridge.MigrationRecord {
	records := make([]chatbridge.MigrationRecord, 0, len(migrations))
	for _, m := range migrations {
		rec := chatbridge.MigrationRecord{Name: m.name, Checksum: m.checksum}
		if a, ok := applied[m.name]; ok {
			at := a.appliedAt
			rec.Applied = true
			rec.AppliedAt = &at
			rec.Checksum = a.checksum
		}
		records = append(records, rec)
	}
	return records
}
