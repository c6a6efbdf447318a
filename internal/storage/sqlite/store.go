// Package sqlite provides the SQLite-backed artifact store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/lanshare/lanshare/internal/artifact"
)

const schema = `
CREATE TABLE IF NOT EXISTS artifacts (
  identifier   TEXT NOT NULL,
  display_name TEXT NOT NULL,
  stored_name  TEXT NOT NULL,
  storage_path TEXT NOT NULL,
  size_bytes   INTEGER NOT NULL,
  created_at   INTEGER NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS artifacts_identifier ON artifacts (identifier);
`

// Store persists artifact records in SQLite. The unique index on identifier
// is the authoritative write-once guard: concurrent inserts of the same
// identifier fail with ErrDuplicateIdentifier rather than creating a second
// record.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens (creating if necessary) a SQLite artifact store at path and
// applies the schema.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// GetByIdentifier returns the record for identifier, or artifact.ErrNotFound.
func (s *Store) GetByIdentifier(ctx context.Context, identifier string) (artifact.Artifact, error) {
	if err := ctx.Err(); err != nil {
		return artifact.Artifact{}, err
	}
	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT identifier, display_name, stored_name, storage_path, size_bytes, created_at
		   FROM artifacts
		  WHERE identifier = ?`,
		identifier,
	)

	var a artifact.Artifact
	var createdAt int64
	err := row.Scan(&a.Identifier, &a.DisplayName, &a.StoredName, &a.StoragePath, &a.SizeBytes, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return artifact.Artifact{}, artifact.ErrNotFound
	}
	if err != nil {
		return artifact.Artifact{}, fmt.Errorf("get artifact %s: %w", identifier, err)
	}
	a.CreatedAt = fromMillis(createdAt)
	return a, nil
}

// Insert persists one artifact record. A second insert for the same
// identifier returns artifact.ErrDuplicateIdentifier.
func (s *Store) Insert(ctx context.Context, a artifact.Artifact) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if a.Identifier == "" {
		return artifact.ErrEmptyIdentifier
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO artifacts (
		   identifier,
		   display_name,
		   stored_name,
		   storage_path,
		   size_bytes,
		   created_at
		 ) VALUES (?, ?, ?, ?, ?, ?)`,
		a.Identifier,
		a.DisplayName,
		a.StoredName,
		a.StoragePath,
		a.SizeBytes,
		toMillis(a.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return artifact.ErrDuplicateIdentifier
		}
		return fmt.Errorf("insert artifact %s: %w", a.Identifier, err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var serr *msqlite.Error
	if !errors.As(err, &serr) {
		return false
	}
	switch serr.Code() {
	case sqlite3lib.SQLITE_CONSTRAINT_UNIQUE, sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	}
	return false
}
