// Package db provides the SQLite-backed local note store.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	apperrors "github.com/abhishek150-rt/offline-notes-app/internal/errors"
	_ "modernc.org/sqlite"
)

// FileName is the database file created inside the data directory.
const FileName = "notes.db"

// DB wraps the sql.DB with the engine's connection settings.
type DB struct {
	*sql.DB
	path string
}

// Open opens (creating if needed) the notes database inside dataDir and
// applies all pending schema migrations.
func Open(dataDir string) (*DB, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return OpenFile(filepath.Join(dataDir, FileName))
}

// OpenFile opens the database at path and migrates it.
// The database is opened with:
// - WAL mode for concurrent reads during writes
// - a single connection, since SQLite allows one writer
// - a busy timeout so a second process waits instead of failing
func OpenFile(path string) (*DB, error) {
	// modernc.org/sqlite is pure Go, no CGO
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA synchronous=NORMAL;",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	if err := Migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	return &DB{DB: db, path: path}, nil
}

// Migrate applies the embedded schema migrations to db.
func Migrate(db *sql.DB) error {
	migrator := NewMigrator(db, Migrations())
	if err := migrator.Initialize(); err != nil {
		return apperrors.Wrap(apperrors.ErrMigration, "initialize migrations", err)
	}
	if err := migrator.Up(); err != nil {
		return apperrors.Wrap(apperrors.ErrMigration, "migrate database", err)
	}
	return nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.DB.Close()
}
