package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq"

	apperrors "github.com/abhishek150-rt/offline-notes-app/internal/errors"
	"github.com/abhishek150-rt/offline-notes-app/internal/models"
)

const (
	postgresNotesTableName   = "notes"
	postgresOperationTimeout = 5 * time.Second
)

type sqlOpenFunc func(driverName, dsn string) (*sql.DB, error)

// PostgresBackend keeps the server copy in PostgreSQL. The connection and
// table are set up lazily on first use.
type PostgresBackend struct {
	dsn       string
	tableName string
	openDB    sqlOpenFunc

	initOnce sync.Once
	initErr  error
	db       *sql.DB
}

var _ Backend = (*PostgresBackend)(nil)

// NewPostgresBackend creates a backend for dsn.
func NewPostgresBackend(dsn string) (*PostgresBackend, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, apperrors.New(apperrors.ErrConfig, "postgres dsn is required")
	}
	return &PostgresBackend{
		dsn:       dsn,
		tableName: postgresNotesTableName,
		openDB:    sql.Open,
	}, nil
}

func (b *PostgresBackend) ensureReady() error {
	b.initOnce.Do(func() {
		db, err := b.openDB("postgres", b.dsn)
		if err != nil {
			b.initErr = apperrors.Wrap(apperrors.ErrStore, "open postgres", err)
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), postgresOperationTimeout)
		defer cancel()

		query := fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id TEXT PRIMARY KEY CHECK (length(id) > 0),
				title TEXT NOT NULL DEFAULT '',
				body TEXT NOT NULL DEFAULT '',
				updated_at TIMESTAMPTZ NOT NULL
			)`, postgresQuoteIdentifier(b.tableName))
		if _, err := db.ExecContext(ctx, query); err != nil {
			_ = db.Close()
			b.initErr = apperrors.Wrap(apperrors.ErrMigration, "create notes table", err)
			return
		}
		b.db = db
	})
	return b.initErr
}

func (b *PostgresBackend) table() string {
	return postgresQuoteIdentifier(b.tableName)
}

func (b *PostgresBackend) List(ctx context.Context) ([]*models.Note, error) {
	if err := b.ensureReady(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, postgresOperationTimeout)
	defer cancel()

	rows, err := b.db.QueryContext(ctx,
		fmt.Sprintf("SELECT id, title, body, updated_at FROM %s ORDER BY updated_at DESC, id", b.table()))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStore, "list notes", err)
	}
	defer rows.Close()

	var notes []*models.Note
	for rows.Next() {
		var n models.Note
		if err := rows.Scan(&n.ID, &n.Title, &n.Body, &n.UpdatedAt); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrStore, "scan note", err)
		}
		notes = append(notes, serverCopy(&n))
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStore, "list notes", err)
	}
	return notes, nil
}

func (b *PostgresBackend) Get(ctx context.Context, id string) (*models.Note, error) {
	if err := b.ensureReady(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, postgresOperationTimeout)
	defer cancel()

	var n models.Note
	err := b.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT id, title, body, updated_at FROM %s WHERE id = $1", b.table()), id).
		Scan(&n.ID, &n.Title, &n.Body, &n.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.Newf(apperrors.ErrNotFound, "note %s not found", id)
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStore, fmt.Sprintf("get note %s", id), err)
	}
	return serverCopy(&n), nil
}

// Upsert writes note unless the stored row is strictly newer; either way
// the surviving row is returned.
func (b *PostgresBackend) Upsert(ctx context.Context, note *models.Note) (*models.Note, error) {
	if err := b.ensureReady(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, postgresOperationTimeout)
	defer cancel()

	query := fmt.Sprintf(`
		INSERT INTO %[1]s (id, title, body, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			body = EXCLUDED.body,
			updated_at = EXCLUDED.updated_at
		WHERE %[1]s.updated_at <= EXCLUDED.updated_at
		RETURNING id, title, body, updated_at`, b.table())

	var n models.Note
	err := b.db.QueryRowContext(ctx, query, note.ID, note.Title, note.Body, note.UpdatedAt.UTC()).
		Scan(&n.ID, &n.Title, &n.Body, &n.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		// The stored revision is newer and was kept.
		return b.Get(ctx, note.ID)
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStore, fmt.Sprintf("upsert note %s", note.ID), err)
	}
	return serverCopy(&n), nil
}

func (b *PostgresBackend) Delete(ctx context.Context, id string) (bool, error) {
	if err := b.ensureReady(); err != nil {
		return false, err
	}
	ctx, cancel := context.WithTimeout(ctx, postgresOperationTimeout)
	defer cancel()

	res, err := b.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = $1", b.table()), id)
	if err != nil {
		return false, apperrors.Wrap(apperrors.ErrStore, fmt.Sprintf("delete note %s", id), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, apperrors.Wrap(apperrors.ErrStore, "rows affected", err)
	}
	return n > 0, nil
}

func (b *PostgresBackend) Ping(ctx context.Context) error {
	if err := b.ensureReady(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, postgresOperationTimeout)
	defer cancel()
	return b.db.PingContext(ctx)
}

func (b *PostgresBackend) Close() error {
	if b.db == nil {
		return nil
	}
	return b.db.Close()
}

func postgresQuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
