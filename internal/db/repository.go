// Package db provides CRUD repository operations for notes.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	apperrors "github.com/abhishek150-rt/offline-notes-app/internal/errors"
	"github.com/abhishek150-rt/offline-notes-app/internal/logging"
	"github.com/abhishek150-rt/offline-notes-app/internal/models"
)

const noteColumns = `id, title, body, updated_at, synced, sync_status`

// unsyncedIndexedQuery reads the backlog through the synced and sync_status
// indexes. INDEXED BY fails when an index is missing, which sends the caller
// down the full-scan path.
const unsyncedIndexedQuery = `
	SELECT ` + noteColumns + ` FROM notes INDEXED BY idx_notes_synced WHERE synced = 0
	UNION
	SELECT ` + noteColumns + ` FROM notes INDEXED BY idx_notes_sync_status
		WHERE sync_status IN ('unsynced', 'error')
	ORDER BY updated_at DESC`

// NoteRepository is the SQLite implementation of NoteStore.
type NoteRepository struct {
	db     *sql.DB
	now    func() time.Time
	logger *logging.Logger

	// Prepared statements are created on first use and reused.
	stmtCache sync.Map // map[string]*sql.Stmt
}

// NewNoteRepository creates a new NoteRepository.
func NewNoteRepository(db *sql.DB) *NoteRepository {
	return &NoteRepository{
		db:     db,
		now:    time.Now,
		logger: logging.Get().With(map[string]interface{}{"component": "store"}),
	}
}

// SetLogger replaces the repository logger.
func (r *NoteRepository) SetLogger(logger *logging.Logger) {
	if logger != nil {
		r.logger = logger
	}
}

// PrepareStmt gets or creates a prepared statement from cache.
func (r *NoteRepository) PrepareStmt(ctx context.Context, query string) (*sql.Stmt, error) {
	if stmt, ok := r.stmtCache.Load(query); ok {
		return stmt.(*sql.Stmt), nil
	}

	stmt, err := r.db.PrepareContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare statement: %w", err)
	}

	actual, loaded := r.stmtCache.LoadOrStore(query, stmt)
	if loaded {
		// Another goroutine already prepared this, close our duplicate
		stmt.Close()
		return actual.(*sql.Stmt), nil
	}
	return stmt, nil
}

// forgetStmt drops a cached statement, e.g. after the schema changed.
func (r *NoteRepository) forgetStmt(query string) {
	if stmt, ok := r.stmtCache.LoadAndDelete(query); ok {
		stmt.(*sql.Stmt).Close()
	}
}

// Close closes all cached prepared statements.
func (r *NoteRepository) Close() error {
	var firstErr error
	r.stmtCache.Range(func(key, value interface{}) bool {
		if err := value.(*sql.Stmt).Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		r.stmtCache.Delete(key)
		return true
	})
	return firstErr
}

// =====================================================
// Note Operations
// =====================================================

// Put upserts a note. Missing sync fields and timestamps are defaulted, so
// retrying the same Put is harmless.
func (r *NoteRepository) Put(ctx context.Context, note *models.Note) (*models.Note, error) {
	if err := note.Validate(); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalid, "invalid note", err)
	}
	stored := models.Normalize(note, r.now())

	query := `
	INSERT INTO notes (` + noteColumns + `)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		title = excluded.title,
		body = excluded.body,
		updated_at = excluded.updated_at,
		synced = excluded.synced,
		sync_status = excluded.sync_status
	`
	stmt, err := r.PrepareStmt(ctx, query)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStore, "put note", err)
	}
	_, err = stmt.ExecContext(ctx, stored.ID, stored.Title, stored.Body,
		models.FormatTime(stored.UpdatedAt), stored.Synced, string(stored.SyncStatus))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStore, fmt.Sprintf("put note %s", stored.ID), err)
	}
	return stored, nil
}

// Get retrieves a note by id.
func (r *NoteRepository) Get(ctx context.Context, id string) (*models.Note, error) {
	stmt, err := r.PrepareStmt(ctx, `SELECT `+noteColumns+` FROM notes WHERE id = ?`)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStore, "get note", err)
	}

	note, err := r.scanNote(stmt.QueryRowContext(ctx, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.Newf(apperrors.ErrNotFound, "note %s not found", id)
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStore, fmt.Sprintf("get note %s", id), err)
	}
	return note, nil
}

// GetAll returns every note, most recently updated first.
func (r *NoteRepository) GetAll(ctx context.Context) ([]*models.Note, error) {
	notes, err := r.query(ctx, `SELECT `+noteColumns+` FROM notes ORDER BY updated_at DESC`)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStore, "list notes", err)
	}
	return notes, nil
}

// GetUnsynced returns notes that are not confirmed synced. The indexed
// query is tried first; any failure there falls back to a full scan so a
// stale or missing index never hides the backlog.
func (r *NoteRepository) GetUnsynced(ctx context.Context) ([]*models.Note, error) {
	notes, err := r.query(ctx, unsyncedIndexedQuery)
	if err == nil {
		return notes, nil
	}
	r.forgetStmt(unsyncedIndexedQuery)
	r.logger.Warn("Indexed unsynced query failed, falling back to full scan",
		map[string]interface{}{"error": err.Error()})

	all, err := r.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	unsynced := make([]*models.Note, 0, len(all))
	for _, note := range all {
		if !note.Synced || note.NeedsSync() {
			unsynced = append(unsynced, note)
		}
	}
	return unsynced, nil
}

// Delete removes a note by id.
func (r *NoteRepository) Delete(ctx context.Context, id string) error {
	stmt, err := r.PrepareStmt(ctx, `DELETE FROM notes WHERE id = ?`)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStore, "delete note", err)
	}
	if _, err := stmt.ExecContext(ctx, id); err != nil {
		return apperrors.Wrap(apperrors.ErrStore, fmt.Sprintf("delete note %s", id), err)
	}
	return nil
}

// Clear removes every note.
func (r *NoteRepository) Clear(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM notes`); err != nil {
		return apperrors.Wrap(apperrors.ErrStore, "clear notes", err)
	}
	return nil
}

// Count returns the number of stored notes.
func (r *NoteRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notes`).Scan(&n); err != nil {
		return 0, apperrors.Wrap(apperrors.ErrStore, "count notes", err)
	}
	return n, nil
}

// =====================================================
// Scanning
// =====================================================

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *NoteRepository) query(ctx context.Context, query string) ([]*models.Note, error) {
	stmt, err := r.PrepareStmt(ctx, query)
	if err != nil {
		return nil, err
	}
	rows, err := stmt.QueryContext(ctx)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notes []*models.Note
	for rows.Next() {
		note, err := r.scanNote(rows)
		if err != nil {
			return nil, err
		}
		notes = append(notes, note)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return notes, nil
}

// scanNote reads one row and normalizes it, so rows written by older
// versions (or by hand) come back with consistent sync fields.
func (r *NoteRepository) scanNote(row rowScanner) (*models.Note, error) {
	var (
		note       models.Note
		updatedAt  sql.NullString
		synced     sql.NullBool
		syncStatus sql.NullString
	)
	if err := row.Scan(&note.ID, &note.Title, &note.Body, &updatedAt, &synced, &syncStatus); err != nil {
		return nil, err
	}
	if updatedAt.Valid && updatedAt.String != "" {
		t, err := models.ParseTime(updatedAt.String)
		if err != nil {
			return nil, err
		}
		note.UpdatedAt = t
	}
	note.Synced = synced.Valid && synced.Bool
	if syncStatus.Valid {
		note.SyncStatus = models.SyncStatus(syncStatus.String)
	}
	return models.Normalize(&note, r.now()), nil
}
