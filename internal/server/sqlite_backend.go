package server

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/abhishek150-rt/offline-notes-app/internal/db"
	apperrors "github.com/abhishek150-rt/offline-notes-app/internal/errors"
	"github.com/abhishek150-rt/offline-notes-app/internal/models"
)

// ServerDBFile is the database file the SQLite backend creates.
const ServerDBFile = "server.db"

// SQLiteBackend keeps the server copy in the same schema as the client
// store.
type SQLiteBackend struct {
	conn *db.DB
	repo *db.NoteRepository

	// mu makes the compare-and-store in Upsert atomic.
	mu sync.Mutex
}

var _ Backend = (*SQLiteBackend)(nil)

// NewSQLiteBackend opens (creating if needed) dataDir/server.db.
func NewSQLiteBackend(dataDir string) (*SQLiteBackend, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStore, "create server data directory", err)
	}
	conn, err := db.OpenFile(filepath.Join(dataDir, ServerDBFile))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStore, "open server database", err)
	}
	return &SQLiteBackend{conn: conn, repo: db.NewNoteRepository(conn.DB)}, nil
}

func (b *SQLiteBackend) List(ctx context.Context) ([]*models.Note, error) {
	notes, err := b.repo.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*models.Note, len(notes))
	for i, n := range notes {
		out[i] = serverCopy(n)
	}
	return out, nil
}

func (b *SQLiteBackend) Get(ctx context.Context, id string) (*models.Note, error) {
	n, err := b.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return serverCopy(n), nil
}

func (b *SQLiteBackend) Upsert(ctx context.Context, note *models.Note) (*models.Note, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	current, err := b.repo.Get(ctx, note.ID)
	switch {
	case err == nil && current.NewerThan(note):
		return serverCopy(current), nil
	case err != nil && !apperrors.Is(err, apperrors.ErrNotFound):
		return nil, err
	}
	stored, err := b.repo.Put(ctx, serverCopy(note))
	if err != nil {
		return nil, err
	}
	return serverCopy(stored), nil
}

func (b *SQLiteBackend) Delete(ctx context.Context, id string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := b.repo.Get(ctx, id); err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if err := b.repo.Delete(ctx, id); err != nil {
		return false, err
	}
	return true, nil
}

func (b *SQLiteBackend) Ping(ctx context.Context) error {
	return b.conn.PingContext(ctx)
}

func (b *SQLiteBackend) Close() error {
	b.repo.Close()
	return b.conn.Close()
}
