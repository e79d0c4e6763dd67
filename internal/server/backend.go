// Package server is a reference implementation of the notes REST API that
// the sync engine pushes to.
package server

import (
	"context"

	"github.com/abhishek150-rt/offline-notes-app/internal/models"
)

// Backend stores the server copy of the notes. Only id, title, body and
// updatedAt are meaningful here; client sync fields are not stored.
type Backend interface {
	// List returns every note, most recently updated first.
	List(ctx context.Context) ([]*models.Note, error)

	// Get returns the note or an ErrNotFound AppError.
	Get(ctx context.Context, id string) (*models.Note, error)

	// Upsert stores note unless the stored revision is newer, and returns
	// the revision that is stored afterwards.
	Upsert(ctx context.Context, note *models.Note) (*models.Note, error)

	// Delete removes the note and reports whether it existed.
	Delete(ctx context.Context, id string) (bool, error)

	// Ping checks the backend is usable.
	Ping(ctx context.Context) error

	Close() error
}

// serverCopy strips client sync state.
func serverCopy(n *models.Note) *models.Note {
	if n == nil {
		return nil
	}
	return &models.Note{ID: n.ID, Title: n.Title, Body: n.Body, UpdatedAt: n.UpdatedAt.UTC()}
}
