// Package db provides repository interfaces for the local note store.
package db

import (
	"context"

	"github.com/abhishek150-rt/offline-notes-app/internal/models"
)

// NoteStore is the durable local copy of the note set, keyed by id.
// Every error it returns is a STORE_ERROR (or NOT_FOUND from Get).
type NoteStore interface {
	// Put upserts a note after normalizing it and returns the stored form.
	Put(ctx context.Context, note *models.Note) (*models.Note, error)

	// Get returns the note with id or a NOT_FOUND error.
	Get(ctx context.Context, id string) (*models.Note, error)

	// GetAll returns every stored note. Callers deduplicate.
	GetAll(ctx context.Context) ([]*models.Note, error)

	// GetUnsynced returns the notes that still need a push.
	GetUnsynced(ctx context.Context) ([]*models.Note, error)

	// Delete removes a note. Deleting a missing id is not an error.
	Delete(ctx context.Context, id string) error

	// Clear removes every note.
	Clear(ctx context.Context) error
}

// Ensure *NoteRepository implements the interface at compile time.
var _ NoteStore = (*NoteRepository)(nil)
