package sync

import (
	"context"

	"github.com/abhishek150-rt/offline-notes-app/internal/models"
	"github.com/abhishek150-rt/offline-notes-app/internal/sync/state"
)

// Engine is the surface the HTTP handlers and the CLI use.
// This interface allows for mocking in tests and alternative implementations.
type Engine interface {
	// State returns the current projection.
	State() state.State

	// Subscribe registers a projection listener and returns its remover.
	Subscribe(l state.Listener) func()

	// Get returns the stored note with id.
	Get(ctx context.Context, id string) (*models.Note, error)

	// Create stores a new note.
	Create(ctx context.Context, title, body string) (*models.Note, error)

	// Update changes a note and schedules its push.
	Update(ctx context.Context, id string, upd NoteUpdate) (*models.Note, error)

	// Delete removes a note locally and, best effort, remotely.
	Delete(ctx context.Context, id string) error

	// SyncAll pushes the whole backlog.
	SyncAll(ctx context.Context) (*SyncResult, error)

	// Status returns a snapshot of the engine state.
	Status() Status
}

var _ Engine = (*Orchestrator)(nil)
