// Package remote is the client side of the notes REST API.
package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/abhishek150-rt/offline-notes-app/internal/models"
)

// Service is the remote copy of the note set.
type Service interface {
	// FetchAll returns every note the remote holds.
	FetchAll(ctx context.Context) ([]*models.Note, error)

	// CreateOrUpdate upserts note and returns the revision the remote stored,
	// which may differ from the request.
	CreateOrUpdate(ctx context.Context, note *models.Note) (*models.Note, error)

	// Delete removes the note with id.
	Delete(ctx context.Context, id string) error
}

// APIError is a non-2xx response from the remote.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("http %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a 404 from the remote.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}
