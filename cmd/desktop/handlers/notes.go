package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	apperrors "github.com/abhishek150-rt/offline-notes-app/internal/errors"
	"github.com/abhishek150-rt/offline-notes-app/internal/models"
	"github.com/abhishek150-rt/offline-notes-app/internal/sync"
)

// maxNoteBytes bounds a create or update request body.
const maxNoteBytes = 1 << 20

// NotesHandler handles note operations.
type NotesHandler struct {
	engine sync.Engine
}

// NewNotesHandler creates a new NotesHandler.
func NewNotesHandler(engine sync.Engine) *NotesHandler {
	return &NotesHandler{engine: engine}
}

// ListNotes handles GET /api/notes
// Returns the projection, most recently updated first.
func (h *NotesHandler) ListNotes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, apperrors.ErrInvalid, "method not allowed")
		return
	}

	snap := h.engine.State()
	notes := snap.Notes
	if notes == nil {
		notes = []*models.Note{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"notes":     notes,
		"total":     len(notes),
		"isSyncing": snap.IsSyncing,
		"isLoading": snap.IsLoading,
	})
}

// CreateNote handles POST /api/notes
func (h *NotesHandler) CreateNote(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, apperrors.ErrInvalid, "method not allowed")
		return
	}

	var request struct {
		Title string `json:"title"`
		Body  string `json:"body"`
	}
	if !decodeBody(w, r, &request) {
		return
	}

	note, err := h.engine.Create(r.Context(), request.Title, request.Body)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, note)
}

// GetNote handles GET /api/notes/{id}
func (h *NotesHandler) GetNote(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, apperrors.ErrInvalid, "method not allowed")
		return
	}

	id, ok := noteID(w, r)
	if !ok {
		return
	}
	note, err := h.engine.Get(r.Context(), id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// UpdateNote handles PUT /api/notes/{id}
// Absent fields keep their current value.
func (h *NotesHandler) UpdateNote(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		writeError(w, http.StatusMethodNotAllowed, apperrors.ErrInvalid, "method not allowed")
		return
	}

	id, ok := noteID(w, r)
	if !ok {
		return
	}
	var request struct {
		Title *string `json:"title"`
		Body  *string `json:"body"`
	}
	if !decodeBody(w, r, &request) {
		return
	}
	if request.Title == nil && request.Body == nil {
		writeError(w, http.StatusBadRequest, apperrors.ErrInvalid, "title or body is required")
		return
	}

	note, err := h.engine.Update(r.Context(), id, sync.NoteUpdate{Title: request.Title, Body: request.Body})
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// DeleteNote handles DELETE /api/notes/{id}
func (h *NotesHandler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		writeError(w, http.StatusMethodNotAllowed, apperrors.ErrInvalid, "method not allowed")
		return
	}

	id, ok := noteID(w, r)
	if !ok {
		return
	}
	if err := h.engine.Delete(r.Context(), id); err != nil {
		writeAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func noteID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.PathValue("id")
	if id == "" {
		// Not routed through a pattern mux.
		id = strings.TrimPrefix(r.URL.Path, "/api/notes/")
	}
	id = strings.TrimSpace(id)
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusBadRequest, apperrors.ErrInvalid, "note id is required")
		return "", false
	}
	return id, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxNoteBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, apperrors.ErrInvalid, "invalid request body")
		return false
	}
	return true
}
