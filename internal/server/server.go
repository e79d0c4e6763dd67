package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	apperrors "github.com/abhishek150-rt/offline-notes-app/internal/errors"
	"github.com/abhishek150-rt/offline-notes-app/internal/logging"
	"github.com/abhishek150-rt/offline-notes-app/internal/models"
	"github.com/abhishek150-rt/offline-notes-app/internal/uuid"
)

// Config tunes the HTTP surface.
type Config struct {
	// Token, when set, is required as a Bearer token on every /notes route.
	Token        string
	MaxBodyBytes int64
	Logger       *logging.Logger
	Now          func() time.Time
}

// Server serves the notes REST API over a Backend.
//
//	GET    /health
//	GET    /notes
//	POST   /notes
//	GET    /notes/{id}   (also HEAD)
//	PUT    /notes/{id}
//	DELETE /notes/{id}
type Server struct {
	backend Backend
	cfg     Config
	logger  *logging.Logger
}

func NewServer(backend Backend) *Server {
	return NewServerWithConfig(backend, Config{})
}

func NewServerWithConfig(backend Backend, cfg Config) *Server {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Get()
	}
	cfg.Token = strings.TrimSpace(cfg.Token)
	return &Server{
		backend: backend,
		cfg:     cfg,
		logger:  logger.With(map[string]interface{}{"component": "server"}),
	}
}

// noteJSON is the server-side representation; it carries no sync state.
type noteJSON struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	UpdatedAt string `json:"updatedAt"`
}

func toJSON(n *models.Note) noteJSON {
	return noteJSON{ID: n.ID, Title: n.Title, Body: n.Body, UpdatedAt: models.FormatTime(n.UpdatedAt)}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	correlationID := getCorrelationID(r)
	w.Header().Set("X-Request-Id", correlationID)

	if r.URL.Path == "/health" {
		if r.Method != http.MethodGet {
			methodNotAllowed(w, correlationID, http.MethodGet)
			return
		}
		s.handleHealth(w, r, correlationID)
		return
	}

	parts := strings.Split(strings.Trim(r.URL.EscapedPath(), "/"), "/")
	if len(parts) == 0 || parts[0] != "notes" || len(parts) > 2 {
		writeError(w, http.StatusNotFound, "not_found", "route not found", correlationID)
		return
	}
	if !s.authorized(r) {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing or invalid bearer token", correlationID)
		return
	}

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			s.handleList(w, r, correlationID)
		case http.MethodPost:
			s.handleCreate(w, r, correlationID)
		default:
			methodNotAllowed(w, correlationID, http.MethodGet, http.MethodPost)
		}
		return
	}

	id, err := url.PathUnescape(parts[1])
	if err != nil || strings.TrimSpace(id) == "" {
		writeError(w, http.StatusBadRequest, "invalid_input", "invalid note id", correlationID)
		return
	}
	switch r.Method {
	case http.MethodGet, http.MethodHead:
		s.handleGet(w, r, id, correlationID)
	case http.MethodPut:
		s.handlePut(w, r, id, correlationID)
	case http.MethodDelete:
		s.handleDelete(w, r, id, correlationID)
	default:
		methodNotAllowed(w, correlationID, http.MethodGet, http.MethodHead, http.MethodPut, http.MethodDelete)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request, correlationID string) {
	if err := s.backend.Ping(r.Context()); err != nil {
		s.logger.Error("Health check failed", err)
		writeError(w, http.StatusServiceUnavailable, "unavailable", "backend unavailable", correlationID)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request, correlationID string) {
	notes, err := s.backend.List(r.Context())
	if err != nil {
		s.writeAppError(w, err, correlationID)
		return
	}
	out := make([]noteJSON, 0, len(notes))
	for _, n := range notes {
		out = append(out, toJSON(n))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request, id, correlationID string) {
	note, err := s.backend.Get(r.Context(), id)
	if err != nil {
		s.writeAppError(w, err, correlationID)
		return
	}
	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}
	writeJSON(w, http.StatusOK, toJSON(note))
}

// handleCreate inserts a new note. A missing id is assigned; an existing
// id is a conflict, updates go through PUT.
func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request, correlationID string) {
	note, ok := s.readNote(w, r, correlationID)
	if !ok {
		return
	}
	if note.ID == "" {
		note.ID = uuid.New()
	}
	_, err := s.backend.Get(r.Context(), note.ID)
	switch {
	case err == nil:
		writeError(w, http.StatusConflict, "conflict", "note already exists", correlationID)
		return
	case !apperrors.Is(err, apperrors.ErrNotFound):
		s.writeAppError(w, err, correlationID)
		return
	}
	stored, err := s.backend.Upsert(r.Context(), note)
	if err != nil {
		s.writeAppError(w, err, correlationID)
		return
	}
	s.logger.Debug("Note created", map[string]interface{}{"note_id": stored.ID})
	writeJSON(w, http.StatusCreated, toJSON(stored))
}

// handlePut upserts the note at id. An older revision than the stored one
// is not applied; the stored revision is returned instead.
func (s *Server) handlePut(w http.ResponseWriter, r *http.Request, id, correlationID string) {
	note, ok := s.readNote(w, r, correlationID)
	if !ok {
		return
	}
	if note.ID != "" && note.ID != id {
		writeError(w, http.StatusBadRequest, "invalid_input", "body id does not match path", correlationID)
		return
	}
	note.ID = id
	stored, err := s.backend.Upsert(r.Context(), note)
	if err != nil {
		s.writeAppError(w, err, correlationID)
		return
	}
	if stored.UpdatedAt.After(note.UpdatedAt) {
		s.logger.Info("Kept newer stored revision", map[string]interface{}{
			"note_id":  id,
			"incoming": models.FormatTime(note.UpdatedAt),
			"stored":   models.FormatTime(stored.UpdatedAt),
		})
	}
	writeJSON(w, http.StatusOK, toJSON(stored))
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request, id, correlationID string) {
	existed, err := s.backend.Delete(r.Context(), id)
	if err != nil {
		s.writeAppError(w, err, correlationID)
		return
	}
	if !existed {
		writeError(w, http.StatusNotFound, "not_found", "note not found", correlationID)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) readNote(w http.ResponseWriter, r *http.Request, correlationID string) (*models.Note, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "payload_too_large", "request body exceeds configured limit", correlationID)
			return nil, false
		}
		writeError(w, http.StatusBadRequest, "invalid_input", "failed to read request body", correlationID)
		return nil, false
	}
	var note models.Note
	if err := json.Unmarshal(body, &note); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "invalid note payload", correlationID)
		return nil, false
	}
	note.ID = strings.TrimSpace(note.ID)
	if note.UpdatedAt.IsZero() {
		note.UpdatedAt = s.cfg.Now().UTC()
	}
	return serverCopy(&note), true
}

func (s *Server) authorized(r *http.Request) bool {
	if s.cfg.Token == "" {
		return true
	}
	auth := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(auth, "Bearer ")
	return ok && strings.TrimSpace(token) == s.cfg.Token
}

func (s *Server) writeAppError(w http.ResponseWriter, err error, correlationID string) {
	switch apperrors.CodeOf(err) {
	case apperrors.ErrNotFound:
		writeError(w, http.StatusNotFound, "not_found", "note not found", correlationID)
	case apperrors.ErrInvalid:
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error(), correlationID)
	default:
		s.logger.ErrorWithCode("Backend request failed", string(apperrors.CodeOf(err)), err,
			map[string]interface{}{"correlation_id": correlationID})
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error", correlationID)
	}
}

func getCorrelationID(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get("X-Request-Id")); id != "" {
		return id
	}
	return uuid.New()
}

func methodNotAllowed(w http.ResponseWriter, correlationID string, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed", correlationID)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message, correlationID string) {
	writeJSON(w, status, map[string]any{
		"code":          code,
		"message":       message,
		"correlationId": correlationID,
	})
}
