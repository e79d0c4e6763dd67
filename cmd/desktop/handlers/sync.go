package handlers

import (
	"net/http"

	apperrors "github.com/abhishek150-rt/offline-notes-app/internal/errors"
	"github.com/abhishek150-rt/offline-notes-app/internal/logging"
	"github.com/abhishek150-rt/offline-notes-app/internal/sync"
)

// SyncHandler handles sync status and manual sync requests.
type SyncHandler struct {
	engine sync.Engine
	wsHub  WSSyncBroadcaster
	logger *logging.Logger
}

// WSSyncBroadcaster is the part of the WebSocket hub the sync handler
// reports failures through. Started/completed events come from the
// projection itself.
type WSSyncBroadcaster interface {
	BroadcastSyncFailed(code string, message string)
}

// NewSyncHandler creates a new SyncHandler.
func NewSyncHandler(engine sync.Engine) *SyncHandler {
	return &SyncHandler{
		engine: engine,
		logger: logging.Get().With(map[string]interface{}{"component": "sync-handler"}),
	}
}

// SetWebSocketHub sets the WebSocket hub for broadcasting sync failures.
func (h *SyncHandler) SetWebSocketHub(wsHub WSSyncBroadcaster) {
	h.wsHub = wsHub
}

// GetStatus handles GET /api/sync/status
func (h *SyncHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, apperrors.ErrInvalid, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, h.engine.Status())
}

// TriggerSync handles POST /api/sync
// Pushes the whole backlog. Offline it reports that nothing was attempted.
func (h *SyncHandler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, apperrors.ErrInvalid, "method not allowed")
		return
	}

	result, err := h.engine.SyncAll(r.Context())
	if err != nil {
		h.logger.Error("Manual sync failed", err)
		if h.wsHub != nil {
			h.wsHub.BroadcastSyncFailed(string(apperrors.CodeOf(err)), err.Error())
		}
		writeAppError(w, err)
		return
	}

	status := http.StatusOK
	if result.Offline {
		status = http.StatusAccepted
	}
	writeJSON(w, status, map[string]interface{}{
		"attempted":   result.Attempted,
		"synced":      result.Synced,
		"failed":      result.Failed,
		"skipped":     result.Skipped,
		"offline":     result.Offline,
		"duration_ms": result.Duration.Milliseconds(),
	})
}
