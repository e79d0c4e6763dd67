// Package handlers provides the REST handlers of the desktop daemon.
package handlers

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/abhishek150-rt/offline-notes-app/internal/errors"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code apperrors.ErrorCode, message string) {
	writeJSON(w, status, map[string]any{
		"code":    code,
		"message": message,
	})
}

// writeAppError maps an engine error to a status code.
func writeAppError(w http.ResponseWriter, err error) {
	code := apperrors.CodeOf(err)
	switch code {
	case apperrors.ErrNotFound:
		writeError(w, http.StatusNotFound, code, err.Error())
	case apperrors.ErrInvalid:
		writeError(w, http.StatusBadRequest, code, err.Error())
	case apperrors.ErrOffline:
		writeError(w, http.StatusServiceUnavailable, code, err.Error())
	case apperrors.ErrSyncTimeout:
		writeError(w, http.StatusGatewayTimeout, code, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, code, err.Error())
	}
}
