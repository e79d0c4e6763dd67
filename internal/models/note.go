// Package models provides data model definitions for the notes engine.
package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// SyncStatus is the per-note position in the sync state machine.
type SyncStatus string

const (
	SyncStatusUnsynced SyncStatus = "unsynced"
	SyncStatusSyncing  SyncStatus = "syncing"
	SyncStatusSynced   SyncStatus = "synced"
	SyncStatusError    SyncStatus = "error"
)

// Valid reports whether s is one of the known statuses.
func (s SyncStatus) Valid() bool {
	switch s {
	case SyncStatusUnsynced, SyncStatusSyncing, SyncStatusSynced, SyncStatusError:
		return true
	}
	return false
}

// Note is a single user note. ID is assigned by the client at creation and
// never changes. UpdatedAt is the only ordering signal used for conflict
// resolution and deduplication.
type Note struct {
	ID         string     `db:"id" json:"id"`
	Title      string     `db:"title" json:"title"`
	Body       string     `db:"body" json:"body"`
	UpdatedAt  time.Time  `db:"updated_at" json:"updatedAt"`
	Synced     bool       `db:"synced" json:"synced"`
	SyncStatus SyncStatus `db:"sync_status" json:"syncStatus"`
}

// TableName returns the table name for Note.
func (Note) TableName() string {
	return "notes"
}

// Clone returns a copy of n. A nil note clones to nil.
func (n *Note) Clone() *Note {
	if n == nil {
		return nil
	}
	c := *n
	return &c
}

// SetStatus sets the sync status and keeps Synced consistent with it.
func (n *Note) SetStatus(status SyncStatus) {
	n.SyncStatus = status
	n.Synced = status == SyncStatusSynced
}

// NeedsSync reports whether the note belongs to the sync backlog.
func (n *Note) NeedsSync() bool {
	return n.SyncStatus == SyncStatusUnsynced || n.SyncStatus == SyncStatusError
}

// Touch stamps a local mutation. The stamp never moves backwards for a note.
func (n *Note) Touch(now time.Time) {
	now = now.UTC()
	if now.Before(n.UpdatedAt) {
		now = n.UpdatedAt
	}
	n.UpdatedAt = now
	n.SetStatus(SyncStatusUnsynced)
}

// NewerThan reports whether n carries a strictly later revision than other.
func (n *Note) NewerThan(other *Note) bool {
	return n.UpdatedAt.After(other.UpdatedAt)
}

// SameRevision reports whether n and other carry the same stamp and the
// same content. Two edits may share a stamp, so the stamp alone is not enough.
func (n *Note) SameRevision(other *Note) bool {
	return n.UpdatedAt.Equal(other.UpdatedAt) && n.Title == other.Title && n.Body == other.Body
}

// Normalize returns a copy of n with defaults filled in: unknown or empty
// status becomes unsynced, a zero UpdatedAt becomes now, timestamps are UTC
// and Synced agrees with SyncStatus. It is applied at every store and wire
// boundary.
func Normalize(n *Note, now time.Time) *Note {
	if n == nil {
		return nil
	}
	out := n.Clone()
	if out.UpdatedAt.IsZero() {
		out.UpdatedAt = now
	}
	out.UpdatedAt = out.UpdatedAt.UTC()

	status := out.SyncStatus
	switch {
	case !status.Valid() && out.Synced:
		status = SyncStatusSynced
	case !status.Valid():
		status = SyncStatusUnsynced
	case status == SyncStatusSynced && !out.Synced:
		// A stored "synced" with a false flag is treated as unconfirmed.
		status = SyncStatusUnsynced
	}
	out.SetStatus(status)
	return out
}

// Validate checks the fields a note must carry to be stored.
func (n *Note) Validate() error {
	if n == nil {
		return fmt.Errorf("note is nil")
	}
	if n.ID == "" {
		return fmt.Errorf("note id is required")
	}
	return nil
}

// MarshalJSON writes UpdatedAt as an ISO-8601 string with millisecond
// precision, matching the persisted shape.
func (n Note) MarshalJSON() ([]byte, error) {
	type wire struct {
		ID         string     `json:"id"`
		Title      string     `json:"title"`
		Body       string     `json:"body"`
		UpdatedAt  string     `json:"updatedAt,omitempty"`
		Synced     bool       `json:"synced"`
		SyncStatus SyncStatus `json:"syncStatus,omitempty"`
	}
	w := wire{
		ID:         n.ID,
		Title:      n.Title,
		Body:       n.Body,
		Synced:     n.Synced,
		SyncStatus: n.SyncStatus,
	}
	if !n.UpdatedAt.IsZero() {
		w.UpdatedAt = FormatTime(n.UpdatedAt)
	}
	return json.Marshal(w)
}

// UnmarshalJSON accepts any RFC 3339 timestamp and tolerates missing
// sync fields; callers normalize afterwards.
func (n *Note) UnmarshalJSON(data []byte) error {
	var w struct {
		ID         string     `json:"id"`
		Title      string     `json:"title"`
		Body       string     `json:"body"`
		UpdatedAt  string     `json:"updatedAt"`
		Synced     bool       `json:"synced"`
		SyncStatus SyncStatus `json:"syncStatus"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	var updatedAt time.Time
	if w.UpdatedAt != "" {
		t, err := ParseTime(w.UpdatedAt)
		if err != nil {
			return fmt.Errorf("note %s: %w", w.ID, err)
		}
		updatedAt = t
	}
	*n = Note{
		ID:         w.ID,
		Title:      w.Title,
		Body:       w.Body,
		UpdatedAt:  updatedAt,
		Synced:     w.Synced,
		SyncStatus: w.SyncStatus,
	}
	return nil
}

// TimeLayout is the persisted timestamp layout (ISO-8601, UTC, nanoseconds).
const TimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// FormatTime renders t in TimeLayout. The fixed width keeps lexical order
// equal to chronological order in the store.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime parses an ISO-8601 / RFC 3339 timestamp.
func ParseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}
