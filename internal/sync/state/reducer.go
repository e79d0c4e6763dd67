// Package state holds the in-memory projection of the note set and the
// closed set of transitions that update it.
package state

import (
	"sort"

	"github.com/abhishek150-rt/offline-notes-app/internal/models"
	"github.com/abhishek150-rt/offline-notes-app/internal/sync/conflict"
)

// State is the projection read by observers. Notes are ordered by recency
// and hold at most one entry per id.
type State struct {
	Notes     []*models.Note
	IsSyncing bool
	IsLoading bool
}

// Find returns the projected note with id, or nil.
func (s State) Find(id string) *models.Note {
	for _, n := range s.Notes {
		if n.ID == id {
			return n
		}
	}
	return nil
}

// ActionType names a transition.
type ActionType string

const (
	ActionReplaceAll    ActionType = "REPLACE_ALL"
	ActionAddOrReplace  ActionType = "ADD_OR_REPLACE"
	ActionReplaceByID   ActionType = "REPLACE_BY_ID"
	ActionRemoveByID    ActionType = "REMOVE_BY_ID"
	ActionSetSyncStatus ActionType = "SET_SYNC_STATUS"
	ActionSetSyncing    ActionType = "SET_SYNCING"
	ActionSetLoading    ActionType = "SET_LOADING"
)

// Action is a transition request. Only the fields relevant to Type are read.
type Action struct {
	Type   ActionType
	Notes  []*models.Note
	Note   *models.Note
	ID     string
	Status models.SyncStatus
	Flag   bool
}

// ReplaceAll replaces the whole collection.
func ReplaceAll(notes []*models.Note) Action {
	return Action{Type: ActionReplaceAll, Notes: notes}
}

// AddOrReplace inserts a note, or replaces the entry with the same id.
func AddOrReplace(note *models.Note) Action {
	return Action{Type: ActionAddOrReplace, Note: note}
}

// ReplaceByID replaces an existing entry. Absent ids are ignored.
func ReplaceByID(note *models.Note) Action {
	return Action{Type: ActionReplaceByID, Note: note}
}

// RemoveByID drops the entry with id.
func RemoveByID(id string) Action {
	return Action{Type: ActionRemoveByID, ID: id}
}

// SetSyncStatus changes the sync status of one entry.
func SetSyncStatus(id string, status models.SyncStatus) Action {
	return Action{Type: ActionSetSyncStatus, ID: id, Status: status}
}

// SetSyncing sets the global syncing flag.
func SetSyncing(on bool) Action {
	return Action{Type: ActionSetSyncing, Flag: on}
}

// SetLoading sets the loading flag.
func SetLoading(on bool) Action {
	return Action{Type: ActionSetLoading, Flag: on}
}

// Reduce returns the state after applying a. It never mutates s or the notes
// it holds. Unknown action types return s unchanged. Every transition that
// touches the collection deduplicates it, so no path can introduce a second
// entry for an id.
func Reduce(s State, a Action) State {
	switch a.Type {
	case ActionReplaceAll:
		s.Notes = normalize(clones(a.Notes))

	case ActionAddOrReplace:
		if a.Note == nil {
			return s
		}
		notes := make([]*models.Note, 0, len(s.Notes)+1)
		notes = append(notes, a.Note.Clone())
		for _, n := range s.Notes {
			if n.ID != a.Note.ID {
				notes = append(notes, n)
			}
		}
		s.Notes = normalize(notes)

	case ActionReplaceByID:
		if a.Note == nil {
			return s
		}
		replaced := false
		notes := make([]*models.Note, len(s.Notes))
		for i, n := range s.Notes {
			if n.ID == a.Note.ID {
				notes[i] = a.Note.Clone()
				replaced = true
				continue
			}
			notes[i] = n
		}
		if !replaced {
			return s
		}
		s.Notes = normalize(notes)

	case ActionRemoveByID:
		notes := make([]*models.Note, 0, len(s.Notes))
		for _, n := range s.Notes {
			if n.ID != a.ID {
				notes = append(notes, n)
			}
		}
		s.Notes = notes

	case ActionSetSyncStatus:
		if !a.Status.Valid() {
			return s
		}
		notes := make([]*models.Note, len(s.Notes))
		for i, n := range s.Notes {
			if n.ID == a.ID {
				n = n.Clone()
				n.SetStatus(a.Status)
			}
			notes[i] = n
		}
		s.Notes = notes

	case ActionSetSyncing:
		s.IsSyncing = a.Flag

	case ActionSetLoading:
		s.IsLoading = a.Flag
	}
	return s
}

func clones(notes []*models.Note) []*models.Note {
	out := make([]*models.Note, 0, len(notes))
	for _, n := range notes {
		if n != nil {
			out = append(out, n.Clone())
		}
	}
	return out
}

// normalize enforces one entry per id and recency order.
func normalize(notes []*models.Note) []*models.Note {
	notes = conflict.Deduplicate(notes)
	sort.SliceStable(notes, func(i, j int) bool {
		return notes[i].UpdatedAt.After(notes[j].UpdatedAt)
	})
	return notes
}
