// Package conflict reconciles local and remote note sets with a
// last-writer-wins rule that never overwrites unsynced local edits.
package conflict

import (
	"github.com/abhishek150-rt/offline-notes-app/internal/logging"
	"github.com/abhishek150-rt/offline-notes-app/internal/models"
)

// Decision records which side won for one id during a merge.
type Decision string

// A remote entry wins only as DecisionRemoteAdded or DecisionRemoteNewer.
const (
	DecisionLocalOnly         Decision = "local_only"
	DecisionRemoteAdded       Decision = "remote_added"
	DecisionRemoteNewer       Decision = "remote_newer"
	DecisionLocalUnsyncedKept Decision = "local_unsynced_kept"
	DecisionLocalNewerKept    Decision = "local_newer_kept"
)

// Report describes the outcome of a merge.
type Report struct {
	Notes     []*models.Note
	Decisions map[string]Decision
}

// Count returns how many ids were resolved with decision d.
func (r *Report) Count(d Decision) int {
	n := 0
	for _, got := range r.Decisions {
		if got == d {
			n++
		}
	}
	return n
}

// Merge reconciles local with remote and returns one entry per id.
//
// Remote entries are marked synced. A remote entry replaces the local one
// when there is no local counterpart, or when the local one is synced and the
// remote UpdatedAt is strictly greater. In every other case the local entry
// is kept. The result lists local ids first, in local order, followed by
// remote-only ids in remote order. Neither input is modified.
func Merge(local, remote []*models.Note) []*models.Note {
	return merge(local, remote).Notes
}

func merge(local, remote []*models.Note) *Report {
	local = Deduplicate(local)
	remote = Deduplicate(remote)

	report := &Report{
		Notes:     make([]*models.Note, 0, len(local)+len(remote)),
		Decisions: make(map[string]Decision, len(local)+len(remote)),
	}
	index := make(map[string]int, len(local))
	for _, n := range local {
		index[n.ID] = len(report.Notes)
		report.Notes = append(report.Notes, n.Clone())
		report.Decisions[n.ID] = DecisionLocalOnly
	}

	for _, r := range remote {
		incoming := r.Clone()
		incoming.SetStatus(models.SyncStatusSynced)

		i, ok := index[r.ID]
		if !ok {
			index[r.ID] = len(report.Notes)
			report.Notes = append(report.Notes, incoming)
			report.Decisions[r.ID] = DecisionRemoteAdded
			continue
		}

		current := report.Notes[i]
		switch {
		case !current.Synced:
			report.Decisions[r.ID] = DecisionLocalUnsyncedKept
		case incoming.NewerThan(current):
			report.Notes[i] = incoming
			report.Decisions[r.ID] = DecisionRemoteNewer
		default:
			report.Decisions[r.ID] = DecisionLocalNewerKept
		}
	}
	return report
}

// Resolver runs merges and logs the decisions that needed arbitration.
type Resolver struct {
	logger *logging.Logger
}

// NewResolver creates a Resolver. A nil logger uses the global logger.
func NewResolver(logger *logging.Logger) *Resolver {
	if logger == nil {
		logger = logging.Get()
	}
	return &Resolver{logger: logger}
}

// Merge reconciles local with remote like the package-level Merge and
// returns a report of per-id decisions.
func (r *Resolver) Merge(local, remote []*models.Note) *Report {
	report := merge(local, remote)

	for _, n := range report.Notes {
		decision := report.Decisions[n.ID]
		if decision != DecisionLocalUnsyncedKept && decision != DecisionRemoteNewer {
			continue
		}
		r.logger.Debug("Resolved note conflict", map[string]interface{}{
			"note_id":    n.ID,
			"resolution": string(decision),
			"updated_at": models.FormatTime(n.UpdatedAt),
		})
	}

	r.logger.Info("Merged local and remote notes", map[string]interface{}{
		"local":               len(local),
		"remote":              len(remote),
		"result":              len(report.Notes),
		"remote_added":        report.Count(DecisionRemoteAdded),
		"remote_newer":        report.Count(DecisionRemoteNewer),
		"local_unsynced_kept": report.Count(DecisionLocalUnsyncedKept),
	})
	return report
}
