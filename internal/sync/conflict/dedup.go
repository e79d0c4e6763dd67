package conflict

import "github.com/abhishek150-rt/offline-notes-app/internal/models"

// Deduplicate keeps one entry per id: the revision with the greatest
// UpdatedAt wins and ties keep the first one seen. Output order is the order
// in which each id first appears, so Deduplicate is a fixed point on its own
// output. Nil entries are dropped. The input slice is not modified.
func Deduplicate(notes []*models.Note) []*models.Note {
	index := make(map[string]int, len(notes))
	out := make([]*models.Note, 0, len(notes))

	for _, n := range notes {
		if n == nil {
			continue
		}
		i, seen := index[n.ID]
		if !seen {
			index[n.ID] = len(out)
			out = append(out, n)
			continue
		}
		if n.NewerThan(out[i]) {
			out[i] = n
		}
	}
	return out
}
