package timeline

import (
	"sort"

	"github.com/tagwatch/console-sync/internal/model"
)

// Merge appends incoming messages whose id is not already present and
// returns the result ordered by CreatedAt, then ID. prev is not modified.
func Merge(prev, incoming []model.IncidentMessage) []model.IncidentMessage {
	seen := make(map[int64]struct{}, len(prev)+len(incoming))
	out := make([]model.IncidentMessage, 0, len(prev)+len(incoming))
	for _, list := range [][]model.IncidentMessage{prev, incoming} {
		for _, msg := range list {
			if _, dup := seen[msg.ID]; dup {
				continue
			}
			seen[msg.ID] = struct{}{}
			out = append(out, msg)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func maxID(messages []model.IncidentMessage) (int64, bool) {
	if len(messages) == 0 {
		return 0, false
	}
	highest := messages[0].ID
	for _, msg := range messages[1:] {
		if msg.ID > highest {
			highest = msg.ID
		}
	}
	return highest, true
}
