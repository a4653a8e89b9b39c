package service

import (
	"sort"

	"handraise/internal/model"
)

// DeriveQueue projects the raw queue-entry map into the ordered speaking
// queue. Entries whose participant no longer resolves are filtered out; that
// covers the read-skew window where a participant was removed but its entry
// has not propagated yet. Ordering is raise time ascending, allocation
// sequence breaking ties. Pure: safe to re-run on every snapshot.
func DeriveQueue(participants map[string]model.Participant, entries map[string]model.QueueEntry) []model.QueuedSpeaker {
	ordered := make([]model.QueueEntry, 0, len(entries))
	for _, e := range entries {
		if _, ok := participants[e.ParticipantID]; !ok {
			continue
		}
		ordered = append(ordered, e)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if !ordered[i].RaisedAt.Equal(ordered[j].RaisedAt) {
			return ordered[i].RaisedAt.Before(ordered[j].RaisedAt)
		}
		return ordered[i].Seq < ordered[j].Seq
	})

	out := make([]model.QueuedSpeaker, len(ordered))
	for i, e := range ordered {
		out[i] = model.QueuedSpeaker{
			EntryID:       e.ID,
			ParticipantID: e.ParticipantID,
			Name:          participants[e.ParticipantID].Name,
			RaisedAt:      e.RaisedAt,
		}
	}
	return out
}

// QueuePositionOf returns the 1-based position of a participant in the
// derived queue, or false when they hold no live entry.
func QueuePositionOf(participantID string, ordered []model.QueuedSpeaker) (int, bool) {
	for i, s := range ordered {
		if s.ParticipantID == participantID {
			return i + 1, true
		}
	}
	return 0, false
}
