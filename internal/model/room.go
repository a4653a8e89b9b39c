package model

import "time"

// Room is the authoritative state of one meeting, stored as a single value
// under its code. Participants and queue entries are keyed by their ids.
type Room struct {
	Code         string                 `json:"code"`
	AdminName    string                 `json:"adminName"`
	CreatedAt    time.Time              `json:"createdAt"`
	Participants map[string]Participant `json:"participants"`
	Queue        map[string]QueueEntry  `json:"queue"`

	// NextSeq is the allocation counter for queue entries. It only grows;
	// it breaks raise-timestamp ties deterministically.
	NextSeq uint64 `json:"nextSeq"`
}

// Participant is a non-admin attendee of a room. The admin is not a
// Participant; it exists only as the room's AdminName.
type Participant struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	JoinedAt   time.Time `json:"joinedAt"`
	HandRaised bool      `json:"handRaised"`
}

// QueueEntry records one raised hand. A participant has at most one live
// entry at any time.
type QueueEntry struct {
	ID            string    `json:"id"`
	ParticipantID string    `json:"participantId"`
	RaisedAt      time.Time `json:"raisedAt"`
	Seq           uint64    `json:"seq"`
}

// QueuedSpeaker is one position of the derived speaking queue: a queue
// entry resolved to its participant.
type QueuedSpeaker struct {
	EntryID       string    `json:"entryId"`
	ParticipantID string    `json:"participantId"`
	Name          string    `json:"name"`
	RaisedAt      time.Time `json:"raisedAt"`
}

// RoomSnapshot is what subscribers receive on every change. Queue is the
// derived ordering, recomputed from Room on each delivery. Exists is false
// exactly once, after the room has been deleted.
type RoomSnapshot struct {
	Exists bool            `json:"exists"`
	Room   *Room           `json:"room,omitempty"`
	Queue  []QueuedSpeaker `json:"queue,omitempty"`
}
