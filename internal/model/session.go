package model

type Role string

const (
	RoleAdmin       Role = "admin"
	RoleParticipant Role = "participant"
)

// Session is a client's locally cached binding to a room. It is never
// authoritative: it must be reconciled against room state on every restore.
// ParticipantID is empty for admin sessions.
type Session struct {
	RoomCode      string `json:"roomCode"`
	Name          string `json:"name"`
	Role          Role   `json:"role"`
	ParticipantID string `json:"participantId,omitempty"`
}
