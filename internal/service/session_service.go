package service

import (
	"context"

	"github.com/rs/zerolog/log"

	"handraise/internal/model"
	"handraise/internal/roomcode"
)

// ReconcileOutcome says what the client should do with its cached session.
type ReconcileOutcome string

const (
	// OutcomeNone: there was no session to reconcile.
	OutcomeNone ReconcileOutcome = "none"
	// OutcomeKeep: the session is still valid as cached.
	OutcomeKeep ReconcileOutcome = "keep"
	// OutcomeDiscard: the session is expired or unusable; forget it.
	OutcomeDiscard ReconcileOutcome = "discard"
	// OutcomeRejoined: the participant was re-admitted under a fresh id;
	// Session carries the replacement.
	OutcomeRejoined ReconcileOutcome = "rejoined"
)

// RouteHint tells a client sitting on a neutral route which room screen to
// show. Empty means: do not touch navigation.
type RouteHint string

const (
	RouteNone      RouteHint = ""
	RouteAdminRoom RouteHint = "admin"
	RouteUserRoom  RouteHint = "participant"
)

// ReconcileResult is the decision plus the (possibly rewritten) session.
type ReconcileResult struct {
	Outcome  ReconcileOutcome `json:"outcome"`
	Session  *model.Session   `json:"session,omitempty"`
	Redirect RouteHint        `json:"redirect,omitempty"`
}

// SessionService reconciles client-cached sessions against authoritative
// room state. It runs at client startup and whenever the room stream is
// re-established.
type SessionService struct {
	rooms *RoomService
}

func NewSessionService(rooms *RoomService) *SessionService {
	return &SessionService{rooms: rooms}
}

// Reconcile validates sess against the room store. onRoomPage is true when
// the client is currently viewing that room's dedicated screen (a refresh or
// reconnect rather than a stale tab); it gates re-admission and suppresses
// redirects. Any store failure degrades to discard: re-onboarding beats a
// half-joined state.
func (s *SessionService) Reconcile(ctx context.Context, sess *model.Session, onRoomPage bool) ReconcileResult {
	if sess == nil || sess.RoomCode == "" {
		return ReconcileResult{Outcome: OutcomeNone}
	}

	code := roomcode.Normalize(sess.RoomCode)
	exists, err := s.rooms.RoomExists(ctx, code)
	if err != nil {
		log.Warn().Err(err).Str("room", code).Msg("room check failed during session reconcile, discarding session")
		return ReconcileResult{Outcome: OutcomeDiscard}
	}
	if !exists {
		return ReconcileResult{Outcome: OutcomeDiscard}
	}

	switch sess.Role {
	case model.RoleAdmin:
		// The admin is not tracked as a participant; a live room is all the
		// validation an admin session gets.
		return ReconcileResult{
			Outcome:  OutcomeKeep,
			Session:  sess,
			Redirect: redirectFor(model.RoleAdmin, onRoomPage),
		}

	case model.RoleParticipant:
		snap, err := s.rooms.Snapshot(ctx, code)
		if err != nil {
			log.Warn().Err(err).Str("room", code).Msg("room read failed during session reconcile, discarding session")
			return ReconcileResult{Outcome: OutcomeDiscard}
		}
		if _, ok := snap.Room.Participants[sess.ParticipantID]; ok {
			return ReconcileResult{
				Outcome:  OutcomeKeep,
				Session:  sess,
				Redirect: redirectFor(model.RoleParticipant, onRoomPage),
			}
		}

		if !onRoomPage {
			// Stale tab elsewhere in the app: keep the cached session and
			// defer the rejoin decision until the user navigates back.
			return ReconcileResult{
				Outcome:  OutcomeKeep,
				Session:  sess,
				Redirect: redirectFor(model.RoleParticipant, onRoomPage),
			}
		}

		// Refresh truncated their presence. Ids are store-issued, so rejoin
		// under a fresh id, hand down, keeping the display name; any queue
		// entry of the stale identity goes with it.
		newID, err := s.rooms.RejoinRoom(ctx, code, sess.Name, sess.ParticipantID)
		if err != nil {
			log.Warn().Err(err).Str("room", code).Msg("rejoin failed during session reconcile, discarding session")
			return ReconcileResult{Outcome: OutcomeDiscard}
		}
		rejoined := *sess
		rejoined.RoomCode = code
		rejoined.ParticipantID = newID
		return ReconcileResult{Outcome: OutcomeRejoined, Session: &rejoined}

	default:
		return ReconcileResult{Outcome: OutcomeDiscard}
	}
}

// redirectFor points a neutral-route client at its room screen. A client
// already on the room's page is never navigated away.
func redirectFor(role model.Role, onRoomPage bool) RouteHint {
	if onRoomPage {
		return RouteNone
	}
	if role == model.RoleAdmin {
		return RouteAdminRoom
	}
	return RouteUserRoom
}
