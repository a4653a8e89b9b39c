package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"handraise/internal/kv"
	"handraise/internal/model"
	"handraise/internal/repository"
	"handraise/internal/roomcode"
)

const roomKeyPrefix = "room:"

// RoomService owns authoritative room state. Every mutation is one atomic
// read-modify-write against the store, so subscribers never observe a
// participant without its queue entry cleanup (or vice versa).
type RoomService struct {
	store kv.Store
	repo  repository.RoomRepo // optional archive, may be nil
	clock clockwork.Clock
}

func NewRoomService(store kv.Store, repo repository.RoomRepo, clock clockwork.Clock) *RoomService {
	return &RoomService{store: store, repo: repo, clock: clock}
}

func roomKey(code string) string { return roomKeyPrefix + code }

// CreateRoom generates a free code, initializes the room, and returns the
// code. Code uniqueness is checked immediately before creation; with a
// 24^4 code space the loop is expected to exit on the first try.
func (s *RoomService) CreateRoom(ctx context.Context, adminName string) (string, error) {
	adminName = strings.TrimSpace(adminName)
	if adminName == "" {
		return "", validationErr("admin name is required")
	}

	var code string
	for {
		c, err := roomcode.Generate()
		if err != nil {
			return "", &StorageError{Op: "generate room code", Err: err}
		}
		exists, err := s.store.Exists(ctx, roomKey(c))
		if err != nil {
			return "", &StorageError{Op: "check room code", Err: err}
		}
		if !exists {
			code = c
			break
		}
	}

	room := model.Room{
		Code:         code,
		AdminName:    adminName,
		CreatedAt:    s.clock.Now().UTC(),
		Participants: map[string]model.Participant{},
		Queue:        map[string]model.QueueEntry{},
		NextSeq:      1,
	}
	raw, err := json.Marshal(room)
	if err != nil {
		return "", fmt.Errorf("encode room: %w", err)
	}
	if err := s.store.Set(ctx, roomKey(code), raw); err != nil {
		return "", &StorageError{Op: "create room", Err: err}
	}

	s.archiveCreate(ctx, &room)
	return code, nil
}

// RoomExists reports whether the (normalized) code refers to a live room.
func (s *RoomService) RoomExists(ctx context.Context, code string) (bool, error) {
	code = roomcode.Normalize(code)
	exists, err := s.store.Exists(ctx, roomKey(code))
	if err != nil {
		return false, &StorageError{Op: "check room", Err: err}
	}
	return exists, nil
}

// Snapshot reads the room and derives its queue. Returns ErrRoomNotFound
// for absent rooms.
func (s *RoomService) Snapshot(ctx context.Context, code string) (model.RoomSnapshot, error) {
	code = roomcode.Normalize(code)
	raw, err := s.store.Get(ctx, roomKey(code))
	if err != nil {
		return model.RoomSnapshot{}, storageErr("read room", err)
	}
	return decodeSnapshot(raw)
}

// JoinRoom validates the code and name, then inserts a fresh participant
// with hand down. Returns the store-issued participant id.
func (s *RoomService) JoinRoom(ctx context.Context, code, userName string) (string, error) {
	code = roomcode.Normalize(code)
	if !roomcode.ValidJoinCode(code) {
		return "", validationErr("room code must be 4 letters or digits")
	}
	userName = strings.TrimSpace(userName)
	if userName == "" {
		return "", validationErr("name is required")
	}

	id := uuid.NewString()
	joinedAt := s.clock.Now().UTC()

	err := s.updateRoom(ctx, code, "join room", func(room *model.Room) error {
		room.Participants[id] = model.Participant{
			ID:         id,
			Name:       userName,
			JoinedAt:   joinedAt,
			HandRaised: false,
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// RejoinRoom re-admits a refreshed participant under a fresh id. Any queue
// entry still held by their previous identity is dropped in the same update;
// they come back with hand down and must raise again.
func (s *RoomService) RejoinRoom(ctx context.Context, code, userName, previousID string) (string, error) {
	code = roomcode.Normalize(code)
	if !roomcode.ValidJoinCode(code) {
		return "", validationErr("room code must be 4 letters or digits")
	}
	userName = strings.TrimSpace(userName)
	if userName == "" {
		return "", validationErr("name is required")
	}

	id := uuid.NewString()
	joinedAt := s.clock.Now().UTC()

	err := s.updateRoom(ctx, code, "rejoin room", func(room *model.Room) error {
		dropEntriesFor(room, previousID)
		room.Participants[id] = model.Participant{
			ID:         id,
			Name:       userName,
			JoinedAt:   joinedAt,
			HandRaised: false,
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// LeaveRoom removes the participant and any queue entry of theirs in one
// update. Idempotent: a gone room or an already-absent participant is a
// no-op, never an error.
func (s *RoomService) LeaveRoom(ctx context.Context, code, participantID string) error {
	code = roomcode.Normalize(code)
	err := s.updateRoom(ctx, code, "leave room", func(room *model.Room) error {
		if _, ok := room.Participants[participantID]; !ok {
			return kv.ErrAbortUpdate
		}
		delete(room.Participants, participantID)
		dropEntriesFor(room, participantID)
		return nil
	})
	if err == ErrRoomNotFound {
		return nil
	}
	return err
}

// SetHandRaised toggles a participant's hand. Raising while raised and
// lowering while lowered are no-ops, which is what defuses double-clicks
// from stale UI: the transition is conditional on current store state, not
// on what the client believed.
func (s *RoomService) SetHandRaised(ctx context.Context, code, participantID string, raised bool) error {
	code = roomcode.Normalize(code)
	return s.updateRoom(ctx, code, "toggle hand", func(room *model.Room) error {
		p, ok := room.Participants[participantID]
		if !ok {
			return ErrParticipantNotFound
		}
		if p.HandRaised == raised {
			return kv.ErrAbortUpdate
		}
		p.HandRaised = raised
		room.Participants[participantID] = p

		if raised {
			entry := model.QueueEntry{
				ID:            uuid.NewString(),
				ParticipantID: participantID,
				RaisedAt:      s.clock.Now().UTC(),
				Seq:           room.NextSeq,
			}
			room.NextSeq++
			room.Queue[entry.ID] = entry
		} else {
			dropEntriesFor(room, participantID)
		}
		return nil
	})
}

// RemoveFromQueue is the admin's "done speaking" override: it removes the
// participant's queue entry and force-clears the hand flag regardless of its
// current value, so it wins over a concurrent self-lower. Swallows absence.
func (s *RoomService) RemoveFromQueue(ctx context.Context, code, participantID string) error {
	code = roomcode.Normalize(code)
	err := s.updateRoom(ctx, code, "remove from queue", func(room *model.Room) error {
		p, ok := room.Participants[participantID]
		if !ok {
			if !dropEntriesFor(room, participantID) {
				return kv.ErrAbortUpdate
			}
			return nil
		}
		p.HandRaised = false
		room.Participants[participantID] = p
		dropEntriesFor(room, participantID)
		return nil
	})
	if err == ErrRoomNotFound {
		return nil
	}
	return err
}

// DeleteRoom ends the meeting: the room and all nested state disappear in
// one store delete, and subscribers get the absent-room notification.
// Idempotent.
func (s *RoomService) DeleteRoom(ctx context.Context, code string) error {
	code = roomcode.Normalize(code)
	if err := s.store.Delete(ctx, roomKey(code)); err != nil {
		return &StorageError{Op: "delete room", Err: err}
	}
	s.archiveEnd(ctx, code)
	return nil
}

// Subscribe opens a snapshot stream for one room: the current snapshot first,
// then one snapshot per store change, then a final Exists=false snapshot if
// the room is deleted. Close the subscription to stop delivery; closing twice
// or after deletion is safe.
func (s *RoomService) Subscribe(ctx context.Context, code string) (*RoomSubscription, error) {
	code = roomcode.Normalize(code)

	kvSub, err := s.store.Subscribe(ctx, roomKey(code))
	if err != nil {
		return nil, &StorageError{Op: "subscribe", Err: err}
	}

	// Initial snapshot is read after subscribing so no change can fall into
	// the gap; a change that raced the read just shows up again as the first
	// event (at-least-once, and snapshots are idempotent to apply).
	initial, err := s.Snapshot(ctx, code)
	if err == ErrRoomNotFound {
		initial = model.RoomSnapshot{Exists: false}
	} else if err != nil {
		_ = kvSub.Close()
		return nil, err
	}

	sub := &RoomSubscription{
		kvSub:     kvSub,
		snapshots: make(chan model.RoomSnapshot, subscriptionBuffer),
	}
	go sub.pump(initial)
	return sub, nil
}

const subscriptionBuffer = 16

// RoomSubscription adapts raw store events into derived room snapshots.
type RoomSubscription struct {
	kvSub     kv.Subscription
	snapshots chan model.RoomSnapshot
}

// Snapshots is closed after Close, or after the absent-room snapshot has
// been delivered following room deletion.
func (r *RoomSubscription) Snapshots() <-chan model.RoomSnapshot { return r.snapshots }

func (r *RoomSubscription) Close() error { return r.kvSub.Close() }

func (r *RoomSubscription) pump(initial model.RoomSnapshot) {
	defer close(r.snapshots)

	r.deliver(initial)
	if !initial.Exists {
		_ = r.kvSub.Close()
		return
	}

	for ev := range r.kvSub.Events() {
		if ev.Deleted {
			r.deliver(model.RoomSnapshot{Exists: false})
			_ = r.kvSub.Close()
			return
		}
		snap, err := decodeSnapshot(ev.Value)
		if err != nil {
			log.Warn().Err(err).Str("path", ev.Path).Msg("dropping undecodable room snapshot")
			continue
		}
		r.deliver(snap)
	}
}

func (r *RoomSubscription) deliver(snap model.RoomSnapshot) {
	select {
	case r.snapshots <- snap:
	default:
		// Receiver is behind; every snapshot is full state, so the next
		// delivery makes them whole.
	}
}

// updateRoom wraps store.Update with room decode/encode and error
// classification. fn mutates the decoded room in place.
func (s *RoomService) updateRoom(ctx context.Context, code, op string, fn func(*model.Room) error) error {
	err := s.store.Update(ctx, roomKey(code), func(cur []byte) ([]byte, error) {
		if cur == nil {
			return nil, ErrRoomNotFound
		}
		var room model.Room
		if err := json.Unmarshal(cur, &room); err != nil {
			return nil, fmt.Errorf("decode room %s: %w", code, err)
		}
		if room.Participants == nil {
			room.Participants = map[string]model.Participant{}
		}
		if room.Queue == nil {
			room.Queue = map[string]model.QueueEntry{}
		}
		if err := fn(&room); err != nil {
			return nil, err
		}
		return json.Marshal(&room)
	})
	switch {
	case err == nil:
		return nil
	case err == ErrRoomNotFound || err == ErrParticipantNotFound:
		return err
	default:
		return &StorageError{Op: op, Err: err}
	}
}

// dropEntriesFor removes every queue entry held by the participant and
// reports whether any existed. The at-most-one invariant means "every" is
// normally one, but cleanup stays exhaustive.
func dropEntriesFor(room *model.Room, participantID string) bool {
	dropped := false
	for id, e := range room.Queue {
		if e.ParticipantID == participantID {
			delete(room.Queue, id)
			dropped = true
		}
	}
	return dropped
}

func decodeSnapshot(raw []byte) (model.RoomSnapshot, error) {
	var room model.Room
	if err := json.Unmarshal(raw, &room); err != nil {
		return model.RoomSnapshot{}, fmt.Errorf("decode room: %w", err)
	}
	return model.RoomSnapshot{
		Exists: true,
		Room:   &room,
		Queue:  DeriveQueue(room.Participants, room.Queue),
	}, nil
}

// archiveCreate and archiveEnd record room lifecycle in the durable archive.
// Both are best-effort: the archive is reporting, not source of truth.
func (s *RoomService) archiveCreate(ctx context.Context, room *model.Room) {
	if s.repo == nil {
		return
	}
	rec := &repository.RoomRecord{
		Code:      room.Code,
		AdminName: room.AdminName,
		CreatedAt: room.CreatedAt,
	}
	if err := s.repo.Create(ctx, rec); err != nil {
		log.Warn().Err(err).Str("room", room.Code).Msg("failed to archive room creation")
	}
}

func (s *RoomService) archiveEnd(ctx context.Context, code string) {
	if s.repo == nil {
		return
	}
	if err := s.repo.MarkEnded(ctx, code, s.clock.Now().UTC()); err != nil {
		log.Warn().Err(err).Str("room", code).Msg("failed to archive room end")
	}
}
