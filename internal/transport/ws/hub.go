package ws

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rs/zerolog/log"

	"handraise/internal/model"
	"handraise/internal/service"
)

// MessageType defines the type of WebSocket message.
type MessageType string

const (
	// MsgRoomSnapshot carries the full room state plus the derived queue.
	MsgRoomSnapshot MessageType = "room_snapshot"
	// MsgRoomGone is the absent-room notification sent once after the room
	// has been deleted; the connection is closed right after.
	MsgRoomGone MessageType = "room_gone"
)

// Message is the WebSocket envelope format.
type Message struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// SnapshotPayload is what each connection receives on every room change.
// QueuePosition is the 1-based position of the connection's participant, 0
// when they hold no live queue entry (or the connection is the admin's).
type SnapshotPayload struct {
	model.RoomSnapshot
	QueuePosition int `json:"queuePosition,omitempty"`
}

// Connection represents one WebSocket subscriber to a room.
type Connection struct {
	RoomCode      string
	ParticipantID string // empty for the admin's connection
	Send          chan []byte
}

// Hub bridges room-store subscriptions to WebSocket connections: one store
// subscription per room with at least one connection, fanned out to all of
// them.
type Hub struct {
	rooms *service.RoomService

	mu      sync.Mutex
	fanouts map[string]*fanout
}

type fanout struct {
	code  string
	sub   *service.RoomSubscription
	conns map[*Connection]struct{}
}

func NewHub(rooms *service.RoomService) *Hub {
	return &Hub{
		rooms:   rooms,
		fanouts: make(map[string]*fanout),
	}
}

// Register attaches a connection to its room's fanout, opening the store
// subscription if this is the room's first connection. The connection
// receives the current snapshot immediately.
//
// Every deliver and every close of a Send channel happens under h.mu, so a
// registration racing a room deletion can never send on a channel that
// disconnectRoom already closed.
func (h *Hub) Register(ctx context.Context, conn *Connection) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	f, ok := h.fanouts[conn.RoomCode]
	if !ok {
		sub, err := h.rooms.Subscribe(ctx, conn.RoomCode)
		if err != nil {
			return err
		}
		f = &fanout{
			code:  conn.RoomCode,
			sub:   sub,
			conns: make(map[*Connection]struct{}),
		}
		h.fanouts[conn.RoomCode] = f
		go h.run(f)
		f.conns[conn] = struct{}{}
		return nil
	}

	// Late joiners missed the subscription's initial snapshot; read one for
	// them while still holding the lock, so the catch-up delivery cannot
	// interleave with fanout deliveries or room teardown.
	snap, err := h.rooms.Snapshot(ctx, conn.RoomCode)
	if err == service.ErrRoomNotFound {
		snap = model.RoomSnapshot{Exists: false}
	} else if err != nil {
		return err
	}
	f.conns[conn] = struct{}{}
	conn.deliver(encodeFor(conn, snap))
	return nil
}

// Unregister detaches a connection; the room's store subscription is closed
// when its last connection goes. Safe to call twice.
func (h *Hub) Unregister(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	f, ok := h.fanouts[conn.RoomCode]
	if !ok {
		return
	}
	if _, ok := f.conns[conn]; !ok {
		return
	}
	delete(f.conns, conn)
	close(conn.Send)
	if len(f.conns) == 0 {
		delete(h.fanouts, f.code)
		_ = f.sub.Close()
	}
}

// run forwards each snapshot from the store subscription to every attached
// connection, then tears the room down once the absent-room snapshot (or
// stream end) arrives.
func (h *Hub) run(f *fanout) {
	for snap := range f.sub.Snapshots() {
		if !snap.Exists {
			h.disconnectRoom(f)
			return
		}
		h.mu.Lock()
		for conn := range f.conns {
			conn.deliver(encodeFor(conn, snap))
		}
		h.mu.Unlock()
	}
	h.disconnectRoom(f)
}

// disconnectRoom sends the room-gone notice to every connection and drops
// the fanout.
func (h *Hub) disconnectRoom(f *fanout) {
	gone, _ := json.Marshal(Message{Type: MsgRoomGone})

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.fanouts[f.code] != f {
		return
	}
	delete(h.fanouts, f.code)
	_ = f.sub.Close()
	for conn := range f.conns {
		conn.deliver(gone)
		close(conn.Send)
	}
	f.conns = make(map[*Connection]struct{})
	log.Info().Str("room", f.code).Msg("room stream closed")
}

func (c *Connection) deliver(data []byte) {
	select {
	case c.Send <- data:
	default:
		// Slow consumer; the next full snapshot supersedes this one.
	}
}

// encodeFor renders a snapshot for one connection, with its own queue
// position resolved.
func encodeFor(conn *Connection, snap model.RoomSnapshot) []byte {
	payload := SnapshotPayload{RoomSnapshot: snap}
	if conn.ParticipantID != "" {
		if pos, ok := service.QueuePositionOf(conn.ParticipantID, snap.Queue); ok {
			payload.QueuePosition = pos
		}
	}

	msgType := MsgRoomSnapshot
	if !snap.Exists {
		msgType = MsgRoomGone
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("room", conn.RoomCode).Msg("failed to encode snapshot")
		return nil
	}
	data, _ := json.Marshal(Message{Type: msgType, Payload: raw})
	return data
}
