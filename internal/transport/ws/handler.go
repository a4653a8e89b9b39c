package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"handraise/internal/roomcode"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler upgrades room-stream requests and wires them into the hub.
type Handler struct {
	hub *Hub
}

func NewHandler(hub *Hub) *Handler {
	return &Handler{hub: hub}
}

// RoomStream handles GET /v1/ws/rooms/{code}. An optional participantId
// query parameter personalizes snapshots with that participant's queue
// position; the admin connects without one.
func (h *Handler) RoomStream(w http.ResponseWriter, r *http.Request) {
	code := roomcode.Normalize(mux.Vars(r)["code"])
	if !roomcode.ValidJoinCode(code) {
		http.Error(w, "invalid room code", http.StatusBadRequest)
		return
	}
	participantID := r.URL.Query().Get("participantId")

	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	conn := &Connection{
		RoomCode:      code,
		ParticipantID: participantID,
		Send:          make(chan []byte, 256),
	}

	// The request context dies when this handler returns, but the stream
	// outlives it; the hub owns subscription lifetime via Unregister.
	if err := h.hub.Register(context.Background(), conn); err != nil {
		log.Warn().Err(err).Str("room", code).Msg("room stream registration failed")
		_ = wsConn.Close()
		return
	}

	log.Info().Str("room", code).Str("participant", participantID).Msg("room stream opened")

	go h.writePump(wsConn, conn)
	go h.readPump(wsConn, conn)
}

func (h *Handler) readPump(wsConn *websocket.Conn, conn *Connection) {
	defer func() {
		h.hub.Unregister(conn)
		wsConn.Close()
	}()

	wsConn.SetReadLimit(maxMessageSize)
	wsConn.SetReadDeadline(time.Now().Add(pongWait))
	wsConn.SetPongHandler(func(string) error {
		wsConn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		// The stream is one-way; reads only surface disconnects and pongs.
		if _, _, err := wsConn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Debug().Err(err).Str("room", conn.RoomCode).Msg("websocket read error")
			}
			break
		}
	}
}

func (h *Handler) writePump(wsConn *websocket.Conn, conn *Connection) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		wsConn.Close()
	}()

	for {
		select {
		case message, ok := <-conn.Send:
			wsConn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				wsConn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := wsConn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			wsConn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := wsConn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
