package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"handraise/internal/service"
)

// RoomHandler exposes the room store over HTTP.
type RoomHandler struct {
	rooms *service.RoomService
}

func NewRoomHandler(rooms *service.RoomService) *RoomHandler {
	return &RoomHandler{rooms: rooms}
}

// CreateRoomRequest is the body for POST /v1/rooms.
type CreateRoomRequest struct {
	AdminName string `json:"adminName"`
}

// Create handles POST /v1/rooms
func (h *RoomHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	code, err := h.rooms.CreateRoom(r.Context(), req.AdminName)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"roomCode": code})
}

// Get handles GET /v1/rooms/{code}: the current snapshot, 404 when gone.
func (h *RoomHandler) Get(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]

	snap, err := h.rooms.Snapshot(r.Context(), code)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, snap)
}

// Delete handles DELETE /v1/rooms/{code}: the admin's "end meeting".
func (h *RoomHandler) Delete(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]

	if err := h.rooms.DeleteRoom(r.Context(), code); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// JoinRequest is the body for POST /v1/rooms/{code}/join.
type JoinRequest struct {
	Name string `json:"name"`
}

// Join handles POST /v1/rooms/{code}/join
func (h *RoomHandler) Join(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]

	var req JoinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id, err := h.rooms.JoinRoom(r.Context(), code, req.Name)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"participantId": id})
}

// LeaveRequest is the body for POST /v1/rooms/{code}/leave.
type LeaveRequest struct {
	ParticipantID string `json:"participantId"`
}

// Leave handles POST /v1/rooms/{code}/leave. Idempotent: leaving a gone
// room or as a gone participant still succeeds, so tab-close cleanup never
// errors.
func (h *RoomHandler) Leave(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]

	var req LeaveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.rooms.LeaveRoom(r.Context(), code, req.ParticipantID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandRequest is the body for PUT /v1/rooms/{code}/participants/{id}/hand.
type HandRequest struct {
	Raised bool `json:"raised"`
}

// SetHand handles PUT /v1/rooms/{code}/participants/{id}/hand
func (h *RoomHandler) SetHand(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	var req HandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.rooms.SetHandRaised(r.Context(), vars["code"], vars["id"], req.Raised); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// RemoveFromQueue handles DELETE /v1/rooms/{code}/queue/{participantId}:
// the admin's "done speaking".
func (h *RoomHandler) RemoveFromQueue(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	if err := h.rooms.RemoveFromQueue(r.Context(), vars["code"], vars["participantId"]); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
