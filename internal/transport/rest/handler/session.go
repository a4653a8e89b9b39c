package handler

import (
	"encoding/json"
	"net/http"

	"handraise/internal/model"
	"handraise/internal/service"
)

// SessionHandler exposes session reconciliation.
type SessionHandler struct {
	sessions *service.SessionService
}

func NewSessionHandler(sessions *service.SessionService) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

// ReconcileRequest carries the client's cached session plus where the
// client currently is.
type ReconcileRequest struct {
	Session    *model.Session `json:"session"`
	OnRoomPage bool           `json:"onRoomPage"`
}

// Reconcile handles POST /v1/sessions/reconcile. It never fails with a
// service error: unusable state is reported as a discard decision.
func (h *SessionHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	var req ReconcileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result := h.sessions.Reconcile(r.Context(), req.Session, req.OnRoomPage)
	writeJSON(w, http.StatusOK, result)
}
