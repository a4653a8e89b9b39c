package handler

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"handraise/internal/service"
)

// handleServiceError is the single place service errors become HTTP status
// codes.
func handleServiceError(w http.ResponseWriter, err error) {
	var storageErr *service.StorageError
	switch {
	case errors.Is(err, service.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrRoomNotFound):
		writeError(w, http.StatusNotFound, "room no longer exists")
	case errors.Is(err, service.ErrParticipantNotFound):
		writeError(w, http.StatusNotFound, "participant not found")
	case errors.As(err, &storageErr):
		writeError(w, http.StatusServiceUnavailable, "storage unavailable, please retry")
	default:
		log.Error().Err(err).Msg("unhandled service error")
		writeError(w, http.StatusInternalServerError, "unexpected error")
	}
}
