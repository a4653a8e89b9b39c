package service

import (
	"errors"
	"fmt"

	"handraise/internal/kv"
)

var (
	// ErrRoomNotFound: the room is gone (or never existed). Join and hand
	// toggles surface it; leave/remove style cleanup swallows it.
	ErrRoomNotFound = errors.New("room not found")

	// ErrParticipantNotFound: the room exists but the participant id does
	// not resolve in it.
	ErrParticipantNotFound = errors.New("participant not found")

	// ErrValidation: malformed room code or empty name, rejected before any
	// store call.
	ErrValidation = errors.New("validation failed")
)

// StorageError wraps a backing-store failure (unreachable, timed out). The
// service never retries these; callers own the retry messaging.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage failure during %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// storageErr classifies a kv error: absence is domain-level NotFound,
// anything else is a StorageError.
func storageErr(op string, err error) error {
	if errors.Is(err, kv.ErrNotFound) {
		return ErrRoomNotFound
	}
	return &StorageError{Op: op, Err: err}
}

func validationErr(msg string) error {
	return fmt.Errorf("%w: %s", ErrValidation, msg)
}
