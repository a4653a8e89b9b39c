// Package kv defines the key-value store boundary the room service runs on:
// atomic set/get/remove/update at a path plus a change subscription that
// delivers the full value on every write.
package kv

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when no value exists at the path.
var ErrNotFound = errors.New("kv: not found")

// ErrAbortUpdate can be returned from an UpdateFunc to cancel the update
// without surfacing an error from Update.
var ErrAbortUpdate = errors.New("kv: update aborted")

// UpdateFunc transforms the current raw value at a path. cur is nil when the
// path is absent. Returning (nil, nil) deletes the path; returning new bytes
// replaces it. The function may run more than once under contention and must
// be side-effect free.
type UpdateFunc func(cur []byte) ([]byte, error)

// Event is one change notification. Value is the full value after the write;
// Deleted marks the tombstone delivered when the path is removed.
type Event struct {
	Path    string
	Value   []byte
	Deleted bool
}

// Subscription is a cancellable stream of Events for one path. Close is
// idempotent and safe after the path has been deleted; Events is closed once
// no further notifications will arrive.
type Subscription interface {
	Events() <-chan Event
	Close() error
}

// Store is the persistence contract. All operations honor ctx cancellation
// and deadlines; implementations translate their own timeouts into plain
// errors for the service layer to classify.
type Store interface {
	Get(ctx context.Context, path string) ([]byte, error)
	Exists(ctx context.Context, path string) (bool, error)
	Set(ctx context.Context, path string, value []byte) error
	Update(ctx context.Context, path string, fn UpdateFunc) error
	Delete(ctx context.Context, path string) error
	Subscribe(ctx context.Context, path string) (Subscription, error)
}
