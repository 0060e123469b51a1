// Package session provides the per-client session store with pluggable
// storage backends. The protocol value stored under a key is the entire
// protocol session; the store is the only shared mutable resource in the
// broker.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/interstate-love-song/broker/pkg/protocol"
)

// ErrSessionNotFound is returned when a session cannot be found.
var ErrSessionNotFound = errors.New("session not found")

// Storage defines the minimal interface for session storage backends. It is
// a keyed blob store with automatic write-through; expiry is the backend's
// concern, not the protocol's.
type Storage interface {
	// Store creates or updates the session under the given id, overwriting
	// any previous value.
	Store(ctx context.Context, id string, sess *protocol.Session) error

	// Load retrieves the session under the given id.
	// Returns ErrSessionNotFound if the session doesn't exist.
	Load(ctx context.Context, id string) (*protocol.Session, error)

	// Delete removes the session under the given id. It is not an error if
	// the session doesn't exist.
	Delete(ctx context.Context, id string) error

	// DeleteExpired removes all sessions that haven't been written since the
	// given time. This is used by the cleanup routine to remove stale
	// sessions.
	DeleteExpired(ctx context.Context, before time.Time) error

	// Close performs cleanup of the storage backend.
	Close() error
}
