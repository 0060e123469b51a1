package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/interstate-love-song/broker/pkg/protocol"
)

// MemoryStorage implements the Storage interface using an in-memory
// sync.Map. This is the default backend for single-instance deployments.
type MemoryStorage struct {
	sessions sync.Map
}

type memoryRecord struct {
	session *protocol.Session
	updated time.Time
}

// NewMemoryStorage creates a new in-memory storage backend.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

// Store saves a session to memory.
func (s *MemoryStorage) Store(_ context.Context, id string, sess *protocol.Session) error {
	if id == "" {
		return fmt.Errorf("cannot store session with empty ID")
	}
	if sess == nil {
		return fmt.Errorf("cannot store nil session")
	}

	s.sessions.Store(id, &memoryRecord{session: sess, updated: time.Now()})
	return nil
}

// Load retrieves a session from memory.
func (s *MemoryStorage) Load(_ context.Context, id string) (*protocol.Session, error) {
	if id == "" {
		return nil, fmt.Errorf("cannot load session with empty ID")
	}

	val, ok := s.sessions.Load(id)
	if !ok {
		return nil, ErrSessionNotFound
	}

	return val.(*memoryRecord).session, nil
}

// Delete removes a session from memory.
func (s *MemoryStorage) Delete(_ context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("cannot delete session with empty ID")
	}

	s.sessions.Delete(id)
	return nil
}

// DeleteExpired removes all sessions that haven't been written since the
// given time.
func (s *MemoryStorage) DeleteExpired(ctx context.Context, before time.Time) error {
	var toDelete []string

	s.sessions.Range(func(key, val any) bool {
		select {
		case <-ctx.Done():
			return false
		default:
		}

		if val.(*memoryRecord).updated.Before(before) {
			toDelete = append(toDelete, key.(string))
		}
		return true
	})

	for _, id := range toDelete {
		s.sessions.Delete(id)
	}

	return nil
}

// Close clears all sessions.
func (s *MemoryStorage) Close() error {
	s.sessions.Range(func(key, _ any) bool {
		s.sessions.Delete(key)
		return true
	})
	return nil
}

// Count returns the number of stored sessions. This is a helper not part of
// the Storage interface.
func (s *MemoryStorage) Count() int {
	count := 0
	s.sessions.Range(func(_, _ any) bool {
		count++
		return true
	})
	return count
}
