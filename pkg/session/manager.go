package session

import (
	"context"
	"sync"
	"time"

	"github.com/interstate-love-song/broker/pkg/logger"
	"github.com/interstate-love-song/broker/pkg/protocol"
)

// Manager wraps a Storage with per-key locking and TTL cleanup.
//
// The per-key mutex gives the at-most-once-at-a-time read-modify-write the
// endpoint needs; a well-behaved PCoIP client serializes its own requests,
// so contention only happens with misbehaving or duplicate clients.
type Manager struct {
	storage Storage
	ttl     time.Duration
	locksMu sync.Mutex
	locks   map[string]*lockEntry
	stopCh  chan struct{}
}

// lockEntry is a per-key mutex with the number of holders and waiters. The
// entry is removed from the map when the count drops to zero, so one-shot
// keys (every probe mints a fresh id) don't accumulate.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// NewManager creates a session manager over the given storage. When ttl is
// positive a cleanup worker removes sessions that haven't been written
// within the TTL.
func NewManager(storage Storage, ttl time.Duration) *Manager {
	m := &Manager{
		storage: storage,
		ttl:     ttl,
		locks:   make(map[string]*lockEntry),
		stopCh:  make(chan struct{}),
	}
	if ttl > 0 {
		go m.cleanupRoutine()
	}
	return m
}

func (m *Manager) cleanupRoutine() {
	ticker := time.NewTicker(m.ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), m.ttl/2)
			if err := m.storage.DeleteExpired(ctx, time.Now().Add(-m.ttl)); err != nil {
				logger.Warnw("session cleanup failed", "error", err)
			}
			cancel()
		case <-m.stopCh:
			return
		}
	}
}

// Lock acquires the mutex for the given session id and returns the unlock
// function.
func (m *Manager) Lock(id string) func() {
	m.locksMu.Lock()
	entry, ok := m.locks[id]
	if !ok {
		entry = &lockEntry{}
		m.locks[id] = entry
	}
	entry.refs++
	m.locksMu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()

		m.locksMu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(m.locks, id)
		}
		m.locksMu.Unlock()
	}
}

// Load retrieves the session stored under id, or nil when there is none.
func (m *Manager) Load(ctx context.Context, id string) (*protocol.Session, error) {
	sess, err := m.storage.Load(ctx, id)
	if err == ErrSessionNotFound {
		return nil, nil
	}
	return sess, err
}

// Store writes the session through to the backend.
func (m *Manager) Store(ctx context.Context, id string, sess *protocol.Session) error {
	return m.storage.Store(ctx, id, sess)
}

// Delete removes the session stored under id. The lock entry takes care of
// itself: it leaves the map when its last holder unlocks.
func (m *Manager) Delete(ctx context.Context, id string) error {
	return m.storage.Delete(ctx, id)
}

// Stop stops the cleanup worker and closes the backend.
func (m *Manager) Stop() error {
	close(m.stopCh)
	return m.storage.Close()
}
