package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManagerLoadMissingIsNil(t *testing.T) {
	t.Parallel()

	manager := NewManager(NewMemoryStorage(), 0)
	defer manager.Stop()

	sess, err := manager.Load(context.Background(), "never-stored")
	require.NoError(t, err)
	assert.Nil(t, sess)
}

func TestManagerRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	manager := NewManager(NewMemoryStorage(), 0)
	defer manager.Stop()

	require.NoError(t, manager.Store(ctx, "id-1", sampleSession()))

	sess, err := manager.Load(ctx, "id-1")
	require.NoError(t, err)
	assert.Equal(t, sampleSession(), sess)

	require.NoError(t, manager.Delete(ctx, "id-1"))

	sess, err = manager.Load(ctx, "id-1")
	require.NoError(t, err)
	assert.Nil(t, sess)
}

func TestManagerLockSerializes(t *testing.T) {
	t.Parallel()

	manager := NewManager(NewMemoryStorage(), 0)
	defer manager.Stop()

	var mu sync.Mutex
	var order []int

	unlock := manager.Lock("id-1")

	done := make(chan struct{})
	go func() {
		defer close(done)
		u := manager.Lock("id-1")
		defer u()
		mu.Lock()
		order = append(order, 2)
		mu.Unlock()
	}()

	mu.Lock()
	order = append(order, 1)
	mu.Unlock()
	unlock()

	<-done
	assert.Equal(t, []int{1, 2}, order)
}

func TestManagerLockIndependentKeys(t *testing.T) {
	t.Parallel()

	manager := NewManager(NewMemoryStorage(), 0)
	defer manager.Stop()

	unlock := manager.Lock("id-1")
	defer unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		u := manager.Lock("id-2")
		u()
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on a different key blocked")
	}
}

func lockCount(m *Manager) int {
	m.locksMu.Lock()
	defer m.locksMu.Unlock()
	return len(m.locks)
}

func TestManagerLockEntriesAreReleased(t *testing.T) {
	t.Parallel()

	manager := NewManager(NewMemoryStorage(), 0)
	defer manager.Stop()

	unlock := manager.Lock("id-1")
	assert.Equal(t, 1, lockCount(manager))
	unlock()
	assert.Equal(t, 0, lockCount(manager))

	// One-shot ids, as every probe request mints, leave nothing behind.
	for i := 0; i < 100; i++ {
		u := manager.Lock(fmt.Sprintf("probe-%d", i))
		u()
	}
	assert.Equal(t, 0, lockCount(manager))
}

func TestManagerLockEntrySurvivesWaiters(t *testing.T) {
	t.Parallel()

	manager := NewManager(NewMemoryStorage(), 0)
	defer manager.Stop()

	unlock := manager.Lock("id-1")

	acquired := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		u := manager.Lock("id-1")
		close(acquired)
		u()
	}()

	// Wait for the waiter to register so the entry must survive the first
	// unlock.
	assert.Eventually(t, func() bool {
		manager.locksMu.Lock()
		defer manager.locksMu.Unlock()
		entry, ok := manager.locks["id-1"]
		return ok && entry.refs == 2
	}, time.Second, time.Millisecond)
	unlock()
	<-acquired
	<-done

	assert.Equal(t, 0, lockCount(manager))
}

func TestManagerCleanupRemovesExpired(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	storage := NewMemoryStorage()
	manager := NewManager(storage, 20*time.Millisecond)
	defer manager.Stop()

	require.NoError(t, manager.Store(ctx, "id-1", sampleSession()))

	assert.Eventually(t, func() bool {
		sess, err := manager.Load(ctx, "id-1")
		return err == nil && sess == nil
	}, time.Second, 10*time.Millisecond)
}
