package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/interstate-love-song/broker/pkg/mapping"
	"github.com/interstate-love-song/broker/pkg/protocol"
)

func sampleSession() *protocol.Session {
	return &protocol.Session{
		State:      protocol.StateWaitingForGetResourceList,
		Username:   "Euler",
		Password:   "Leonhard",
		ClientName: "client.example.com",
		Resources: mapping.NewResourceList([]mapping.Resource{
			{Name: "Kurt", Hostname: "kurt.godel.edu"},
		}),
	}
}

// storageUnderTest runs the same contract tests against every backend.
func storageUnderTest(t *testing.T) map[string]Storage {
	t.Helper()

	fileStorage, err := NewFileStorage(t.TempDir())
	require.NoError(t, err)

	return map[string]Storage{
		"memory": NewMemoryStorage(),
		"file":   fileStorage,
	}
}

func TestStorageRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	for name, storage := range storageUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, storage.Store(ctx, "id-1", sampleSession()))

			loaded, err := storage.Load(ctx, "id-1")
			require.NoError(t, err)
			assert.Equal(t, sampleSession(), loaded)

			require.NoError(t, storage.Delete(ctx, "id-1"))

			_, err = storage.Load(ctx, "id-1")
			assert.ErrorIs(t, err, ErrSessionNotFound)
		})
	}
}

func TestStorageLoadMissing(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	for name, storage := range storageUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			_, err := storage.Load(ctx, "never-stored")
			assert.ErrorIs(t, err, ErrSessionNotFound)
		})
	}
}

func TestStorageDeleteMissing(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	for name, storage := range storageUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			assert.NoError(t, storage.Delete(ctx, "never-stored"))
		})
	}
}

func TestStorageRejectsEmptyID(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	for name, storage := range storageUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, storage.Store(ctx, "", sampleSession()))
			assert.Error(t, storage.Delete(ctx, ""))
			_, err := storage.Load(ctx, "")
			assert.Error(t, err)
		})
	}
}

func TestStorageRejectsNilSession(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	for name, storage := range storageUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, storage.Store(ctx, "id-1", nil))
		})
	}
}

func TestStorageDeleteExpired(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	for name, storage := range storageUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, storage.Store(ctx, "old", sampleSession()))

			// Everything written so far predates the cutoff.
			require.NoError(t, storage.DeleteExpired(ctx, time.Now().Add(time.Second)))

			_, err := storage.Load(ctx, "old")
			assert.ErrorIs(t, err, ErrSessionNotFound)

			require.NoError(t, storage.Store(ctx, "fresh", sampleSession()))
			require.NoError(t, storage.DeleteExpired(ctx, time.Now().Add(-time.Minute)))

			_, err = storage.Load(ctx, "fresh")
			assert.NoError(t, err)
		})
	}
}

func TestFileStorageSurvivesRestart(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := t.TempDir()

	first, err := NewFileStorage(dir)
	require.NoError(t, err)
	require.NoError(t, first.Store(ctx, "id-1", sampleSession()))
	require.NoError(t, first.Close())

	second, err := NewFileStorage(dir)
	require.NoError(t, err)
	loaded, err := second.Load(ctx, "id-1")
	require.NoError(t, err)
	assert.Equal(t, sampleSession(), loaded)
}

func TestFileStorageHostileIDs(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	storage, err := NewFileStorage(t.TempDir())
	require.NoError(t, err)

	// IDs come from a client-controlled header; path syntax must not escape
	// the data directory.
	id := "../../etc/passwd"
	require.NoError(t, storage.Store(ctx, id, sampleSession()))

	loaded, err := storage.Load(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, sampleSession(), loaded)
	require.NoError(t, storage.Delete(ctx, id))
}

func TestMemoryStorageCount(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	storage := NewMemoryStorage()
	assert.Equal(t, 0, storage.Count())

	require.NoError(t, storage.Store(ctx, "a", sampleSession()))
	require.NoError(t, storage.Store(ctx, "b", sampleSession()))
	assert.Equal(t, 2, storage.Count())

	require.NoError(t, storage.Close())
	assert.Equal(t, 0, storage.Count())
}
