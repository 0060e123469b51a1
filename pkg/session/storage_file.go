package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/interstate-love-song/broker/pkg/protocol"
)

const fileSuffix = ".json"

// FileStorage implements the Storage interface with one JSON blob per
// session under a data directory, so sessions survive a broker restart.
//
// Session IDs can come from a client-controlled header, so filenames are
// derived from a hash of the id rather than the id itself. Blobs contain
// credentials while a handshake is in flight and are written 0600.
type FileStorage struct {
	dir string
}

// NewFileStorage creates a file storage backend rooted at dir, creating the
// directory if needed.
func NewFileStorage(dir string) (*FileStorage, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}
	return &FileStorage{dir: dir}, nil
}

func (s *FileStorage) path(id string) string {
	sum := sha256.Sum256([]byte(id))
	return filepath.Join(s.dir, hex.EncodeToString(sum[:])+fileSuffix)
}

// Store writes the session blob to disk.
func (s *FileStorage) Store(_ context.Context, id string, sess *protocol.Session) error {
	if id == "" {
		return fmt.Errorf("cannot store session with empty ID")
	}
	if sess == nil {
		return fmt.Errorf("cannot store nil session")
	}

	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	path := s.path(id)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	return nil
}

// Load reads the session blob from disk.
func (s *FileStorage) Load(_ context.Context, id string) (*protocol.Session, error) {
	if id == "" {
		return nil, fmt.Errorf("cannot load session with empty ID")
	}

	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	var sess protocol.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return &sess, nil
}

// Delete removes the session blob. A missing blob is not an error.
func (s *FileStorage) Delete(_ context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("cannot delete session with empty ID")
	}

	if err := os.Remove(s.path(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete session file: %w", err)
	}
	return nil
}

// DeleteExpired removes session blobs whose last write predates the given
// time, judged by file modification time.
func (s *FileStorage) DeleteExpired(ctx context.Context, before time.Time) error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("failed to list session directory: %w", err)
	}

	for _, entry := range entries {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if entry.IsDir() || !strings.HasSuffix(entry.Name(), fileSuffix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(before) {
			_ = os.Remove(filepath.Join(s.dir, entry.Name()))
		}
	}
	return nil
}

// Close is a no-op for file storage; blobs are left for the next start.
func (s *FileStorage) Close() error {
	return nil
}
