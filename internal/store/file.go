package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// FileStore writes each session to <dir>/<key>.json.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

// NewFileStore creates a filesystem store rooted at dir.
// If dir is empty, defaults to "./data/sessions"
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		dir = "./data/sessions"
	}
	dir = filepath.Clean(dir)

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, persistenceErr("mkdir", dir, err)
	}

	// Check the directory is writeable before accepting sessions
	probe := filepath.Join(dir, fmt.Sprintf(".write_test_%d", os.Getpid()))
	if err := os.WriteFile(probe, []byte("ok"), 0644); err != nil {
		return nil, persistenceErr("write test", dir, err)
	}
	_ = os.Remove(probe)

	return &FileStore{dir: dir}, nil
}

func (s *FileStore) Backend() string { return "file" }

// path maps a key to its file. Keys may not escape the root directory.
func (s *FileStore) path(key string) (string, error) {
	if err := validKey(key); err != nil {
		return "", err
	}
	if strings.ContainsAny(key, `/\`) || strings.Contains(key, "..") {
		return "", fmt.Errorf("%w: invalid key %q", ErrPersistence, key)
	}
	return filepath.Join(s.dir, key+".json"), nil
}

// Save writes data atomically via a temp file and rename.
func (s *FileStore) Save(ctx context.Context, key string, data []byte) error {
	defer observe(s.Backend(), "save", time.Now())

	path, err := s.path(key)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return persistenceErr("save", key, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return persistenceErr("save", key, err)
	}
	return nil
}

// Load reads the file for key. A missing file means no session.
func (s *FileStore) Load(ctx context.Context, key string) ([]byte, error) {
	defer observe(s.Backend(), "load", time.Now())

	path, err := s.path(key)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, persistenceErr("load", key, err)
	}
	return data, nil
}

// Delete removes the file for key.
func (s *FileStore) Delete(ctx context.Context, key string) error {
	defer observe(s.Backend(), "delete", time.Now())

	path, err := s.path(key)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return persistenceErr("delete", key, err)
	}
	return nil
}

// Ping checks the directory is still there.
func (s *FileStore) Ping(ctx context.Context) error {
	if _, err := os.Stat(s.dir); err != nil {
		return persistenceErr("ping", s.dir, err)
	}
	return nil
}

func (s *FileStore) Close() {}
