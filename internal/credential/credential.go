// Package credential holds model API keys per client and hands them to a
// single call at a time, so a rejected key can be invalidated explicitly.
package credential

import (
	"context"
	"errors"
	"sync"
)

// ErrNoCredential is returned when a client has no stored key.
var ErrNoCredential = errors.New("no credential")

// Credential is a key scoped to one model call.
type Credential interface {
	// Key returns the API key, or "" when none is available.
	Key() string
	// Invalidate discards the key so the next call must re-authenticate.
	Invalidate(ctx context.Context) error
}

// Store keeps one key per client id.
type Store interface {
	Get(ctx context.Context, clientID string) (string, error)
	Set(ctx context.Context, clientID, key string) error
	Delete(ctx context.Context, clientID string) error
}

// Static is a credential that is not backed by a store, e.g. a key sent
// with the request. Invalidate only forgets it locally.
type Static struct {
	mu  sync.Mutex
	key string
}

// NewStatic wraps key.
func NewStatic(key string) *Static {
	return &Static{key: key}
}

func (s *Static) Key() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.key
}

func (s *Static) Invalidate(ctx context.Context) error {
	s.mu.Lock()
	s.key = ""
	s.mu.Unlock()
	return nil
}

// Lease is a key read from a Store for one client. Invalidating it deletes
// the stored key.
type Lease struct {
	store    Store
	clientID string
	key      string
}

// Acquire reads the client's key. A missing key yields ErrNoCredential.
func Acquire(ctx context.Context, st Store, clientID string) (*Lease, error) {
	key, err := st.Get(ctx, clientID)
	if err != nil {
		return nil, err
	}
	return &Lease{store: st, clientID: clientID, key: key}, nil
}

func (l *Lease) Key() string { return l.key }

func (l *Lease) Invalidate(ctx context.Context) error {
	l.key = ""
	return l.store.Delete(ctx, l.clientID)
}

// MemoryStore keeps keys in process memory.
type MemoryStore struct {
	mu   sync.RWMutex
	keys map[string]string
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{keys: make(map[string]string)}
}

func (s *MemoryStore) Get(ctx context.Context, clientID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key, ok := s.keys[clientID]
	if !ok {
		return "", ErrNoCredential
	}
	return key, nil
}

func (s *MemoryStore) Set(ctx context.Context, clientID, key string) error {
	s.mu.Lock()
	s.keys[clientID] = key
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, clientID string) error {
	s.mu.Lock()
	delete(s.keys, clientID)
	s.mu.Unlock()
	return nil
}
