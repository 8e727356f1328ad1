package graph

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/lucidflow/internal/events"
	"github.com/eldtechnologies/lucidflow/internal/store"
)

// Manager hands out one Flow per session key, loading each from the store
// the first time it is requested.
type Manager struct {
	store    store.SessionStore
	bus      *events.Bus
	logger   zerolog.Logger
	debounce time.Duration

	mu    sync.Mutex
	flows map[string]*Flow
}

// NewManager creates a manager over st.
func NewManager(st store.SessionStore, bus *events.Bus, logger zerolog.Logger, debounce time.Duration) *Manager {
	return &Manager{
		store:    st,
		bus:      bus,
		logger:   logger,
		debounce: debounce,
		flows:    make(map[string]*Flow),
	}
}

// Flow returns the flow for key, loading it on first access. A key with
// nothing stored yields an empty flow.
func (m *Manager) Flow(ctx context.Context, key string) (*Flow, error) {
	m.mu.Lock()
	f, ok := m.flows[key]
	m.mu.Unlock()
	if ok {
		return f, nil
	}

	// Load without the lock so a slow store only delays this session.
	f = NewFlow(key, m.store, m.bus, m.logger, m.debounce)
	found, err := f.Load(ctx)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.flows[key]; ok {
		return existing, nil
	}
	m.logger.Debug().Str("session", key).Bool("restored", found).Msg("Session opened")
	m.flows[key] = f
	return f, nil
}

// Reload discards unsaved in-memory state for key and re-reads the store.
// When nothing is stored any more the flow is emptied, so a session
// deleted by another process stops serving its old graph.
func (m *Manager) Reload(ctx context.Context, key string) (*Flow, bool, error) {
	f, err := m.Flow(ctx, key)
	if err != nil {
		return nil, false, err
	}
	found, err := f.Load(ctx)
	if err != nil {
		return f, false, err
	}
	if !found {
		f.reset()
	}
	return f, found, nil
}

// Forget drops the cached flow for key after flushing it.
func (m *Manager) Forget(ctx context.Context, key string) error {
	m.mu.Lock()
	f, ok := m.flows[key]
	delete(m.flows, key)
	m.mu.Unlock()

	if !ok {
		return nil
	}
	return f.Close(ctx)
}

// Sessions lists the keys of the flows currently held in memory.
func (m *Manager) Sessions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys := make([]string, 0, len(m.flows))
	for k := range m.flows {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Close flushes every open flow. The first error is returned after all
// flows have been attempted.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	flows := make([]*Flow, 0, len(m.flows))
	for _, f := range m.flows {
		flows = append(flows, f)
	}
	m.mu.Unlock()

	var first error
	for _, f := range flows {
		if err := f.Close(ctx); err != nil {
			m.logger.Error().Err(err).Str("session", f.Key()).Msg("Failed to flush session")
			if first == nil {
				first = err
			}
		}
	}
	return first
}
