package llm

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Mock answers every request with "Mock response to: <text>". It is the
// default provider in development.
type Mock struct {
	// RequireKey makes requests without an API key fail with ErrAuth.
	RequireKey bool
	// Delay simulates provider latency.
	Delay time.Duration

	mu   sync.Mutex
	last Request
}

// NewMock creates a mock generator.
func NewMock() *Mock {
	return &Mock{}
}

func (m *Mock) Name() string { return "mock" }

// Generate echoes the message.
func (m *Mock) Generate(ctx context.Context, req Request) (string, error) {
	if m.RequireKey && req.APIKey == "" {
		return "", fmt.Errorf("%w: no api key", ErrAuth)
	}
	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	m.mu.Lock()
	m.last = req
	m.mu.Unlock()
	return "Mock response to: " + req.Message, nil
}

// LastRequest returns the most recent request the mock answered.
func (m *Mock) LastRequest() Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}
