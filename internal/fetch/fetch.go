// Package fetch refreshes live node content from external sources.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// ErrFetch wraps every failure to retrieve external content.
var ErrFetch = errors.New("fetch failed")

var (
	errInvalidURL  = errors.New("reference is not an http(s) URL")
	errNoContents  = errors.New("proxy response has no contents")
	errInvalidRepo = errors.New("reference must be owner/repo/path[@ref]")
)

// DefaultTimeout bounds a single fetch when the caller gives none.
const DefaultTimeout = 15 * time.Second

// maxBody caps how much of a response is read into a node.
const maxBody = 5 << 20

// DataFetcher returns fresh text for a source reference (a URL or a
// repository path descriptor).
type DataFetcher interface {
	FetchData(ctx context.Context, reference string) (string, error)
}

// FetcherFunc adapts a function to DataFetcher.
type FetcherFunc func(ctx context.Context, reference string) (string, error)

func (f FetcherFunc) FetchData(ctx context.Context, reference string) (string, error) {
	return f(ctx, reference)
}

func fetchErr(reference string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrFetch, reference, err)
}

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

// readBody reads at most maxBody bytes and rejects non-2xx responses.
func readBody(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return body, nil
}

// Registry maps agent subtypes ("webpage", "github") to fetchers.
type Registry struct {
	mu       sync.RWMutex
	fetchers map[string]DataFetcher
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{fetchers: make(map[string]DataFetcher)}
}

// Register binds subtype to f, replacing any previous binding.
func (r *Registry) Register(subtype string, f DataFetcher) {
	r.mu.Lock()
	r.fetchers[subtype] = f
	r.mu.Unlock()
}

// Lookup returns the fetcher for subtype. A nil registry has none.
func (r *Registry) Lookup(subtype string) (DataFetcher, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.fetchers[subtype]
	return f, ok
}
