package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// DefaultProxy is the CORS-style proxy used when none is configured.
const DefaultProxy = "https://api.allorigins.win/get?url="

// WebFetcher retrieves web pages, optionally through a proxy that answers
// with a JSON envelope {"contents": "..."}.
type WebFetcher struct {
	client    *http.Client
	proxy     string
	cacheBust bool
	now       func() time.Time
}

// NewWebFetcher creates a fetcher. An empty proxy fetches pages directly.
// With cacheBust set, a cachebuster timestamp is appended to proxied URLs.
func NewWebFetcher(proxy string, cacheBust bool, timeout time.Duration) *WebFetcher {
	return &WebFetcher{
		client:    newHTTPClient(timeout),
		proxy:     proxy,
		cacheBust: cacheBust,
		now:       time.Now,
	}
}

type proxyEnvelope struct {
	Contents *string `json:"contents"`
	Status   struct {
		HTTPCode int `json:"http_code"`
	} `json:"status"`
}

// FetchData returns the page body for pageURL.
func (f *WebFetcher) FetchData(ctx context.Context, pageURL string) (string, error) {
	target, err := url.Parse(pageURL)
	if err != nil || (target.Scheme != "http" && target.Scheme != "https") || target.Host == "" {
		return "", fetchErr(pageURL, errInvalidURL)
	}

	if f.proxy == "" {
		body, err := f.get(ctx, pageURL)
		if err != nil {
			return "", fetchErr(pageURL, err)
		}
		return string(body), nil
	}

	reqURL := f.proxy + url.QueryEscape(pageURL)
	if f.cacheBust {
		reqURL += "&cachebuster=" + strconv.FormatInt(f.now().UnixMilli(), 10)
	}

	body, err := f.get(ctx, reqURL)
	if err != nil {
		return "", fetchErr(pageURL, err)
	}

	var env proxyEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return "", fetchErr(pageURL, err)
	}
	if env.Contents == nil {
		return "", fetchErr(pageURL, errNoContents)
	}
	if code := env.Status.HTTPCode; code >= 400 {
		return "", fetchErr(pageURL, fmt.Errorf("upstream status %d", code))
	}
	return *env.Contents, nil
}

func (f *WebFetcher) get(ctx context.Context, reqURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "lucidflow-fetch/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	return readBody(resp)
}
