package fetch

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultGitHubAPI is the public GitHub REST endpoint.
const DefaultGitHubAPI = "https://api.github.com"

// RepoRef identifies a file in a GitHub repository.
type RepoRef struct {
	Owner string
	Repo  string
	Path  string
	Ref   string // branch, tag or sha; empty means the default branch
}

// ParseRepoRef accepts "owner/repo/path[@ref]" or a github.com blob URL
// such as "https://github.com/owner/repo/blob/main/README.md".
func ParseRepoRef(reference string) (RepoRef, error) {
	reference = strings.TrimSpace(reference)

	if strings.HasPrefix(reference, "https://") || strings.HasPrefix(reference, "http://") {
		u, err := url.Parse(reference)
		if err != nil || u.Host != "github.com" {
			return RepoRef{}, errInvalidRepo
		}
		parts := strings.Split(strings.Trim(u.Path, "/"), "/")
		// owner/repo/blob/<ref>/<path...>
		if len(parts) < 5 || parts[2] != "blob" {
			return RepoRef{}, errInvalidRepo
		}
		return RepoRef{
			Owner: parts[0],
			Repo:  parts[1],
			Ref:   parts[3],
			Path:  strings.Join(parts[4:], "/"),
		}, nil
	}

	var ref string
	if at := strings.LastIndex(reference, "@"); at >= 0 {
		ref = reference[at+1:]
		reference = reference[:at]
	}
	parts := strings.SplitN(strings.Trim(reference, "/"), "/", 3)
	if len(parts) < 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return RepoRef{}, errInvalidRepo
	}
	return RepoRef{Owner: parts[0], Repo: parts[1], Path: parts[2], Ref: ref}, nil
}

// GitHubFetcher reads raw file contents through the GitHub contents API.
type GitHubFetcher struct {
	client  *http.Client
	baseURL string
	token   string
}

// NewGitHubFetcher creates a fetcher. An empty token makes unauthenticated
// requests, which GitHub rate-limits heavily.
func NewGitHubFetcher(baseURL, token string, timeout time.Duration) *GitHubFetcher {
	if baseURL == "" {
		baseURL = DefaultGitHubAPI
	}
	return &GitHubFetcher{
		client:  newHTTPClient(timeout),
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
	}
}

// FetchData returns the raw contents of the referenced file.
func (f *GitHubFetcher) FetchData(ctx context.Context, reference string) (string, error) {
	ref, err := ParseRepoRef(reference)
	if err != nil {
		return "", fetchErr(reference, err)
	}

	endpoint := f.baseURL + "/repos/" + url.PathEscape(ref.Owner) + "/" + url.PathEscape(ref.Repo) +
		"/contents/" + escapePath(ref.Path)
	if ref.Ref != "" {
		endpoint += "?ref=" + url.QueryEscape(ref.Ref)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fetchErr(reference, err)
	}
	req.Header.Set("Accept", "application/vnd.github.raw+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	req.Header.Set("User-Agent", "lucidflow-fetch/1.0")
	if f.token != "" {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fetchErr(reference, err)
	}
	defer resp.Body.Close()

	body, err := readBody(resp)
	if err != nil {
		return "", fetchErr(reference, err)
	}
	return string(body), nil
}

func escapePath(p string) string {
	segs := strings.Split(p, "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return strings.Join(segs, "/")
}
