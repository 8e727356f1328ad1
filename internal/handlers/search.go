package handlers

import (
	"net/http"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var searchWordRegex = regexp.MustCompile(`[a-z0-9]+`)

// stopWords are common words to exclude from search
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true,
	"is": true, "are": true, "was": true, "were": true, "be": true,
	"to": true, "of": true, "in": true, "for": true, "on": true,
	"it": true, "that": true, "this": true, "with": true, "at": true,
	"by": true, "from": true, "as": true, "into": true, "like": true,
}

// SearchResult is one matching message.
type SearchResult struct {
	MessageID string  `json:"id"`
	NodeID    string  `json:"node_id"`
	NodeLabel string  `json:"node_label"`
	Sender    string  `json:"sender"`
	Body      string  `json:"body"`
	CreatedAt int64   `json:"created_at"`
	Score     float64 `json:"score"`
}

// SearchResponse represents the search response.
type SearchResponse struct {
	Query   string         `json:"query"`
	Results []SearchResult `json:"results"`
	Total   int            `json:"total"`
}

// tokenize extracts searchable words from text.
func tokenize(text string) []string {
	lower := strings.ToLower(text)
	words := searchWordRegex.FindAllString(lower, -1)

	seen := make(map[string]bool)
	result := make([]string, 0, len(words))
	for _, w := range words {
		if len(w) >= 2 && !seen[w] && !stopWords[w] {
			seen[w] = true
			result = append(result, w)
		}
	}

	// Limit to 5 tokens
	if len(result) > 5 {
		result = result[:5]
	}

	return result
}

// Search finds messages in a session's chat histories. Results are ranked
// by the share of query words they contain, newest first on ties.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		h.Error(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}
	if len(query) > 100 {
		h.Error(w, http.StatusBadRequest, "query too long (max 100 chars)")
		return
	}

	limit := 20
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = l
		}
	}
	if limit > 100 {
		limit = 100
	}

	var after int64
	if afterStr := r.URL.Query().Get("after"); afterStr != "" {
		if a, err := strconv.ParseInt(afterStr, 10, 64); err == nil {
			after = a
		}
	}

	f, err := h.flow(r)
	if err != nil {
		h.Fail(w, r, err)
		return
	}

	nodeFilter := r.URL.Query().Get("node")
	if nodeFilter != "" {
		if _, ok := f.FindNode(nodeFilter); !ok {
			h.Error(w, http.StatusNotFound, "node not found")
			return
		}
	}

	tokens := tokenize(query)
	results := []SearchResult{}
	if len(tokens) == 0 {
		h.JSON(w, http.StatusOK, SearchResponse{Query: query, Results: results})
		return
	}

	for _, n := range f.ListNodes() {
		if nodeFilter != "" && n.ID != nodeFilter {
			continue
		}
		for _, m := range n.Data.ChatData {
			if after > 0 && m.CreatedAt <= after {
				continue
			}
			score := matchScore(tokens, m.Text())
			if score == 0 {
				continue
			}
			results = append(results, SearchResult{
				MessageID: m.ID,
				NodeID:    n.ID,
				NodeLabel: n.DisplayName(),
				Sender:    m.Sender,
				Body:      truncate(m.Text(), 500),
				CreatedAt: m.CreatedAt,
				Score:     score,
			})
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].CreatedAt > results[j].CreatedAt
	})
	if len(results) > limit {
		results = results[:limit]
	}

	h.JSON(w, http.StatusOK, SearchResponse{
		Query:   query,
		Results: results,
		Total:   len(results),
	})
}

// matchScore is the fraction of tokens present in text.
func matchScore(tokens []string, text string) float64 {
	words := make(map[string]bool)
	for _, w := range searchWordRegex.FindAllString(strings.ToLower(text), -1) {
		words[w] = true
	}
	hits := 0
	for _, t := range tokens {
		if words[t] {
			hits++
		}
	}
	return float64(hits) / float64(len(tokens))
}
