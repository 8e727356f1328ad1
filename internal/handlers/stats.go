package handlers

import (
	"net/http"
	"sort"
	"strconv"
	"time"
)

// NodeStats summarizes one node's history.
type NodeStats struct {
	ID           string `json:"id"`
	Label        string `json:"label"`
	MessageCount int    `json:"message_count"`
	Live         bool   `json:"live"`
}

// MessagePreview is a shortened recent message.
type MessagePreview struct {
	ID        string `json:"id"`
	NodeID    string `json:"node_id"`
	NodeLabel string `json:"node_label"`
	Sender    string `json:"sender"`
	Body      string `json:"body"`
	CreatedAt int64  `json:"created_at"`
}

// StatsResponse is the session overview.
type StatsResponse struct {
	Key            string           `json:"key"`
	TotalNodes     int              `json:"total_nodes"`
	TotalEdges     int              `json:"total_edges"`
	TotalMessages  int              `json:"total_messages"`
	LiveNodes      int              `json:"live_nodes"`
	LastActivity   string           `json:"last_activity,omitempty"`
	TopNodes       []NodeStats      `json:"top_nodes"`
	RecentMessages []MessagePreview `json:"recent_messages"`
}

const statsListSize = 5

// Stats returns counts and recent activity for a session.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	f, err := h.flow(r)
	if err != nil {
		h.Fail(w, r, err)
		return
	}

	nodes := f.ListNodes()
	resp := StatsResponse{
		Key:            f.Key(),
		TotalNodes:     len(nodes),
		TotalEdges:     len(f.ListEdges()),
		TopNodes:       make([]NodeStats, 0, len(nodes)),
		RecentMessages: []MessagePreview{},
	}

	var latest int64
	var recent []MessagePreview
	for _, n := range nodes {
		if n.IsLive() {
			resp.LiveNodes++
		}
		resp.TotalMessages += len(n.Data.ChatData)
		resp.TopNodes = append(resp.TopNodes, NodeStats{
			ID:           n.ID,
			Label:        n.DisplayName(),
			MessageCount: len(n.Data.ChatData),
			Live:         n.IsLive(),
		})

		for _, m := range n.Data.ChatData {
			if m.CreatedAt > latest {
				latest = m.CreatedAt
			}
			recent = append(recent, MessagePreview{
				ID:        m.ID,
				NodeID:    n.ID,
				NodeLabel: n.DisplayName(),
				Sender:    m.Sender,
				Body:      truncate(m.Text(), 200),
				CreatedAt: m.CreatedAt,
			})
		}
	}

	if latest > 0 {
		resp.LastActivity = formatTimeAgo(time.UnixMilli(latest))
	}

	sort.SliceStable(resp.TopNodes, func(i, j int) bool {
		return resp.TopNodes[i].MessageCount > resp.TopNodes[j].MessageCount
	})
	if len(resp.TopNodes) > statsListSize {
		resp.TopNodes = resp.TopNodes[:statsListSize]
	}

	// Newest first; ULIDs break ties within a millisecond
	sort.Slice(recent, func(i, j int) bool {
		if recent[i].CreatedAt != recent[j].CreatedAt {
			return recent[i].CreatedAt > recent[j].CreatedAt
		}
		return recent[i].ID > recent[j].ID
	})
	if len(recent) > statsListSize {
		recent = recent[:statsListSize]
	}
	if len(recent) > 0 {
		resp.RecentMessages = recent
	}

	h.JSON(w, http.StatusOK, resp)
}

// truncate shortens s to at most n runes, marking the cut with "...".
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-3]) + "..."
}

// formatTimeAgo formats a time as a human-readable "X ago" string.
func formatTimeAgo(t time.Time) string {
	diff := time.Since(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return plural(int(diff.Minutes()), "minute") + " ago"
	case diff < 24*time.Hour:
		return plural(int(diff.Hours()), "hour") + " ago"
	default:
		return plural(int(diff.Hours()/24), "day") + " ago"
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return strconv.Itoa(n) + " " + unit + "s"
}
