// Package chat turns a node's upstream graph into a linear, strictly
// alternating turn sequence for a generative model.
package chat

import (
	"sort"
	"strings"

	"github.com/eldtechnologies/lucidflow/internal/models"
)

// RoleFor maps a free-form sender to a turn role. "user" and "input" (any
// case, surrounding space ignored) are the user; everything else is the
// model.
func RoleFor(sender string) models.Role {
	switch strings.ToLower(strings.TrimSpace(sender)) {
	case "user", "input":
		return models.RoleUser
	}
	return models.RoleModel
}

// SortByID returns a copy of msgs ordered by message id.
func SortByID(msgs []models.Message) []models.Message {
	out := make([]models.Message, len(msgs))
	copy(out, msgs)
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// FormatHistory converts messages into one turn each, in id order, as seen
// by consumerID. A message disabled for consumerID keeps its turn but
// contributes empty text, so the role sequence does not depend on who is
// asking.
func FormatHistory(msgs []models.Message, consumerID string) []models.ChatTurn {
	sorted := SortByID(msgs)
	turns := make([]models.ChatTurn, 0, len(sorted))
	for _, m := range sorted {
		text := ""
		if m.EnabledFor(consumerID) {
			text = m.Text()
		}
		turns = append(turns, models.NewTurn(RoleFor(m.Sender), text))
	}
	return turns
}

// SourceMarker heads a node's section in a merged turn.
func SourceMarker(n models.Node) string {
	return "[source: " + n.DisplayName() + " (" + n.ID + ")]"
}

// formatSection renders a node's enabled messages under its source marker.
// Disabled and empty messages are left out; a node with nothing to say
// yields "".
func formatSection(n models.Node, msgs []models.Message, consumerID string) string {
	var lines []string
	for _, m := range SortByID(msgs) {
		if !m.EnabledFor(consumerID) || m.Text() == "" {
			continue
		}
		lines = append(lines, m.Text())
	}
	if len(lines) == 0 {
		return ""
	}
	return SourceMarker(n) + "\n" + strings.Join(lines, "\n")
}
