package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/lucidflow/internal/fetch"
	"github.com/eldtechnologies/lucidflow/internal/graph"
	"github.com/eldtechnologies/lucidflow/internal/ids"
	"github.com/eldtechnologies/lucidflow/internal/metrics"
	"github.com/eldtechnologies/lucidflow/internal/models"
)

// Mode selects how upstream nodes are rendered into the context.
type Mode string

const (
	// ModeTurns emits one turn per upstream message.
	ModeTurns Mode = "turns"
	// ModeMerged folds every upstream node into one user turn, each
	// section headed by a source marker.
	ModeMerged Mode = "merged"
)

// ParseMode accepts "turns" or "merged"; anything else is an error.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeTurns:
		return ModeTurns, nil
	case ModeMerged:
		return ModeMerged, nil
	}
	return "", fmt.Errorf("%w: context mode %q", graph.ErrInvalid, s)
}

// Graph is the part of graph.Flow the chat layer reads and writes.
type Graph interface {
	FindNode(id string) (models.Node, bool)
	ConnectedNodes(nodeID string, includeSelf bool) []string
	NodeChatData(id string) ([]models.Message, bool)
	UpdateNodeChatData(ctx context.Context, id string, msgs []models.Message) error
	AppendNodeChatData(ctx context.Context, id string, msg models.Message) error
}

// Context is the model-ready result of an assembly.
type Context struct {
	SystemInstructions string            `json:"systemInstructions"`
	Turns              []models.ChatTurn `json:"turns"`
}

// Assembler builds contexts over one session graph.
type Assembler struct {
	graph    Graph
	fetchers *fetch.Registry
	mode     Mode
	logger   zerolog.Logger
	now      func() time.Time
}

// NewAssembler creates an assembler. fetchers may be nil, which disables
// live refresh.
func NewAssembler(g Graph, fetchers *fetch.Registry, mode Mode, logger zerolog.Logger) *Assembler {
	if mode == "" {
		mode = ModeTurns
	}
	return &Assembler{
		graph:    g,
		fetchers: fetchers,
		mode:     mode,
		logger:   logger,
		now:      time.Now,
	}
}

// BuildContext walks nodeID's upstream closure and returns the alternating
// turn sequence the model sees, upstream contributions first and the
// node's own history last.
//
// An unknown node fails with graph.ErrNotFound. A failed live refresh is
// logged and the node's stored content is used instead. Persisting
// refreshed content is a structural write, so its failure aborts the build.
func (a *Assembler) BuildContext(ctx context.Context, nodeID, systemInstructions string) (*Context, error) {
	if _, ok := a.graph.FindNode(nodeID); !ok {
		metrics.ContextBuilds.WithLabelValues("not_found").Inc()
		return nil, fmt.Errorf("%w: node %q", graph.ErrNotFound, nodeID)
	}

	var turns []models.ChatTurn
	var sections []string

	for _, id := range a.graph.ConnectedNodes(nodeID, true) {
		node, ok := a.graph.FindNode(id)
		if !ok {
			continue
		}

		msgs, err := a.contentOf(ctx, node)
		if err != nil {
			metrics.ContextBuilds.WithLabelValues("error").Inc()
			return nil, err
		}

		if a.mode == ModeMerged && id != nodeID {
			if s := formatSection(node, msgs, nodeID); s != "" {
				sections = append(sections, s)
			}
			continue
		}
		if id == nodeID && len(sections) > 0 {
			turns = append(turns, models.NewTurn(models.RoleUser, strings.Join(sections, "\n\n")))
		}
		turns = append(turns, FormatHistory(msgs, nodeID)...)
	}

	turns = LeadWithUser(EnsureAlternation(turns))

	metrics.ContextBuilds.WithLabelValues("ok").Inc()
	metrics.ContextTurns.Observe(float64(len(turns)))

	return &Context{SystemInstructions: systemInstructions, Turns: turns}, nil
}

// contentOf returns the node's messages, refreshing live nodes first.
func (a *Assembler) contentOf(ctx context.Context, node models.Node) ([]models.Message, error) {
	msgs, _ := a.graph.NodeChatData(node.ID)
	if !node.IsLive() {
		return msgs, nil
	}

	subtype := node.Data.Agent.SubType
	fetcher, ok := a.fetchers.Lookup(subtype)
	if !ok {
		return msgs, nil
	}

	text, err := fetcher.FetchData(ctx, node.Data.Agent.Source)
	if err != nil {
		metrics.Refreshes.WithLabelValues(subtype, "error").Inc()
		a.logger.Warn().
			Err(err).
			Str("node", node.ID).
			Str("source", node.Data.Agent.Source).
			Msg("Live refresh failed, using stored content")
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return msgs, nil
	}

	fresh, changed := replaceContent(msgs, text, a.now())
	if !changed {
		metrics.Refreshes.WithLabelValues(subtype, "unchanged").Inc()
		return msgs, nil
	}
	if err := a.graph.UpdateNodeChatData(ctx, node.ID, fresh); err != nil {
		metrics.Refreshes.WithLabelValues(subtype, "error").Inc()
		return nil, err
	}
	metrics.Refreshes.WithLabelValues(subtype, "ok").Inc()
	return fresh, nil
}

// replaceContent puts text into the message with the lowest id, creating
// one when msgs is empty. It reports whether anything changed.
func replaceContent(msgs []models.Message, text string, now time.Time) ([]models.Message, bool) {
	if len(msgs) == 0 {
		return []models.Message{{
			ID:        ids.NewMessageID(),
			Sender:    "user",
			Message:   models.StringPtr(text),
			CreatedAt: now.UnixMilli(),
		}}, true
	}

	first := 0
	for i := range msgs {
		if msgs[i].ID < msgs[first].ID {
			first = i
		}
	}
	if msgs[first].Message != nil && *msgs[first].Message == text {
		return msgs, false
	}

	out := models.CloneMessages(msgs)
	out[first].Message = models.StringPtr(text)
	out[first].Error = false
	return out, true
}
