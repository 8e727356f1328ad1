// Package events defines graph and UI events as a closed set of kinds.
//
// Every event is a plain struct implementing Event. Decode maps a kind tag
// to its payload shape through a single table, so adding a kind means adding
// one struct and one table entry.
package events

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Kind tags an event.
type Kind string

// UI kinds relayed from the editor.
const (
	KindNodeSelected     Kind = "node:selected"
	KindNodeDeselected   Kind = "node:deselected"
	KindAccordionToggled Kind = "node:accordion-toggled"
	KindTabToggled       Kind = "node:q-tab-toggled"
)

// Graph kinds published by graph.Flow.
const (
	KindNodeAdded       Kind = "graph:node-added"
	KindNodeRemoved     Kind = "graph:node-removed"
	KindNodeMoved       Kind = "graph:node-moved"
	KindEdgeAdded       Kind = "graph:edge-added"
	KindEdgeRemoved     Kind = "graph:edge-removed"
	KindChatDataUpdated Kind = "graph:chat-data-updated"
	KindSessionSaved    Kind = "session:saved"
	KindSessionLoaded   Kind = "session:loaded"
	KindSessionDeleted  Kind = "session:deleted"
)

// ErrUnknownKind is returned by Decode for tags outside the table.
var ErrUnknownKind = errors.New("unknown event kind")

// Event is implemented by every payload struct in this package.
type Event interface {
	Kind() Kind
}

type NodeSelected struct {
	NodeID   string `json:"nodeId"`
	NodeType string `json:"nodeType,omitempty"`
}

type NodeDeselected struct{}

type AccordionToggled struct {
	NodeID           string `json:"nodeId"`
	TotalConnections int    `json:"totalConnections"`
}

type TabToggled struct {
	NodeID string `json:"nodeId"`
}

type NodeAdded struct {
	Session string `json:"session"`
	NodeID  string `json:"nodeId"`
}

// NodeRemoved lists the edges that were removed with the node.
type NodeRemoved struct {
	Session      string   `json:"session"`
	NodeID       string   `json:"nodeId"`
	EdgesRemoved []string `json:"edgesRemoved,omitempty"`
}

type NodeMoved struct {
	Session string  `json:"session"`
	NodeID  string  `json:"nodeId"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
}

type EdgeAdded struct {
	Session string `json:"session"`
	EdgeID  string `json:"edgeId"`
	Source  string `json:"source"`
	Target  string `json:"target"`
}

type EdgeRemoved struct {
	Session string `json:"session"`
	EdgeID  string `json:"edgeId"`
}

type ChatDataUpdated struct {
	Session  string `json:"session"`
	NodeID   string `json:"nodeId"`
	Messages int    `json:"messages"`
}

type SessionSaved struct {
	Session string `json:"session"`
	Bytes   int    `json:"bytes"`
}

type SessionLoaded struct {
	Session string `json:"session"`
	Nodes   int    `json:"nodes"`
	Edges   int    `json:"edges"`
}

type SessionDeleted struct {
	Session string `json:"session"`
}

func (NodeSelected) Kind() Kind     { return KindNodeSelected }
func (NodeDeselected) Kind() Kind   { return KindNodeDeselected }
func (AccordionToggled) Kind() Kind { return KindAccordionToggled }
func (TabToggled) Kind() Kind       { return KindTabToggled }
func (NodeAdded) Kind() Kind        { return KindNodeAdded }
func (NodeRemoved) Kind() Kind      { return KindNodeRemoved }
func (NodeMoved) Kind() Kind        { return KindNodeMoved }
func (EdgeAdded) Kind() Kind        { return KindEdgeAdded }
func (EdgeRemoved) Kind() Kind      { return KindEdgeRemoved }
func (ChatDataUpdated) Kind() Kind  { return KindChatDataUpdated }
func (SessionSaved) Kind() Kind     { return KindSessionSaved }
func (SessionLoaded) Kind() Kind    { return KindSessionLoaded }
func (SessionDeleted) Kind() Kind   { return KindSessionDeleted }

// decoders is the single tag → payload table.
var decoders = map[Kind]func(json.RawMessage) (Event, error){
	KindNodeSelected:     decodeAs[NodeSelected],
	KindNodeDeselected:   decodeAs[NodeDeselected],
	KindAccordionToggled: decodeAs[AccordionToggled],
	KindTabToggled:       decodeAs[TabToggled],
	KindNodeAdded:        decodeAs[NodeAdded],
	KindNodeRemoved:      decodeAs[NodeRemoved],
	KindNodeMoved:        decodeAs[NodeMoved],
	KindEdgeAdded:        decodeAs[EdgeAdded],
	KindEdgeRemoved:      decodeAs[EdgeRemoved],
	KindChatDataUpdated:  decodeAs[ChatDataUpdated],
	KindSessionSaved:     decodeAs[SessionSaved],
	KindSessionLoaded:    decodeAs[SessionLoaded],
	KindSessionDeleted:   decodeAs[SessionDeleted],
}

func decodeAs[T Event](raw json.RawMessage) (Event, error) {
	var ev T
	if len(raw) == 0 || string(raw) == "null" {
		return ev, nil
	}
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil, err
	}
	return ev, nil
}

// Decode builds the event for kind from its JSON payload.
func Decode(kind Kind, payload json.RawMessage) (Event, error) {
	dec, ok := decoders[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	ev, err := dec(payload)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", kind, err)
	}
	return ev, nil
}

// IsUIKind reports whether kind originates in the editor.
func IsUIKind(kind Kind) bool {
	switch kind {
	case KindNodeSelected, KindNodeDeselected, KindAccordionToggled, KindTabToggled:
		return true
	}
	return false
}
