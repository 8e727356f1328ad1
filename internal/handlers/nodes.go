package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/eldtechnologies/lucidflow/internal/graph"
	"github.com/eldtechnologies/lucidflow/internal/ids"
	"github.com/eldtechnologies/lucidflow/internal/models"
)

type agentRequest struct {
	SubType            string `json:"subType" validate:"max=64"`
	Watch              bool   `json:"watch"`
	Source             string `json:"source" validate:"omitempty,max=2048"`
	SystemInstructions string `json:"systemInstructions" validate:"max=20000"`
}

type nodeDataRequest struct {
	Label              string           `json:"label" validate:"max=200"`
	Icon               string           `json:"icon" validate:"max=64"`
	Color              string           `json:"color" validate:"max=32"`
	Agent              agentRequest     `json:"agent"`
	ChatData           []models.Message `json:"chatData"`
	Temperature        float64          `json:"temperature" validate:"gte=0,lte=2"`
	SystemInstructions string           `json:"systemInstructions" validate:"max=20000"`
}

type createNodeRequest struct {
	ID       string          `json:"id" validate:"omitempty,max=128,pathid"`
	Type     string          `json:"type" validate:"max=64"`
	Position models.Position `json:"position"`
	Data     nodeDataRequest `json:"data"`
}

type positionRequest struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type appendMessageRequest struct {
	ID              string          `json:"id" validate:"omitempty,max=64"`
	Sender          string          `json:"sender" validate:"required,max=64"`
	Message         *string         `json:"message"`
	Error           bool            `json:"error"`
	IsEnabledByNode map[string]bool `json:"isEnabledByNode"`
}

type replaceChatRequest struct {
	Messages []models.Message `json:"messages"`
}

// UpstreamResponse lists a node's upstream closure in context order.
type UpstreamResponse struct {
	NodeID string   `json:"nodeId"`
	Nodes  []string `json:"nodes"`
}

// ListNodes returns all nodes of the session in insertion order.
func (h *Handler) ListNodes(w http.ResponseWriter, r *http.Request) {
	f, err := h.flow(r)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, f.ListNodes())
}

// CreateNode adds a node. A missing id is generated.
func (h *Handler) CreateNode(w http.ResponseWriter, r *http.Request) {
	f, err := h.flow(r)
	if err != nil {
		h.Fail(w, r, err)
		return
	}

	var req createNodeRequest
	if err := h.decode(r, &req, false); err != nil {
		h.Fail(w, r, err)
		return
	}

	node := models.Node{
		ID:       req.ID,
		Type:     req.Type,
		Position: req.Position,
		Data: models.NodeData{
			Label: sanitizeName(req.Data.Label),
			Icon:  req.Data.Icon,
			Color: req.Data.Color,
			Agent: models.AgentInfo{
				SubType:            req.Data.Agent.SubType,
				Watch:              req.Data.Agent.Watch,
				Source:             req.Data.Agent.Source,
				SystemInstructions: req.Data.Agent.SystemInstructions,
			},
			ChatData:           req.Data.ChatData,
			Temperature:        req.Data.Temperature,
			SystemInstructions: req.Data.SystemInstructions,
		},
	}
	if node.ID == "" {
		node.ID = ids.NewNodeID()
	}

	if err := f.AddNode(r.Context(), node); err != nil {
		h.Fail(w, r, err)
		return
	}

	created, _ := f.FindNode(node.ID)
	h.JSON(w, http.StatusCreated, created)
}

// GetNode returns one node.
func (h *Handler) GetNode(w http.ResponseWriter, r *http.Request) {
	f, err := h.flow(r)
	if err != nil {
		h.Fail(w, r, err)
		return
	}

	nodeID := chi.URLParam(r, "nodeID")
	node, ok := f.FindNode(nodeID)
	if !ok {
		h.Fail(w, r, fmt.Errorf("%w: node %q", graph.ErrNotFound, nodeID))
		return
	}
	h.JSON(w, http.StatusOK, node)
}

// DeleteNode removes a node and every edge touching it.
func (h *Handler) DeleteNode(w http.ResponseWriter, r *http.Request) {
	f, err := h.flow(r)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	if err := f.RemoveNode(r.Context(), chi.URLParam(r, "nodeID")); err != nil {
		h.Fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MoveNode updates a node's canvas position. The write is debounced.
func (h *Handler) MoveNode(w http.ResponseWriter, r *http.Request) {
	f, err := h.flow(r)
	if err != nil {
		h.Fail(w, r, err)
		return
	}

	var req positionRequest
	if err := h.decode(r, &req, false); err != nil {
		h.Fail(w, r, err)
		return
	}

	nodeID := chi.URLParam(r, "nodeID")
	if !f.UpdateNodePosition(nodeID, req.X, req.Y) {
		h.Fail(w, r, fmt.Errorf("%w: node %q", graph.ErrNotFound, nodeID))
		return
	}
	h.JSON(w, http.StatusAccepted, models.Position{X: req.X, Y: req.Y})
}

// GetChatData returns a node's message history.
func (h *Handler) GetChatData(w http.ResponseWriter, r *http.Request) {
	f, err := h.flow(r)
	if err != nil {
		h.Fail(w, r, err)
		return
	}

	nodeID := chi.URLParam(r, "nodeID")
	msgs, ok := f.NodeChatData(nodeID)
	if !ok {
		h.Fail(w, r, fmt.Errorf("%w: node %q", graph.ErrNotFound, nodeID))
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	h.JSON(w, http.StatusOK, msgs)
}

// ReplaceChatData overwrites a node's message history.
func (h *Handler) ReplaceChatData(w http.ResponseWriter, r *http.Request) {
	f, err := h.flow(r)
	if err != nil {
		h.Fail(w, r, err)
		return
	}

	var req replaceChatRequest
	if err := h.decode(r, &req, false); err != nil {
		h.Fail(w, r, err)
		return
	}

	// The graph treats unknown ids as a no-op; over HTTP that is a 404.
	nodeID := chi.URLParam(r, "nodeID")
	if _, ok := f.FindNode(nodeID); !ok {
		h.Fail(w, r, fmt.Errorf("%w: node %q", graph.ErrNotFound, nodeID))
		return
	}
	if err := f.UpdateNodeChatData(r.Context(), nodeID, req.Messages); err != nil {
		h.Fail(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, map[string]int{"messages": len(req.Messages)})
}

// AppendChatData adds one message to a node's history.
func (h *Handler) AppendChatData(w http.ResponseWriter, r *http.Request) {
	f, err := h.flow(r)
	if err != nil {
		h.Fail(w, r, err)
		return
	}

	var req appendMessageRequest
	if err := h.decode(r, &req, false); err != nil {
		h.Fail(w, r, err)
		return
	}

	msg := models.Message{
		ID:              req.ID,
		Sender:          req.Sender,
		Message:         req.Message,
		CreatedAt:       time.Now().UnixMilli(),
		Error:           req.Error,
		IsEnabledByNode: req.IsEnabledByNode,
	}
	if msg.ID == "" {
		msg.ID = ids.NewMessageID()
	}

	if err := f.AppendNodeChatData(r.Context(), chi.URLParam(r, "nodeID"), msg); err != nil {
		h.Fail(w, r, err)
		return
	}
	h.JSON(w, http.StatusCreated, msg)
}

// Upstream returns the ids of every node feeding the given node, sources
// first. ?includeSelf=true appends the node itself.
func (h *Handler) Upstream(w http.ResponseWriter, r *http.Request) {
	f, err := h.flow(r)
	if err != nil {
		h.Fail(w, r, err)
		return
	}

	includeSelf := false
	if v := r.URL.Query().Get("includeSelf"); v != "" {
		if includeSelf, err = strconv.ParseBool(v); err != nil {
			h.Error(w, http.StatusBadRequest, "includeSelf must be a boolean")
			return
		}
	}

	nodeID := chi.URLParam(r, "nodeID")
	if _, ok := f.FindNode(nodeID); !ok {
		h.Fail(w, r, fmt.Errorf("%w: node %q", graph.ErrNotFound, nodeID))
		return
	}
	nodes := f.ConnectedNodes(nodeID, includeSelf)
	if nodes == nil {
		nodes = []string{}
	}
	h.JSON(w, http.StatusOK, UpstreamResponse{NodeID: nodeID, Nodes: nodes})
}
