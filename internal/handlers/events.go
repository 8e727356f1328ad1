package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/eldtechnologies/lucidflow/internal/events"
	"github.com/eldtechnologies/lucidflow/internal/graph"
	"github.com/eldtechnologies/lucidflow/internal/metrics"
)

type eventRequest struct {
	Kind    string          `json:"kind" validate:"required,max=64"`
	Payload json.RawMessage `json:"payload"`
}

// EventResponse echoes the decoded event.
type EventResponse struct {
	Kind  events.Kind  `json:"kind"`
	Event events.Event `json:"event"`
}

// PostEvent relays an editor event (selection, accordion and tab toggles)
// onto the event bus. Graph and session kinds are published by the graph
// itself and are rejected here.
func (h *Handler) PostEvent(w http.ResponseWriter, r *http.Request) {
	if _, err := h.flow(r); err != nil {
		h.Fail(w, r, err)
		return
	}

	var req eventRequest
	if err := h.decode(r, &req, false); err != nil {
		h.Fail(w, r, err)
		return
	}

	kind := events.Kind(req.Kind)
	if !events.IsUIKind(kind) {
		h.Fail(w, r, fmt.Errorf("%w: %q is not an editor event", graph.ErrInvalid, req.Kind))
		return
	}

	ev, err := events.Decode(kind, req.Payload)
	if err != nil {
		h.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	metrics.UIEvents.WithLabelValues(string(kind)).Inc()
	h.bus.Publish(ev)

	h.JSON(w, http.StatusAccepted, EventResponse{Kind: kind, Event: ev})
}
