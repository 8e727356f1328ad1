package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/eldtechnologies/lucidflow/internal/ids"
	"github.com/eldtechnologies/lucidflow/internal/models"
)

type createEdgeRequest struct {
	ID       string `json:"id" validate:"omitempty,max=128,pathid"`
	Source   string `json:"source" validate:"required,max=128"`
	Target   string `json:"target" validate:"required,max=128"`
	Animated bool   `json:"animated"`
}

// ListEdges returns all edges of the session in insertion order.
func (h *Handler) ListEdges(w http.ResponseWriter, r *http.Request) {
	f, err := h.flow(r)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, f.ListEdges())
}

// CreateEdge connects source to target. Both nodes must exist.
func (h *Handler) CreateEdge(w http.ResponseWriter, r *http.Request) {
	f, err := h.flow(r)
	if err != nil {
		h.Fail(w, r, err)
		return
	}

	var req createEdgeRequest
	if err := h.decode(r, &req, false); err != nil {
		h.Fail(w, r, err)
		return
	}

	edge := models.Edge{
		ID:       req.ID,
		Source:   req.Source,
		Target:   req.Target,
		Animated: req.Animated,
	}
	if edge.ID == "" {
		edge.ID = ids.NewEdgeID()
	}

	if err := f.AddEdge(r.Context(), edge); err != nil {
		h.Fail(w, r, err)
		return
	}
	h.JSON(w, http.StatusCreated, edge)
}

// DeleteEdge removes an edge. Unknown ids succeed.
func (h *Handler) DeleteEdge(w http.ResponseWriter, r *http.Request) {
	f, err := h.flow(r)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	if err := f.RemoveEdge(r.Context(), chi.URLParam(r, "edgeID")); err != nil {
		h.Fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
