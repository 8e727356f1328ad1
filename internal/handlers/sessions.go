package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/eldtechnologies/lucidflow/internal/models"
)

// SessionResponse is the full graph of a session.
type SessionResponse struct {
	Key string `json:"key"`
	models.Session
}

// LoadResponse reports whether a stored session was found.
type LoadResponse struct {
	Key   string `json:"key"`
	Found bool   `json:"found"`
	Nodes int    `json:"nodes"`
	Edges int    `json:"edges"`
}

type viewportRequest struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Zoom float64 `json:"zoom" validate:"gt=0"`
}

// GetSession returns the snapshot of a session.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	f, err := h.flow(r)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, SessionResponse{Key: f.Key(), Session: f.Snapshot()})
}

// SaveSession persists the session immediately.
func (h *Handler) SaveSession(w http.ResponseWriter, r *http.Request) {
	f, err := h.flow(r)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	if err := f.Save(r.Context()); err != nil {
		h.Fail(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, map[string]string{"status": "saved"})
}

// LoadSession discards in-memory state and re-reads the stored session.
func (h *Handler) LoadSession(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "session")
	if _, err := h.flow(r); err != nil {
		h.Fail(w, r, err)
		return
	}
	f, found, err := h.manager.Reload(r.Context(), key)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, LoadResponse{
		Key:   key,
		Found: found,
		Nodes: f.NodeCount(),
		Edges: len(f.ListEdges()),
	})
}

// DeleteSession removes the stored session and drops it from memory.
func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	f, err := h.flow(r)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	if err := f.Delete(r.Context()); err != nil {
		h.Fail(w, r, err)
		return
	}
	if err := h.manager.Forget(r.Context(), f.Key()); err != nil {
		h.Fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetViewport records the canvas transform. The write is debounced.
func (h *Handler) SetViewport(w http.ResponseWriter, r *http.Request) {
	f, err := h.flow(r)
	if err != nil {
		h.Fail(w, r, err)
		return
	}

	var req viewportRequest
	if err := h.decode(r, &req, false); err != nil {
		h.Fail(w, r, err)
		return
	}

	v := models.Viewport{X: req.X, Y: req.Y, Zoom: req.Zoom}
	f.SetViewport(v)
	h.JSON(w, http.StatusAccepted, v)
}
