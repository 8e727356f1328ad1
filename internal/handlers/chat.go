package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/eldtechnologies/lucidflow/internal/api/middleware"
	"github.com/eldtechnologies/lucidflow/internal/chat"
	"github.com/eldtechnologies/lucidflow/internal/graph"
)

type contextRequest struct {
	SystemInstructions string `json:"systemInstructions" validate:"max=20000"`
	Mode               string `json:"mode" validate:"omitempty,oneof=turns merged"`
}

type sendRequest struct {
	Text   string `json:"text" validate:"required,max=100000"`
	Record bool   `json:"record"`
}

// chatService builds a chat service over f. mode overrides the
// configured context mode when set.
func (h *Handler) chatService(f *graph.Flow, mode chat.Mode) *chat.Service {
	if mode == "" {
		mode = h.mode
	}
	asm := chat.NewAssembler(f, h.fetchers, mode, h.logger.With().Str("session", f.Key()).Logger())
	return chat.NewService(asm, h.generator, h.model, h.instructions, h.logger)
}

// BuildContext assembles the model-ready context for a node without
// calling the model. Live upstream nodes are refreshed on the way.
func (h *Handler) BuildContext(w http.ResponseWriter, r *http.Request) {
	f, err := h.flow(r)
	if err != nil {
		h.Fail(w, r, err)
		return
	}

	var req contextRequest
	if err := h.decode(r, &req, true); err != nil {
		h.Fail(w, r, err)
		return
	}
	var mode chat.Mode
	if req.Mode != "" {
		if mode, err = chat.ParseMode(req.Mode); err != nil {
			h.Fail(w, r, err)
			return
		}
	}

	c, err := h.chatService(f, mode).StartChat(r.Context(), chi.URLParam(r, "nodeID"), req.SystemInstructions)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, c)
}

// SendMessage sends text to the model with the node's assembled context.
// With record set, the exchange is appended to the node's history.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	f, err := h.flow(r)
	if err != nil {
		h.Fail(w, r, err)
		return
	}

	var req sendRequest
	if err := h.decode(r, &req, false); err != nil {
		h.Fail(w, r, err)
		return
	}

	nodeID := chi.URLParam(r, "nodeID")
	svc := h.chatService(f, "")

	res, err := svc.SendMessage(r.Context(), middleware.CredentialFromContext(r.Context()), nodeID, req.Text)
	if err != nil {
		h.Fail(w, r, err)
		return
	}

	if req.Record {
		if err := svc.RecordExchange(r.Context(), nodeID, req.Text, res.Result); err != nil {
			h.Fail(w, r, err)
			return
		}
	}
	h.JSON(w, http.StatusOK, res)
}
