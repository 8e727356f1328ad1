package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/eldtechnologies/lucidflow/internal/api/middleware"
)

type credentialRequest struct {
	Client string `json:"client" validate:"omitempty,max=64"`
	Key    string `json:"key" validate:"required,min=8,max=512"`
}

// PutCredential stores a model API key for a client. The client comes from
// the body or, failing that, the X-LucidFlow-Client header.
func (h *Handler) PutCredential(w http.ResponseWriter, r *http.Request) {
	var req credentialRequest
	if err := h.decode(r, &req, false); err != nil {
		h.Fail(w, r, err)
		return
	}

	client := req.Client
	if client == "" {
		client = middleware.ClientFromContext(r.Context())
	}
	if !middleware.ValidClientID(client) {
		h.Error(w, http.StatusBadRequest, "client id required")
		return
	}

	if err := h.credentials.Set(r.Context(), client, req.Key); err != nil {
		h.logger.Error().Err(err).Str("client", client).Msg("Failed to store credential")
		h.Error(w, http.StatusServiceUnavailable, "credential store unavailable")
		return
	}

	// Never echo the key
	h.JSON(w, http.StatusCreated, map[string]string{"client": client, "status": "stored"})
}

// DeleteCredential forgets a client's key. Missing keys succeed.
func (h *Handler) DeleteCredential(w http.ResponseWriter, r *http.Request) {
	client := chi.URLParam(r, "client")
	if !middleware.ValidClientID(client) {
		h.Error(w, http.StatusBadRequest, "invalid client id")
		return
	}

	if err := h.credentials.Delete(r.Context(), client); err != nil {
		h.logger.Error().Err(err).Str("client", client).Msg("Failed to delete credential")
		h.Error(w, http.StatusServiceUnavailable, "credential store unavailable")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
