package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"unicode"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/lucidflow/internal/chat"
	"github.com/eldtechnologies/lucidflow/internal/credential"
	"github.com/eldtechnologies/lucidflow/internal/events"
	"github.com/eldtechnologies/lucidflow/internal/fetch"
	"github.com/eldtechnologies/lucidflow/internal/graph"
	"github.com/eldtechnologies/lucidflow/internal/llm"
	"github.com/eldtechnologies/lucidflow/internal/store"
)

// Deps are the collaborators shared by all handlers.
type Deps struct {
	Manager      *graph.Manager
	Store        store.SessionStore
	Redis        *redis.Client // optional; only reported by /health
	Fetchers     *fetch.Registry
	Generator    llm.Generator
	Credentials  credential.Store
	Bus          *events.Bus
	Mode         chat.Mode
	Model        string
	Instructions string
	Logger       zerolog.Logger
}

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	manager      *graph.Manager
	store        store.SessionStore
	redis        *redis.Client
	fetchers     *fetch.Registry
	generator    llm.Generator
	credentials  credential.Store
	bus          *events.Bus
	mode         chat.Mode
	model        string
	instructions string
	validate     *validator.Validate
	logger       zerolog.Logger
}

// pathIDRegex matches ids that can be addressed as one URL path segment
// and pass ValidateRequest.
var pathIDRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._@-]*$`)

func validPathID(fl validator.FieldLevel) bool {
	id := fl.Field().String()
	return pathIDRegex.MatchString(id) && !strings.Contains(id, "..")
}

// NewHandler creates a new Handler with the given dependencies.
func NewHandler(d Deps) *Handler {
	mode := d.Mode
	if mode == "" {
		mode = chat.ModeTurns
	}
	validate := validator.New()
	_ = validate.RegisterValidation("pathid", validPathID)

	return &Handler{
		manager:      d.Manager,
		store:        d.Store,
		redis:        d.Redis,
		fetchers:     d.Fetchers,
		generator:    d.Generator,
		credentials:  d.Credentials,
		bus:          d.Bus,
		mode:         mode,
		model:        d.Model,
		instructions: d.Instructions,
		validate:     validate,
		logger:       d.Logger,
	}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}

// Fail maps a domain error to its HTTP status. Server-side failures are
// logged and answered with a generic message.
func (h *Handler) Fail(w http.ResponseWriter, r *http.Request, err error) {
	var verrs validator.ValidationErrors
	switch {
	case errors.Is(err, graph.ErrNotFound):
		h.Error(w, http.StatusNotFound, err.Error())
	case errors.Is(err, graph.ErrDuplicate):
		h.Error(w, http.StatusConflict, err.Error())
	case errors.Is(err, graph.ErrInvalid):
		h.Error(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &verrs):
		h.Error(w, http.StatusBadRequest, validationMessage(verrs))
	case errors.Is(err, llm.ErrAuth), errors.Is(err, credential.ErrNoCredential):
		h.Error(w, http.StatusUnauthorized, "model credential missing or rejected")
	case errors.Is(err, store.ErrPersistence):
		h.logger.Error().Err(err).Str("path", r.URL.Path).Msg("Session store failure")
		h.Error(w, http.StatusServiceUnavailable, "session store unavailable")
	case errors.Is(err, context.DeadlineExceeded):
		h.Error(w, http.StatusGatewayTimeout, "request timed out")
	default:
		h.logger.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
		h.Error(w, http.StatusInternalServerError, "internal error")
	}
}

// decode reads a JSON body into dst and validates it. An empty body is
// accepted when allowEmpty is set.
func (h *Handler) decode(r *http.Request, dst interface{}, allowEmpty bool) error {
	err := json.NewDecoder(r.Body).Decode(dst)
	switch {
	case errors.Is(err, io.EOF) && allowEmpty:
	case err != nil:
		return fmt.Errorf("%w: invalid JSON body", graph.ErrInvalid)
	}
	return h.validate.Struct(dst)
}

func validationMessage(errs validator.ValidationErrors) string {
	parts := make([]string, 0, len(errs))
	for _, fe := range errs {
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

// flow resolves the {session} URL parameter to its loaded graph.
func (h *Handler) flow(r *http.Request) (*graph.Flow, error) {
	key := chi.URLParam(r, "session")
	if err := h.validate.Var(key, "required,max=128,pathid"); err != nil {
		return nil, fmt.Errorf("%w: session key %q", graph.ErrInvalid, key)
	}
	return h.manager.Flow(r.Context(), key)
}

// sanitizeName trims and limits name to 100 characters, removing control characters.
func sanitizeName(name string) string {
	name = strings.TrimSpace(name)

	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)

	if runes := []rune(name); len(runes) > 100 {
		name = string(runes[:100])
	}

	return name
}
