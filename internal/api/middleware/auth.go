package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"regexp"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/lucidflow/internal/credential"
)

type contextKey string

const (
	ClientContextKey     contextKey = "client"
	CredentialContextKey contextKey = "credential"
)

// Request headers carrying the caller's identity and model key.
const (
	HeaderClient   = "X-LucidFlow-Client"
	HeaderModelKey = "X-LucidFlow-Model-Key"
)

var clientIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ValidClientID reports whether id is usable as a client identifier.
func ValidClientID(id string) bool {
	return clientIDPattern.MatchString(id)
}

// CredentialMiddleware resolves the model credential for each request.
type CredentialMiddleware struct {
	store  credential.Store
	logger zerolog.Logger
}

// NewCredentialMiddleware creates a new credential middleware.
func NewCredentialMiddleware(st credential.Store, logger zerolog.Logger) *CredentialMiddleware {
	return &CredentialMiddleware{store: st, logger: logger}
}

// ResolveCredential attaches the caller's client id and model credential to
// the request context. A key sent in X-LucidFlow-Model-Key is used for this
// request only; otherwise the key stored for X-LucidFlow-Client is leased.
// Requests with neither continue without a credential.
func (m *CredentialMiddleware) ResolveCredential(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		clientID := r.Header.Get(HeaderClient)
		if clientID != "" {
			if !ValidClientID(clientID) {
				jsonError(w, http.StatusBadRequest, "invalid client id")
				return
			}
			ctx = context.WithValue(ctx, ClientContextKey, clientID)
		}

		if key := r.Header.Get(HeaderModelKey); key != "" {
			ctx = context.WithValue(ctx, CredentialContextKey, credential.Credential(credential.NewStatic(key)))
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		if clientID != "" && m.store != nil {
			lease, err := credential.Acquire(ctx, m.store, clientID)
			switch {
			case err == nil:
				ctx = context.WithValue(ctx, CredentialContextKey, credential.Credential(lease))
			case errors.Is(err, credential.ErrNoCredential):
				// Anonymous; the generator decides whether that is enough.
			default:
				m.logger.Error().Err(err).Str("client", clientID).Msg("Failed to read credential")
				jsonError(w, http.StatusServiceUnavailable, "credential store unavailable")
				return
			}
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func jsonError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// ClientFromContext returns the validated client id, or "".
func ClientFromContext(ctx context.Context) string {
	id, _ := ctx.Value(ClientContextKey).(string)
	return id
}

// CredentialFromContext returns the credential resolved for the request,
// or nil when the caller supplied none.
func CredentialFromContext(ctx context.Context) credential.Credential {
	cred, ok := ctx.Value(CredentialContextKey).(credential.Credential)
	if !ok {
		return nil
	}
	return cred
}
