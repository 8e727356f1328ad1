// Package llm adapts assembled chat contexts to generative model providers.
package llm

import (
	"context"
	"errors"

	"github.com/eldtechnologies/lucidflow/internal/models"
)

// ErrAuth means the credential was missing or rejected by the provider.
var ErrAuth = errors.New("authentication failed")

// Request is one model call: an assembled history plus the new user text.
type Request struct {
	Model              string
	APIKey             string
	SystemInstructions string
	History            []models.ChatTurn
	Message            string
	Temperature        float64 // 0 leaves the provider default
}

// Generator produces a reply for a request.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
	Name() string
}
