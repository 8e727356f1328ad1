package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/lucidflow/internal/credential"
	"github.com/eldtechnologies/lucidflow/internal/graph"
	"github.com/eldtechnologies/lucidflow/internal/ids"
	"github.com/eldtechnologies/lucidflow/internal/llm"
	"github.com/eldtechnologies/lucidflow/internal/metrics"
	"github.com/eldtechnologies/lucidflow/internal/models"
)

// DefaultInstructions is used when neither the caller nor the node
// supplies system instructions.
const DefaultInstructions = "You are a helpful AI assistant."

// Result is the reply to SendMessage.
type Result struct {
	Result string `json:"result"`
}

// Service exposes assembled contexts to a model.
type Service struct {
	assembler           *Assembler
	generator           llm.Generator
	model               string
	defaultInstructions string
	logger              zerolog.Logger
	now                 func() time.Time
}

// NewService creates a chat service. An empty defaultInstructions uses
// DefaultInstructions.
func NewService(assembler *Assembler, generator llm.Generator, model, defaultInstructions string, logger zerolog.Logger) *Service {
	if defaultInstructions == "" {
		defaultInstructions = DefaultInstructions
	}
	return &Service{
		assembler:           assembler,
		generator:           generator,
		model:               model,
		defaultInstructions: defaultInstructions,
		logger:              logger,
		now:                 time.Now,
	}
}

// StartChat assembles the context for nodeID. Empty systemInstructions
// fall back to the node's own, then to the default.
func (s *Service) StartChat(ctx context.Context, nodeID, systemInstructions string) (*Context, error) {
	if systemInstructions == "" {
		systemInstructions = s.instructionsFor(nodeID)
	}
	return s.assembler.BuildContext(ctx, nodeID, systemInstructions)
}

// SendMessage assembles the context for nodeID, adds text as the user's
// next turn and returns the model's reply. There is no retry. When the
// provider rejects the credential, cred is invalidated before the error is
// returned so the next call has to re-authenticate.
func (s *Service) SendMessage(ctx context.Context, cred credential.Credential, nodeID, text string) (*Result, error) {
	node, ok := s.assembler.graph.FindNode(nodeID)
	if !ok {
		return nil, fmt.Errorf("%w: node %q", graph.ErrNotFound, nodeID)
	}

	c, err := s.assembler.BuildContext(ctx, nodeID, s.instructionsFor(nodeID))
	if err != nil {
		return nil, err
	}

	// text goes out as a user turn, so the history must close on model.
	history := c.Turns
	if n := len(history); n > 0 && history[n-1].Role == models.RoleUser {
		history = append(history[:n:n], models.NewTurn(models.RoleModel, ""))
	}

	var key string
	if cred != nil {
		key = cred.Key()
	}

	reply, err := s.generator.Generate(ctx, llm.Request{
		Model:              s.model,
		APIKey:             key,
		SystemInstructions: c.SystemInstructions,
		History:            history,
		Message:            text,
		Temperature:        node.Data.Temperature,
	})
	if err != nil {
		metrics.ModelCalls.WithLabelValues(s.generator.Name(), "error").Inc()
		if errors.Is(err, llm.ErrAuth) && cred != nil {
			if ierr := cred.Invalidate(ctx); ierr != nil {
				s.logger.Error().Err(ierr).Msg("Failed to invalidate credential")
			}
		}
		return nil, err
	}

	metrics.ModelCalls.WithLabelValues(s.generator.Name(), "ok").Inc()
	return &Result{Result: reply}, nil
}

// RecordExchange appends the user's text and the model's reply to the
// node's history.
func (s *Service) RecordExchange(ctx context.Context, nodeID, text, reply string) error {
	now := s.now().UnixMilli()
	user := models.Message{ID: ids.NewMessageID(), Sender: "user", Message: models.StringPtr(text), CreatedAt: now}
	if err := s.assembler.graph.AppendNodeChatData(ctx, nodeID, user); err != nil {
		return err
	}
	model := models.Message{ID: ids.NewMessageID(), Sender: "model", Message: models.StringPtr(reply), CreatedAt: now}
	return s.assembler.graph.AppendNodeChatData(ctx, nodeID, model)
}

func (s *Service) instructionsFor(nodeID string) string {
	node, ok := s.assembler.graph.FindNode(nodeID)
	if ok {
		if v := node.Data.Agent.SystemInstructions; v != "" {
			return v
		}
		if v := node.Data.SystemInstructions; v != "" {
			return v
		}
	}
	return s.defaultInstructions
}
