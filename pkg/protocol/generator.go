package protocol

import (
	"context"

	"github.com/dukex/chatflow/pkg/models"
)

// GenerateOptions carries everything a generation needs besides the prompt.
type GenerateOptions struct {
	SystemPrompt string
	History      []models.Turn
	Variables    map[string]string
	Temperature  *float64
	MaxTokens    int
}

// Generation is the result of a generation. Proposal is set when the model asks
// for a confirmation-gated action.
type Generation struct {
	Text     string
	Proposal *models.ActionPayload
}

// Generator is the natural-language generation engine.
type Generator interface {
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (Generation, error)
}
