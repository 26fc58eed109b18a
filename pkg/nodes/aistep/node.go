// Package aistep provides the node that replies with generated text.
package aistep

import (
	"context"
	"fmt"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/protocol"
	"github.com/dukex/chatflow/pkg/template"
)

const (
	DefaultHistorySize = 10
	ApologyMessage     = "Desculpe, não consegui responder agora. Pode repetir em instantes?"
)

type AIStepNode struct {
	id   string
	data models.AIStepData
}

func NewAIStepNode(id string, data map[string]any) (*AIStepNode, error) {
	payload, err := models.DecodeData[models.AIStepData](data)
	if err != nil {
		return nil, fmt.Errorf("ai_step node %s: %w", id, err)
	}

	if payload.HistorySize <= 0 {
		payload.HistorySize = DefaultHistorySize
	}

	return &AIStepNode{id: id, data: payload}, nil
}

func (n *AIStepNode) ID() string {
	return n.id
}

func (n *AIStepNode) Type() models.NodeType {
	return models.NodeTypeAIStep
}

// Execute never fails the run: a generation error is answered with an apology
// and the workflow moves on.
func (n *AIStepNode) Execute(ctx context.Context, env *protocol.Env, execCtx *models.ExecutionContext) (protocol.Outcome, error) {
	if env.Generator == nil {
		n.logError(env, "No generator configured")
		env.Sender.Send(ctx, models.TextMessage(ApologyMessage))

		return protocol.Continue(""), nil
	}

	prompt := template.Interpolate(n.data.Prompt, execCtx.Variables)

	generation, err := env.Generator.Generate(ctx, prompt, protocol.GenerateOptions{
		SystemPrompt: template.Interpolate(n.data.SystemPrompt, execCtx.Variables),
		History:      n.history(execCtx.History),
		Variables:    execCtx.Variables,
		Temperature:  n.data.Temperature,
		MaxTokens:    n.data.MaxTokens,
	})
	if err != nil {
		n.logError(env, "Generation failed", "error", err)
		env.Sender.Send(ctx, models.TextMessage(ApologyMessage))

		return protocol.Continue(""), nil
	}

	if text := template.Interpolate(generation.Text, execCtx.Variables); text != "" {
		env.Sender.Send(ctx, models.TextMessage(text))
	}

	if generation.Proposal != nil && env.Proposer != nil {
		_, err = env.Proposer.Propose(ctx, env.Key, *generation.Proposal, "workflow:"+execCtx.WorkflowID)
		if err != nil {
			n.logError(env, "Failed to propose action", "error", err, "kind", generation.Proposal.Kind)
		}
	}

	return protocol.Continue(""), nil
}

func (n *AIStepNode) history(turns []models.Turn) []models.Turn {
	if len(turns) > n.data.HistorySize {
		turns = turns[len(turns)-n.data.HistorySize:]
	}

	return append([]models.Turn(nil), turns...)
}

func (n *AIStepNode) logError(env *protocol.Env, msg string, args ...any) {
	if env.Logger == nil {
		return
	}

	env.Logger.Error(msg, append([]any{"node_id", n.id}, args...)...)
}
