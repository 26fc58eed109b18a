package aistep

import (
	"context"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/protocol"
)

// AIStepNodeFactory creates AIStepNode instances.
type AIStepNodeFactory struct{}

func NewAIStepNodeFactory() protocol.NodeFactory {
	return &AIStepNodeFactory{}
}

func (f *AIStepNodeFactory) Create(_ context.Context, id string, data map[string]any) (protocol.Node, error) {
	return NewAIStepNode(id, data)
}

func (f *AIStepNodeFactory) ID() string {
	return string(models.NodeTypeAIStep)
}

func (f *AIStepNodeFactory) Name() string {
	return "AI Step"
}

func (f *AIStepNodeFactory) Description() string {
	return "Generates a reply from a prompt and the recent conversation history"
}

func (f *AIStepNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"prompt": map[string]any{
				"type":        "string",
				"description": "Instruction for the generator, {{variables}} are interpolated",
				"minLength":   1,
			},
			"system_prompt": map[string]any{"type": "string"},
			"temperature": map[string]any{
				"type":    "number",
				"minimum": 0,
				"maximum": 2,
			},
			"max_tokens": map[string]any{"type": "integer", "minimum": 0},
			"history_size": map[string]any{
				"type":    "integer",
				"minimum": 0,
				"default": DefaultHistorySize,
			},
		},
		"required": []string{"prompt"},
	}
}
