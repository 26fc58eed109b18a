package question

import (
	"context"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/protocol"
)

// QuestionNodeFactory creates QuestionNode instances.
type QuestionNodeFactory struct {
	labelLimit int
}

// NewQuestionNodeFactory builds a factory truncating choice labels to labelLimit
// runes; zero selects DefaultLabelLimit.
func NewQuestionNodeFactory(labelLimit int) protocol.NodeFactory {
	if labelLimit <= 0 {
		labelLimit = DefaultLabelLimit
	}

	return &QuestionNodeFactory{labelLimit: labelLimit}
}

func (f *QuestionNodeFactory) Create(_ context.Context, id string, data map[string]any) (protocol.Node, error) {
	return NewQuestionNode(id, data, f.labelLimit)
}

func (f *QuestionNodeFactory) ID() string {
	return string(models.NodeTypeQuestion)
}

func (f *QuestionNodeFactory) Name() string {
	return "Question"
}

func (f *QuestionNodeFactory) Description() string {
	return "Asks a question with options and waits for the answer; each option routes to its own edge"
}

func (f *QuestionNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"question": map[string]any{
				"type":      "string",
				"minLength": 1,
				"examples":  []string{"Prefere A ou B?"},
			},
			"options": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"id":    map[string]any{"type": "string"},
						"label": map[string]any{"type": "string"},
					},
				},
			},
			"variable": map[string]any{
				"type":        "string",
				"description": "Variable that receives the selected option label",
			},
		},
		"required": []string{"question"},
	}
}
