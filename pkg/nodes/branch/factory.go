package branch

import (
	"context"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/protocol"
)

// BranchNodeFactory creates BranchNode instances.
type BranchNodeFactory struct{}

func NewBranchNodeFactory() protocol.NodeFactory {
	return &BranchNodeFactory{}
}

func (f *BranchNodeFactory) Create(_ context.Context, id string, data map[string]any) (protocol.Node, error) {
	return NewBranchNode(id, data)
}

func (f *BranchNodeFactory) ID() string {
	return string(models.NodeTypeBranch)
}

func (f *BranchNodeFactory) Name() string {
	return "Branch"
}

func (f *BranchNodeFactory) Description() string {
	return "Evaluates a condition over the last reply or a variable and follows the true or false edge"
}

func (f *BranchNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"condition": map[string]any{
				"type":        "string",
				"description": "Predicate such as: reply contains sim and var.idade >= 18",
				"examples": []string{
					`reply == "sim"`,
					`reply contains agendar or reply contains marcar`,
					`not var.email empty`,
				},
			},
			"field":    map[string]any{"type": "string", "examples": []string{"reply", "var.cidade"}},
			"operator": map[string]any{"type": "string", "examples": []string{"equals", "contains", "greater_than"}},
			"value":    map[string]any{"type": "string"},
		},
		"anyOf": []map[string]any{
			{"required": []string{"condition"}},
			{"required": []string{"operator"}},
		},
	}
}
