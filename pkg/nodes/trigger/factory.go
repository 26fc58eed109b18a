// Package trigger provides the entry node of every workflow graph.
package trigger

import (
	"context"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/protocol"
)

// TriggerNode marks where a run starts. It has no effect of its own.
type TriggerNode struct {
	id string
}

func (n *TriggerNode) ID() string {
	return n.id
}

func (n *TriggerNode) Type() models.NodeType {
	return models.NodeTypeTrigger
}

func (n *TriggerNode) Execute(_ context.Context, _ *protocol.Env, _ *models.ExecutionContext) (protocol.Outcome, error) {
	return protocol.Continue(""), nil
}

// TriggerNodeFactory creates TriggerNode instances.
type TriggerNodeFactory struct{}

func NewTriggerNodeFactory() protocol.NodeFactory {
	return &TriggerNodeFactory{}
}

func (f *TriggerNodeFactory) Create(_ context.Context, id string, _ map[string]any) (protocol.Node, error) {
	return &TriggerNode{id: id}, nil
}

func (f *TriggerNodeFactory) ID() string {
	return string(models.NodeTypeTrigger)
}

func (f *TriggerNodeFactory) Name() string {
	return "Trigger"
}

func (f *TriggerNodeFactory) Description() string {
	return "Entry point of the workflow, reached when an inbound message contains the workflow trigger phrase"
}

func (f *TriggerNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{},
	}
}
