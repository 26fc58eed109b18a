package closing

import (
	"context"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/protocol"
)

// HandoffNodeFactory creates nodes that pass the conversation to a human.
type HandoffNodeFactory struct{}

func NewHandoffNodeFactory() protocol.NodeFactory {
	return &HandoffNodeFactory{}
}

func (f *HandoffNodeFactory) Create(_ context.Context, id string, data map[string]any) (protocol.Node, error) {
	return NewHandoffNode(id, data)
}

func (f *HandoffNodeFactory) ID() string {
	return string(models.NodeTypeHandoff)
}

func (f *HandoffNodeFactory) Name() string {
	return "Handoff"
}

func (f *HandoffNodeFactory) Description() string {
	return "Marks the conversation as waiting for a human and ends the workflow"
}

func (f *HandoffNodeFactory) Schema() map[string]any {
	return messageSchema(DefaultHandoffMessage)
}

// CloseNodeFactory creates nodes that close the conversation.
type CloseNodeFactory struct{}

func NewCloseNodeFactory() protocol.NodeFactory {
	return &CloseNodeFactory{}
}

func (f *CloseNodeFactory) Create(_ context.Context, id string, data map[string]any) (protocol.Node, error) {
	return NewCloseNode(id, data)
}

func (f *CloseNodeFactory) ID() string {
	return string(models.NodeTypeClose)
}

func (f *CloseNodeFactory) Name() string {
	return "Close"
}

func (f *CloseNodeFactory) Description() string {
	return "Closes the conversation and ends the workflow"
}

func (f *CloseNodeFactory) Schema() map[string]any {
	return messageSchema(DefaultCloseMessage)
}

func messageSchema(fallback string) map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"message": map[string]any{
				"type":        "string",
				"description": "Message sent before the workflow ends",
				"default":     fallback,
			},
		},
	}
}
