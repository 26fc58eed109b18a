package message

import (
	"context"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/protocol"
)

// MessageNodeFactory creates MessageNode instances.
type MessageNodeFactory struct{}

func NewMessageNodeFactory() protocol.NodeFactory {
	return &MessageNodeFactory{}
}

func (f *MessageNodeFactory) Create(_ context.Context, id string, data map[string]any) (protocol.Node, error) {
	return NewMessageNode(id, data)
}

func (f *MessageNodeFactory) ID() string {
	return string(models.NodeTypeMessage)
}

func (f *MessageNodeFactory) Name() string {
	return "Message"
}

func (f *MessageNodeFactory) Description() string {
	return "Sends a text message to the contact, optionally with one image, video or document attached"
}

func (f *MessageNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"text": map[string]any{
				"type":        "string",
				"description": "Message text. Supports {{variable}} interpolation; used as caption when media is set.",
				"examples":    []string{"Olá {{nome}}!", "Seu pedido {{pedido}} foi confirmado."},
			},
			"media": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"type":     map[string]any{"type": "string", "enum": []string{"image", "video", "document"}},
					"url":      map[string]any{"type": "string", "minLength": 1},
					"filename": map[string]any{"type": "string"},
				},
				"required": []string{"type", "url"},
			},
		},
		"anyOf": []map[string]any{
			{"required": []string{"text"}},
			{"required": []string{"media"}},
		},
	}
}
