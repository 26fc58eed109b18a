// Package message provides the node that sends a text or media message.
package message

import (
	"context"
	"fmt"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/protocol"
	"github.com/dukex/chatflow/pkg/template"
)

type MessageNode struct {
	id   string
	data models.MessageData
}

func NewMessageNode(id string, data map[string]any) (*MessageNode, error) {
	payload, err := models.DecodeData[models.MessageData](data)
	if err != nil {
		return nil, fmt.Errorf("message node %s: %w", id, err)
	}

	return &MessageNode{id: id, data: payload}, nil
}

func (n *MessageNode) ID() string {
	return n.id
}

func (n *MessageNode) Type() models.NodeType {
	return models.NodeTypeMessage
}

func (n *MessageNode) Execute(ctx context.Context, env *protocol.Env, execCtx *models.ExecutionContext) (protocol.Outcome, error) {
	text := template.Interpolate(n.data.Text, execCtx.Variables)

	msg := models.TextMessage(text)
	if n.data.Media != nil && n.data.Media.URL != "" {
		media := *n.data.Media
		msg = models.OutboundMessage{Kind: models.MessageKindMedia, Text: text, Media: &media}
	}

	if msg.Text != "" || msg.Media != nil {
		env.Sender.Send(ctx, msg)
	}

	return protocol.Continue(""), nil
}
