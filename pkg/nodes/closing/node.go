// Package closing provides the terminal handoff and close nodes.
package closing

import (
	"context"
	"fmt"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/protocol"
	"github.com/dukex/chatflow/pkg/template"
)

const (
	DefaultHandoffMessage = "Um atendente vai continuar seu atendimento em instantes."
	DefaultCloseMessage   = "Conversa encerrada. Obrigado!"
)

// ClosingNode ends the run after moving the conversation to a final status.
type ClosingNode struct {
	id       string
	nodeType models.NodeType
	status   models.ConversationStatus
	message  string
}

func NewHandoffNode(id string, data map[string]any) (*ClosingNode, error) {
	return newClosingNode(id, data, models.NodeTypeHandoff, models.ConversationStatusWaitingHuman, DefaultHandoffMessage)
}

func NewCloseNode(id string, data map[string]any) (*ClosingNode, error) {
	return newClosingNode(id, data, models.NodeTypeClose, models.ConversationStatusClosed, DefaultCloseMessage)
}

func newClosingNode(
	id string,
	data map[string]any,
	nodeType models.NodeType,
	status models.ConversationStatus,
	fallback string,
) (*ClosingNode, error) {
	payload, err := models.DecodeData[models.ClosingData](data)
	if err != nil {
		return nil, fmt.Errorf("%s node %s: %w", nodeType, id, err)
	}

	message := payload.Message
	if message == "" {
		message = fallback
	}

	return &ClosingNode{id: id, nodeType: nodeType, status: status, message: message}, nil
}

func (n *ClosingNode) ID() string {
	return n.id
}

func (n *ClosingNode) Type() models.NodeType {
	return n.nodeType
}

// Status is the conversation status the node applies.
func (n *ClosingNode) Status() models.ConversationStatus {
	return n.status
}

func (n *ClosingNode) Execute(ctx context.Context, env *protocol.Env, execCtx *models.ExecutionContext) (protocol.Outcome, error) {
	if env.Status != nil {
		err := env.Status.SetConversationStatus(ctx, env.Key, n.status)
		if err != nil && env.Logger != nil {
			env.Logger.Error("Failed to update conversation status",
				"node_id", n.id,
				"status", n.status,
				"error", err)
		}
	}

	if text := template.Interpolate(n.message, execCtx.Variables); text != "" {
		env.Sender.Send(ctx, models.TextMessage(text))
	}

	return protocol.Terminate(), nil
}
