// Package branch provides the node that routes on a predicate over the last reply.
package branch

import (
	"context"
	"fmt"

	"github.com/dukex/chatflow/pkg/condition"
	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/protocol"
)

type BranchNode struct {
	id   string
	expr *condition.Expression
}

// NewBranchNode parses the condition once; a malformed condition rejects the node.
func NewBranchNode(id string, data map[string]any) (*BranchNode, error) {
	payload, err := models.DecodeData[models.BranchData](data)
	if err != nil {
		return nil, fmt.Errorf("branch node %s: %w", id, err)
	}

	var expr *condition.Expression

	switch {
	case payload.Condition != "":
		expr, err = condition.Parse(payload.Condition)
	case payload.Operator != "":
		expr, err = condition.FromParts(payload.Field, payload.Operator, payload.Value)
	default:
		err = fmt.Errorf("%w: condition or operator is required", condition.ErrSyntax)
	}

	if err != nil {
		return nil, fmt.Errorf("branch node %s: %w", id, err)
	}

	return &BranchNode{id: id, expr: expr}, nil
}

func (n *BranchNode) ID() string {
	return n.id
}

func (n *BranchNode) Type() models.NodeType {
	return models.NodeTypeBranch
}

func (n *BranchNode) Execute(_ context.Context, env *protocol.Env, execCtx *models.ExecutionContext) (protocol.Outcome, error) {
	values := condition.Values{Variables: execCtx.Variables}
	if execCtx.LastReply != nil {
		values.Reply = *execCtx.LastReply
	}

	result := n.expr.Evaluate(values)

	if env.Logger != nil {
		env.Logger.Debug("Branch evaluated", "node_id", n.id, "condition", n.expr.String(), "result", result)
	}

	if result {
		return protocol.Continue(models.HandleTrue), nil
	}

	return protocol.Continue(models.HandleFalse), nil
}
