// Package question provides the node that asks a question and pauses for the answer.
package question

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/protocol"
	"github.com/dukex/chatflow/pkg/template"
	"github.com/dukex/chatflow/pkg/textmatch"
)

// MaxChoices is the largest option count rendered as interactive buttons.
const MaxChoices = 3

// DefaultLabelLimit is the button title length most channels accept.
const DefaultLabelLimit = 20

type QuestionNode struct {
	id         string
	data       models.QuestionData
	labelLimit int
}

func NewQuestionNode(id string, data map[string]any, labelLimit int) (*QuestionNode, error) {
	payload, err := models.DecodeData[models.QuestionData](data)
	if err != nil {
		return nil, fmt.Errorf("question node %s: %w", id, err)
	}

	if strings.TrimSpace(payload.Question) == "" {
		return nil, fmt.Errorf("question node %s: question text is required", id)
	}

	for i, option := range payload.Options {
		if option.Handle() == "" {
			return nil, fmt.Errorf("question node %s: option %d has neither id nor label", id, i+1)
		}
	}

	return &QuestionNode{id: id, data: payload, labelLimit: labelLimit}, nil
}

func (n *QuestionNode) ID() string {
	return n.id
}

func (n *QuestionNode) Type() models.NodeType {
	return models.NodeTypeQuestion
}

// Execute sends the question and pauses until the contact answers.
func (n *QuestionNode) Execute(ctx context.Context, env *protocol.Env, execCtx *models.ExecutionContext) (protocol.Outcome, error) {
	question := template.Interpolate(n.data.Question, execCtx.Variables)

	switch count := len(n.data.Options); {
	case count >= 1 && count <= MaxChoices:
		choices := make([]models.Choice, 0, count)
		for _, option := range n.data.Options {
			choices = append(choices, models.Choice{
				ID:    option.Handle(),
				Title: textmatch.Truncate(n.label(option, execCtx), n.labelLimit),
			})
		}

		env.Sender.Send(ctx, models.OutboundMessage{
			Kind:    models.MessageKindInteractive,
			Text:    question,
			Choices: choices,
		})
	default:
		env.Sender.Send(ctx, models.TextMessage(question))

		if count > 0 {
			lines := make([]string, 0, count)
			for i, option := range n.data.Options {
				lines = append(lines, fmt.Sprintf("%d. %s", i+1, n.label(option, execCtx)))
			}

			env.Sender.Send(ctx, models.TextMessage(strings.Join(lines, "\n")))
		}
	}

	return protocol.Pause(), nil
}

// Resume routes by the option the reply selects. An unmatched reply is used as
// the handle verbatim, so edge resolution falls back to the default edge.
func (n *QuestionNode) Resume(_ context.Context, _ *protocol.Env, execCtx *models.ExecutionContext, reply string) (protocol.Outcome, error) {
	reply = strings.TrimSpace(reply)

	handle, answer := reply, reply

	if option, ok := n.match(reply, execCtx); ok {
		handle = option.Handle()
		answer = n.label(option, execCtx)
	}

	if n.data.Variable != "" {
		if execCtx.Variables == nil {
			execCtx.Variables = map[string]string{}
		}

		execCtx.Variables[n.data.Variable] = answer
	}

	return protocol.Continue(handle), nil
}

func (n *QuestionNode) label(option models.Option, execCtx *models.ExecutionContext) string {
	label := option.Label
	if label == "" {
		label = option.ID
	}

	return template.Interpolate(label, execCtx.Variables)
}

func (n *QuestionNode) match(reply string, execCtx *models.ExecutionContext) (models.Option, bool) {
	folded := textmatch.Fold(reply)
	if folded == "" {
		return models.Option{}, false
	}

	for _, option := range n.data.Options {
		if folded == textmatch.Fold(option.ID) || folded == textmatch.Fold(n.label(option, execCtx)) {
			return option, true
		}
	}

	// Channels echo the truncated button title, so accept it as well.
	for _, option := range n.data.Options {
		if folded == textmatch.Fold(textmatch.Truncate(n.label(option, execCtx), n.labelLimit)) {
			return option, true
		}
	}

	words := textmatch.Words(reply)
	if len(words) == 1 {
		ordinal, err := strconv.Atoi(words[0])
		if err == nil && ordinal >= 1 && ordinal <= len(n.data.Options) {
			return n.data.Options[ordinal-1], true
		}
	}

	return models.Option{}, false
}
