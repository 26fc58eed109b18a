package message

import (
	"context"
	"testing"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/protocol"
	"github.com/dukex/chatflow/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageNode_InterpolatesText(t *testing.T) {
	node, err := NewMessageNodeFactory().Create(context.Background(), "m1", map[string]any{"text": "Olá {{nome}}"})
	require.NoError(t, err)

	sender := &testutil.RecordingSender{}
	execCtx := &models.ExecutionContext{Variables: map[string]string{"nome": "Ana"}}

	outcome, err := node.Execute(context.Background(), &protocol.Env{Sender: sender}, execCtx)
	require.NoError(t, err)
	assert.Equal(t, protocol.Continue(""), outcome)
	assert.Equal(t, []models.OutboundMessage{models.TextMessage("Olá Ana")}, sender.Messages())
}

func TestMessageNode_MediaUsesTextAsCaption(t *testing.T) {
	node, err := NewMessageNode("m1", map[string]any{
		"text":  "Cardápio de {{dia}}",
		"media": map[string]any{"type": "document", "url": "https://example.com/menu.pdf", "filename": "menu.pdf"},
	})
	require.NoError(t, err)

	sender := &testutil.RecordingSender{}
	execCtx := &models.ExecutionContext{Variables: map[string]string{"dia": "hoje"}}

	_, err = node.Execute(context.Background(), &protocol.Env{Sender: sender}, execCtx)
	require.NoError(t, err)

	messages := sender.Messages()
	require.Len(t, messages, 1)
	assert.Equal(t, models.MessageKindMedia, messages[0].Kind)
	assert.Equal(t, "Cardápio de hoje", messages[0].Text)
	require.NotNil(t, messages[0].Media)
	assert.Equal(t, models.MediaTypeDocument, messages[0].Media.Type)
	assert.Equal(t, "menu.pdf", messages[0].Media.Filename)
}

func TestMessageNode_EmptyTextSendsNothing(t *testing.T) {
	node, err := NewMessageNode("m1", map[string]any{"text": "{{ausente}}"})
	require.NoError(t, err)

	sender := &testutil.RecordingSender{}

	outcome, err := node.Execute(context.Background(), &protocol.Env{Sender: sender}, &models.ExecutionContext{})
	require.NoError(t, err)
	assert.Equal(t, protocol.OutcomeContinue, outcome.Kind)
	assert.Empty(t, sender.Messages())
}

func TestNewMessageNode_InvalidPayload(t *testing.T) {
	_, err := NewMessageNode("m1", map[string]any{"text": 42})
	require.Error(t, err)
}
