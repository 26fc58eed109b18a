package aistep

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/protocol"
	"github.com/dukex/chatflow/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGenerator struct {
	generation protocol.Generation
	err        error

	prompt string
	opts   protocol.GenerateOptions
}

func (g *fakeGenerator) Generate(_ context.Context, prompt string, opts protocol.GenerateOptions) (protocol.Generation, error) {
	g.prompt = prompt
	g.opts = opts

	return g.generation, g.err
}

type fakeProposer struct {
	payloads []models.ActionPayload
	owners   []string
	err      error
}

func (p *fakeProposer) Propose(_ context.Context, key models.ConversationKey, payload models.ActionPayload, ownerID string) (*models.PendingAction, error) {
	p.payloads = append(p.payloads, payload)
	p.owners = append(p.owners, ownerID)

	if p.err != nil {
		return nil, p.err
	}

	return &models.PendingAction{ID: "pa-1", InstanceID: key.InstanceID, ContactID: key.ContactID, Payload: payload}, nil
}

func TestAIStepNode_SendsGeneratedText(t *testing.T) {
	node, err := NewAIStepNodeFactory().Create(context.Background(), "ai", map[string]any{
		"prompt":        "Responda {{nome}} sobre horários",
		"system_prompt": "Você atende a clínica",
		"history_size":  2,
		"temperature":   0.2,
	})
	require.NoError(t, err)

	generator := &fakeGenerator{generation: protocol.Generation{Text: "Abrimos às 8h, {{nome}}."}}
	sender := &testutil.RecordingSender{}

	execCtx := &models.ExecutionContext{Variables: map[string]string{"nome": "Ana"}}
	for i := range 3 {
		execCtx.History = append(execCtx.History, models.Turn{Role: models.TurnRoleUser, Text: fmt.Sprintf("m%d", i), At: time.Now()})
	}

	outcome, err := node.Execute(context.Background(), &protocol.Env{Sender: sender, Generator: generator}, execCtx)
	require.NoError(t, err)
	assert.Equal(t, protocol.Continue(""), outcome)
	assert.Equal(t, []string{"Abrimos às 8h, Ana."}, sender.Texts())

	assert.Equal(t, "Responda Ana sobre horários", generator.prompt)
	assert.Equal(t, "Você atende a clínica", generator.opts.SystemPrompt)
	require.Len(t, generator.opts.History, 2)
	assert.Equal(t, "m1", generator.opts.History[0].Text)
	require.NotNil(t, generator.opts.Temperature)
	assert.InDelta(t, 0.2, *generator.opts.Temperature, 0.0001)
}

func TestAIStepNode_GenerationFailureStillAdvances(t *testing.T) {
	node, err := NewAIStepNode("ai", map[string]any{"prompt": "olá"})
	require.NoError(t, err)

	sender := &testutil.RecordingSender{}
	generator := &fakeGenerator{err: errors.New("upstream timeout")}

	outcome, err := node.Execute(context.Background(), &protocol.Env{Sender: sender, Generator: generator}, &models.ExecutionContext{})
	require.NoError(t, err)
	assert.Equal(t, protocol.OutcomeContinue, outcome.Kind)
	assert.Equal(t, []string{ApologyMessage}, sender.Texts())
}

func TestAIStepNode_ProposesAction(t *testing.T) {
	node, err := NewAIStepNode("ai", map[string]any{"prompt": "agende"})
	require.NoError(t, err)

	payload := models.ActionPayload{Kind: "booking", Title: "Consulta", DurationMinutes: 30}
	generator := &fakeGenerator{generation: protocol.Generation{Text: "Posso confirmar?", Proposal: &payload}}
	proposer := &fakeProposer{}

	env := &protocol.Env{
		Key:       models.ConversationKey{InstanceID: "inst", ContactID: "5511"},
		Sender:    &testutil.RecordingSender{},
		Generator: generator,
		Proposer:  proposer,
	}

	_, err = node.Execute(context.Background(), env, &models.ExecutionContext{WorkflowID: "wf-1"})
	require.NoError(t, err)
	assert.Equal(t, []models.ActionPayload{payload}, proposer.payloads)
	assert.Equal(t, []string{"workflow:wf-1"}, proposer.owners)
}

func TestAIStepNode_ProposalFailureIsNotFatal(t *testing.T) {
	node, err := NewAIStepNode("ai", map[string]any{"prompt": "agende"})
	require.NoError(t, err)

	payload := models.ActionPayload{Kind: "booking", Title: "Consulta"}
	env := &protocol.Env{
		Sender:    &testutil.RecordingSender{},
		Generator: &fakeGenerator{generation: protocol.Generation{Proposal: &payload}},
		Proposer:  &fakeProposer{err: errors.New("in flight")},
	}

	outcome, err := node.Execute(context.Background(), env, &models.ExecutionContext{})
	require.NoError(t, err)
	assert.Equal(t, protocol.OutcomeContinue, outcome.Kind)
}
