// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/google/uuid"
)

// TriggerNodeID is the id of the trigger node every built workflow starts with.
const TriggerNodeID = "trigger"

// WorkflowBuilder assembles workflow graphs for tests.
type WorkflowBuilder struct {
	workflow *models.Workflow
}

// NewWorkflow starts an active workflow with a single trigger node.
func NewWorkflow(id, trigger string) *WorkflowBuilder {
	if id == "" {
		id = uuid.New().String()
	}

	return &WorkflowBuilder{
		workflow: &models.Workflow{
			ID:      id,
			Name:    "Test Workflow " + id,
			Trigger: trigger,
			Active:  true,
			Nodes: []*models.WorkflowNode{
				{ID: TriggerNodeID, Type: models.NodeTypeTrigger},
			},
			Connections: []*models.Connection{},
			CreatedAt:   time.Now().UTC(),
			UpdatedAt:   time.Now().UTC(),
		},
	}
}

// Node adds a node of any type with the given payload.
func (b *WorkflowBuilder) Node(id string, nodeType models.NodeType, data any) *WorkflowBuilder {
	b.workflow.Nodes = append(b.workflow.Nodes, &models.WorkflowNode{
		ID:   id,
		Type: nodeType,
		Name: id,
		Data: toData(data),
	})

	return b
}

func (b *WorkflowBuilder) Message(id, text string) *WorkflowBuilder {
	return b.Node(id, models.NodeTypeMessage, models.MessageData{Text: text})
}

func (b *WorkflowBuilder) Wait(id string, duration int, unit string) *WorkflowBuilder {
	return b.Node(id, models.NodeTypeWait, models.WaitData{Duration: duration, Unit: unit})
}

// Question adds a question node whose options use their labels as ids.
func (b *WorkflowBuilder) Question(id, question, variable string, labels ...string) *WorkflowBuilder {
	options := make([]models.Option, 0, len(labels))
	for _, label := range labels {
		options = append(options, models.Option{ID: label, Label: label})
	}

	return b.Node(id, models.NodeTypeQuestion, models.QuestionData{
		Question: question,
		Options:  options,
		Variable: variable,
	})
}

func (b *WorkflowBuilder) Branch(id, condition string) *WorkflowBuilder {
	return b.Node(id, models.NodeTypeBranch, models.BranchData{Condition: condition})
}

func (b *WorkflowBuilder) AIStep(id, prompt string) *WorkflowBuilder {
	return b.Node(id, models.NodeTypeAIStep, models.AIStepData{Prompt: prompt})
}

func (b *WorkflowBuilder) Handoff(id, message string) *WorkflowBuilder {
	return b.Node(id, models.NodeTypeHandoff, models.ClosingData{Message: message})
}

func (b *WorkflowBuilder) Close(id, message string) *WorkflowBuilder {
	return b.Node(id, models.NodeTypeClose, models.ClosingData{Message: message})
}

// Connect adds an unconditional edge.
func (b *WorkflowBuilder) Connect(source, target string) *WorkflowBuilder {
	return b.ConnectHandle(source, "", target)
}

// ConnectHandle adds an edge taken when source resolves to handle.
func (b *WorkflowBuilder) ConnectHandle(source, handle, target string) *WorkflowBuilder {
	b.workflow.Connections = append(b.workflow.Connections, &models.Connection{
		ID:           fmt.Sprintf("%s-%s-%d", source, target, len(b.workflow.Connections)),
		Source:       source,
		Target:       target,
		SourceHandle: handle,
	})

	return b
}

// Chain connects the given node ids one after the other, starting at the trigger.
func (b *WorkflowBuilder) Chain(ids ...string) *WorkflowBuilder {
	previous := TriggerNodeID
	for _, id := range ids {
		b.Connect(previous, id)
		previous = id
	}

	return b
}

func (b *WorkflowBuilder) Variable(name, value string) *WorkflowBuilder {
	if b.workflow.Variables == nil {
		b.workflow.Variables = map[string]string{}
	}

	b.workflow.Variables[name] = value

	return b
}

func (b *WorkflowBuilder) Inactive() *WorkflowBuilder {
	b.workflow.Active = false

	return b
}

func (b *WorkflowBuilder) Build() *models.Workflow {
	return b.workflow
}

func toData(v any) map[string]any {
	raw, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}

	var data map[string]any

	err = json.Unmarshal(raw, &data)
	if err != nil {
		panic(err)
	}

	return data
}

// NewExecutionContext creates a context for the given conversation positioned at nodeID.
func NewExecutionContext(key models.ConversationKey, workflowID, nodeID string) *models.ExecutionContext {
	return &models.ExecutionContext{
		InstanceID:    key.InstanceID,
		ContactID:     key.ContactID,
		WorkflowID:    workflowID,
		CurrentNodeID: nodeID,
		Variables:     map[string]string{},
	}
}

// NewPendingAction creates an unlocked pending action expiring after ttl.
func NewPendingAction(key models.ConversationKey, title string, ttl time.Duration) *models.PendingAction {
	now := time.Now().UTC()

	return &models.PendingAction{
		ID:         uuid.New().String(),
		InstanceID: key.InstanceID,
		ContactID:  key.ContactID,
		Payload: models.ActionPayload{
			Kind:            "appointment",
			Title:           title,
			StartsAt:        now.Add(24 * time.Hour).Truncate(time.Minute),
			DurationMinutes: 30,
		},
		OwnerID:   "owner-1",
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
}
