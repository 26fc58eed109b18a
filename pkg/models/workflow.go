// Package models defines the core domain models for conversational workflow automation.
package models

import (
	"errors"
	"fmt"
	"time"
)

// Workflow is a conversation flow: a graph of typed nodes started by a trigger phrase.
type Workflow struct {
	ID          string            `json:"id"          validate:"required"`
	Name        string            `json:"name"        validate:"required,min=1"`
	Trigger     string            `json:"trigger"     validate:"required"`
	Active      bool              `json:"active"`
	Nodes       []*WorkflowNode   `json:"nodes"       validate:"required,min=1,dive"`
	Connections []*Connection     `json:"connections" validate:"dive"`
	Variables   map[string]string `json:"variables,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

var (
	ErrNoTriggerNode        = errors.New("workflow has no trigger node")
	ErrMultipleTriggerNodes = errors.New("workflow has more than one trigger node")
)

// TriggerNode returns the single entry node of the graph.
func (w *Workflow) TriggerNode() (*WorkflowNode, error) {
	var trigger *WorkflowNode

	for _, node := range w.Nodes {
		if node.Type != NodeTypeTrigger {
			continue
		}

		if trigger != nil {
			return nil, fmt.Errorf("%w: %s and %s", ErrMultipleTriggerNodes, trigger.ID, node.ID)
		}

		trigger = node
	}

	if trigger == nil {
		return nil, ErrNoTriggerNode
	}

	return trigger, nil
}

// NodeByID returns the node with the given id, or nil.
func (w *Workflow) NodeByID(id string) *WorkflowNode {
	for _, node := range w.Nodes {
		if node.ID == id {
			return node
		}
	}

	return nil
}
