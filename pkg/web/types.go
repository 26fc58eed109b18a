// Package web provides the HTTP front door: the inbound message webhook and
// workflow management endpoints.
package web

import "github.com/dukex/chatflow/pkg/models"

// InboundMessageRequest is the webhook payload of one contact message.
type InboundMessageRequest struct {
	ID          string `json:"id"`
	ContactID   string `json:"contact_id"   validate:"required"`
	Text        string `json:"text"`
	DisplayName string `json:"display_name"`
}

// WorkflowRequest is the body of workflow create and replace calls.
type WorkflowRequest struct {
	ID          string                 `json:"id,omitempty"`
	Name        string                 `json:"name"         validate:"required,min=1"`
	Trigger     string                 `json:"trigger"      validate:"required"`
	Active      bool                   `json:"active"`
	Nodes       []*models.WorkflowNode `json:"nodes"        validate:"required,min=1"`
	Connections []*models.Connection   `json:"connections"`
	Variables   map[string]string      `json:"variables,omitempty"`
}

func (r WorkflowRequest) toWorkflow() *models.Workflow {
	connections := r.Connections
	if connections == nil {
		connections = []*models.Connection{}
	}

	return &models.Workflow{
		ID:          r.ID,
		Name:        r.Name,
		Trigger:     r.Trigger,
		Active:      r.Active,
		Nodes:       r.Nodes,
		Connections: connections,
		Variables:   r.Variables,
	}
}

// NodeTypeResponse describes a node type authoring tools can use.
type NodeTypeResponse struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Schema      map[string]any `json:"schema"`
}
