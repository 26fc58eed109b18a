package models

// NodeType is the closed set of step kinds a workflow graph can contain.
type NodeType string

const (
	NodeTypeTrigger  NodeType = "trigger"
	NodeTypeMessage  NodeType = "message"
	NodeTypeWait     NodeType = "wait"
	NodeTypeQuestion NodeType = "question"
	NodeTypeHandoff  NodeType = "handoff"
	NodeTypeClose    NodeType = "close"
	NodeTypeAIStep   NodeType = "ai_step"
	NodeTypeBranch   NodeType = "branch"
)

// Branch handles produced by branch nodes.
const (
	HandleTrue  = "true"
	HandleFalse = "false"
)

// WorkflowNode represents a node instance in a workflow.
type WorkflowNode struct {
	ID   string         `json:"id"   validate:"required"`
	Type NodeType       `json:"type" validate:"required"`
	Name string         `json:"name,omitempty"`
	Data map[string]any `json:"data,omitempty"`
}

// Connection is a directed edge. An empty SourceHandle marks the unconditional edge.
type Connection struct {
	ID           string `json:"id,omitempty"`
	Source       string `json:"source"                  validate:"required"`
	Target       string `json:"target"                  validate:"required"`
	SourceHandle string `json:"source_handle,omitempty"`
	TargetHandle string `json:"target_handle,omitempty"` // authoring tools only
}
