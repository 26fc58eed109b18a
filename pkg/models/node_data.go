package models

import (
	"encoding/json"
	"fmt"
)

// MessageData is the payload of a message node.
type MessageData struct {
	Text  string `json:"text"`
	Media *Media `json:"media,omitempty"`
}

// WaitData is the payload of a wait node.
type WaitData struct {
	Duration int    `json:"duration"`
	Unit     string `json:"unit"` // seconds, minutes or hours
}

// Option is one selectable answer of a question node. ID doubles as the edge handle.
type Option struct {
	ID    string `json:"id,omitempty"`
	Label string `json:"label"`
}

// Handle returns the source handle that routes this option.
func (o Option) Handle() string {
	if o.ID != "" {
		return o.ID
	}

	return o.Label
}

// QuestionData is the payload of a question node.
type QuestionData struct {
	Question string   `json:"question"`
	Options  []Option `json:"options"`
	Variable string   `json:"variable,omitempty"` // stores the answer when set
}

// BranchData is the payload of a branch node. Condition takes precedence over the
// structured Field/Operator/Value form.
type BranchData struct {
	Condition string `json:"condition,omitempty"`
	Field     string `json:"field,omitempty"`
	Operator  string `json:"operator,omitempty"`
	Value     string `json:"value,omitempty"`
}

// AIStepData is the payload of an ai_step node.
type AIStepData struct {
	Prompt       string   `json:"prompt"`
	SystemPrompt string   `json:"system_prompt,omitempty"`
	Temperature  *float64 `json:"temperature,omitempty"`
	MaxTokens    int      `json:"max_tokens,omitempty"`
	HistorySize  int      `json:"history_size,omitempty"`
}

// ClosingData is the payload of handoff and close nodes.
type ClosingData struct {
	Message string `json:"message,omitempty"`
}

// DecodeData converts a free-form node payload into its typed form.
func DecodeData[T any](data map[string]any) (T, error) {
	var out T

	if len(data) == 0 {
		return out, nil
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return out, fmt.Errorf("failed to encode node data: %w", err)
	}

	err = json.Unmarshal(raw, &out)
	if err != nil {
		return out, fmt.Errorf("failed to decode node data into %T: %w", out, err)
	}

	return out, nil
}
