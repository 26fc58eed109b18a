package registry

import (
	"context"
	"log/slog"
	"testing"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDefaultRegistry() *Registry {
	r := NewRegistry(slog.Default())
	r.RegisterDefaultNodes(0)

	return r
}

func TestRegisterDefaultNodes(t *testing.T) {
	r := newDefaultRegistry()

	var ids []string
	for _, factory := range r.GetAvailableNodes() {
		ids = append(ids, factory.ID())
		assert.NotEmpty(t, factory.Name())
		assert.NotEmpty(t, factory.Description())
		assert.NotNil(t, factory.Schema())
	}

	assert.Equal(t, []string{"ai_step", "branch", "close", "handoff", "message", "question", "trigger", "wait"}, ids)
}

func TestCreateNode(t *testing.T) {
	r := newDefaultRegistry()

	node, err := r.CreateNode(context.Background(), "message", "m1", map[string]any{"text": "Olá"})
	require.NoError(t, err)
	assert.Equal(t, "m1", node.ID())
	assert.Equal(t, models.NodeTypeMessage, node.Type())

	node, err = r.CreateNode(context.Background(), "trigger", "t", nil)
	require.NoError(t, err)
	assert.Equal(t, models.NodeTypeTrigger, node.Type())
}

func TestCreateNode_Errors(t *testing.T) {
	r := newDefaultRegistry()

	tests := []struct {
		name     string
		nodeType string
		data     map[string]any
		expected error
	}{
		{"unknown type", "carousel", nil, ErrUnknownNodeType},
		{"missing required field", "question", map[string]any{"options": []any{}}, ErrInvalidNodeData},
		{"wrong field type", "wait", map[string]any{"duration": "five"}, ErrInvalidNodeData},
		{"factory rejects payload", "wait", map[string]any{"duration": 5, "unit": "fortnights"}, ErrInvalidNodeData},
		{"malformed branch", "branch", map[string]any{"condition": "reply ~ sim"}, ErrInvalidNodeData},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.CreateNode(context.Background(), tt.nodeType, "n1", tt.data)
			require.ErrorIs(t, err, tt.expected)
		})
	}
}

func TestHasNode(t *testing.T) {
	r := NewRegistry(slog.Default())
	assert.False(t, r.HasNode("message"))

	r.RegisterDefaultNodes(0)
	assert.True(t, r.HasNode("message"))
}

func TestHealthCheck(t *testing.T) {
	r := NewRegistry(slog.Default())

	_, ok := r.HealthCheck()
	assert.False(t, ok)

	r.RegisterDefaultNodes(0)

	message, ok := r.HealthCheck()
	assert.True(t, ok)
	assert.Equal(t, "8 node types registered", message)
}
