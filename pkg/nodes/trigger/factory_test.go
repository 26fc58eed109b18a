package trigger

import (
	"context"
	"testing"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTriggerNode_ContinuesUnconditionally(t *testing.T) {
	factory := NewTriggerNodeFactory()
	assert.Equal(t, "trigger", factory.ID())

	node, err := factory.Create(context.Background(), "start", nil)
	require.NoError(t, err)
	assert.Equal(t, "start", node.ID())
	assert.Equal(t, models.NodeTypeTrigger, node.Type())

	outcome, err := node.Execute(context.Background(), &protocol.Env{}, &models.ExecutionContext{})
	require.NoError(t, err)
	assert.Equal(t, protocol.Continue(""), outcome)
}
