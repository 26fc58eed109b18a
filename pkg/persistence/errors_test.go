package persistence_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/dukex/chatflow/pkg/persistence"
	"github.com/stretchr/testify/assert"
)

func TestStandardizedErrors(t *testing.T) {
	t.Parallel()

	t.Run("workflow error unwraps", func(t *testing.T) {
		err := persistence.NewWorkflowError("GetByID", "workflow-123", persistence.ErrWorkflowNotFound)

		assert.True(t, persistence.IsWorkflowNotFound(err))
		assert.True(t, errors.Is(err, persistence.ErrWorkflowNotFound))
		assert.Contains(t, err.Error(), "GetByID")
		assert.Contains(t, err.Error(), "workflow-123")
	})

	t.Run("conversation error unwraps", func(t *testing.T) {
		err := persistence.NewConversationError("Create", "inst-1", "5511", persistence.ErrPendingActionExists)

		assert.ErrorIs(t, err, persistence.ErrPendingActionExists)
		assert.Contains(t, err.Error(), "inst-1:5511")
	})

	t.Run("helpers see through fmt wrapping", func(t *testing.T) {
		err := fmt.Errorf("load: %w", persistence.NewConversationError("Get", "i", "c", persistence.ErrExecutionContextNotFound))

		assert.True(t, persistence.IsExecutionContextNotFound(err))
		assert.False(t, persistence.IsPendingActionNotFound(err))
		assert.True(t, persistence.IsPendingActionNotFound(persistence.ErrPendingActionNotFound))
	})
}
