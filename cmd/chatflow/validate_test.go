package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/dukex/chatflow/pkg/cmd"
	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/persistence/file"
	"github.com/dukex/chatflow/pkg/testutil"
	"github.com/dukex/chatflow/pkg/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateWorkflows(t *testing.T) {
	ctx := context.Background()
	store := file.NewPersistence(t.TempDir())
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repository := workflow.NewRepository(store, cmd.NewRegistry(logger, 0))

	valid := testutil.NewWorkflow("greeting", "oi").
		Message("hello", "Olá").
		Chain("hello").
		Build()
	require.NoError(t, store.WorkflowRepository().Save(ctx, valid))

	broken := testutil.NewWorkflow("broken", "menu").
		Node("second", models.NodeTypeTrigger, nil).
		Build()
	require.NoError(t, store.WorkflowRepository().Save(ctx, broken))

	var out bytes.Buffer

	err := validateWorkflows(ctx, repository, &out)

	require.ErrorIs(t, err, ErrInvalidWorkflows)
	assert.Contains(t, out.String(), "INVALID broken (Test Workflow broken)")
	assert.Contains(t, out.String(), "OK      "+valid.ID)
	assert.Contains(t, out.String(), "2 workflows, 1 invalid")
}
