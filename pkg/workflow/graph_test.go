package workflow

import (
	"context"
	"testing"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/registry"
	"github.com/dukex/chatflow/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompile(t *testing.T) {
	graph := compile(t, greetingWorkflow())

	assert.Equal(t, testutil.TriggerNodeID, graph.TriggerID())

	node, ok := graph.Node("choice")
	require.True(t, ok)
	assert.Equal(t, models.NodeTypeQuestion, node.Type())

	edges := graph.Edges("choice")
	require.Len(t, edges, 2)
	assert.Equal(t, "okA", edges[0].Target)
	assert.Equal(t, "okB", edges[1].Target)

	assert.Empty(t, graph.Edges("okB"))
}

func TestCompile_RejectsInvalidGraphs(t *testing.T) {
	noTrigger := testutil.NewWorkflow("no-trigger", "x").Message("m1", "oi").Build()
	noTrigger.Nodes = noTrigger.Nodes[1:]

	twoTriggers := testutil.NewWorkflow("two-triggers", "x").
		Node("second", models.NodeTypeTrigger, nil).
		Build()

	badPayload := testutil.NewWorkflow("bad-payload", "x").
		Branch("b", "reply contains").
		Chain("b").
		Build()

	duplicate := testutil.NewWorkflow("duplicate", "x").
		Message("m1", "um").
		Message("m1", "dois").
		Build()

	for _, wf := range []*models.Workflow{noTrigger, twoTriggers, badPayload, duplicate} {
		t.Run(wf.ID, func(t *testing.T) {
			_, err := Compile(context.Background(), wf, testRegistry())
			require.ErrorIs(t, err, ErrInvalidGraph)
		})
	}
}

func TestCompile_PayloadErrorsKeepCause(t *testing.T) {
	wf := testutil.NewWorkflow("bad-wait", "x").
		Node("w", models.NodeTypeWait, map[string]any{"duration": -1}).
		Build()

	_, err := Compile(context.Background(), wf, testRegistry())
	require.ErrorIs(t, err, ErrInvalidGraph)
	require.ErrorIs(t, err, registry.ErrInvalidNodeData)
}

func TestResolve(t *testing.T) {
	edges := []*models.Connection{
		{Source: "q", Target: "first", SourceHandle: "A"},
		{Source: "q", Target: "second", SourceHandle: "B"},
	}

	tests := []struct {
		name   string
		edges  []*models.Connection
		handle string
		strict bool
		target string
		ok     bool
	}{
		{"no edges", nil, "A", false, "", false},
		{"empty handle takes first edge", edges, "", false, "first", true},
		{"matching handle", edges, "B", false, "second", true},
		{"unknown handle falls back", edges, "C", false, "first", true},
		{"unknown handle in strict mode", edges, "C", true, "", false},
		{"empty handle in strict mode", edges, "", true, "first", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target, ok := Resolve(tt.edges, tt.handle, tt.strict)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.target, target)
		})
	}
}
