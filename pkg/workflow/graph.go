// Package workflow compiles workflow definitions into runnable graphs and walks
// them one conversation turn at a time.
package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/protocol"
	"github.com/dukex/chatflow/pkg/registry"
)

var ErrInvalidGraph = errors.New("invalid workflow graph")

// Graph is an immutable compiled workflow.
type Graph struct {
	workflow  *models.Workflow
	nodes     map[string]protocol.Node
	edges     map[string][]*models.Connection
	triggerID string
}

// Compile builds every node through the registry. Node types without a factory
// become pass-through nodes.
func Compile(ctx context.Context, wf *models.Workflow, reg *registry.Registry) (*Graph, error) {
	trigger, err := wf.TriggerNode()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidGraph, wf.ID, err)
	}

	g := &Graph{
		workflow:  wf,
		nodes:     make(map[string]protocol.Node, len(wf.Nodes)),
		edges:     make(map[string][]*models.Connection),
		triggerID: trigger.ID,
	}

	for _, wn := range wf.Nodes {
		if _, dup := g.nodes[wn.ID]; dup {
			return nil, fmt.Errorf("%w: %s: duplicate node id %s", ErrInvalidGraph, wf.ID, wn.ID)
		}

		if !reg.HasNode(string(wn.Type)) {
			g.nodes[wn.ID] = &passthroughNode{id: wn.ID, nodeType: wn.Type}

			continue
		}

		node, err := reg.CreateNode(ctx, string(wn.Type), wn.ID, wn.Data)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidGraph, wf.ID, err)
		}

		g.nodes[wn.ID] = node
	}

	for _, conn := range wf.Connections {
		g.edges[conn.Source] = append(g.edges[conn.Source], conn)
	}

	return g, nil
}

func (g *Graph) Workflow() *models.Workflow {
	return g.workflow
}

// TriggerID is the id of the entry node.
func (g *Graph) TriggerID() string {
	return g.triggerID
}

func (g *Graph) Node(id string) (protocol.Node, bool) {
	node, ok := g.nodes[id]

	return node, ok
}

// Edges returns the outgoing edges of id in authored order.
func (g *Graph) Edges(id string) []*models.Connection {
	return g.edges[id]
}

type passthroughNode struct {
	id       string
	nodeType models.NodeType
}

func (n *passthroughNode) ID() string {
	return n.id
}

func (n *passthroughNode) Type() models.NodeType {
	return n.nodeType
}

func (n *passthroughNode) Execute(_ context.Context, env *protocol.Env, _ *models.ExecutionContext) (protocol.Outcome, error) {
	if env.Logger != nil {
		env.Logger.Warn("Skipping node of unknown type", "node_id", n.id, "node_type", n.nodeType)
	}

	return protocol.Continue(""), nil
}
