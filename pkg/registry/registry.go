// Package registry maps node types to the factories that build them.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/dukex/chatflow/pkg/protocol"
	"github.com/xeipuuv/gojsonschema"
)

var (
	ErrUnknownNodeType = errors.New("node type not registered")
	ErrInvalidNodeData = errors.New("invalid node data")
)

type Registry struct {
	logger *slog.Logger

	mu        sync.RWMutex
	factories map[string]protocol.NodeFactory
	schemas   map[string]*gojsonschema.Schema
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		logger:    log.With("module", "registry"),
		factories: make(map[string]protocol.NodeFactory),
		schemas:   make(map[string]*gojsonschema.Schema),
	}
}

// RegisterNode adds or replaces the factory for factory.ID().
func (r *Registry) RegisterNode(factory protocol.NodeFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.factories[factory.ID()] = factory
	delete(r.schemas, factory.ID())

	if raw := factory.Schema(); raw != nil {
		schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(raw))
		if err != nil {
			r.logger.Warn("Ignoring invalid node schema", "node_type", factory.ID(), "error", err)
		} else {
			r.schemas[factory.ID()] = schema
		}
	}

	r.logger.Debug("Registered node factory", "node_type", factory.ID())
}

// CreateNode validates data against the factory schema and builds the node.
func (r *Registry) CreateNode(ctx context.Context, nodeType, id string, data map[string]any) (protocol.Node, error) {
	r.mu.RLock()
	factory, ok := r.factories[nodeType]
	schema := r.schemas[nodeType]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownNodeType, nodeType)
	}

	if schema != nil {
		err := validate(schema, data)
		if err != nil {
			return nil, fmt.Errorf("node %s (%s): %w", id, nodeType, err)
		}
	}

	node, err := factory.Create(ctx, id, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidNodeData, err)
	}

	return node, nil
}

// HasNode reports whether nodeType has a factory.
func (r *Registry) HasNode(nodeType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.factories[nodeType]

	return ok
}

// GetAvailableNodes returns the registered factories ordered by type.
func (r *Registry) GetAvailableNodes() []protocol.NodeFactory {
	r.mu.RLock()
	defer r.mu.RUnlock()

	factories := make([]protocol.NodeFactory, 0, len(r.factories))
	for _, factory := range r.factories {
		factories = append(factories, factory)
	}

	slices.SortFunc(factories, func(a, b protocol.NodeFactory) int {
		return strings.Compare(a.ID(), b.ID())
	})

	return factories
}

func validate(schema *gojsonschema.Schema, data map[string]any) error {
	if data == nil {
		data = map[string]any{}
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(data))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidNodeData, err)
	}

	if !result.Valid() {
		var problems []string
		for _, desc := range result.Errors() {
			problems = append(problems, desc.String())
		}

		return fmt.Errorf("%w: %s", ErrInvalidNodeData, strings.Join(problems, "; "))
	}

	return nil
}

// HealthCheck reports whether any node type is available.
func (r *Registry) HealthCheck() (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.factories) == 0 {
		return "No node types registered", false
	}

	return fmt.Sprintf("%d node types registered", len(r.factories)), true
}
