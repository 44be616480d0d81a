// Package registry holds the node factory lookup table and validates node
// configurations against factory schemas at workflow publish time.
package registry

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/repopulse/pulseflow/pkg/models"
	"github.com/repopulse/pulseflow/pkg/protocol"
)

// Registry maps node types to their factories. Populated once at startup;
// unknown node types are rejected when a workflow is published, never at
// execution time.
type Registry struct {
	logger        *slog.Logger
	nodeFactories map[string]protocol.NodeFactory
}

// NewRegistry creates an empty registry.
func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		logger:        log,
		nodeFactories: make(map[string]protocol.NodeFactory),
	}
}

// RegisterNode adds a node factory, keyed by its type ID.
func (r *Registry) RegisterNode(factory protocol.NodeFactory) {
	r.nodeFactories[factory.ID()] = factory
}

// NodeFactory returns the factory for a node type.
func (r *Registry) NodeFactory(nodeType string) (protocol.NodeFactory, error) {
	factory, ok := r.nodeFactories[nodeType]
	if !ok {
		return nil, fmt.Errorf("node type '%s' not registered", nodeType)
	}

	return factory, nil
}

// ExecutorFor creates the executor for a declared node.
func (r *Registry) ExecutorFor(ctx context.Context, node *models.Node) (protocol.NodeExecutor, error) {
	factory, err := r.NodeFactory(node.Type)
	if err != nil {
		return nil, err
	}

	return factory.Create(ctx, node)
}

// NodeTypes returns the registered node type IDs.
func (r *Registry) NodeTypes() []string {
	types := make([]string, 0, len(r.nodeFactories))
	for nodeType := range r.nodeFactories {
		types = append(types, nodeType)
	}

	return types
}
