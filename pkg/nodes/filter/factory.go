package filter

import (
	"context"

	"github.com/repopulse/pulseflow/pkg/models"
	"github.com/repopulse/pulseflow/pkg/protocol"
)

// FilterNodeFactory creates FilterNode instances.
type FilterNodeFactory struct{}

// NewFilterNodeFactory creates a new factory instance.
func NewFilterNodeFactory() protocol.NodeFactory {
	return &FilterNodeFactory{}
}

// Create creates a new FilterNode instance.
func (f *FilterNodeFactory) Create(_ context.Context, node *models.Node) (protocol.NodeExecutor, error) {
	return NewFilterNode(node.ID, node.Config)
}

// ID returns the factory ID.
func (f *FilterNodeFactory) ID() string {
	return models.NodeTypeFilter
}

// Name returns the factory name.
func (f *FilterNodeFactory) Name() string {
	return "Filter"
}

// Description returns the factory description.
func (f *FilterNodeFactory) Description() string {
	return "Evaluates a predicate against the node input and annotates the result with 'matched' for conditional branching."
}

// Schema returns the JSON schema for Filter node configuration.
func (f *FilterNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"kind": map[string]any{
				"type":        "string",
				"enum":        []string{"always", "never", "equals", "contains", "greater_than", "less_than", "matches_pattern"},
				"description": "Predicate kind",
			},
			"field": map[string]any{
				"type":        "string",
				"description": "Dot-path into the input the predicate reads",
			},
			"value": map[string]any{
				"description": "Comparison value for the predicate",
			},
		},
		"required": []string{"kind"},
	}
}
