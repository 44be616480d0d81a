package output

import (
	"context"

	"github.com/repopulse/pulseflow/pkg/models"
	"github.com/repopulse/pulseflow/pkg/protocol"
)

// OutputNodeFactory creates OutputNode instances.
type OutputNodeFactory struct{}

// NewOutputNodeFactory creates a new factory instance.
func NewOutputNodeFactory() protocol.NodeFactory {
	return &OutputNodeFactory{}
}

// Create creates a new OutputNode instance.
func (f *OutputNodeFactory) Create(_ context.Context, node *models.Node) (protocol.NodeExecutor, error) {
	return NewOutputNode(node.ID, node.Config)
}

// ID returns the factory ID.
func (f *OutputNodeFactory) ID() string {
	return models.NodeTypeOutput
}

// Name returns the factory name.
func (f *OutputNodeFactory) Name() string {
	return "Output"
}

// Description returns the factory description.
func (f *OutputNodeFactory) Description() string {
	return "Terminal node of a workflow. Projects the configured fields into the execution result."
}

// Schema returns the JSON schema for Output node configuration.
func (f *OutputNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"fields": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string"},
				"description": "Fields to project into the result. Empty means pass everything through.",
			},
		},
	}
}
