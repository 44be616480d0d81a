package input

import (
	"context"

	"github.com/repopulse/pulseflow/pkg/models"
	"github.com/repopulse/pulseflow/pkg/protocol"
)

// InputNodeFactory creates InputNode instances.
type InputNodeFactory struct{}

// NewInputNodeFactory creates a new factory instance.
func NewInputNodeFactory() protocol.NodeFactory {
	return &InputNodeFactory{}
}

// Create creates a new InputNode instance.
func (f *InputNodeFactory) Create(_ context.Context, node *models.Node) (protocol.NodeExecutor, error) {
	return NewInputNode(node.ID, node.Config)
}

// ID returns the factory ID.
func (f *InputNodeFactory) ID() string {
	return models.NodeTypeInput
}

// Name returns the factory name.
func (f *InputNodeFactory) Name() string {
	return "Input"
}

// Description returns the factory description.
func (f *InputNodeFactory) Description() string {
	return "Entry point of a workflow. Validates required fields and passes the execution input through."
}

// Schema returns the JSON schema for Input node configuration.
func (f *InputNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"required_fields": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string"},
				"description": "Input fields that must be present for the execution to proceed",
			},
		},
	}
}
