package merge

import (
	"context"

	"github.com/repopulse/pulseflow/pkg/models"
	"github.com/repopulse/pulseflow/pkg/protocol"
)

// MergeNodeFactory creates MergeNode instances.
type MergeNodeFactory struct{}

// NewMergeNodeFactory creates a new factory instance.
func NewMergeNodeFactory() protocol.NodeFactory {
	return &MergeNodeFactory{}
}

// Create creates a new MergeNode instance.
func (f *MergeNodeFactory) Create(_ context.Context, node *models.Node) (protocol.NodeExecutor, error) {
	return NewMergeNode(node.ID, node.Config)
}

// ID returns the factory ID.
func (f *MergeNodeFactory) ID() string {
	return models.NodeTypeMerge
}

// Name returns the factory name.
func (f *MergeNodeFactory) Name() string {
	return "Merge"
}

// Description returns the factory description.
func (f *MergeNodeFactory) Description() string {
	return "Combines the outputs of completed upstream nodes into one map. Later sources win on key conflicts."
}

// Schema returns the JSON schema for Merge node configuration.
func (f *MergeNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"sources": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string"},
				"minItems":    1,
				"description": "Node IDs whose outputs are merged, in order",
			},
		},
		"required": []string{"sources"},
	}
}
