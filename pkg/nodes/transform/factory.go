package transform

import (
	"context"

	"github.com/repopulse/pulseflow/pkg/models"
	"github.com/repopulse/pulseflow/pkg/protocol"
)

// TransformNodeFactory creates TransformNode instances.
type TransformNodeFactory struct{}

// NewTransformNodeFactory creates a new factory instance.
func NewTransformNodeFactory() protocol.NodeFactory {
	return &TransformNodeFactory{}
}

// Create creates a new TransformNode instance.
func (f *TransformNodeFactory) Create(_ context.Context, node *models.Node) (protocol.NodeExecutor, error) {
	return NewTransformNode(node.ID, node.Config)
}

// ID returns the factory ID.
func (f *TransformNodeFactory) ID() string {
	return models.NodeTypeTransform
}

// Name returns the factory name.
func (f *TransformNodeFactory) Name() string {
	return "Transform"
}

// Description returns the factory description.
func (f *TransformNodeFactory) Description() string {
	return "Reshapes the node input into a new map using dot-path mappings. The 'nodes.<id>.' prefix reads completed node outputs."
}

// Schema returns the JSON schema for Transform node configuration.
func (f *TransformNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"mapping": map[string]any{
				"type":          "object",
				"minProperties": 1,
				"additionalProperties": map[string]any{
					"type": "string",
				},
				"description": "Output field to source path. Paths are dot-paths into the input; 'nodes.summarize.summary' reads another node's output.",
				"examples": []map[string]any{
					{"headline": "summary", "score": "nodes.sentiment.score"},
				},
			},
		},
		"required": []string{"mapping"},
	}
}
