// Package merge provides the fan-in node implementation: it combines the
// outputs of previously completed nodes into one map.
package merge

import (
	"context"
	"fmt"

	"github.com/repopulse/pulseflow/pkg/models"
)

// MergeNode implements the NodeExecutor interface for combining node
// outputs.
type MergeNode struct {
	id      string
	sources []string
}

// NewMergeNode creates a new merge node.
func NewMergeNode(id string, config map[string]any) (*MergeNode, error) {
	raw, ok := config["sources"]
	if !ok {
		return nil, fmt.Errorf("missing required field 'sources'")
	}

	list, ok := raw.([]any)
	if !ok || len(list) == 0 {
		return nil, fmt.Errorf("field 'sources' must be a non-empty array of node IDs")
	}

	sources := make([]string, 0, len(list))

	for _, entry := range list {
		nodeID, ok := entry.(string)
		if !ok {
			return nil, fmt.Errorf("field 'sources' must be a non-empty array of node IDs")
		}

		sources = append(sources, nodeID)
	}

	return &MergeNode{id: id, sources: sources}, nil
}

// Type returns the node type.
func (n *MergeNode) Type() string {
	return models.NodeTypeMerge
}

// Execute merges the configured source nodes' outputs in declaration
// order; later sources win on key conflicts. The node's own input merges
// last.
func (n *MergeNode) Execute(_ context.Context, ectx models.ExecutionContext, input map[string]any) (map[string]any, error) {
	merged := make(map[string]any)

	for _, source := range n.sources {
		output, ok := ectx.NodeOutputs[source]
		if !ok {
			return nil, fmt.Errorf("merge source %q has not completed", source)
		}

		for key, value := range output {
			merged[key] = value
		}
	}

	for key, value := range input {
		merged[key] = value
	}

	return merged, nil
}
