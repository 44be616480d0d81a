// Package transform provides the field mapping node implementation: it
// reshapes its input into a new map according to a declared mapping.
package transform

import (
	"context"
	"fmt"
	"strings"

	"github.com/repopulse/pulseflow/pkg/models"
)

// TransformNode implements the NodeExecutor interface for reshaping data.
type TransformNode struct {
	id      string
	mapping map[string]string
}

// NewTransformNode creates a new transform node.
func NewTransformNode(id string, config map[string]any) (*TransformNode, error) {
	raw, ok := config["mapping"]
	if !ok {
		return nil, fmt.Errorf("missing required field 'mapping'")
	}

	entries, ok := raw.(map[string]any)
	if !ok || len(entries) == 0 {
		return nil, fmt.Errorf("field 'mapping' must be a non-empty object of output field to source path")
	}

	mapping := make(map[string]string, len(entries))

	for outputField, sourcePath := range entries {
		path, ok := sourcePath.(string)
		if !ok || path == "" {
			return nil, fmt.Errorf("mapping for %q must be a non-empty source path", outputField)
		}

		mapping[outputField] = path
	}

	return &TransformNode{id: id, mapping: mapping}, nil
}

// Type returns the node type.
func (n *TransformNode) Type() string {
	return models.NodeTypeTransform
}

// Execute builds the output by resolving each mapping entry. A source path
// is a dot-path into the node input; the prefix "nodes.<id>." reads a
// completed node's output instead.
func (n *TransformNode) Execute(_ context.Context, ectx models.ExecutionContext, input map[string]any) (map[string]any, error) {
	output := make(map[string]any, len(n.mapping))

	for field, path := range n.mapping {
		value, ok := resolve(path, input, ectx.NodeOutputs)
		if !ok {
			return nil, fmt.Errorf("source path %q for field %q resolved to nothing", path, field)
		}

		output[field] = value
	}

	return output, nil
}

func resolve(path string, input map[string]any, nodeOutputs map[string]map[string]any) (any, bool) {
	if rest, ok := strings.CutPrefix(path, "nodes."); ok {
		nodeID, fieldPath, found := strings.Cut(rest, ".")
		if !found {
			output, ok := nodeOutputs[nodeID]

			return output, ok
		}

		output, ok := nodeOutputs[nodeID]
		if !ok {
			return nil, false
		}

		return lookup(output, fieldPath)
	}

	return lookup(input, path)
}

func lookup(data map[string]any, path string) (any, bool) {
	parts := strings.Split(path, ".")
	current := any(data)

	for _, part := range parts {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}

		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}

	return current, true
}
