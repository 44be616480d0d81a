// Package output provides the terminal node implementation: it projects
// the fields the caller asked for from the final node output.
package output

import (
	"context"
	"fmt"

	"github.com/repopulse/pulseflow/pkg/models"
)

// OutputNode implements the NodeExecutor interface for workflow results.
type OutputNode struct {
	id     string
	fields []string
}

// NewOutputNode creates a new output node.
func NewOutputNode(id string, config map[string]any) (*OutputNode, error) {
	node := &OutputNode{id: id}

	if raw, ok := config["fields"]; ok {
		fields, ok := raw.([]any)
		if !ok {
			return nil, fmt.Errorf("field 'fields' must be an array of strings")
		}

		for _, f := range fields {
			name, ok := f.(string)
			if !ok {
				return nil, fmt.Errorf("field 'fields' must be an array of strings")
			}

			node.fields = append(node.fields, name)
		}
	}

	return node, nil
}

// Type returns the node type.
func (n *OutputNode) Type() string {
	return models.NodeTypeOutput
}

// Execute projects the configured fields from the input. Without a field
// list the whole input passes through.
func (n *OutputNode) Execute(_ context.Context, _ models.ExecutionContext, input map[string]any) (map[string]any, error) {
	if len(n.fields) == 0 {
		if input == nil {
			return map[string]any{}, nil
		}

		return input, nil
	}

	projected := make(map[string]any, len(n.fields))

	for _, field := range n.fields {
		if value, ok := input[field]; ok {
			projected[field] = value
		}
	}

	return projected, nil
}
