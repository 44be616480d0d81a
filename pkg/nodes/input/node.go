// Package input provides the entry node implementation: it validates the
// execution's initial input and passes it through unchanged.
package input

import (
	"context"
	"fmt"

	"github.com/repopulse/pulseflow/pkg/models"
)

// InputNode implements the NodeExecutor interface for the workflow entry
// point.
type InputNode struct {
	id             string
	requiredFields []string
}

// NewInputNode creates a new input node.
func NewInputNode(id string, config map[string]any) (*InputNode, error) {
	node := &InputNode{id: id}

	if raw, ok := config["required_fields"]; ok {
		fields, ok := raw.([]any)
		if !ok {
			return nil, fmt.Errorf("field 'required_fields' must be an array of strings")
		}

		for _, f := range fields {
			name, ok := f.(string)
			if !ok {
				return nil, fmt.Errorf("field 'required_fields' must be an array of strings")
			}

			node.requiredFields = append(node.requiredFields, name)
		}
	}

	return node, nil
}

// Type returns the node type.
func (n *InputNode) Type() string {
	return models.NodeTypeInput
}

// Execute checks the required fields and passes the input through.
func (n *InputNode) Execute(_ context.Context, _ models.ExecutionContext, input map[string]any) (map[string]any, error) {
	for _, field := range n.requiredFields {
		if _, ok := input[field]; !ok {
			return nil, fmt.Errorf("missing required input field %q", field)
		}
	}

	if input == nil {
		return map[string]any{}, nil
	}

	return input, nil
}
