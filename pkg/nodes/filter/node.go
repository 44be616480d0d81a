// Package filter provides the predicate node implementation: it evaluates
// a condition against its input and annotates the result so downstream
// conditional edges can branch on it.
package filter

import (
	"context"
	"fmt"

	"github.com/repopulse/pulseflow/pkg/models"
)

// FilterNode implements the NodeExecutor interface for predicate checks.
type FilterNode struct {
	id        string
	condition models.EdgeCondition
}

// NewFilterNode creates a new filter node.
func NewFilterNode(id string, config map[string]any) (*FilterNode, error) {
	kind, ok := config["kind"].(string)
	if !ok {
		return nil, fmt.Errorf("missing required field 'kind'")
	}

	condition := models.EdgeCondition{
		Kind:  models.ConditionKind(kind),
		Value: config["value"],
	}

	if field, ok := config["field"].(string); ok {
		condition.Field = field
	}

	if err := condition.Validate(); err != nil {
		return nil, fmt.Errorf("invalid filter condition: %w", err)
	}

	return &FilterNode{id: id, condition: condition}, nil
}

// Type returns the node type.
func (n *FilterNode) Type() string {
	return models.NodeTypeFilter
}

// Execute evaluates the condition against the input and passes the input
// through with a "matched" annotation.
func (n *FilterNode) Execute(_ context.Context, _ models.ExecutionContext, input map[string]any) (map[string]any, error) {
	matched, err := n.condition.Evaluate(input)
	if err != nil {
		return nil, fmt.Errorf("filter evaluation failed: %w", err)
	}

	output := make(map[string]any, len(input)+1)
	for key, value := range input {
		output[key] = value
	}

	output["matched"] = matched

	return output, nil
}
