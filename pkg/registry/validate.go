package registry

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/repopulse/pulseflow/pkg/models"
)

// ValidateWorkflow runs the structural workflow checks plus per-node
// config validation against each factory's JSON schema. Called before a
// workflow is published so executions never meet a malformed node.
func (r *Registry) ValidateWorkflow(workflow *models.Workflow) error {
	if err := workflow.Validate(); err != nil {
		return fmt.Errorf("invalid workflow %s: %w", workflow.ID, err)
	}

	for _, node := range workflow.Nodes {
		if err := r.ValidateNodeConfig(node); err != nil {
			return err
		}
	}

	return nil
}

// ValidateNodeConfig validates one node's config against its factory
// schema.
func (r *Registry) ValidateNodeConfig(node *models.Node) error {
	factory, err := r.NodeFactory(node.Type)
	if err != nil {
		return fmt.Errorf("node %s: %w", node.ID, err)
	}

	config := node.Config
	if config == nil {
		config = map[string]any{}
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(factory.Schema()),
		gojsonschema.NewGoLoader(config))
	if err != nil {
		return fmt.Errorf("node %s: failed to validate config: %w", node.ID, err)
	}

	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			details = append(details, desc.String())
		}

		return fmt.Errorf("node %s: invalid config: %s", node.ID, strings.Join(details, "; "))
	}

	return nil
}
