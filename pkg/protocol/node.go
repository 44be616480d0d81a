// Package protocol defines the interfaces and contracts for pluggable node
// executors.
package protocol

import (
	"context"

	"github.com/repopulse/pulseflow/pkg/models"
)

// NodeExecutor runs one node of a workflow. Implementations must be safe
// for concurrent use across executions; per-execution state lives in the
// execution context, never on the executor.
type NodeExecutor interface {
	// Execute runs the node against the resolved input and returns its
	// output map. Failures surface as errors, typed *backend.Error for
	// model invocations.
	Execute(ctx context.Context, ectx models.ExecutionContext, input map[string]any) (map[string]any, error)

	// Type returns the node type this executor handles.
	Type() string
}

// Execution context metadata keys an executor may set to report model
// usage for the current node. The orchestrator folds them into the node's
// record after a successful attempt.
const (
	MetadataModelUsed    = "model_used"
	MetadataFailoverUsed = "failover_used"
	MetadataInputTokens  = "input_tokens"
	MetadataOutputTokens = "output_tokens"
	MetadataCostUSD      = "cost_usd"
)

// NodeFactory creates node executor instances and provides metadata about
// the node type.
type NodeFactory interface {
	// Create creates an executor for one declared node with its validated
	// configuration
	Create(ctx context.Context, node *models.Node) (NodeExecutor, error)

	// ID returns the unique identifier for this node type
	ID() string

	// Name returns the human-readable name for this node type
	Name() string

	// Description returns a description of what this node does
	Description() string

	// Schema returns the JSON schema for configuring this node
	Schema() map[string]any
}
