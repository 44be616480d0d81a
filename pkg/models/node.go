package models

import "time"

// Built-in node types. The set is closed: workflows referencing any other
// type are rejected at publish time, not at execution time.
const (
	NodeTypeInput       = "input"
	NodeTypeAISummarize = "ai:summarize"
	NodeTypeAISentiment = "ai:sentiment"
	NodeTypeAIDigest    = "ai:digest"
	NodeTypeFilter      = "filter"
	NodeTypeMerge       = "merge"
	NodeTypeTransform   = "transform"
	NodeTypeOutput      = "output"
)

var knownNodeTypes = map[string]bool{
	NodeTypeInput:       true,
	NodeTypeAISummarize: true,
	NodeTypeAISentiment: true,
	NodeTypeAIDigest:    true,
	NodeTypeFilter:      true,
	NodeTypeMerge:       true,
	NodeTypeTransform:   true,
	NodeTypeOutput:      true,
}

// IsKnownNodeType reports whether the type belongs to the closed node type set.
func IsKnownNodeType(nodeType string) bool {
	return knownNodeTypes[nodeType]
}

// IsAINodeType reports whether the node type invokes an AI backend.
func IsAINodeType(nodeType string) bool {
	switch nodeType {
	case NodeTypeAISummarize, NodeTypeAISentiment, NodeTypeAIDigest:
		return true
	default:
		return false
	}
}

// Node represents one step in a workflow. Config is a typed option bag
// specific to Type, validated against the node factory's schema at publish.
type Node struct {
	ID     string         `json:"id"     validate:"required"`
	Type   string         `json:"type"   validate:"required"`
	Name   string         `json:"name"   validate:"required,min=1"`
	Config map[string]any `json:"config"`
}

// NodeExecutionStatus defines the possible states of a node execution.
type NodeExecutionStatus string

const (
	NodeExecutionStatusPending   NodeExecutionStatus = "pending"
	NodeExecutionStatusRunning   NodeExecutionStatus = "running"
	NodeExecutionStatusCompleted NodeExecutionStatus = "completed"
	NodeExecutionStatusFailed    NodeExecutionStatus = "failed"
)

// NodeExecution is the per-node record within an execution. It is created
// lazily the first time a node is reached and updated in place on each
// attempt; the latest attempt's outcome is what gets persisted.
type NodeExecution struct {
	ExecutionID     string              `json:"execution_id" validate:"required"`
	NodeID          string              `json:"node_id"      validate:"required"`
	Status          NodeExecutionStatus `json:"status"`
	Input           map[string]any      `json:"input,omitempty"`
	Output          map[string]any      `json:"output,omitempty"`
	StartedAt       *time.Time          `json:"started_at,omitempty"`
	CompletedAt     *time.Time          `json:"completed_at,omitempty"`
	DurationMs      int64               `json:"duration_ms"`
	ModelUsed       string              `json:"model_used,omitempty"`
	FailoverUsed    bool                `json:"failover_used"`
	InputTokens     int                 `json:"input_tokens"`
	OutputTokens    int                 `json:"output_tokens"`
	CostUSD         float64             `json:"cost_usd"`
	RetryCount      int                 `json:"retry_count"`
	ErrorMessage    string              `json:"error_message,omitempty"`
}
