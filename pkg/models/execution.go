package models

import "time"

// ExecutionStatus defines the lifecycle states of an execution.
// Completed and failed are terminal: once reached, no further node
// execution may be dispatched.
type ExecutionStatus string

const (
	ExecutionStatusPending   ExecutionStatus = "pending"
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusPaused    ExecutionStatus = "paused"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
)

// IsTerminal reports whether the status permits no further transitions.
func (s ExecutionStatus) IsTerminal() bool {
	return s == ExecutionStatusCompleted || s == ExecutionStatusFailed
}

// Execution is one run of a workflow. It is created when an execution is
// requested and mutated only by the orchestrator driving it.
type Execution struct {
	ID            string          `json:"id"          validate:"required"`
	WorkflowID    string          `json:"workflow_id" validate:"required"`
	CallerID      string          `json:"caller_id"`
	Status        ExecutionStatus `json:"status"      validate:"required"`
	CurrentNodeID string          `json:"current_node_id,omitempty"`
	InputData     map[string]any  `json:"input_data,omitempty"`
	OutputData    map[string]any  `json:"output_data,omitempty"`
	StartedAt     *time.Time      `json:"started_at,omitempty"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
	ErrorMessage  string          `json:"error_message,omitempty"`
	ErrorNodeID   string          `json:"error_node_id,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// ExecutionContext is the read-mostly view handed to node executors.
// NodeOutputs accumulates the completed nodes' outputs keyed by node ID.
type ExecutionContext struct {
	ExecutionID string                    `json:"execution_id"`
	WorkflowID  string                    `json:"workflow_id"`
	CallerID    string                    `json:"caller_id"`
	InputData   map[string]any            `json:"input_data,omitempty"`
	NodeOutputs map[string]map[string]any `json:"node_outputs,omitempty"`
	Retry       RetryDirective            `json:"retry"`
	Metadata    map[string]any            `json:"metadata,omitempty"`
}

// RetryDirective tells an executor how the failure handler wants the
// current attempt adjusted. The zero value means a plain first attempt.
type RetryDirective struct {
	Attempt         int    `json:"attempt"`
	AlternateModel  bool   `json:"alternate_model"`          // route around the previously chosen model
	SafetyAdjusted  bool   `json:"safety_adjusted"`          // rephrase after a content safety rejection
	CheapCompletion bool   `json:"cheap_completion"`         // finish a partial result on a fast tier
	PartialResult   string `json:"partial_result,omitempty"` // salvaged output the completion attempt extends
}
