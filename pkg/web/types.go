// Package web provides the HTTP facade over the workflow and execution
// services.
package web

import "github.com/repopulse/pulseflow/pkg/models"

// CreateWorkflowRequest represents the request body for creating a new workflow.
// Workflows are declared whole: nodes and edges come with the definition.
type CreateWorkflowRequest struct {
	Name        string         `json:"name"          validate:"required,min=3"`
	Description string         `json:"description"`
	Owner       string         `json:"owner"`
	EntryNodeID string         `json:"entry_node_id" validate:"required"`
	Nodes       []*models.Node `json:"nodes"         validate:"required,min=1"`
	Edges       []*models.Edge `json:"edges"`
}

// UpdateWorkflowRequest represents the request body for updating a draft
// workflow. Fields are optional to support partial updates.
type UpdateWorkflowRequest struct {
	Name        *string        `json:"name,omitempty"          validate:"omitempty,min=3"`
	Description *string        `json:"description,omitempty"`
	EntryNodeID *string        `json:"entry_node_id,omitempty"`
	Nodes       []*models.Node `json:"nodes,omitempty"`
	Edges       []*models.Edge `json:"edges,omitempty"`
}

// StartExecutionRequest represents the request body for starting an execution.
type StartExecutionRequest struct {
	WorkflowID string         `json:"workflow_id" validate:"required"`
	CallerID   string         `json:"caller_id"`
	Input      map[string]any `json:"input"`
}

// StartExecutionResponse is returned when an execution has been accepted.
type StartExecutionResponse struct {
	ExecutionID string `json:"execution_id"`
	Status      string `json:"status"`
}
