// Package persistence provides the data storage abstraction layer for
// workflows, executions, and usage records.
package persistence

import (
	"context"

	"github.com/repopulse/pulseflow/pkg/models"
)

// WorkflowRepository stores workflow definitions. Published workflows are
// immutable; implementations reject saves over a published workflow.
type WorkflowRepository interface {
	Save(ctx context.Context, workflow *models.Workflow) error
	WorkflowByID(ctx context.Context, id string) (*models.Workflow, error)
	Workflows(ctx context.Context) ([]*models.Workflow, error)
	Delete(ctx context.Context, id string) error
	Publish(ctx context.Context, id string) error
}

// ExecutionRepository stores execution records. Only the orchestrator
// driving an execution updates it.
type ExecutionRepository interface {
	Create(ctx context.Context, execution *models.Execution) error
	Update(ctx context.Context, execution *models.Execution) error
	ExecutionByID(ctx context.Context, id string) (*models.Execution, error)
	ListByStatus(ctx context.Context, status models.ExecutionStatus) ([]*models.Execution, error)
}

// NodeExecutionRepository stores per-node attempt records. Save upserts;
// at minimum the latest attempt's outcome is durable.
type NodeExecutionRepository interface {
	Save(ctx context.Context, record *models.NodeExecution) error
	NodeExecution(ctx context.Context, executionID, nodeID string) (*models.NodeExecution, error)
	ListByExecution(ctx context.Context, executionID string) ([]*models.NodeExecution, error)
}

// TokenUsageRepository stores append-only token usage facts. Records are
// never mutated after append.
type TokenUsageRepository interface {
	Append(ctx context.Context, record models.TokenUsageRecord) error
	ListByExecution(ctx context.Context, executionID string) ([]models.TokenUsageRecord, error)
}

type Persistence interface {
	WorkflowRepository() WorkflowRepository
	ExecutionRepository() ExecutionRepository
	NodeExecutionRepository() NodeExecutionRepository
	TokenUsageRepository() TokenUsageRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
