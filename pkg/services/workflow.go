package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/repopulse/pulseflow/pkg/models"
	"github.com/repopulse/pulseflow/pkg/persistence"
)

// ErrWorkflowNotFound is returned when a workflow is not found.
var ErrWorkflowNotFound = persistence.ErrWorkflowNotFound

// WorkflowValidator validates a workflow before it is published. Wired
// with the node registry so per-node configs are checked against factory
// schemas.
type WorkflowValidator interface {
	ValidateWorkflow(workflow *models.Workflow) error
}

// Workflow is the workflow lifecycle service: draft management and the
// draft to published transition.
type Workflow struct {
	persistence persistence.Persistence
	validator   WorkflowValidator
}

// NewWorkflow creates a new workflow service.
func NewWorkflow(persistence persistence.Persistence, validator WorkflowValidator) *Workflow {
	return &Workflow{
		persistence: persistence,
		validator:   validator,
	}
}

// HealthCheck checks the health of the persistence layer.
func (w *Workflow) HealthCheck(ctx context.Context) (string, bool) {
	if w.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := w.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// Create stores a new draft workflow. The ID and timestamps are assigned
// here; the caller supplies everything else.
func (w *Workflow) Create(ctx context.Context, workflow *models.Workflow) (*models.Workflow, error) {
	if workflow == nil {
		return nil, ErrWorkflowNil
	}

	if workflow.Name == "" {
		return nil, ErrWorkflowNameRequired
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate workflow ID: %w", err)
	}

	now := time.Now().UTC()
	workflow.ID = id.String()
	workflow.Status = models.WorkflowStatusDraft
	workflow.CreatedAt = now
	workflow.UpdatedAt = now

	if err := w.persistence.WorkflowRepository().Save(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to save workflow: %w", err)
	}

	return workflow, nil
}

// Update replaces a draft workflow's definition. Published workflows are
// immutable.
func (w *Workflow) Update(ctx context.Context, id string, workflow *models.Workflow) (*models.Workflow, error) {
	if id == "" {
		return nil, ErrEmptyWorkflowID
	}

	if workflow == nil {
		return nil, ErrWorkflowNil
	}

	existing, err := w.persistence.WorkflowRepository().WorkflowByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if existing.Status == models.WorkflowStatusPublished {
		return nil, ErrCannotModifyPublished
	}

	workflow.ID = existing.ID
	workflow.Status = existing.Status
	workflow.CreatedAt = existing.CreatedAt
	workflow.UpdatedAt = time.Now().UTC()

	if err := w.persistence.WorkflowRepository().Save(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to save workflow: %w", err)
	}

	return workflow, nil
}

// FetchByID returns one workflow.
func (w *Workflow) FetchByID(ctx context.Context, id string) (*models.Workflow, error) {
	if id == "" {
		return nil, ErrEmptyWorkflowID
	}

	return w.persistence.WorkflowRepository().WorkflowByID(ctx, id)
}

// List returns all stored workflows.
func (w *Workflow) List(ctx context.Context) ([]*models.Workflow, error) {
	return w.persistence.WorkflowRepository().Workflows(ctx)
}

// Delete removes a draft workflow. Published workflows are kept so past
// executions stay resolvable.
func (w *Workflow) Delete(ctx context.Context, id string) error {
	if id == "" {
		return ErrEmptyWorkflowID
	}

	existing, err := w.persistence.WorkflowRepository().WorkflowByID(ctx, id)
	if err != nil {
		return err
	}

	if existing.Status == models.WorkflowStatusPublished {
		return ErrCannotModifyPublished
	}

	return w.persistence.WorkflowRepository().Delete(ctx, id)
}

// Publish validates a draft and flips it to published. After this call the
// workflow is immutable and executable.
func (w *Workflow) Publish(ctx context.Context, id string) (*models.Workflow, error) {
	if id == "" {
		return nil, ErrEmptyWorkflowID
	}

	workflow, err := w.persistence.WorkflowRepository().WorkflowByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := w.validateForPublishing(workflow); err != nil {
		return nil, err
	}

	if w.validator != nil {
		if err := w.validator.ValidateWorkflow(workflow); err != nil {
			return nil, NewValidationError("publish_workflow", "invalid_workflow", err.Error(), ErrInvalidRequest)
		}
	}

	if err := w.persistence.WorkflowRepository().Publish(ctx, id); err != nil {
		return nil, fmt.Errorf("failed to publish workflow: %w", err)
	}

	return w.persistence.WorkflowRepository().WorkflowByID(ctx, id)
}

// validateForPublishing ensures a workflow is ready to be published.
func (w *Workflow) validateForPublishing(workflow *models.Workflow) error {
	if workflow == nil {
		return ErrWorkflowNil
	}

	if workflow.Status == models.WorkflowStatusPublished {
		return ErrCannotModifyPublished
	}

	if workflow.Name == "" {
		return ErrWorkflowNameRequired
	}

	if len(workflow.Nodes) == 0 {
		return ErrNodesRequired
	}

	return nil
}
