package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/repopulse/pulseflow/pkg/eventbus"
	"github.com/repopulse/pulseflow/pkg/events"
	"github.com/repopulse/pulseflow/pkg/models"
	"github.com/repopulse/pulseflow/pkg/persistence"
)

// ErrExecutionNotFound is returned when an execution is not found.
var ErrExecutionNotFound = persistence.ErrExecutionNotFound

// Execution is the caller-facing execution service. Starting, pausing, and
// resuming go through the event bus; whichever worker holds the execution
// reacts to the request.
type Execution struct {
	persistence persistence.Persistence
	bus         eventbus.EventPublisher
	logger      *slog.Logger
}

// NewExecution creates a new execution service.
func NewExecution(persistence persistence.Persistence, bus eventbus.EventPublisher, logger *slog.Logger) *Execution {
	return &Execution{
		persistence: persistence,
		bus:         bus,
		logger:      logger.With("module", "execution_service"),
	}
}

// StartExecutionRequest carries the parameters for starting an execution.
type StartExecutionRequest struct {
	WorkflowID string         `validate:"required"`
	CallerID   string
	InputData  map[string]any
}

// StartExecution creates a pending execution for a published workflow and
// hands it to the workers through the event bus.
func (s *Execution) StartExecution(ctx context.Context, req StartExecutionRequest) (*models.Execution, error) {
	if req.WorkflowID == "" {
		return nil, ErrEmptyWorkflowID
	}

	workflow, err := s.persistence.WorkflowRepository().WorkflowByID(ctx, req.WorkflowID)
	if err != nil {
		return nil, err
	}

	if workflow.Status != models.WorkflowStatusPublished {
		return nil, ErrWorkflowNotPublished
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate execution ID: %w", err)
	}

	now := time.Now().UTC()
	execution := &models.Execution{
		ID:         id.String(),
		WorkflowID: workflow.ID,
		CallerID:   req.CallerID,
		Status:     models.ExecutionStatusPending,
		InputData:  req.InputData,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.persistence.ExecutionRepository().Create(ctx, execution); err != nil {
		return nil, fmt.Errorf("failed to create execution: %w", err)
	}

	event := events.ExecutionRequested{
		BaseEvent:   events.NewBaseEvent(events.ExecutionRequestedEvent, workflow.ID),
		ExecutionID: execution.ID,
		CallerID:    req.CallerID,
		InputData:   req.InputData,
	}

	if err := s.bus.Publish(ctx, execution.ID, event); err != nil {
		return nil, fmt.Errorf("failed to publish execution request: %w", err)
	}

	s.logger.InfoContext(ctx, "execution requested",
		"execution_id", execution.ID,
		"workflow_id", workflow.ID,
		"caller_id", req.CallerID)

	return execution, nil
}

// ExecutionStatus returns the current state of one execution.
func (s *Execution) ExecutionStatus(ctx context.Context, executionID string) (*models.Execution, error) {
	if executionID == "" {
		return nil, ErrEmptyExecutionID
	}

	return s.persistence.ExecutionRepository().ExecutionByID(ctx, executionID)
}

// PauseExecution asks the worker driving a running execution to pause it
// at the next node boundary. The status flips to paused only once the
// worker observes the request.
func (s *Execution) PauseExecution(ctx context.Context, executionID string) error {
	if executionID == "" {
		return ErrEmptyExecutionID
	}

	execution, err := s.persistence.ExecutionRepository().ExecutionByID(ctx, executionID)
	if err != nil {
		return err
	}

	if execution.Status != models.ExecutionStatusRunning {
		return ErrExecutionNotRunning
	}

	event := events.ExecutionPauseRequested{
		BaseEvent:   events.NewBaseEvent(events.ExecutionPauseRequestedEvent, execution.WorkflowID),
		ExecutionID: execution.ID,
	}

	if err := s.bus.Publish(ctx, execution.ID, event); err != nil {
		return fmt.Errorf("failed to publish pause request: %w", err)
	}

	s.logger.InfoContext(ctx, "execution pause requested", "execution_id", execution.ID)

	return nil
}

// ResumeExecution asks a worker to pick a paused execution back up from
// its current node. Completed nodes are not re-executed.
func (s *Execution) ResumeExecution(ctx context.Context, executionID string) error {
	if executionID == "" {
		return ErrEmptyExecutionID
	}

	execution, err := s.persistence.ExecutionRepository().ExecutionByID(ctx, executionID)
	if err != nil {
		return err
	}

	if execution.Status != models.ExecutionStatusPaused {
		return ErrExecutionNotPaused
	}

	event := events.ExecutionResumeRequested{
		BaseEvent:   events.NewBaseEvent(events.ExecutionResumeRequestedEvent, execution.WorkflowID),
		ExecutionID: execution.ID,
	}

	if err := s.bus.Publish(ctx, execution.ID, event); err != nil {
		return fmt.Errorf("failed to publish resume request: %w", err)
	}

	s.logger.InfoContext(ctx, "execution resume requested", "execution_id", execution.ID)

	return nil
}

// NodeExecutions returns the per-node records of one execution, ordered by
// start time.
func (s *Execution) NodeExecutions(ctx context.Context, executionID string) ([]*models.NodeExecution, error) {
	if executionID == "" {
		return nil, ErrEmptyExecutionID
	}

	if _, err := s.persistence.ExecutionRepository().ExecutionByID(ctx, executionID); err != nil {
		return nil, err
	}

	return s.persistence.NodeExecutionRepository().ListByExecution(ctx, executionID)
}

// TokenUsage returns the token usage records of one execution.
func (s *Execution) TokenUsage(ctx context.Context, executionID string) ([]models.TokenUsageRecord, error) {
	if executionID == "" {
		return nil, ErrEmptyExecutionID
	}

	if _, err := s.persistence.ExecutionRepository().ExecutionByID(ctx, executionID); err != nil {
		return nil, err
	}

	return s.persistence.TokenUsageRepository().ListByExecution(ctx, executionID)
}
