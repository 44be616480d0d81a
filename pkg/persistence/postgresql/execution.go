package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/repopulse/pulseflow/pkg/models"
	"github.com/repopulse/pulseflow/pkg/persistence"
)

// ExecutionRepository handles execution-related database operations.
type ExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewExecutionRepository creates a new execution repository.
func NewExecutionRepository(db *sql.DB, logger *slog.Logger) *ExecutionRepository {
	return &ExecutionRepository{db: db, logger: logger}
}

// Create stores a new execution record.
func (r *ExecutionRepository) Create(ctx context.Context, execution *models.Execution) error {
	now := time.Now().UTC()
	if execution.CreatedAt.IsZero() {
		execution.CreatedAt = now
	}

	execution.UpdatedAt = now

	inputData, err := json.Marshal(execution.InputData)
	if err != nil {
		return fmt.Errorf("failed to marshal input data for execution %s: %w", execution.ID, err)
	}

	query := `
		INSERT INTO executions (
			id, workflow_id, caller_id, status, current_node_id,
			input_data, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err = r.db.ExecContext(ctx, query,
		execution.ID, execution.WorkflowID, execution.CallerID, string(execution.Status),
		nullableString(execution.CurrentNodeID), inputData, execution.CreatedAt, execution.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return persistence.NewExecutionError("Create", execution.ID, persistence.ErrExecutionAlreadyExists)
		}

		return fmt.Errorf("failed to create execution %s: %w", execution.ID, err)
	}

	return nil
}

// Update overwrites the mutable fields of an execution record.
func (r *ExecutionRepository) Update(ctx context.Context, execution *models.Execution) error {
	execution.UpdatedAt = time.Now().UTC()

	outputData, err := marshalNullable(execution.OutputData)
	if err != nil {
		return fmt.Errorf("failed to marshal output data for execution %s: %w", execution.ID, err)
	}

	query := `
		UPDATE executions
		SET status = $2, current_node_id = $3, output_data = $4,
			error_message = $5, error_node_id = $6,
			started_at = $7, completed_at = $8, updated_at = $9
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		execution.ID, string(execution.Status), nullableString(execution.CurrentNodeID),
		outputData, nullableString(execution.ErrorMessage), nullableString(execution.ErrorNodeID),
		execution.StartedAt, execution.CompletedAt, execution.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update execution %s: %w", execution.ID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result for execution %s: %w", execution.ID, err)
	}

	if affected == 0 {
		return persistence.NewExecutionError("Update", execution.ID, persistence.ErrExecutionNotFound)
	}

	return nil
}

const executionColumns = `
	id, workflow_id, caller_id, status, current_node_id,
	input_data, output_data, error_message, error_node_id,
	started_at, completed_at, created_at, updated_at
`

// ExecutionByID returns an execution by its ID.
func (r *ExecutionRepository) ExecutionByID(ctx context.Context, id string) (*models.Execution, error) {
	query := `SELECT ` + executionColumns + ` FROM executions WHERE id = $1`

	execution, err := scanExecution(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewExecutionError("ExecutionByID", id, persistence.ErrExecutionNotFound)
		}

		return nil, fmt.Errorf("failed to query execution %s: %w", id, err)
	}

	return execution, nil
}

// ListByStatus returns all executions with the given status, oldest first.
func (r *ExecutionRepository) ListByStatus(ctx context.Context, status models.ExecutionStatus) ([]*models.Execution, error) {
	query := `SELECT ` + executionColumns + ` FROM executions WHERE status = $1 ORDER BY created_at ASC`

	rows, err := r.db.QueryContext(ctx, query, string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to query executions by status: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	executions := make([]*models.Execution, 0)

	for rows.Next() {
		execution, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}

		executions = append(executions, execution)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating executions: %w", err)
	}

	return executions, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExecution(row rowScanner) (*models.Execution, error) {
	var (
		execution     models.Execution
		status        string
		callerID      sql.NullString
		currentNodeID sql.NullString
		errorMessage  sql.NullString
		errorNodeID   sql.NullString
		inputData     []byte
		outputData    []byte
	)

	err := row.Scan(
		&execution.ID, &execution.WorkflowID, &callerID, &status, &currentNodeID,
		&inputData, &outputData, &errorMessage, &errorNodeID,
		&execution.StartedAt, &execution.CompletedAt, &execution.CreatedAt, &execution.UpdatedAt)
	if err != nil {
		return nil, err
	}

	execution.Status = models.ExecutionStatus(status)
	execution.CallerID = callerID.String
	execution.CurrentNodeID = currentNodeID.String
	execution.ErrorMessage = errorMessage.String
	execution.ErrorNodeID = errorNodeID.String

	if len(inputData) > 0 {
		if err := json.Unmarshal(inputData, &execution.InputData); err != nil {
			return nil, fmt.Errorf("failed to unmarshal input data: %w", err)
		}
	}

	if len(outputData) > 0 {
		if err := json.Unmarshal(outputData, &execution.OutputData); err != nil {
			return nil, fmt.Errorf("failed to unmarshal output data: %w", err)
		}
	}

	return &execution, nil
}

func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func marshalNullable(m map[string]any) ([]byte, error) {
	if m == nil {
		return nil, nil
	}

	return json.Marshal(m)
}

// isUniqueViolation reports whether the error is a unique constraint
// violation (pq error code 23505).
func isUniqueViolation(err error) bool {
	type coder interface{ SQLState() string }

	var c coder
	if errors.As(err, &c) {
		return c.SQLState() == "23505"
	}

	return false
}
