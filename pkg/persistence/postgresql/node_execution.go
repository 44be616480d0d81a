package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/repopulse/pulseflow/pkg/models"
	"github.com/repopulse/pulseflow/pkg/persistence"
)

// NodeExecutionRepository stores the latest attempt record per
// (execution, node) pair.
type NodeExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewNodeExecutionRepository creates a new node execution repository.
func NewNodeExecutionRepository(db *sql.DB, logger *slog.Logger) *NodeExecutionRepository {
	return &NodeExecutionRepository{db: db, logger: logger}
}

// Save upserts the latest attempt record for one node.
func (r *NodeExecutionRepository) Save(ctx context.Context, record *models.NodeExecution) error {
	input, err := marshalNullable(record.Input)
	if err != nil {
		return fmt.Errorf("failed to marshal input for node %s: %w", record.NodeID, err)
	}

	output, err := marshalNullable(record.Output)
	if err != nil {
		return fmt.Errorf("failed to marshal output for node %s: %w", record.NodeID, err)
	}

	query := `
		INSERT INTO node_executions (
			execution_id, node_id, status, input, output, error_message,
			model_used, failover_used, input_tokens, output_tokens, cost_usd,
			retry_count, duration_ms, started_at, completed_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (execution_id, node_id) DO UPDATE SET
			status = EXCLUDED.status,
			input = EXCLUDED.input,
			output = EXCLUDED.output,
			error_message = EXCLUDED.error_message,
			model_used = EXCLUDED.model_used,
			failover_used = EXCLUDED.failover_used,
			input_tokens = EXCLUDED.input_tokens,
			output_tokens = EXCLUDED.output_tokens,
			cost_usd = EXCLUDED.cost_usd,
			retry_count = EXCLUDED.retry_count,
			duration_ms = EXCLUDED.duration_ms,
			started_at = EXCLUDED.started_at,
			completed_at = EXCLUDED.completed_at
	`

	_, err = r.db.ExecContext(ctx, query,
		record.ExecutionID, record.NodeID, string(record.Status), input, output,
		nullableString(record.ErrorMessage), nullableString(record.ModelUsed),
		record.FailoverUsed, record.InputTokens, record.OutputTokens, record.CostUSD,
		record.RetryCount, record.DurationMs, record.StartedAt, record.CompletedAt)
	if err != nil {
		return fmt.Errorf("failed to save node execution %s/%s: %w", record.ExecutionID, record.NodeID, err)
	}

	return nil
}

const nodeExecutionColumns = `
	execution_id, node_id, status, input, output, error_message,
	model_used, failover_used, input_tokens, output_tokens, cost_usd,
	retry_count, duration_ms, started_at, completed_at
`

// NodeExecution returns the latest attempt record for one node.
func (r *NodeExecutionRepository) NodeExecution(ctx context.Context, executionID, nodeID string) (*models.NodeExecution, error) {
	query := `SELECT ` + nodeExecutionColumns + ` FROM node_executions WHERE execution_id = $1 AND node_id = $2`

	record, err := scanNodeExecution(r.db.QueryRowContext(ctx, query, executionID, nodeID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &persistence.ExecutionError{
				Op:          "NodeExecution",
				ExecutionID: executionID,
				NodeID:      nodeID,
				Err:         persistence.ErrNodeExecutionNotFound,
			}
		}

		return nil, fmt.Errorf("failed to query node execution %s/%s: %w", executionID, nodeID, err)
	}

	return record, nil
}

// ListByExecution returns all node records of one execution sorted by
// start time.
func (r *NodeExecutionRepository) ListByExecution(ctx context.Context, executionID string) ([]*models.NodeExecution, error) {
	query := `SELECT ` + nodeExecutionColumns + ` FROM node_executions WHERE execution_id = $1 ORDER BY started_at ASC NULLS LAST`

	rows, err := r.db.QueryContext(ctx, query, executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query node executions: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	records := make([]*models.NodeExecution, 0)

	for rows.Next() {
		record, err := scanNodeExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan node execution: %w", err)
		}

		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating node executions: %w", err)
	}

	return records, nil
}

func scanNodeExecution(row rowScanner) (*models.NodeExecution, error) {
	var (
		record       models.NodeExecution
		status       string
		input        []byte
		output       []byte
		errorMessage sql.NullString
		modelUsed    sql.NullString
	)

	err := row.Scan(
		&record.ExecutionID, &record.NodeID, &status, &input, &output, &errorMessage,
		&modelUsed, &record.FailoverUsed, &record.InputTokens, &record.OutputTokens,
		&record.CostUSD, &record.RetryCount, &record.DurationMs,
		&record.StartedAt, &record.CompletedAt)
	if err != nil {
		return nil, err
	}

	record.Status = models.NodeExecutionStatus(status)
	record.ErrorMessage = errorMessage.String
	record.ModelUsed = modelUsed.String

	if len(input) > 0 {
		if err := json.Unmarshal(input, &record.Input); err != nil {
			return nil, fmt.Errorf("failed to unmarshal node input: %w", err)
		}
	}

	if len(output) > 0 {
		if err := json.Unmarshal(output, &record.Output); err != nil {
			return nil, fmt.Errorf("failed to unmarshal node output: %w", err)
		}
	}

	return &record, nil
}
