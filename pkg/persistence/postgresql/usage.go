package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/repopulse/pulseflow/pkg/models"
)

// TokenUsageRepository appends usage facts. Rows are insert-only.
type TokenUsageRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewTokenUsageRepository creates a new token usage repository.
func NewTokenUsageRepository(db *sql.DB, logger *slog.Logger) *TokenUsageRepository {
	return &TokenUsageRepository{db: db, logger: logger}
}

// Append writes one usage record.
func (r *TokenUsageRepository) Append(ctx context.Context, record models.TokenUsageRecord) error {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("failed to generate usage record ID: %w", err)
	}

	if record.RecordedAt.IsZero() {
		record.RecordedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO token_usage (
			id, request_id, execution_id, node_id, model_id,
			input_tokens, output_tokens, cost_usd, latency_ms,
			failover_used, original_model_id, recorded_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err = r.db.ExecContext(ctx, query,
		id.String(), record.RequestID, nullableString(record.ExecutionID),
		nullableString(record.NodeID), record.ModelID,
		record.InputTokens, record.OutputTokens, record.CostUSD, record.LatencyMs,
		record.FailoverUsed, nullableString(record.OriginalModelID), record.RecordedAt)
	if err != nil {
		return fmt.Errorf("failed to append usage record %s: %w", record.RequestID, err)
	}

	return nil
}

// ListByExecution returns the usage records of one execution in append
// order.
func (r *TokenUsageRepository) ListByExecution(ctx context.Context, executionID string) ([]models.TokenUsageRecord, error) {
	query := `
		SELECT request_id, execution_id, node_id, model_id,
			input_tokens, output_tokens, cost_usd, latency_ms,
			failover_used, original_model_id, recorded_at
		FROM token_usage
		WHERE execution_id = $1
		ORDER BY recorded_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query usage records: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	records := make([]models.TokenUsageRecord, 0)

	for rows.Next() {
		var (
			record          models.TokenUsageRecord
			execID          sql.NullString
			nodeID          sql.NullString
			originalModelID sql.NullString
		)

		err := rows.Scan(
			&record.RequestID, &execID, &nodeID, &record.ModelID,
			&record.InputTokens, &record.OutputTokens, &record.CostUSD, &record.LatencyMs,
			&record.FailoverUsed, &originalModelID, &record.RecordedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan usage record: %w", err)
		}

		record.ExecutionID = execID.String
		record.NodeID = nodeID.String
		record.OriginalModelID = originalModelID.String

		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating usage records: %w", err)
	}

	return records, nil
}
