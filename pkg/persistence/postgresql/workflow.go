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

// WorkflowRepository handles workflow-related database operations. The full
// definition (nodes, edges, entry node) is stored as a JSONB document; only
// the fields the engine filters on are lifted into columns.
type WorkflowRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewWorkflowRepository creates a new workflow repository.
func NewWorkflowRepository(db *sql.DB, logger *slog.Logger) *WorkflowRepository {
	return &WorkflowRepository{db: db, logger: logger}
}

// WorkflowByID returns a workflow by its ID.
func (r *WorkflowRepository) WorkflowByID(ctx context.Context, id string) (*models.Workflow, error) {
	query := `SELECT definition FROM workflows WHERE id = $1`

	var definition []byte

	err := r.db.QueryRowContext(ctx, query, id).Scan(&definition)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewWorkflowError("WorkflowByID", id, persistence.ErrWorkflowNotFound)
		}

		return nil, fmt.Errorf("failed to query workflow %s: %w", id, err)
	}

	var workflow models.Workflow

	err = json.Unmarshal(definition, &workflow)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal workflow %s: %w", id, err)
	}

	return &workflow, nil
}

// Workflows returns all workflows, oldest first.
func (r *WorkflowRepository) Workflows(ctx context.Context) ([]*models.Workflow, error) {
	query := `SELECT definition FROM workflows ORDER BY created_at ASC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflows: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	workflows := make([]*models.Workflow, 0)

	for rows.Next() {
		var definition []byte

		if err := rows.Scan(&definition); err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}

		var workflow models.Workflow

		if err := json.Unmarshal(definition, &workflow); err != nil {
			return nil, fmt.Errorf("failed to unmarshal workflow: %w", err)
		}

		workflows = append(workflows, &workflow)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating workflows: %w", err)
	}

	return workflows, nil
}

// Save upserts a workflow. A published workflow is immutable and rejects
// further saves.
func (r *WorkflowRepository) Save(ctx context.Context, workflow *models.Workflow) error {
	var status string

	err := r.db.QueryRowContext(ctx, `SELECT status FROM workflows WHERE id = $1`, workflow.ID).Scan(&status)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to query workflow status %s: %w", workflow.ID, err)
	}

	if models.WorkflowStatus(status) == models.WorkflowStatusPublished {
		return persistence.NewWorkflowError("Save", workflow.ID, persistence.ErrWorkflowImmutable)
	}

	now := time.Now().UTC()
	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	workflow.UpdatedAt = now

	definition, err := json.Marshal(workflow)
	if err != nil {
		return fmt.Errorf("failed to marshal workflow %s: %w", workflow.ID, err)
	}

	query := `
		INSERT INTO workflows (id, name, status, owner, definition, created_at, updated_at, published_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			status = EXCLUDED.status,
			owner = EXCLUDED.owner,
			definition = EXCLUDED.definition,
			updated_at = EXCLUDED.updated_at,
			published_at = EXCLUDED.published_at
	`

	_, err = r.db.ExecContext(ctx, query,
		workflow.ID, workflow.Name, string(workflow.Status), workflow.Owner,
		definition, workflow.CreatedAt, workflow.UpdatedAt, workflow.PublishedAt)
	if err != nil {
		return fmt.Errorf("failed to save workflow %s: %w", workflow.ID, err)
	}

	return nil
}

// Delete removes a workflow by its ID.
func (r *WorkflowRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM workflows WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete workflow %s: %w", id, err)
	}

	return nil
}

// Publish marks a workflow published, freezing its definition.
func (r *WorkflowRepository) Publish(ctx context.Context, id string) error {
	workflow, err := r.WorkflowByID(ctx, id)
	if err != nil {
		return err
	}

	if workflow.Status == models.WorkflowStatusPublished {
		return nil
	}

	now := time.Now().UTC()
	workflow.Status = models.WorkflowStatusPublished
	workflow.PublishedAt = &now
	workflow.UpdatedAt = now

	definition, err := json.Marshal(workflow)
	if err != nil {
		return fmt.Errorf("failed to marshal workflow %s: %w", id, err)
	}

	query := `
		UPDATE workflows
		SET status = $2, definition = $3, updated_at = $4, published_at = $5
		WHERE id = $1
	`

	_, err = r.db.ExecContext(ctx, query, id, string(workflow.Status), definition, workflow.UpdatedAt, workflow.PublishedAt)
	if err != nil {
		return fmt.Errorf("failed to publish workflow %s: %w", id, err)
	}

	return nil
}
