package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"time"

	"github.com/repopulse/pulseflow/pkg/models"
	"github.com/repopulse/pulseflow/pkg/persistence"
)

// ExecutionRepository stores one JSON file per execution under
// <root>/executions.
type ExecutionRepository struct {
	root string
}

// NewExecutionRepository creates a new execution repository.
func NewExecutionRepository(root string) *ExecutionRepository {
	return &ExecutionRepository{root: root}
}

func (er *ExecutionRepository) dir() string {
	return path.Join(er.root, "executions")
}

func (er *ExecutionRepository) filePath(id string) string {
	return filepath.Clean(path.Join(er.dir(), id+".json"))
}

// Create stores a new execution record.
func (er *ExecutionRepository) Create(_ context.Context, execution *models.Execution) error {
	if _, err := os.Stat(er.filePath(execution.ID)); err == nil {
		return persistence.NewExecutionError("Create", execution.ID, persistence.ErrExecutionAlreadyExists)
	}

	if err := os.MkdirAll(er.dir(), 0750); err != nil {
		return fmt.Errorf("failed to create executions directory: %w", err)
	}

	now := time.Now().UTC()
	if execution.CreatedAt.IsZero() {
		execution.CreatedAt = now
	}

	execution.UpdatedAt = now

	return er.write(execution)
}

// Update overwrites an existing execution record.
func (er *ExecutionRepository) Update(_ context.Context, execution *models.Execution) error {
	if _, err := os.Stat(er.filePath(execution.ID)); os.IsNotExist(err) {
		return persistence.NewExecutionError("Update", execution.ID, persistence.ErrExecutionNotFound)
	}

	execution.UpdatedAt = time.Now().UTC()

	return er.write(execution)
}

func (er *ExecutionRepository) write(execution *models.Execution) error {
	data, err := json.MarshalIndent(execution, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal execution %s: %w", execution.ID, err)
	}

	return os.WriteFile(er.filePath(execution.ID), data, 0600)
}

// ExecutionByID retrieves an execution by its ID.
func (er *ExecutionRepository) ExecutionByID(_ context.Context, id string) (*models.Execution, error) {
	body, err := os.ReadFile(er.filePath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.NewExecutionError("ExecutionByID", id, persistence.ErrExecutionNotFound)
		}

		return nil, fmt.Errorf("failed to fetch execution %s: %w", id, err)
	}

	var execution models.Execution

	err = json.Unmarshal(body, &execution)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal execution %s: %w", id, err)
	}

	return &execution, nil
}

// ListByStatus returns all executions with the given status, oldest first.
func (er *ExecutionRepository) ListByStatus(ctx context.Context, status models.ExecutionStatus) ([]*models.Execution, error) {
	if _, err := os.Stat(er.dir()); os.IsNotExist(err) {
		return []*models.Execution{}, nil
	}

	root := os.DirFS(er.dir())

	jsonFiles, err := fs.Glob(root, "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list execution files: %w", err)
	}

	executions := make([]*models.Execution, 0)

	for _, file := range jsonFiles {
		execution, err := er.ExecutionByID(ctx, file[:len(file)-5])
		if err != nil {
			if persistence.IsExecutionNotFound(err) {
				continue
			}

			return nil, err
		}

		if execution.Status == status {
			executions = append(executions, execution)
		}
	}

	sort.Slice(executions, func(i, j int) bool {
		return executions[i].CreatedAt.Before(executions[j].CreatedAt)
	})

	return executions, nil
}

// NodeExecutionRepository stores one JSON file per (execution, node) pair
// under <root>/node_executions/<execution_id>.
type NodeExecutionRepository struct {
	root string
}

// NewNodeExecutionRepository creates a new node execution repository.
func NewNodeExecutionRepository(root string) *NodeExecutionRepository {
	return &NodeExecutionRepository{root: root}
}

func (nr *NodeExecutionRepository) dir(executionID string) string {
	return path.Join(nr.root, "node_executions", executionID)
}

// Save upserts the latest attempt record for one node.
func (nr *NodeExecutionRepository) Save(_ context.Context, record *models.NodeExecution) error {
	if err := os.MkdirAll(nr.dir(record.ExecutionID), 0750); err != nil {
		return fmt.Errorf("failed to create node executions directory: %w", err)
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal node execution %s/%s: %w", record.ExecutionID, record.NodeID, err)
	}

	filePath := path.Join(nr.dir(record.ExecutionID), record.NodeID+".json")

	return os.WriteFile(filePath, data, 0600)
}

// NodeExecution retrieves the latest attempt record for one node.
func (nr *NodeExecutionRepository) NodeExecution(_ context.Context, executionID, nodeID string) (*models.NodeExecution, error) {
	filePath := filepath.Clean(path.Join(nr.dir(executionID), nodeID+".json"))

	body, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &persistence.ExecutionError{
				Op:          "NodeExecution",
				ExecutionID: executionID,
				NodeID:      nodeID,
				Err:         persistence.ErrNodeExecutionNotFound,
			}
		}

		return nil, fmt.Errorf("failed to fetch node execution %s/%s: %w", executionID, nodeID, err)
	}

	var record models.NodeExecution

	err = json.Unmarshal(body, &record)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal node execution %s/%s: %w", executionID, nodeID, err)
	}

	return &record, nil
}

// ListByExecution returns all node records of one execution sorted by
// start time.
func (nr *NodeExecutionRepository) ListByExecution(ctx context.Context, executionID string) ([]*models.NodeExecution, error) {
	if _, err := os.Stat(nr.dir(executionID)); os.IsNotExist(err) {
		return []*models.NodeExecution{}, nil
	}

	root := os.DirFS(nr.dir(executionID))

	jsonFiles, err := fs.Glob(root, "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list node execution files: %w", err)
	}

	records := make([]*models.NodeExecution, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		record, err := nr.NodeExecution(ctx, executionID, file[:len(file)-5])
		if err != nil {
			if persistence.IsNodeExecutionNotFound(err) {
				continue
			}

			return nil, err
		}

		records = append(records, record)
	}

	sort.Slice(records, func(i, j int) bool {
		if records[i].StartedAt == nil || records[j].StartedAt == nil {
			return records[j].StartedAt != nil
		}

		return records[i].StartedAt.Before(*records[j].StartedAt)
	})

	return records, nil
}
