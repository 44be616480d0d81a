// Package file provides file-based persistence for workflows, executions,
// and usage records. Intended for development and single-node deployments.
package file

import (
	"context"
	"os"
	"strings"

	"github.com/repopulse/pulseflow/pkg/persistence"
)

// Persistence implements the persistence.Persistence interface using the
// file system.
type Persistence struct {
	root          string
	workflowRepo  *WorkflowRepository
	executionRepo *ExecutionRepository
	nodeExecRepo  *NodeExecutionRepository
	usageRepo     *TokenUsageRepository
}

// NewPersistence creates a new instance of Persistence with the specified
// root directory.
func NewPersistence(root string) persistence.Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	return &Persistence{
		root:          cleanRoot,
		workflowRepo:  NewWorkflowRepository(cleanRoot),
		executionRepo: NewExecutionRepository(cleanRoot),
		nodeExecRepo:  NewNodeExecutionRepository(cleanRoot),
		usageRepo:     NewTokenUsageRepository(cleanRoot),
	}
}

// Close performs any necessary cleanup. For file-based persistence, there
// is nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck verifies the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

func (fp *Persistence) WorkflowRepository() persistence.WorkflowRepository {
	return fp.workflowRepo
}

func (fp *Persistence) ExecutionRepository() persistence.ExecutionRepository {
	return fp.executionRepo
}

func (fp *Persistence) NodeExecutionRepository() persistence.NodeExecutionRepository {
	return fp.nodeExecRepo
}

func (fp *Persistence) TokenUsageRepository() persistence.TokenUsageRepository {
	return fp.usageRepo
}
