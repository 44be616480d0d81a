// Package execution drives one workflow execution end to end: node state
// tracking, failure handling, and the orchestrator state machine.
package execution

import (
	"context"
	"fmt"

	"github.com/repopulse/pulseflow/pkg/models"
	"github.com/repopulse/pulseflow/pkg/persistence"
)

// NodeStateManager tracks per-node state for one execution and computes
// the next node to run. Single-writer discipline: only the orchestrator
// driving this execution mutates it, so no locking is needed.
type NodeStateManager struct {
	executionID string
	workflow    *models.Workflow
	repo        persistence.NodeExecutionRepository
	records     map[string]*models.NodeExecution
}

// NewNodeStateManager creates a state manager, loading any records a prior
// run of this execution already persisted so a resume sees completed nodes.
func NewNodeStateManager(ctx context.Context, executionID string, workflow *models.Workflow, repo persistence.NodeExecutionRepository) (*NodeStateManager, error) {
	existing, err := repo.ListByExecution(ctx, executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load node executions for %s: %w", executionID, err)
	}

	records := make(map[string]*models.NodeExecution, len(existing))
	for _, record := range existing {
		records[record.NodeID] = record
	}

	return &NodeStateManager{
		executionID: executionID,
		workflow:    workflow,
		repo:        repo,
		records:     records,
	}, nil
}

// Record returns the node's record, creating it lazily the first time the
// node is reached.
func (m *NodeStateManager) Record(nodeID string) *models.NodeExecution {
	record, ok := m.records[nodeID]
	if !ok {
		record = &models.NodeExecution{
			ExecutionID: m.executionID,
			NodeID:      nodeID,
			Status:      models.NodeExecutionStatusPending,
		}
		m.records[nodeID] = record
	}

	return record
}

// Completed reports whether the node already finished successfully. Used
// on resume so no node is executed twice.
func (m *NodeStateManager) Completed(nodeID string) bool {
	record, ok := m.records[nodeID]

	return ok && record.Status == models.NodeExecutionStatusCompleted
}

// Update merges changes into the node's record and makes them durable.
// Changes are visible to the next NextNode or input-resolution call.
func (m *NodeStateManager) Update(ctx context.Context, nodeID string, mutate func(*models.NodeExecution)) error {
	record := m.Record(nodeID)
	mutate(record)

	if err := m.repo.Save(ctx, record); err != nil {
		return fmt.Errorf("failed to persist node execution %s/%s: %w", m.executionID, nodeID, err)
	}

	return nil
}

// Output returns the recorded output of a node, or nil when the node has
// not produced one.
func (m *NodeStateManager) Output(nodeID string) map[string]any {
	record, ok := m.records[nodeID]
	if !ok {
		return nil
	}

	return record.Output
}

// Outputs returns all completed nodes' outputs keyed by node ID.
func (m *NodeStateManager) Outputs() map[string]map[string]any {
	outputs := make(map[string]map[string]any)

	for nodeID, record := range m.records {
		if record.Status == models.NodeExecutionStatusCompleted {
			outputs[nodeID] = record.Output
		}
	}

	return outputs
}

// NextNode evaluates the current node's outgoing edges in declaration
// order against its recorded output and returns the first matching target.
// An edge without a condition always matches. An empty result means the
// execution terminates successfully at the current node.
func (m *NodeStateManager) NextNode(currentNodeID string) (string, error) {
	output := m.Output(currentNodeID)

	for _, edge := range m.workflow.OutgoingEdges(currentNodeID) {
		if edge.Condition == nil {
			return edge.Target, nil
		}

		matched, err := edge.Condition.Evaluate(output)
		if err != nil {
			return "", fmt.Errorf("failed to evaluate condition on edge %s: %w", edge.ID, err)
		}

		if matched {
			return edge.Target, nil
		}
	}

	return "", nil
}

// ResolveInput returns the input for a node: the execution's initial input
// for the entry node, otherwise the output of the first completed
// predecessor in edge declaration order.
func (m *NodeStateManager) ResolveInput(nodeID string, initialInput map[string]any) map[string]any {
	if nodeID == m.workflow.EntryNodeID {
		return initialInput
	}

	for _, edge := range m.workflow.Edges {
		if edge.Target == nodeID && m.Completed(edge.Source) {
			return m.Output(edge.Source)
		}
	}

	return nil
}
