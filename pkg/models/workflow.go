// Package models defines the core domain models for AI pipeline execution.
package models

import (
	"errors"
	"fmt"
	"time"
)

// WorkflowStatus represents the lifecycle state of a workflow.
type WorkflowStatus string

const (
	WorkflowStatusDraft     WorkflowStatus = "draft"     // Editable, not executable
	WorkflowStatusPublished WorkflowStatus = "published" // Immutable, executable
)

// Workflow represents a published DAG of AI-transformation nodes.
// Once published a workflow is never mutated; executions reference it by ID.
type Workflow struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"          validate:"required,min=3"`
	Description string         `json:"description"`
	Status      WorkflowStatus `json:"status"        validate:"required"`
	Nodes       []*Node        `json:"nodes"`
	Edges       []*Edge        `json:"edges"`
	EntryNodeID string         `json:"entry_node_id" validate:"required"`
	Owner       string         `json:"owner"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	PublishedAt *time.Time     `json:"published_at,omitempty"`
}

// NodeByID returns the node with the given ID, or nil.
func (w *Workflow) NodeByID(id string) *Node {
	for _, node := range w.Nodes {
		if node.ID == id {
			return node
		}
	}

	return nil
}

// OutgoingEdges returns the edges leaving the given node in declaration order.
func (w *Workflow) OutgoingEdges(nodeID string) []*Edge {
	var edges []*Edge

	for _, edge := range w.Edges {
		if edge.Source == nodeID {
			edges = append(edges, edge)
		}
	}

	return edges
}

// Validate checks the structural invariants required before publishing:
// every edge endpoint references a declared node, the entry node exists,
// node types belong to the closed set, and a node with multiple outgoing
// edges carries at most one unconditional edge.
func (w *Workflow) Validate() error {
	if len(w.Nodes) == 0 {
		return errors.New("workflow has no nodes")
	}

	nodeIDs := make(map[string]bool, len(w.Nodes))

	for _, node := range w.Nodes {
		if node.ID == "" {
			return errors.New("found node with empty ID")
		}

		if nodeIDs[node.ID] {
			return fmt.Errorf("duplicate node ID: %s", node.ID)
		}

		if !IsKnownNodeType(node.Type) {
			return fmt.Errorf("node %s has unknown type %q", node.ID, node.Type)
		}

		nodeIDs[node.ID] = true
	}

	if !nodeIDs[w.EntryNodeID] {
		return fmt.Errorf("entry node %s is not declared", w.EntryNodeID)
	}

	unconditional := make(map[string]int)
	outgoing := make(map[string]int)

	for _, edge := range w.Edges {
		if !nodeIDs[edge.Source] {
			return fmt.Errorf("edge %s references non-existent source node: %s", edge.ID, edge.Source)
		}

		if !nodeIDs[edge.Target] {
			return fmt.Errorf("edge %s references non-existent target node: %s", edge.ID, edge.Target)
		}

		if edge.Condition != nil {
			if err := edge.Condition.Validate(); err != nil {
				return fmt.Errorf("edge %s: %w", edge.ID, err)
			}
		}

		outgoing[edge.Source]++

		if edge.Condition == nil || edge.Condition.Kind == ConditionAlways {
			unconditional[edge.Source]++
		}
	}

	for source, count := range unconditional {
		if outgoing[source] > 1 && count > 1 {
			return fmt.Errorf("node %s has %d unconditional outgoing edges, at most one is allowed", source, count)
		}
	}

	return nil
}
