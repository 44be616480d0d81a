// Package events defines the event types published on the execution
// lifecycle, node completion, and model usage audit streams.
package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/repopulse/pulseflow/pkg/models"
)

type EventType string

const (
	// Topic carries execution lifecycle and node events. Consumed by one
	// worker per event; the partition key is the execution ID.
	Topic = "pulseflow.events"
	// ControlTopic carries pause requests. Every worker consumes it,
	// because only the worker driving an execution can act on a pause.
	ControlTopic = "pulseflow.execution.control"
	// ModelAuditTopic carries the per-attempt model invocation audit.
	ModelAuditTopic = "pulseflow.model.audit"
	// TokenUsageTopic carries append-only token usage facts.
	TokenUsageTopic = "pulseflow.token.usage"
)

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Execution lifecycle events.
	ExecutionRequestedEvent       EventType = "execution.requested"
	ExecutionStartedEvent         EventType = "execution.started"
	ExecutionCompletedEvent       EventType = "execution.completed"
	ExecutionFailedEvent          EventType = "execution.failed"
	ExecutionPauseRequestedEvent  EventType = "execution.pause_requested"
	ExecutionPausedEvent          EventType = "execution.paused"
	ExecutionResumeRequestedEvent EventType = "execution.resume_requested"
	ExecutionResumedEvent         EventType = "execution.resumed"

	// Node events.
	NodeCompletedEvent EventType = "node.completed"
	NodeFailedEvent    EventType = "node.failed"

	// Routing and audit events.
	ModelAttemptedEvent     EventType = "model.attempted"
	TokenUsageRecordedEvent EventType = "token.usage.recorded"
)

type Event interface {
	GetType() EventType
}

type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	WorkflowID string         `json:"workflow_id,omitempty"`
	WorkerID   string         `json:"worker_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

func NewBaseEvent(eventType EventType, workflowID string) BaseEvent {
	return BaseEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		WorkflowID: workflowID,
		Metadata:   make(map[string]any),
	}
}

type ExecutionRequested struct {
	BaseEvent

	ExecutionID string         `json:"execution_id"`
	CallerID    string         `json:"caller_id,omitempty"`
	InputData   map[string]any `json:"input_data,omitempty"`
}

func (e ExecutionRequested) GetType() EventType {
	return ExecutionRequestedEvent
}

type ExecutionStarted struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	EntryNodeID string `json:"entry_node_id"`
}

func (e ExecutionStarted) GetType() EventType {
	return ExecutionStartedEvent
}

type ExecutionCompleted struct {
	BaseEvent

	ExecutionID   string         `json:"execution_id"`
	DurationMs    int64          `json:"duration_ms"`
	NodesExecuted int            `json:"nodes_executed"`
	OutputData    map[string]any `json:"output_data,omitempty"`
}

func (e ExecutionCompleted) GetType() EventType {
	return ExecutionCompletedEvent
}

type ExecutionFailed struct {
	BaseEvent

	ExecutionID  string `json:"execution_id"`
	ErrorNodeID  string `json:"error_node_id,omitempty"`
	ErrorMessage string `json:"error_message"`
	DurationMs   int64  `json:"duration_ms"`
}

func (e ExecutionFailed) GetType() EventType {
	return ExecutionFailedEvent
}

// ExecutionPauseRequested asks whichever worker drives the execution to
// pause it at the next node boundary.
type ExecutionPauseRequested struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
}

func (e ExecutionPauseRequested) GetType() EventType {
	return ExecutionPauseRequestedEvent
}

type ExecutionPaused struct {
	BaseEvent

	ExecutionID  string `json:"execution_id"`
	PausedAtNode string `json:"paused_at_node"`
}

func (e ExecutionPaused) GetType() EventType {
	return ExecutionPausedEvent
}

// ExecutionResumeRequested asks a worker to pick a paused execution back
// up from its current node.
type ExecutionResumeRequested struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
}

func (e ExecutionResumeRequested) GetType() EventType {
	return ExecutionResumeRequestedEvent
}

type ExecutionResumed struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	ResumedFrom string `json:"resumed_from"`
}

func (e ExecutionResumed) GetType() EventType {
	return ExecutionResumedEvent
}

type NodeCompleted struct {
	BaseEvent

	ExecutionID string         `json:"execution_id"`
	NodeID      string         `json:"node_id"`
	Output      map[string]any `json:"output,omitempty"`
	DurationMs  int64          `json:"duration_ms"`
	RetryCount  int            `json:"retry_count"`
	ModelUsed   string         `json:"model_used,omitempty"`
}

func (e NodeCompleted) GetType() EventType {
	return NodeCompletedEvent
}

type NodeFailed struct {
	BaseEvent

	ExecutionID  string `json:"execution_id"`
	NodeID       string `json:"node_id"`
	ErrorMessage string `json:"error_message"`
	RetryCount   int    `json:"retry_count"`
}

func (e NodeFailed) GetType() EventType {
	return NodeFailedEvent
}

// ModelAttempted is the audit record emitted for every failover sequencer
// attempt, success or failure.
type ModelAttempted struct {
	BaseEvent

	RequestID       string `json:"request_id"`
	ModelID         string `json:"model_id"`
	Attempt         int    `json:"attempt"`
	Success         bool   `json:"success"`
	FailoverUsed    bool   `json:"failover_used"`
	OriginalModelID string `json:"original_model_id,omitempty"`
	ErrorMessage    string `json:"error_message,omitempty"`
	LatencyMs       int64  `json:"latency_ms"`
}

func (e ModelAttempted) GetType() EventType {
	return ModelAttemptedEvent
}

type TokenUsageRecorded struct {
	BaseEvent

	Record models.TokenUsageRecord `json:"record"`
}

func (e TokenUsageRecorded) GetType() EventType {
	return TokenUsageRecordedEvent
}
