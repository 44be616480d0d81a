package execution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/repopulse/pulseflow/pkg/eventbus"
	"github.com/repopulse/pulseflow/pkg/events"
	"github.com/repopulse/pulseflow/pkg/models"
	"github.com/repopulse/pulseflow/pkg/otelhelper"
	"github.com/repopulse/pulseflow/pkg/persistence"
	"github.com/repopulse/pulseflow/pkg/protocol"
)

// ErrInvalidStateTransition indicates an operation not permitted in the
// execution's current state. Terminal states are immutable.
var ErrInvalidStateTransition = errors.New("invalid state transition")

// ExecutorSource resolves the executor for a declared node. Implemented by
// the node registry.
type ExecutorSource interface {
	ExecutorFor(ctx context.Context, node *models.Node) (protocol.NodeExecutor, error)
}

// Orchestrator drives executions through their state machine:
// pending -> running -> {completed | failed | paused}. One orchestrator
// serves many executions; each execution is driven by exactly one
// sequential control flow.
type Orchestrator struct {
	persistence persistence.Persistence
	executors   ExecutorSource
	failures    *FailureHandler
	bus         eventbus.EventPublisher
	tracer      trace.Tracer
	logger      *slog.Logger
	workerID    string

	mu             sync.Mutex
	driving        map[string]bool
	pauseRequested map[string]bool
}

// NewOrchestrator creates an orchestrator. Bus and tracer may be nil.
func NewOrchestrator(p persistence.Persistence, executors ExecutorSource, failures *FailureHandler, bus eventbus.EventPublisher, tracer trace.Tracer, workerID string, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		persistence:    p,
		executors:      executors,
		failures:       failures,
		bus:            bus,
		tracer:         tracer,
		workerID:       workerID,
		logger:         logger.With("module", "orchestrator", "worker_id", workerID),
		driving:        make(map[string]bool),
		pauseRequested: make(map[string]bool),
	}
}

// RequestPause flags an execution for pausing and reports whether this
// orchestrator is driving it. Requests for executions driven elsewhere are
// dropped; pause requests are broadcast, so the driving worker will accept
// its own copy. The orchestrator observes the flag between nodes; the
// in-flight node finishes first.
func (o *Orchestrator) RequestPause(executionID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.driving[executionID] {
		return false
	}

	o.pauseRequested[executionID] = true

	return true
}

func (o *Orchestrator) consumePauseRequest(executionID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.pauseRequested[executionID] {
		delete(o.pauseRequested, executionID)

		return true
	}

	return false
}

func (o *Orchestrator) beginDriving(executionID string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.driving[executionID] = true
}

func (o *Orchestrator) endDriving(executionID string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	delete(o.driving, executionID)
	delete(o.pauseRequested, executionID)
}

// Start transitions a pending execution to running and drives it until a
// terminal or paused state. Re-invoking start on any non-pending execution
// fails with ErrInvalidStateTransition.
func (o *Orchestrator) Start(ctx context.Context, executionID string) error {
	execution, err := o.persistence.ExecutionRepository().ExecutionByID(ctx, executionID)
	if err != nil {
		return err
	}

	if execution.Status != models.ExecutionStatusPending {
		return fmt.Errorf("%w: cannot start execution %s in status %s",
			ErrInvalidStateTransition, executionID, execution.Status)
	}

	workflow, err := o.persistence.WorkflowRepository().WorkflowByID(ctx, execution.WorkflowID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	execution.Status = models.ExecutionStatusRunning
	execution.CurrentNodeID = workflow.EntryNodeID
	execution.StartedAt = &now

	if err := o.persistence.ExecutionRepository().Update(ctx, execution); err != nil {
		return err
	}

	o.publish(ctx, execution.ID, events.ExecutionStarted{
		BaseEvent:   o.baseEvent(events.ExecutionStartedEvent, execution.WorkflowID),
		ExecutionID: execution.ID,
		EntryNodeID: workflow.EntryNodeID,
	})

	return o.drive(ctx, execution, workflow)
}

// Resume transitions a paused execution back to running and continues from
// its recorded current node. Completed nodes are never re-executed.
func (o *Orchestrator) Resume(ctx context.Context, executionID string) error {
	execution, err := o.persistence.ExecutionRepository().ExecutionByID(ctx, executionID)
	if err != nil {
		return err
	}

	if execution.Status != models.ExecutionStatusPaused {
		return fmt.Errorf("%w: cannot resume execution %s in status %s",
			ErrInvalidStateTransition, executionID, execution.Status)
	}

	workflow, err := o.persistence.WorkflowRepository().WorkflowByID(ctx, execution.WorkflowID)
	if err != nil {
		return err
	}

	execution.Status = models.ExecutionStatusRunning

	if err := o.persistence.ExecutionRepository().Update(ctx, execution); err != nil {
		return err
	}

	o.publish(ctx, execution.ID, events.ExecutionResumed{
		BaseEvent:   o.baseEvent(events.ExecutionResumedEvent, execution.WorkflowID),
		ExecutionID: execution.ID,
		ResumedFrom: execution.CurrentNodeID,
	})

	o.logger.Info("execution resumed",
		"execution_id", execution.ID,
		"resumed_from", execution.CurrentNodeID)

	return o.drive(ctx, execution, workflow)
}

// drive walks the DAG one node at a time from execution.CurrentNodeID.
func (o *Orchestrator) drive(ctx context.Context, execution *models.Execution, workflow *models.Workflow) error {
	o.beginDriving(execution.ID)
	defer o.endDriving(execution.ID)

	state, err := NewNodeStateManager(ctx, execution.ID, workflow, o.persistence.NodeExecutionRepository())
	if err != nil {
		return o.failExecution(ctx, execution, execution.CurrentNodeID, err)
	}

	ectx := models.ExecutionContext{
		ExecutionID: execution.ID,
		WorkflowID:  execution.WorkflowID,
		CallerID:    execution.CallerID,
		InputData:   execution.InputData,
		NodeOutputs: state.Outputs(),
		Metadata:    make(map[string]any),
	}

	var lastOutput map[string]any

	for execution.CurrentNodeID != "" {
		if err := ctx.Err(); err != nil {
			return o.failExecution(ctx, execution, execution.CurrentNodeID,
				fmt.Errorf("execution cancelled: %w", err))
		}

		nodeID := execution.CurrentNodeID

		node := workflow.NodeByID(nodeID)
		if node == nil {
			return o.failExecution(ctx, execution, nodeID,
				fmt.Errorf("node %s not declared in workflow %s", nodeID, workflow.ID))
		}

		if state.Completed(nodeID) {
			// Already done in a prior run; advance without re-executing.
			lastOutput = state.Output(nodeID)
		} else {
			output, err := o.executeNode(ctx, &ectx, state, node)
			if err != nil {
				return o.failExecution(ctx, execution, nodeID, err)
			}

			lastOutput = output
			ectx.NodeOutputs[nodeID] = output
		}

		next, err := state.NextNode(nodeID)
		if err != nil {
			return o.failExecution(ctx, execution, nodeID, err)
		}

		if next == "" {
			return o.completeExecution(ctx, execution, lastOutput, len(ectx.NodeOutputs))
		}

		execution.CurrentNodeID = next

		if o.consumePauseRequest(execution.ID) {
			return o.pauseExecution(ctx, execution)
		}

		if err := o.persistence.ExecutionRepository().Update(ctx, execution); err != nil {
			return err
		}
	}

	return o.completeExecution(ctx, execution, lastOutput, len(ectx.NodeOutputs))
}

// executeNode runs one node through the attempt loop, offering every
// failure to the failure handler until it returns a terminal verdict.
func (o *Orchestrator) executeNode(ctx context.Context, ectx *models.ExecutionContext, state *NodeStateManager, node *models.Node) (map[string]any, error) {
	nodeCtx := ctx

	if o.tracer != nil {
		var span trace.Span

		nodeCtx, span = otelhelper.StartSpan(ctx, o.tracer, "execution.node",
			attribute.String(otelhelper.ExecutionIDKey, ectx.ExecutionID),
			attribute.String(otelhelper.NodeIDKey, node.ID),
			attribute.String(otelhelper.NodeTypeKey, node.Type))
		defer span.End()
	}

	executor, err := o.executors.ExecutorFor(nodeCtx, node)
	if err != nil {
		return nil, fmt.Errorf("no executor for node %s: %w", node.ID, err)
	}

	input := state.ResolveInput(node.ID, ectx.InputData)
	startedAt := time.Now().UTC()

	err = state.Update(nodeCtx, node.ID, func(record *models.NodeExecution) {
		record.Status = models.NodeExecutionStatusRunning
		record.Input = input
		record.StartedAt = &startedAt
	})
	if err != nil {
		return nil, err
	}

	ectx.Retry = models.RetryDirective{}

	for attempt := 0; ; attempt++ {
		output, execErr := executor.Execute(nodeCtx, *ectx, input)
		if execErr == nil {
			completedAt := time.Now().UTC()

			err := state.Update(nodeCtx, node.ID, func(record *models.NodeExecution) {
				record.Status = models.NodeExecutionStatusCompleted
				record.Output = output
				record.CompletedAt = &completedAt
				record.DurationMs = completedAt.Sub(startedAt).Milliseconds()
				record.RetryCount = attempt
				record.ErrorMessage = ""
				applyUsageMetadata(record, ectx.Metadata)
			})
			if err != nil {
				return nil, err
			}

			record := state.Record(node.ID)
			o.publish(nodeCtx, ectx.ExecutionID, events.NodeCompleted{
				BaseEvent:   o.baseEvent(events.NodeCompletedEvent, ectx.WorkflowID),
				ExecutionID: ectx.ExecutionID,
				NodeID:      node.ID,
				Output:      output,
				DurationMs:  record.DurationMs,
				RetryCount:  attempt,
				ModelUsed:   record.ModelUsed,
			})

			return output, nil
		}

		resolution := o.failures.Resolve(execErr, attempt, ectx.Retry)
		if resolution.Action == ActionFail {
			completedAt := time.Now().UTC()

			updateErr := state.Update(nodeCtx, node.ID, func(record *models.NodeExecution) {
				record.Status = models.NodeExecutionStatusFailed
				record.CompletedAt = &completedAt
				record.DurationMs = completedAt.Sub(startedAt).Milliseconds()
				record.RetryCount = attempt
				record.ErrorMessage = execErr.Error()
			})
			if updateErr != nil {
				o.logger.Error("failed to persist failed node record",
					"node_id", node.ID, "error", updateErr)
			}

			o.publish(nodeCtx, ectx.ExecutionID, events.NodeFailed{
				BaseEvent:    o.baseEvent(events.NodeFailedEvent, ectx.WorkflowID),
				ExecutionID:  ectx.ExecutionID,
				NodeID:       node.ID,
				ErrorMessage: execErr.Error(),
				RetryCount:   attempt,
			})

			return nil, execErr
		}

		o.logger.Info("retrying node after failure",
			"execution_id", ectx.ExecutionID,
			"node_id", node.ID,
			"attempt", attempt+1,
			"delay", resolution.Delay,
			"error", execErr)

		if resolution.Delay > 0 {
			// Cancellation short-circuits the backoff sleep immediately.
			if err := sleepCtx(nodeCtx, resolution.Delay); err != nil {
				return nil, fmt.Errorf("execution cancelled during backoff: %w", err)
			}
		}

		ectx.Retry = resolution.Directive

		err := state.Update(nodeCtx, node.ID, func(record *models.NodeExecution) {
			record.RetryCount = attempt + 1
		})
		if err != nil {
			return nil, err
		}
	}
}

func (o *Orchestrator) completeExecution(ctx context.Context, execution *models.Execution, output map[string]any, nodesExecuted int) error {
	now := time.Now().UTC()
	execution.Status = models.ExecutionStatusCompleted
	execution.CurrentNodeID = ""
	execution.OutputData = output
	execution.CompletedAt = &now

	if err := o.persistence.ExecutionRepository().Update(ctx, execution); err != nil {
		return err
	}

	o.publish(ctx, execution.ID, events.ExecutionCompleted{
		BaseEvent:     o.baseEvent(events.ExecutionCompletedEvent, execution.WorkflowID),
		ExecutionID:   execution.ID,
		DurationMs:    durationMs(execution.StartedAt, now),
		NodesExecuted: nodesExecuted,
		OutputData:    output,
	})

	o.logger.Info("execution completed", "execution_id", execution.ID)

	return nil
}

func (o *Orchestrator) failExecution(ctx context.Context, execution *models.Execution, nodeID string, cause error) error {
	now := time.Now().UTC()
	execution.Status = models.ExecutionStatusFailed
	execution.ErrorNodeID = nodeID
	execution.ErrorMessage = cause.Error()
	execution.CompletedAt = &now

	if err := o.persistence.ExecutionRepository().Update(ctx, execution); err != nil {
		o.logger.Error("failed to persist failed execution",
			"execution_id", execution.ID, "error", err)
	}

	o.publish(ctx, execution.ID, events.ExecutionFailed{
		BaseEvent:    o.baseEvent(events.ExecutionFailedEvent, execution.WorkflowID),
		ExecutionID:  execution.ID,
		ErrorNodeID:  nodeID,
		ErrorMessage: cause.Error(),
		DurationMs:   durationMs(execution.StartedAt, now),
	})

	o.logger.Error("execution failed",
		"execution_id", execution.ID,
		"error_node_id", nodeID,
		"error", cause)

	return cause
}

func (o *Orchestrator) pauseExecution(ctx context.Context, execution *models.Execution) error {
	execution.Status = models.ExecutionStatusPaused

	if err := o.persistence.ExecutionRepository().Update(ctx, execution); err != nil {
		return err
	}

	o.publish(ctx, execution.ID, events.ExecutionPaused{
		BaseEvent:    o.baseEvent(events.ExecutionPausedEvent, execution.WorkflowID),
		ExecutionID:  execution.ID,
		PausedAtNode: execution.CurrentNodeID,
	})

	o.logger.Info("execution paused",
		"execution_id", execution.ID,
		"paused_at_node", execution.CurrentNodeID)

	return nil
}

func (o *Orchestrator) baseEvent(eventType events.EventType, workflowID string) events.BaseEvent {
	base := events.NewBaseEvent(eventType, workflowID)
	base.WorkerID = o.workerID

	return base
}

func (o *Orchestrator) publish(ctx context.Context, key string, event events.Event) {
	if o.bus == nil {
		return
	}

	if err := o.bus.Publish(ctx, key, event); err != nil {
		o.logger.Error("failed to publish event",
			"event_type", string(event.GetType()), "error", err)
	}
}

// applyUsageMetadata folds the model usage an executor reported through
// the shared metadata map into the node record, then clears the keys so
// they never leak into the next node.
func applyUsageMetadata(record *models.NodeExecution, metadata map[string]any) {
	if metadata == nil {
		return
	}

	if v, ok := metadata[protocol.MetadataModelUsed].(string); ok {
		record.ModelUsed = v
	}

	if v, ok := metadata[protocol.MetadataFailoverUsed].(bool); ok {
		record.FailoverUsed = v
	}

	if v, ok := metadata[protocol.MetadataInputTokens].(int); ok {
		record.InputTokens = v
	}

	if v, ok := metadata[protocol.MetadataOutputTokens].(int); ok {
		record.OutputTokens = v
	}

	if v, ok := metadata[protocol.MetadataCostUSD].(float64); ok {
		record.CostUSD = v
	}

	for _, key := range []string{
		protocol.MetadataModelUsed, protocol.MetadataFailoverUsed,
		protocol.MetadataInputTokens, protocol.MetadataOutputTokens,
		protocol.MetadataCostUSD,
	} {
		delete(metadata, key)
	}
}

func durationMs(startedAt *time.Time, now time.Time) int64 {
	if startedAt == nil {
		return 0
	}

	return now.Sub(*startedAt).Milliseconds()
}

// sleepCtx sleeps for d or until the context is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
