package execution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/repopulse/pulseflow/pkg/backend"
	"github.com/repopulse/pulseflow/pkg/models"
	"github.com/repopulse/pulseflow/pkg/persistence"
	"github.com/repopulse/pulseflow/pkg/persistence/file"
	"github.com/repopulse/pulseflow/pkg/protocol"
)

type nodeFunc func(ctx context.Context, ectx models.ExecutionContext, input map[string]any) (map[string]any, error)

type scriptedExecutor struct {
	nodeType string
	fn       nodeFunc
}

func (e *scriptedExecutor) Execute(ctx context.Context, ectx models.ExecutionContext, input map[string]any) (map[string]any, error) {
	return e.fn(ctx, ectx, input)
}

func (e *scriptedExecutor) Type() string {
	return e.nodeType
}

// scriptedExecutors scripts one function per node ID and counts Execute
// calls.
type scriptedExecutors struct {
	fns   map[string]nodeFunc
	calls map[string]int
}

func (s *scriptedExecutors) ExecutorFor(_ context.Context, node *models.Node) (protocol.NodeExecutor, error) {
	fn, ok := s.fns[node.ID]
	if !ok {
		return nil, fmt.Errorf("no script for node %s", node.ID)
	}

	wrapped := func(ctx context.Context, ectx models.ExecutionContext, input map[string]any) (map[string]any, error) {
		s.calls[node.ID]++

		return fn(ctx, ectx, input)
	}

	return &scriptedExecutor{nodeType: node.Type, fn: wrapped}, nil
}

func returning(output map[string]any) nodeFunc {
	return func(_ context.Context, _ models.ExecutionContext, _ map[string]any) (map[string]any, error) {
		return output, nil
	}
}

type orchestratorHarness struct {
	persistence  persistence.Persistence
	executors    *scriptedExecutors
	orchestrator *Orchestrator
}

func newOrchestratorHarness(t *testing.T, workflow *models.Workflow) *orchestratorHarness {
	t.Helper()

	p := file.NewPersistence(t.TempDir())
	require.NoError(t, p.WorkflowRepository().Save(context.Background(), workflow))

	executors := &scriptedExecutors{
		fns:   make(map[string]nodeFunc),
		calls: make(map[string]int),
	}

	failures := NewFailureHandler(FailureConfig{
		MaxRetries: 3,
		BaseDelay:  time.Millisecond,
		MaxDelay:   5 * time.Millisecond,
	}, slog.Default())

	return &orchestratorHarness{
		persistence:  p,
		executors:    executors,
		orchestrator: NewOrchestrator(p, executors, failures, nil, nil, "worker-test", slog.Default()),
	}
}

func (h *orchestratorHarness) seedExecution(t *testing.T, status models.ExecutionStatus) *models.Execution {
	t.Helper()

	execution := &models.Execution{
		ID:         "exec-1",
		WorkflowID: "wf-1",
		CallerID:   "caller-1",
		Status:     status,
		InputData:  map[string]any{"ticket": "printer on fire"},
	}
	require.NoError(t, h.persistence.ExecutionRepository().Create(context.Background(), execution))

	return execution
}

func (h *orchestratorHarness) reload(t *testing.T, executionID string) *models.Execution {
	t.Helper()

	execution, err := h.persistence.ExecutionRepository().ExecutionByID(context.Background(), executionID)
	require.NoError(t, err)

	return execution
}

func (h *orchestratorHarness) nodeRecord(t *testing.T, executionID, nodeID string) *models.NodeExecution {
	t.Helper()

	record, err := h.persistence.NodeExecutionRepository().NodeExecution(context.Background(), executionID, nodeID)
	require.NoError(t, err)

	return record
}

func TestStart_LinearCompletion(t *testing.T) {
	h := newOrchestratorHarness(t, branchingWorkflow())
	h.executors.fns["intake"] = returning(map[string]any{"text": "normalized"})
	h.executors.fns["classify"] = returning(map[string]any{"sentiment": "positive"})
	h.executors.fns["archive"] = returning(map[string]any{"archived": true})

	h.seedExecution(t, models.ExecutionStatusPending)

	require.NoError(t, h.orchestrator.Start(context.Background(), "exec-1"))

	execution := h.reload(t, "exec-1")
	assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)
	assert.Equal(t, map[string]any{"archived": true}, execution.OutputData)
	assert.Empty(t, execution.CurrentNodeID)
	require.NotNil(t, execution.StartedAt)
	require.NotNil(t, execution.CompletedAt)

	assert.Equal(t, 1, h.executors.calls["intake"])
	assert.Equal(t, 1, h.executors.calls["classify"])
	assert.Equal(t, 1, h.executors.calls["archive"])
	assert.Zero(t, h.executors.calls["escalate"])

	record := h.nodeRecord(t, "exec-1", "archive")
	assert.Equal(t, models.NodeExecutionStatusCompleted, record.Status)
	assert.Equal(t, map[string]any{"sentiment": "positive"}, record.Input)
}

func TestStart_NonPendingRejected(t *testing.T) {
	h := newOrchestratorHarness(t, branchingWorkflow())
	h.seedExecution(t, models.ExecutionStatusRunning)

	err := h.orchestrator.Start(context.Background(), "exec-1")
	require.ErrorIs(t, err, ErrInvalidStateTransition)
}

func TestStart_ConditionalRouting(t *testing.T) {
	h := newOrchestratorHarness(t, branchingWorkflow())
	h.executors.fns["intake"] = returning(map[string]any{"text": "normalized"})
	h.executors.fns["classify"] = returning(map[string]any{"sentiment": "negative"})
	h.executors.fns["escalate"] = returning(map[string]any{"escalated": true})

	h.seedExecution(t, models.ExecutionStatusPending)

	require.NoError(t, h.orchestrator.Start(context.Background(), "exec-1"))

	execution := h.reload(t, "exec-1")
	assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)
	assert.Equal(t, map[string]any{"escalated": true}, execution.OutputData)
	assert.Zero(t, h.executors.calls["archive"], "the unconditional edge must not fire after a match")
}

func TestStart_TransientRetriesThenSucceeds(t *testing.T) {
	h := newOrchestratorHarness(t, branchingWorkflow())
	h.executors.fns["intake"] = returning(map[string]any{"text": "normalized"})
	h.executors.fns["archive"] = returning(map[string]any{"archived": true})

	failuresLeft := 2
	h.executors.fns["classify"] = func(_ context.Context, _ models.ExecutionContext, _ map[string]any) (map[string]any, error) {
		if failuresLeft > 0 {
			failuresLeft--

			return nil, backend.NewError(backend.KindTransient, "pulse-fast-1", errors.New("rate limited"))
		}

		return map[string]any{"sentiment": "positive"}, nil
	}

	h.seedExecution(t, models.ExecutionStatusPending)

	require.NoError(t, h.orchestrator.Start(context.Background(), "exec-1"))

	assert.Equal(t, 3, h.executors.calls["classify"])

	record := h.nodeRecord(t, "exec-1", "classify")
	assert.Equal(t, models.NodeExecutionStatusCompleted, record.Status)
	assert.Equal(t, 2, record.RetryCount)
	assert.Empty(t, record.ErrorMessage)
}

func TestStart_ValidationFailsExecution(t *testing.T) {
	h := newOrchestratorHarness(t, branchingWorkflow())
	h.executors.fns["intake"] = returning(map[string]any{"text": "normalized"})
	h.executors.fns["classify"] = func(_ context.Context, _ models.ExecutionContext, _ map[string]any) (map[string]any, error) {
		return nil, backend.NewError(backend.KindValidation, "pulse-fast-1", errors.New("prompt too long"))
	}

	h.seedExecution(t, models.ExecutionStatusPending)

	err := h.orchestrator.Start(context.Background(), "exec-1")
	require.Error(t, err)
	assert.Equal(t, backend.KindValidation, backend.Classify(err))
	assert.Equal(t, 1, h.executors.calls["classify"], "validation failures are never retried")

	execution := h.reload(t, "exec-1")
	assert.Equal(t, models.ExecutionStatusFailed, execution.Status)
	assert.Equal(t, "classify", execution.ErrorNodeID)
	assert.Contains(t, execution.ErrorMessage, "prompt too long")
	require.NotNil(t, execution.CompletedAt)

	record := h.nodeRecord(t, "exec-1", "classify")
	assert.Equal(t, models.NodeExecutionStatusFailed, record.Status)
}

func TestPauseAndResume(t *testing.T) {
	h := newOrchestratorHarness(t, branchingWorkflow())
	h.executors.fns["intake"] = func(_ context.Context, _ models.ExecutionContext, _ map[string]any) (map[string]any, error) {
		// The request arrives while the node runs; the flag is observed
		// after the in-flight node finishes.
		require.True(t, h.orchestrator.RequestPause("exec-1"),
			"the driving orchestrator must accept the pause")

		return map[string]any{"text": "normalized"}, nil
	}
	h.executors.fns["classify"] = returning(map[string]any{"sentiment": "positive"})
	h.executors.fns["archive"] = returning(map[string]any{"archived": true})

	h.seedExecution(t, models.ExecutionStatusPending)

	require.NoError(t, h.orchestrator.Start(context.Background(), "exec-1"))

	paused := h.reload(t, "exec-1")
	assert.Equal(t, models.ExecutionStatusPaused, paused.Status)
	assert.Equal(t, "classify", paused.CurrentNodeID)
	assert.Equal(t, 1, h.executors.calls["intake"])
	assert.Zero(t, h.executors.calls["classify"])

	require.NoError(t, h.orchestrator.Resume(context.Background(), "exec-1"))

	resumed := h.reload(t, "exec-1")
	assert.Equal(t, models.ExecutionStatusCompleted, resumed.Status)
	assert.Equal(t, 1, h.executors.calls["intake"], "completed nodes are never re-executed")
	assert.Equal(t, 1, h.executors.calls["classify"])
	assert.Equal(t, 1, h.executors.calls["archive"])
}

func TestRequestPause_NotDrivingDropped(t *testing.T) {
	h := newOrchestratorHarness(t, branchingWorkflow())
	h.executors.fns["intake"] = returning(map[string]any{"text": "normalized"})
	h.executors.fns["classify"] = returning(map[string]any{"sentiment": "positive"})
	h.executors.fns["archive"] = returning(map[string]any{"archived": true})

	h.seedExecution(t, models.ExecutionStatusPending)

	// This orchestrator is not driving exec-1 yet, so the broadcast copy
	// of the request must be dropped instead of retained.
	assert.False(t, h.orchestrator.RequestPause("exec-1"))

	require.NoError(t, h.orchestrator.Start(context.Background(), "exec-1"))

	execution := h.reload(t, "exec-1")
	assert.Equal(t, models.ExecutionStatusCompleted, execution.Status,
		"a dropped pause request must not pause a later run")
}

func TestRequestPause_FlagClearedWhenDriveEnds(t *testing.T) {
	h := newOrchestratorHarness(t, branchingWorkflow())
	h.executors.fns["intake"] = returning(map[string]any{"text": "normalized"})
	h.executors.fns["classify"] = returning(map[string]any{"sentiment": "positive"})
	h.executors.fns["archive"] = func(_ context.Context, _ models.ExecutionContext, _ map[string]any) (map[string]any, error) {
		// Requested during the terminal node; the execution completes
		// before the flag is ever consumed.
		h.orchestrator.RequestPause("exec-1")

		return map[string]any{"archived": true}, nil
	}

	h.seedExecution(t, models.ExecutionStatusPending)

	require.NoError(t, h.orchestrator.Start(context.Background(), "exec-1"))

	h.orchestrator.mu.Lock()
	defer h.orchestrator.mu.Unlock()
	assert.Empty(t, h.orchestrator.pauseRequested, "stale pause flags must not outlive the drive")
	assert.Empty(t, h.orchestrator.driving)
}

func TestResume_NonPausedRejected(t *testing.T) {
	h := newOrchestratorHarness(t, branchingWorkflow())
	h.seedExecution(t, models.ExecutionStatusPending)

	err := h.orchestrator.Resume(context.Background(), "exec-1")
	require.ErrorIs(t, err, ErrInvalidStateTransition)
}

func TestStart_CancelledContextFailsExecution(t *testing.T) {
	h := newOrchestratorHarness(t, branchingWorkflow())
	h.seedExecution(t, models.ExecutionStatusPending)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := h.orchestrator.Start(ctx, "exec-1")
	require.ErrorIs(t, err, context.Canceled)

	execution := h.reload(t, "exec-1")
	assert.Equal(t, models.ExecutionStatusFailed, execution.Status)
}

func TestStart_UndeclaredNodeFailsExecution(t *testing.T) {
	workflow := branchingWorkflow()
	workflow.Edges = append(workflow.Edges, &models.Edge{ID: "e4", Source: "archive", Target: "ghost"})

	h := newOrchestratorHarness(t, workflow)
	h.executors.fns["intake"] = returning(map[string]any{"text": "normalized"})
	h.executors.fns["classify"] = returning(map[string]any{"sentiment": "positive"})
	h.executors.fns["archive"] = returning(map[string]any{"archived": true})

	h.seedExecution(t, models.ExecutionStatusPending)

	err := h.orchestrator.Start(context.Background(), "exec-1")
	require.Error(t, err)

	execution := h.reload(t, "exec-1")
	assert.Equal(t, models.ExecutionStatusFailed, execution.Status)
	assert.Equal(t, "ghost", execution.ErrorNodeID)
}

func TestStart_UsageMetadataFoldedIntoRecord(t *testing.T) {
	h := newOrchestratorHarness(t, branchingWorkflow())
	h.executors.fns["intake"] = returning(map[string]any{"text": "normalized"})
	h.executors.fns["archive"] = returning(map[string]any{"archived": true})
	h.executors.fns["classify"] = func(_ context.Context, ectx models.ExecutionContext, _ map[string]any) (map[string]any, error) {
		ectx.Metadata[protocol.MetadataModelUsed] = "pulse-fast-1"
		ectx.Metadata[protocol.MetadataFailoverUsed] = true
		ectx.Metadata[protocol.MetadataInputTokens] = 120
		ectx.Metadata[protocol.MetadataOutputTokens] = 48
		ectx.Metadata[protocol.MetadataCostUSD] = 0.0021

		return map[string]any{"sentiment": "positive"}, nil
	}

	h.seedExecution(t, models.ExecutionStatusPending)

	require.NoError(t, h.orchestrator.Start(context.Background(), "exec-1"))

	record := h.nodeRecord(t, "exec-1", "classify")
	assert.Equal(t, "pulse-fast-1", record.ModelUsed)
	assert.True(t, record.FailoverUsed)
	assert.Equal(t, 120, record.InputTokens)
	assert.Equal(t, 48, record.OutputTokens)
	assert.InDelta(t, 0.0021, record.CostUSD, 1e-9)

	// Usage keys must not bleed into nodes that report nothing.
	downstream := h.nodeRecord(t, "exec-1", "archive")
	assert.Empty(t, downstream.ModelUsed)
	assert.Zero(t, downstream.InputTokens)
}
