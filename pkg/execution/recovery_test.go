package execution

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/repopulse/pulseflow/pkg/models"
	"github.com/repopulse/pulseflow/pkg/persistence"
	"github.com/repopulse/pulseflow/pkg/persistence/file"
)

func newJanitorHarness(t *testing.T, staleAfter time.Duration) (*Janitor, persistence.ExecutionRepository) {
	t.Helper()

	repo := file.NewPersistence(t.TempDir()).ExecutionRepository()
	janitor := NewJanitor(JanitorConfig{StaleAfter: staleAfter}, repo, slog.Default())

	return janitor, repo
}

func seedJanitorExecution(t *testing.T, repo persistence.ExecutionRepository, id string, status models.ExecutionStatus) {
	t.Helper()

	require.NoError(t, repo.Create(context.Background(), &models.Execution{
		ID:         id,
		WorkflowID: "wf-1",
		Status:     status,
	}))
}

func TestSweep_MarksStaleRunningExecutionFailed(t *testing.T) {
	janitor, repo := newJanitorHarness(t, 20*time.Millisecond)

	seedJanitorExecution(t, repo, "exec-stale", models.ExecutionStatusRunning)

	time.Sleep(40 * time.Millisecond)

	require.NoError(t, janitor.Sweep(context.Background()))

	execution, err := repo.ExecutionByID(context.Background(), "exec-stale")
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusFailed, execution.Status)
	assert.Equal(t, "execution abandoned: no progress recorded, worker presumed dead", execution.ErrorMessage)
	require.NotNil(t, execution.CompletedAt)
}

func TestSweep_SparesRecentlyUpdatedExecution(t *testing.T) {
	janitor, repo := newJanitorHarness(t, 20*time.Millisecond)

	seedJanitorExecution(t, repo, "exec-live", models.ExecutionStatusRunning)

	time.Sleep(40 * time.Millisecond)

	// A worker heartbeat: any update refreshes the staleness clock.
	live, err := repo.ExecutionByID(context.Background(), "exec-live")
	require.NoError(t, err)
	require.NoError(t, repo.Update(context.Background(), live))

	require.NoError(t, janitor.Sweep(context.Background()))

	execution, err := repo.ExecutionByID(context.Background(), "exec-live")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusRunning, execution.Status)
	assert.Empty(t, execution.ErrorMessage)
}

func TestSweep_IgnoresNonRunningExecutions(t *testing.T) {
	janitor, repo := newJanitorHarness(t, time.Millisecond)

	seedJanitorExecution(t, repo, "exec-pending", models.ExecutionStatusPending)
	seedJanitorExecution(t, repo, "exec-paused", models.ExecutionStatusPaused)

	time.Sleep(10 * time.Millisecond)

	require.NoError(t, janitor.Sweep(context.Background()))

	for _, tc := range []struct {
		id   string
		want models.ExecutionStatus
	}{
		{id: "exec-pending", want: models.ExecutionStatusPending},
		{id: "exec-paused", want: models.ExecutionStatusPaused},
	} {
		execution, err := repo.ExecutionByID(context.Background(), tc.id)
		require.NoError(t, err)
		assert.Equal(t, tc.want, execution.Status)
	}
}
