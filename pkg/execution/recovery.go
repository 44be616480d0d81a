package execution

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/repopulse/pulseflow/pkg/models"
	"github.com/repopulse/pulseflow/pkg/persistence"
)

// JanitorConfig tunes the recovery sweep.
type JanitorConfig struct {
	// Schedule is a cron expression for the sweep cadence.
	Schedule string

	// StaleAfter is how long a running execution may go without an update
	// before the sweep considers its worker dead.
	StaleAfter time.Duration
}

// DefaultJanitorConfig returns the janitor defaults.
func DefaultJanitorConfig() JanitorConfig {
	return JanitorConfig{
		Schedule:   "@every 1m",
		StaleAfter: 10 * time.Minute,
	}
}

// Janitor periodically marks stale running executions as failed. An
// execution left running by a crashed worker must never be silently
// resumed: its latest node update may not have been persisted.
type Janitor struct {
	config  JanitorConfig
	repo    persistence.ExecutionRepository
	logger  *slog.Logger
	cron    *cron.Cron
	entryID cron.EntryID
}

// NewJanitor creates a recovery janitor.
func NewJanitor(config JanitorConfig, repo persistence.ExecutionRepository, logger *slog.Logger) *Janitor {
	if config.Schedule == "" {
		config.Schedule = DefaultJanitorConfig().Schedule
	}

	if config.StaleAfter <= 0 {
		config.StaleAfter = DefaultJanitorConfig().StaleAfter
	}

	return &Janitor{
		config: config,
		repo:   repo,
		logger: logger.With("module", "recovery_janitor"),
		cron:   cron.New(),
	}
}

// Start schedules the sweep and runs one immediately so executions
// orphaned before this process started are handled right away.
func (j *Janitor) Start(ctx context.Context) error {
	if err := j.Sweep(ctx); err != nil {
		j.logger.Error("initial recovery sweep failed", "error", err)
	}

	entryID, err := j.cron.AddFunc(j.config.Schedule, func() {
		if err := j.Sweep(context.Background()); err != nil {
			j.logger.Error("recovery sweep failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule recovery sweep: %w", err)
	}

	j.entryID = entryID
	j.cron.Start()

	j.logger.Info("recovery janitor started",
		"schedule", j.config.Schedule,
		"stale_after", j.config.StaleAfter)

	return nil
}

// Stop halts the sweep schedule and waits for an in-flight sweep.
func (j *Janitor) Stop() {
	stopCtx := j.cron.Stop()
	<-stopCtx.Done()
}

// Sweep marks every running execution whose last update is older than
// StaleAfter as failed.
func (j *Janitor) Sweep(ctx context.Context) error {
	running, err := j.repo.ListByStatus(ctx, models.ExecutionStatusRunning)
	if err != nil {
		return fmt.Errorf("failed to list running executions: %w", err)
	}

	cutoff := time.Now().UTC().Add(-j.config.StaleAfter)

	for _, execution := range running {
		if execution.UpdatedAt.After(cutoff) {
			continue
		}

		now := time.Now().UTC()
		execution.Status = models.ExecutionStatusFailed
		execution.ErrorMessage = "execution abandoned: no progress recorded, worker presumed dead"
		execution.CompletedAt = &now

		if err := j.repo.Update(ctx, execution); err != nil {
			j.logger.Error("failed to mark stale execution as failed",
				"execution_id", execution.ID, "error", err)

			continue
		}

		j.logger.Warn("marked stale execution as failed",
			"execution_id", execution.ID,
			"last_update", execution.UpdatedAt)
	}

	return nil
}
