// Package failover wraps one logical backend call with chain walking: the
// primary model is attempted first, then each entry of its declared
// failover chain in order, sleeping the entry's configured delay before the
// attempt. Every dispatched attempt is audited.
package failover

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/repopulse/pulseflow/pkg/backend"
	"github.com/repopulse/pulseflow/pkg/breaker"
	"github.com/repopulse/pulseflow/pkg/catalog"
	"github.com/repopulse/pulseflow/pkg/events"
	"github.com/repopulse/pulseflow/pkg/models"
)

// ErrAllBackendsExhausted indicates the primary and its whole failover
// chain failed. It wraps the last underlying error.
var ErrAllBackendsExhausted = errors.New("all backends exhausted")

// Publisher emits audit events. Matches the event bus publish signature so
// the sequencer does not depend on a concrete bus.
type Publisher interface {
	Publish(ctx context.Context, key string, event events.Event) error
}

// Attempt is the audit record of one dispatched call.
type Attempt struct {
	ModelID   string
	Success   bool
	Err       error
	LatencyMs int64
}

// Outcome describes a successful invocation.
type Outcome struct {
	Response        *backend.Response
	ModelID         string
	FailoverUsed    bool
	OriginalModelID string
	Attempts        []Attempt
	LatencyMs       int64
}

// Sequencer walks failover chains. Safe for concurrent use.
type Sequencer struct {
	catalog  *catalog.Catalog
	breakers *breaker.Registry
	invoker  backend.Invoker
	audit    Publisher
	logger   *slog.Logger
}

// NewSequencer creates a sequencer. The audit publisher may be nil.
func NewSequencer(cat *catalog.Catalog, breakers *breaker.Registry, invoker backend.Invoker, audit Publisher, logger *slog.Logger) *Sequencer {
	return &Sequencer{
		catalog:  cat,
		breakers: breakers,
		invoker:  invoker,
		audit:    audit,
		logger:   logger.With("module", "failover"),
	}
}

// Invoke attempts the primary model, then its failover chain. A failure
// kind that is not failoverable (validation, content, unknown) stops the
// walk immediately and propagates. Breaker state settles on every
// dispatched attempt; models whose circuit refuses the call are skipped
// without counting as attempts.
func (s *Sequencer) Invoke(ctx context.Context, primaryModelID string, req backend.Request, timeout time.Duration) (*Outcome, error) {
	primary, err := s.catalog.ModelByID(primaryModelID)
	if err != nil {
		return nil, err
	}

	chain := make([]models.FailoverStep, 0, len(primary.FailoverChain)+1)
	chain = append(chain, models.FailoverStep{ModelID: primary.ID})
	chain = append(chain, primary.FailoverChain...)

	var (
		attempts []Attempt
		lastErr  error
	)

	for _, step := range chain {
		if step.Delay > 0 {
			if err := sleepCtx(ctx, step.Delay); err != nil {
				return nil, err
			}
		}

		if err := s.breakers.Allow(step.ModelID); err != nil {
			s.logger.Info("skipping model, circuit refused",
				"model_id", step.ModelID, "request_id", req.RequestID)
			lastErr = err

			continue
		}

		started := time.Now()
		resp, callErr := s.invoker.Call(ctx, step.ModelID, req, timeout)
		latency := time.Since(started).Milliseconds()

		attempt := Attempt{
			ModelID:   step.ModelID,
			Success:   callErr == nil,
			Err:       callErr,
			LatencyMs: latency,
		}
		attempts = append(attempts, attempt)
		s.publishAttempt(ctx, req.RequestID, primary.ID, attempt, len(attempts))

		if callErr == nil {
			s.breakers.RecordSuccess(step.ModelID)

			total := int64(0)
			for _, a := range attempts {
				total += a.LatencyMs
			}

			return &Outcome{
				Response:        resp,
				ModelID:         step.ModelID,
				FailoverUsed:    step.ModelID != primary.ID,
				OriginalModelID: primary.ID,
				Attempts:        attempts,
				LatencyMs:       total,
			}, nil
		}

		s.breakers.RecordFailure(step.ModelID)
		lastErr = callErr

		if !backend.IsFailoverable(callErr) {
			return nil, callErr
		}

		s.logger.Warn("model attempt failed, continuing chain",
			"model_id", step.ModelID,
			"request_id", req.RequestID,
			"error", callErr)
	}

	return nil, fmt.Errorf("%w: %w", ErrAllBackendsExhausted, lastErr)
}

func (s *Sequencer) publishAttempt(ctx context.Context, requestID, primaryID string, attempt Attempt, number int) {
	if s.audit == nil {
		return
	}

	event := events.ModelAttempted{
		BaseEvent:       events.NewBaseEvent(events.ModelAttemptedEvent, ""),
		RequestID:       requestID,
		ModelID:         attempt.ModelID,
		Attempt:         number,
		Success:         attempt.Success,
		FailoverUsed:    attempt.ModelID != primaryID,
		OriginalModelID: primaryID,
		LatencyMs:       attempt.LatencyMs,
	}
	if attempt.Err != nil {
		event.ErrorMessage = attempt.Err.Error()
	}

	if err := s.audit.Publish(ctx, requestID, event); err != nil {
		s.logger.Error("failed to publish model attempt audit",
			"request_id", requestID, "error", err)
	}
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
