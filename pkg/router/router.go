// Package router selects a concrete model for a classified task. Selection
// is pure: it reads the catalog and the breaker registry but performs no
// network I/O, so it can run on every node attempt without adding latency.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/repopulse/pulseflow/pkg/breaker"
	"github.com/repopulse/pulseflow/pkg/catalog"
	"github.com/repopulse/pulseflow/pkg/classifier"
	"github.com/repopulse/pulseflow/pkg/events"
	"github.com/repopulse/pulseflow/pkg/models"
)

// ErrNoAvailableModel indicates every candidate in the tier, including the
// failover chains, has an open circuit.
var ErrNoAvailableModel = errors.New("no available model")

// Budget is the caller's spending constraint, resolved by the budget
// collaborator before selection.
type Budget struct {
	Limited      bool
	RemainingUSD float64
}

// BudgetSource is the read-only budget collaborator. The router never
// writes budget state; it only emits usage records for the collaborator to
// aggregate.
type BudgetSource interface {
	UserBudget(ctx context.Context, callerID string) (Budget, error)
}

// UsageSink receives append-only token usage facts.
type UsageSink interface {
	Append(ctx context.Context, record models.TokenUsageRecord) error
}

// Publisher emits usage audit events, keyed for partition affinity.
type Publisher interface {
	Publish(ctx context.Context, key string, event events.Event) error
}

// StaticBudgetSource grants every caller the same fixed spending limit. It
// is the worker's out-of-the-box budget collaborator; deployments with
// per-caller accounting supply their own BudgetSource.
type StaticBudgetSource struct {
	PerCallerUSD float64
}

func (s StaticBudgetSource) UserBudget(ctx context.Context, callerID string) (Budget, error) {
	return Budget{Limited: true, RemainingUSD: s.PerCallerUSD}, nil
}

// RouteRequest describes one selection.
type RouteRequest struct {
	// Instruction is the free-text work description, used for
	// classification when Task is nil.
	Instruction string

	// TypeHint optionally names a task category directly.
	TypeHint string

	// Task short-circuits classification when the caller already
	// classified the work.
	Task *models.TaskDescriptor

	// Budget is the caller's resolved spending constraint.
	Budget Budget

	// EstimatedInputTokens sizes the cost estimate. Zero means estimate
	// from the instruction length.
	EstimatedInputTokens int
}

// Decision is the routing metadata returned by Select.
type Decision struct {
	ModelID          string
	Category         models.TaskCategory
	MaxTokens        int
	Timeout          time.Duration
	EstimatedCostUSD float64
	EstimatedLatency time.Duration
}

// Router picks models from the catalog, respecting circuit state and caller
// budgets.
type Router struct {
	catalog  *catalog.Catalog
	breakers *breaker.Registry
	usage    UsageSink
	audit    Publisher
	logger   *slog.Logger
}

// New creates a router. The usage sink may be nil when the caller records
// usage elsewhere; the audit publisher may be nil when no bus is wired.
func New(cat *catalog.Catalog, breakers *breaker.Registry, usage UsageSink, audit Publisher, logger *slog.Logger) *Router {
	return &Router{
		catalog:  cat,
		breakers: breakers,
		usage:    usage,
		audit:    audit,
		logger:   logger.With("module", "router"),
	}
}

// Select resolves a route request to a model. Budget-limited callers get
// the cheapest model in the category's tier by output cost; unconstrained
// callers get the fastest. A model whose circuit is open at selection time
// is substituted by the first failover-chain entry, then any remaining tier
// candidate, with a non-open circuit.
func (r *Router) Select(ctx context.Context, req RouteRequest) (*Decision, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	task := req.Task
	if task == nil {
		classified := classifier.Classify(req.Instruction, req.TypeHint)
		task = &classified
	}

	candidates := r.catalog.ModelsInTier(task.Tier)
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: tier %s has no models", ErrNoAvailableModel, task.Tier)
	}

	preferred := candidates[0]
	if !req.Budget.Limited {
		preferred = fastestOf(candidates)
	}

	chosen, err := r.firstAvailable(preferred, candidates)
	if err != nil {
		return nil, fmt.Errorf("%w: tier %s", err, task.Tier)
	}

	inputTokens := req.EstimatedInputTokens
	if inputTokens == 0 {
		// Rough heuristic: four characters per token.
		inputTokens = len(req.Instruction)/4 + 1
	}

	estimated := chosen.EstimateCostUSD(inputTokens, task.MaxTokens)
	if req.Budget.Limited && estimated > req.Budget.RemainingUSD {
		r.logger.Warn("estimated cost exceeds remaining budget",
			"model_id", chosen.ID,
			"estimated_cost_usd", estimated,
			"remaining_usd", req.Budget.RemainingUSD)
	}

	if chosen.ID != preferred.ID {
		r.logger.Info("preferred model substituted at selection time",
			"preferred", preferred.ID,
			"chosen", chosen.ID)
	}

	return &Decision{
		ModelID:          chosen.ID,
		Category:         task.Category,
		MaxTokens:        task.MaxTokens,
		Timeout:          task.Timeout,
		EstimatedCostUSD: estimated,
		EstimatedLatency: time.Duration(chosen.AvgLatencyMs) * time.Millisecond,
	}, nil
}

// firstAvailable returns the preferred model when its circuit admits
// requests, otherwise the first non-open entry of its failover chain, and
// finally any remaining tier candidate.
func (r *Router) firstAvailable(preferred *models.ModelDescriptor, candidates []*models.ModelDescriptor) (*models.ModelDescriptor, error) {
	if r.breakers.Available(preferred.ID) {
		return preferred, nil
	}

	for _, step := range preferred.FailoverChain {
		fallback, err := r.catalog.ModelByID(step.ModelID)
		if err != nil {
			continue
		}

		if r.breakers.Available(fallback.ID) {
			return fallback, nil
		}
	}

	for _, candidate := range candidates {
		if candidate.ID == preferred.ID {
			continue
		}

		if r.breakers.Available(candidate.ID) {
			return candidate, nil
		}
	}

	return nil, ErrNoAvailableModel
}

// RecordUsage appends one token usage fact to the sink and publishes the
// matching audit event. Records are append-only and never read back by the
// router; the persisted record is the source of truth, so a publish failure
// is logged but does not fail the call.
func (r *Router) RecordUsage(ctx context.Context, record models.TokenUsageRecord) error {
	if record.RecordedAt.IsZero() {
		record.RecordedAt = time.Now().UTC()
	}

	if r.usage != nil {
		if err := r.usage.Append(ctx, record); err != nil {
			return fmt.Errorf("append usage record: %w", err)
		}
	}

	if r.audit != nil {
		event := events.TokenUsageRecorded{
			BaseEvent: events.NewBaseEvent(events.TokenUsageRecordedEvent, ""),
			Record:    record,
		}

		if err := r.audit.Publish(ctx, record.RequestID, event); err != nil {
			r.logger.Warn("failed to publish token usage event",
				"request_id", record.RequestID,
				"error", err)
		}
	}

	return nil
}

func fastestOf(candidates []*models.ModelDescriptor) *models.ModelDescriptor {
	fastest := candidates[0]
	for _, candidate := range candidates[1:] {
		if candidate.AvgLatencyMs < fastest.AvgLatencyMs {
			fastest = candidate
		}
	}

	return fastest
}
