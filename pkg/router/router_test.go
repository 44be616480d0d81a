package router

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/repopulse/pulseflow/pkg/breaker"
	"github.com/repopulse/pulseflow/pkg/catalog"
	"github.com/repopulse/pulseflow/pkg/events"
	"github.com/repopulse/pulseflow/pkg/models"
)

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()

	cat, err := catalog.New([]*models.ModelDescriptor{
		{
			ID:                  "cheap-slow",
			Provider:            "test",
			Tier:                models.ModelTierFast,
			CostPerKTokenOutput: 0.0005,
			AvgLatencyMs:        1200,
			FailoverChain: []models.FailoverStep{
				{ModelID: "pricey-fast", Delay: 100 * time.Millisecond},
			},
		},
		{
			ID:                  "pricey-fast",
			Provider:            "test",
			Tier:                models.ModelTierFast,
			CostPerKTokenOutput: 0.002,
			AvgLatencyMs:        400,
			FailoverChain: []models.FailoverStep{
				{ModelID: "cheap-slow", Delay: 100 * time.Millisecond},
			},
		},
		{
			ID:                  "third-wheel",
			Provider:            "test",
			Tier:                models.ModelTierFast,
			CostPerKTokenOutput: 0.004,
			AvgLatencyMs:        900,
		},
		{
			ID:                  "premium-only",
			Provider:            "test",
			Tier:                models.ModelTierPremium,
			CostPerKTokenOutput: 0.015,
			AvgLatencyMs:        2000,
		},
	})
	require.NoError(t, err)

	return cat
}

func newTestRouter(t *testing.T) (*Router, *breaker.Registry) {
	t.Helper()

	breakers := breaker.NewRegistry(breaker.Config{Threshold: 1, Cooldown: time.Minute}, slog.Default())

	return New(testCatalog(t), breakers, nil, nil, slog.Default()), breakers
}

func TestSelect_UnconstrainedPicksFastest(t *testing.T) {
	router, _ := newTestRouter(t)

	decision, err := router.Select(context.Background(), RouteRequest{
		Instruction: "summarize this text",
	})
	require.NoError(t, err)

	assert.Equal(t, "pricey-fast", decision.ModelID)
	assert.Equal(t, models.TaskCategorySimple, decision.Category)
	assert.Equal(t, 1024, decision.MaxTokens)
	assert.Equal(t, 400*time.Millisecond, decision.EstimatedLatency)
}

func TestSelect_BudgetLimitedPicksCheapest(t *testing.T) {
	router, _ := newTestRouter(t)

	decision, err := router.Select(context.Background(), RouteRequest{
		Instruction: "summarize this text",
		Budget:      Budget{Limited: true, RemainingUSD: 10},
	})
	require.NoError(t, err)

	assert.Equal(t, "cheap-slow", decision.ModelID)
}

func TestSelect_OpenCircuitSubstitutesChainEntry(t *testing.T) {
	router, breakers := newTestRouter(t)

	breakers.RecordFailure("pricey-fast")

	decision, err := router.Select(context.Background(), RouteRequest{
		Instruction: "summarize this text",
	})
	require.NoError(t, err)

	// Preferred (fastest) is open; its chain names cheap-slow.
	assert.Equal(t, "cheap-slow", decision.ModelID)
}

func TestSelect_FallsBackToRemainingTierCandidate(t *testing.T) {
	router, breakers := newTestRouter(t)

	breakers.RecordFailure("pricey-fast")
	breakers.RecordFailure("cheap-slow")

	decision, err := router.Select(context.Background(), RouteRequest{
		Instruction: "summarize this text",
	})
	require.NoError(t, err)

	assert.Equal(t, "third-wheel", decision.ModelID)
}

func TestSelect_AllCircuitsOpen(t *testing.T) {
	router, breakers := newTestRouter(t)

	breakers.RecordFailure("cheap-slow")
	breakers.RecordFailure("pricey-fast")
	breakers.RecordFailure("third-wheel")

	_, err := router.Select(context.Background(), RouteRequest{
		Instruction: "summarize this text",
	})
	require.ErrorIs(t, err, ErrNoAvailableModel)
}

func TestSelect_TaskShortCircuitsClassification(t *testing.T) {
	router, _ := newTestRouter(t)

	decision, err := router.Select(context.Background(), RouteRequest{
		Instruction: "summarize this text",
		Task: &models.TaskDescriptor{
			Category:  models.TaskCategoryComplex,
			Tier:      models.ModelTierPremium,
			MaxTokens: 4096,
			Timeout:   2 * time.Minute,
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "premium-only", decision.ModelID)
	assert.Equal(t, 4096, decision.MaxTokens)
}

func TestSelect_EmptyTier(t *testing.T) {
	router, _ := newTestRouter(t)

	_, err := router.Select(context.Background(), RouteRequest{
		Task: &models.TaskDescriptor{
			Category: models.TaskCategoryEvaluation,
			Tier:     models.ModelTierStandard,
		},
	})
	require.ErrorIs(t, err, ErrNoAvailableModel)
}

func TestSelect_CancelledContext(t *testing.T) {
	router, _ := newTestRouter(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := router.Select(ctx, RouteRequest{Instruction: "summarize"})
	require.ErrorIs(t, err, context.Canceled)
}

type capturingSink struct {
	records []models.TokenUsageRecord
}

func (s *capturingSink) Append(_ context.Context, record models.TokenUsageRecord) error {
	s.records = append(s.records, record)

	return nil
}

type capturingPublisher struct {
	keys      []string
	published []events.Event
	err       error
}

func (p *capturingPublisher) Publish(_ context.Context, key string, event events.Event) error {
	if p.err != nil {
		return p.err
	}

	p.keys = append(p.keys, key)
	p.published = append(p.published, event)

	return nil
}

func TestRecordUsage(t *testing.T) {
	sink := &capturingSink{}
	audit := &capturingPublisher{}
	breakers := breaker.NewRegistry(breaker.DefaultConfig(), slog.Default())
	router := New(testCatalog(t), breakers, sink, audit, slog.Default())

	err := router.RecordUsage(context.Background(), models.TokenUsageRecord{
		RequestID: "req-1",
		ModelID:   "cheap-slow",
	})
	require.NoError(t, err)

	require.Len(t, sink.records, 1)
	assert.False(t, sink.records[0].RecordedAt.IsZero(), "RecordedAt must be stamped")

	require.Len(t, audit.published, 1)
	recorded, ok := audit.published[0].(events.TokenUsageRecorded)
	require.True(t, ok)
	assert.Equal(t, events.TokenUsageRecordedEvent, recorded.GetType())
	assert.Equal(t, "cheap-slow", recorded.Record.ModelID)
	assert.Equal(t, sink.records[0], recorded.Record, "event must carry the stamped record")
	assert.Equal(t, []string{"req-1"}, audit.keys, "event must key on the request ID")
}

func TestRecordUsage_PublishFailureKeepsRecord(t *testing.T) {
	sink := &capturingSink{}
	audit := &capturingPublisher{err: errors.New("broker down")}
	breakers := breaker.NewRegistry(breaker.DefaultConfig(), slog.Default())
	router := New(testCatalog(t), breakers, sink, audit, slog.Default())

	err := router.RecordUsage(context.Background(), models.TokenUsageRecord{RequestID: "req-1"})
	require.NoError(t, err)

	require.Len(t, sink.records, 1)
}

func TestRecordUsage_NilSink(t *testing.T) {
	router, _ := newTestRouter(t)

	require.NoError(t, router.RecordUsage(context.Background(), models.TokenUsageRecord{RequestID: "req-1"}))
}

func TestStaticBudgetSource(t *testing.T) {
	source := StaticBudgetSource{PerCallerUSD: 2.5}

	budget, err := source.UserBudget(context.Background(), "caller-1")
	require.NoError(t, err)

	assert.True(t, budget.Limited)
	assert.InDelta(t, 2.5, budget.RemainingUSD, 0.0001)
}
