package aitransform

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/repopulse/pulseflow/pkg/backend"
	"github.com/repopulse/pulseflow/pkg/breaker"
	"github.com/repopulse/pulseflow/pkg/catalog"
	"github.com/repopulse/pulseflow/pkg/failover"
	"github.com/repopulse/pulseflow/pkg/models"
	"github.com/repopulse/pulseflow/pkg/protocol"
	"github.com/repopulse/pulseflow/pkg/router"
)

type stubInvoker struct {
	failures map[string]error
	calls    []string
	requests []backend.Request
}

func (s *stubInvoker) Call(_ context.Context, modelID string, req backend.Request, _ time.Duration) (*backend.Response, error) {
	s.calls = append(s.calls, modelID)
	s.requests = append(s.requests, req)

	if err, ok := s.failures[modelID]; ok {
		return nil, err
	}

	return &backend.Response{Text: "ok from " + modelID, InputTokens: 10, OutputTokens: 20}, nil
}

type capturingSink struct {
	records []models.TokenUsageRecord
}

func (s *capturingSink) Append(_ context.Context, record models.TokenUsageRecord) error {
	s.records = append(s.records, record)

	return nil
}

type stubBudgets struct {
	budget  router.Budget
	callers []string
}

func (s *stubBudgets) UserBudget(_ context.Context, callerID string) (router.Budget, error) {
	s.callers = append(s.callers, callerID)

	return s.budget, nil
}

// pulse-fast-1 is the fastest and most expensive of the fast tier;
// pulse-fast-2 is its slower, cheaper failover target.
func newTestDeps(t *testing.T, invoker backend.Invoker, sink router.UsageSink, budgets router.BudgetSource) Dependencies {
	t.Helper()

	cat, err := catalog.New([]*models.ModelDescriptor{
		{
			ID:                  "pulse-fast-1",
			Provider:            "test",
			Tier:                models.ModelTierFast,
			CostPerKTokenInput:  0.002,
			CostPerKTokenOutput: 0.004,
			AvgLatencyMs:        300,
			FailoverChain: []models.FailoverStep{
				{ModelID: "pulse-fast-2"},
			},
		},
		{
			ID:                  "pulse-fast-2",
			Provider:            "test",
			Tier:                models.ModelTierFast,
			CostPerKTokenInput:  0.0005,
			CostPerKTokenOutput: 0.001,
			AvgLatencyMs:        900,
		},
	})
	require.NoError(t, err)

	breakers := breaker.NewRegistry(breaker.Config{Threshold: 5, Cooldown: time.Minute}, slog.Default())

	return Dependencies{
		Router:    router.New(cat, breakers, sink, nil, slog.Default()),
		Sequencer: failover.NewSequencer(cat, breakers, invoker, nil, slog.Default()),
		Catalog:   cat,
		Budgets:   budgets,
		Logger:    slog.Default(),
	}
}

func newSummarizeNode(t *testing.T, deps Dependencies, config map[string]any) protocol.NodeExecutor {
	t.Helper()

	executor, err := NewSummarizeFactory(deps).Create(context.Background(), &models.Node{
		ID:     "n1",
		Type:   models.NodeTypeAISummarize,
		Name:   "Summarize",
		Config: config,
	})
	require.NoError(t, err)

	return executor
}

func TestExecute_SummarizeHappyPath(t *testing.T) {
	invoker := &stubInvoker{}
	sink := &capturingSink{}
	node := newSummarizeNode(t, newTestDeps(t, invoker, sink, nil), map[string]any{"max_words": 80, "tone": "neutral"})

	ectx := models.ExecutionContext{
		ExecutionID: "exec-1",
		Metadata:    make(map[string]any),
	}

	output, err := node.Execute(context.Background(), ectx, map[string]any{"text": "a long report"})
	require.NoError(t, err)

	assert.Equal(t, "ok from pulse-fast-1", output["summarize"])
	assert.Equal(t, "pulse-fast-1", output["model_used"])
	assert.Equal(t, false, output["failover_used"])

	require.Len(t, invoker.requests, 1)
	instruction := invoker.requests[0].Instruction
	assert.Contains(t, instruction, "at most 80 words")
	assert.Contains(t, instruction, "neutral tone")
	assert.Equal(t, 1024, invoker.requests[0].MaxTokens)

	require.Len(t, sink.records, 1)
	record := sink.records[0]
	assert.Equal(t, "exec-1", record.ExecutionID)
	assert.Equal(t, "n1", record.NodeID)
	assert.Equal(t, "pulse-fast-1", record.ModelID)
	assert.Equal(t, 10, record.InputTokens)
	assert.Equal(t, 20, record.OutputTokens)
	assert.InDelta(t, 0.0001, record.CostUSD, 1e-9)
	assert.False(t, record.FailoverUsed)

	assert.Equal(t, "pulse-fast-1", ectx.Metadata[protocol.MetadataModelUsed])
	assert.Equal(t, 10, ectx.Metadata[protocol.MetadataInputTokens])
	assert.Equal(t, 20, ectx.Metadata[protocol.MetadataOutputTokens])
	assert.InDelta(t, 0.0001, ectx.Metadata[protocol.MetadataCostUSD].(float64), 1e-9)
}

func TestExecute_FailoverReported(t *testing.T) {
	invoker := &stubInvoker{failures: map[string]error{
		"pulse-fast-1": backend.NewError(backend.KindTransient, "pulse-fast-1", errors.New("down")),
	}}
	sink := &capturingSink{}
	node := newSummarizeNode(t, newTestDeps(t, invoker, sink, nil), nil)

	ectx := models.ExecutionContext{ExecutionID: "exec-1", Metadata: make(map[string]any)}

	output, err := node.Execute(context.Background(), ectx, map[string]any{"text": "a long report"})
	require.NoError(t, err)

	assert.Equal(t, "pulse-fast-2", output["model_used"])
	assert.Equal(t, true, output["failover_used"])

	require.Len(t, sink.records, 1)
	assert.Equal(t, "pulse-fast-2", sink.records[0].ModelID)
	assert.Equal(t, "pulse-fast-1", sink.records[0].OriginalModelID)
	assert.True(t, sink.records[0].FailoverUsed)
}

func TestExecute_EmptyInputIsValidationFailure(t *testing.T) {
	invoker := &stubInvoker{}
	node := newSummarizeNode(t, newTestDeps(t, invoker, &capturingSink{}, nil), nil)

	_, err := node.Execute(context.Background(), models.ExecutionContext{}, map[string]any{})
	require.Error(t, err)

	assert.Equal(t, backend.KindValidation, backend.Classify(err))
	assert.Empty(t, invoker.calls, "invalid input must never reach a backend")
}

func TestExecute_NonStringTextIsValidationFailure(t *testing.T) {
	node := newSummarizeNode(t, newTestDeps(t, &stubInvoker{}, &capturingSink{}, nil), nil)

	_, err := node.Execute(context.Background(), models.ExecutionContext{}, map[string]any{"text": 42})
	require.Error(t, err)
	assert.Equal(t, backend.KindValidation, backend.Classify(err))
}

func TestExecute_AlternateModelDirective(t *testing.T) {
	invoker := &stubInvoker{}
	node := newSummarizeNode(t, newTestDeps(t, invoker, &capturingSink{}, nil), nil)

	ectx := models.ExecutionContext{
		ExecutionID: "exec-1",
		Retry:       models.RetryDirective{Attempt: 1, AlternateModel: true},
	}

	_, err := node.Execute(context.Background(), ectx, map[string]any{"text": "a long report"})
	require.NoError(t, err)

	// The retry must not land on the model that just failed.
	require.NotEmpty(t, invoker.calls)
	assert.Equal(t, "pulse-fast-2", invoker.calls[0])
}

func TestExecute_SafetyAdjustedDirective(t *testing.T) {
	invoker := &stubInvoker{}
	node := newSummarizeNode(t, newTestDeps(t, invoker, &capturingSink{}, nil), nil)

	ectx := models.ExecutionContext{
		ExecutionID: "exec-1",
		Retry:       models.RetryDirective{Attempt: 1, SafetyAdjusted: true},
	}

	_, err := node.Execute(context.Background(), ectx, map[string]any{"text": "a long report"})
	require.NoError(t, err)

	require.Len(t, invoker.requests, 1)
	assert.True(t, strings.HasPrefix(invoker.requests[0].Instruction, "Respond conservatively"))
}

func TestExecute_CheapCompletionCarriesPartialResult(t *testing.T) {
	invoker := &stubInvoker{}
	node := newSummarizeNode(t, newTestDeps(t, invoker, &capturingSink{}, nil), nil)

	ectx := models.ExecutionContext{
		ExecutionID: "exec-1",
		Retry: models.RetryDirective{
			Attempt:         1,
			CheapCompletion: true,
			PartialResult:   "the report covers three incidents",
		},
	}

	_, err := node.Execute(context.Background(), ectx, map[string]any{"text": "a long report"})
	require.NoError(t, err)

	require.Len(t, invoker.requests, 1)
	req := invoker.requests[0]

	// The completion attempt extends the salvaged output instead of
	// redoing the whole transformation.
	assert.Equal(t, "the report covers three incidents", req.Input["partial"])
	assert.True(t, strings.HasPrefix(req.Instruction, "Continue the partial response"))
}

func TestExecute_BudgetLimitedCallerGetsCheapestModel(t *testing.T) {
	invoker := &stubInvoker{}
	budgets := &stubBudgets{budget: router.Budget{Limited: true, RemainingUSD: 5}}
	node := newSummarizeNode(t, newTestDeps(t, invoker, &capturingSink{}, budgets), nil)

	ectx := models.ExecutionContext{ExecutionID: "exec-1", CallerID: "caller-1"}

	output, err := node.Execute(context.Background(), ectx, map[string]any{"text": "a long report"})
	require.NoError(t, err)

	assert.Equal(t, []string{"caller-1"}, budgets.callers)
	assert.Equal(t, "pulse-fast-2", output["model_used"])
}

func TestExecute_SerializesStructuredInput(t *testing.T) {
	invoker := &stubInvoker{}
	node := newSummarizeNode(t, newTestDeps(t, invoker, &capturingSink{}, nil), nil)

	_, err := node.Execute(context.Background(), models.ExecutionContext{}, map[string]any{
		"title": "incident 42",
		"count": 3,
	})
	require.NoError(t, err)

	require.Len(t, invoker.requests, 1)
	text, ok := invoker.requests[0].Input["text"].(string)
	require.True(t, ok)
	assert.Contains(t, text, "incident 42")
}

func TestCreate_ConfigValidation(t *testing.T) {
	deps := newTestDeps(t, &stubInvoker{}, &capturingSink{}, nil)

	testCases := []struct {
		name    string
		factory func(Dependencies) protocol.NodeFactory
		config  map[string]any
	}{
		{
			name:    "non positive max_words",
			factory: NewSummarizeFactory,
			config:  map[string]any{"max_words": 0},
		},
		{
			name:    "tone not a string",
			factory: NewSummarizeFactory,
			config:  map[string]any{"tone": 7},
		},
		{
			name:    "invalid timeline_unit",
			factory: NewDigestFactory,
			config:  map[string]any{"timeline_unit": "fortnight"},
		},
		{
			name:    "non positive max_items",
			factory: NewDigestFactory,
			config:  map[string]any{"max_items": -1},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.factory(deps).Create(context.Background(), &models.Node{
				ID:     "n1",
				Name:   "Node",
				Config: tc.config,
			})
			require.Error(t, err)
		})
	}
}

func TestExecute_DigestInstruction(t *testing.T) {
	invoker := &stubInvoker{}
	deps := newTestDeps(t, invoker, &capturingSink{}, nil)

	executor, err := NewDigestFactory(deps).Create(context.Background(), &models.Node{
		ID:     "n2",
		Type:   models.NodeTypeAIDigest,
		Name:   "Digest",
		Config: map[string]any{"timeline_unit": "day", "max_items": 5},
	})
	require.NoError(t, err)

	output, err := executor.Execute(context.Background(), models.ExecutionContext{}, map[string]any{"text": "activity log"})
	require.NoError(t, err)

	assert.Contains(t, output, "digest")
	require.Len(t, invoker.requests, 1)
	assert.Contains(t, invoker.requests[0].Instruction, "per day")
	assert.Contains(t, invoker.requests[0].Instruction, "at most 5 notable items")
}
