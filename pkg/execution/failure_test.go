package execution

import (
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/repopulse/pulseflow/pkg/backend"
	"github.com/repopulse/pulseflow/pkg/models"
)

func newTestHandler(maxRetries int) *FailureHandler {
	return NewFailureHandler(FailureConfig{
		MaxRetries: maxRetries,
		BaseDelay:  100 * time.Millisecond,
		MaxDelay:   400 * time.Millisecond,
	}, slog.Default())
}

func TestResolve_TransientRetriesWithBackoff(t *testing.T) {
	handler := newTestHandler(3)
	transient := backend.NewError(backend.KindTransient, "model-a", errors.New("rate limited"))

	resolution := handler.Resolve(transient, 0, models.RetryDirective{})
	require.Equal(t, ActionRetry, resolution.Action)
	assert.Equal(t, 1, resolution.Directive.Attempt)
	assert.False(t, resolution.Directive.AlternateModel)

	// Base delay with ±25% jitter.
	assert.GreaterOrEqual(t, resolution.Delay, 75*time.Millisecond)
	assert.LessOrEqual(t, resolution.Delay, 125*time.Millisecond)
}

func TestResolve_TransientBackoffGrowsAndCaps(t *testing.T) {
	handler := newTestHandler(10)
	transient := backend.NewError(backend.KindTransient, "model-a", errors.New("rate limited"))

	second := handler.Resolve(transient, 1, models.RetryDirective{Attempt: 1})
	require.Equal(t, ActionRetry, second.Action)
	assert.GreaterOrEqual(t, second.Delay, 150*time.Millisecond)
	assert.LessOrEqual(t, second.Delay, 250*time.Millisecond)

	// 100ms * 2^5 would be 3.2s; the cap holds it at 400ms before jitter.
	capped := handler.Resolve(transient, 5, models.RetryDirective{Attempt: 5})
	require.Equal(t, ActionRetry, capped.Action)
	assert.GreaterOrEqual(t, capped.Delay, 300*time.Millisecond)
	assert.LessOrEqual(t, capped.Delay, 500*time.Millisecond)
}

func TestResolve_TransientBudgetExhausted(t *testing.T) {
	handler := newTestHandler(3)
	transient := backend.NewError(backend.KindTransient, "model-a", errors.New("rate limited"))

	resolution := handler.Resolve(transient, 2, models.RetryDirective{Attempt: 2})
	assert.Equal(t, ActionFail, resolution.Action)
}

func TestResolve_ModelErrorRoutesToAlternate(t *testing.T) {
	handler := newTestHandler(3)
	modelErr := backend.NewError(backend.KindModelError, "model-a", errors.New("boom"))

	resolution := handler.Resolve(modelErr, 0, models.RetryDirective{})
	require.Equal(t, ActionRetry, resolution.Action)
	assert.True(t, resolution.Directive.AlternateModel)
	assert.Zero(t, resolution.Delay, "alternate-model retries are immediate")

	exhausted := handler.Resolve(modelErr, 2, models.RetryDirective{Attempt: 2})
	assert.Equal(t, ActionFail, exhausted.Action)
}

func TestResolve_ContentGetsOneSafetyAdjustedRetry(t *testing.T) {
	handler := newTestHandler(3)
	contentErr := backend.NewError(backend.KindContent, "model-a", errors.New("refused"))

	first := handler.Resolve(contentErr, 0, models.RetryDirective{})
	require.Equal(t, ActionRetry, first.Action)
	assert.True(t, first.Directive.SafetyAdjusted)

	// The adjusted attempt failed the same way; no second rephrase.
	second := handler.Resolve(contentErr, 1, first.Directive)
	assert.Equal(t, ActionFail, second.Action)
}

func TestResolve_TimeoutSalvagesPartialResult(t *testing.T) {
	handler := newTestHandler(3)

	withPartial := &backend.Error{
		Kind:    backend.KindTimeout,
		ModelID: "model-a",
		Partial: "the first half of the summary",
		Err:     errors.New("deadline exceeded"),
	}

	resolution := handler.Resolve(withPartial, 0, models.RetryDirective{})
	require.Equal(t, ActionRetry, resolution.Action)
	assert.True(t, resolution.Directive.CheapCompletion)
	assert.Equal(t, "the first half of the summary", resolution.Directive.PartialResult,
		"the salvaged output must travel with the directive")

	// A completion pass that itself timed out is terminal.
	again := handler.Resolve(withPartial, 1, resolution.Directive)
	assert.Equal(t, ActionFail, again.Action)
}

func TestResolve_TimeoutWithoutPartialFails(t *testing.T) {
	handler := newTestHandler(3)
	bare := backend.NewError(backend.KindTimeout, "model-a", errors.New("deadline exceeded"))

	resolution := handler.Resolve(bare, 0, models.RetryDirective{})
	assert.Equal(t, ActionFail, resolution.Action)
}

func TestResolve_ValidationFailsFast(t *testing.T) {
	handler := newTestHandler(3)
	validationErr := backend.NewError(backend.KindValidation, "model-a", errors.New("bad request"))

	resolution := handler.Resolve(validationErr, 0, models.RetryDirective{})
	assert.Equal(t, ActionFail, resolution.Action)
}

func TestResolve_UnknownFailsFast(t *testing.T) {
	handler := newTestHandler(3)

	resolution := handler.Resolve(errors.New("something unexpected"), 0, models.RetryDirective{})
	assert.Equal(t, ActionFail, resolution.Action)
}
