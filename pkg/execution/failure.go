package execution

import (
	"log/slog"
	"math"
	"math/rand"
	"time"

	"github.com/repopulse/pulseflow/pkg/backend"
	"github.com/repopulse/pulseflow/pkg/models"
)

// FailureConfig tunes the workflow-level failure handler.
type FailureConfig struct {
	// MaxRetries bounds the attempts for one node, the first attempt
	// included.
	MaxRetries int

	// BaseDelay is the backoff starting point for transient failures.
	BaseDelay time.Duration

	// MaxDelay caps the exponential backoff.
	MaxDelay time.Duration
}

// DefaultFailureConfig returns the handler defaults.
func DefaultFailureConfig() FailureConfig {
	return FailureConfig{
		MaxRetries: 3,
		BaseDelay:  time.Second,
		MaxDelay:   30 * time.Second,
	}
}

// Action is the handler's verdict on one failure.
type Action int

const (
	// ActionFail propagates the failure as the node's terminal outcome.
	ActionFail Action = iota

	// ActionRetry re-attempts the node after Delay with the directive
	// applied.
	ActionRetry
)

// Resolution describes how the orchestrator should proceed after a node
// failure.
type Resolution struct {
	Action    Action
	Delay     time.Duration
	Directive models.RetryDirective
}

// FailureHandler maps a classified node failure to a recovery strategy.
// Classification rides on error metadata, never on message text.
type FailureHandler struct {
	config FailureConfig
	logger *slog.Logger
}

// NewFailureHandler creates a failure handler.
func NewFailureHandler(config FailureConfig, logger *slog.Logger) *FailureHandler {
	if config.MaxRetries <= 0 {
		config.MaxRetries = DefaultFailureConfig().MaxRetries
	}

	if config.BaseDelay <= 0 {
		config.BaseDelay = DefaultFailureConfig().BaseDelay
	}

	if config.MaxDelay <= 0 {
		config.MaxDelay = DefaultFailureConfig().MaxDelay
	}

	return &FailureHandler{
		config: config,
		logger: logger.With("module", "failure_handler"),
	}
}

// Resolve decides the recovery strategy for one failed attempt. attempt is
// zero-based; prev is the directive the failed attempt ran under.
//
// Strategies by kind:
//   - transient: exponential backoff with jitter, same model, bounded by
//     the retry budget
//   - model_error: immediate retry routed to an alternate model
//   - validation_error: fail fast, never retried
//   - content_error: one safety-adjusted retry, then fatal
//   - timeout: one cheap completion pass when a partial result exists,
//     otherwise fatal
//   - anything else: fail fast; unknown failures are never retried
func (h *FailureHandler) Resolve(err error, attempt int, prev models.RetryDirective) Resolution {
	kind := backend.Classify(err)

	switch kind {
	case backend.KindTransient:
		if attempt+1 >= h.config.MaxRetries {
			return h.fail(kind, attempt, "retry budget exhausted")
		}

		return Resolution{
			Action: ActionRetry,
			Delay:  h.backoff(attempt),
			Directive: models.RetryDirective{
				Attempt: attempt + 1,
			},
		}

	case backend.KindModelError:
		if attempt+1 >= h.config.MaxRetries {
			return h.fail(kind, attempt, "retry budget exhausted")
		}

		return Resolution{
			Action: ActionRetry,
			Directive: models.RetryDirective{
				Attempt:        attempt + 1,
				AlternateModel: true,
			},
		}

	case backend.KindContent:
		if prev.SafetyAdjusted {
			return h.fail(kind, attempt, "safety-adjusted retry failed")
		}

		return Resolution{
			Action: ActionRetry,
			Directive: models.RetryDirective{
				Attempt:        attempt + 1,
				SafetyAdjusted: true,
			},
		}

	case backend.KindTimeout:
		if partial, ok := backend.PartialResult(err); ok && !prev.CheapCompletion {
			return Resolution{
				Action: ActionRetry,
				Directive: models.RetryDirective{
					Attempt:         attempt + 1,
					CheapCompletion: true,
					PartialResult:   partial,
				},
			}
		}

		return h.fail(kind, attempt, "no partial result to complete")

	case backend.KindValidation:
		return h.fail(kind, attempt, "validation failures are never retried")

	default:
		return h.fail(kind, attempt, "unrecognized failure kind")
	}
}

func (h *FailureHandler) fail(kind backend.Kind, attempt int, reason string) Resolution {
	h.logger.Warn("node failure is terminal",
		"kind", string(kind),
		"attempt", attempt,
		"reason", reason)

	return Resolution{Action: ActionFail}
}

// backoff computes the delay before retry number attempt+1: exponential
// from BaseDelay, capped at MaxDelay, with ±25% jitter so synchronized
// retries across executions spread out.
func (h *FailureHandler) backoff(attempt int) time.Duration {
	delay := float64(h.config.BaseDelay) * math.Pow(2, float64(attempt))
	if delay > float64(h.config.MaxDelay) {
		delay = float64(h.config.MaxDelay)
	}

	jitter := (rand.Float64()*0.5 - 0.25) * delay

	return time.Duration(delay + jitter)
}
