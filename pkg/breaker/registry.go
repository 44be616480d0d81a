// Package breaker implements the per-model circuit breaker registry shared
// by every concurrent execution. Entries are created lazily on first use and
// live for the process lifetime; the registry is constructed once at startup
// and injected into the router and the failover sequencer.
package breaker

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen indicates a model's breaker refused the call.
var ErrCircuitOpen = errors.New("circuit open")

// Config tunes the breaker state machine.
type Config struct {
	// Threshold is the consecutive failure count that opens a circuit.
	Threshold int

	// Cooldown is how long an open circuit waits before permitting a
	// single half-open trial request.
	Cooldown time.Duration
}

// DefaultConfig returns the registry defaults.
func DefaultConfig() Config {
	return Config{
		Threshold: 5,
		Cooldown:  30 * time.Second,
	}
}

type state int

const (
	stateClosed state = iota
	stateOpen
	stateHalfOpen
)

func (s state) String() string {
	switch s {
	case stateClosed:
		return "closed"
	case stateOpen:
		return "open"
	case stateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// entry holds one model's breaker state. All mutation happens under the
// entry mutex so that concurrent executions never lose an update.
type entry struct {
	mu                  sync.Mutex
	state               state
	consecutiveFailures int
	openedAt            time.Time
	trialInFlight       bool
}

// Registry is the process-wide circuit breaker state, one entry per model.
type Registry struct {
	config Config
	logger *slog.Logger

	mu      sync.Mutex
	entries map[string]*entry
}

// NewRegistry creates a breaker registry.
func NewRegistry(config Config, logger *slog.Logger) *Registry {
	if config.Threshold <= 0 {
		config.Threshold = DefaultConfig().Threshold
	}

	if config.Cooldown <= 0 {
		config.Cooldown = DefaultConfig().Cooldown
	}

	return &Registry{
		config:  config,
		logger:  logger.With("module", "breaker"),
		entries: make(map[string]*entry),
	}
}

func (r *Registry) entryFor(modelID string) *entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[modelID]
	if !ok {
		e = &entry{state: stateClosed}
		r.entries[modelID] = e
	}

	return e
}

// Allow reports whether a request may be dispatched to the model right now.
// An open circuit whose cooldown has elapsed transitions to half-open and
// admits exactly one trial request; further requests are refused until that
// trial settles.
func (r *Registry) Allow(modelID string) error {
	e := r.entryFor(modelID)

	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state {
	case stateClosed:
		return nil

	case stateOpen:
		if time.Since(e.openedAt) < r.config.Cooldown {
			return fmt.Errorf("%w: model %s", ErrCircuitOpen, modelID)
		}

		e.state = stateHalfOpen
		e.trialInFlight = true
		r.logger.Info("circuit half-open, admitting trial request", "model_id", modelID)

		return nil

	case stateHalfOpen:
		if e.trialInFlight {
			return fmt.Errorf("%w: model %s (trial in flight)", ErrCircuitOpen, modelID)
		}

		e.trialInFlight = true

		return nil

	default:
		return fmt.Errorf("%w: model %s (unknown state)", ErrCircuitOpen, modelID)
	}
}

// Available reports whether the model could serve a request without being
// refused. Unlike Allow it never claims the half-open trial slot, so the
// router can use it for pure selection.
func (r *Registry) Available(modelID string) bool {
	e := r.entryFor(modelID)

	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state {
	case stateClosed:
		return true
	case stateOpen:
		return time.Since(e.openedAt) >= r.config.Cooldown
	case stateHalfOpen:
		return !e.trialInFlight
	default:
		return false
	}
}

// RecordSuccess settles a successful call: the circuit closes and the
// failure count resets.
func (r *Registry) RecordSuccess(modelID string) {
	e := r.entryFor(modelID)

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != stateClosed {
		r.logger.Info("circuit closed", "model_id", modelID, "from_state", e.state.String())
	}

	e.state = stateClosed
	e.consecutiveFailures = 0
	e.trialInFlight = false
}

// RecordFailure settles a failed call: the failure count increments and the
// circuit opens once it crosses the threshold. A failed half-open trial
// reopens immediately.
func (r *Registry) RecordFailure(modelID string) {
	e := r.entryFor(modelID)

	e.mu.Lock()
	defer e.mu.Unlock()

	e.consecutiveFailures++

	switch e.state {
	case stateHalfOpen:
		e.state = stateOpen
		e.openedAt = time.Now()
		e.trialInFlight = false
		r.logger.Warn("half-open trial failed, circuit reopened", "model_id", modelID)

	case stateClosed:
		if e.consecutiveFailures >= r.config.Threshold {
			e.state = stateOpen
			e.openedAt = time.Now()
			r.logger.Warn("circuit opened",
				"model_id", modelID,
				"consecutive_failures", e.consecutiveFailures,
				"threshold", r.config.Threshold)
		}

	case stateOpen:
		// Already open; keep the original openedAt so the cooldown is not
		// extended by stragglers.
	}
}
