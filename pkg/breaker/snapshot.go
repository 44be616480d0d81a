package breaker

import (
	"github.com/repopulse/pulseflow/pkg/models"
)

// State returns a snapshot of one model's circuit for observability. A
// model never seen by the registry reports closed.
func (r *Registry) State(modelID string) models.CircuitState {
	r.mu.Lock()
	e, ok := r.entries[modelID]
	r.mu.Unlock()

	if !ok {
		return models.CircuitState{ModelID: modelID, State: models.CircuitClosed}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	snapshot := models.CircuitState{
		ModelID:             modelID,
		ConsecutiveFailures: e.consecutiveFailures,
	}

	switch e.state {
	case stateOpen:
		snapshot.State = models.CircuitOpen
		openedAt := e.openedAt
		snapshot.OpenedAt = &openedAt
	case stateHalfOpen:
		snapshot.State = models.CircuitHalfOpen
	default:
		snapshot.State = models.CircuitClosed
	}

	return snapshot
}

// Snapshot returns the circuit state of every model the registry has seen.
func (r *Registry) Snapshot() []models.CircuitState {
	r.mu.Lock()
	ids := make([]string, 0, len(r.entries))

	for id := range r.entries {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	states := make([]models.CircuitState, 0, len(ids))
	for _, id := range ids {
		states = append(states, r.State(id))
	}

	return states
}
