package models

import "time"

// ModelTier groups backends by cost/quality profile. Task categories map to
// a default tier; the router picks a concrete model inside it.
type ModelTier string

const (
	ModelTierFast     ModelTier = "fast"
	ModelTierStandard ModelTier = "standard"
	ModelTierPremium  ModelTier = "premium"
)

// FailoverStep is one entry in a model's declared failover chain. Delay is
// slept before the attempt, giving a transient backend outage a chance to
// recover.
type FailoverStep struct {
	ModelID string        `json:"model_id" validate:"required"`
	Delay   time.Duration `json:"delay"`
}

// ModelDescriptor describes one AI backend. Descriptors are static per
// deployment and read-only to the core.
type ModelDescriptor struct {
	ID                  string         `json:"id"            validate:"required"`
	Provider            string         `json:"provider"      validate:"required"`
	Tier                ModelTier      `json:"tier"          validate:"required"`
	ContextWindow       int            `json:"context_window"`
	CostPerKTokenInput  float64        `json:"cost_per_k_token_input"`
	CostPerKTokenOutput float64        `json:"cost_per_k_token_output"`
	AvgLatencyMs        int            `json:"avg_latency_ms"`
	FailoverChain       []FailoverStep `json:"failover_chain,omitempty"`
}

// EstimateCostUSD computes the expected cost for the given token counts.
func (m *ModelDescriptor) EstimateCostUSD(inputTokens, outputTokens int) float64 {
	return float64(inputTokens)/1000*m.CostPerKTokenInput +
		float64(outputTokens)/1000*m.CostPerKTokenOutput
}

// CircuitStatus is the health gate state of one backend.
type CircuitStatus string

const (
	CircuitClosed   CircuitStatus = "closed"
	CircuitOpen     CircuitStatus = "open"
	CircuitHalfOpen CircuitStatus = "half_open"
)

// CircuitState is a snapshot of one model's breaker entry.
type CircuitState struct {
	ModelID             string        `json:"model_id"`
	State               CircuitStatus `json:"state"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
	OpenedAt            *time.Time    `json:"opened_at,omitempty"`
}

// TokenUsageRecord is an append-only fact emitted after every backend call.
// It is never mutated; the budget collaborator aggregates these downstream.
type TokenUsageRecord struct {
	RequestID       string    `json:"request_id"   validate:"required"`
	ExecutionID     string    `json:"execution_id"`
	NodeID          string    `json:"node_id"`
	ModelID         string    `json:"model_id"     validate:"required"`
	InputTokens     int       `json:"input_tokens"`
	OutputTokens    int       `json:"output_tokens"`
	CostUSD         float64   `json:"cost_usd"`
	LatencyMs       int64     `json:"latency_ms"`
	FailoverUsed    bool      `json:"failover_used"`
	OriginalModelID string    `json:"original_model_id,omitempty"`
	RecordedAt      time.Time `json:"recorded_at"`
}
