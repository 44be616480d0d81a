// Package backend defines the boundary to the AI backends. The core never
// knows how a call is transported; it sees one operation and a typed
// failure taxonomy.
package backend

import (
	"context"
	"time"
)

// Request is the payload for one backend call.
type Request struct {
	RequestID   string         `json:"request_id"`
	Instruction string         `json:"instruction"`
	Input       map[string]any `json:"input,omitempty"`
	MaxTokens   int            `json:"max_tokens"`
}

// Response is the successful outcome of one backend call.
type Response struct {
	Text         string `json:"text"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
}

// Invoker performs a single call against a concrete model. Implementations
// must honor the context and the timeout, and must report failures as
// *backend.Error so callers can classify them without string matching.
type Invoker interface {
	Call(ctx context.Context, modelID string, req Request, timeout time.Duration) (*Response, error)
}
