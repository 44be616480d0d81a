// Package aitransform provides the AI-backed node implementations:
// summarize, sentiment, and digest. These are the only executors that call
// the model router and the failover sequencer.
package aitransform

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/repopulse/pulseflow/pkg/backend"
	"github.com/repopulse/pulseflow/pkg/catalog"
	"github.com/repopulse/pulseflow/pkg/failover"
	"github.com/repopulse/pulseflow/pkg/models"
	"github.com/repopulse/pulseflow/pkg/protocol"
	"github.com/repopulse/pulseflow/pkg/router"
)

// Variant names one AI transformation.
type Variant string

const (
	VariantSummarize Variant = "summarize"
	VariantSentiment Variant = "sentiment"
	VariantDigest    Variant = "digest"
)

// Dependencies are the collaborators shared by every AI node instance.
type Dependencies struct {
	Router    *router.Router
	Sequencer *failover.Sequencer
	Catalog   *catalog.Catalog
	Budgets   router.BudgetSource
	Logger    *slog.Logger
}

// AITransformNode implements the NodeExecutor interface for one AI
// transformation variant.
type AITransformNode struct {
	id       string
	variant  Variant
	nodeType string

	maxWords     int    // summarize
	tone         string // summarize
	timelineUnit string // digest
	maxItems     int    // digest

	deps   Dependencies
	logger *slog.Logger
}

func newNode(id string, variant Variant, nodeType string, config map[string]any, deps Dependencies) (*AITransformNode, error) {
	node := &AITransformNode{
		id:           id,
		variant:      variant,
		nodeType:     nodeType,
		maxWords:     150,
		timelineUnit: "week",
		maxItems:     10,
		deps:         deps,
		logger:       deps.Logger.With("module", "aitransform", "node_id", id, "variant", string(variant)),
	}

	if raw, ok := config["max_words"]; ok {
		value, ok := asInt(raw)
		if !ok || value <= 0 {
			return nil, fmt.Errorf("field 'max_words' must be a positive integer")
		}

		node.maxWords = value
	}

	if raw, ok := config["tone"]; ok {
		tone, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("field 'tone' must be a string")
		}

		node.tone = tone
	}

	if raw, ok := config["timeline_unit"]; ok {
		unit, ok := raw.(string)
		if !ok || !validTimelineUnit(unit) {
			return nil, fmt.Errorf("field 'timeline_unit' must be one of day, week, month")
		}

		node.timelineUnit = unit
	}

	if raw, ok := config["max_items"]; ok {
		value, ok := asInt(raw)
		if !ok || value <= 0 {
			return nil, fmt.Errorf("field 'max_items' must be a positive integer")
		}

		node.maxItems = value
	}

	return node, nil
}

// Type returns the node type.
func (n *AITransformNode) Type() string {
	return n.nodeType
}

// Execute routes the transformation to a model and invokes it through the
// failover sequencer. The retry directive on the execution context adjusts
// the attempt: alternate model, safety-adjusted phrasing, or a cheap
// completion pass on the fast tier.
func (n *AITransformNode) Execute(ctx context.Context, ectx models.ExecutionContext, input map[string]any) (map[string]any, error) {
	text, err := textOf(input)
	if err != nil {
		return nil, backend.NewError(backend.KindValidation, "", err)
	}

	instruction := n.instruction()
	if ectx.Retry.SafetyAdjusted {
		instruction = "Respond conservatively and omit any content that could be unsafe. " + instruction
	}

	typeHint := ""
	if ectx.Retry.CheapCompletion {
		// Finish the partial result on the fast tier.
		typeHint = string(models.TaskCategorySimple)

		if ectx.Retry.PartialResult != "" {
			instruction = "Continue the partial response provided under 'partial' where it stops; do not start over. " + instruction
		}
	}

	budget := router.Budget{}
	if n.deps.Budgets != nil && ectx.CallerID != "" {
		budget, err = n.deps.Budgets.UserBudget(ctx, ectx.CallerID)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve caller budget: %w", err)
		}
	}

	decision, err := n.deps.Router.Select(ctx, router.RouteRequest{
		Instruction:          instruction,
		TypeHint:             typeHint,
		Budget:               budget,
		EstimatedInputTokens: len(text)/4 + 1,
	})
	if err != nil {
		return nil, err
	}

	primary := decision.ModelID
	if ectx.Retry.AlternateModel {
		primary, err = n.alternateFor(decision.ModelID)
		if err != nil {
			return nil, err
		}
	}

	req := backend.Request{
		RequestID:   uuid.New().String(),
		Instruction: instruction,
		Input:       map[string]any{"text": text},
		MaxTokens:   decision.MaxTokens,
	}
	if ectx.Retry.CheapCompletion && ectx.Retry.PartialResult != "" {
		req.Input["partial"] = ectx.Retry.PartialResult
	}

	outcome, err := n.deps.Sequencer.Invoke(ctx, primary, req, decision.Timeout)
	if err != nil {
		return nil, err
	}

	descriptor, err := n.deps.Catalog.ModelByID(outcome.ModelID)
	if err != nil {
		return nil, err
	}

	cost := descriptor.EstimateCostUSD(outcome.Response.InputTokens, outcome.Response.OutputTokens)

	record := models.TokenUsageRecord{
		RequestID:       req.RequestID,
		ExecutionID:     ectx.ExecutionID,
		NodeID:          n.id,
		ModelID:         outcome.ModelID,
		InputTokens:     outcome.Response.InputTokens,
		OutputTokens:    outcome.Response.OutputTokens,
		CostUSD:         cost,
		LatencyMs:       outcome.LatencyMs,
		FailoverUsed:    outcome.FailoverUsed,
		OriginalModelID: outcome.OriginalModelID,
	}
	if err := n.deps.Router.RecordUsage(ctx, record); err != nil {
		n.logger.Error("failed to record token usage", "request_id", req.RequestID, "error", err)
	}

	if ectx.Metadata != nil {
		ectx.Metadata[protocol.MetadataModelUsed] = outcome.ModelID
		ectx.Metadata[protocol.MetadataFailoverUsed] = outcome.FailoverUsed
		ectx.Metadata[protocol.MetadataInputTokens] = outcome.Response.InputTokens
		ectx.Metadata[protocol.MetadataOutputTokens] = outcome.Response.OutputTokens
		ectx.Metadata[protocol.MetadataCostUSD] = cost
	}

	return map[string]any{
		string(n.variant): outcome.Response.Text,
		"model_used":      outcome.ModelID,
		"failover_used":   outcome.FailoverUsed,
	}, nil
}

// alternateFor picks the first failover chain entry of the selected model
// so the retry lands on a different backend.
func (n *AITransformNode) alternateFor(modelID string) (string, error) {
	descriptor, err := n.deps.Catalog.ModelByID(modelID)
	if err != nil {
		return "", err
	}

	if len(descriptor.FailoverChain) == 0 {
		// No declared alternate; the sequencer will still retry the
		// primary.
		return modelID, nil
	}

	return descriptor.FailoverChain[0].ModelID, nil
}

func (n *AITransformNode) instruction() string {
	switch n.variant {
	case VariantSummarize:
		instruction := fmt.Sprintf("Summarize the following content in at most %d words.", n.maxWords)
		if n.tone != "" {
			instruction += fmt.Sprintf(" Use a %s tone.", n.tone)
		}

		return instruction

	case VariantSentiment:
		return "Classify the sentiment of the following content as positive, negative, or neutral, and explain the dominant signal in one sentence."

	case VariantDigest:
		return fmt.Sprintf("Produce a digest of the following activity grouped per %s, listing at most %d notable items in chronological order.", n.timelineUnit, n.maxItems)

	default:
		return "Transform the following content."
	}
}

// textOf extracts the text a transformation operates on: the "text" field
// when present, otherwise the whole input serialized as JSON.
func textOf(input map[string]any) (string, error) {
	if raw, ok := input["text"]; ok {
		text, ok := raw.(string)
		if !ok || strings.TrimSpace(text) == "" {
			return "", fmt.Errorf("input field 'text' must be a non-empty string")
		}

		return text, nil
	}

	if len(input) == 0 {
		return "", fmt.Errorf("input is empty")
	}

	data, err := json.Marshal(input)
	if err != nil {
		return "", fmt.Errorf("failed to serialize input: %w", err)
	}

	return string(data), nil
}

func asInt(raw any) (int, bool) {
	switch v := raw.(type) {
	case int:
		return v, true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

func validTimelineUnit(unit string) bool {
	switch unit {
	case "day", "week", "month":
		return true
	default:
		return false
	}
}
