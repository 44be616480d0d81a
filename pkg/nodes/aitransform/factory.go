package aitransform

import (
	"context"

	"github.com/repopulse/pulseflow/pkg/models"
	"github.com/repopulse/pulseflow/pkg/protocol"
)

type factory struct {
	variant     Variant
	nodeType    string
	name        string
	description string
	schema      map[string]any
	deps        Dependencies
}

// Create creates an executor for one declared AI node.
func (f *factory) Create(_ context.Context, node *models.Node) (protocol.NodeExecutor, error) {
	return newNode(node.ID, f.variant, f.nodeType, node.Config, f.deps)
}

// ID returns the factory ID.
func (f *factory) ID() string {
	return f.nodeType
}

// Name returns the factory name.
func (f *factory) Name() string {
	return f.name
}

// Description returns the factory description.
func (f *factory) Description() string {
	return f.description
}

// Schema returns the JSON schema for the variant's configuration.
func (f *factory) Schema() map[string]any {
	return f.schema
}

// NewSummarizeFactory creates the factory for summarize nodes.
func NewSummarizeFactory(deps Dependencies) protocol.NodeFactory {
	return &factory{
		variant:     VariantSummarize,
		nodeType:    models.NodeTypeAISummarize,
		name:        "AI Summarize",
		description: "Condenses the input text into a summary bounded by a word budget.",
		schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"max_words": map[string]any{
					"type":        "integer",
					"minimum":     1,
					"description": "Upper bound on summary length in words",
					"default":     150,
				},
				"tone": map[string]any{
					"type":        "string",
					"description": "Optional tone instruction, e.g. neutral, executive, casual",
				},
			},
		},
		deps: deps,
	}
}

// NewSentimentFactory creates the factory for sentiment nodes.
func NewSentimentFactory(deps Dependencies) protocol.NodeFactory {
	return &factory{
		variant:     VariantSentiment,
		nodeType:    models.NodeTypeAISentiment,
		name:        "AI Sentiment",
		description: "Classifies the input text as positive, negative, or neutral.",
		schema: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
		deps: deps,
	}
}

// NewDigestFactory creates the factory for digest nodes.
func NewDigestFactory(deps Dependencies) protocol.NodeFactory {
	return &factory{
		variant:     VariantDigest,
		nodeType:    models.NodeTypeAIDigest,
		name:        "AI Digest",
		description: "Produces a chronological activity digest grouped per timeline unit.",
		schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"timeline_unit": map[string]any{
					"type":        "string",
					"enum":        []string{"day", "week", "month"},
					"description": "Grouping unit for the digest timeline",
					"default":     "week",
				},
				"max_items": map[string]any{
					"type":        "integer",
					"minimum":     1,
					"description": "Upper bound on notable items in the digest",
					"default":     10,
				},
			},
		},
		deps: deps,
	}
}
