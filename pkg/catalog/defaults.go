package catalog

import (
	"time"

	"github.com/repopulse/pulseflow/pkg/models"
)

// Default returns the built-in catalog used when no catalog file is
// configured. Rates are USD per 1K tokens.
func Default() *Catalog {
	descriptors := []*models.ModelDescriptor{
		{
			ID:                  "gpt-4o-mini",
			Provider:            "openai",
			Tier:                models.ModelTierFast,
			ContextWindow:       128000,
			CostPerKTokenInput:  0.00015,
			CostPerKTokenOutput: 0.0006,
			AvgLatencyMs:        800,
			FailoverChain: []models.FailoverStep{
				{ModelID: "claude-3-haiku", Delay: 500 * time.Millisecond},
				{ModelID: "llama-3.1-70b", Delay: time.Second},
			},
		},
		{
			ID:                  "claude-3-haiku",
			Provider:            "anthropic",
			Tier:                models.ModelTierFast,
			ContextWindow:       200000,
			CostPerKTokenInput:  0.00025,
			CostPerKTokenOutput: 0.00125,
			AvgLatencyMs:        900,
			FailoverChain: []models.FailoverStep{
				{ModelID: "gpt-4o-mini", Delay: 500 * time.Millisecond},
			},
		},
		{
			ID:                  "llama-3.1-70b",
			Provider:            "groq",
			Tier:                models.ModelTierStandard,
			ContextWindow:       131072,
			CostPerKTokenInput:  0.00059,
			CostPerKTokenOutput: 0.00079,
			AvgLatencyMs:        600,
			FailoverChain: []models.FailoverStep{
				{ModelID: "gpt-4o-mini", Delay: time.Second},
			},
		},
		{
			ID:                  "claude-3-5-sonnet",
			Provider:            "anthropic",
			Tier:                models.ModelTierStandard,
			ContextWindow:       200000,
			CostPerKTokenInput:  0.003,
			CostPerKTokenOutput: 0.015,
			AvgLatencyMs:        1800,
			FailoverChain: []models.FailoverStep{
				{ModelID: "gpt-4o", Delay: time.Second},
				{ModelID: "llama-3.1-70b", Delay: 2 * time.Second},
			},
		},
		{
			ID:                  "gpt-4o",
			Provider:            "openai",
			Tier:                models.ModelTierPremium,
			ContextWindow:       128000,
			CostPerKTokenInput:  0.0025,
			CostPerKTokenOutput: 0.01,
			AvgLatencyMs:        2000,
			FailoverChain: []models.FailoverStep{
				{ModelID: "claude-3-5-sonnet", Delay: time.Second},
				{ModelID: "llama-3.1-70b", Delay: 2 * time.Second},
			},
		},
	}

	catalog, err := New(descriptors)
	if err != nil {
		// The built-in catalog is covered by tests; a failure here is a
		// programming error.
		panic(err)
	}

	return catalog
}
