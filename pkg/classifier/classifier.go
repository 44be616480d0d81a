// Package classifier maps a work item to a task category. The category
// decides the default backend tier and the token/timeout budget.
package classifier

import (
	"strings"
	"time"

	"github.com/repopulse/pulseflow/pkg/models"
)

// categoryProfile is the routing budget attached to one category.
type categoryProfile struct {
	tier      models.ModelTier
	maxTokens int
	timeout   time.Duration
}

var profiles = map[models.TaskCategory]categoryProfile{
	models.TaskCategorySimple:     {tier: models.ModelTierFast, maxTokens: 1024, timeout: 30 * time.Second},
	models.TaskCategoryComplex:    {tier: models.ModelTierPremium, maxTokens: 4096, timeout: 120 * time.Second},
	models.TaskCategoryEvaluation: {tier: models.ModelTierStandard, maxTokens: 2048, timeout: 60 * time.Second},
	models.TaskCategoryCreative:   {tier: models.ModelTierPremium, maxTokens: 4096, timeout: 90 * time.Second},
}

// Categories are matched in order; the first category with a keyword hit
// wins. Evaluation indicators come first: "evaluate this code" must land in
// evaluation even when complex indicators are absent. No match defaults to
// complex, the safer tier, because misclassifying complex work as simple
// risks truncated output while the reverse only costs money.
var matchOrder = []struct {
	category models.TaskCategory
	keywords []string
}{
	{
		category: models.TaskCategoryEvaluation,
		keywords: []string{
			"evaluate", "assess", "review", "score", "grade", "critique",
			"compare", "judge", "rate",
		},
	},
	{
		category: models.TaskCategoryComplex,
		keywords: []string{
			"analyze", "analysis", "explain", "reason", "derive", "plan",
			"architect", "design", "refactor", "debug", "investigate",
			"synthesize", "multi-step",
		},
	},
	{
		category: models.TaskCategoryCreative,
		keywords: []string{
			"write a story", "poem", "creative", "brainstorm", "imagine",
			"invent", "compose", "slogan",
		},
	},
	{
		category: models.TaskCategorySimple,
		keywords: []string{
			"summarize", "summary", "extract", "list", "translate",
			"classify", "label", "format", "convert", "shorten",
		},
	},
}

// Classify maps a free-text instruction plus an optional declared type hint
// to a task descriptor. A hint naming a category verbatim short-circuits the
// keyword scan.
func Classify(instruction, typeHint string) models.TaskDescriptor {
	if category, ok := categoryFromHint(typeHint); ok {
		return descriptorFor(category)
	}

	lowered := strings.ToLower(instruction)

	for _, candidate := range matchOrder {
		for _, keyword := range candidate.keywords {
			if strings.Contains(lowered, keyword) {
				return descriptorFor(candidate.category)
			}
		}
	}

	return descriptorFor(models.TaskCategoryComplex)
}

func categoryFromHint(hint string) (models.TaskCategory, bool) {
	category := models.TaskCategory(strings.ToLower(strings.TrimSpace(hint)))
	if _, ok := profiles[category]; ok {
		return category, true
	}

	return "", false
}

func descriptorFor(category models.TaskCategory) models.TaskDescriptor {
	profile := profiles[category]

	return models.TaskDescriptor{
		Category:  category,
		Tier:      profile.tier,
		MaxTokens: profile.maxTokens,
		Timeout:   profile.timeout,
	}
}
