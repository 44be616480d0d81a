package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/repopulse/pulseflow/pkg/models"
)

func descriptors() []*models.ModelDescriptor {
	return []*models.ModelDescriptor{
		{
			ID:                  "fast-a",
			Provider:            "test",
			Tier:                models.ModelTierFast,
			CostPerKTokenOutput: 0.004,
			FailoverChain: []models.FailoverStep{
				{ModelID: "fast-b"},
			},
		},
		{
			ID:                  "fast-b",
			Provider:            "test",
			Tier:                models.ModelTierFast,
			CostPerKTokenOutput: 0.001,
		},
		{
			ID:                  "premium-a",
			Provider:            "test",
			Tier:                models.ModelTierPremium,
			CostPerKTokenOutput: 0.015,
		},
	}
}

func TestNew(t *testing.T) {
	cat, err := New(descriptors())
	require.NoError(t, err)

	descriptor, err := cat.ModelByID("fast-a")
	require.NoError(t, err)
	assert.Equal(t, models.ModelTierFast, descriptor.Tier)

	_, err = cat.ModelByID("no-such")
	require.ErrorIs(t, err, ErrModelNotFound)
}

func TestNew_Invalid(t *testing.T) {
	_, err := New([]*models.ModelDescriptor{
		{ID: "half-baked", Provider: "test"},
	})
	require.Error(t, err, "tier is required")

	duplicated := append(descriptors(), &models.ModelDescriptor{
		ID: "fast-a", Provider: "test", Tier: models.ModelTierFast,
	})
	_, err = New(duplicated)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")

	dangling := descriptors()
	dangling[0].FailoverChain = []models.FailoverStep{{ModelID: "ghost"}}
	_, err = New(dangling)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown failover target")
}

func TestModelsInTier_SortedByOutputCost(t *testing.T) {
	cat, err := New(descriptors())
	require.NoError(t, err)

	fast := cat.ModelsInTier(models.ModelTierFast)
	require.Len(t, fast, 2)
	assert.Equal(t, "fast-b", fast[0].ID, "cheapest first")
	assert.Equal(t, "fast-a", fast[1].ID)

	assert.Empty(t, cat.ModelsInTier(models.ModelTierStandard))
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.json")
	payload := `{
		"models": [
			{"id": "fast-a", "provider": "test", "tier": "fast", "cost_per_k_token_output": 0.002}
		]
	}`
	require.NoError(t, os.WriteFile(path, []byte(payload), 0600))

	cat, err := LoadFile(path)
	require.NoError(t, err)

	descriptor, err := cat.ModelByID("fast-a")
	require.NoError(t, err)
	assert.InDelta(t, 0.002, descriptor.CostPerKTokenOutput, 1e-9)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}

func TestDefault_EveryTierPopulated(t *testing.T) {
	cat := Default()

	for _, tier := range []models.ModelTier{
		models.ModelTierFast,
		models.ModelTierStandard,
		models.ModelTierPremium,
	} {
		assert.NotEmpty(t, cat.ModelsInTier(tier), string(tier))
	}

	// Every failover target must resolve.
	for _, descriptor := range cat.Models() {
		for _, step := range descriptor.FailoverChain {
			_, err := cat.ModelByID(step.ModelID)
			require.NoError(t, err)
		}
	}
}
