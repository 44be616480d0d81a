package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEdgeConditionEvaluate(t *testing.T) {
	output := map[string]any{
		"sentiment": "negative",
		"score":     0.82,
		"tags":      []any{"urgent", "billing"},
		"details": map[string]any{
			"language": "en",
		},
	}

	testCases := []struct {
		name      string
		condition EdgeCondition
		want      bool
	}{
		{
			name:      "always matches",
			condition: EdgeCondition{Kind: ConditionAlways},
			want:      true,
		},
		{
			name:      "never matches",
			condition: EdgeCondition{Kind: ConditionNever},
			want:      false,
		},
		{
			name:      "equals on string field",
			condition: EdgeCondition{Kind: ConditionEquals, Field: "sentiment", Value: "negative"},
			want:      true,
		},
		{
			name:      "equals mismatched value",
			condition: EdgeCondition{Kind: ConditionEquals, Field: "sentiment", Value: "positive"},
			want:      false,
		},
		{
			name:      "equals numeric across types",
			condition: EdgeCondition{Kind: ConditionEquals, Field: "score", Value: 0.82},
			want:      true,
		},
		{
			name:      "equals on nested field",
			condition: EdgeCondition{Kind: ConditionEquals, Field: "details.language", Value: "en"},
			want:      true,
		},
		{
			name:      "equals on absent field is false",
			condition: EdgeCondition{Kind: ConditionEquals, Field: "missing", Value: "x"},
			want:      false,
		},
		{
			name:      "contains on string",
			condition: EdgeCondition{Kind: ConditionContains, Field: "sentiment", Value: "neg"},
			want:      true,
		},
		{
			name:      "contains on list",
			condition: EdgeCondition{Kind: ConditionContains, Field: "tags", Value: "urgent"},
			want:      true,
		},
		{
			name:      "greater than",
			condition: EdgeCondition{Kind: ConditionGreaterThan, Field: "score", Value: 0.5},
			want:      true,
		},
		{
			name:      "less than",
			condition: EdgeCondition{Kind: ConditionLessThan, Field: "score", Value: 0.5},
			want:      false,
		},
		{
			name:      "matches pattern",
			condition: EdgeCondition{Kind: ConditionMatchesPattern, Field: "sentiment", Value: "^neg"},
			want:      true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.condition.Evaluate(output)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestEdgeConditionEvaluate_Errors(t *testing.T) {
	testCases := []struct {
		name      string
		condition EdgeCondition
	}{
		{
			name:      "unknown kind",
			condition: EdgeCondition{Kind: "sometimes"},
		},
		{
			name:      "numeric comparison on string",
			condition: EdgeCondition{Kind: ConditionGreaterThan, Field: "sentiment", Value: 1},
		},
		{
			name:      "pattern value not a string",
			condition: EdgeCondition{Kind: ConditionMatchesPattern, Field: "sentiment", Value: 42},
		},
	}

	output := map[string]any{"sentiment": "negative"}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.condition.Evaluate(output)
			require.Error(t, err)
		})
	}
}

func TestEdgeConditionValidate(t *testing.T) {
	assert.NoError(t, (&EdgeCondition{Kind: ConditionAlways}).Validate())
	assert.NoError(t, (&EdgeCondition{Kind: ConditionEquals, Field: "a"}).Validate())
	assert.Error(t, (&EdgeCondition{Kind: ConditionEquals}).Validate())
	assert.Error(t, (&EdgeCondition{Kind: ConditionMatchesPattern, Field: "a", Value: "("}).Validate())
	assert.Error(t, (&EdgeCondition{Kind: "sometimes"}).Validate())
}
