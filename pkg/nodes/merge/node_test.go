package merge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/repopulse/pulseflow/pkg/models"
)

func TestNewMergeNode_ConfigValidation(t *testing.T) {
	_, err := NewMergeNode("m1", map[string]any{})
	require.Error(t, err, "sources is required")

	_, err = NewMergeNode("m1", map[string]any{"sources": []any{}})
	require.Error(t, err)

	_, err = NewMergeNode("m1", map[string]any{"sources": []any{"a", 2}})
	require.Error(t, err)

	_, err = NewMergeNode("m1", map[string]any{"sources": []any{"a", "b"}})
	require.NoError(t, err)
}

func TestExecute_LaterSourcesWinConflicts(t *testing.T) {
	node, err := NewMergeNode("m1", map[string]any{"sources": []any{"summary", "sentiment"}})
	require.NoError(t, err)

	ectx := models.ExecutionContext{
		NodeOutputs: map[string]map[string]any{
			"summary":   {"text": "short version", "source": "summary"},
			"sentiment": {"sentiment": "positive", "source": "sentiment"},
		},
	}

	output, err := node.Execute(context.Background(), ectx, map[string]any{"ticket": "t-1"})
	require.NoError(t, err)

	assert.Equal(t, "short version", output["text"])
	assert.Equal(t, "positive", output["sentiment"])
	assert.Equal(t, "sentiment", output["source"], "later sources overwrite earlier keys")
	assert.Equal(t, "t-1", output["ticket"], "the node's own input merges last")
}

func TestExecute_MissingSourceFails(t *testing.T) {
	node, err := NewMergeNode("m1", map[string]any{"sources": []any{"summary", "sentiment"}})
	require.NoError(t, err)

	ectx := models.ExecutionContext{
		NodeOutputs: map[string]map[string]any{
			"summary": {"text": "short version"},
		},
	}

	_, err = node.Execute(context.Background(), ectx, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sentiment")
}
