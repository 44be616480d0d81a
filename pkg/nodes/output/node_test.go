package output

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/repopulse/pulseflow/pkg/models"
)

func TestExecute_ProjectsConfiguredFields(t *testing.T) {
	node, err := NewOutputNode("out", map[string]any{"fields": []any{"summary", "sentiment"}})
	require.NoError(t, err)

	output, err := node.Execute(context.Background(), models.ExecutionContext{}, map[string]any{
		"summary":   "short version",
		"sentiment": "positive",
		"debug":     "dropped",
	})
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"summary": "short version", "sentiment": "positive"}, output)
}

func TestExecute_AbsentFieldsAreOmitted(t *testing.T) {
	node, err := NewOutputNode("out", map[string]any{"fields": []any{"summary", "missing"}})
	require.NoError(t, err)

	output, err := node.Execute(context.Background(), models.ExecutionContext{}, map[string]any{"summary": "s"})
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"summary": "s"}, output)
}

func TestExecute_NoFieldListPassesThrough(t *testing.T) {
	node, err := NewOutputNode("out", nil)
	require.NoError(t, err)

	payload := map[string]any{"anything": 1}
	output, err := node.Execute(context.Background(), models.ExecutionContext{}, payload)
	require.NoError(t, err)
	assert.Equal(t, payload, output)

	output, err = node.Execute(context.Background(), models.ExecutionContext{}, nil)
	require.NoError(t, err)
	assert.NotNil(t, output)
}
