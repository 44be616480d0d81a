package input

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/repopulse/pulseflow/pkg/models"
)

func TestExecute_RequiredFields(t *testing.T) {
	node, err := NewInputNode("in", map[string]any{"required_fields": []any{"ticket"}})
	require.NoError(t, err)

	payload := map[string]any{"ticket": "t-1", "extra": true}
	output, err := node.Execute(context.Background(), models.ExecutionContext{}, payload)
	require.NoError(t, err)
	assert.Equal(t, payload, output)

	_, err = node.Execute(context.Background(), models.ExecutionContext{}, map[string]any{"extra": true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ticket")
}

func TestExecute_NilInputBecomesEmptyMap(t *testing.T) {
	node, err := NewInputNode("in", nil)
	require.NoError(t, err)

	output, err := node.Execute(context.Background(), models.ExecutionContext{}, nil)
	require.NoError(t, err)
	assert.NotNil(t, output)
	assert.Empty(t, output)
}

func TestNewInputNode_ConfigValidation(t *testing.T) {
	_, err := NewInputNode("in", map[string]any{"required_fields": "ticket"})
	require.Error(t, err)

	_, err = NewInputNode("in", map[string]any{"required_fields": []any{1}})
	require.Error(t, err)
}
