package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/repopulse/pulseflow/pkg/models"
	"github.com/repopulse/pulseflow/pkg/persistence/file"
)

type stubValidator struct {
	err error
}

func (v *stubValidator) ValidateWorkflow(_ *models.Workflow) error {
	return v.err
}

func newWorkflowService(t *testing.T, validator WorkflowValidator) *Workflow {
	t.Helper()

	return NewWorkflow(file.NewPersistence(t.TempDir()), validator)
}

func draftWorkflow() *models.Workflow {
	return &models.Workflow{
		Name:        "ticket triage",
		EntryNodeID: "intake",
		Nodes: []*models.Node{
			{ID: "intake", Type: models.NodeTypeInput, Name: "Intake"},
		},
	}
}

func TestWorkflowCreate(t *testing.T) {
	service := newWorkflowService(t, &stubValidator{})

	created, err := service.Create(context.Background(), draftWorkflow())
	require.NoError(t, err)

	assert.NotEmpty(t, created.ID)
	assert.Equal(t, models.WorkflowStatusDraft, created.Status)
	assert.False(t, created.CreatedAt.IsZero())

	fetched, err := service.FetchByID(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, "ticket triage", fetched.Name)
}

func TestWorkflowCreate_Invalid(t *testing.T) {
	service := newWorkflowService(t, &stubValidator{})

	_, err := service.Create(context.Background(), nil)
	require.ErrorIs(t, err, ErrWorkflowNil)
	assert.True(t, IsValidationError(err))

	_, err = service.Create(context.Background(), &models.Workflow{})
	require.ErrorIs(t, err, ErrWorkflowNameRequired)
}

func TestWorkflowUpdate_PreservesIdentity(t *testing.T) {
	service := newWorkflowService(t, &stubValidator{})

	created, err := service.Create(context.Background(), draftWorkflow())
	require.NoError(t, err)

	replacement := draftWorkflow()
	replacement.Name = "ticket triage v2"

	updated, err := service.Update(context.Background(), created.ID, replacement)
	require.NoError(t, err)

	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)
	assert.Equal(t, models.WorkflowStatusDraft, updated.Status)
	assert.Equal(t, "ticket triage v2", updated.Name)
}

func TestWorkflowPublish(t *testing.T) {
	service := newWorkflowService(t, &stubValidator{})

	created, err := service.Create(context.Background(), draftWorkflow())
	require.NoError(t, err)

	published, err := service.Publish(context.Background(), created.ID)
	require.NoError(t, err)

	assert.Equal(t, models.WorkflowStatusPublished, published.Status)
	require.NotNil(t, published.PublishedAt)

	// Published workflows reject every mutation.
	_, err = service.Update(context.Background(), created.ID, draftWorkflow())
	require.ErrorIs(t, err, ErrCannotModifyPublished)
	assert.True(t, IsConflictError(err))

	err = service.Delete(context.Background(), created.ID)
	require.ErrorIs(t, err, ErrCannotModifyPublished)

	_, err = service.Publish(context.Background(), created.ID)
	require.ErrorIs(t, err, ErrCannotModifyPublished)
}

func TestWorkflowPublish_ValidatorRejects(t *testing.T) {
	service := newWorkflowService(t, &stubValidator{err: errors.New("node summarize: config invalid")})

	created, err := service.Create(context.Background(), draftWorkflow())
	require.NoError(t, err)

	_, err = service.Publish(context.Background(), created.ID)
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
	assert.Contains(t, err.Error(), "config invalid")

	fetched, err := service.FetchByID(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowStatusDraft, fetched.Status, "a rejected workflow stays draft")
}

func TestWorkflowDelete(t *testing.T) {
	service := newWorkflowService(t, &stubValidator{})

	created, err := service.Create(context.Background(), draftWorkflow())
	require.NoError(t, err)

	require.NoError(t, service.Delete(context.Background(), created.ID))

	_, err = service.FetchByID(context.Background(), created.ID)
	require.ErrorIs(t, err, ErrWorkflowNotFound)
}
