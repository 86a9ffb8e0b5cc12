package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docuflow/docuflow/internal/domain/entity"
	"github.com/docuflow/docuflow/internal/domain/event"
	"github.com/docuflow/docuflow/internal/domain/workflow"
)

type workflowFixture struct {
	workflowRepo *mockWorkflowRepo
	instanceRepo *mockInstanceRepo
	dispatcher   *recordingDispatcher
	svc          WorkflowService

	versions []*entity.WorkflowVersion
}

func newWorkflowFixture() *workflowFixture {
	f := &workflowFixture{
		workflowRepo: &mockWorkflowRepo{},
		instanceRepo: &mockInstanceRepo{},
		dispatcher:   &recordingDispatcher{},
	}
	f.workflowRepo.createVersionFunc = func(ctx context.Context, v *entity.WorkflowVersion) error {
		f.versions = append(f.versions, v)
		return nil
	}
	f.svc = NewWorkflowService(f.workflowRepo, f.instanceRepo, &mockTxManager{}, f.dispatcher, nopLogger{})
	return f
}

func (f *workflowFixture) useDefinition(wf *entity.WorkflowDefinition) {
	f.workflowRepo.getByIDFunc = func(ctx context.Context, tenantID, id string) (*entity.WorkflowDefinition, error) {
		return wf, nil
	}
}

func TestCreateWorkflow(t *testing.T) {
	f := newWorkflowFixture()

	wf, err := f.svc.Create(context.Background(), "t1", "alice", WorkflowInput{
		Name:      "Invoice Review",
		GraphJSON: reviewGraph,
	})
	require.NoError(t, err)

	assert.NotEmpty(t, wf.ID)
	assert.Equal(t, "t1", wf.TenantID)
	assert.Equal(t, 1, wf.Version)
	assert.True(t, wf.IsActive)
	assert.False(t, wf.StrictGuards)
	assert.Equal(t, "alice", wf.CreatedBy)

	require.Len(t, f.versions, 1)
	assert.Equal(t, wf.ID, f.versions[0].WorkflowID)
	assert.Equal(t, 1, f.versions[0].Version)
	assert.Equal(t, reviewGraph, f.versions[0].GraphJSON)

	assert.Equal(t, 1, countEvents(f.dispatcher.typesSeen(), event.TypeWorkflowSaved))
}

func TestCreateWorkflowEmptyGraph(t *testing.T) {
	f := newWorkflowFixture()

	wf, err := f.svc.Create(context.Background(), "t1", "alice", WorkflowInput{Name: "Draft"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"nodes":[],"edges":[]}`, wf.GraphJSON)
}

func TestCreateWorkflowRejectsBadGraphs(t *testing.T) {
	t.Run("validation errors", func(t *testing.T) {
		f := newWorkflowFixture()
		// No initial node, so validation produces a hard error.
		_, err := f.svc.Create(context.Background(), "t1", "alice", WorkflowInput{
			Name:      "Broken",
			GraphJSON: `{"nodes": [{"id": "n1", "stateKey": "s", "label": "S", "isFinal": true}], "edges": []}`,
		})
		require.Error(t, err)

		var vErr *ValidationFailedError
		require.ErrorAs(t, err, &vErr)
		assert.False(t, vErr.Result.IsValid)
		assert.NotEmpty(t, vErr.Result.Errors)
		assert.Empty(t, f.versions, "rejected graphs must not be snapshotted")
	})

	t.Run("not valid JSON", func(t *testing.T) {
		f := newWorkflowFixture()
		_, err := f.svc.Create(context.Background(), "t1", "alice", WorkflowInput{Name: "Broken", GraphJSON: `{{`})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not valid JSON")
	})
}

func TestUpdateWorkflow(t *testing.T) {
	existing := func() *entity.WorkflowDefinition {
		return &entity.WorkflowDefinition{
			ID:        "wf-1",
			TenantID:  "t1",
			Name:      "Invoice Review",
			Version:   1,
			IsActive:  true,
			GraphJSON: reviewGraph,
		}
	}

	t.Run("graph change without active instances keeps version", func(t *testing.T) {
		f := newWorkflowFixture()
		f.useDefinition(existing())

		wf, err := f.svc.Update(context.Background(), "t1", "alice", "wf-1", WorkflowInput{GraphJSON: autoGraph})
		require.NoError(t, err)

		assert.Equal(t, 1, wf.Version)
		assert.Equal(t, autoGraph, wf.GraphJSON)
		require.Len(t, f.versions, 1)
		assert.Equal(t, 1, f.versions[0].Version)
	})

	t.Run("graph change with active instances bumps version", func(t *testing.T) {
		f := newWorkflowFixture()
		f.useDefinition(existing())
		f.instanceRepo.countActiveFunc = func(ctx context.Context, workflowID string) (int, error) {
			return 2, nil
		}

		wf, err := f.svc.Update(context.Background(), "t1", "alice", "wf-1", WorkflowInput{GraphJSON: autoGraph})
		require.NoError(t, err)

		assert.Equal(t, 2, wf.Version)
		require.Len(t, f.versions, 1)
		assert.Equal(t, 2, f.versions[0].Version)
		assert.Equal(t, autoGraph, f.versions[0].GraphJSON)
	})

	t.Run("unchanged graph is not snapshotted", func(t *testing.T) {
		f := newWorkflowFixture()
		f.useDefinition(existing())

		strict := true
		wf, err := f.svc.Update(context.Background(), "t1", "alice", "wf-1", WorkflowInput{
			Name:         "Invoice Review v2",
			StrictGuards: &strict,
			GraphJSON:    reviewGraph,
		})
		require.NoError(t, err)

		assert.Equal(t, "Invoice Review v2", wf.Name)
		assert.True(t, wf.StrictGuards)
		assert.Equal(t, 1, wf.Version)
		assert.Empty(t, f.versions)
	})

	t.Run("unknown workflow", func(t *testing.T) {
		f := newWorkflowFixture()
		_, err := f.svc.Update(context.Background(), "t1", "alice", "wf-9", WorkflowInput{Name: "X"})
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestDeleteWorkflow(t *testing.T) {
	t.Run("refused while instances are active", func(t *testing.T) {
		f := newWorkflowFixture()
		f.useDefinition(&entity.WorkflowDefinition{ID: "wf-1", TenantID: "t1", Version: 1})
		f.instanceRepo.countActiveFunc = func(ctx context.Context, workflowID string) (int, error) {
			return 1, nil
		}
		deleted := false
		f.workflowRepo.deleteFunc = func(ctx context.Context, tenantID, id string) error {
			deleted = true
			return nil
		}

		err := f.svc.Delete(context.Background(), "t1", "alice", "wf-1")
		assert.ErrorIs(t, err, workflow.ErrConfiguration)
		assert.False(t, deleted)
	})

	t.Run("deletes when idle", func(t *testing.T) {
		f := newWorkflowFixture()
		f.useDefinition(&entity.WorkflowDefinition{ID: "wf-1", TenantID: "t1", Version: 1})
		deleted := false
		f.workflowRepo.deleteFunc = func(ctx context.Context, tenantID, id string) error {
			deleted = true
			return nil
		}

		require.NoError(t, f.svc.Delete(context.Background(), "t1", "alice", "wf-1"))
		assert.True(t, deleted)
	})
}

func TestValidateGraph(t *testing.T) {
	f := newWorkflowFixture()

	result, err := f.svc.Validate(reviewGraph)
	require.NoError(t, err)
	assert.True(t, result.IsValid)

	_, err = f.svc.Validate(`{{`)
	assert.Error(t, err)
}

func TestPreviewCondition(t *testing.T) {
	f := newWorkflowFixture()
	sample := map[string]interface{}{"amount": 200.0}

	t.Run("lenient satisfied", func(t *testing.T) {
		preview := f.svc.PreviewCondition(`{">": [{"var": "amount"}, 100]}`, sample, false)
		assert.Equal(t, "satisfied", preview.Outcome)
		assert.True(t, preview.Satisfied)
		assert.Empty(t, preview.Error)
	})

	t.Run("lenient not satisfied", func(t *testing.T) {
		preview := f.svc.PreviewCondition(`{">": [{"var": "amount"}, 500]}`, sample, false)
		assert.Equal(t, "not_satisfied", preview.Outcome)
		assert.False(t, preview.Satisfied)
	})

	t.Run("lenient unknown operator passes open", func(t *testing.T) {
		preview := f.svc.PreviewCondition(`{"someday": []}`, sample, false)
		assert.Equal(t, "indeterminate", preview.Outcome)
		assert.True(t, preview.Satisfied)
	})

	t.Run("strict unknown operator reports the error", func(t *testing.T) {
		preview := f.svc.PreviewCondition(`{"someday": []}`, sample, true)
		assert.Equal(t, "indeterminate", preview.Outcome)
		assert.False(t, preview.Satisfied)
		assert.NotEmpty(t, preview.Error)
	})

	t.Run("strict well-formed expression", func(t *testing.T) {
		preview := f.svc.PreviewCondition(`{"in": [{"var": "dept"}, ["hr", "it"]]}`, map[string]interface{}{"dept": "hr"}, true)
		assert.Equal(t, "satisfied", preview.Outcome)
		assert.True(t, preview.Satisfied)
		assert.Empty(t, preview.Error)
	})
}
