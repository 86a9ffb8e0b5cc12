package service

import (
	"context"
	"sync"
	"time"

	"github.com/docuflow/docuflow/internal/application/port"
	"github.com/docuflow/docuflow/internal/domain/entity"
	"github.com/docuflow/docuflow/internal/domain/event"
)

// Mock repositories. Each method delegates to an optional func field so tests
// only wire the behavior they care about.

type mockWorkflowRepo struct {
	createFunc        func(ctx context.Context, wf *entity.WorkflowDefinition) error
	getByIDFunc       func(ctx context.Context, tenantID, id string) (*entity.WorkflowDefinition, error)
	listFunc          func(ctx context.Context, tenantID string) ([]*entity.WorkflowDefinition, error)
	updateFunc        func(ctx context.Context, wf *entity.WorkflowDefinition) error
	deleteFunc        func(ctx context.Context, tenantID, id string) error
	createVersionFunc func(ctx context.Context, v *entity.WorkflowVersion) error
	getVersionFunc    func(ctx context.Context, workflowID string, version int) (*entity.WorkflowVersion, error)
}

func (m *mockWorkflowRepo) Create(ctx context.Context, wf *entity.WorkflowDefinition) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, wf)
	}
	return nil
}

func (m *mockWorkflowRepo) GetByID(ctx context.Context, tenantID, id string) (*entity.WorkflowDefinition, error) {
	if m.getByIDFunc != nil {
		return m.getByIDFunc(ctx, tenantID, id)
	}
	return nil, nil
}

func (m *mockWorkflowRepo) List(ctx context.Context, tenantID string) ([]*entity.WorkflowDefinition, error) {
	if m.listFunc != nil {
		return m.listFunc(ctx, tenantID)
	}
	return []*entity.WorkflowDefinition{}, nil
}

func (m *mockWorkflowRepo) Update(ctx context.Context, wf *entity.WorkflowDefinition) error {
	if m.updateFunc != nil {
		return m.updateFunc(ctx, wf)
	}
	return nil
}

func (m *mockWorkflowRepo) Delete(ctx context.Context, tenantID, id string) error {
	if m.deleteFunc != nil {
		return m.deleteFunc(ctx, tenantID, id)
	}
	return nil
}

func (m *mockWorkflowRepo) CreateVersion(ctx context.Context, v *entity.WorkflowVersion) error {
	if m.createVersionFunc != nil {
		return m.createVersionFunc(ctx, v)
	}
	return nil
}

func (m *mockWorkflowRepo) GetVersion(ctx context.Context, workflowID string, version int) (*entity.WorkflowVersion, error) {
	if m.getVersionFunc != nil {
		return m.getVersionFunc(ctx, workflowID, version)
	}
	return nil, nil
}

type mockInstanceRepo struct {
	createFunc              func(ctx context.Context, instance *entity.ApprovalInstance) error
	getByIDFunc             func(ctx context.Context, tenantID, id string) (*entity.ApprovalInstance, error)
	getActiveByDocumentFunc func(ctx context.Context, tenantID, documentID string) (*entity.ApprovalInstance, error)
	listFunc                func(ctx context.Context, tenantID string, limit, offset int) ([]*entity.ApprovalInstance, error)
	advanceFunc             func(ctx context.Context, instance *entity.ApprovalInstance) (int64, error)
	countActiveFunc         func(ctx context.Context, workflowID string) (int, error)
}

func (m *mockInstanceRepo) Create(ctx context.Context, instance *entity.ApprovalInstance) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, instance)
	}
	return nil
}

func (m *mockInstanceRepo) GetByID(ctx context.Context, tenantID, id string) (*entity.ApprovalInstance, error) {
	if m.getByIDFunc != nil {
		return m.getByIDFunc(ctx, tenantID, id)
	}
	return nil, nil
}

func (m *mockInstanceRepo) GetActiveByDocument(ctx context.Context, tenantID, documentID string) (*entity.ApprovalInstance, error) {
	if m.getActiveByDocumentFunc != nil {
		return m.getActiveByDocumentFunc(ctx, tenantID, documentID)
	}
	return nil, nil
}

func (m *mockInstanceRepo) List(ctx context.Context, tenantID string, limit, offset int) ([]*entity.ApprovalInstance, error) {
	if m.listFunc != nil {
		return m.listFunc(ctx, tenantID, limit, offset)
	}
	return []*entity.ApprovalInstance{}, nil
}

func (m *mockInstanceRepo) Advance(ctx context.Context, instance *entity.ApprovalInstance) (int64, error) {
	if m.advanceFunc != nil {
		return m.advanceFunc(ctx, instance)
	}
	return 1, nil
}

func (m *mockInstanceRepo) CountActiveByWorkflow(ctx context.Context, workflowID string) (int, error) {
	if m.countActiveFunc != nil {
		return m.countActiveFunc(ctx, workflowID)
	}
	return 0, nil
}

type mockStepRepo struct {
	createFunc                func(ctx context.Context, step *entity.ApprovalStep) error
	getPendingFunc            func(ctx context.Context, instanceID string) (*entity.ApprovalStep, error)
	completeFunc              func(ctx context.Context, stepID, status, actionTaken, comment, delegatedTo string, completedAt time.Time) error
	listByInstanceFunc        func(ctx context.Context, instanceID string) ([]*entity.ApprovalStep, error)
	listPendingByAssigneeFunc func(ctx context.Context, tenantID, userID string) ([]*entity.ApprovalStep, error)
}

func (m *mockStepRepo) Create(ctx context.Context, step *entity.ApprovalStep) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, step)
	}
	return nil
}

func (m *mockStepRepo) GetPendingByInstance(ctx context.Context, instanceID string) (*entity.ApprovalStep, error) {
	if m.getPendingFunc != nil {
		return m.getPendingFunc(ctx, instanceID)
	}
	return nil, nil
}

func (m *mockStepRepo) Complete(ctx context.Context, stepID, status, actionTaken, comment, delegatedTo string, completedAt time.Time) error {
	if m.completeFunc != nil {
		return m.completeFunc(ctx, stepID, status, actionTaken, comment, delegatedTo, completedAt)
	}
	return nil
}

func (m *mockStepRepo) ListByInstance(ctx context.Context, instanceID string) ([]*entity.ApprovalStep, error) {
	if m.listByInstanceFunc != nil {
		return m.listByInstanceFunc(ctx, instanceID)
	}
	return []*entity.ApprovalStep{}, nil
}

func (m *mockStepRepo) ListPendingByAssignee(ctx context.Context, tenantID, userID string) ([]*entity.ApprovalStep, error) {
	if m.listPendingByAssigneeFunc != nil {
		return m.listPendingByAssigneeFunc(ctx, tenantID, userID)
	}
	return []*entity.ApprovalStep{}, nil
}

type mockDocumentRepo struct {
	createFunc       func(ctx context.Context, doc *entity.Document) error
	getByIDFunc      func(ctx context.Context, tenantID, id string) (*entity.Document, error)
	listFunc         func(ctx context.Context, tenantID string, limit, offset int) ([]*entity.Document, error)
	updateStatusFunc func(ctx context.Context, id, status string) error
}

func (m *mockDocumentRepo) Create(ctx context.Context, doc *entity.Document) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, doc)
	}
	return nil
}

func (m *mockDocumentRepo) GetByID(ctx context.Context, tenantID, id string) (*entity.Document, error) {
	if m.getByIDFunc != nil {
		return m.getByIDFunc(ctx, tenantID, id)
	}
	return &entity.Document{ID: id, TenantID: tenantID, Status: entity.DocumentStatusReady}, nil
}

func (m *mockDocumentRepo) List(ctx context.Context, tenantID string, limit, offset int) ([]*entity.Document, error) {
	if m.listFunc != nil {
		return m.listFunc(ctx, tenantID, limit, offset)
	}
	return []*entity.Document{}, nil
}

func (m *mockDocumentRepo) UpdateStatus(ctx context.Context, id, status string) error {
	if m.updateStatusFunc != nil {
		return m.updateStatusFunc(ctx, id, status)
	}
	return nil
}

type mockExtractionRepo struct {
	createFunc           func(ctx context.Context, rec *entity.ExtractionRecord) error
	getByIDFunc          func(ctx context.Context, id string) (*entity.ExtractionRecord, error)
	listByDocumentFunc   func(ctx context.Context, documentID string) ([]*entity.ExtractionRecord, error)
	updateCorrectionFunc func(ctx context.Context, id, correctedValue string) error
}

func (m *mockExtractionRepo) Create(ctx context.Context, rec *entity.ExtractionRecord) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, rec)
	}
	return nil
}

func (m *mockExtractionRepo) GetByID(ctx context.Context, id string) (*entity.ExtractionRecord, error) {
	if m.getByIDFunc != nil {
		return m.getByIDFunc(ctx, id)
	}
	return nil, nil
}

func (m *mockExtractionRepo) ListByDocument(ctx context.Context, documentID string) ([]*entity.ExtractionRecord, error) {
	if m.listByDocumentFunc != nil {
		return m.listByDocumentFunc(ctx, documentID)
	}
	return []*entity.ExtractionRecord{}, nil
}

func (m *mockExtractionRepo) UpdateCorrection(ctx context.Context, id, correctedValue string) error {
	if m.updateCorrectionFunc != nil {
		return m.updateCorrectionFunc(ctx, id, correctedValue)
	}
	return nil
}

type mockTemplateRepo struct {
	createFunc  func(ctx context.Context, tpl *entity.ExtractionTemplate) error
	getByIDFunc func(ctx context.Context, tenantID, id string) (*entity.ExtractionTemplate, error)
	listFunc    func(ctx context.Context, tenantID string) ([]*entity.ExtractionTemplate, error)
	deleteFunc  func(ctx context.Context, tenantID, id string) error
}

func (m *mockTemplateRepo) Create(ctx context.Context, tpl *entity.ExtractionTemplate) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, tpl)
	}
	return nil
}

func (m *mockTemplateRepo) GetByID(ctx context.Context, tenantID, id string) (*entity.ExtractionTemplate, error) {
	if m.getByIDFunc != nil {
		return m.getByIDFunc(ctx, tenantID, id)
	}
	return nil, nil
}

func (m *mockTemplateRepo) List(ctx context.Context, tenantID string) ([]*entity.ExtractionTemplate, error) {
	if m.listFunc != nil {
		return m.listFunc(ctx, tenantID)
	}
	return []*entity.ExtractionTemplate{}, nil
}

func (m *mockTemplateRepo) Delete(ctx context.Context, tenantID, id string) error {
	if m.deleteFunc != nil {
		return m.deleteFunc(ctx, tenantID, id)
	}
	return nil
}

// mockRenderer returns a fixed image for every region.
type mockRenderer struct {
	pageCountFunc    func(path string) (int, error)
	renderRegionFunc func(path string, page int, region port.Rect) ([]byte, error)
}

func (m *mockRenderer) PageCount(path string) (int, error) {
	if m.pageCountFunc != nil {
		return m.pageCountFunc(path)
	}
	return 1, nil
}

func (m *mockRenderer) RenderRegion(path string, page int, region port.Rect) ([]byte, error) {
	if m.renderRegionFunc != nil {
		return m.renderRegionFunc(path, page, region)
	}
	return []byte("image"), nil
}

// mockExtractor echoes each block key back as its value.
type mockExtractor struct {
	extractFunc func(ctx context.Context, image []byte, blocks []port.BlockSpec) ([]port.ExtractedField, error)
}

func (m *mockExtractor) ExtractFields(ctx context.Context, image []byte, blocks []port.BlockSpec) ([]port.ExtractedField, error) {
	if m.extractFunc != nil {
		return m.extractFunc(ctx, image, blocks)
	}
	fields := make([]port.ExtractedField, len(blocks))
	for i, b := range blocks {
		fields[i] = port.ExtractedField{Key: b.Key, Value: "value:" + b.Key, Confidence: 0.9}
	}
	return fields, nil
}

// mockTxManager runs the function directly; repository mocks do not care
// about transaction boundaries.
type mockTxManager struct{}

func (m *mockTxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

var _ port.TransactionManager = (*mockTxManager)(nil)

// recordingDispatcher captures dispatched events synchronously.
type recordingDispatcher struct {
	mu     sync.Mutex
	events []*event.Event
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, evt *event.Event) error {
	d.DispatchAsync(ctx, evt)
	return nil
}

func (d *recordingDispatcher) DispatchAsync(_ context.Context, evt *event.Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, evt)
}

func (d *recordingDispatcher) typesSeen() []event.Type {
	d.mu.Lock()
	defer d.mu.Unlock()
	types := make([]event.Type, len(d.events))
	for i, evt := range d.events {
		types[i] = evt.Type
	}
	return types
}

type nopLogger struct{}

func (nopLogger) Info(msg string, keysAndValues ...interface{})  {}
func (nopLogger) Error(msg string, keysAndValues ...interface{}) {}

// recordingMetrics captures transition results and guard outcomes.
type recordingMetrics struct {
	mu          sync.Mutex
	transitions []string
	outcomes    []string
}

func (m *recordingMetrics) TransitionObserved(result string, seconds float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitions = append(m.transitions, result)
}

func (m *recordingMetrics) ConditionEvaluated(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, outcome)
}

func (m *recordingMetrics) lastTransition() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.transitions) == 0 {
		return ""
	}
	return m.transitions[len(m.transitions)-1]
}
