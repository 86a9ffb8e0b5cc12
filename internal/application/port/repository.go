package port

import (
	"context"
	"time"

	"github.com/docuflow/docuflow/internal/domain/entity"
)

// WorkflowRepository defines persistence operations for workflow
// definitions and their version snapshots.
type WorkflowRepository interface {
	Create(ctx context.Context, wf *entity.WorkflowDefinition) error
	GetByID(ctx context.Context, tenantID, id string) (*entity.WorkflowDefinition, error)
	List(ctx context.Context, tenantID string) ([]*entity.WorkflowDefinition, error)
	Update(ctx context.Context, wf *entity.WorkflowDefinition) error
	Delete(ctx context.Context, tenantID, id string) error

	CreateVersion(ctx context.Context, v *entity.WorkflowVersion) error
	GetVersion(ctx context.Context, workflowID string, version int) (*entity.WorkflowVersion, error)
}

// InstanceRepository defines persistence operations for ApprovalInstance.
type InstanceRepository interface {
	Create(ctx context.Context, instance *entity.ApprovalInstance) error
	GetByID(ctx context.Context, tenantID, id string) (*entity.ApprovalInstance, error)
	GetActiveByDocument(ctx context.Context, tenantID, documentID string) (*entity.ApprovalInstance, error)
	List(ctx context.Context, tenantID string, limit, offset int) ([]*entity.ApprovalInstance, error)

	// Advance writes currentStateID/status/completedAt/metadata if and only
	// if the stored row version still equals instance.RowVersion. It returns
	// the number of rows updated; zero means a concurrent writer won.
	Advance(ctx context.Context, instance *entity.ApprovalInstance) (int64, error)

	CountActiveByWorkflow(ctx context.Context, workflowID string) (int, error)
}

// StepRepository defines persistence operations for ApprovalStep history.
type StepRepository interface {
	Create(ctx context.Context, step *entity.ApprovalStep) error
	GetPendingByInstance(ctx context.Context, instanceID string) (*entity.ApprovalStep, error)
	Complete(ctx context.Context, stepID, status, actionTaken, comment, delegatedTo string, completedAt time.Time) error
	ListByInstance(ctx context.Context, instanceID string) ([]*entity.ApprovalStep, error)
	ListPendingByAssignee(ctx context.Context, tenantID, userID string) ([]*entity.ApprovalStep, error)
}

// DocumentRepository defines persistence operations for Document.
type DocumentRepository interface {
	Create(ctx context.Context, doc *entity.Document) error
	GetByID(ctx context.Context, tenantID, id string) (*entity.Document, error)
	List(ctx context.Context, tenantID string, limit, offset int) ([]*entity.Document, error)
	UpdateStatus(ctx context.Context, id, status string) error
}

// ExtractionRepository defines persistence operations for ExtractionRecord.
type ExtractionRepository interface {
	Create(ctx context.Context, rec *entity.ExtractionRecord) error
	GetByID(ctx context.Context, id string) (*entity.ExtractionRecord, error)
	ListByDocument(ctx context.Context, documentID string) ([]*entity.ExtractionRecord, error)
	UpdateCorrection(ctx context.Context, id, correctedValue string) error
}

// TemplateRepository defines persistence operations for ExtractionTemplate.
type TemplateRepository interface {
	Create(ctx context.Context, tpl *entity.ExtractionTemplate) error
	GetByID(ctx context.Context, tenantID, id string) (*entity.ExtractionTemplate, error)
	List(ctx context.Context, tenantID string) ([]*entity.ExtractionTemplate, error)
	Delete(ctx context.Context, tenantID, id string) error
}

// AuditRepository defines persistence operations for AuditLog.
type AuditRepository interface {
	Create(ctx context.Context, log *entity.AuditLog) error
	List(ctx context.Context, tenantID string, filter AuditFilter) ([]*entity.AuditLog, error)
}

// AuditFilter narrows audit log listings.
type AuditFilter struct {
	UserID       string
	ResourceType string
	ResourceID   string
	Limit        int
	Offset       int
}

// TransactionManager executes a function within a database transaction.
// Nested calls reuse the surrounding transaction.
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
