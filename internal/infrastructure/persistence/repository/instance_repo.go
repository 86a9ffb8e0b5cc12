package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/docuflow/docuflow/internal/application/port"
	"github.com/docuflow/docuflow/internal/domain/entity"
	"github.com/docuflow/docuflow/internal/infrastructure/persistence/sqlite"
)

// InstanceRepository implements port.InstanceRepository
type InstanceRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewInstanceRepository creates a new instance repository
func NewInstanceRepository(db *sql.DB, logger *zap.Logger) port.InstanceRepository {
	return &InstanceRepository{
		db:     db,
		logger: logger,
	}
}

const instanceColumns = `id, tenant_id, document_id, workflow_id, workflow_version,
	current_state_id, status, started_by, started_at, completed_at, due_at,
	metadata, row_version, created_at, updated_at`

// Create persists a new approval instance
func (r *InstanceRepository) Create(ctx context.Context, instance *entity.ApprovalInstance) error {
	query := `
		INSERT INTO approval_instances (
			id, tenant_id, document_id, workflow_id, workflow_version,
			current_state_id, status, started_by, started_at, completed_at, due_at,
			metadata, row_version, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := sqlite.Executor(ctx, r.db).ExecContext(ctx, query,
		instance.ID,
		instance.TenantID,
		instance.DocumentID,
		instance.WorkflowID,
		instance.WorkflowVersion,
		instance.CurrentStateID,
		instance.Status,
		instance.StartedBy,
		instance.StartedAt,
		instance.CompletedAt,
		instance.DueAt,
		instance.Metadata,
		instance.RowVersion,
		instance.CreatedAt,
		instance.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create instance", zap.Error(err))
		return fmt.Errorf("failed to create instance: %w", err)
	}
	return nil
}

// GetByID retrieves an approval instance by ID
func (r *InstanceRepository) GetByID(ctx context.Context, tenantID, id string) (*entity.ApprovalInstance, error) {
	query := `SELECT ` + instanceColumns + ` FROM approval_instances WHERE id = ? AND tenant_id = ?`

	instance, err := scanInstance(sqlite.Executor(ctx, r.db).QueryRowContext(ctx, query, id, tenantID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get instance", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get instance: %w", err)
	}
	return instance, nil
}

// GetActiveByDocument retrieves the active instance bound to a document
func (r *InstanceRepository) GetActiveByDocument(ctx context.Context, tenantID, documentID string) (*entity.ApprovalInstance, error) {
	query := `SELECT ` + instanceColumns + ` FROM approval_instances
		WHERE tenant_id = ? AND document_id = ? AND status = ?
		ORDER BY created_at DESC LIMIT 1`

	instance, err := scanInstance(sqlite.Executor(ctx, r.db).QueryRowContext(ctx, query,
		tenantID, documentID, entity.InstanceStatusActive))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get active instance",
			zap.String("document_id", documentID), zap.Error(err))
		return nil, fmt.Errorf("failed to get active instance: %w", err)
	}
	return instance, nil
}

// List retrieves approval instances with pagination
func (r *InstanceRepository) List(ctx context.Context, tenantID string, limit, offset int) ([]*entity.ApprovalInstance, error) {
	query := `SELECT ` + instanceColumns + ` FROM approval_instances
		WHERE tenant_id = ? ORDER BY created_at DESC LIMIT ? OFFSET ?`

	rows, err := sqlite.Executor(ctx, r.db).QueryContext(ctx, query, tenantID, limit, offset)
	if err != nil {
		r.logger.Error("Failed to list instances", zap.Error(err))
		return nil, fmt.Errorf("failed to list instances: %w", err)
	}
	defer rows.Close()

	var instances []*entity.ApprovalInstance
	for rows.Next() {
		instance, err := scanInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan instance: %w", err)
		}
		instances = append(instances, instance)
	}
	return instances, rows.Err()
}

// Advance commits a state change guarded by the optimistic row version.
// Zero rows updated means a concurrent transition won the race.
func (r *InstanceRepository) Advance(ctx context.Context, instance *entity.ApprovalInstance) (int64, error) {
	query := `
		UPDATE approval_instances
		SET current_state_id = ?, status = ?, completed_at = ?, due_at = ?,
			metadata = ?, row_version = row_version + 1, updated_at = ?
		WHERE id = ? AND row_version = ?
	`

	result, err := sqlite.Executor(ctx, r.db).ExecContext(ctx, query,
		instance.CurrentStateID,
		instance.Status,
		instance.CompletedAt,
		instance.DueAt,
		instance.Metadata,
		instance.UpdatedAt,
		instance.ID,
		instance.RowVersion,
	)
	if err != nil {
		r.logger.Error("Failed to advance instance", zap.String("id", instance.ID), zap.Error(err))
		return 0, fmt.Errorf("failed to advance instance: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return rows, nil
}

// CountActiveByWorkflow counts active instances bound to a workflow
func (r *InstanceRepository) CountActiveByWorkflow(ctx context.Context, workflowID string) (int, error) {
	query := `SELECT COUNT(*) FROM approval_instances WHERE workflow_id = ? AND status = ?`

	var count int
	err := sqlite.Executor(ctx, r.db).QueryRowContext(ctx, query,
		workflowID, entity.InstanceStatusActive).Scan(&count)
	if err != nil {
		r.logger.Error("Failed to count active instances",
			zap.String("workflow_id", workflowID), zap.Error(err))
		return 0, fmt.Errorf("failed to count active instances: %w", err)
	}
	return count, nil
}

func scanInstance(row rowScanner) (*entity.ApprovalInstance, error) {
	var instance entity.ApprovalInstance
	var completedAt, dueAt sql.NullTime

	err := row.Scan(
		&instance.ID,
		&instance.TenantID,
		&instance.DocumentID,
		&instance.WorkflowID,
		&instance.WorkflowVersion,
		&instance.CurrentStateID,
		&instance.Status,
		&instance.StartedBy,
		&instance.StartedAt,
		&completedAt,
		&dueAt,
		&instance.Metadata,
		&instance.RowVersion,
		&instance.CreatedAt,
		&instance.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if completedAt.Valid {
		instance.CompletedAt = &completedAt.Time
	}
	if dueAt.Valid {
		instance.DueAt = &dueAt.Time
	}
	return &instance, nil
}

// Verify interface compliance
var _ port.InstanceRepository = (*InstanceRepository)(nil)
