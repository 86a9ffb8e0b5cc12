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

// WorkflowRepository implements port.WorkflowRepository
type WorkflowRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewWorkflowRepository creates a new workflow repository
func NewWorkflowRepository(db *sql.DB, logger *zap.Logger) port.WorkflowRepository {
	return &WorkflowRepository{
		db:     db,
		logger: logger,
	}
}

const workflowColumns = `id, tenant_id, name, description, version, is_active, strict_guards,
	graph_json, created_by, created_at, updated_at`

// Create persists a new workflow definition
func (r *WorkflowRepository) Create(ctx context.Context, wf *entity.WorkflowDefinition) error {
	query := `
		INSERT INTO workflow_definitions (
			id, tenant_id, name, description, version, is_active, strict_guards,
			graph_json, created_by, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := sqlite.Executor(ctx, r.db).ExecContext(ctx, query,
		wf.ID,
		wf.TenantID,
		wf.Name,
		wf.Description,
		wf.Version,
		wf.IsActive,
		wf.StrictGuards,
		wf.GraphJSON,
		wf.CreatedBy,
		wf.CreatedAt,
		wf.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create workflow", zap.Error(err))
		return fmt.Errorf("failed to create workflow: %w", err)
	}
	return nil
}

// GetByID retrieves a workflow definition by ID within a tenant
func (r *WorkflowRepository) GetByID(ctx context.Context, tenantID, id string) (*entity.WorkflowDefinition, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflow_definitions WHERE id = ? AND tenant_id = ?`

	wf, err := scanWorkflow(sqlite.Executor(ctx, r.db).QueryRowContext(ctx, query, id, tenantID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get workflow", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get workflow: %w", err)
	}
	return wf, nil
}

// List retrieves all workflow definitions of a tenant
func (r *WorkflowRepository) List(ctx context.Context, tenantID string) ([]*entity.WorkflowDefinition, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflow_definitions
		WHERE tenant_id = ? ORDER BY name ASC, version DESC`

	rows, err := sqlite.Executor(ctx, r.db).QueryContext(ctx, query, tenantID)
	if err != nil {
		r.logger.Error("Failed to list workflows", zap.Error(err))
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}
	defer rows.Close()

	var workflows []*entity.WorkflowDefinition
	for rows.Next() {
		wf, err := scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}
		workflows = append(workflows, wf)
	}
	return workflows, rows.Err()
}

// Update persists changes to a workflow definition
func (r *WorkflowRepository) Update(ctx context.Context, wf *entity.WorkflowDefinition) error {
	query := `
		UPDATE workflow_definitions
		SET name = ?, description = ?, version = ?, is_active = ?, strict_guards = ?,
			graph_json = ?, updated_at = ?
		WHERE id = ? AND tenant_id = ?
	`

	_, err := sqlite.Executor(ctx, r.db).ExecContext(ctx, query,
		wf.Name,
		wf.Description,
		wf.Version,
		wf.IsActive,
		wf.StrictGuards,
		wf.GraphJSON,
		wf.UpdatedAt,
		wf.ID,
		wf.TenantID,
	)
	if err != nil {
		r.logger.Error("Failed to update workflow", zap.String("id", wf.ID), zap.Error(err))
		return fmt.Errorf("failed to update workflow: %w", err)
	}
	return nil
}

// Delete removes a workflow definition and its version snapshots
func (r *WorkflowRepository) Delete(ctx context.Context, tenantID, id string) error {
	_, err := sqlite.Executor(ctx, r.db).ExecContext(ctx,
		`DELETE FROM workflow_definitions WHERE id = ? AND tenant_id = ?`, id, tenantID)
	if err != nil {
		r.logger.Error("Failed to delete workflow", zap.String("id", id), zap.Error(err))
		return fmt.Errorf("failed to delete workflow: %w", err)
	}
	return nil
}

// CreateVersion persists an immutable graph snapshot. A snapshot for the
// same (workflow, version) pair is replaced; published snapshots of other
// versions are never touched.
func (r *WorkflowRepository) CreateVersion(ctx context.Context, v *entity.WorkflowVersion) error {
	query := `
		INSERT INTO workflow_versions (id, workflow_id, version, graph_json, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(workflow_id, version) DO UPDATE SET graph_json = excluded.graph_json
	`

	_, err := sqlite.Executor(ctx, r.db).ExecContext(ctx, query,
		v.ID, v.WorkflowID, v.Version, v.GraphJSON, v.CreatedAt)
	if err != nil {
		r.logger.Error("Failed to create workflow version",
			zap.String("workflow_id", v.WorkflowID), zap.Int("version", v.Version), zap.Error(err))
		return fmt.Errorf("failed to create workflow version: %w", err)
	}
	return nil
}

// GetVersion retrieves a graph snapshot
func (r *WorkflowRepository) GetVersion(ctx context.Context, workflowID string, version int) (*entity.WorkflowVersion, error) {
	query := `SELECT id, workflow_id, version, graph_json, created_at
		FROM workflow_versions WHERE workflow_id = ? AND version = ?`

	var v entity.WorkflowVersion
	err := sqlite.Executor(ctx, r.db).QueryRowContext(ctx, query, workflowID, version).Scan(
		&v.ID, &v.WorkflowID, &v.Version, &v.GraphJSON, &v.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get workflow version",
			zap.String("workflow_id", workflowID), zap.Int("version", version), zap.Error(err))
		return nil, fmt.Errorf("failed to get workflow version: %w", err)
	}
	return &v, nil
}

// rowScanner covers *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanWorkflow(row rowScanner) (*entity.WorkflowDefinition, error) {
	var wf entity.WorkflowDefinition
	err := row.Scan(
		&wf.ID,
		&wf.TenantID,
		&wf.Name,
		&wf.Description,
		&wf.Version,
		&wf.IsActive,
		&wf.StrictGuards,
		&wf.GraphJSON,
		&wf.CreatedBy,
		&wf.CreatedAt,
		&wf.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &wf, nil
}

// Verify interface compliance
var _ port.WorkflowRepository = (*WorkflowRepository)(nil)
