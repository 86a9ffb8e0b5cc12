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

// TemplateRepository implements port.TemplateRepository
type TemplateRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewTemplateRepository creates a new template repository
func NewTemplateRepository(db *sql.DB, logger *zap.Logger) port.TemplateRepository {
	return &TemplateRepository{
		db:     db,
		logger: logger,
	}
}

const templateColumns = `id, tenant_id, name, description, blocks_json,
	created_by, created_at, updated_at`

// Create persists a new extraction template
func (r *TemplateRepository) Create(ctx context.Context, tpl *entity.ExtractionTemplate) error {
	query := `
		INSERT INTO extraction_templates (
			id, tenant_id, name, description, blocks_json,
			created_by, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := sqlite.Executor(ctx, r.db).ExecContext(ctx, query,
		tpl.ID,
		tpl.TenantID,
		tpl.Name,
		tpl.Description,
		tpl.BlocksJSON,
		tpl.CreatedBy,
		tpl.CreatedAt,
		tpl.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create extraction template", zap.Error(err))
		return fmt.Errorf("failed to create extraction template: %w", err)
	}
	return nil
}

// GetByID retrieves an extraction template by ID within a tenant
func (r *TemplateRepository) GetByID(ctx context.Context, tenantID, id string) (*entity.ExtractionTemplate, error) {
	query := `SELECT ` + templateColumns + ` FROM extraction_templates
		WHERE tenant_id = ? AND id = ?`

	tpl, err := scanTemplate(sqlite.Executor(ctx, r.db).QueryRowContext(ctx, query, tenantID, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get extraction template", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get extraction template: %w", err)
	}
	return tpl, nil
}

// List retrieves all extraction templates of a tenant
func (r *TemplateRepository) List(ctx context.Context, tenantID string) ([]*entity.ExtractionTemplate, error) {
	query := `SELECT ` + templateColumns + ` FROM extraction_templates
		WHERE tenant_id = ? ORDER BY name ASC`

	rows, err := sqlite.Executor(ctx, r.db).QueryContext(ctx, query, tenantID)
	if err != nil {
		r.logger.Error("Failed to list extraction templates", zap.Error(err))
		return nil, fmt.Errorf("failed to list extraction templates: %w", err)
	}
	defer rows.Close()

	var templates []*entity.ExtractionTemplate
	for rows.Next() {
		tpl, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan extraction template: %w", err)
		}
		templates = append(templates, tpl)
	}
	return templates, rows.Err()
}

// Delete removes an extraction template
func (r *TemplateRepository) Delete(ctx context.Context, tenantID, id string) error {
	query := `DELETE FROM extraction_templates WHERE tenant_id = ? AND id = ?`

	_, err := sqlite.Executor(ctx, r.db).ExecContext(ctx, query, tenantID, id)
	if err != nil {
		r.logger.Error("Failed to delete extraction template", zap.String("id", id), zap.Error(err))
		return fmt.Errorf("failed to delete extraction template: %w", err)
	}
	return nil
}

func scanTemplate(row rowScanner) (*entity.ExtractionTemplate, error) {
	var tpl entity.ExtractionTemplate
	var description, createdBy sql.NullString

	err := row.Scan(
		&tpl.ID,
		&tpl.TenantID,
		&tpl.Name,
		&description,
		&tpl.BlocksJSON,
		&createdBy,
		&tpl.CreatedAt,
		&tpl.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	tpl.Description = description.String
	tpl.CreatedBy = createdBy.String
	return &tpl, nil
}

// Verify interface compliance
var _ port.TemplateRepository = (*TemplateRepository)(nil)
