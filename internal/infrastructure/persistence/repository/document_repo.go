package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/docuflow/docuflow/internal/application/port"
	"github.com/docuflow/docuflow/internal/domain/entity"
	"github.com/docuflow/docuflow/internal/infrastructure/persistence/sqlite"
)

// DocumentRepository implements port.DocumentRepository
type DocumentRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewDocumentRepository creates a new document repository
func NewDocumentRepository(db *sql.DB, logger *zap.Logger) port.DocumentRepository {
	return &DocumentRepository{
		db:     db,
		logger: logger,
	}
}

const documentColumns = `id, tenant_id, file_name, file_path, file_size, page_count,
	status, uploaded_by, created_at, updated_at`

// Create persists a new document
func (r *DocumentRepository) Create(ctx context.Context, doc *entity.Document) error {
	query := `
		INSERT INTO documents (
			id, tenant_id, file_name, file_path, file_size, page_count,
			status, uploaded_by, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := sqlite.Executor(ctx, r.db).ExecContext(ctx, query,
		doc.ID,
		doc.TenantID,
		doc.FileName,
		doc.FilePath,
		doc.FileSize,
		doc.PageCount,
		doc.Status,
		doc.UploadedBy,
		doc.CreatedAt,
		doc.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create document", zap.Error(err))
		return fmt.Errorf("failed to create document: %w", err)
	}
	return nil
}

// GetByID retrieves a document by ID within a tenant
func (r *DocumentRepository) GetByID(ctx context.Context, tenantID, id string) (*entity.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE id = ? AND tenant_id = ?`

	doc, err := scanDocument(sqlite.Executor(ctx, r.db).QueryRowContext(ctx, query, id, tenantID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get document", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return doc, nil
}

// List retrieves documents of a tenant with pagination
func (r *DocumentRepository) List(ctx context.Context, tenantID string, limit, offset int) ([]*entity.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents
		WHERE tenant_id = ? ORDER BY created_at DESC LIMIT ? OFFSET ?`

	rows, err := sqlite.Executor(ctx, r.db).QueryContext(ctx, query, tenantID, limit, offset)
	if err != nil {
		r.logger.Error("Failed to list documents", zap.Error(err))
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var docs []*entity.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// UpdateStatus moves a document through its processing lifecycle
func (r *DocumentRepository) UpdateStatus(ctx context.Context, id, status string) error {
	query := `UPDATE documents SET status = ?, updated_at = ? WHERE id = ?`

	_, err := sqlite.Executor(ctx, r.db).ExecContext(ctx, query, status, time.Now().UTC(), id)
	if err != nil {
		r.logger.Error("Failed to update document status",
			zap.String("id", id), zap.String("status", status), zap.Error(err))
		return fmt.Errorf("failed to update document status: %w", err)
	}
	return nil
}

func scanDocument(row rowScanner) (*entity.Document, error) {
	var doc entity.Document
	var uploadedBy sql.NullString

	err := row.Scan(
		&doc.ID,
		&doc.TenantID,
		&doc.FileName,
		&doc.FilePath,
		&doc.FileSize,
		&doc.PageCount,
		&doc.Status,
		&uploadedBy,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	doc.UploadedBy = uploadedBy.String
	return &doc, nil
}

// Verify interface compliance
var _ port.DocumentRepository = (*DocumentRepository)(nil)
