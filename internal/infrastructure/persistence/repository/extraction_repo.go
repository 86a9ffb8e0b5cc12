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

// ExtractionRepository implements port.ExtractionRepository
type ExtractionRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewExtractionRepository creates a new extraction repository
func NewExtractionRepository(db *sql.DB, logger *zap.Logger) port.ExtractionRepository {
	return &ExtractionRepository{
		db:     db,
		logger: logger,
	}
}

const extractionColumns = `id, document_id, page, block_key, value, corrected_value,
	confidence, created_at, updated_at`

// Create persists a new extraction record
func (r *ExtractionRepository) Create(ctx context.Context, rec *entity.ExtractionRecord) error {
	query := `
		INSERT INTO extraction_records (
			id, document_id, page, block_key, value, corrected_value,
			confidence, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := sqlite.Executor(ctx, r.db).ExecContext(ctx, query,
		rec.ID,
		rec.DocumentID,
		rec.Page,
		rec.BlockKey,
		rec.Value,
		rec.CorrectedValue,
		rec.Confidence,
		rec.CreatedAt,
		rec.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create extraction record", zap.Error(err))
		return fmt.Errorf("failed to create extraction record: %w", err)
	}
	return nil
}

// GetByID retrieves an extraction record by ID
func (r *ExtractionRepository) GetByID(ctx context.Context, id string) (*entity.ExtractionRecord, error) {
	query := `SELECT ` + extractionColumns + ` FROM extraction_records WHERE id = ?`

	rec, err := scanExtraction(sqlite.Executor(ctx, r.db).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get extraction record", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get extraction record: %w", err)
	}
	return rec, nil
}

// ListByDocument retrieves all extraction records of a document
func (r *ExtractionRepository) ListByDocument(ctx context.Context, documentID string) ([]*entity.ExtractionRecord, error) {
	query := `SELECT ` + extractionColumns + ` FROM extraction_records
		WHERE document_id = ? ORDER BY page ASC, block_key ASC`

	rows, err := sqlite.Executor(ctx, r.db).QueryContext(ctx, query, documentID)
	if err != nil {
		r.logger.Error("Failed to list extraction records", zap.Error(err))
		return nil, fmt.Errorf("failed to list extraction records: %w", err)
	}
	defer rows.Close()

	var records []*entity.ExtractionRecord
	for rows.Next() {
		rec, err := scanExtraction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan extraction record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// UpdateCorrection records a reviewer's fix without touching the extracted value
func (r *ExtractionRepository) UpdateCorrection(ctx context.Context, id, correctedValue string) error {
	query := `UPDATE extraction_records SET corrected_value = ?, updated_at = ? WHERE id = ?`

	_, err := sqlite.Executor(ctx, r.db).ExecContext(ctx, query, correctedValue, time.Now().UTC(), id)
	if err != nil {
		r.logger.Error("Failed to update correction", zap.String("id", id), zap.Error(err))
		return fmt.Errorf("failed to update correction: %w", err)
	}
	return nil
}

func scanExtraction(row rowScanner) (*entity.ExtractionRecord, error) {
	var rec entity.ExtractionRecord
	var corrected sql.NullString

	err := row.Scan(
		&rec.ID,
		&rec.DocumentID,
		&rec.Page,
		&rec.BlockKey,
		&rec.Value,
		&corrected,
		&rec.Confidence,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.CorrectedValue = corrected.String
	return &rec, nil
}

// Verify interface compliance
var _ port.ExtractionRepository = (*ExtractionRepository)(nil)
