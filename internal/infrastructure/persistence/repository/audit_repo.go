package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/docuflow/docuflow/internal/application/port"
	"github.com/docuflow/docuflow/internal/domain/entity"
	"github.com/docuflow/docuflow/internal/infrastructure/persistence/sqlite"
)

// AuditRepository implements port.AuditRepository
type AuditRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *sql.DB, logger *zap.Logger) port.AuditRepository {
	return &AuditRepository{
		db:     db,
		logger: logger,
	}
}

// Create persists an append-only audit record
func (r *AuditRepository) Create(ctx context.Context, log *entity.AuditLog) error {
	query := `
		INSERT INTO audit_logs (id, tenant_id, user_id, action, resource_type, resource_id, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := sqlite.Executor(ctx, r.db).ExecContext(ctx, query,
		log.ID,
		log.TenantID,
		log.UserID,
		log.Action,
		log.ResourceType,
		log.ResourceID,
		log.Detail,
		log.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create audit log", zap.Error(err))
		return fmt.Errorf("failed to create audit log: %w", err)
	}
	return nil
}

// List retrieves audit records of a tenant, newest first
func (r *AuditRepository) List(ctx context.Context, tenantID string, filter port.AuditFilter) ([]*entity.AuditLog, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT id, tenant_id, user_id, action, resource_type, resource_id, detail, created_at
		FROM audit_logs WHERE tenant_id = ?`)
	args := []interface{}{tenantID}

	if filter.UserID != "" {
		sb.WriteString(" AND user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.ResourceType != "" {
		sb.WriteString(" AND resource_type = ?")
		args = append(args, filter.ResourceType)
	}
	if filter.ResourceID != "" {
		sb.WriteString(" AND resource_id = ?")
		args = append(args, filter.ResourceID)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	sb.WriteString(" ORDER BY created_at DESC LIMIT ? OFFSET ?")
	args = append(args, limit, filter.Offset)

	rows, err := sqlite.Executor(ctx, r.db).QueryContext(ctx, sb.String(), args...)
	if err != nil {
		r.logger.Error("Failed to list audit logs", zap.Error(err))
		return nil, fmt.Errorf("failed to list audit logs: %w", err)
	}
	defer rows.Close()

	var logs []*entity.AuditLog
	for rows.Next() {
		var l entity.AuditLog
		var userID, detail sql.NullString
		if err := rows.Scan(&l.ID, &l.TenantID, &userID, &l.Action,
			&l.ResourceType, &l.ResourceID, &detail, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}
		l.UserID = userID.String
		l.Detail = detail.String
		logs = append(logs, &l)
	}
	return logs, rows.Err()
}

// Verify interface compliance
var _ port.AuditRepository = (*AuditRepository)(nil)
