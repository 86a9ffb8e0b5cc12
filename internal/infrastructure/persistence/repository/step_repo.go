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

// StepRepository implements port.StepRepository
type StepRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewStepRepository creates a new step repository
func NewStepRepository(db *sql.DB, logger *zap.Logger) port.StepRepository {
	return &StepRepository{
		db:     db,
		logger: logger,
	}
}

const stepColumns = `id, instance_id, state_id, status, assigned_to, delegated_to,
	action_taken, comment, assigned_at, completed_at, due_at, created_at`

// Create persists a new approval step
func (r *StepRepository) Create(ctx context.Context, step *entity.ApprovalStep) error {
	query := `
		INSERT INTO approval_steps (
			id, instance_id, state_id, status, assigned_to, delegated_to,
			action_taken, comment, assigned_at, completed_at, due_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := sqlite.Executor(ctx, r.db).ExecContext(ctx, query,
		step.ID,
		step.InstanceID,
		step.StateID,
		step.Status,
		step.AssignedTo,
		step.DelegatedTo,
		step.ActionTaken,
		step.Comment,
		step.AssignedAt,
		step.CompletedAt,
		step.DueAt,
		step.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create step", zap.Error(err))
		return fmt.Errorf("failed to create step: %w", err)
	}
	return nil
}

// GetPendingByInstance retrieves the single pending step of an instance
func (r *StepRepository) GetPendingByInstance(ctx context.Context, instanceID string) (*entity.ApprovalStep, error) {
	query := `SELECT ` + stepColumns + ` FROM approval_steps
		WHERE instance_id = ? AND status = ?
		ORDER BY created_at DESC LIMIT 1`

	step, err := scanStep(sqlite.Executor(ctx, r.db).QueryRowContext(ctx, query,
		instanceID, entity.StepStatusPending))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get pending step",
			zap.String("instance_id", instanceID), zap.Error(err))
		return nil, fmt.Errorf("failed to get pending step: %w", err)
	}
	return step, nil
}

// Complete closes a pending step with the action that resolved it
func (r *StepRepository) Complete(ctx context.Context, stepID, status, actionTaken, comment, delegatedTo string, completedAt time.Time) error {
	query := `
		UPDATE approval_steps
		SET status = ?, action_taken = ?, comment = ?, delegated_to = ?, completed_at = ?
		WHERE id = ? AND status = ?
	`

	_, err := sqlite.Executor(ctx, r.db).ExecContext(ctx, query,
		status, actionTaken, comment, delegatedTo, completedAt,
		stepID, entity.StepStatusPending)
	if err != nil {
		r.logger.Error("Failed to complete step", zap.String("id", stepID), zap.Error(err))
		return fmt.Errorf("failed to complete step: %w", err)
	}
	return nil
}

// ListByInstance retrieves the full step history of an instance in order
func (r *StepRepository) ListByInstance(ctx context.Context, instanceID string) ([]*entity.ApprovalStep, error) {
	query := `SELECT ` + stepColumns + ` FROM approval_steps
		WHERE instance_id = ? ORDER BY created_at ASC`

	rows, err := sqlite.Executor(ctx, r.db).QueryContext(ctx, query, instanceID)
	if err != nil {
		r.logger.Error("Failed to list steps", zap.Error(err))
		return nil, fmt.Errorf("failed to list steps: %w", err)
	}
	defer rows.Close()

	var steps []*entity.ApprovalStep
	for rows.Next() {
		step, err := scanStep(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}
		steps = append(steps, step)
	}
	return steps, rows.Err()
}

// ListPendingByAssignee retrieves pending steps assigned to a user
func (r *StepRepository) ListPendingByAssignee(ctx context.Context, tenantID, userID string) ([]*entity.ApprovalStep, error) {
	query := `SELECT s.id, s.instance_id, s.state_id, s.status, s.assigned_to, s.delegated_to,
			s.action_taken, s.comment, s.assigned_at, s.completed_at, s.due_at, s.created_at
		FROM approval_steps s
		JOIN approval_instances i ON i.id = s.instance_id
		WHERE i.tenant_id = ? AND s.status = ? AND (s.assigned_to = ? OR s.delegated_to = ?)
		ORDER BY s.created_at ASC`

	rows, err := sqlite.Executor(ctx, r.db).QueryContext(ctx, query,
		tenantID, entity.StepStatusPending, userID, userID)
	if err != nil {
		r.logger.Error("Failed to list pending steps", zap.Error(err))
		return nil, fmt.Errorf("failed to list pending steps: %w", err)
	}
	defer rows.Close()

	var steps []*entity.ApprovalStep
	for rows.Next() {
		step, err := scanStep(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}
		steps = append(steps, step)
	}
	return steps, rows.Err()
}

func scanStep(row rowScanner) (*entity.ApprovalStep, error) {
	var step entity.ApprovalStep
	var assignedTo, delegatedTo, actionTaken, comment sql.NullString
	var completedAt, dueAt sql.NullTime

	err := row.Scan(
		&step.ID,
		&step.InstanceID,
		&step.StateID,
		&step.Status,
		&assignedTo,
		&delegatedTo,
		&actionTaken,
		&comment,
		&step.AssignedAt,
		&completedAt,
		&dueAt,
		&step.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	step.AssignedTo = assignedTo.String
	step.DelegatedTo = delegatedTo.String
	step.ActionTaken = actionTaken.String
	step.Comment = comment.String
	if completedAt.Valid {
		step.CompletedAt = &completedAt.Time
	}
	if dueAt.Valid {
		step.DueAt = &dueAt.Time
	}
	return &step, nil
}

// Verify interface compliance
var _ port.StepRepository = (*StepRepository)(nil)
