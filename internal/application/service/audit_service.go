package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/docuflow/docuflow/internal/application/port"
	"github.com/docuflow/docuflow/internal/domain/entity"
	"github.com/docuflow/docuflow/internal/domain/event"
)

// AuditService records and queries the append-only audit trail.
type AuditService interface {
	List(ctx context.Context, tenantID string, filter port.AuditFilter) ([]*entity.AuditLog, error)

	// HandleEvent is subscribed to the dispatcher and turns every domain
	// event into an audit row.
	HandleEvent(ctx context.Context, evt *event.Event) error
}

type auditServiceImpl struct {
	auditRepo port.AuditRepository
	logger    Logger
}

// NewAuditService creates a new AuditService.
func NewAuditService(auditRepo port.AuditRepository, logger Logger) AuditService {
	return &auditServiceImpl{
		auditRepo: auditRepo,
		logger:    logger,
	}
}

// List retrieves audit records of a tenant.
func (s *auditServiceImpl) List(ctx context.Context, tenantID string, filter port.AuditFilter) ([]*entity.AuditLog, error) {
	return s.auditRepo.List(ctx, tenantID, filter)
}

// HandleEvent writes one audit row per domain event. The event type maps
// to action and resource type, e.g. "approval.started" acts on "approval".
func (s *auditServiceImpl) HandleEvent(ctx context.Context, evt *event.Event) error {
	resourceType := string(evt.Type)
	action := string(evt.Type)
	if i := strings.IndexByte(action, '.'); i > 0 {
		resourceType = action[:i]
		action = action[i+1:]
	}

	log := &entity.AuditLog{
		ID:           uuid.NewString(),
		TenantID:     evt.TenantID,
		UserID:       evt.UserID,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   evt.ResourceID,
		Detail:       evt.PayloadJSON(),
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.auditRepo.Create(ctx, log); err != nil {
		s.logger.Error("Failed to write audit log", "error", err, "event_id", evt.ID)
		return err
	}
	return nil
}
