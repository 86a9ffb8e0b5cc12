package event

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Type identifies a domain event.
type Type string

const (
	TypeApprovalStarted     Type = "approval.started"
	TypeTransitionExecuted  Type = "approval.transition_executed"
	TypeAutoAdvanced        Type = "approval.auto_advanced"
	TypeMetadataUpdated     Type = "approval.metadata_updated"
	TypeDocumentUploaded    Type = "document.uploaded"
	TypeExtractionCompleted Type = "document.extraction_completed"
	TypeWorkflowSaved       Type = "workflow.saved"
)

// Event is one domain event emitted by the application services and fanned
// out to handlers (audit log, metrics).
type Event struct {
	ID         string                 `json:"id"`
	Type       Type                   `json:"type"`
	TenantID   string                 `json:"tenant_id"`
	UserID     string                 `json:"user_id,omitempty"`
	ResourceID string                 `json:"resource_id"`
	Payload    map[string]interface{} `json:"payload"`
	Timestamp  time.Time              `json:"timestamp"`
}

// New creates an event with a generated id and current timestamp.
func New(eventType Type, tenantID, userID, resourceID string, payload map[string]interface{}) *Event {
	return &Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		TenantID:   tenantID,
		UserID:     userID,
		ResourceID: resourceID,
		Payload:    payload,
		Timestamp:  time.Now().UTC(),
	}
}

// PayloadJSON serializes the payload. Returns an empty string for an
// empty payload or one that cannot be marshalled.
func (e *Event) PayloadJSON() string {
	if len(e.Payload) == 0 {
		return ""
	}
	data, err := json.Marshal(e.Payload)
	if err != nil {
		return ""
	}
	return string(data)
}

// PayloadString retrieves a string value from the payload.
func (e *Event) PayloadString(key string) string {
	if val, ok := e.Payload[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}
