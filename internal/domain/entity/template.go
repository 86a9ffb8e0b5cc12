package entity

import "time"

// ExtractionTemplate is a named, reusable set of extraction blocks owned by
// a tenant. The blocks are stored as JSON ([]port.BlockSpec wire format) so
// the same layout can be applied to every document of a kind.
type ExtractionTemplate struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenant_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	BlocksJSON  string    `json:"blocks_json"`
	CreatedBy   string    `json:"created_by,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
