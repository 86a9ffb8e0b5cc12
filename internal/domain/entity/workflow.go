package entity

import "time"

// WorkflowDefinition is a named, versioned workflow graph owned by a tenant.
// The graph is stored as JSON (nodes/edges wire format); every published
// version keeps its own immutable snapshot so in-flight instances are not
// affected by later edits.
type WorkflowDefinition struct {
	ID           string    `json:"id"`
	TenantID     string    `json:"tenant_id"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	Version      int       `json:"version"`
	IsActive     bool      `json:"is_active"`
	StrictGuards bool      `json:"strict_guards"`
	GraphJSON    string    `json:"graph_json"`
	CreatedBy    string    `json:"created_by,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// WorkflowVersion is an immutable graph snapshot bound to instances created
// while it was current.
type WorkflowVersion struct {
	ID         string    `json:"id"`
	WorkflowID string    `json:"workflow_id"`
	Version    int       `json:"version"`
	GraphJSON  string    `json:"graph_json"`
	CreatedAt  time.Time `json:"created_at"`
}
