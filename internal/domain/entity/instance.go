package entity

import "time"

// Instance status values.
const (
	InstanceStatusActive    = "active"
	InstanceStatusCompleted = "completed"
	InstanceStatusCancelled = "cancelled"
)

// Step status values.
const (
	StepStatusPending   = "pending"
	StepStatusApproved  = "approved"
	StepStatusRejected  = "rejected"
	StepStatusDelegated = "delegated"
)

// ApprovalInstance binds a document to a position in a workflow graph.
// WorkflowVersion pins the graph snapshot the instance runs against.
// RowVersion backs the optimistic concurrency check: every committed
// transition increments it, and a writer holding a stale value loses.
type ApprovalInstance struct {
	ID              string     `json:"id"`
	TenantID        string     `json:"tenant_id"`
	DocumentID      string     `json:"document_id"`
	WorkflowID      string     `json:"workflow_id"`
	WorkflowVersion int        `json:"workflow_version"`
	CurrentStateID  string     `json:"current_state_id"`
	Status          string     `json:"status"`
	StartedBy       string     `json:"started_by,omitempty"`
	StartedAt       time.Time  `json:"started_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	DueAt           *time.Time `json:"due_at,omitempty"`
	Metadata        string     `json:"metadata"`
	RowVersion      int64      `json:"-"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// IsActive reports whether the instance can still transition.
func (i *ApprovalInstance) IsActive() bool {
	return i.Status == InstanceStatusActive
}

// ApprovalStep is one history record of an instance occupying a state.
// Steps are append-only: once CompletedAt is set a step is never mutated.
type ApprovalStep struct {
	ID          string     `json:"id"`
	InstanceID  string     `json:"instance_id"`
	StateID     string     `json:"state_id"`
	Status      string     `json:"status"`
	AssignedTo  string     `json:"assigned_to,omitempty"`
	DelegatedTo string     `json:"delegated_to,omitempty"`
	ActionTaken string     `json:"action_taken,omitempty"`
	Comment     string     `json:"comment,omitempty"`
	AssignedAt  time.Time  `json:"assigned_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	DueAt       *time.Time `json:"due_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// IsPending reports whether the step still awaits an action.
func (s *ApprovalStep) IsPending() bool {
	return s.Status == StepStatusPending
}

// StepStatusForAction maps an action key to the history status it records.
func StepStatusForAction(actionKey string) string {
	switch actionKey {
	case "reject":
		return StepStatusRejected
	case "delegate":
		return StepStatusDelegated
	default:
		return StepStatusApproved
	}
}
