package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/docuflow/docuflow/internal/application/port"
	"github.com/docuflow/docuflow/internal/domain/condition"
	"github.com/docuflow/docuflow/internal/domain/entity"
	"github.com/docuflow/docuflow/internal/domain/event"
	"github.com/docuflow/docuflow/internal/domain/workflow"
)

// maxAutoAdvanceHops bounds chained auto-advance transitions per triggering
// event. An auto-advance cycle would otherwise loop forever; exceeding the
// bound surfaces as ErrConfiguration.
const maxAutoAdvanceHops = 16

// Metrics receives runtime measurements. Implementations must be safe for
// concurrent use; a nil Metrics disables recording.
type Metrics interface {
	TransitionObserved(result string, seconds float64)
	ConditionEvaluated(outcome string)
}

// StartApprovalInput is the payload for binding a document to a workflow.
type StartApprovalInput struct {
	DocumentID string                 `json:"document_id"`
	WorkflowID string                 `json:"workflow_id"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// TransitionInput is the payload for executing one state transition.
type TransitionInput struct {
	DocumentID  string                 `json:"document_id"`
	ActionKey   string                 `json:"action_key"`
	Comment     string                 `json:"comment,omitempty"`
	DelegatedTo string                 `json:"delegated_to,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// TransitionResult reports a committed transition.
type TransitionResult struct {
	Instance *entity.ApprovalInstance `json:"instance"`
	NewState workflow.Node            `json:"new_state"`
	Step     *entity.ApprovalStep     `json:"history_entry"`
}

// InstanceDetail is an instance with its full step history.
type InstanceDetail struct {
	Instance *entity.ApprovalInstance `json:"instance"`
	State    *workflow.Node           `json:"current_state,omitempty"`
	Steps    []*entity.ApprovalStep   `json:"steps"`
}

// ApprovalService executes the approval workflow runtime: starting
// instances, applying user actions and propagating auto-advance
// transitions.
//
// ExecuteTransition may return both a non-nil TransitionResult and a
// non-nil error. The result carries the user's committed transition;
// the error then describes a failure in the auto-advance propagation
// that followed it, not a rollback.
type ApprovalService interface {
	StartApproval(ctx context.Context, tenantID, userID string, in StartApprovalInput) (*entity.ApprovalInstance, error)
	ExecuteTransition(ctx context.Context, tenantID, userID string, in TransitionInput) (*TransitionResult, error)
	UpdateMetadata(ctx context.Context, tenantID, userID, documentID string, metadata map[string]interface{}) (*entity.ApprovalInstance, error)
	GetInstance(ctx context.Context, tenantID, documentID string) (*InstanceDetail, error)
	ListPending(ctx context.Context, tenantID, userID string) ([]*entity.ApprovalStep, error)
}

type approvalServiceImpl struct {
	workflowRepo port.WorkflowRepository
	instanceRepo port.InstanceRepository
	stepRepo     port.StepRepository
	documentRepo port.DocumentRepository
	txManager    port.TransactionManager
	dispatcher   Dispatcher
	metrics      Metrics
	logger       Logger
}

// NewApprovalService creates a new ApprovalService.
func NewApprovalService(
	workflowRepo port.WorkflowRepository,
	instanceRepo port.InstanceRepository,
	stepRepo port.StepRepository,
	documentRepo port.DocumentRepository,
	txManager port.TransactionManager,
	dispatcher Dispatcher,
	metrics Metrics,
	logger Logger,
) ApprovalService {
	return &approvalServiceImpl{
		workflowRepo: workflowRepo,
		instanceRepo: instanceRepo,
		stepRepo:     stepRepo,
		documentRepo: documentRepo,
		txManager:    txManager,
		dispatcher:   dispatcher,
		metrics:      metrics,
		logger:       logger,
	}
}

// StartApproval binds a document to a workflow at its initial state and
// runs one auto-advance propagation.
func (s *approvalServiceImpl) StartApproval(ctx context.Context, tenantID, userID string, in StartApprovalInput) (*entity.ApprovalInstance, error) {
	doc, err := s.documentRepo.GetByID(ctx, tenantID, in.DocumentID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, fmt.Errorf("document %s: %w", in.DocumentID, ErrNotFound)
	}

	wf, err := s.workflowRepo.GetByID(ctx, tenantID, in.WorkflowID)
	if err != nil {
		return nil, err
	}
	if wf == nil {
		return nil, fmt.Errorf("workflow %s: %w", in.WorkflowID, ErrNotFound)
	}

	existing, err := s.instanceRepo.GetActiveByDocument(ctx, tenantID, in.DocumentID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("document %s already has an active approval instance: %w", in.DocumentID, workflow.ErrConflict)
	}

	graph, err := workflow.ParseGraph([]byte(wf.GraphJSON))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", workflow.ErrConfiguration, err)
	}
	initial := graph.InitialNode()
	if initial == nil {
		return nil, fmt.Errorf("%w: workflow has no initial state", workflow.ErrConfiguration)
	}

	metadataJSON, err := marshalMetadata(in.Metadata)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	instance := &entity.ApprovalInstance{
		ID:              uuid.NewString(),
		TenantID:        tenantID,
		DocumentID:      in.DocumentID,
		WorkflowID:      wf.ID,
		WorkflowVersion: wf.Version,
		CurrentStateID:  initial.ID,
		Status:          entity.InstanceStatusActive,
		StartedBy:       userID,
		StartedAt:       now,
		Metadata:        metadataJSON,
		RowVersion:      1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.instanceRepo.Create(txCtx, instance); err != nil {
			return fmt.Errorf("create instance: %w", err)
		}
		if !initial.IsFinal {
			if err := s.createPendingStep(txCtx, instance, *initial, userID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to start approval", "error", err, "document_id", in.DocumentID)
		return nil, err
	}

	s.dispatcher.DispatchAsync(ctx, event.New(event.TypeApprovalStarted, tenantID, userID, instance.ID, map[string]interface{}{
		"document_id": in.DocumentID,
		"workflow_id": wf.ID,
		"state_id":    initial.ID,
	}))
	s.logger.Info("Approval started", "instance_id", instance.ID, "document_id", in.DocumentID)

	if err := s.propagateAutoAdvance(ctx, tenantID, userID, instance.ID); err != nil {
		return nil, err
	}

	// Reload so callers see the post-propagation position.
	return s.instanceRepo.GetByID(ctx, tenantID, instance.ID)
}

// ExecuteTransition applies one user action to an instance. All
// preconditions are checked before anything is written; concurrent winners
// are decided by the instance row version.
func (s *approvalServiceImpl) ExecuteTransition(ctx context.Context, tenantID, userID string, in TransitionInput) (*TransitionResult, error) {
	started := time.Now()

	instance, err := s.instanceRepo.GetActiveByDocument(ctx, tenantID, in.DocumentID)
	if err != nil {
		return nil, err
	}
	if instance == nil {
		s.observeTransition("not_active", started)
		return nil, fmt.Errorf("document %s: %w", in.DocumentID, workflow.ErrInstanceNotActive)
	}

	result, err := s.applyTransition(ctx, instance, userID, in.ActionKey, in.Comment, in.DelegatedTo, in.Metadata, false)
	if err != nil {
		s.observeTransition(resultLabel(err), started)
		return nil, err
	}
	s.observeTransition("success", started)

	s.dispatcher.DispatchAsync(ctx, event.New(event.TypeTransitionExecuted, tenantID, userID, instance.ID, map[string]interface{}{
		"document_id": in.DocumentID,
		"action_key":  in.ActionKey,
		"state_id":    result.NewState.ID,
	}))

	// The user's transition is committed at this point. Propagation and
	// reload failures are reported alongside the result, never instead
	// of it.
	if result.Instance.IsActive() {
		if err := s.propagateAutoAdvance(ctx, tenantID, userID, instance.ID); err != nil {
			return result, err
		}
		reloaded, err := s.instanceRepo.GetByID(ctx, tenantID, instance.ID)
		if err != nil {
			return result, err
		}
		if reloaded != nil {
			result.Instance = reloaded
		}
	}
	return result, nil
}

// UpdateMetadata merges new metadata into the instance and runs auto-advance
// propagation, which is how a workflow progresses without human action once
// a guard's condition becomes true.
func (s *approvalServiceImpl) UpdateMetadata(ctx context.Context, tenantID, userID, documentID string, metadata map[string]interface{}) (*entity.ApprovalInstance, error) {
	instance, err := s.instanceRepo.GetActiveByDocument(ctx, tenantID, documentID)
	if err != nil {
		return nil, err
	}
	if instance == nil {
		return nil, fmt.Errorf("document %s: %w", documentID, workflow.ErrInstanceNotActive)
	}

	merged, err := mergeMetadata(instance.Metadata, metadata)
	if err != nil {
		return nil, err
	}
	instance.Metadata = merged
	instance.UpdatedAt = time.Now().UTC()

	rows, err := s.instanceRepo.Advance(ctx, instance)
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, fmt.Errorf("instance %s: %w", instance.ID, workflow.ErrConflict)
	}
	instance.RowVersion++

	s.dispatcher.DispatchAsync(ctx, event.New(event.TypeMetadataUpdated, tenantID, userID, instance.ID, map[string]interface{}{
		"document_id": documentID,
	}))

	if err := s.propagateAutoAdvance(ctx, tenantID, userID, instance.ID); err != nil {
		return nil, err
	}
	return s.instanceRepo.GetByID(ctx, tenantID, instance.ID)
}

// GetInstance returns the most relevant instance for a document with its
// history.
func (s *approvalServiceImpl) GetInstance(ctx context.Context, tenantID, documentID string) (*InstanceDetail, error) {
	instance, err := s.instanceRepo.GetActiveByDocument(ctx, tenantID, documentID)
	if err != nil {
		return nil, err
	}
	if instance == nil {
		return nil, fmt.Errorf("document %s has no approval instance: %w", documentID, ErrNotFound)
	}

	steps, err := s.stepRepo.ListByInstance(ctx, instance.ID)
	if err != nil {
		return nil, err
	}

	detail := &InstanceDetail{Instance: instance, Steps: steps}
	if graph, err := s.loadGraph(ctx, instance); err == nil {
		detail.State = graph.NodeByID(instance.CurrentStateID)
	}
	return detail, nil
}

// ListPending returns the open steps assigned or delegated to a user.
func (s *approvalServiceImpl) ListPending(ctx context.Context, tenantID, userID string) ([]*entity.ApprovalStep, error) {
	return s.stepRepo.ListPendingByAssignee(ctx, tenantID, userID)
}

// applyTransition checks every precondition and commits one transition
// inside a single transaction. auto marks auto-advance hops, which skip the
// comment requirement (no user is present to supply one).
func (s *approvalServiceImpl) applyTransition(
	ctx context.Context,
	instance *entity.ApprovalInstance,
	userID, actionKey, comment, delegatedTo string,
	extraMetadata map[string]interface{},
	auto bool,
) (*TransitionResult, error) {
	if !instance.IsActive() {
		return nil, fmt.Errorf("instance %s is %s: %w", instance.ID, instance.Status, workflow.ErrInstanceNotActive)
	}

	graph, err := s.loadGraph(ctx, instance)
	if err != nil {
		return nil, err
	}

	matches := graph.ActionEdges(instance.CurrentStateID, actionKey)
	if len(matches) == 0 {
		return nil, fmt.Errorf("action %q in state %s: %w", actionKey, instance.CurrentStateID, workflow.ErrActionNotAvailable)
	}
	if len(matches) > 1 {
		// The validator guarantees uniqueness; a corrupt or unvalidated
		// graph is refused rather than silently picking one.
		return nil, fmt.Errorf("%w: %d transitions share action %q from state %s",
			workflow.ErrConfiguration, len(matches), actionKey, instance.CurrentStateID)
	}
	edge := matches[0]

	guardCtx, err := buildGuardContext(instance.Metadata, extraMetadata)
	if err != nil {
		return nil, err
	}
	if !s.guardSatisfied(ctx, instance, edge, guardCtx) {
		return nil, fmt.Errorf("action %q: %w", actionKey, workflow.ErrTransitionBlocked)
	}

	if edge.RequiresComment && comment == "" && !auto {
		return nil, fmt.Errorf("action %q: %w", actionKey, workflow.ErrCommentRequired)
	}

	target := graph.NodeByID(edge.Target)
	if target == nil {
		return nil, fmt.Errorf("%w: transition %s targets unknown state %s", workflow.ErrConfiguration, edge.ID, edge.Target)
	}

	now := time.Now().UTC()
	mergedMetadata, err := mergeMetadata(instance.Metadata, extraMetadata)
	if err != nil {
		return nil, err
	}

	var newStep *entity.ApprovalStep
	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		pending, err := s.stepRepo.GetPendingByInstance(txCtx, instance.ID)
		if err != nil {
			return err
		}
		if pending != nil {
			status := entity.StepStatusForAction(actionKey)
			if auto {
				status = entity.StepStatusApproved
			}
			if err := s.stepRepo.Complete(txCtx, pending.ID, status, actionKey, comment, delegatedTo, now); err != nil {
				return fmt.Errorf("complete step: %w", err)
			}
		}

		instance.CurrentStateID = target.ID
		instance.Metadata = mergedMetadata
		instance.UpdatedAt = now
		if target.IsFinal {
			instance.Status = entity.InstanceStatusCompleted
			instance.CompletedAt = &now
		}

		rows, err := s.instanceRepo.Advance(txCtx, instance)
		if err != nil {
			return fmt.Errorf("advance instance: %w", err)
		}
		if rows == 0 {
			return fmt.Errorf("instance %s: %w", instance.ID, workflow.ErrConflict)
		}
		instance.RowVersion++

		if !target.IsFinal {
			step, err := s.newPendingStep(txCtx, instance, *target, userID)
			if err != nil {
				return err
			}
			newStep = step
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &TransitionResult{Instance: instance, NewState: *target, Step: newStep}, nil
}

// propagateAutoAdvance chases auto-advance transitions from the instance's
// current state until none fire, the instance completes, or the hop budget
// runs out.
func (s *approvalServiceImpl) propagateAutoAdvance(ctx context.Context, tenantID, userID, instanceID string) error {
	for hops := 0; ; hops++ {
		instance, err := s.instanceRepo.GetByID(ctx, tenantID, instanceID)
		if err != nil {
			return err
		}
		if instance == nil || !instance.IsActive() {
			return nil
		}

		graph, err := s.loadGraph(ctx, instance)
		if err != nil {
			return err
		}

		guardCtx, err := buildGuardContext(instance.Metadata, nil)
		if err != nil {
			return err
		}

		var fired *workflow.Edge
		for _, edge := range graph.AutoAdvanceEdges(instance.CurrentStateID) {
			if s.guardSatisfied(ctx, instance, edge, guardCtx) {
				e := edge
				fired = &e
				break
			}
		}
		if fired == nil {
			return nil
		}

		if hops >= maxAutoAdvanceHops {
			s.logger.Error("Auto-advance hop budget exceeded",
				"instance_id", instanceID, "state_id", instance.CurrentStateID)
			return fmt.Errorf("%w: auto-advance exceeded %d hops (cycle?)", workflow.ErrConfiguration, maxAutoAdvanceHops)
		}

		result, err := s.applyTransition(ctx, instance, userID, fired.ActionKey, "", "", nil, true)
		if err != nil {
			return err
		}

		s.dispatcher.DispatchAsync(ctx, event.New(event.TypeAutoAdvanced, tenantID, userID, instanceID, map[string]interface{}{
			"action_key": fired.ActionKey,
			"state_id":   result.NewState.ID,
		}))
	}
}

// guardSatisfied evaluates an edge guard. Definitions can opt into
// fail-closed guard handling via strict_guards; the default is the
// permissive legacy policy.
func (s *approvalServiceImpl) guardSatisfied(ctx context.Context, instance *entity.ApprovalInstance, edge workflow.Edge, guardCtx condition.Context) bool {
	if !edge.HasGuard() {
		return true
	}

	policy := condition.FailOpen
	if wf, err := s.workflowRepo.GetByID(ctx, instance.TenantID, instance.WorkflowID); err == nil && wf != nil && wf.StrictGuards {
		policy = condition.FailClosed
	}

	outcome := condition.Evaluate(condition.Parse([]byte(edge.GuardExpression)), guardCtx, policy)
	if s.metrics != nil {
		s.metrics.ConditionEvaluated(outcome.String())
	}
	return outcome.Bool(policy)
}

// loadGraph returns the graph snapshot the instance is pinned to, falling
// back to the definition's current graph for instances created before
// snapshots existed.
func (s *approvalServiceImpl) loadGraph(ctx context.Context, instance *entity.ApprovalInstance) (*workflow.Graph, error) {
	version, err := s.workflowRepo.GetVersion(ctx, instance.WorkflowID, instance.WorkflowVersion)
	if err != nil {
		return nil, err
	}
	if version != nil {
		return workflow.ParseGraph([]byte(version.GraphJSON))
	}

	wf, err := s.workflowRepo.GetByID(ctx, instance.TenantID, instance.WorkflowID)
	if err != nil {
		return nil, err
	}
	if wf == nil {
		return nil, fmt.Errorf("workflow %s: %w", instance.WorkflowID, ErrNotFound)
	}
	return workflow.ParseGraph([]byte(wf.GraphJSON))
}

func (s *approvalServiceImpl) createPendingStep(ctx context.Context, instance *entity.ApprovalInstance, node workflow.Node, userID string) error {
	_, err := s.newPendingStep(ctx, instance, node, userID)
	return err
}

func (s *approvalServiceImpl) newPendingStep(ctx context.Context, instance *entity.ApprovalInstance, node workflow.Node, userID string) (*entity.ApprovalStep, error) {
	now := time.Now().UTC()
	step := &entity.ApprovalStep{
		ID:         uuid.NewString(),
		InstanceID: instance.ID,
		StateID:    node.ID,
		Status:     entity.StepStatusPending,
		AssignedTo: userID,
		AssignedAt: now,
		CreatedAt:  now,
	}
	if node.HasSLA() {
		due := now.Add(time.Duration(*node.SLAHours) * time.Hour)
		step.DueAt = &due
	}
	if err := s.stepRepo.Create(ctx, step); err != nil {
		return nil, fmt.Errorf("create pending step: %w", err)
	}
	return step, nil
}

func (s *approvalServiceImpl) observeTransition(result string, started time.Time) {
	if s.metrics != nil {
		s.metrics.TransitionObserved(result, time.Since(started).Seconds())
	}
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, workflow.ErrInstanceNotActive):
		return "not_active"
	case errors.Is(err, workflow.ErrActionNotAvailable):
		return "action_not_available"
	case errors.Is(err, workflow.ErrTransitionBlocked):
		return "blocked"
	case errors.Is(err, workflow.ErrCommentRequired):
		return "comment_required"
	case errors.Is(err, workflow.ErrConflict):
		return "conflict"
	case errors.Is(err, workflow.ErrConfiguration):
		return "configuration_error"
	default:
		return "error"
	}
}

// buildGuardContext constructs a fresh, caller-owned evaluation context from
// the instance metadata and the action payload. Nothing is shared across
// concurrent evaluations.
func buildGuardContext(metadataJSON string, extra map[string]interface{}) (condition.Context, error) {
	base := make(map[string]interface{})
	if metadataJSON != "" {
		if err := json.Unmarshal([]byte(metadataJSON), &base); err != nil {
			return nil, fmt.Errorf("decode instance metadata: %w", err)
		}
	}
	for k, v := range extra {
		base[k] = v
	}
	return base, nil
}

// mergeMetadata merges the action payload into the stored metadata JSON.
func mergeMetadata(metadataJSON string, extra map[string]interface{}) (string, error) {
	if len(extra) == 0 {
		if metadataJSON == "" {
			return "{}", nil
		}
		return metadataJSON, nil
	}
	merged, err := buildGuardContext(metadataJSON, extra)
	if err != nil {
		return "", err
	}
	return marshalMetadata(merged)
}

func marshalMetadata(m map[string]interface{}) (string, error) {
	if m == nil {
		return "{}", nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}
	return string(data), nil
}

