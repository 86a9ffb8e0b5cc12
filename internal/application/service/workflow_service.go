package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/docuflow/docuflow/internal/application/port"
	"github.com/docuflow/docuflow/internal/domain/condition"
	"github.com/docuflow/docuflow/internal/domain/entity"
	"github.com/docuflow/docuflow/internal/domain/event"
	"github.com/docuflow/docuflow/internal/domain/workflow"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// Dispatcher is the event fan-out the services emit to.
type Dispatcher interface {
	Dispatch(ctx context.Context, evt *event.Event) error
	DispatchAsync(ctx context.Context, evt *event.Event)
}

// ErrNotFound is returned when a requested resource does not exist.
var ErrNotFound = fmt.Errorf("resource not found")

// ValidationFailedError carries the full diagnostic set of a rejected graph.
type ValidationFailedError struct {
	Result workflow.ValidationResult
}

func (e *ValidationFailedError) Error() string {
	return fmt.Sprintf("workflow graph validation failed with %d error(s)", len(e.Result.Errors))
}

// WorkflowInput is the payload for creating or updating a definition.
type WorkflowInput struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	IsActive     *bool  `json:"is_active,omitempty"`
	StrictGuards *bool  `json:"strict_guards,omitempty"`
	GraphJSON    string `json:"graph_json"`
}

// ConditionPreview is the result of a guard dry-run against sample data.
type ConditionPreview struct {
	Outcome   string `json:"outcome"`
	Satisfied bool   `json:"satisfied"`
	Error     string `json:"error,omitempty"`
}

// WorkflowService manages workflow definitions and exposes the validator.
type WorkflowService interface {
	Create(ctx context.Context, tenantID, userID string, in WorkflowInput) (*entity.WorkflowDefinition, error)
	Get(ctx context.Context, tenantID, id string) (*entity.WorkflowDefinition, error)
	List(ctx context.Context, tenantID string) ([]*entity.WorkflowDefinition, error)
	Update(ctx context.Context, tenantID, userID, id string, in WorkflowInput) (*entity.WorkflowDefinition, error)
	Delete(ctx context.Context, tenantID, userID, id string) error

	Validate(graphJSON string) (workflow.ValidationResult, error)
	PreviewCondition(expr string, sample map[string]interface{}, strict bool) ConditionPreview
}

type workflowServiceImpl struct {
	workflowRepo port.WorkflowRepository
	instanceRepo port.InstanceRepository
	txManager    port.TransactionManager
	dispatcher   Dispatcher
	logger       Logger
}

// NewWorkflowService creates a new WorkflowService.
func NewWorkflowService(
	workflowRepo port.WorkflowRepository,
	instanceRepo port.InstanceRepository,
	txManager port.TransactionManager,
	dispatcher Dispatcher,
	logger Logger,
) WorkflowService {
	return &workflowServiceImpl{
		workflowRepo: workflowRepo,
		instanceRepo: instanceRepo,
		txManager:    txManager,
		dispatcher:   dispatcher,
		logger:       logger,
	}
}

// Create validates the graph and persists a new definition at version 1
// together with its immutable snapshot.
func (s *workflowServiceImpl) Create(ctx context.Context, tenantID, userID string, in WorkflowInput) (*entity.WorkflowDefinition, error) {
	graphJSON := in.GraphJSON
	if graphJSON == "" {
		graphJSON = `{"nodes":[],"edges":[]}`
	}

	if in.GraphJSON != "" {
		if err := s.checkGraph(graphJSON); err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC()
	wf := &entity.WorkflowDefinition{
		ID:          uuid.NewString(),
		TenantID:    tenantID,
		Name:        in.Name,
		Description: in.Description,
		Version:     1,
		IsActive:    in.IsActive == nil || *in.IsActive,
		GraphJSON:   graphJSON,
		CreatedBy:   userID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if in.StrictGuards != nil {
		wf.StrictGuards = *in.StrictGuards
	}

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.workflowRepo.Create(txCtx, wf); err != nil {
			return fmt.Errorf("create workflow: %w", err)
		}
		return s.workflowRepo.CreateVersion(txCtx, &entity.WorkflowVersion{
			ID:         uuid.NewString(),
			WorkflowID: wf.ID,
			Version:    1,
			GraphJSON:  graphJSON,
			CreatedAt:  now,
		})
	})
	if err != nil {
		s.logger.Error("Failed to create workflow", "error", err, "tenant_id", tenantID)
		return nil, err
	}

	s.dispatcher.DispatchAsync(ctx, event.New(event.TypeWorkflowSaved, tenantID, userID, wf.ID, map[string]interface{}{
		"name":    wf.Name,
		"version": wf.Version,
	}))

	s.logger.Info("Workflow created", "id", wf.ID, "name", wf.Name)
	return wf, nil
}

// Get retrieves a single definition.
func (s *workflowServiceImpl) Get(ctx context.Context, tenantID, id string) (*entity.WorkflowDefinition, error) {
	wf, err := s.workflowRepo.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if wf == nil {
		return nil, fmt.Errorf("workflow %s: %w", id, ErrNotFound)
	}
	return wf, nil
}

// List retrieves all definitions of a tenant.
func (s *workflowServiceImpl) List(ctx context.Context, tenantID string) ([]*entity.WorkflowDefinition, error) {
	return s.workflowRepo.List(ctx, tenantID)
}

// Update validates the new graph and persists it. When the definition has
// active instances the version is bumped and a fresh snapshot written, so
// those instances keep running against the graph they were created with.
func (s *workflowServiceImpl) Update(ctx context.Context, tenantID, userID, id string, in WorkflowInput) (*entity.WorkflowDefinition, error) {
	wf, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	if in.GraphJSON != "" {
		if err := s.checkGraph(in.GraphJSON); err != nil {
			return nil, err
		}
	}

	if in.Name != "" {
		wf.Name = in.Name
	}
	if in.Description != "" {
		wf.Description = in.Description
	}
	if in.IsActive != nil {
		wf.IsActive = *in.IsActive
	}
	if in.StrictGuards != nil {
		wf.StrictGuards = *in.StrictGuards
	}

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if in.GraphJSON != "" && in.GraphJSON != wf.GraphJSON {
			active, err := s.instanceRepo.CountActiveByWorkflow(txCtx, wf.ID)
			if err != nil {
				return fmt.Errorf("count active instances: %w", err)
			}
			wf.GraphJSON = in.GraphJSON
			if active > 0 {
				wf.Version++
			}
			if err := s.workflowRepo.CreateVersion(txCtx, &entity.WorkflowVersion{
				ID:         uuid.NewString(),
				WorkflowID: wf.ID,
				Version:    wf.Version,
				GraphJSON:  wf.GraphJSON,
				CreatedAt:  time.Now().UTC(),
			}); err != nil {
				return fmt.Errorf("snapshot workflow version: %w", err)
			}
		}
		wf.UpdatedAt = time.Now().UTC()
		return s.workflowRepo.Update(txCtx, wf)
	})
	if err != nil {
		s.logger.Error("Failed to update workflow", "error", err, "id", id)
		return nil, err
	}

	s.dispatcher.DispatchAsync(ctx, event.New(event.TypeWorkflowSaved, tenantID, userID, wf.ID, map[string]interface{}{
		"name":    wf.Name,
		"version": wf.Version,
	}))

	return wf, nil
}

// Delete removes a definition. Definitions with active instances cannot be
// deleted.
func (s *workflowServiceImpl) Delete(ctx context.Context, tenantID, userID, id string) error {
	wf, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return err
	}

	active, err := s.instanceRepo.CountActiveByWorkflow(ctx, wf.ID)
	if err != nil {
		return fmt.Errorf("count active instances: %w", err)
	}
	if active > 0 {
		return fmt.Errorf("workflow %s has %d active approval instance(s): %w", id, active, workflow.ErrConfiguration)
	}

	if err := s.workflowRepo.Delete(ctx, tenantID, id); err != nil {
		s.logger.Error("Failed to delete workflow", "error", err, "id", id)
		return err
	}
	s.logger.Info("Workflow deleted", "id", id)
	return nil
}

// Validate parses a graph and runs the static analysis.
func (s *workflowServiceImpl) Validate(graphJSON string) (workflow.ValidationResult, error) {
	g, err := workflow.ParseGraph([]byte(graphJSON))
	if err != nil {
		return workflow.ValidationResult{}, err
	}
	return workflow.Validate(g.Nodes, g.Edges), nil
}

// PreviewCondition dry-runs a guard expression against sample data, for the
// definition editor's "would this pass" preview.
func (s *workflowServiceImpl) PreviewCondition(expr string, sample map[string]interface{}, strict bool) ConditionPreview {
	if strict {
		parsed, err := condition.ParseStrict([]byte(expr))
		if err != nil {
			return ConditionPreview{Outcome: condition.Indeterminate.String(), Error: err.Error()}
		}
		outcome := condition.Evaluate(parsed, sample, condition.FailClosed)
		return ConditionPreview{Outcome: outcome.String(), Satisfied: outcome.Bool(condition.FailClosed)}
	}

	outcome := condition.Evaluate(condition.Parse([]byte(expr)), sample, condition.FailOpen)
	return ConditionPreview{Outcome: outcome.String(), Satisfied: outcome.Bool(condition.FailOpen)}
}

// checkGraph rejects graphs that do not parse or fail validation with hard
// errors. Warnings never block a save.
func (s *workflowServiceImpl) checkGraph(graphJSON string) error {
	if !json.Valid([]byte(graphJSON)) {
		return fmt.Errorf("graph is not valid JSON")
	}
	result, err := s.Validate(graphJSON)
	if err != nil {
		return err
	}
	if !result.IsValid {
		return &ValidationFailedError{Result: result}
	}
	return nil
}
