package http

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/docuflow/docuflow/internal/application/port"
	"github.com/docuflow/docuflow/internal/application/service"
	"github.com/docuflow/docuflow/internal/domain/entity"
	"github.com/docuflow/docuflow/internal/domain/workflow"
	"github.com/docuflow/docuflow/internal/export"
)

// Context keys set by the tenant middleware.
const (
	ctxTenantID = "tenant_id"
	ctxUserID   = "user_id"
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	workflowService   service.WorkflowService
	approvalService   service.ApprovalService
	documentService   service.DocumentService
	extractionService service.ExtractionService
	auditService      service.AuditService
	exporter          *export.Exporter
	logger            Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(
	workflowService service.WorkflowService,
	approvalService service.ApprovalService,
	documentService service.DocumentService,
	extractionService service.ExtractionService,
	auditService service.AuditService,
	exporter *export.Exporter,
	logger Logger,
) *Handlers {
	return &Handlers{
		workflowService:   workflowService,
		approvalService:   approvalService,
		documentService:   documentService,
		extractionService: extractionService,
		auditService:      auditService,
		exporter:          exporter,
		logger:            logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

func tenantOf(c *gin.Context) string { return c.GetString(ctxTenantID) }
func userOf(c *gin.Context) string   { return c.GetString(ctxUserID) }

// respondError maps domain errors to HTTP statuses
func (h *Handlers) respondError(c *gin.Context, err error) {
	var vErr *service.ValidationFailedError
	if errors.As(err, &vErr) {
		c.JSON(http.StatusUnprocessableEntity, Response{
			Success: false,
			Data:    vErr.Result,
			Error:   vErr.Error(),
		})
		return
	}

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, workflow.ErrActionNotAvailable):
		status = http.StatusNotFound
	case errors.Is(err, workflow.ErrCommentRequired):
		status = http.StatusBadRequest
	case errors.Is(err, workflow.ErrTransitionBlocked):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, workflow.ErrInstanceNotActive),
		errors.Is(err, workflow.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, workflow.ErrConfiguration):
		status = http.StatusInternalServerError
	}

	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed", "error", err, "path", c.Request.URL.Path)
	}
	c.JSON(status, Response{Success: false, Error: err.Error()})
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: HealthResponse{
			Status:    "healthy",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Version:   "1.0.0",
		},
	})
}

// --- Workflows ---

// CreateWorkflow handles POST /api/workflows
func (h *Handlers) CreateWorkflow(c *gin.Context) {
	var in service.WorkflowInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body"})
		return
	}
	if in.Name == "" {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "name is required"})
		return
	}

	wf, err := h.workflowService.Create(c.Request.Context(), tenantOf(c), userOf(c), in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, Response{Success: true, Data: wf})
}

// ListWorkflows handles GET /api/workflows
func (h *Handlers) ListWorkflows(c *gin.Context) {
	workflows, err := h.workflowService.List(c.Request.Context(), tenantOf(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: workflows})
}

// GetWorkflow handles GET /api/workflows/:id
func (h *Handlers) GetWorkflow(c *gin.Context) {
	wf, err := h.workflowService.Get(c.Request.Context(), tenantOf(c), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: wf})
}

// UpdateWorkflow handles PUT /api/workflows/:id
func (h *Handlers) UpdateWorkflow(c *gin.Context) {
	var in service.WorkflowInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body"})
		return
	}

	wf, err := h.workflowService.Update(c.Request.Context(), tenantOf(c), userOf(c), c.Param("id"), in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: wf})
}

// DeleteWorkflow handles DELETE /api/workflows/:id
func (h *Handlers) DeleteWorkflow(c *gin.Context) {
	if err := h.workflowService.Delete(c.Request.Context(), tenantOf(c), userOf(c), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true})
}

// ValidateWorkflowRequest carries a graph to validate.
type ValidateWorkflowRequest struct {
	GraphJSON string `json:"graph_json" binding:"required"`
}

// ValidateWorkflow handles POST /api/workflows/validate
func (h *Handlers) ValidateWorkflow(c *gin.Context) {
	var req ValidateWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "graph_json is required"})
		return
	}

	result, err := h.workflowService.Validate(req.GraphJSON)
	if err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: result})
}

// PreviewConditionRequest carries a guard expression and sample data.
type PreviewConditionRequest struct {
	Expression string                 `json:"expression" binding:"required"`
	Sample     map[string]interface{} `json:"sample"`
	Strict     bool                   `json:"strict"`
}

// PreviewCondition handles POST /api/workflows/preview-condition
func (h *Handlers) PreviewCondition(c *gin.Context) {
	var req PreviewConditionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "expression is required"})
		return
	}

	preview := h.workflowService.PreviewCondition(req.Expression, req.Sample, req.Strict)
	c.JSON(http.StatusOK, Response{Success: true, Data: preview})
}

// --- Approvals ---

// StartApproval handles POST /api/approvals/start
func (h *Handlers) StartApproval(c *gin.Context) {
	var in service.StartApprovalInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body"})
		return
	}
	if in.DocumentID == "" || in.WorkflowID == "" {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "document_id and workflow_id are required"})
		return
	}

	instance, err := h.approvalService.StartApproval(c.Request.Context(), tenantOf(c), userOf(c), in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, Response{Success: true, Data: instance})
}

// ExecuteTransition handles POST /api/approvals/action
func (h *Handlers) ExecuteTransition(c *gin.Context) {
	var in service.TransitionInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body"})
		return
	}
	if in.DocumentID == "" || in.ActionKey == "" {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "document_id and action_key are required"})
		return
	}

	result, err := h.approvalService.ExecuteTransition(c.Request.Context(), tenantOf(c), userOf(c), in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: result})
}

// GetApprovalInstance handles GET /api/approvals/documents/:id
func (h *Handlers) GetApprovalInstance(c *gin.Context) {
	detail, err := h.approvalService.GetInstance(c.Request.Context(), tenantOf(c), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: detail})
}

// ListPendingApprovals handles GET /api/approvals/pending
func (h *Handlers) ListPendingApprovals(c *gin.Context) {
	userID := userOf(c)
	if userID == "" {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "X-User-ID header is required"})
		return
	}

	steps, err := h.approvalService.ListPending(c.Request.Context(), tenantOf(c), userID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: steps})
}

// SyncExtractedFields handles POST /api/approvals/documents/:id/sync-fields.
// It copies the document's effective extraction values into the instance
// metadata so guards can reference them (as "fields.<blockKey>"), which also
// runs auto-advance propagation.
func (h *Handlers) SyncExtractedFields(c *gin.Context) {
	fields, err := h.extractionService.GuardContext(c.Request.Context(), tenantOf(c), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	instance, err := h.approvalService.UpdateMetadata(c.Request.Context(), tenantOf(c), userOf(c), c.Param("id"), fields)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: instance})
}

// UpdateMetadataRequest carries a metadata patch.
type UpdateMetadataRequest struct {
	Metadata map[string]interface{} `json:"metadata" binding:"required"`
}

// UpdateApprovalMetadata handles PUT /api/approvals/documents/:id/metadata
func (h *Handlers) UpdateApprovalMetadata(c *gin.Context) {
	var req UpdateMetadataRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "metadata is required"})
		return
	}

	instance, err := h.approvalService.UpdateMetadata(c.Request.Context(), tenantOf(c), userOf(c), c.Param("id"), req.Metadata)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: instance})
}

// --- Documents ---

// UploadDocument handles POST /api/documents
func (h *Handlers) UploadDocument(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "file is required"})
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		h.respondError(c, err)
		return
	}
	defer f.Close()

	doc, err := h.documentService.Upload(c.Request.Context(), tenantOf(c), userOf(c), fileHeader.Filename, f)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, Response{Success: true, Data: doc})
}

// ListDocumentsRequest represents query parameters for listing documents
type ListDocumentsRequest struct {
	Limit  int `form:"limit"`
	Offset int `form:"offset"`
}

// ListDocuments handles GET /api/documents
func (h *Handlers) ListDocuments(c *gin.Context) {
	var req ListDocumentsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid query parameters"})
		return
	}
	if req.Offset < 0 {
		req.Offset = 0
	}

	docs, err := h.documentService.List(c.Request.Context(), tenantOf(c), req.Limit, req.Offset)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: docs})
}

// GetDocument handles GET /api/documents/:id
func (h *Handlers) GetDocument(c *gin.Context) {
	doc, err := h.documentService.Get(c.Request.Context(), tenantOf(c), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: doc})
}

// DownloadDocument handles GET /api/documents/:id/file
func (h *Handlers) DownloadDocument(c *gin.Context) {
	doc, err := h.documentService.Get(c.Request.Context(), tenantOf(c), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	f, err := h.documentService.OpenFile(c.Request.Context(), tenantOf(c), doc.ID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	defer f.Close()

	c.Header("Content-Type", "application/pdf")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", doc.FileName))
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, f); err != nil {
		h.logger.Error("Document download failed", "error", err, "document_id", doc.ID)
	}
}

// ExtractDocumentRequest carries the blocks to read from a document, either
// inline or by referencing a stored template.
type ExtractDocumentRequest struct {
	Blocks     []port.BlockSpec `json:"blocks"`
	TemplateID string           `json:"template_id"`
}

// ExtractDocument handles POST /api/documents/:id/extract
func (h *Handlers) ExtractDocument(c *gin.Context) {
	var req ExtractDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body"})
		return
	}
	if len(req.Blocks) == 0 && req.TemplateID == "" {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "blocks or template_id is required"})
		return
	}
	if len(req.Blocks) > 0 && req.TemplateID != "" {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "blocks and template_id are mutually exclusive"})
		return
	}

	var records []*entity.ExtractionRecord
	var err error
	if req.TemplateID != "" {
		records, err = h.extractionService.ExtractWithTemplate(c.Request.Context(), tenantOf(c), userOf(c), c.Param("id"), req.TemplateID)
	} else {
		records, err = h.extractionService.Extract(c.Request.Context(), tenantOf(c), userOf(c), c.Param("id"), req.Blocks)
	}
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: records})
}

// --- Extraction templates ---

// CreateTemplate handles POST /api/templates
func (h *Handlers) CreateTemplate(c *gin.Context) {
	var in service.TemplateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body"})
		return
	}

	tpl, err := h.extractionService.CreateTemplate(c.Request.Context(), tenantOf(c), userOf(c), in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, Response{Success: true, Data: tpl})
}

// ListTemplates handles GET /api/templates
func (h *Handlers) ListTemplates(c *gin.Context) {
	templates, err := h.extractionService.ListTemplates(c.Request.Context(), tenantOf(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: templates})
}

// GetTemplate handles GET /api/templates/:id
func (h *Handlers) GetTemplate(c *gin.Context) {
	tpl, err := h.extractionService.GetTemplate(c.Request.Context(), tenantOf(c), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: tpl})
}

// DeleteTemplate handles DELETE /api/templates/:id
func (h *Handlers) DeleteTemplate(c *gin.Context) {
	if err := h.extractionService.DeleteTemplate(c.Request.Context(), tenantOf(c), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true})
}

// ListExtractionRecords handles GET /api/documents/:id/records
func (h *Handlers) ListExtractionRecords(c *gin.Context) {
	records, err := h.extractionService.ListRecords(c.Request.Context(), tenantOf(c), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: records})
}

// ExportDocument handles GET /api/documents/:id/export
func (h *Handlers) ExportDocument(c *gin.Context) {
	format := export.Format(c.DefaultQuery("format", string(export.FormatXLSX)))
	if format != export.FormatXLSX && format != export.FormatCSV {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "format must be xlsx or csv"})
		return
	}

	doc, err := h.documentService.Get(c.Request.Context(), tenantOf(c), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	records, err := h.extractionService.ListRecords(c.Request.Context(), tenantOf(c), doc.ID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	contentType := "text/csv"
	if format == export.FormatXLSX {
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	c.Header("Content-Type", contentType)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", doc.FileName+"."+string(format)))
	c.Status(http.StatusOK)

	if err := h.exporter.WriteRecords(c.Writer, doc, records, format); err != nil {
		h.logger.Error("Export failed", "error", err, "document_id", doc.ID)
	}
}

// CorrectionRequest carries a reviewer's corrected value.
type CorrectionRequest struct {
	CorrectedValue string `json:"corrected_value" binding:"required"`
}

// CorrectExtractionRecord handles PUT /api/extraction-records/:id/correction
func (h *Handlers) CorrectExtractionRecord(c *gin.Context) {
	var req CorrectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "corrected_value is required"})
		return
	}

	rec, err := h.extractionService.Correct(c.Request.Context(), tenantOf(c), userOf(c), c.Param("id"), req.CorrectedValue)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: rec})
}

// --- Audit logs ---

// ListAuditLogsRequest represents query parameters for listing audit logs
type ListAuditLogsRequest struct {
	UserID       string `form:"user_id"`
	ResourceType string `form:"resource_type"`
	ResourceID   string `form:"resource_id"`
	Limit        int    `form:"limit"`
	Offset       int    `form:"offset"`
}

// ListAuditLogs handles GET /api/audit-logs
func (h *Handlers) ListAuditLogs(c *gin.Context) {
	var req ListAuditLogsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid query parameters"})
		return
	}

	logs, err := h.auditService.List(c.Request.Context(), tenantOf(c), port.AuditFilter{
		UserID:       req.UserID,
		ResourceType: req.ResourceType,
		ResourceID:   req.ResourceID,
		Limit:        req.Limit,
		Offset:       req.Offset,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: logs})
}
