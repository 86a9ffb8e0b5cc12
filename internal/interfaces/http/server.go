// Package http provides the HTTP adapter for the application layer.
// This is a thin adapter layer that translates HTTP requests to application service calls.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/docuflow/docuflow/internal/application/service"
	"github.com/docuflow/docuflow/internal/export"
)

// Logger interface for logging operations
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host          string
	Port          int
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	MaxUploadSize int64
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:          "0.0.0.0",
		Port:          8080,
		ReadTimeout:   30 * time.Second,
		WriteTimeout:  30 * time.Second,
		MaxUploadSize: 32 << 20,
	}
}

// Server is the HTTP server adapter
type Server struct {
	config            ServerConfig
	httpServer        *http.Server
	router            *gin.Engine
	workflowService   service.WorkflowService
	approvalService   service.ApprovalService
	documentService   service.DocumentService
	extractionService service.ExtractionService
	auditService      service.AuditService
	exporter          *export.Exporter
	logger            Logger
}

// NewServer creates a new HTTP server with the given services
func NewServer(
	config ServerConfig,
	workflowService service.WorkflowService,
	approvalService service.ApprovalService,
	documentService service.DocumentService,
	extractionService service.ExtractionService,
	auditService service.AuditService,
	exporter *export.Exporter,
	logger Logger,
) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.MaxMultipartMemory = config.MaxUploadSize

	server := &Server{
		config:            config,
		router:            router,
		workflowService:   workflowService,
		approvalService:   approvalService,
		documentService:   documentService,
		extractionService: extractionService,
		auditService:      auditService,
		exporter:          exporter,
		logger:            logger,
	}

	server.setupMiddleware()
	server.setupRoutes()

	return server
}

// setupMiddleware configures middleware for the router
func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(s.loggingMiddleware())
	s.router.Use(corsMiddleware())
}

// corsMiddleware adds CORS headers
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Tenant-ID, X-User-ID")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// loggingMiddleware creates a logging middleware
func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		// Process request
		c.Next()

		// Log request details
		latency := time.Since(start)
		status := c.Writer.Status()

		s.logger.Info("HTTP request",
			"method", method,
			"path", path,
			"status", status,
			"latency", latency.String(),
			"client_ip", c.ClientIP(),
		)
	}
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	handlers := NewHandlers(
		s.workflowService,
		s.approvalService,
		s.documentService,
		s.extractionService,
		s.auditService,
		s.exporter,
		s.logger,
	)

	// Health check and metrics
	s.router.GET("/health", handlers.HealthCheck)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API routes require tenant identification
	api := s.router.Group("/api", tenantMiddleware())
	{
		workflows := api.Group("/workflows")
		{
			workflows.POST("", handlers.CreateWorkflow)
			workflows.GET("", handlers.ListWorkflows)
			workflows.GET("/:id", handlers.GetWorkflow)
			workflows.PUT("/:id", handlers.UpdateWorkflow)
			workflows.DELETE("/:id", handlers.DeleteWorkflow)
			workflows.POST("/validate", handlers.ValidateWorkflow)
			workflows.POST("/preview-condition", handlers.PreviewCondition)
		}

		approvals := api.Group("/approvals")
		{
			approvals.POST("/start", handlers.StartApproval)
			approvals.POST("/action", handlers.ExecuteTransition)
			approvals.GET("/pending", handlers.ListPendingApprovals)
			approvals.GET("/documents/:id", handlers.GetApprovalInstance)
			approvals.PUT("/documents/:id/metadata", handlers.UpdateApprovalMetadata)
			approvals.POST("/documents/:id/sync-fields", handlers.SyncExtractedFields)
		}

		documents := api.Group("/documents")
		{
			documents.POST("", handlers.UploadDocument)
			documents.GET("", handlers.ListDocuments)
			documents.GET("/:id", handlers.GetDocument)
			documents.GET("/:id/file", handlers.DownloadDocument)
			documents.POST("/:id/extract", handlers.ExtractDocument)
			documents.GET("/:id/records", handlers.ListExtractionRecords)
			documents.GET("/:id/export", handlers.ExportDocument)
		}

		templates := api.Group("/templates")
		{
			templates.POST("", handlers.CreateTemplate)
			templates.GET("", handlers.ListTemplates)
			templates.GET("/:id", handlers.GetTemplate)
			templates.DELETE("/:id", handlers.DeleteTemplate)
		}

		api.PUT("/extraction-records/:id/correction", handlers.CorrectExtractionRecord)

		api.GET("/audit-logs", handlers.ListAuditLogs)
	}
}

// tenantMiddleware requires the tenant header on every API request and
// stashes tenant/user for handlers.
func tenantMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID := c.GetHeader("X-Tenant-ID")
		if tenantID == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, Response{
				Success: false,
				Error:   "X-Tenant-ID header is required",
			})
			return
		}
		c.Set(ctxTenantID, tenantID)
		c.Set(ctxUserID, c.GetHeader("X-User-ID"))
		c.Next()
	}
}

// Start starts the HTTP server
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("Starting HTTP server", "address", addr)

	// Start server in goroutine
	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for context cancellation or error
	select {
	case <-ctx.Done():
		s.logger.Info("HTTP server shutdown requested")
		return s.Stop()
	case err := <-errCh:
		s.logger.Error("HTTP server error", "error", err)
		return err
	}
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}

	s.logger.Info("Stopping HTTP server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
		return err
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

// Router returns the underlying gin router (for testing)
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Address returns the server address
func (s *Server) Address() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}
