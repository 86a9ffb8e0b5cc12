package service

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/docuflow/docuflow/internal/application/port"
	"github.com/docuflow/docuflow/internal/domain/entity"
	"github.com/docuflow/docuflow/internal/domain/event"
	"github.com/docuflow/docuflow/pkg/utils"
)

// DocumentService manages uploaded PDF documents.
type DocumentService interface {
	Upload(ctx context.Context, tenantID, userID, fileName string, r io.Reader) (*entity.Document, error)
	Get(ctx context.Context, tenantID, id string) (*entity.Document, error)
	List(ctx context.Context, tenantID string, limit, offset int) ([]*entity.Document, error)
	OpenFile(ctx context.Context, tenantID, id string) (io.ReadCloser, error)
}

type documentServiceImpl struct {
	documentRepo port.DocumentRepository
	storage      port.FileStorage
	renderer     port.PageRenderer
	dispatcher   Dispatcher
	logger       Logger
}

// NewDocumentService creates a new DocumentService.
func NewDocumentService(
	documentRepo port.DocumentRepository,
	storage port.FileStorage,
	renderer port.PageRenderer,
	dispatcher Dispatcher,
	logger Logger,
) DocumentService {
	return &documentServiceImpl{
		documentRepo: documentRepo,
		storage:      storage,
		renderer:     renderer,
		dispatcher:   dispatcher,
		logger:       logger,
	}
}

// Upload stores the file, counts its pages and persists the document record.
// A file whose pages cannot be counted is kept but marked failed.
func (s *documentServiceImpl) Upload(ctx context.Context, tenantID, userID, fileName string, r io.Reader) (*entity.Document, error) {
	if err := utils.ValidateUploadFileName(fileName); err != nil {
		return nil, err
	}

	path, size, err := s.storage.Save(fileName, r)
	if err != nil {
		s.logger.Error("Failed to store uploaded file", "error", err, "file_name", fileName)
		return nil, fmt.Errorf("store uploaded file: %w", err)
	}

	status := entity.DocumentStatusReady
	pages, err := s.renderer.PageCount(path)
	if err != nil {
		s.logger.Error("Failed to count pages", "error", err, "file_name", fileName)
		status = entity.DocumentStatusFailed
		pages = 0
	}

	now := time.Now().UTC()
	doc := &entity.Document{
		ID:         uuid.NewString(),
		TenantID:   tenantID,
		FileName:   utils.SanitizeString(fileName),
		FilePath:   path,
		FileSize:   size,
		PageCount:  pages,
		Status:     status,
		UploadedBy: userID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.documentRepo.Create(ctx, doc); err != nil {
		// Keep storage consistent with the database.
		if rmErr := s.storage.Remove(path); rmErr != nil {
			s.logger.Error("Failed to remove orphaned file", "error", rmErr, "path", path)
		}
		return nil, err
	}

	s.dispatcher.DispatchAsync(ctx, event.New(event.TypeDocumentUploaded, tenantID, userID, doc.ID, map[string]interface{}{
		"file_name":  doc.FileName,
		"page_count": doc.PageCount,
		"status":     doc.Status,
	}))

	s.logger.Info("Document uploaded", "id", doc.ID, "file_name", doc.FileName, "pages", pages)
	return doc, nil
}

// Get retrieves a document.
func (s *documentServiceImpl) Get(ctx context.Context, tenantID, id string) (*entity.Document, error) {
	doc, err := s.documentRepo.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	return doc, nil
}

// List retrieves documents of a tenant.
func (s *documentServiceImpl) List(ctx context.Context, tenantID string, limit, offset int) ([]*entity.Document, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.documentRepo.List(ctx, tenantID, limit, offset)
}

// OpenFile opens the stored file of a document for reading.
func (s *documentServiceImpl) OpenFile(ctx context.Context, tenantID, id string) (io.ReadCloser, error) {
	doc, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	return s.storage.Open(doc.FilePath)
}
