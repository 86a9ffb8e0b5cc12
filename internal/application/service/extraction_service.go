package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/docuflow/docuflow/internal/application/port"
	"github.com/docuflow/docuflow/internal/domain/entity"
	"github.com/docuflow/docuflow/internal/domain/event"
)

// TemplateInput carries an extraction template to create.
type TemplateInput struct {
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Blocks      []port.BlockSpec `json:"blocks"`
}

// ExtractionService runs field extraction over document page regions and
// manages the resulting records and the reusable block templates.
type ExtractionService interface {
	Extract(ctx context.Context, tenantID, userID, documentID string, blocks []port.BlockSpec) ([]*entity.ExtractionRecord, error)
	ExtractWithTemplate(ctx context.Context, tenantID, userID, documentID, templateID string) ([]*entity.ExtractionRecord, error)
	ListRecords(ctx context.Context, tenantID, documentID string) ([]*entity.ExtractionRecord, error)
	Correct(ctx context.Context, tenantID, userID, recordID, correctedValue string) (*entity.ExtractionRecord, error)

	CreateTemplate(ctx context.Context, tenantID, userID string, in TemplateInput) (*entity.ExtractionTemplate, error)
	ListTemplates(ctx context.Context, tenantID string) ([]*entity.ExtractionTemplate, error)
	GetTemplate(ctx context.Context, tenantID, id string) (*entity.ExtractionTemplate, error)
	DeleteTemplate(ctx context.Context, tenantID, id string) error

	// GuardContext flattens a document's effective extraction values into
	// the data guard expressions evaluate against.
	GuardContext(ctx context.Context, tenantID, documentID string) (map[string]interface{}, error)
}

type extractionServiceImpl struct {
	documentRepo   port.DocumentRepository
	extractionRepo port.ExtractionRepository
	templateRepo   port.TemplateRepository
	renderer       port.PageRenderer
	extractor      port.FieldExtractor
	txManager      port.TransactionManager
	dispatcher     Dispatcher
	logger         Logger
}

// NewExtractionService creates a new ExtractionService.
func NewExtractionService(
	documentRepo port.DocumentRepository,
	extractionRepo port.ExtractionRepository,
	templateRepo port.TemplateRepository,
	renderer port.PageRenderer,
	extractor port.FieldExtractor,
	txManager port.TransactionManager,
	dispatcher Dispatcher,
	logger Logger,
) ExtractionService {
	return &extractionServiceImpl{
		documentRepo:   documentRepo,
		extractionRepo: extractionRepo,
		templateRepo:   templateRepo,
		renderer:       renderer,
		extractor:      extractor,
		txManager:      txManager,
		dispatcher:     dispatcher,
		logger:         logger,
	}
}

// Extract renders each block's page region, sends the images through the
// field extractor and persists one record per block.
func (s *extractionServiceImpl) Extract(ctx context.Context, tenantID, userID, documentID string, blocks []port.BlockSpec) ([]*entity.ExtractionRecord, error) {
	doc, err := s.documentRepo.GetByID(ctx, tenantID, documentID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, fmt.Errorf("document %s: %w", documentID, ErrNotFound)
	}
	if len(blocks) == 0 {
		return nil, fmt.Errorf("no blocks to extract")
	}

	if err := s.documentRepo.UpdateStatus(ctx, doc.ID, entity.DocumentStatusProcessing); err != nil {
		return nil, err
	}

	// Group blocks per page so each page region batch shares one render.
	byPage := make(map[int][]port.BlockSpec)
	for _, b := range blocks {
		if b.Page < 1 || b.Page > doc.PageCount {
			return nil, fmt.Errorf("block %q targets page %d of a %d-page document", b.Key, b.Page, doc.PageCount)
		}
		byPage[b.Page] = append(byPage[b.Page], b)
	}
	pages := make([]int, 0, len(byPage))
	for p := range byPage {
		pages = append(pages, p)
	}
	sort.Ints(pages)

	now := time.Now().UTC()
	var records []*entity.ExtractionRecord
	for _, page := range pages {
		pageBlocks := byPage[page]
		region := boundingRegion(pageBlocks)

		image, err := s.renderer.RenderRegion(doc.FilePath, page, region)
		if err != nil {
			s.failDocument(ctx, doc.ID)
			return nil, fmt.Errorf("render page %d: %w", page, err)
		}

		fields, err := s.extractor.ExtractFields(ctx, image, pageBlocks)
		if err != nil {
			s.failDocument(ctx, doc.ID)
			return nil, fmt.Errorf("extract fields on page %d: %w", page, err)
		}

		byKey := make(map[string]port.ExtractedField, len(fields))
		for _, f := range fields {
			byKey[f.Key] = f
		}
		for _, b := range pageBlocks {
			f := byKey[b.Key]
			records = append(records, &entity.ExtractionRecord{
				ID:         uuid.NewString(),
				DocumentID: doc.ID,
				Page:       page,
				BlockKey:   b.Key,
				Value:      f.Value,
				Confidence: f.Confidence,
				CreatedAt:  now,
				UpdatedAt:  now,
			})
		}
	}

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		for _, rec := range records {
			if err := s.extractionRepo.Create(txCtx, rec); err != nil {
				return err
			}
		}
		return s.documentRepo.UpdateStatus(txCtx, doc.ID, entity.DocumentStatusReady)
	})
	if err != nil {
		s.failDocument(ctx, doc.ID)
		return nil, err
	}

	s.dispatcher.DispatchAsync(ctx, event.New(event.TypeExtractionCompleted, tenantID, userID, doc.ID, map[string]interface{}{
		"record_count": len(records),
	}))

	s.logger.Info("Extraction completed", "document_id", doc.ID, "records", len(records))
	return records, nil
}

// ExtractWithTemplate runs Extract with the blocks of a stored template.
func (s *extractionServiceImpl) ExtractWithTemplate(ctx context.Context, tenantID, userID, documentID, templateID string) ([]*entity.ExtractionRecord, error) {
	tpl, err := s.GetTemplate(ctx, tenantID, templateID)
	if err != nil {
		return nil, err
	}

	var blocks []port.BlockSpec
	if err := json.Unmarshal([]byte(tpl.BlocksJSON), &blocks); err != nil {
		return nil, fmt.Errorf("template %s has invalid blocks: %w", templateID, err)
	}
	return s.Extract(ctx, tenantID, userID, documentID, blocks)
}

// CreateTemplate validates and stores a reusable block layout.
func (s *extractionServiceImpl) CreateTemplate(ctx context.Context, tenantID, userID string, in TemplateInput) (*entity.ExtractionTemplate, error) {
	if in.Name == "" {
		return nil, fmt.Errorf("template name is required")
	}
	if len(in.Blocks) == 0 {
		return nil, fmt.Errorf("template needs at least one block")
	}
	seen := make(map[string]bool, len(in.Blocks))
	for _, b := range in.Blocks {
		if b.Key == "" {
			return nil, fmt.Errorf("every block needs a key")
		}
		if seen[b.Key] {
			return nil, fmt.Errorf("duplicate block key %q", b.Key)
		}
		seen[b.Key] = true
		if b.Page < 1 {
			return nil, fmt.Errorf("block %q targets invalid page %d", b.Key, b.Page)
		}
		if b.Region.Width <= 0 || b.Region.Height <= 0 {
			return nil, fmt.Errorf("block %q has an empty region", b.Key)
		}
	}

	blocksJSON, err := json.Marshal(in.Blocks)
	if err != nil {
		return nil, fmt.Errorf("marshal template blocks: %w", err)
	}

	now := time.Now().UTC()
	tpl := &entity.ExtractionTemplate{
		ID:          uuid.NewString(),
		TenantID:    tenantID,
		Name:        in.Name,
		Description: in.Description,
		BlocksJSON:  string(blocksJSON),
		CreatedBy:   userID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.templateRepo.Create(ctx, tpl); err != nil {
		return nil, err
	}

	s.logger.Info("Extraction template created", "id", tpl.ID, "name", tpl.Name)
	return tpl, nil
}

// ListTemplates retrieves a tenant's extraction templates.
func (s *extractionServiceImpl) ListTemplates(ctx context.Context, tenantID string) ([]*entity.ExtractionTemplate, error) {
	return s.templateRepo.List(ctx, tenantID)
}

// GetTemplate retrieves one extraction template.
func (s *extractionServiceImpl) GetTemplate(ctx context.Context, tenantID, id string) (*entity.ExtractionTemplate, error) {
	tpl, err := s.templateRepo.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if tpl == nil {
		return nil, fmt.Errorf("template %s: %w", id, ErrNotFound)
	}
	return tpl, nil
}

// DeleteTemplate removes an extraction template. Documents extracted with it
// keep their records; templates are only an authoring convenience.
func (s *extractionServiceImpl) DeleteTemplate(ctx context.Context, tenantID, id string) error {
	if _, err := s.GetTemplate(ctx, tenantID, id); err != nil {
		return err
	}
	return s.templateRepo.Delete(ctx, tenantID, id)
}

// ListRecords retrieves the extraction records of a document.
func (s *extractionServiceImpl) ListRecords(ctx context.Context, tenantID, documentID string) ([]*entity.ExtractionRecord, error) {
	doc, err := s.documentRepo.GetByID(ctx, tenantID, documentID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, fmt.Errorf("document %s: %w", documentID, ErrNotFound)
	}
	return s.extractionRepo.ListByDocument(ctx, documentID)
}

// Correct stores a reviewer's fix alongside the extracted value.
func (s *extractionServiceImpl) Correct(ctx context.Context, tenantID, userID, recordID, correctedValue string) (*entity.ExtractionRecord, error) {
	rec, err := s.extractionRepo.GetByID(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("extraction record %s: %w", recordID, ErrNotFound)
	}

	doc, err := s.documentRepo.GetByID(ctx, tenantID, rec.DocumentID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, fmt.Errorf("extraction record %s: %w", recordID, ErrNotFound)
	}

	if err := s.extractionRepo.UpdateCorrection(ctx, recordID, correctedValue); err != nil {
		return nil, err
	}

	rec.CorrectedValue = correctedValue
	s.logger.Info("Extraction record corrected", "id", recordID, "user_id", userID)
	return rec, nil
}

// GuardContext builds the flat field map used as guard evaluation input.
// Corrected values win over extracted ones.
func (s *extractionServiceImpl) GuardContext(ctx context.Context, tenantID, documentID string) (map[string]interface{}, error) {
	records, err := s.ListRecords(ctx, tenantID, documentID)
	if err != nil {
		return nil, err
	}

	fields := make(map[string]interface{}, len(records))
	for _, rec := range records {
		fields[rec.BlockKey] = rec.EffectiveValue()
	}
	return map[string]interface{}{"fields": fields}, nil
}

func (s *extractionServiceImpl) failDocument(ctx context.Context, id string) {
	if err := s.documentRepo.UpdateStatus(ctx, id, entity.DocumentStatusFailed); err != nil {
		s.logger.Error("Failed to mark document failed", "error", err, "id", id)
	}
}

// boundingRegion returns the smallest rectangle covering every block.
func boundingRegion(blocks []port.BlockSpec) port.Rect {
	r := blocks[0].Region
	minX, minY := r.X, r.Y
	maxX, maxY := r.X+r.Width, r.Y+r.Height
	for _, b := range blocks[1:] {
		if b.Region.X < minX {
			minX = b.Region.X
		}
		if b.Region.Y < minY {
			minY = b.Region.Y
		}
		if x := b.Region.X + b.Region.Width; x > maxX {
			maxX = x
		}
		if y := b.Region.Y + b.Region.Height; y > maxY {
			maxY = y
		}
	}
	return port.Rect{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}
}
