package entity

import "time"

// Document status values.
const (
	DocumentStatusUploaded   = "uploaded"
	DocumentStatusProcessing = "processing"
	DocumentStatusReady      = "ready"
	DocumentStatusFailed     = "failed"
)

// Document is an uploaded PDF under inspection.
type Document struct {
	ID         string    `json:"id"`
	TenantID   string    `json:"tenant_id"`
	FileName   string    `json:"file_name"`
	FilePath   string    `json:"-"`
	FileSize   int64     `json:"file_size"`
	PageCount  int       `json:"page_count"`
	Status     string    `json:"status"`
	UploadedBy string    `json:"uploaded_by,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// ExtractionRecord is one OCR-extracted field value for a document block.
// CorrectedValue holds the reviewer's fix; the extracted value is never
// overwritten.
type ExtractionRecord struct {
	ID             string    `json:"id"`
	DocumentID     string    `json:"document_id"`
	Page           int       `json:"page"`
	BlockKey       string    `json:"block_key"`
	Value          string    `json:"value"`
	CorrectedValue string    `json:"corrected_value,omitempty"`
	Confidence     float64   `json:"confidence"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// EffectiveValue returns the corrected value when present.
func (r *ExtractionRecord) EffectiveValue() string {
	if r.CorrectedValue != "" {
		return r.CorrectedValue
	}
	return r.Value
}
