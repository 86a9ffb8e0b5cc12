package port

import (
	"context"
	"io"
)

// Rect is a page region in PDF points, origin top-left.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// BlockSpec describes one OCR-able block of a template: where it sits on
// the page and what field it captures.
type BlockSpec struct {
	Key    string `json:"key"`
	Label  string `json:"label"`
	Page   int    `json:"page"`
	Region Rect   `json:"region"`
}

// ExtractedField is one field value the extractor read from a page image.
type ExtractedField struct {
	Key        string  `json:"key"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
}

// PageRenderer renders PDF pages and page regions to images.
type PageRenderer interface {
	PageCount(path string) (int, error)
	RenderRegion(path string, page int, region Rect) ([]byte, error)
}

// FieldExtractor reads field values out of a rendered page image.
type FieldExtractor interface {
	ExtractFields(ctx context.Context, image []byte, blocks []BlockSpec) ([]ExtractedField, error)
}

// FileStorage persists uploaded document files.
type FileStorage interface {
	Save(name string, r io.Reader) (path string, size int64, err error)
	Open(path string) (io.ReadCloser, error)
	Remove(path string) error
}
