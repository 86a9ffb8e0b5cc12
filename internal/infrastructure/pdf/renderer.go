package pdf

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"os"

	"github.com/gen2brain/go-fitz"
	"go.uber.org/zap"

	"github.com/docuflow/docuflow/internal/application/port"
)

const renderDPI = 144

// Renderer implements port.PageRenderer using mupdf
type Renderer struct {
	logger *zap.Logger
}

// NewRenderer creates a new PDF page renderer
func NewRenderer(logger *zap.Logger) *Renderer {
	return &Renderer{logger: logger}
}

// PageCount returns the number of pages in a PDF file
func (r *Renderer) PageCount(path string) (int, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return 0, fmt.Errorf("PDF file not found: %s", path)
	}

	doc, err := fitz.New(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()

	return doc.NumPage(), nil
}

// RenderRegion renders a page region to a JPEG image. The region is given
// in PDF points (72 per inch), page numbers start at 1.
func (r *Renderer) RenderRegion(path string, page int, region port.Rect) ([]byte, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()

	if page < 1 || page > doc.NumPage() {
		return nil, fmt.Errorf("page %d out of range (1..%d)", page, doc.NumPage())
	}

	img, err := doc.ImageDPI(page-1, renderDPI)
	if err != nil {
		return nil, fmt.Errorf("failed to render page %d: %w", page, err)
	}

	cropped, err := crop(img, region)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, cropped, &jpeg.Options{Quality: 85}); err != nil {
		return nil, fmt.Errorf("failed to encode JPEG: %w", err)
	}

	r.logger.Debug("Rendered page region",
		zap.String("path", path),
		zap.Int("page", page),
		zap.Int("size_bytes", buf.Len()))

	return buf.Bytes(), nil
}

// crop cuts the region out of the rendered page. A zero-size region means
// the whole page.
func crop(img image.Image, region port.Rect) (image.Image, error) {
	if region.Width <= 0 || region.Height <= 0 {
		return img, nil
	}

	// PDF points to rendered pixels.
	scale := float64(renderDPI) / 72.0
	rect := image.Rect(
		int(region.X*scale),
		int(region.Y*scale),
		int((region.X+region.Width)*scale),
		int((region.Y+region.Height)*scale),
	)
	rect = rect.Intersect(img.Bounds())
	if rect.Empty() {
		return nil, fmt.Errorf("region lies outside the page")
	}

	type subImager interface {
		SubImage(r image.Rectangle) image.Image
	}
	if si, ok := img.(subImager); ok {
		return si.SubImage(rect), nil
	}
	return img, nil
}

// Verify interface compliance
var _ port.PageRenderer = (*Renderer)(nil)
