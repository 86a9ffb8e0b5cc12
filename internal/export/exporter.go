package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/docuflow/docuflow/internal/domain/entity"
)

// Format selects the export encoding.
type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatCSV  Format = "csv"
)

var recordHeader = []string{"Page", "Field", "Extracted Value", "Corrected Value", "Effective Value", "Confidence"}

// Exporter writes extraction results to spreadsheet formats
type Exporter struct {
	logger *zap.Logger
}

// NewExporter creates a new exporter
func NewExporter(logger *zap.Logger) *Exporter {
	return &Exporter{logger: logger}
}

// WriteRecords encodes the extraction records of a document in the
// requested format.
func (e *Exporter) WriteRecords(w io.Writer, doc *entity.Document, records []*entity.ExtractionRecord, format Format) error {
	switch format {
	case FormatXLSX:
		return e.writeXLSX(w, doc, records)
	case FormatCSV:
		return e.writeCSV(w, records)
	default:
		return fmt.Errorf("unsupported export format: %s", format)
	}
}

func (e *Exporter) writeXLSX(w io.Writer, doc *entity.Document, records []*entity.ExtractionRecord) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)

	e.setCell(f, sheet, "A1", "Document")
	e.setCell(f, sheet, "B1", doc.FileName)
	e.setCell(f, sheet, "A2", "Pages")
	e.setCell(f, sheet, "B2", strconv.Itoa(doc.PageCount))
	e.setCell(f, sheet, "A3", "Status")
	e.setCell(f, sheet, "B3", doc.Status)

	headerRow := 5
	for col, name := range recordHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, headerRow)
		if err != nil {
			return fmt.Errorf("failed to compute cell name: %w", err)
		}
		e.setCell(f, sheet, cell, name)
	}

	for i, rec := range records {
		row := headerRow + 1 + i
		values := []string{
			strconv.Itoa(rec.Page),
			rec.BlockKey,
			rec.Value,
			rec.CorrectedValue,
			rec.EffectiveValue(),
			fmt.Sprintf("%.2f", rec.Confidence),
		}
		for col, v := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row)
			if err != nil {
				return fmt.Errorf("failed to compute cell name: %w", err)
			}
			e.setCell(f, sheet, cell, v)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}

	e.logger.Info("Exported extraction records",
		zap.String("document_id", doc.ID),
		zap.Int("records", len(records)),
		zap.String("format", string(FormatXLSX)))
	return nil
}

func (e *Exporter) writeCSV(w io.Writer, records []*entity.ExtractionRecord) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(recordHeader); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, rec := range records {
		row := []string{
			strconv.Itoa(rec.Page),
			rec.BlockKey,
			rec.Value,
			rec.CorrectedValue,
			rec.EffectiveValue(),
			fmt.Sprintf("%.2f", rec.Confidence),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// setCell sets a cell value, logging failures instead of aborting the export
func (e *Exporter) setCell(f *excelize.File, sheet, cell, value string) {
	if err := f.SetCellValue(sheet, cell, value); err != nil {
		e.logger.Warn("Failed to set cell value",
			zap.String("sheet", sheet),
			zap.String("cell", cell),
			zap.Error(err))
	}
}
