// Package export renders a user's notes as spreadsheet downloads.
package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/vamojunto/nfce-tracker/internal/repository"
)

// Service is a tiny façade over the note repository that produces XLSX
// bytes for exports.
type Service struct {
	notes  repository.NoteRepository
	logger *slog.Logger
}

func NewService(notes repository.NoteRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{notes: notes, logger: logger}
}

// ExportNotesXLSX returns an XLSX workbook (as bytes) with two sheets: a
// notes summary and the flattened product lines. The filter narrows which
// notes are included the same way the listing endpoint does.
func (s *Service) ExportNotesXLSX(ctx context.Context, userID uuid.UUID, filter repository.NoteFilter) ([]byte, error) {
	start := time.Now()

	notes, err := s.notes.List(ctx, userID, filter)
	if err != nil {
		return nil, fmt.Errorf("query notes: %w", err)
	}

	f := excelize.NewFile()
	const notesSheet = "Notes"
	const productsSheet = "Products"

	if err := f.SetSheetName("Sheet1", notesSheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(productsSheet); err != nil {
		return nil, err
	}
	if index, err := f.GetSheetIndex(notesSheet); err == nil {
		f.SetActiveSheet(index)
	}

	writeRow(f, notesSheet, 1,
		"Issued At", "Establishment", "CNPJ", "Total", "Taxes", "Items")
	writeRow(f, productsSheet, 1,
		"Issued At", "Establishment", "Description", "Quantity", "Unit", "Unit Price", "Line Total")

	productRow := 2
	for i, n := range notes {
		writeRow(f, notesSheet, i+2,
			n.IssuedAt.Format("2006-01-02 15:04:05"),
			n.EstablishmentName,
			n.EstablishmentTaxID,
			toFloat(n.TotalValue),
			toFloat(n.TotalTax),
			len(n.Products))

		for _, p := range n.Products {
			writeRow(f, productsSheet, productRow,
				n.IssuedAt.Format("2006-01-02"),
				n.EstablishmentName,
				p.Description,
				toFloat(p.Quantity),
				p.Unit,
				toFloat(p.UnitPrice),
				toFloat(p.LineTotal))
			productRow++
		}
	}

	_ = f.SetColWidth(notesSheet, "A", "A", 20)
	_ = f.SetColWidth(notesSheet, "B", "B", 36)
	_ = f.SetColWidth(notesSheet, "C", "C", 20)
	_ = f.SetColWidth(notesSheet, "D", "F", 12)
	_ = f.SetColWidth(productsSheet, "A", "A", 12)
	_ = f.SetColWidth(productsSheet, "B", "C", 36)
	_ = f.SetColWidth(productsSheet, "D", "G", 12)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"user_id", userID.String(),
		"notes", len(notes),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func writeRow(f *excelize.File, sheet string, row int, values ...any) {
	for i, v := range values {
		cell, _ := excelize.CoordinatesToCellName(i+1, row)
		_ = f.SetCellValue(sheet, cell, v)
	}
}

// toFloat converts money for cell storage. Receipt amounts are well within
// float64 precision at two or three decimal places.
func toFloat(d decimal.Decimal) float64 {
	v, _ := d.Float64()
	return v
}
