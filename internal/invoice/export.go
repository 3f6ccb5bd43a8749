package invoice

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/xuri/excelize/v2"
)

const exportSheet = "Invoices"

var exportHeaders = []string{
	"Date",
	"Category",
	"Reason",
	"Amount",
	"Tip",
	"Participants",
	"Location",
	"Status",
	"Signed By",
	"PDF",
}

// ExportXLSX returns an XLSX workbook listing the invoices of user
func (s *Service) ExportXLSX(ctx context.Context, user User) ([]byte, error) {
	invoices, err := s.ListInvoices(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("exporting invoices: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return nil, fmt.Errorf("naming sheet: %w", err)
	}

	for i, h := range exportHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(exportSheet, cell, h); err != nil {
			return nil, fmt.Errorf("writing header: %w", err)
		}
	}

	for i, inv := range invoices {
		row := i + 2
		amount, _ := inv.Amount.Float64()
		tip, _ := inv.TipAmount.Float64()
		values := []any{
			inv.Date.Format(dateLayout),
			inv.Category,
			inv.Reason,
			amount,
			tip,
			strings.Join(inv.Participants, ", "),
			formatLocation(inv.Location),
			string(inv.Status),
			inv.Signing.SignedBy,
			inv.PDFURL,
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			if err := f.SetCellValue(exportSheet, cell, v); err != nil {
				return nil, fmt.Errorf("writing row %d: %w", row, err)
			}
		}
	}

	_ = f.SetColWidth(exportSheet, "A", "B", 22)
	_ = f.SetColWidth(exportSheet, "C", "C", 40)
	_ = f.SetColWidth(exportSheet, "D", "E", 12)
	_ = f.SetColWidth(exportSheet, "F", "G", 36)
	_ = f.SetColWidth(exportSheet, "J", "J", 60)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	slog.Info("Invoices exported", "user", user.ID, "rows", len(invoices))
	return buf.Bytes(), nil
}

func formatLocation(loc *Location) string {
	if loc == nil {
		return ""
	}
	parts := make([]string, 0, 6)
	for _, p := range []string{loc.Name, loc.Street, loc.PostalCode, loc.City, loc.State, loc.Country} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}
