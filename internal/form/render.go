// Package form renders the Bewirtungsbeleg, the German hospitality receipt
// form that accompanies a restaurant bill for tax purposes.
package form

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-pdf/fpdf"

	"github.com/zombor/invoice-tracker/internal/scanning"
)

// Title is printed centered at the top of the form
const Title = "Bewirtungsbeleg"

// Lines returns the labeled lines of the form in print order. Absent
// fields are rendered as empty values.
func Lines(info scanning.ReceiptInfo) []string {
	return []string{
		"Datum der Bewirtung: " + info.Date.String(),
		"Ort der Bewirtung: " + info.Venue.String(),
		"Anlass: " + info.Reason.String(),
		"Personen: " + strings.Join(info.Participants, ", "),
		"Rechnungsbetrag: " + info.Amount.String() + " EUR",
		"Trinkgeld: " + info.Tip.String() + " EUR",
		"Ort, Datum: " + info.SignaturePlaceDay.String(),
	}
}

// Render lays out info as a PDF, writes it to path and returns the bytes
func Render(info scanning.ReceiptInfo, path string) ([]byte, error) {
	data, err := RenderBytes(info)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating form directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return nil, fmt.Errorf("writing form: %w", err)
	}

	return data, nil
}

// RenderBytes lays out info as a PDF without touching the filesystem
func RenderBytes(info scanning.ReceiptInfo) ([]byte, error) {
	doc := fpdf.New("P", "mm", "A4", "")
	doc.SetTitle(Title, true)
	doc.SetCreator("invoice-tracker", true)
	// Core fonts are cp1252; translate so umlauts in names and venues survive
	tr := doc.UnicodeTranslatorFromDescriptor("")

	doc.AddPage()
	doc.SetFont("Helvetica", "B", 16)
	doc.CellFormat(0, 10, Title, "", 1, "C", false, 0, "")
	doc.Ln(6)

	doc.SetFont("Helvetica", "", 12)
	for _, line := range Lines(info) {
		doc.MultiCell(0, 7, tr(line), "", "L", false)
	}

	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		return nil, fmt.Errorf("rendering form: %w", err)
	}
	return buf.Bytes(), nil
}
