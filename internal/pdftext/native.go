package pdftext

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Native extracts text with a pure Go PDF reader, one line per text row. It
// needs no cgo but handles fewer encodings than MuPDF.
type Native struct{}

// Extract returns the plain text of all pages
func (Native) Extract(data []byte) (text string, err error) {
	if err := checkHeader(data); err != nil {
		return "", err
	}

	// ledongthuc/pdf panics on some malformed object graphs
	defer func() {
		if r := recover(); r != nil {
			text, err = "", &ExtractionError{Reason: "pdf reader panic", Err: panicError(r)}
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", &ExtractionError{Reason: "opening PDF", Err: err}
	}

	var b strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		rows, err := page.GetTextByRow()
		if err != nil {
			return "", &ExtractionError{Reason: fmt.Sprintf("reading text of page %d", i), Err: err}
		}
		for _, row := range rows {
			writeRow(&b, row.Content)
			b.WriteString("\n")
		}
	}

	return Truncate(b.String()), nil
}

// writeRow writes the glyphs of one row in reading order. A gap wider than
// two glyph heights separates cells and becomes a space.
func writeRow(b *strings.Builder, glyphs pdf.TextHorizontal) {
	for j, g := range glyphs {
		if j > 0 {
			prev := glyphs[j-1]
			if prev.FontSize > 0 && g.X-prev.X > 2*prev.FontSize && !strings.HasSuffix(prev.S, " ") {
				b.WriteString(" ")
			}
		}
		b.WriteString(g.S)
	}
}

func panicError(r any) error {
	if err, ok := r.(error); ok {
		return err
	}
	return fmt.Errorf("%v", r)
}
