package pdftext

import (
	"strings"

	"github.com/gen2brain/go-fitz"
)

// MuPDF extracts text with MuPDF through go-fitz
type MuPDF struct{}

// Extract reads the text layer of every page until MaxTextLength is reached
func (MuPDF) Extract(data []byte) (text string, err error) {
	if err := checkHeader(data); err != nil {
		return "", err
	}

	defer func() {
		if r := recover(); r != nil {
			text, err = "", &ExtractionError{Reason: "mupdf panic", Err: panicError(r)}
		}
	}()

	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return "", &ExtractionError{Reason: "opening PDF", Err: err}
	}
	defer doc.Close()

	var b strings.Builder
	for i := 0; i < doc.NumPage(); i++ {
		pageText, err := doc.Text(i)
		if err != nil {
			return "", &ExtractionError{Reason: "reading page text", Err: err}
		}
		b.WriteString(pageText)
		if b.Len() > MaxTextLength*4 {
			break
		}
	}

	return Truncate(b.String()), nil
}
