package pdftext

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"
)

// MaxTextLength bounds the extracted text so prompts built from it stay small
const MaxTextLength = 2000

// pdfMagic must appear within the first headerWindow bytes of a PDF
const (
	pdfMagic     = "%PDF-"
	headerWindow = 1024
)

// Extractor turns PDF bytes into a bounded plain-text excerpt
type Extractor interface {
	// Extract returns the document text truncated to MaxTextLength.
	// A PDF without a text layer yields an empty string and no error.
	Extract(data []byte) (string, error)
}

// ExtractionError reports a buffer that is not a readable PDF
type ExtractionError struct {
	Reason string
	Err    error
}

func (e *ExtractionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("extracting pdf text: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("extracting pdf text: %s", e.Reason)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// Engine names accepted by New
const (
	EngineMuPDF  = "mupdf"
	EngineNative = "native"
)

// New returns the extractor for the named engine
func New(engine string) (Extractor, error) {
	switch strings.ToLower(strings.TrimSpace(engine)) {
	case "", EngineMuPDF:
		return MuPDF{}, nil
	case EngineNative:
		return Native{}, nil
	default:
		return nil, fmt.Errorf("unknown pdf engine %q (want mupdf or native)", engine)
	}
}

// checkHeader rejects buffers that cannot be a PDF before handing them to an engine
func checkHeader(data []byte) error {
	if len(data) == 0 {
		return &ExtractionError{Reason: "empty buffer"}
	}
	window := data
	if len(window) > headerWindow {
		window = window[:headerWindow]
	}
	if !bytes.Contains(window, []byte(pdfMagic)) {
		return &ExtractionError{Reason: "missing PDF header"}
	}
	return nil
}

// Truncate trims surrounding whitespace and cuts text to MaxTextLength runes
func Truncate(text string) string {
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) <= MaxTextLength {
		return text
	}
	n := 0
	for i := range text {
		if n == MaxTextLength {
			return text[:i]
		}
		n++
	}
	return text
}
