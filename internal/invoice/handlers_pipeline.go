package invoice

import (
	"fmt"
	"net/http"
)

// handleExtractText returns the text layer of an uploaded PDF
func (s *Server) handleExtractText(w http.ResponseWriter, r *http.Request) {
	data, _, ok := readUpload(w, r, "file")
	if !ok {
		return
	}

	text, err := s.service.ExtractText(data)
	if err != nil {
		fail(w, r, err, "Failed to extract text")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"text": text})
}

// handleCategorize labels posted text
func (s *Server) handleCategorize(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Text string `json:"text"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}

	category, err := s.service.Categorize(r.Context(), body.Text)
	if err != nil {
		fail(w, r, err, "Failed to categorize")
		return
	}
	writeJSON(w, http.StatusOK, category)
}

// handleProcess extracts and categorizes an uploaded PDF
func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	data, _, ok := readUpload(w, r, "file")
	if !ok {
		return
	}

	analysis, err := s.service.Process(r.Context(), data)
	if err != nil {
		fail(w, r, err, "Failed to process PDF")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"category": analysis.Category.Label,
		"text":     analysis.Text,
	})
}

// handleUpload processes an uploaded PDF and keeps a copy on disk
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	data, filename, ok := readUpload(w, r, "file")
	if !ok {
		return
	}

	analysis, saved, err := s.service.Upload(r.Context(), filename, data)
	if err != nil {
		fail(w, r, err, "Failed to process upload")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"category": analysis.Category.Label,
		"text":     analysis.Text,
		"filename": saved,
	})
}

// handleDownloadURL fetches a remote PDF and processes it
func (s *Server) handleDownloadURL(w http.ResponseWriter, r *http.Request) {
	var body struct {
		URL string `json:"url"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}

	analysis, err := s.service.ProcessURL(r.Context(), body.URL)
	if err != nil {
		fail(w, r, err, "Failed to download or process PDF")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"text":     analysis.Text,
		"category": analysis.Category.Label,
	})
}

// handleBewirtungsbeleg renders a hospitality receipt form for an uploaded PDF
func (s *Server) handleBewirtungsbeleg(w http.ResponseWriter, r *http.Request) {
	data, filename, ok := readUpload(w, r, "file")
	if !ok {
		return
	}

	form, err := s.service.Bewirtungsbeleg(r.Context(), filename, data)
	if err != nil {
		fail(w, r, err, "Failed to generate form")
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, form.Filename))
	w.Write(form.PDF)
}

// handleGmailScan categorizes the invoice attachments found in the mailbox
func (s *Server) handleGmailScan(w http.ResponseWriter, r *http.Request) {
	results, err := s.service.ScanMailbox(r.Context())
	if err != nil {
		fail(w, r, err, "Failed to scan Gmail")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":   len(results),
		"results": results,
	})
}
