package invoice

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"
)

// maxFormSize limits multipart uploads
const maxFormSize = int64(50 << 20) // 50MB

// writeJSON writes v as a JSON response
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// writeError writes a JSON error body
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// fail maps err to a response. Causes of unexpected errors are only logged.
func fail(w http.ResponseWriter, r *http.Request, err error, message string) {
	var (
		inputErr *InputError
		mediaErr *UnsupportedMediaError
	)
	switch {
	case errors.As(err, &inputErr):
		writeError(w, http.StatusBadRequest, inputErr.Message)
	case errors.As(err, &mediaErr):
		writeError(w, http.StatusUnsupportedMediaType, mediaErr.Error())
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrFileNotFound):
		writeError(w, http.StatusNotFound, "Not found")
	case errors.Is(err, ErrNotPending), errors.Is(err, ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, ErrMailboxNotConfigured):
		writeError(w, http.StatusServiceUnavailable, "Mailbox scanning is not configured")
	default:
		slog.Error(message, "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, message)
	}
}

// readUpload reads a file from a multipart form. It writes the error response
// itself and returns ok=false when the upload is missing or unreadable.
func readUpload(w http.ResponseWriter, r *http.Request, field string) (data []byte, filename string, ok bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormSize)
	if err := r.ParseMultipartForm(maxFormSize); err != nil {
		slog.Warn("Error parsing multipart form", "error", err)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusBadRequest, "File is too large. Maximum size is 50MB.")
			return nil, "", false
		}
		writeError(w, http.StatusBadRequest, "Invalid file upload")
		return nil, "", false
	}

	f, header, err := r.FormFile(field)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid file upload")
		return nil, "", false
	}
	defer f.Close()

	data, err = io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		writeError(w, http.StatusInternalServerError, "Error reading file. Please try again.")
		return nil, "", false
	}
	if len(data) == 0 {
		writeError(w, http.StatusBadRequest, "Invalid file upload")
		return nil, "", false
	}
	return data, header.Filename, true
}

// decodeJSON decodes the request body into v, answering 400 on failure
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return false
	}
	return true
}

// handleListInvoices returns the invoices of the current user
func (s *Server) handleListInvoices(w http.ResponseWriter, r *http.Request) {
	invoices, err := s.service.ListInvoices(r.Context(), UserFrom(r.Context()))
	if err != nil {
		fail(w, r, err, "Failed to list invoices")
		return
	}
	writeJSON(w, http.StatusOK, invoices)
}

// handleCreateInvoice records an invoice from a multipart form with its PDF
func (s *Server) handleCreateInvoice(w http.ResponseWriter, r *http.Request) {
	data, filename, ok := readUpload(w, r, "pdf")
	if !ok {
		return
	}

	details, err := detailsFromForm(r)
	if err != nil {
		fail(w, r, err, "Failed to create invoice")
		return
	}

	inv, err := s.service.CreateInvoice(r.Context(), UserFrom(r.Context()), details, filename, data)
	if err != nil {
		fail(w, r, err, "Failed to create invoice")
		return
	}
	writeJSON(w, http.StatusCreated, inv)
}

// detailsFromForm reads invoice details from parsed form values
func detailsFromForm(r *http.Request) (Details, error) {
	amount, err := parseAmount(r.FormValue("amount"), "Amount")
	if err != nil {
		return Details{}, err
	}
	tip := decimal.Zero
	if v := strings.TrimSpace(r.FormValue("tipAmount")); v != "" {
		if tip, err = parseAmount(v, "Tip amount"); err != nil {
			return Details{}, err
		}
	}

	return Details{
		Amount:       amount,
		TipAmount:    tip,
		Date:         r.FormValue("date"),
		Reason:       r.FormValue("reason"),
		Category:     r.FormValue("category"),
		Participants: SplitParticipants(r.FormValue("participants")),
		Location: &Location{
			Name:       r.FormValue("locationName"),
			Street:     r.FormValue("street"),
			City:       r.FormValue("city"),
			State:      r.FormValue("state"),
			Country:    r.FormValue("country"),
			PostalCode: r.FormValue("postalCode"),
		},
	}, nil
}

func parseAmount(v, field string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(v))
	if err != nil {
		return decimal.Zero, &InputError{Message: field + " must be a number"}
	}
	return amount, nil
}

// handleGetInvoice returns a single invoice of the current user
func (s *Server) handleGetInvoice(w http.ResponseWriter, r *http.Request) {
	inv, err := s.service.GetInvoice(r.Context(), UserFrom(r.Context()), r.PathValue("id"))
	if err != nil {
		fail(w, r, err, "Failed to get invoice")
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

// handleUpdateInvoice edits a pending invoice
func (s *Server) handleUpdateInvoice(w http.ResponseWriter, r *http.Request) {
	var details Details
	if !decodeJSON(w, r, &details) {
		return
	}

	inv, err := s.service.UpdateInvoice(r.Context(), UserFrom(r.Context()), r.PathValue("id"), details)
	if err != nil {
		fail(w, r, err, "Failed to update invoice")
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

// handleUpdateStatus approves, rejects or cancels an invoice
func (s *Server) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status Status `json:"status"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}

	inv, err := s.service.UpdateStatus(r.Context(), UserFrom(r.Context()), r.PathValue("id"), body.Status)
	if err != nil {
		fail(w, r, err, "Failed to update invoice status")
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

// handleGetInvoiceFile returns the stored PDF of an invoice
func (s *Server) handleGetInvoiceFile(w http.ResponseWriter, r *http.Request) {
	data, err := s.service.GetInvoiceFile(r.Context(), UserFrom(r.Context()), r.PathValue("id"))
	if err != nil {
		fail(w, r, err, "Failed to get invoice file")
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Write(data)
}

// handleGetFile serves a file of the object store owned by the current user
func (s *Server) handleGetFile(w http.ResponseWriter, r *http.Request) {
	data, err := s.service.GetFile(r.Context(), UserFrom(r.Context()), r.PathValue("name"))
	if err != nil {
		fail(w, r, err, "Failed to get file")
		return
	}
	w.Header().Set("Content-Type", http.DetectContentType(data))
	w.Write(data)
}

// handleDashboard returns the spend overview of the current user
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	dashboard, err := s.service.Dashboard(r.Context(), UserFrom(r.Context()))
	if err != nil {
		fail(w, r, err, "Failed to load dashboard")
		return
	}
	writeJSON(w, http.StatusOK, dashboard)
}

// handleExport returns the invoices of the current user as a spreadsheet
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	data, err := s.service.ExportXLSX(r.Context(), UserFrom(r.Context()))
	if err != nil {
		fail(w, r, err, "Failed to export invoices")
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="invoices.xlsx"`)
	w.Write(data)
}
