package invoice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zombor/invoice-tracker/internal/form"
	"github.com/zombor/invoice-tracker/internal/mailbox"
	"github.com/zombor/invoice-tracker/internal/pdftext"
	"github.com/zombor/invoice-tracker/internal/scanning"
)

// DefaultFetchTimeout bounds downloads of remote PDFs
const DefaultFetchTimeout = 4 * time.Second

// maxDownloadSize matches the upload form limit
const maxDownloadSize = 50 << 20

// IDGenerator generates unique IDs for invoices
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// defaultIDGenerator generates random UUIDs
type defaultIDGenerator struct{}

func (g *defaultIDGenerator) Generate() string {
	return uuid.NewString()
}

// defaultTimeSource provides the current time
type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Categorizer labels invoice text
type Categorizer interface {
	Categorize(ctx context.Context, text string) scanning.Category
}

// ReceiptExtractor pulls hospitality receipt fields out of invoice text
type ReceiptExtractor interface {
	Extract(ctx context.Context, text string) scanning.ReceiptInfo
}

// Pipeline bundles the document analysis steps
type Pipeline struct {
	Text        pdftext.Extractor
	Categorizer Categorizer
	Receipts    ReceiptExtractor
}

// NewPipeline builds a pipeline whose language model calls share one model and timeout
func NewPipeline(text pdftext.Extractor, model scanning.Model, timeout time.Duration) Pipeline {
	return Pipeline{
		Text:        text,
		Categorizer: scanning.NewCategorizer(model, timeout),
		Receipts:    scanning.NewReceiptExtractor(model, timeout),
	}
}

// Options configures the optional collaborators of a Service
type Options struct {
	// Uploads receives files posted to the upload route. Defaults to the invoice storage.
	Uploads Storage
	// FormDir receives a copy of every rendered Bewirtungsbeleg
	FormDir string
	// FetchTimeout bounds remote PDF downloads. Defaults to DefaultFetchTimeout.
	FetchTimeout time.Duration
	// HTTPClient fetches remote PDFs. Defaults to http.DefaultClient.
	HTTPClient *http.Client
	// Mailbox is scanned for invoice attachments. Nil disables mailbox scans.
	Mailbox mailbox.Mailbox
}

// Service handles invoice operations
type Service struct {
	db          DB
	storage     Storage
	pipeline    Pipeline
	opts        Options
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewService creates a new Service with default ID generator and time source
func NewService(db DB, storage Storage, pipeline Pipeline, opts Options) *Service {
	return NewServiceWithDeps(db, storage, pipeline, opts, &defaultIDGenerator{}, &defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, storage Storage, pipeline Pipeline, opts Options, idGen IDGenerator, timeSrc TimeSource) *Service {
	if opts.Uploads == nil {
		opts.Uploads = storage
	}
	if opts.FormDir == "" {
		opts.FormDir = "bewirtungsbelege"
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = DefaultFetchTimeout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	return &Service{
		db:          db,
		storage:     storage,
		pipeline:    pipeline,
		opts:        opts,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

var (
	unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	spaceRuns   = regexp.MustCompile(`\s+`)
	extPattern  = regexp.MustCompile(`^\.[a-z0-9]+$`)
)

// sanitizeFilename cleans up a filename by removing special characters and truncating length
func sanitizeFilename(filename, fallback string) string {
	filename = filepath.Base(filepath.Clean("/" + filename))
	ext := strings.ToLower(filepath.Ext(filename))
	base := strings.TrimSuffix(filename, filepath.Ext(filename))

	base = unsafeChars.ReplaceAllString(base, "")
	base = spaceRuns.ReplaceAllString(base, " ")
	base = strings.TrimSpace(base)

	// Truncate to reasonable length (50 chars for base, plus extension)
	maxLen := 50
	if len(base) > maxLen {
		base = base[:maxLen]
	}

	if base == "" {
		base = fallback
	}
	if !extPattern.MatchString(ext) {
		ext = ".pdf"
	}

	return base + ext
}

// Analysis is the outcome of extracting and categorizing a document
type Analysis struct {
	Text     string
	Category scanning.Category
}

// ExtractText returns the text layer of a PDF
func (s *Service) ExtractText(data []byte) (string, error) {
	text, err := s.pipeline.Text.Extract(data)
	if err != nil {
		return "", fmt.Errorf("extracting text: %w", err)
	}
	return text, nil
}

// Categorize labels text. The label falls back to "Other" when the model fails.
func (s *Service) Categorize(ctx context.Context, text string) (scanning.Category, error) {
	if strings.TrimSpace(text) == "" {
		return scanning.Category{}, &InputError{Message: "Missing or invalid text"}
	}
	return s.pipeline.Categorizer.Categorize(ctx, text), nil
}

// Process extracts the text of a PDF and categorizes it. A PDF without a
// text layer is not sent to the model and gets the fallback category.
func (s *Service) Process(ctx context.Context, data []byte) (*Analysis, error) {
	text, err := s.ExtractText(data)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		slog.Warn("PDF has no text layer, skipping categorization", "fallback", scanning.FallbackCategory)
		return &Analysis{
			Text:     text,
			Category: scanning.Category{Label: scanning.FallbackCategory, Fallback: true},
		}, nil
	}
	return &Analysis{
		Text:     text,
		Category: s.pipeline.Categorizer.Categorize(ctx, text),
	}, nil
}

// Upload processes a PDF and keeps a copy in the upload storage under a
// unique name. It returns the analysis and the name the file was stored under.
func (s *Service) Upload(ctx context.Context, filename string, data []byte) (*Analysis, string, error) {
	analysis, err := s.Process(ctx, data)
	if err != nil {
		return nil, "", err
	}

	name := fmt.Sprintf("%s_%s", s.idGenerator.Generate(), sanitizeFilename(filename, "invoice"))
	saved, err := s.opts.Uploads.Save(name, data)
	if err != nil {
		return nil, "", fmt.Errorf("saving upload: %w", err)
	}
	return analysis, saved, nil
}

// ProcessURL downloads a PDF and processes it
func (s *Service) ProcessURL(ctx context.Context, rawURL string) (*Analysis, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, &InputError{Message: "Missing or invalid URL"}
	}

	data, err := s.fetchPDF(ctx, u.String())
	if err != nil {
		return nil, err
	}
	return s.Process(ctx, data)
}

// fetchPDF downloads target within the fetch timeout
func (s *Service) fetchPDF(ctx context.Context, target string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.FetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	resp, err := s.opts.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("downloading %s: %w", target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("downloading %s: status %d", target, resp.StatusCode)
	}
	contentType := resp.Header.Get("Content-Type")
	if !strings.Contains(strings.ToLower(contentType), "pdf") {
		return nil, &UnsupportedMediaError{ContentType: contentType}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadSize))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", target, err)
	}
	return data, nil
}

// Form is a rendered Bewirtungsbeleg
type Form struct {
	Filename string
	PDF      []byte
}

// Bewirtungsbeleg extracts the hospitality receipt fields of a PDF and
// renders them into a form. A copy is written to the form directory.
func (s *Service) Bewirtungsbeleg(ctx context.Context, filename string, data []byte) (*Form, error) {
	text, err := s.ExtractText(data)
	if err != nil {
		return nil, err
	}
	var info scanning.ReceiptInfo
	if strings.TrimSpace(text) == "" {
		slog.Warn("PDF has no text layer, skipping receipt extraction", "filename", filename)
	} else {
		info = s.pipeline.Receipts.Extract(ctx, text)
	}
	if info.IsEmpty() {
		slog.Warn("No receipt fields found, rendering a blank form", "filename", filename)
	}

	name := strings.TrimSuffix(sanitizeFilename(filename, "bewirtungsbeleg"), ".pdf") + "_form.pdf"
	pdf, err := form.Render(info, filepath.Join(s.opts.FormDir, name))
	if err != nil {
		return nil, fmt.Errorf("rendering form: %w", err)
	}
	return &Form{Filename: name, PDF: pdf}, nil
}

// MailResult is the category of one mailed invoice
type MailResult struct {
	Subject  string `json:"subject"`
	Category string `json:"category"`
}

// ScanMailbox categorizes the PDF attachments of invoice mails. Attachments
// without a readable PDF are skipped.
func (s *Service) ScanMailbox(ctx context.Context) ([]MailResult, error) {
	if s.opts.Mailbox == nil {
		return nil, ErrMailboxNotConfigured
	}

	ids, err := s.opts.Mailbox.Search(ctx, mailbox.Query())
	if err != nil {
		return nil, fmt.Errorf("searching mailbox: %w", err)
	}

	results := make([]MailResult, 0)
	for _, id := range ids {
		attachments, err := s.opts.Mailbox.Attachments(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("reading message %s: %w", id, err)
		}
		for _, att := range attachments {
			analysis, err := s.Process(ctx, att.Data)
			var extractErr *pdftext.ExtractionError
			if errors.As(err, &extractErr) {
				slog.Warn("Skipping unreadable attachment", "message", id, "filename", att.Filename, "error", err)
				continue
			}
			if err != nil {
				return nil, err
			}

			subject := att.Subject
			if subject == "" {
				subject = att.Filename
			}
			results = append(results, MailResult{Subject: subject, Category: analysis.Category.Label})
		}
	}
	slog.Info("Mailbox scan finished", "messages", len(ids), "results", len(results))
	return results, nil
}

// CreateInvoice stores the PDF and records a new pending invoice for user
func (s *Service) CreateInvoice(ctx context.Context, user User, d Details, filename string, pdf []byte) (*Invoice, error) {
	if len(pdf) == 0 {
		return nil, &InputError{Message: "PDF file is required"}
	}
	date, err := d.validate()
	if err != nil {
		return nil, err
	}

	id := s.idGenerator.Generate()
	now := s.timeSource.Now()

	savedPath, err := s.storage.Save(fmt.Sprintf("%s_%s", id, sanitizeFilename(filename, "invoice")), pdf)
	if err != nil {
		return nil, fmt.Errorf("saving file: %w", err)
	}

	inv := &Invoice{
		ID:        id,
		UserID:    user.ID,
		Status:    StatusPending,
		PDFPath:   savedPath,
		Signing:   Signing{SignedBy: user.Signer(), SignedAt: now},
		CreatedAt: now,
		UpdatedAt: now,
	}
	d.apply(inv, date)

	if err := s.db.CreateInvoice(ctx, inv); err != nil {
		if delErr := s.storage.Delete(savedPath); delErr != nil {
			slog.Warn("Failed to delete file", "filename", savedPath, "error", delErr)
		}
		return nil, fmt.Errorf("saving invoice to database: %w", err)
	}

	slog.Info("Invoice created", "id", id, "user", user.ID, "category", inv.Category)
	return s.withURL(inv), nil
}

// GetInvoice retrieves an invoice of user by ID
func (s *Service) GetInvoice(ctx context.Context, user User, id string) (*Invoice, error) {
	inv, err := s.db.GetInvoice(ctx, id, user.ID)
	if err != nil {
		return nil, fmt.Errorf("getting invoice: %w", err)
	}
	return s.withURL(inv), nil
}

// ListInvoices returns the invoices of user, newest first
func (s *Service) ListInvoices(ctx context.Context, user User) ([]*Invoice, error) {
	invoices, err := s.db.ListInvoices(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("listing invoices: %w", err)
	}
	for _, inv := range invoices {
		s.withURL(inv)
	}
	return invoices, nil
}

// UpdateInvoice edits the details of a pending invoice
func (s *Service) UpdateInvoice(ctx context.Context, user User, id string, d Details) (*Invoice, error) {
	inv, err := s.db.GetInvoice(ctx, id, user.ID)
	if err != nil {
		return nil, fmt.Errorf("getting invoice: %w", err)
	}
	if inv.Status != StatusPending {
		return nil, ErrNotPending
	}
	date, err := d.validate()
	if err != nil {
		return nil, err
	}

	now := s.timeSource.Now()
	d.apply(inv, date)
	inv.Signing = Signing{SignedBy: user.Signer(), SignedAt: now}
	inv.UpdatedAt = now

	if err := s.db.UpdateInvoice(ctx, inv); err != nil {
		return nil, fmt.Errorf("updating invoice: %w", err)
	}
	return s.withURL(inv), nil
}

// UpdateStatus approves, rejects or cancels a pending invoice
func (s *Service) UpdateStatus(ctx context.Context, user User, id string, status Status) (*Invoice, error) {
	if !status.Valid() {
		return nil, &InputError{Message: fmt.Sprintf("Unknown status: %s", status)}
	}

	signing := Signing{SignedBy: user.Signer(), SignedAt: s.timeSource.Now()}
	inv, err := s.db.UpdateStatus(ctx, id, user.ID, status, signing)
	if err != nil {
		return nil, fmt.Errorf("updating status: %w", err)
	}

	slog.Info("Invoice status changed", "id", id, "user", user.ID, "status", status)
	return s.withURL(inv), nil
}

// GetInvoiceFile retrieves the stored PDF of an invoice of user
func (s *Service) GetInvoiceFile(ctx context.Context, user User, id string) ([]byte, error) {
	inv, err := s.db.GetInvoice(ctx, id, user.ID)
	if err != nil {
		return nil, fmt.Errorf("getting invoice: %w", err)
	}
	data, err := s.storage.Get(inv.PDFPath)
	if err != nil {
		return nil, fmt.Errorf("getting invoice file: %w", err)
	}
	return data, nil
}

// GetFile retrieves a stored file by its public name. Only files attached to
// an invoice of user are served.
func (s *Service) GetFile(ctx context.Context, user User, name string) ([]byte, error) {
	invoices, err := s.db.ListInvoices(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("listing invoices: %w", err)
	}
	for _, inv := range invoices {
		if inv.PDFPath == "" || inv.PDFPath != name {
			continue
		}
		data, err := s.storage.Get(name)
		if err != nil {
			return nil, fmt.Errorf("getting file: %w", err)
		}
		return data, nil
	}
	return nil, fmt.Errorf("getting file %s: %w", name, ErrFileNotFound)
}

func (s *Service) withURL(inv *Invoice) *Invoice {
	if inv.PDFPath != "" {
		inv.PDFURL = s.storage.PublicURL(inv.PDFPath)
	}
	return inv
}
