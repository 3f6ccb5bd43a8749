package main

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/invoice-tracker/internal/invoice"
	"github.com/zombor/invoice-tracker/internal/mailbox"
	"github.com/zombor/invoice-tracker/internal/pdftext"
	"github.com/zombor/invoice-tracker/internal/scanning"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	// A missing .env file is fine
	_ = godotenv.Load()

	fs := ff.NewFlagSet("invoice-tracker")
	var (
		port         = fs.IntLong("port", 8080, "HTTP server port")
		dbPath       = fs.StringLong("db", "invoice-tracker.db", "BoltDB file path, used without --database-url")
		databaseURL  = fs.StringLong("database-url", "", "PostgreSQL connection URL (postgres://...)")
		storagePath  = fs.StringLong("storage", "./invoices", "Directory for invoice PDFs")
		uploadsPath  = fs.StringLong("uploads", "./uploads", "Directory for files posted to /api/upload")
		formsPath    = fs.StringLong("forms", "./bewirtungsbelege", "Directory for rendered Bewirtungsbelege")
		publicURL    = fs.StringLong("public-url", "", "Base URL stored files are published under (default http://localhost:<port>)")
		modelType    = fs.StringLong("model", "ollama", "Language model backend: 'ollama', 'gemini' or 'openai'")
		ollamaURL    = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel  = fs.StringLong("ollama-model", "mistral", "Ollama model name")
		geminiKey    = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel  = fs.StringLong("gemini-model", "gemini-2.5-flash", "Google Gemini model name")
		openaiKey    = fs.StringLong("openai-key", "", "OpenAI API key (or set OPENAI_API_KEY env var)")
		openaiURL    = fs.StringLong("openai-url", "", "OpenAI compatible API base URL")
		openaiModel  = fs.StringLong("openai-model", "", "OpenAI model name")
		modelTimeout = fs.DurationLong("model-timeout", 60*time.Second, "Timeout for every language model call")
		fetchTimeout = fs.DurationLong("fetch-timeout", invoice.DefaultFetchTimeout, "Timeout for downloading PDFs by URL")
		pdfEngine    = fs.StringLong("pdf-engine", pdftext.EngineMuPDF, "PDF text engine: 'mupdf' or 'native'")
		users        = fs.StringLong("users", "", "Basic auth accounts as user:password[:email], comma separated (optional)")
		gmailCreds   = fs.StringLong("gmail-credentials", "", "Gmail OAuth client credentials file (enables /api/gmail-scan)")
		gmailToken   = fs.StringLong("gmail-token", "token.json", "Gmail OAuth token file written by gmail-auth")
		logLevel     = fs.StringLong("log-level", "info", "Log level: debug, info, warn or error")
		logFormat    = fs.StringLong("log-format", "text", "Log format: 'text' or 'json'")
		showVersion  = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("INVOICE_TRACKER"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Check version flag after parsing
	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	if err := setupLogging(*logLevel, *logFormat); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize database
	slog.Info("Initializing database...")
	var db invoice.DB
	var err error
	if *databaseURL != "" {
		db, err = invoice.NewPostgresDB(ctx, *databaseURL)
	} else {
		db, err = invoice.NewBoltDB(*dbPath)
	}
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Initialize language model
	model, err := newModel(*modelType, modelConfig{
		ollamaURL:   *ollamaURL,
		ollamaModel: *ollamaModel,
		geminiKey:   firstNonEmpty(*geminiKey, os.Getenv("GEMINI_API_KEY")),
		geminiModel: *geminiModel,
		openaiKey:   firstNonEmpty(*openaiKey, os.Getenv("OPENAI_API_KEY")),
		openaiURL:   *openaiURL,
		openaiModel: *openaiModel,
	})
	if err != nil {
		slog.Error("Failed to initialize language model", "backend", *modelType, "error", err)
		os.Exit(1)
	}
	defer model.Close()

	extractor, err := pdftext.New(*pdfEngine)
	if err != nil {
		slog.Error("Invalid PDF engine", "engine", *pdfEngine, "error", err)
		os.Exit(1)
	}

	// Initialize storage
	slog.Info("Initializing storage...")
	if *publicURL == "" {
		*publicURL = fmt.Sprintf("http://localhost:%d", *port)
	}
	store, err := invoice.NewLocalStorage(*storagePath, *publicURL)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}
	uploads, err := invoice.NewLocalStorage(*uploadsPath, *publicURL)
	if err != nil {
		slog.Error("Failed to initialize upload storage", "error", err)
		os.Exit(1)
	}

	opts := invoice.Options{
		Uploads:      uploads,
		FormDir:      *formsPath,
		FetchTimeout: *fetchTimeout,
	}
	if *gmailCreds != "" {
		box, err := mailbox.NewGmail(ctx, *gmailCreds, *gmailToken)
		if err != nil {
			slog.Error("Failed to initialize Gmail", "error", err)
			os.Exit(1)
		}
		opts.Mailbox = box
		slog.Info("Gmail scanning enabled")
	}

	accounts, err := invoice.ParseAccounts(*users)
	if err != nil {
		slog.Error("Invalid --users", "error", err)
		os.Exit(1)
	}

	pipeline := invoice.NewPipeline(extractor, model, *modelTimeout)
	service := invoice.NewService(db, store, pipeline, opts)
	server := invoice.NewServer(service, accounts)

	// Start server in goroutine
	addr := fmt.Sprintf(":%d", *port)
	go func() {
		if err := server.Start(addr); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started",
		"address", fmt.Sprintf("http://localhost%s", addr),
		"version", version,
		"model", *modelType,
		"pdf_engine", *pdfEngine,
	)
	if len(accounts) > 0 {
		slog.Info("Basic auth enabled", "users", len(accounts))
	}

	// Wait for interrupt signal
	<-ctx.Done()

	slog.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Shutdown error", "error", err)
	}
}

type modelConfig struct {
	ollamaURL, ollamaModel string
	geminiKey, geminiModel string
	openaiKey, openaiURL   string
	openaiModel            string
}

// newModel builds the configured language model backend
func newModel(kind string, cfg modelConfig) (scanning.Model, error) {
	switch kind {
	case "ollama":
		slog.Info("Initializing Ollama...", "url", cfg.ollamaURL, "model", cfg.ollamaModel)
		return scanning.NewOllama(cfg.ollamaURL, cfg.ollamaModel)
	case "gemini":
		if cfg.geminiKey == "" {
			return nil, fmt.Errorf("gemini API key is required: set --gemini-key or GEMINI_API_KEY")
		}
		slog.Info("Initializing Gemini...", "model", cfg.geminiModel)
		return scanning.NewGemini(cfg.geminiKey, cfg.geminiModel)
	case "openai":
		slog.Info("Initializing OpenAI...", "url", cfg.openaiURL, "model", cfg.openaiModel)
		return scanning.NewOpenAI(cfg.openaiKey, cfg.openaiURL, cfg.openaiModel)
	default:
		return nil, fmt.Errorf("unknown model backend %q: use ollama, gemini or openai", kind)
	}
}

// setupLogging installs the default slog logger
func setupLogging(level, format string) error {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}

	handlerOpts := &slog.HandlerOptions{Level: lvl}
	switch format {
	case "text":
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, handlerOpts)))
	case "json":
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, handlerOpts)))
	default:
		return fmt.Errorf("invalid log format %q: use text or json", format)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
