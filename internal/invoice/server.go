package invoice

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Server handles HTTP requests for invoices and document processing
type Server struct {
	service  *Service
	accounts Accounts
	mux      *http.ServeMux
	handler  http.Handler
	srv      *http.Server
}

// NewServer creates a new Server with default mux. With no accounts every
// request runs as AnonymousUser.
func NewServer(service *Service, accounts Accounts) *Server {
	return NewServerWithMux(service, accounts, http.NewServeMux())
}

// NewServerWithMux creates a new Server with a custom mux for testing
func NewServerWithMux(service *Service, accounts Accounts, mux *http.ServeMux) *Server {
	s := &Server{
		service:  service,
		accounts: accounts,
		mux:      mux,
	}
	s.registerRoutes()
	s.handler = s.logRequests(s.corsMiddleware(s.mux))
	return s
}

// authenticate resolves the user of a request
func (s *Server) authenticate(r *http.Request) (User, bool) {
	if len(s.accounts) == 0 {
		return AnonymousUser, true
	}

	username, password, ok := r.BasicAuth()
	if !ok {
		return User{}, false
	}
	return s.accounts.Authenticate(username, password)
}

// corsMiddleware adds CORS headers to responses
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setCORSHeaders(w)

		// Handle preflight OPTIONS requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// requireAuth middleware stores the authenticated user in the request context
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := s.authenticate(r)
		if !ok {
			w.Header().Set("WWW-Authenticate", `Basic realm="Invoice Tracker"`)
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		next(w, r.WithContext(WithUser(r.Context(), user)))
	}
}

// statusRecorder captures the status code written by a handler
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

// logRequests logs method, path, status and duration of every request
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		slog.Info("Request handled",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// registerRoutes registers all API routes on the server's mux
func (s *Server) registerRoutes() {
	// Document processing
	s.mux.HandleFunc("POST /api/extract-text", s.requireAuth(s.handleExtractText))
	s.mux.HandleFunc("POST /api/categorize", s.requireAuth(s.handleCategorize))
	s.mux.HandleFunc("POST /api/process", s.requireAuth(s.handleProcess))
	s.mux.HandleFunc("POST /api/upload", s.requireAuth(s.handleUpload))
	s.mux.HandleFunc("POST /api/download-url", s.requireAuth(s.handleDownloadURL))
	s.mux.HandleFunc("POST /api/bewirtungsbeleg", s.requireAuth(s.handleBewirtungsbeleg))
	s.mux.HandleFunc("GET /api/gmail-scan", s.requireAuth(s.handleGmailScan))

	// Invoices
	s.mux.HandleFunc("GET /api/invoices/{id}/file", s.requireAuth(s.handleGetInvoiceFile))
	s.mux.HandleFunc("POST /api/invoices/{id}/status", s.requireAuth(s.handleUpdateStatus))
	s.mux.HandleFunc("GET /api/invoices/{id}", s.requireAuth(s.handleGetInvoice))
	s.mux.HandleFunc("PUT /api/invoices/{id}", s.requireAuth(s.handleUpdateInvoice))
	s.mux.HandleFunc("GET /api/invoices", s.requireAuth(s.handleListInvoices))
	s.mux.HandleFunc("POST /api/invoices", s.requireAuth(s.handleCreateInvoice))

	s.mux.HandleFunc("GET /api/dashboard", s.requireAuth(s.handleDashboard))
	s.mux.HandleFunc("GET /api/export.xlsx", s.requireAuth(s.handleExport))

	// Object store
	s.mux.HandleFunc("GET /files/{name}", s.requireAuth(s.handleGetFile))
}

// Start starts the HTTP server and blocks until it stops
func (s *Server) Start(addr string) error {
	slog.Info("Starting server", "address", addr)
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops a started server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}
