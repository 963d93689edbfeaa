// Package server serves the bills JSON API and the bill pages.
package server

import (
	"encoding/base64"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/zombor/billed/internal/bill"
	"github.com/zombor/billed/internal/metrics"
)

// BasicAuth holds basic authentication credentials
type BasicAuth struct {
	Username string
	Password string
}

// Config wires a Server. API and Files are optional: when API is nil the
// JSON API is not served and the pages run against Pages alone.
type Config struct {
	// API is the store served under /api
	API bill.ScopedStore

	// Pages is the store the page controllers consume
	Pages bill.Store

	// Files serves receipts under /files/
	Files bill.Storage

	BasicAuth     BasicAuth
	Metrics       *metrics.Recorder
	TestAccounts  []string
	AwaitUpdates  bool
	SecureCookies bool
}

// Server handles HTTP requests for bills
type Server struct {
	cfg     Config
	mux     *http.ServeMux
	notices *noticeBoard
	pending sync.WaitGroup
}

// NewServer creates a new Server with default mux
func NewServer(cfg Config) *Server {
	return NewServerWithMux(cfg, http.NewServeMux())
}

// NewServerWithMux creates a new Server with a custom mux for testing
func NewServerWithMux(cfg Config, mux *http.ServeMux) *Server {
	s := &Server{
		cfg:     cfg,
		mux:     mux,
		notices: newNoticeBoard(),
	}
	s.registerRoutes()
	return s
}

// authenticate checks basic auth credentials
func (s *Server) authenticate(r *http.Request) bool {
	auth := s.cfg.BasicAuth
	if auth.Username == "" && auth.Password == "" {
		return true
	}

	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Basic ") {
		return false
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(header, "Basic "))
	if err != nil {
		return false
	}
	username, password, ok := strings.Cut(string(decoded), ":")
	if !ok {
		return false
	}
	return username == auth.Username && password == auth.Password
}

// requireAuth middleware
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.authenticate(r) {
			setCORSHeaders(w)
			w.Header().Set("WWW-Authenticate", `Basic realm="Billed"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// statusRecorder remembers the status code written through it
type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.code = code
	s.ResponseWriter.WriteHeader(code)
}

// instrument records the latency of every request to pattern
func (s *Server) instrument(pattern string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next(rec, r)
		s.cfg.Metrics.ObserveRequest(pattern, rec.code, time.Since(start))
	}
}

func (s *Server) handle(pattern string, h http.HandlerFunc) {
	s.mux.HandleFunc(pattern, s.instrument(pattern, s.requireAuth(h)))
}

// registerRoutes registers the API, file and page routes
func (s *Server) registerRoutes() {
	if s.cfg.API != nil {
		s.handle("GET /api/bills", s.handleListBills)
		s.handle("POST /api/bills", s.handleCreateBill)
		s.handle("PATCH /api/bills/{id}", s.handleUpdateBill)
	}
	if s.cfg.Files != nil {
		s.handle("GET /files/{key}", s.handleGetFile)
	}
	if s.cfg.Metrics != nil {
		s.handle("GET /metrics", s.cfg.Metrics.Handler().ServeHTTP)
	}

	s.handle("GET /{$}", s.page(s.handleLoginPage))
	s.handle("POST /login", s.page(s.handleLogin))
	s.handle("POST /logout", s.page(s.handleLogout))

	s.handle("GET /bills", s.page(s.handleBillsPage))
	s.handle("POST /bills", s.page(s.handleClickNewBill))
	s.handle("GET /bills/new", s.page(s.handleNewBillPage))
	s.handle("POST /bills/new/file", s.page(s.handleChangeFile))
	s.handle("POST /bills/new", s.page(s.handleSubmitBill))

	s.handle("GET /dashboard", s.page(s.handleDashboardPage))
	s.handle("POST /dashboard/tickets/{index}", s.page(s.handleShowTickets))
	s.handle("POST /dashboard/bills/{id}/edit", s.page(s.handleEditTicket))
	s.handle("POST /dashboard/bills/{id}/decision", s.page(s.handleDecision))
}

// ServeHTTP answers preflight requests and hands the rest to the mux
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.mux.ServeHTTP(w, r)
}

// Wait blocks until bill updates still running after their request have
// finished. Call it after the HTTP server has shut down.
func (s *Server) Wait() {
	slog.Info("Waiting for pending bill updates")
	s.pending.Wait()
}

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}
