// Package http exposes the budgeting API over plain net/http.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"festa/internal/auth"
	"festa/internal/blob"
	xlog "festa/internal/log"
	"festa/internal/services"
	"festa/internal/storage"
)

// Server wires the HTTP API on top of the budget and recalculation services.
type Server struct {
	http.Server

	budget *services.BudgetService
	recalc *services.RecalcService
	repo   *storage.SQLiteRepository
	blobs  *blob.Store
	logger *xlog.Logger

	jwtSecret string

	rateLimiter  *rateLimiter
	shutdownOnce sync.Once
}

// NewServer builds the server with all routes registered. The attachment
// store may be nil, in which case upload endpoints answer 404.
func NewServer(addr, jwtSecret string, budget *services.BudgetService, recalc *services.RecalcService, repo *storage.SQLiteRepository, blobs *blob.Store, logger *xlog.Logger) *Server {
	if logger == nil {
		logger = xlog.New(xlog.DefaultConfig()).WithComponent(xlog.ComponentHTTP)
	}
	s := &Server{
		budget:      budget,
		recalc:      recalc,
		repo:        repo,
		blobs:       blobs,
		logger:      logger,
		jwtSecret:   jwtSecret,
		rateLimiter: newRateLimiter(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", handleReady)
	mux.HandleFunc("POST /api/auth/register", s.handleRegister)

	api := http.NewServeMux()
	api.HandleFunc("GET /api/workspace", s.handleGetWorkspace)
	api.HandleFunc("PUT /api/workspace", s.handleUpdateWorkspace)

	api.HandleFunc("GET /api/events", s.handleListEvents)
	api.HandleFunc("POST /api/events", s.handleCreateEvent)
	api.HandleFunc("GET /api/events/{eventID}", s.handleGetEvent)
	api.HandleFunc("PUT /api/events/{eventID}", s.handleUpdateEvent)
	api.HandleFunc("DELETE /api/events/{eventID}", s.handleDeleteEvent)
	api.HandleFunc("GET /api/events/{eventID}/overview", s.handleOverview)
	api.HandleFunc("POST /api/events/{eventID}/recalculate", s.handleRecalculate)

	api.HandleFunc("GET /api/events/{eventID}/categories", s.handleListCategories)
	api.HandleFunc("POST /api/events/{eventID}/categories", s.handleCreateCategory)
	api.HandleFunc("PUT /api/events/{eventID}/categories/{categoryID}", s.handleUpdateCategory)
	api.HandleFunc("DELETE /api/events/{eventID}/categories/{categoryID}", s.handleDeleteCategory)

	api.HandleFunc("GET /api/events/{eventID}/expenses", s.handleListExpenses)
	api.HandleFunc("GET /api/events/{eventID}/payments/upcoming", s.handleUpcomingPayments)
	api.HandleFunc("POST /api/expenses", s.handleCreateExpense)
	api.HandleFunc("GET /api/expenses/{expenseID}", s.handleGetExpense)
	api.HandleFunc("PUT /api/expenses/{expenseID}", s.handleUpdateExpense)
	api.HandleFunc("DELETE /api/expenses/{expenseID}", s.handleDeleteExpense)
	api.HandleFunc("POST /api/payments/{paymentID}/paid", s.handleSetPaymentPaid)

	api.HandleFunc("POST /api/expenses/{expenseID}/attachments", s.handleUploadAttachment)
	api.HandleFunc("DELETE /api/attachments/{attachmentID}", s.handleDeleteAttachment)

	mux.Handle("/api/", auth.Middleware(jwtSecret)(api))

	if blobs != nil {
		prefix := blobs.URLPrefix() + "/"
		mux.Handle("GET "+prefix, http.StripPrefix(prefix, http.FileServer(http.Dir(blobs.Root()))))
	}

	handler := xlog.Middleware(logger)(s.withSecurityHeaders(mux))
	s.Server = http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Shutdown stops the rate limiter cleanup goroutine and then drains the
// HTTP server. Safe to call more than once.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

type requestIDKey struct{}

// withSecurityHeaders adds security headers, rate limiting, and request
// logging around every route.
func (s *Server) withSecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		clientIP := extractClientIP(r)
		requestID := generateRequestID()

		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		s.logger.InfoContext(ctx, "Request started",
			xlog.FieldRequestID, requestID,
			xlog.FieldMethod, r.Method,
			xlog.FieldPath, r.URL.Path,
			xlog.FieldClientIP, clientIP)

		if isMutating(r.Method) && !s.rateLimiter.allow(clientIP) {
			s.logger.WarnContext(ctx, "Rate limit exceeded",
				xlog.FieldClientIP, clientIP, xlog.FieldMethod, r.Method, xlog.FieldPath, r.URL.Path)
			w.Header().Set("Retry-After", "60")
			writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "rate limit exceeded"})
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		s.logger.InfoContext(ctx, "Request completed",
			xlog.FieldRequestID, requestID,
			xlog.FieldMethod, r.Method,
			xlog.FieldPath, r.URL.Path,
			xlog.FieldStatusCode, rw.statusCode,
			xlog.FieldDuration, time.Since(start).Milliseconds(),
			xlog.FieldClientIP, clientIP)
	})
}

func isMutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch:
		return true
	}
	return false
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleReady(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
