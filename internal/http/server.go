// Package http exposes the ledger over a JSON API.
package http

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"rovledger/internal/auth"
	"rovledger/internal/core"
	"rovledger/internal/services"
)

// RateSource reads the current USD to INR rate.
type RateSource interface {
	Latest(ctx context.Context) (float64, error)
}

type Server struct {
	http.Server
	ledger       *services.Ledger
	rates        RateSource
	tokens       *auth.TokenService
	loginLimiter *loginLimiter

	started      time.Time
	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, ledger *services.Ledger, rates RateSource, tokens *auth.TokenService, loginPerMinute, loginBurst int) *Server {
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
		ledger:       ledger,
		rates:        rates,
		tokens:       tokens,
		loginLimiter: newLoginLimiter(loginPerMinute, loginBurst),
		started:      time.Now(),
	}

	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)

	mux.HandleFunc("POST /api/login", s.withRequestLogging(s.handleLogin))

	mux.HandleFunc("GET /api/rate", s.withRequestLogging(s.requireAuth(s.handleRate)))
	mux.HandleFunc("GET /api/dashboard", s.withRequestLogging(s.requireAuth(s.handleDashboard)))
	mux.HandleFunc("GET /api/accounts", s.withRequestLogging(s.requireAuth(s.handleListAccounts)))
	mux.HandleFunc("GET /api/accounts/{id}/balance", s.withRequestLogging(s.requireAuth(s.handleAccountBalance)))
	mux.HandleFunc("GET /api/categories", s.withRequestLogging(s.requireAuth(s.handleListCategories)))
	mux.HandleFunc("GET /api/transactions", s.withRequestLogging(s.requireAuth(s.handleListTransactions)))
	mux.HandleFunc("GET /api/transactions/{id}", s.withRequestLogging(s.requireAuth(s.handleGetTransaction)))
	mux.HandleFunc("GET /api/transactions/{id}/splits", s.withRequestLogging(s.requireAuth(s.handleListSplits)))

	mux.HandleFunc("POST /api/transactions", s.withRequestLogging(s.requireAdmin(s.handleCreateTransaction)))
	mux.HandleFunc("POST /api/transactions/{id}/void", s.withRequestLogging(s.requireAdmin(s.handleVoidTransaction)))
	mux.HandleFunc("POST /api/transactions/{id}/splits", s.withRequestLogging(s.requireAdmin(s.handleAddSplits)))
	mux.HandleFunc("POST /api/transfers", s.withRequestLogging(s.requireAdmin(s.handleTransfer)))

	return s
}

// Shutdown gracefully shuts down the server and its helpers.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.loginLimiter.stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

type contextKey string

const (
	requestIDContextKey contextKey = "request_id"
	usernameContextKey  contextKey = "username"
	roleContextKey      contextKey = "role"
)

// withRequestLogging adds security headers, a request ID, and start/finish
// logging around each handler.
func (s *Server) withRequestLogging(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := generateRequestID()
		ctx := context.WithValue(r.Context(), requestIDContextKey, requestID)
		r = r.WithContext(ctx)

		slog.InfoContext(ctx, "Request started",
			"request_id", requestID,
			"method", r.Method,
			"url", r.URL.Path,
			"client_ip", clientIP(r))

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		slog.InfoContext(ctx, "Request completed",
			"request_id", requestID,
			"method", r.Method,
			"url", r.URL.Path,
			"status", rw.statusCode,
			"duration_ms", time.Since(start).Milliseconds())
	}
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// generateRequestID creates a unique request ID for tracing
func generateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}

// clientIP extracts the client address, considering proxies.
func clientIP(r *http.Request) string {
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		return ip
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	return r.RemoteAddr
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.started).String(),
	})
}

// handleReady verifies the database answers before reporting ready.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]any)

	if _, err := s.ledger.ListAccounts(ctx); err != nil {
		checks["database"] = fmt.Sprintf("failed: %v", err)
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["database"] = "ok"
	}

	w.WriteHeader(httpStatus)
	json.NewEncoder(w).Encode(map[string]any{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	})
}

// requireAuth rejects requests without a valid bearer token and stores the
// caller identity in the request context.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		username, role, ok := s.authenticate(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "invalid or missing token")
			return
		}
		ctx := context.WithValue(r.Context(), usernameContextKey, username)
		ctx = context.WithValue(ctx, roleContextKey, role)
		next(w, r.WithContext(ctx))
	}
}

// requireAdmin additionally rejects viewer tokens on mutating routes.
func (s *Server) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return s.requireAuth(func(w http.ResponseWriter, r *http.Request) {
		role, _ := r.Context().Value(roleContextKey).(core.Role)
		if role != core.RoleAdmin {
			writeError(w, http.StatusForbidden, "admin role required")
			return
		}
		next(w, r)
	})
}

func (s *Server) authenticate(r *http.Request) (string, core.Role, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", "", false
	}
	tokenString := header
	if len(header) > 7 && header[:7] == "Bearer " {
		tokenString = header[7:]
	}
	username, role, err := s.tokens.Validate(tokenString)
	if err != nil {
		return "", "", false
	}
	return username, role, true
}
