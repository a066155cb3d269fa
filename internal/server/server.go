// Package server is the HTTP face of the gateway: route dispatch, auth
// and request-ID middleware, and JSON encoding. All decisions live in
// the gateway; handlers only translate errors to transport statuses.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"golang.org/x/crypto/bcrypt"

	"shellgate/internal/gateway"
)

const shutdownTimeout = 5 * time.Second

// Server exposes the gateway over HTTP.
type Server struct {
	gw     *gateway.Gateway
	router *mux.Router
	logger *slog.Logger

	// authHash is the bcrypt hash of the configured auth token, or nil
	// when auth is disabled.
	authHash []byte
}

// New builds the HTTP server. authToken, when non-empty, is required as
// a bearer token on every /api route.
func New(gw *gateway.Gateway, authToken string) (*Server, error) {
	s := &Server{gw: gw}

	if authToken != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(authToken), bcrypt.DefaultCost)
		if err != nil {
			return nil, err
		}
		s.authHash = hash
	}

	r := mux.NewRouter()
	r.Use(s.recoverPanic)
	r.Use(s.requestID)

	r.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(s.requireAuth)
	api.HandleFunc("/session", s.handleCreateSession).Methods(http.MethodPost)
	api.HandleFunc("/execute", s.handleExecute).Methods(http.MethodPost)
	api.HandleFunc("/history", s.handleHistory).Methods(http.MethodGet)
	api.HandleFunc("/config", s.handleConfig).Methods(http.MethodGet)

	s.router = r
	return s, nil
}

func (s *Server) SetLogger(logger *slog.Logger) {
	s.logger = logger
}

// Handler returns the routing handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:    addr,
		Handler: s.router,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	s.logInfo("server_listening", "addr", addr)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "server": "shellgate"})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, _ *http.Request) {
	id, err := s.gw.CreateSession()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"session_id": id})
}

// executeRequest is the JSON body for POST /api/execute. Form-encoded
// bodies with the same fields are accepted too.
type executeRequest struct {
	Command   string `json:"command"`
	SessionID string `json:"session_id"`
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	req, err := decodeExecuteRequest(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, execErr := s.gw.Execute(r.Context(), gateway.Request{
		ClientID:  clientID(r),
		SessionID: req.SessionID,
		Command:   req.Command,
	})

	switch {
	case execErr == nil:
		s.writeJSON(w, http.StatusOK, result)
	case errors.Is(execErr, gateway.ErrRateLimited):
		s.writeError(w, http.StatusTooManyRequests, execErr.Error())
	case errors.Is(execErr, gateway.ErrSessionInvalid):
		s.writeError(w, http.StatusForbidden, execErr.Error())
	case errors.Is(execErr, gateway.ErrEmptyCommand):
		s.writeError(w, http.StatusBadRequest, execErr.Error())
	default:
		var denied *gateway.PolicyDeniedError
		if errors.As(execErr, &denied) {
			s.writeJSON(w, http.StatusForbidden, result)
			return
		}
		s.logError("execute_failed", "error", execErr)
		s.writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func decodeExecuteRequest(r *http.Request) (executeRequest, error) {
	var req executeRequest
	ct := r.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "application/json") {
		err := json.NewDecoder(r.Body).Decode(&req)
		return req, err
	}
	if err := r.ParseForm(); err != nil {
		return req, err
	}
	req.Command = r.PostFormValue("command")
	req.SessionID = r.PostFormValue("session_id")
	return req, nil
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}

	records, err := s.gw.History(sessionID, limit)
	if err != nil {
		s.writeError(w, http.StatusForbidden, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleConfig(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.gw.ConfigSnapshot())
}

// recoverPanic keeps a handler panic from killing the listener; the
// client gets a generic 500.
func (s *Server) recoverPanic(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logError("handler_panic", "path", r.URL.Path, "panic", rec)
				s.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// requestID tags each request with a UUID for log correlation.
func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		w.Header().Set("X-Request-Id", id)
		s.logDebug("request", "id", id, "method", r.Method, "path", r.URL.Path, "remote", r.RemoteAddr)
		next.ServeHTTP(w, r)
	})
}

// requireAuth enforces the bearer token when one is configured.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.authHash == nil {
			next.ServeHTTP(w, r)
			return
		}
		token := bearerToken(r)
		if token == "" || bcrypt.CompareHashAndPassword(s.authHash, []byte(token)) != nil {
			s.writeError(w, http.StatusUnauthorized, "missing or invalid auth token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}

// clientID derives the rate-limit identity from the source address.
func clientID(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logError("write_response_failed", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, reason string) {
	s.writeJSON(w, status, map[string]string{"error": reason})
}

func (s *Server) logDebug(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}

func (s *Server) logInfo(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Info(msg, args...)
	}
}

func (s *Server) logError(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Error(msg, args...)
	}
}
