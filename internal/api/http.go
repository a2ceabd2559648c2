package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/faultmesh/faultline/internal/config"
	"github.com/faultmesh/faultline/internal/services"
)

// HTTPServer exposes the fault control API over HTTP JSON.
type HTTPServer struct {
	cfg      config.ServerConfig
	logger   *slog.Logger
	service  *services.FaultService
	srv      *http.Server
	listener net.Listener
}

type injectRequest struct {
	FaultType       string `json:"fault_type"`
	DurationSeconds int    `json:"duration_seconds"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// NewHTTPServer binds the control API to the configured HTTP address.
func NewHTTPServer(cfg config.ServerConfig, logger *slog.Logger, service *services.FaultService) (*HTTPServer, error) {
	lis, err := net.Listen("tcp", cfg.HTTPAddress)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", cfg.HTTPAddress, err)
	}

	s := &HTTPServer{
		cfg:      cfg,
		logger:   logger,
		service:  service,
		listener: lis,
	}
	s.srv = &http.Server{
		Handler:           logRequests(logger, s.routes()),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s, nil
}

func (s *HTTPServer) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/faults/inject", s.handleInject)
	mux.HandleFunc("POST /api/v1/faults/{kind}/cancel", s.handleCancel)
	mux.HandleFunc("GET /api/v1/faults/active", s.handleActive)
	mux.HandleFunc("GET /api/v1/faults/statistics", s.handleStatistics)
	mux.HandleFunc("GET /api/v1/faults/recovery-status", s.handleRecoveryStatus)
	mux.HandleFunc("GET /api/v1/faults/patterns", s.handlePatterns)
	mux.HandleFunc("GET /api/v1/system/metrics", s.handleSystemMetrics)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// Start serves requests until Shutdown is invoked.
func (s *HTTPServer) Start() error {
	if err := s.srv.Serve(s.listener); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests within the context deadline.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// Address exposes the bound listener address (useful for tests).
func (s *HTTPServer) Address() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *HTTPServer) handleInject(w http.ResponseWriter, r *http.Request) {
	var req injectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(s.logger, w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if req.FaultType == "" {
		writeJSON(s.logger, w, http.StatusBadRequest, errorResponse{Error: "fault_type is required"})
		return
	}

	result := s.service.InjectFault(r.Context(), req.FaultType, req.DurationSeconds)
	status := http.StatusAccepted
	if !result.Accepted {
		switch result.Reason {
		case services.ReasonUnknownKind:
			status = http.StatusNotFound
		case services.ReasonInCooldown:
			status = http.StatusConflict
		case services.ReasonShuttingDown:
			status = http.StatusServiceUnavailable
		default:
			status = http.StatusInternalServerError
		}
	}
	writeJSON(s.logger, w, status, result)
}

func (s *HTTPServer) handleCancel(w http.ResponseWriter, r *http.Request) {
	kind := r.PathValue("kind")
	if !s.service.CancelFault(kind) {
		writeJSON(s.logger, w, http.StatusNotFound, errorResponse{Error: fmt.Sprintf("no active fault of kind %s", kind)})
		return
	}
	writeJSON(s.logger, w, http.StatusOK, map[string]string{"cancelled": kind})
}

func (s *HTTPServer) handleActive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(s.logger, w, http.StatusOK, map[string]any{"active_faults": s.service.ActiveFaults()})
}

func (s *HTTPServer) handleStatistics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(s.logger, w, http.StatusOK, s.service.Statistics())
}

func (s *HTTPServer) handleRecoveryStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(s.logger, w, http.StatusOK, map[string]any{"recovery_status": s.service.RecoveryStatus()})
}

func (s *HTTPServer) handlePatterns(w http.ResponseWriter, _ *http.Request) {
	writeJSON(s.logger, w, http.StatusOK, map[string]any{"patterns": s.service.Patterns()})
}

func (s *HTTPServer) handleSystemMetrics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(s.logger, w, http.StatusOK, s.service.SystemHealth())
}

func writeJSON(logger *slog.Logger, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("encode response", "error", err)
	}
}

func logRequests(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rw.status,
			"duration", time.Since(start),
		)
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
