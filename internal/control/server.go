package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vietddude/pdfmend/internal/core/config"
	"github.com/vietddude/pdfmend/internal/infra/storage"
	"github.com/vietddude/pdfmend/internal/repair/recovery"
)

// HealthChecker reports whether a dependency is reachable.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Server provides the HTTP endpoints.
type Server struct {
	service  *Service
	checker  HealthChecker
	maxBytes int64
	server   *http.Server
	log      *slog.Logger
}

// RecoverResponse is the body of POST /recover.
type RecoverResponse struct {
	Digest   string           `json:"digest"`
	Archived bool             `json:"archived"`
	Report   *recovery.Report `json:"report"`
}

// NewServer creates a new HTTP server. checker may be nil.
func NewServer(service *Service, checker HealthChecker, cfg config.ServerConfig, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()
	s := &Server{
		service:  service,
		checker:  checker,
		maxBytes: cfg.MaxBodyBytes,
		server: &http.Server{
			Addr:        fmt.Sprintf(":%d", cfg.Port),
			Handler:     mux,
			ReadTimeout: cfg.ReadTimeout,
		},
		log: logger.With("component", "http"),
	}

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("POST /recover", s.handleRecover)
	mux.HandleFunc("POST /diagnose", s.handleDiagnose)
	mux.HandleFunc("GET /reports/{id}", s.handleReport)
	mux.HandleFunc("GET /reports", s.handleHistory)

	return s
}

// Handler exposes the routes, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]string{"status": "healthy", "archive": s.service.Backend()}
	status := http.StatusOK
	if s.checker != nil {
		if err := s.checker.Health(r.Context()); err != nil {
			response["status"] = "degraded"
			response["error"] = err.Error()
			status = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, status, response)
}

func (s *Server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body := r.Body
	if s.maxBytes > 0 {
		body = http.MaxBytesReader(w, r.Body, s.maxBytes)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, err)
		} else {
			writeError(w, http.StatusBadRequest, err)
		}
		return nil, false
	}
	return data, true
}

func (s *Server) handleRecover(w http.ResponseWriter, r *http.Request) {
	var level *recovery.Level
	if name := r.URL.Query().Get("level"); name != "" {
		l, err := recovery.ParseLevel(name)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		level = &l
	}

	data, ok := s.readBody(w, r)
	if !ok {
		return
	}

	out, err := s.service.Recover(r.Context(), r.URL.Query().Get("source"), data, level)
	if err != nil {
		// The recovery itself succeeded; only archiving failed.
		s.log.Warn("Report not archived", "error", err)
	}

	if r.URL.Query().Get("format") == "pdf" {
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("X-Report-ID", out.Report.ID)
		w.Header().Set("X-Report-Tier", string(out.Report.Tier))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(out.Data)
		return
	}
	writeJSON(w, http.StatusOK, RecoverResponse{
		Digest:   out.Digest,
		Archived: out.Archived,
		Report:   out.Report,
	})
}

func (s *Server) handleDiagnose(w http.ResponseWriter, r *http.Request) {
	data, ok := s.readBody(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.service.Diagnose(r.Context(), data))
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	rec, err := s.service.Report(r.Context(), r.PathValue("id"))
	if errors.Is(err, storage.ErrReportNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	digest := r.URL.Query().Get("digest")
	if digest == "" {
		writeError(w, http.StatusBadRequest, errors.New("digest is required"))
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", v))
			return
		}
		limit = n
	}
	recs, err := s.service.History(r.Context(), digest, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
