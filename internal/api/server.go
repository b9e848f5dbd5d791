// Package api exposes the HTTP interface for the harvester service.
package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/JakeFAU/harvester/internal/runtime"
	"github.com/JakeFAU/harvester/internal/session"
)

const defaultSubmitTimeout = 2 * time.Second

// Controller is the slice of the runtime the HTTP layer needs. The concrete
// implementation is *runtime.Runtime; tests substitute fakes.
type Controller interface {
	SubmitURLs(ctx context.Context, text string) error
	Stop(ctx context.Context) error
	View() session.ViewSnapshot
	ExportContent() (string, bool)
}

// Config carries HTTP-layer knobs.
type Config struct {
	// RequestTimeout bounds handler execution.
	RequestTimeout time.Duration
	// SubmitTimeout bounds how long a submission waits on a saturated
	// intake loop before returning backpressure.
	SubmitTimeout time.Duration
	// AuthEnabled gates the X-API-Key check.
	AuthEnabled bool
	APIKey      string
}

// Server wires HTTP handlers to the session runtime.
type Server struct {
	router  chi.Router
	ctrl    Controller
	cfg     Config
	logger  *zap.Logger
	metrics http.Handler
}

// NewServer constructs a Server with middleware and routes. The registry
// backs the /metrics endpoint and receives the HTTP request collectors.
func NewServer(ctrl Controller, registry *prometheus.Registry, logger *zap.Logger, cfg Config) *Server {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = defaultSubmitTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	s := &Server{
		ctrl:    ctrl,
		cfg:     cfg,
		logger:  logger,
		metrics: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(metricsMiddleware(registry))
	r.Use(recoverMiddleware(logger))
	r.Use(timeoutMiddleware(cfg.RequestTimeout))
	if cfg.AuthEnabled {
		r.Use(apiKeyMiddleware(cfg.APIKey))
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Get("/metrics", s.metricsHandler)

	r.Route("/v1/session", func(r chi.Router) {
		r.Get("/", s.getSession)
		r.Post("/urls", s.submitURLs)
		r.Post("/stop", s.stopSession)
		r.Get("/export", s.getExport)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(s.logger, w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(s.logger, w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) metricsHandler(w http.ResponseWriter, r *http.Request) {
	s.metrics.ServeHTTP(w, r)
}

type submitRequest struct {
	// Text is a raw block of submitted lines, one URL candidate per line.
	Text string `json:"text"`
	// URLs is the structured alternative; entries are joined by newlines.
	URLs []string `json:"urls"`
}

func (s *Server) submitURLs(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(s.logger, w, http.StatusBadRequest, "invalid JSON")
		return
	}
	text := req.Text
	if len(req.URLs) > 0 {
		if text != "" {
			text += "\n"
		}
		text += strings.Join(req.URLs, "\n")
	}
	if strings.TrimSpace(text) == "" {
		writeError(s.logger, w, http.StatusBadRequest, "no URLs submitted")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.SubmitTimeout)
	defer cancel()
	if err := s.ctrl.SubmitURLs(ctx, text); err != nil {
		switch {
		case errors.Is(err, runtime.ErrBusy):
			writeError(s.logger, w, http.StatusTooManyRequests, "intake saturated, retry later")
		case errors.Is(err, runtime.ErrNotStarted):
			writeError(s.logger, w, http.StatusServiceUnavailable, "session not running")
		default:
			writeError(s.logger, w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	writeJSON(s.logger, w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (s *Server) stopSession(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.SubmitTimeout)
	defer cancel()
	if err := s.ctrl.Stop(ctx); err != nil {
		switch {
		case errors.Is(err, runtime.ErrBusy):
			writeError(s.logger, w, http.StatusTooManyRequests, "intake saturated, retry later")
		case errors.Is(err, runtime.ErrNotStarted):
			writeError(s.logger, w, http.StatusServiceUnavailable, "session not running")
		default:
			writeError(s.logger, w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	writeJSON(s.logger, w, http.StatusAccepted, map[string]string{"status": "stopping"})
}

func (s *Server) getSession(w http.ResponseWriter, _ *http.Request) {
	writeJSON(s.logger, w, http.StatusOK, s.ctrl.View())
}

func (s *Server) getExport(w http.ResponseWriter, _ *http.Request) {
	content, ok := s.ctrl.ExportContent()
	if !ok {
		writeError(s.logger, w, http.StatusNotFound, "export not available")
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(content)); err != nil {
		s.logger.Error("export write failed", zap.Error(err))
	}
}

type requestIDKey struct{}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("error", rec))
					writeError(logger, w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// metricsMiddleware records request counts and latencies, labeled by the chi
// route pattern rather than the raw path to keep cardinality bounded.
func metricsMiddleware(registry *prometheus.Registry) func(http.Handler) http.Handler {
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "harvester_http_requests_total",
		Help: "Total HTTP requests, labeled by method and status code.",
	}, []string{"method", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "harvester_http_request_duration_seconds",
		Help:    "Histogram of HTTP request latencies, labeled by method and route.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}, []string{"method", "route"})
	registry.MustRegister(requests, duration)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)

			route := chi.RouteContext(r.Context()).RoutePattern()
			if route == "" {
				route = "unknown"
			}
			requests.WithLabelValues(r.Method, strconv.Itoa(ww.status)).Inc()
			duration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeError(zap.NewNop(), w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

func writeJSON(logger *zap.Logger, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("write JSON failed", zap.Error(err))
	}
}

func writeError(logger *zap.Logger, w http.ResponseWriter, status int, msg string) {
	writeJSON(logger, w, status, map[string]string{"error": msg})
}
