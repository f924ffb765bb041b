package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/rcarls/ghast/internal/config"
	"github.com/rcarls/ghast/internal/indieweb"
	"github.com/rcarls/ghast/internal/logging"
	"github.com/rcarls/ghast/internal/metrics"
)

// Ingester runs the ingestion flows.
type Ingester interface {
	IngestCreate(ctx context.Context, props indieweb.Properties) (indieweb.Note, error)
	IngestReaction(ctx context.Context, source, target string, props indieweb.Properties) error
	Permalink(slug string) string
}

// SourceLoader fetches and parses a webmention source.
type SourceLoader interface {
	LoadSource(ctx context.Context, source, target string) (indieweb.Properties, error)
}

// ReadinessCheck reports whether a downstream dependency is usable.
type ReadinessCheck func(ctx context.Context) error

// RequestIDs produces request correlation IDs.
type RequestIDs interface {
	RequestID() string
}

// Server wires HTTP handlers to the ingestion pipeline and note store.
type Server struct {
	router   chi.Router
	ingester Ingester
	sources  SourceLoader
	notes    indieweb.NoteStore
	ready    []ReadinessCheck
	cfg      config.Config
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	ingester Ingester,
	sources SourceLoader,
	notes indieweb.NoteStore,
	ids RequestIDs,
	cfg config.Config,
	logger *zap.Logger,
	ready ...ReadinessCheck,
) *Server {
	s := &Server{
		ingester: ingester,
		sources:  sources,
		notes:    notes,
		ready:    ready,
		cfg:      cfg,
		logger:   logging.Named(logger, "api"),
	}
	timeout := cfg.Server.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware(ids))
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(timeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(bearerTokenMiddleware(cfg.Auth.Token))
		}
		r.Post("/micropub", s.micropub)
	})
	r.Post("/webmention", s.webmention)

	r.Route("/notes", func(r chi.Router) {
		r.Get("/", s.listNotes)
		r.Get("/{slug}", s.getNote)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	for _, check := range s.ready {
		if err := check(r.Context()); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// writeFailure maps an ingestion failure onto a status code. Server-side
// failures carry a generic message.
func (s *Server) writeFailure(w http.ResponseWriter, err error) {
	rejection := indieweb.ReasonFor(err)
	status := http.StatusInternalServerError
	switch rejection.Kind {
	case indieweb.RejectValidation, indieweb.RejectIdentityMismatch:
		status = http.StatusBadRequest
	case indieweb.RejectNotFound:
		status = http.StatusNotFound
	default:
		s.logger.Error("request failed", zap.Error(err))
	}
	s.writeJSON(w, status, map[string]string{
		"error":             string(rejection.Kind),
		"error_description": rejection.Message,
	})
}

func requestIDMiddleware(ids RequestIDs) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := r.Header.Get("X-Request-ID")
			if reqID == "" {
				reqID = ids.RequestID()
			}
			ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
			w.Header().Set("X-Request-ID", reqID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequestID returns the correlation ID stored by the request ID middleware.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("request_id", RequestID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec))
				s.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
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

type requestIDKey struct{}

// bearerTokenMiddleware accepts the token from the Authorization header or
// the access_token query parameter.
func bearerTokenMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, found := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !found {
				token = r.URL.Query().Get("access_token")
			}
			switch {
			case token == "":
				writeJSONResponse(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			case token != expected:
				writeJSONResponse(w, http.StatusForbidden, map[string]string{"error": "forbidden"})
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	if err := writeJSONResponse(w, status, payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSONResponse(w http.ResponseWriter, status int, payload any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		return fmt.Errorf("encode response: %w", err)
	}
	return nil
}
