// Package http exposes resources, sessions and files over a chi router.
package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/artpar/pocket/adapters/metrics"
	"github.com/artpar/pocket/core/runtime"
	"github.com/artpar/pocket/core/users"
	"github.com/artpar/pocket/ports"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// Options configures the router.
type Options struct {
	Runtime *runtime.Runtime
	Users   *users.Manager

	// Files enables the /files routes when set.
	Files ports.FileStore

	// Metrics records request metrics when set. MetricsHandler is mounted
	// at MetricsPath (default /metrics).
	Metrics        *metrics.Collector
	MetricsHandler http.Handler
	MetricsPath    string

	// AllowSignup enables POST /auth/signup.
	AllowSignup bool

	// MaxBodyBytes caps JSON request bodies. Defaults to 1 MiB.
	MaxBodyBytes int64

	// MaxUploadBytes caps file uploads. Defaults to 32 MiB.
	MaxUploadBytes int64

	// RequestTimeout bounds each request. Defaults to 60s.
	RequestTimeout time.Duration

	Logger zerolog.Logger
}

// Handler serves the HTTP API.
type Handler struct {
	rt      *runtime.Runtime
	users   *users.Manager
	files   ports.FileStore
	metrics *metrics.Collector
	opts    Options
	logger  zerolog.Logger
}

// NewRouter builds the router for opts.
func NewRouter(opts Options) chi.Router {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 1 << 20
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 32 << 20
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 60 * time.Second
	}
	if opts.MetricsPath == "" {
		opts.MetricsPath = "/metrics"
	}

	h := &Handler{
		rt:      opts.Runtime,
		users:   opts.Users,
		files:   opts.Files,
		metrics: opts.Metrics,
		opts:    opts,
		logger:  opts.Logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(NewLoggingMiddleware(opts.Logger, opts.MetricsPath))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(opts.RequestTimeout))
	if opts.Metrics != nil {
		r.Use(NewMetricsMiddleware(opts.Metrics, opts.MetricsPath))
	}
	r.Use(h.session)

	r.Get("/health", h.liveness)
	r.Get("/health/ready", h.readiness)
	if opts.MetricsHandler != nil {
		r.Handle(opts.MetricsPath, opts.MetricsHandler)
	}

	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", h.login)
		if opts.AllowSignup {
			r.Post("/signup", h.signup)
		}
		r.Get("/me", h.me)
		r.Post("/refresh", h.refresh)
	})

	r.Route("/resources", func(r chi.Router) {
		r.Get("/", h.listResources)
		r.Get("/{resource}", h.find)
		r.Post("/{resource}", h.create)
		r.Get("/{resource}/{id}", h.get)
		r.Patch("/{resource}/{id}", h.merge)
		r.Delete("/{resource}/{id}", h.remove)
	})

	if opts.Files != nil {
		r.Route("/files", func(r chi.Router) {
			r.Post("/{name}", h.upload)
			r.Get("/{name}", h.download)
			r.Delete("/{name}", h.deleteFile)
		})
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "method not allowed"})
	})
	return r
}

func (h *Handler) liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// readiness reports whether the storage adapter accepts calls.
func (h *Handler) readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.rt.Adapter().Ready(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unavailable",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func internalPath(path, metricsPath string) bool {
	return strings.HasPrefix(path, "/health") || path == metricsPath
}

// NewMetricsMiddleware records request counts and latency per route pattern.
func NewMetricsMiddleware(m *metrics.Collector, metricsPath string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if internalPath(r.URL.Path, metricsPath) {
				next.ServeHTTP(w, r)
				return
			}

			m.RequestsInFlight.Inc()
			defer m.RequestsInFlight.Dec()

			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if p := rctx.RoutePattern(); p != "" {
					route = p
				}
			}
			m.RequestsTotal.WithLabelValues(r.Method, route, metrics.StatusClass(ww.Status())).Inc()
			m.RequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

// NewLoggingMiddleware logs each request at debug level.
func NewLoggingMiddleware(logger zerolog.Logger, metricsPath string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			if internalPath(r.URL.Path, metricsPath) {
				return
			}

			logger.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("http request")
		})
	}
}
