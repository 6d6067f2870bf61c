package web

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jmoiron/sqlx"

	"github.com/hpungsan/almanac/internal/logging"
	"github.com/hpungsan/almanac/internal/ops"
)

// NewHandler builds the JSON API router.
func NewHandler(database *sqlx.DB, absorber *ops.Absorber, version string) http.Handler {
	h := &Handlers{
		db:       database,
		absorber: absorber,
		version:  version,
	}

	r := chi.NewRouter()
	r.Use(securityHeaders)
	r.Use(requestLogger)

	r.Get("/healthz", h.HandleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/projects", h.HandleListProjects)
		r.Post("/projects", h.HandleCreateProject)

		r.Route("/projects/{id}", func(r chi.Router) {
			r.Get("/", h.HandleGetProject)
			r.Post("/absorb", h.HandleAbsorb)
			r.Get("/absorption", h.HandleAbsorptionData)
			r.Get("/tasks", h.HandleListTasks)
			r.Post("/tasks", h.HandleAddTask)
			r.Post("/entries", h.HandleAddEntry)
			r.Get("/timeline", h.HandleTimeline)
			r.Get("/notes/{date}", h.HandleGetNote)
		})

		r.Patch("/tasks/{id}", h.HandleUpdateTask)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		renderJSON(w, http.StatusNotFound, errorBody("NOT_FOUND", "no such route", http.StatusNotFound))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		renderJSON(w, http.StatusMethodNotAllowed, errorBody("INVALID_REQUEST", "method not allowed", http.StatusMethodNotAllowed))
	})

	return r
}

// NewServer creates the HTTP server for the Almanac API.
func NewServer(database *sqlx.DB, absorber *ops.Absorber, version, bind string, port int) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf("%s:%d", bind, port),
		Handler:           NewHandler(database, absorber, version),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// securityHeaders adds security-related HTTP headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", "default-src 'none'")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func requestLogger(next http.Handler) http.Handler {
	logger := logging.Component("web")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"dur", time.Since(start),
		)
	})
}

// Run starts the HTTP server and handles graceful shutdown on SIGINT/SIGTERM.
func Run(srv *http.Server) error {
	logger := logging.Component("web")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	logger.Info("almanac API listening", "addr", "http://"+srv.Addr)
	if strings.Contains(srv.Addr, "0.0.0.0") || strings.Contains(srv.Addr, "::") {
		logger.Warn("server is binding to all interfaces and may be accessible from the network")
	}

	select {
	case err := <-errCh:
		return err
	case <-sigCh:
		logger.Info("shutting down")
		// Absorption runs can hold the request for a while; give them time.
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	}
}
