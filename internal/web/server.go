// Package web serves the OneLife JSON API and the records and report pages.
package web

import (
	"context"
	"embed"
	stderrors "errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/onelife/onelife/internal/config"
	"github.com/onelife/onelife/internal/db"
	"github.com/onelife/onelife/internal/ops"
	"github.com/onelife/onelife/internal/session"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

// Options configures the web server.
type Options struct {
	Opener  *db.Opener
	Session *session.Session
	Config  *config.Config
	Version string
	Logger  *slog.Logger
}

// NewHandlers builds the handlers with their renderer.
func NewHandlers(opts Options) (*Handlers, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	templateSub, err := fs.Sub(templateFS, "templates")
	if err != nil {
		return nil, fmt.Errorf("template sub-FS: %w", err)
	}
	return &Handlers{
		opener:   opts.Opener,
		session:  opts.Session,
		cfg:      opts.Config,
		guard:    ops.NewClearGuard(ops.DefaultClearTTL),
		renderer: NewRenderer(templateSub, opts.Version, opts.Logger),
		logger:   opts.Logger,
		now:      time.Now,
	}, nil
}

// NewRouter mounts the pages, the API and the health checks.
func NewRouter(h *Handlers) (http.Handler, error) {
	staticSub, err := fs.Sub(staticFS, "static")
	if err != nil {
		return nil, fmt.Errorf("static sub-FS: %w", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(securityHeaders)

	r.Get("/health/live", h.HandleLive)
	r.Get("/health/ready", h.HandleReady)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/records", http.StatusFound)
	})
	r.Get("/records", h.HandleRecordsPage)
	r.Get("/report", h.HandleReportPage)
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServerFS(staticSub)))

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.AllowContentType("application/json"))
		r.Post("/messages", h.HandleMessage)
		r.Get("/records", h.HandleListRecords)
		r.Get("/records/{id}", h.HandleGetRecord)
		r.Delete("/records/{id}", h.HandleDeleteRecord)
		r.Get("/report", h.HandleReport)
		r.Get("/export", h.HandleExport)
		r.Post("/import", h.HandleImport)
		r.Post("/clear", h.HandleClear)
		r.Get("/settings", h.HandleGetSettings)
		r.Put("/settings", h.HandleUpdateSettings)
		r.Delete("/settings", h.HandleResetSettings)
		r.Post("/settings/test", h.HandleTestSettings)
	})

	return r, nil
}

// NewServer creates the HTTP server for addr.
func NewServer(opts Options, addr string) (*http.Server, error) {
	h, err := NewHandlers(opts)
	if err != nil {
		return nil, err
	}
	router, err := NewRouter(h)
	if err != nil {
		return nil, err
	}
	return &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}, nil
}

// securityHeaders adds security-related HTTP headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", "default-src 'self'; script-src 'self'; style-src 'self'")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		next.ServeHTTP(w, r)
	})
}

// Run serves srv until ctx is done, then shuts it down gracefully.
func Run(ctx context.Context, srv *http.Server, logger *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	logger.Info("web server listening", "addr", "http://"+srv.Addr)
	if strings.HasPrefix(srv.Addr, "0.0.0.0") || strings.HasPrefix(srv.Addr, ":") || strings.Contains(srv.Addr, "[::]") {
		logger.Warn("server is binding to all interfaces and may be accessible from the network")
	}

	select {
	case err := <-errCh:
		if stderrors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		logger.Info("shutting down web server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
