// Package api exposes the HTTP surface of pubplan: kanban board CRUD, the
// content-plan calendar, attachment upload, and the schedule operation that
// drives the publication scheduler.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
)

// Server wraps the HTTP listener serving the REST API.
type Server struct {
	server  *http.Server
	logger  *slog.Logger
	handler http.Handler
	addr    string
}

// NewServer builds the router around the given handlers and returns a
// ready-to-run server.
func NewServer(addr string, h *Handlers, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With("component", "api_server")

	r := chi.NewRouter()
	r.Use(requestLogger(log))

	r.Get("/healthz", h.Health)

	r.Route("/api", func(r chi.Router) {
		r.Route("/tasks", func(r chi.Router) {
			r.Get("/", h.ListTasks)
			r.Post("/", h.CreateTask)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetTask)
				r.Patch("/", h.UpdateTask)
				r.Delete("/", h.DeleteTask)
				r.Post("/schedule", h.ScheduleTask)
				r.Get("/attachments", h.ListAttachments)
				r.Post("/attachments", h.UploadAttachment)
			})
		})
		r.Get("/plan", h.ListPlan)
		r.Route("/columns", func(r chi.Router) {
			r.Get("/", h.ListColumns)
			r.Post("/", h.CreateColumn)
			r.Patch("/{id}", h.UpdateColumn)
			r.Delete("/{id}", h.DeleteColumn)
		})
		r.Route("/users", func(r chi.Router) {
			r.Get("/", h.ListUsers)
			r.Post("/", h.CreateUser)
		})
		r.Delete("/attachments/{id}", h.DeleteAttachment)
	})

	handler := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	}).Handler(r)

	return &Server{
		logger:  log,
		handler: handler,
		addr:    addr,
	}
}

// Handler exposes the configured router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run starts the HTTP server and blocks until the context is cancelled or the
// listener fails. On cancellation the server is drained gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting HTTP server", "addr", s.addr)
		errCh <- s.server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("HTTP server shutdown failed", "error", err)
			return err
		}
		s.logger.Info("HTTP server stopped gracefully.")
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// requestLogger logs each request with method, path, status, and duration.
func requestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			log.InfoContext(r.Context(), "Handled request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start))
		})
	}
}
