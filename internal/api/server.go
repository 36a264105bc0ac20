package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kalambet/feedbackdesk/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

type ServerDeps struct {
	Store             *storage.Store
	AdminUsername     string
	AdminPasswordHash []byte
	Logger            *slog.Logger
}

// NewServerHandler returns the feedback REST API rooted at /api plus /health.
// Submitting and the average rating are public; everything else needs the
// admin's Basic credentials.
func NewServerHandler(deps ServerDeps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	v := newValidator()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(deps.Logger))
	r.Use(middleware.Recoverer)

	r.Get("/health", handleHealth)

	r.Route("/api/feedback", func(r chi.Router) {
		r.Post("/", handleCreateFeedback(deps, v))
		r.Get("/average-rating", handleAverageRating(deps))

		r.Group(func(r chi.Router) {
			r.Use(BasicAuth(deps.AdminUsername, deps.AdminPasswordHash))
			r.Get("/", handleListFeedback(deps))
			r.Get("/{id}", handleGetFeedback(deps))
			r.Put("/{id}", handleUpdateFeedback(deps, v))
			r.Delete("/{id}", handleDeleteFeedback(deps))
		})
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				logger.Info("request",
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"bytes", ww.BytesWritten(),
					"duration_ms", time.Since(start).Milliseconds(),
					"request_id", middleware.GetReqID(r.Context()),
					"remote", r.RemoteAddr,
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
