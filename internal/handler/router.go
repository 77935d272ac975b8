package handler

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/BuzzLyutic/notebook-tasks/internal/metrics"
)

type Handlers struct {
	Tasks     *TaskHandler
	Counts    *CountHandler
	Filter    *FilterHandler
	Notebooks *NotebookHandler
}

// NewRouter mounts every route with the shared middleware. gatherer backs
// GET /metrics.
func NewRouter(h Handlers, m *metrics.Metrics, gatherer prometheus.Gatherer) chi.Router {
	r := chi.NewRouter() // Создаем роутер
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(m.Middleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status":"ok"}`)
	})
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		r.Route("/tasks", h.Tasks.Routes)
		r.Delete("/photos/{id}", h.Tasks.DeletePhoto)
		r.Route("/counts", h.Counts.Routes)
		r.Route("/filter", h.Filter.Routes)
		r.Route("/notebooks", h.Notebooks.Routes)
	})
	return r
}
