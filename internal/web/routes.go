package web

import (
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kozaktomas/face-indexer/internal/facematch"
	"github.com/kozaktomas/face-indexer/internal/web/handlers"
)

func (s *Server) setupRoutes() {
	idx := s.config.Indexer
	indexingHandler := handlers.NewIndexingHandler(
		s.deps.Store,
		s.deps.Runner,
		s.deps.Aggregator,
		facematch.Filter(idx.Filter),
		idx.MaxConcurrency,
		idx.MaxFacesPerIndex,
		s.logger,
	)
	facesHandler := handlers.NewFacesHandler(s.deps.Reconciler, s.deps.Registry, s.logger)
	s.jobs = handlers.NewJobsHandler(handlers.NewJobManager(), s.deps.Pipeline, s.logger)

	s.router.Get("/api/v1/health", handlers.HealthCheck)
	s.router.Handle("/metrics", promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{}))

	s.router.Route("/api/v1", func(r chi.Router) {
		// Stages of an indexing run, for external orchestrators
		r.Post("/partition", indexingHandler.Partition)
		r.Post("/index", indexingHandler.Index)
		r.Post("/aggregate", indexingHandler.Aggregate)

		// Full indexing runs (long-running)
		r.Post("/jobs", s.jobs.Start)
		r.Get("/jobs", s.jobs.List)
		r.Get("/jobs/{jobId}", s.jobs.Status)
		r.Get("/jobs/{jobId}/events", s.jobs.Events)
		r.Delete("/jobs/{jobId}", s.jobs.Cancel)

		// Identity corrections
		r.Post("/reconcile", facesHandler.Reconcile)
		r.Get("/faces/{faceId}", facesHandler.Get)
	})
}
