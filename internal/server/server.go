package server

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aerodash/aeroingest/internal/config"
	"github.com/aerodash/aeroingest/internal/model"
	"github.com/aerodash/aeroingest/internal/store"
)

// Pipeline is the caller-facing surface of the orchestrator.
type Pipeline interface {
	Run(ctx context.Context) (model.Summary, error)
	QuickRefresh(ctx context.Context) (model.Summary, error)
	AirportDetails(ctx context.Context, code string) (model.AirportDetails, error)
	FlightStatus(ctx context.Context, number, date string) (model.Flight, error)
	Last() (model.Summary, bool)
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	cfg      config.HTTP
	pipeline Pipeline
	store    store.Store
}

// New creates a server over the pipeline and the store it writes to.
func New(cfg config.HTTP, p Pipeline, st store.Store) *Server {
	return &Server{cfg: cfg, pipeline: p, store: st}
}

// Router returns the HTTP handler with all routes registered.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(s.corsMiddleware)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/dashboard", s.handleDashboard)
		r.Post("/refresh", s.handleRefresh)
		r.Get("/airports/{code}", s.handleAirport)
		r.Get("/airports/{code}/flights", s.handleFlights)
		r.Get("/airports/{code}/delays", s.handleDelays)
		r.Get("/flights/{number}/{date}", s.handleFlightStatus)
	})

	return r
}
