package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/aerodash/aeroingest/internal/model"
	"github.com/aerodash/aeroingest/internal/pipeline"
)

const defaultListLimit = 50

type dashboardResponse struct {
	Summary *model.Summary `json:"summary"`
	Counts  model.Counts   `json:"counts"`
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	counts, err := s.store.Counts(r.Context())
	if err != nil {
		slog.Error("failed to count rows", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := dashboardResponse{Counts: counts}
	if sum, ok := s.pipeline.Last(); ok {
		resp.Summary = &sum
	}

	w.Header().Set("Cache-Control", "public, max-age=60")
	writeJSON(w, http.StatusOK, resp)
}

// handleRefresh runs the pipeline synchronously. ?mode=quick limits the run
// to delays and a few departures.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	run := s.pipeline.Run
	if r.URL.Query().Get("mode") == "quick" {
		run = s.pipeline.QuickRefresh
	}

	sum, err := run(r.Context())
	if errors.Is(err, pipeline.ErrNoAirports) {
		writeJSON(w, http.StatusBadGateway, sum)
		return
	}
	if err != nil {
		slog.Error("refresh failed", "error", err)
		writeError(w, http.StatusInternalServerError, "refresh failed")
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleAirport(w http.ResponseWriter, r *http.Request) {
	details, err := s.pipeline.AirportDetails(r.Context(), chi.URLParam(r, "code"))
	if errors.Is(err, pipeline.ErrUnknownAirport) {
		writeError(w, http.StatusNotFound, "no data available")
		return
	}
	if err != nil {
		slog.Error("failed to load airport details", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, details)
}

func (s *Server) handleFlightStatus(w http.ResponseWriter, r *http.Request) {
	date := chi.URLParam(r, "date")
	if _, err := time.Parse(time.DateOnly, date); err != nil {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}
	flight, err := s.pipeline.FlightStatus(r.Context(), chi.URLParam(r, "number"), date)
	if errors.Is(err, pipeline.ErrUnknownFlight) {
		writeError(w, http.StatusNotFound, "no data available")
		return
	}
	if err != nil {
		slog.Error("failed to load flight status", "error", err)
		writeError(w, http.StatusBadGateway, "flight lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, flight)
}

func (s *Server) handleFlights(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	flights, err := s.store.FlightsForAirport(r.Context(), chi.URLParam(r, "code"), limit)
	if err != nil {
		slog.Error("failed to load flights", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if flights == nil {
		flights = []model.Flight{}
	}
	writeJSON(w, http.StatusOK, flights)
}

func (s *Server) handleDelays(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	stats, err := s.store.DelaysForAirport(r.Context(), chi.URLParam(r, "code"), limit)
	if err != nil {
		slog.Error("failed to load delays", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if stats == nil {
		stats = []model.AirportDelayStat{}
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status": "ok",
	}
	if sum, ok := s.pipeline.Last(); ok {
		resp["last_run"] = sum.StartedAt.Format("2006-01-02T15:04:05Z07:00")
		resp["last_run_success"] = sum.Success
	}
	writeJSON(w, http.StatusOK, resp)
}

func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultListLimit, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		writeError(w, http.StatusBadRequest, "limit must be a positive integer")
		return 0, false
	}
	return n, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("failed to encode response", "error", err)
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
