package store

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/aerodash/aeroingest/internal/model"
)

var storeWrites = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "aeroingest_store_writes_total",
	Help: "Record writes by entity and result",
}, []string{"entity", "result"})

// Sink writes records one at a time. A failed write is logged and reported
// as false; it never aborts the caller's batch.
type Sink struct {
	store Store
}

// NewSink wraps s so that write failures are logged and counted.
func NewSink(s Store) *Sink {
	return &Sink{store: s}
}

func (s *Sink) Airport(ctx context.Context, a model.Airport) bool {
	return s.record("airport", a.Key(), s.store.UpsertAirport(ctx, a))
}

func (s *Sink) Aircraft(ctx context.Context, a model.Aircraft) bool {
	return s.record("aircraft", a.Registration, s.store.UpsertAircraft(ctx, a))
}

// AircraftStub records a registration seen in a schedule without replacing
// details stored by an earlier aircraft fetch.
func (s *Sink) AircraftStub(ctx context.Context, a model.Aircraft) bool {
	return s.record("aircraft_stub", a.Registration, s.store.EnsureAircraft(ctx, a))
}

func (s *Sink) Flight(ctx context.Context, f model.Flight) bool {
	return s.record("flight", f.ID, s.store.UpsertFlight(ctx, f))
}

func (s *Sink) Delay(ctx context.Context, d model.AirportDelayStat) bool {
	return s.record("delay", d.AirportCode+"/"+d.Date, s.store.UpsertDelay(ctx, d))
}

// Flights stores every flight and returns how many were written.
func (s *Sink) Flights(ctx context.Context, flights []model.Flight) int {
	n := 0
	for _, f := range flights {
		if s.Flight(ctx, f) {
			n++
		}
	}
	return n
}

func (s *Sink) record(entity, key string, err error) bool {
	if err != nil {
		storeWrites.WithLabelValues(entity, "error").Inc()
		slog.Error("store write failed", "entity", entity, "key", key, "error", err)
		return false
	}
	storeWrites.WithLabelValues(entity, "ok").Inc()
	return true
}
