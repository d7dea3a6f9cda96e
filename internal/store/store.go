package store

import (
	"context"

	"github.com/aerodash/aeroingest/internal/model"
)

// Store is the repository interface for normalized records. Every upsert is
// keyed by the record's natural key and replaces the previous row.
type Store interface {
	// UpsertAirport stores an airport keyed by IATA (or ICAO) code.
	UpsertAirport(ctx context.Context, a model.Airport) error
	// UpsertAircraft stores an aircraft keyed by registration.
	UpsertAircraft(ctx context.Context, a model.Aircraft) error
	// EnsureAircraft inserts an aircraft only when its registration is unknown.
	EnsureAircraft(ctx context.Context, a model.Aircraft) error
	// UpsertFlight stores a flight keyed by its derived ID.
	UpsertFlight(ctx context.Context, f model.Flight) error
	// UpsertDelay stores delay statistics keyed by (airport, date).
	UpsertDelay(ctx context.Context, d model.AirportDelayStat) error

	// Airport returns the stored airport, or nil when unknown.
	Airport(ctx context.Context, code string) (*model.Airport, error)
	// FlightsForAirport returns the latest flights touching an airport.
	FlightsForAirport(ctx context.Context, code string, limit int) ([]model.Flight, error)
	// DelaysForAirport returns daily delay statistics, newest first.
	DelaysForAirport(ctx context.Context, code string, limit int) ([]model.AirportDelayStat, error)
	// Counts returns the number of rows per table.
	Counts(ctx context.Context) (model.Counts, error)

	// Migrate creates the schema.
	Migrate(ctx context.Context) error
}

var (
	_ Store = (*Postgres)(nil)
	_ Store = (*Memory)(nil)
)
