package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aerodash/aeroingest/internal/model"
)

type Postgres struct {
	db *sql.DB
}

// NewPostgres wraps an open lib/pq connection pool. Call Migrate before use.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) Migrate(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS airports (
			code        TEXT PRIMARY KEY,
			iata        TEXT NOT NULL DEFAULT '',
			icao        TEXT NOT NULL DEFAULT '',
			name        TEXT NOT NULL DEFAULT '',
			city        TEXT NOT NULL DEFAULT '',
			country     TEXT NOT NULL DEFAULT '',
			continent   TEXT NOT NULL DEFAULT '',
			latitude    DOUBLE PRECISION NOT NULL DEFAULT 0,
			longitude   DOUBLE PRECISION NOT NULL DEFAULT 0,
			timezone    TEXT NOT NULL DEFAULT '',
			updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS aircraft (
			registration  TEXT PRIMARY KEY,
			model         TEXT NOT NULL DEFAULT '',
			manufacturer  TEXT NOT NULL DEFAULT '',
			type_code     TEXT NOT NULL DEFAULT '',
			owner         TEXT NOT NULL DEFAULT '',
			updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS flights (
			flight_id              TEXT PRIMARY KEY,
			flight_number          TEXT NOT NULL,
			aircraft_registration  TEXT NOT NULL DEFAULT '',
			aircraft_model         TEXT NOT NULL DEFAULT '',
			origin                 TEXT NOT NULL DEFAULT '',
			destination            TEXT NOT NULL DEFAULT '',
			scheduled_departure    TIMESTAMPTZ,
			actual_departure       TIMESTAMPTZ,
			scheduled_arrival      TIMESTAMPTZ,
			actual_arrival         TIMESTAMPTZ,
			status                 TEXT NOT NULL DEFAULT 'Scheduled',
			airline_code           TEXT NOT NULL DEFAULT '',
			airline_name           TEXT NOT NULL DEFAULT '',
			direction              TEXT NOT NULL DEFAULT '',
			fetch_date             DATE,
			updated_at             TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_flights_origin ON flights (origin);
		CREATE INDEX IF NOT EXISTS idx_flights_destination ON flights (destination);
		CREATE INDEX IF NOT EXISTS idx_flights_status ON flights (status);
		CREATE TABLE IF NOT EXISTS airport_delays (
			airport_code       TEXT NOT NULL,
			delay_date         DATE NOT NULL,
			total_flights      INTEGER NOT NULL DEFAULT 0,
			delayed_flights    INTEGER NOT NULL DEFAULT 0,
			cancelled_flights  INTEGER NOT NULL DEFAULT 0,
			avg_delay_min      DOUBLE PRECISION NOT NULL DEFAULT 0,
			median_delay_min   DOUBLE PRECISION NOT NULL DEFAULT 0,
			updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (airport_code, delay_date)
		);
	`
	_, err := p.db.ExecContext(ctx, query)
	return err
}

func (p *Postgres) UpsertAirport(ctx context.Context, a model.Airport) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO airports (code, iata, icao, name, city, country, continent, latitude, longitude, timezone)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (code) DO UPDATE SET
			iata = EXCLUDED.iata, icao = EXCLUDED.icao, name = EXCLUDED.name,
			city = EXCLUDED.city, country = EXCLUDED.country, continent = EXCLUDED.continent,
			latitude = EXCLUDED.latitude, longitude = EXCLUDED.longitude,
			timezone = EXCLUDED.timezone, updated_at = NOW()`,
		a.Key(), a.IATA, a.ICAO, a.Name, a.City, a.Country, a.Continent, a.Latitude, a.Longitude, a.Timezone,
	)
	if err != nil {
		return fmt.Errorf("upsert airport %s: %w", a.Key(), err)
	}
	return nil
}

func (p *Postgres) UpsertAircraft(ctx context.Context, a model.Aircraft) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO aircraft (registration, model, manufacturer, type_code, owner)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (registration) DO UPDATE SET
			model = EXCLUDED.model, manufacturer = EXCLUDED.manufacturer,
			type_code = EXCLUDED.type_code, owner = EXCLUDED.owner, updated_at = NOW()`,
		a.Registration, a.Model, a.Manufacturer, a.TypeCode, a.Owner,
	)
	if err != nil {
		return fmt.Errorf("upsert aircraft %s: %w", a.Registration, err)
	}
	return nil
}

func (p *Postgres) EnsureAircraft(ctx context.Context, a model.Aircraft) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO aircraft (registration, model, manufacturer, type_code, owner)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (registration) DO NOTHING`,
		a.Registration, a.Model, a.Manufacturer, a.TypeCode, a.Owner,
	)
	if err != nil {
		return fmt.Errorf("ensure aircraft %s: %w", a.Registration, err)
	}
	return nil
}

func (p *Postgres) UpsertFlight(ctx context.Context, f model.Flight) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO flights (
			flight_id, flight_number, aircraft_registration, aircraft_model, origin, destination,
			scheduled_departure, actual_departure, scheduled_arrival, actual_arrival,
			status, airline_code, airline_name, direction, fetch_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NULLIF($15, '')::date)
		ON CONFLICT (flight_id) DO UPDATE SET
			flight_number = EXCLUDED.flight_number,
			aircraft_registration = EXCLUDED.aircraft_registration,
			aircraft_model = EXCLUDED.aircraft_model,
			origin = EXCLUDED.origin, destination = EXCLUDED.destination,
			scheduled_departure = EXCLUDED.scheduled_departure,
			actual_departure = EXCLUDED.actual_departure,
			scheduled_arrival = EXCLUDED.scheduled_arrival,
			actual_arrival = EXCLUDED.actual_arrival,
			status = EXCLUDED.status, airline_code = EXCLUDED.airline_code,
			airline_name = EXCLUDED.airline_name, direction = EXCLUDED.direction,
			fetch_date = EXCLUDED.fetch_date, updated_at = NOW()`,
		f.ID, f.Number, f.AircraftRegistration, f.AircraftModel, f.Origin, f.Destination,
		nullTime(f.ScheduledDeparture), nullTime(f.ActualDeparture),
		nullTime(f.ScheduledArrival), nullTime(f.ActualArrival),
		string(f.Status), f.AirlineCode, f.AirlineName, f.Direction, f.FetchDate,
	)
	if err != nil {
		return fmt.Errorf("upsert flight %s: %w", f.ID, err)
	}
	return nil
}

func (p *Postgres) UpsertDelay(ctx context.Context, d model.AirportDelayStat) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO airport_delays (
			airport_code, delay_date, total_flights, delayed_flights, cancelled_flights,
			avg_delay_min, median_delay_min)
		VALUES ($1, $2::date, $3, $4, $5, $6, $7)
		ON CONFLICT (airport_code, delay_date) DO UPDATE SET
			total_flights = EXCLUDED.total_flights,
			delayed_flights = EXCLUDED.delayed_flights,
			cancelled_flights = EXCLUDED.cancelled_flights,
			avg_delay_min = EXCLUDED.avg_delay_min,
			median_delay_min = EXCLUDED.median_delay_min,
			updated_at = NOW()`,
		d.AirportCode, d.Date, d.TotalFlights, d.DelayedFlights, d.CancelledFlights,
		d.AverageDelayMinute, d.MedianDelayMinute,
	)
	if err != nil {
		return fmt.Errorf("upsert delays %s/%s: %w", d.AirportCode, d.Date, err)
	}
	return nil
}

func (p *Postgres) Airport(ctx context.Context, code string) (*model.Airport, error) {
	var a model.Airport
	err := p.db.QueryRowContext(ctx, `
		SELECT iata, icao, name, city, country, continent, latitude, longitude, timezone
		FROM airports WHERE code = $1 OR icao = $1 LIMIT 1`,
		strings.ToUpper(code),
	).Scan(&a.IATA, &a.ICAO, &a.Name, &a.City, &a.Country, &a.Continent, &a.Latitude, &a.Longitude, &a.Timezone)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select airport %s: %w", code, err)
	}
	return &a, nil
}

func (p *Postgres) FlightsForAirport(ctx context.Context, code string, limit int) ([]model.Flight, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT flight_id, flight_number, aircraft_registration, aircraft_model, origin, destination,
			scheduled_departure, actual_departure, scheduled_arrival, actual_arrival,
			status, airline_code, airline_name, direction, COALESCE(fetch_date::text, '')
		FROM flights
		WHERE origin = $1 OR destination = $1
		ORDER BY COALESCE(scheduled_departure, scheduled_arrival) DESC NULLS LAST
		LIMIT $2`,
		strings.ToUpper(code), limitOrAll(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("select flights %s: %w", code, err)
	}
	defer rows.Close()

	var flights []model.Flight
	for rows.Next() {
		var f model.Flight
		var status string
		var sDep, aDep, sArr, aArr sql.NullTime
		if err := rows.Scan(&f.ID, &f.Number, &f.AircraftRegistration, &f.AircraftModel, &f.Origin, &f.Destination,
			&sDep, &aDep, &sArr, &aArr, &status, &f.AirlineCode, &f.AirlineName, &f.Direction, &f.FetchDate); err != nil {
			return nil, fmt.Errorf("scan flight: %w", err)
		}
		f.Status = model.FlightStatus(status)
		f.ScheduledDeparture = timePtr(sDep)
		f.ActualDeparture = timePtr(aDep)
		f.ScheduledArrival = timePtr(sArr)
		f.ActualArrival = timePtr(aArr)
		flights = append(flights, f)
	}
	return flights, rows.Err()
}

func (p *Postgres) DelaysForAirport(ctx context.Context, code string, limit int) ([]model.AirportDelayStat, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT airport_code, delay_date::text, total_flights, delayed_flights, cancelled_flights,
			avg_delay_min, median_delay_min
		FROM airport_delays
		WHERE airport_code = $1
		ORDER BY delay_date DESC
		LIMIT $2`,
		strings.ToUpper(code), limitOrAll(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("select delays %s: %w", code, err)
	}
	defer rows.Close()

	var stats []model.AirportDelayStat
	for rows.Next() {
		var d model.AirportDelayStat
		if err := rows.Scan(&d.AirportCode, &d.Date, &d.TotalFlights, &d.DelayedFlights, &d.CancelledFlights,
			&d.AverageDelayMinute, &d.MedianDelayMinute); err != nil {
			return nil, fmt.Errorf("scan delays: %w", err)
		}
		stats = append(stats, d)
	}
	return stats, rows.Err()
}

func (p *Postgres) Counts(ctx context.Context) (model.Counts, error) {
	var c model.Counts
	err := p.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM airports),
			(SELECT COUNT(*) FROM aircraft),
			(SELECT COUNT(*) FROM flights),
			(SELECT COUNT(*) FROM airport_delays)`,
	).Scan(&c.Airports, &c.Aircraft, &c.Flights, &c.Delays)
	if err != nil {
		return model.Counts{}, fmt.Errorf("count rows: %w", err)
	}
	return c, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	u := t.Time.UTC()
	return &u
}

// limitOrAll maps a non-positive limit to NULL, which Postgres reads as
// LIMIT ALL.
func limitOrAll(limit int) sql.NullInt64 {
	if limit <= 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(limit), Valid: true}
}
