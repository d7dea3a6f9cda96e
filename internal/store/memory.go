package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aerodash/aeroingest/internal/model"
)

type delayKey struct {
	code string
	date string
}

// Memory is an in-process Store. Rows live until the process exits.
type Memory struct {
	mu       sync.RWMutex
	airports map[string]model.Airport
	aircraft map[string]model.Aircraft
	flights  map[string]model.Flight
	delays   map[delayKey]model.AirportDelayStat
}

// NewMemory returns an empty in-process store.
func NewMemory() *Memory {
	return &Memory{
		airports: make(map[string]model.Airport),
		aircraft: make(map[string]model.Aircraft),
		flights:  make(map[string]model.Flight),
		delays:   make(map[delayKey]model.AirportDelayStat),
	}
}

func (m *Memory) Migrate(context.Context) error { return nil }

func (m *Memory) UpsertAirport(_ context.Context, a model.Airport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.airports[a.Key()] = a
	return nil
}

func (m *Memory) UpsertAircraft(_ context.Context, a model.Aircraft) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.aircraft[a.Registration] = a
	return nil
}

func (m *Memory) EnsureAircraft(_ context.Context, a model.Aircraft) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.aircraft[a.Registration]; !ok {
		m.aircraft[a.Registration] = a
	}
	return nil
}

func (m *Memory) UpsertFlight(_ context.Context, f model.Flight) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flights[f.ID] = cloneFlight(f)
	return nil
}

func (m *Memory) UpsertDelay(_ context.Context, d model.AirportDelayStat) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delays[delayKey{d.AirportCode, d.Date}] = d
	return nil
}

func (m *Memory) Airport(_ context.Context, code string) (*model.Airport, error) {
	code = strings.ToUpper(code)
	m.mu.RLock()
	defer m.mu.RUnlock()
	if a, ok := m.airports[code]; ok {
		return &a, nil
	}
	for _, a := range m.airports {
		if a.ICAO == code {
			return &a, nil
		}
	}
	return nil, nil
}

func (m *Memory) FlightsForAirport(_ context.Context, code string, limit int) ([]model.Flight, error) {
	code = strings.ToUpper(code)
	m.mu.RLock()
	var flights []model.Flight
	for _, f := range m.flights {
		if f.Origin == code || f.Destination == code {
			flights = append(flights, cloneFlight(f))
		}
	}
	m.mu.RUnlock()

	sort.Slice(flights, func(i, j int) bool {
		ti, tj := flightTime(flights[i]), flightTime(flights[j])
		if ti.Equal(tj) {
			return flights[i].ID < flights[j].ID
		}
		return ti.After(tj)
	})
	if limit > 0 && len(flights) > limit {
		flights = flights[:limit]
	}
	return flights, nil
}

func (m *Memory) DelaysForAirport(_ context.Context, code string, limit int) ([]model.AirportDelayStat, error) {
	code = strings.ToUpper(code)
	m.mu.RLock()
	var stats []model.AirportDelayStat
	for k, d := range m.delays {
		if k.code == code {
			stats = append(stats, d)
		}
	}
	m.mu.RUnlock()

	sort.Slice(stats, func(i, j int) bool { return stats[i].Date > stats[j].Date })
	if limit > 0 && len(stats) > limit {
		stats = stats[:limit]
	}
	return stats, nil
}

func (m *Memory) Counts(context.Context) (model.Counts, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return model.Counts{
		Airports: len(m.airports),
		Aircraft: len(m.aircraft),
		Flights:  len(m.flights),
		Delays:   len(m.delays),
	}, nil
}

// flightTime orders flights the way the SQL store does; unscheduled rows sort
// last.
func flightTime(f model.Flight) time.Time {
	if f.ScheduledDeparture != nil {
		return *f.ScheduledDeparture
	}
	if f.ScheduledArrival != nil {
		return *f.ScheduledArrival
	}
	return time.Time{}
}

func cloneFlight(f model.Flight) model.Flight {
	for _, p := range []**time.Time{&f.ScheduledDeparture, &f.ActualDeparture, &f.ScheduledArrival, &f.ActualArrival} {
		if *p != nil {
			t := **p
			*p = &t
		}
	}
	return f
}
