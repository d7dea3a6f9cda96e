package model

import "time"

// Airport is keyed by IATA code, or ICAO code when the IATA code is absent.
type Airport struct {
	IATA      string  `json:"iata,omitempty"`
	ICAO      string  `json:"icao,omitempty"`
	Name      string  `json:"name"`
	City      string  `json:"city"`
	Country   string  `json:"country"`
	Continent string  `json:"continent"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Timezone  string  `json:"timezone"`
}

// Key returns the natural key of the airport.
func (a Airport) Key() string {
	if a.IATA != "" {
		return a.IATA
	}
	return a.ICAO
}

// Aircraft is keyed by registration.
type Aircraft struct {
	Registration string `json:"registration"`
	Model        string `json:"model"`
	Manufacturer string `json:"manufacturer"`
	TypeCode     string `json:"type_code"`
	Owner        string `json:"owner"`
}

// FlightStatus is the normalized flight status vocabulary.
type FlightStatus string

const (
	StatusScheduled FlightStatus = "Scheduled"
	StatusOnTime    FlightStatus = "On Time"
	StatusDelayed   FlightStatus = "Delayed"
	StatusCancelled FlightStatus = "Cancelled"
	StatusCompleted FlightStatus = "Completed"
)

// Flight is keyed by ID, derived from the flight number and the scheduled
// departure time. Airport codes and the registration are weak references.
type Flight struct {
	ID                   string       `json:"flight_id"`
	Number               string       `json:"flight_number"`
	AircraftRegistration string       `json:"aircraft_registration,omitempty"`
	AircraftModel        string       `json:"aircraft_model,omitempty"`
	Origin               string       `json:"origin"`
	Destination          string       `json:"destination"`
	ScheduledDeparture   *time.Time   `json:"scheduled_departure,omitempty"`
	ActualDeparture      *time.Time   `json:"actual_departure,omitempty"`
	ScheduledArrival     *time.Time   `json:"scheduled_arrival,omitempty"`
	ActualArrival        *time.Time   `json:"actual_arrival,omitempty"`
	Status               FlightStatus `json:"status"`
	AirlineCode          string       `json:"airline_code,omitempty"`
	AirlineName          string       `json:"airline_name,omitempty"`
	Direction            string       `json:"direction,omitempty"`
	FetchDate            string       `json:"fetch_date"` // UTC date of the fetch
}

// AirportDelayStat is keyed by (AirportCode, Date). Date is YYYY-MM-DD.
type AirportDelayStat struct {
	AirportCode        string  `json:"airport_code"`
	Date               string  `json:"date"`
	TotalFlights       int     `json:"total_flights"`
	DelayedFlights     int     `json:"delayed_flights"`
	CancelledFlights   int     `json:"cancelled_flights"`
	AverageDelayMinute float64 `json:"avg_delay_min"`
	MedianDelayMinute  float64 `json:"median_delay_min"`
}

// StageCounts holds how many records one pipeline stage fetched and stored.
type StageCounts struct {
	Fetched int `json:"fetched"`
	Stored  int `json:"stored"`
}

// ClientStats is a point-in-time copy of the fetch client's counters.
type ClientStats struct {
	Calls     int64 `json:"calls"`
	CacheHits int64 `json:"cache_hits"`
	Successes int64 `json:"successes"`
	NotFound  int64 `json:"not_found"`
	Errors    int64 `json:"errors"`

	// GateWaitSeconds is the total time spent waiting for the request window.
	GateWaitSeconds float64 `json:"gate_wait_seconds"`
}

// Summary reports one orchestrator run.
type Summary struct {
	RunID          string      `json:"run_id"`
	Success        bool        `json:"success"`
	StartedAt      time.Time   `json:"started_at"`
	ElapsedSeconds float64     `json:"elapsed_seconds"`
	Airports       StageCounts `json:"airports"`
	Flights        StageCounts `json:"flights"`
	Aircraft       StageCounts `json:"aircraft"`
	Delays         StageCounts `json:"delays"`
	Client         ClientStats `json:"client"`
}

// AirportsFetched, FlightsFetched and DelaysFetched mirror the dashboard
// summary fields.
func (s Summary) AirportsFetched() int { return s.Airports.Fetched }
func (s Summary) FlightsFetched() int  { return s.Flights.Fetched }
func (s Summary) DelaysFetched() int   { return s.Delays.Fetched }

// AirportDetails is the on-demand view of one airport.
type AirportDetails struct {
	Code           string            `json:"code"`
	BasicInfo      *Airport          `json:"basic_info,omitempty"`
	CurrentFlights []Flight          `json:"current_flights"`
	Delays         *AirportDelayStat `json:"delays,omitempty"`
	LocalTime      string            `json:"local_time,omitempty"`
}

// Counts is the number of rows held per table.
type Counts struct {
	Airports int `json:"airports"`
	Aircraft int `json:"aircraft"`
	Flights  int `json:"flights"`
	Delays   int `json:"delays"`
}
