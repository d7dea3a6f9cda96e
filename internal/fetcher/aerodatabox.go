package fetcher

import (
	"context"
	"strings"
)

// Endpoint templates of the aviation API.
const (
	EndpointAirportInfo      = "/airports/{codeType}/{code}"
	EndpointAirportSchedule  = "/flights/airports/{codeType}/{code}"
	EndpointAirportDelays    = "/airports/{codeType}/{code}/delays"
	EndpointAirportLocalTime = "/airports/{codeType}/{code}/time/local"
	EndpointAircraftInfo     = "/aircrafts/reg/{registration}"
	EndpointFlightStatus     = "/flights/number/{number}/{date}"
)

// Direction selects departures or arrivals of an airport schedule.
type Direction string

const (
	Departures Direction = "departures"
	Arrivals   Direction = "arrivals"
)

func (d Direction) query() string {
	if d == Arrivals {
		return "Arrival"
	}
	return "Departure"
}

// CodeType reports whether code is an IATA (3 letters) or ICAO code.
func CodeType(code string) string {
	if len(code) == 3 {
		return "iata"
	}
	return "icao"
}

func airportRequest(endpoint, code string) Request {
	code = strings.ToUpper(strings.TrimSpace(code))
	return Request{
		Endpoint:   endpoint,
		PathParams: map[string]string{"codeType": CodeType(code), "code": code},
	}
}

func (f *Fetcher) AirportInfo(ctx context.Context, code string) (any, error) {
	return f.Fetch(ctx, airportRequest(EndpointAirportInfo, code))
}

// AirportSchedule fetches the flight information display of an airport for
// one direction.
func (f *Fetcher) AirportSchedule(ctx context.Context, code string, dir Direction) (any, error) {
	req := airportRequest(EndpointAirportSchedule, code)
	req.Query = map[string]string{
		"direction":      dir.query(),
		"withLeg":        "true",
		"withCancelled":  "true",
		"withCodeshared": "false",
		"withLocation":   "false",
		"withPrivate":    "false",
		"withCargo":      "false",
	}
	return f.Fetch(ctx, req)
}

func (f *Fetcher) AirportDelays(ctx context.Context, code string) (any, error) {
	return f.Fetch(ctx, airportRequest(EndpointAirportDelays, code))
}

func (f *Fetcher) AirportLocalTime(ctx context.Context, code string) (any, error) {
	return f.Fetch(ctx, airportRequest(EndpointAirportLocalTime, code))
}

func (f *Fetcher) AircraftInfo(ctx context.Context, registration string) (any, error) {
	return f.Fetch(ctx, Request{
		Endpoint:   EndpointAircraftInfo,
		PathParams: map[string]string{"registration": strings.ToUpper(strings.TrimSpace(registration))},
	})
}

// FlightStatus fetches one flight on a local date (YYYY-MM-DD).
func (f *Fetcher) FlightStatus(ctx context.Context, number, date string) (any, error) {
	return f.Fetch(ctx, Request{
		Endpoint:   EndpointFlightStatus,
		PathParams: map[string]string{"number": strings.ReplaceAll(number, " ", ""), "date": date},
	})
}
