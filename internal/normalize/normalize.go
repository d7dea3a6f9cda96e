// Package normalize maps raw API payloads into canonical records.
//
// Every function is pure and tolerant of missing keys, object-vs-scalar
// ambiguity and numbers sent as strings. A payload lacking its natural key
// yields ok=false instead of a partially keyed record.
package normalize

import (
	"strings"
	"time"

	"github.com/aerodash/aeroingest/internal/model"
)

// DelayThreshold is how late a movement must be to count as delayed.
const DelayThreshold = 15 * time.Minute

var airportFields = struct {
	IATA, ICAO, Name, City, Country, Continent, Lat, Lon, Timezone Field
}{
	IATA:      Field{"iata", "iataCode", "codes.iata"},
	ICAO:      Field{"icao", "icaoCode", "codes.icao"},
	Name:      Field{"name", "fullName", "shortName"},
	City:      Field{"municipalityName", "city", "municipality"},
	Country:   Field{"country.name", "country", "countryCode"},
	Continent: Field{"continent.name", "continent"},
	Lat:       Field{"location.lat", "latitude", "lat"},
	Lon:       Field{"location.lon", "longitude", "lon"},
	Timezone:  Field{"timeZone", "timezone", "tz"},
}

// Airport normalizes an airport payload.
func Airport(raw any) (model.Airport, bool) {
	f := airportFields
	a := model.Airport{
		IATA:      strings.ToUpper(f.IATA.String(raw)),
		ICAO:      strings.ToUpper(f.ICAO.String(raw)),
		Name:      f.Name.String(raw),
		City:      f.City.String(raw),
		Country:   f.Country.String(raw),
		Continent: f.Continent.String(raw),
		Latitude:  f.Lat.Float(raw),
		Longitude: f.Lon.Float(raw),
		Timezone:  f.Timezone.String(raw),
	}
	if a.Key() == "" {
		return model.Airport{}, false
	}
	return a, true
}

var aircraftFields = struct {
	Reg, Model, Manufacturer, TypeCode, Owner Field
}{
	Reg:          Field{"reg", "registration", "tail"},
	Model:        Field{"model.text", "model", "typeName", "modelCode"},
	Manufacturer: Field{"manufacturer.name", "manufacturer", "productionLine"},
	TypeCode:     Field{"icaoCode", "typeCode", "model.code", "modelCode"},
	Owner:        Field{"owner.name", "owner", "airlineName", "airline.name", "operator"},
}

// Aircraft normalizes an aircraft payload.
func Aircraft(raw any) (model.Aircraft, bool) {
	f := aircraftFields
	a := model.Aircraft{
		Registration: normalizeRegistration(f.Reg.String(raw)),
		Model:        f.Model.String(raw),
		Manufacturer: f.Manufacturer.String(raw),
		TypeCode:     strings.ToUpper(f.TypeCode.String(raw)),
		Owner:        f.Owner.String(raw),
	}
	if a.Registration == "" {
		return model.Aircraft{}, false
	}
	return a, true
}

// leg is one end of a flight.
type leg struct {
	Airport   string
	Scheduled *time.Time
	Actual    *time.Time
}

func readLeg(raw any, prefix string) leg {
	p := func(paths ...string) Field {
		out := make(Field, len(paths))
		for i, s := range paths {
			out[i] = prefix + "." + s
		}
		return out
	}
	return leg{
		Airport:   strings.ToUpper(p("airport.iata", "airport.icao", "airportIata", "airportCode").String(raw)),
		Scheduled: p("scheduledTime.utc", "scheduledTimeUtc", "scheduledTime.local", "scheduledTime", "scheduledTimeLocal").Time(raw),
		Actual:    p("actualTime.utc", "runwayTime.utc", "revisedTime.utc", "actualTimeUtc", "actualTime", "revisedTime").Time(raw),
	}
}

var flightFields = struct {
	Number, Reg, AircraftModel, AirlineCode, AirlineName, Status Field
}{
	Number:        Field{"number", "flightNumber", "flight.number", "callSign"},
	Reg:           Field{"aircraft.reg", "aircraft.registration", "aircraftRegistration"},
	AircraftModel: Field{"aircraft.model", "aircraft.modelCode"},
	AirlineCode:   Field{"airline.iata", "airline.icao", "airline.code", "airlineCode"},
	AirlineName:   Field{"airline.name", "airlineName"},
	Status:        Field{"status", "flightStatus"},
}

// Flight normalizes a flight-status payload carrying both a departure and
// an arrival leg.
func Flight(raw any) (model.Flight, bool) {
	if items, ok := raw.([]any); ok {
		if len(items) == 0 {
			return model.Flight{}, false
		}
		raw = items[0]
	}
	return buildFlight(raw, readLeg(raw, "departure"), readLeg(raw, "arrival"), "")
}

// ScheduleFlights normalizes an airport schedule (flight information
// display) payload. The movement of every item describes the other end of
// the flight; airport fills the end the schedule was requested for. At most
// limit flights are returned when limit is positive.
func ScheduleFlights(raw any, airport, direction string, limit int) []model.Flight {
	airport = strings.ToUpper(airport)
	arrivals := strings.HasPrefix(strings.ToLower(direction), "arr")

	var flights []model.Flight
	for _, item := range scheduleItems(raw, arrivals) {
		if limit > 0 && len(flights) >= limit {
			break
		}
		m := readLeg(item, "movement")
		dep := leg{Airport: airport, Scheduled: m.Scheduled, Actual: m.Actual}
		arr := leg{Airport: m.Airport}
		if arrivals {
			dep, arr = leg{Airport: m.Airport}, leg{Airport: airport, Scheduled: m.Scheduled, Actual: m.Actual}
		}
		// A flight-status item embedded in the list carries its own legs.
		if _, ok := lookup(item, "movement"); !ok {
			dep, arr = readLeg(item, "departure"), readLeg(item, "arrival")
		}
		if f, ok := buildFlight(item, dep, arr, direction); ok {
			flights = append(flights, f)
		}
	}
	return flights
}

func scheduleItems(raw any, arrivals bool) []any {
	if items, ok := raw.([]any); ok {
		return items
	}
	keys := []string{"departures", "data"}
	if arrivals {
		keys = []string{"arrivals", "data"}
	}
	for _, k := range keys {
		if v, ok := lookup(raw, k); ok {
			if items, ok := v.([]any); ok {
				return items
			}
		}
	}
	return nil
}

func buildFlight(raw any, dep, arr leg, direction string) (model.Flight, bool) {
	f := flightFields
	number := normalizeNumber(f.Number.String(raw))
	if number == "" {
		return model.Flight{}, false
	}
	id, ok := FlightID(number, dep.Scheduled, arr.Scheduled)
	if !ok {
		return model.Flight{}, false
	}

	scheduled, actual := dep.Scheduled, dep.Actual
	if actual == nil && arr.Actual != nil {
		scheduled, actual = arr.Scheduled, arr.Actual
	}

	out := model.Flight{
		ID:                   id,
		Number:               number,
		AircraftRegistration: normalizeRegistration(f.Reg.String(raw)),
		AircraftModel:        f.AircraftModel.String(raw),
		Origin:               dep.Airport,
		Destination:          arr.Airport,
		ScheduledDeparture:   dep.Scheduled,
		ActualDeparture:      dep.Actual,
		ScheduledArrival:     arr.Scheduled,
		ActualArrival:        arr.Actual,
		Status:               Status(f.Status.String(raw), scheduled, actual),
		AirlineCode:          strings.ToUpper(f.AirlineCode.String(raw)),
		AirlineName:          f.AirlineName.String(raw),
		Direction:            direction,
	}
	return out, true
}

// serviceWindow bounds the gap between the scheduled departure and the
// scheduled arrival of one flight.
const serviceWindow = 24 * time.Hour

// Collapse drops repeated flight ids and folds every row known only from an
// arrivals schedule into the departures row of the same service: same
// number, origin and destination, arriving within serviceWindow after the
// departure. Arrival times the kept row lacks are copied from the folded one.
func Collapse(flights []model.Flight) []model.Flight {
	uniq := make([]model.Flight, 0, len(flights))
	seen := make(map[string]struct{}, len(flights))
	services := make(map[string][]int)
	for _, f := range flights {
		if _, ok := seen[f.ID]; ok {
			continue
		}
		seen[f.ID] = struct{}{}
		if f.ScheduledDeparture != nil {
			if k, ok := serviceKey(f); ok {
				services[k] = append(services[k], len(uniq))
			}
		}
		uniq = append(uniq, f)
	}

	folded := make([]bool, len(uniq))
	for i, f := range uniq {
		if f.ScheduledDeparture != nil || f.ScheduledArrival == nil {
			continue
		}
		k, ok := serviceKey(f)
		if !ok {
			continue
		}
		for _, j := range services[k] {
			gap := f.ScheduledArrival.Sub(*uniq[j].ScheduledDeparture)
			if gap < 0 || gap >= serviceWindow {
				continue
			}
			foldArrival(&uniq[j], f)
			folded[i] = true
			break
		}
	}

	out := uniq[:0]
	for i, f := range uniq {
		if !folded[i] {
			out = append(out, f)
		}
	}
	return out
}

func serviceKey(f model.Flight) (string, bool) {
	if f.Number == "" || f.Origin == "" || f.Destination == "" {
		return "", false
	}
	return f.Number + "|" + f.Origin + "|" + f.Destination, true
}

func foldArrival(dst *model.Flight, src model.Flight) {
	if dst.ScheduledArrival == nil {
		dst.ScheduledArrival = src.ScheduledArrival
	}
	if dst.ActualArrival == nil {
		dst.ActualArrival = src.ActualArrival
	}
	if dst.AircraftRegistration == "" {
		dst.AircraftRegistration = src.AircraftRegistration
	}
	if dst.AircraftModel == "" {
		dst.AircraftModel = src.AircraftModel
	}
	if src.Status == model.StatusCompleted && dst.Status != model.StatusCancelled {
		dst.Status = src.Status
	}
}

// FlightID derives the natural key of a flight from its number and its
// scheduled departure, falling back to the scheduled arrival. Without either
// timestamp no stable key exists.
func FlightID(number string, scheduledDeparture, scheduledArrival *time.Time) (string, bool) {
	number = normalizeNumber(number)
	ref := firstTime(scheduledDeparture, scheduledArrival)
	if number == "" || ref == nil {
		return "", false
	}
	return number + "_" + ref.UTC().Format("20060102T1504Z"), true
}

// Status maps the remote status vocabulary onto model.FlightStatus. When
// both times are known a movement at least DelayThreshold late is Delayed.
func Status(raw string, scheduled, actual *time.Time) model.FlightStatus {
	key := strings.ToLower(strings.NewReplacer(" ", "", "_", "", "-", "").Replace(raw))
	late := scheduled != nil && actual != nil && actual.Sub(*scheduled) >= DelayThreshold

	switch key {
	case "canceled", "cancelled", "canceleduncertain":
		return model.StatusCancelled
	case "delayed":
		return model.StatusDelayed
	case "active", "arrived", "landed", "diverted", "completed":
		return model.StatusCompleted
	case "departed", "enroute", "approaching", "ontime":
		if late {
			return model.StatusDelayed
		}
		return model.StatusOnTime
	}
	if late {
		return model.StatusDelayed
	}
	return model.StatusScheduled
}

// LocalTime returns the local wall-clock time of an airport local-time
// payload, or "" when absent.
func LocalTime(raw any) string {
	return Field{"localTime", "local"}.String(raw)
}

// Delay normalizes an airport delay statistics payload for one day. A list
// payload contributes its first element.
func Delay(raw any, airport, date string) (model.AirportDelayStat, bool) {
	if items, ok := raw.([]any); ok {
		if len(items) == 0 {
			return model.AirportDelayStat{}, false
		}
		raw = items[0]
	}
	if _, ok := raw.(map[string]any); !ok {
		return model.AirportDelayStat{}, false
	}
	airport = strings.ToUpper(strings.TrimSpace(airport))
	if airport == "" || date == "" {
		return model.AirportDelayStat{}, false
	}

	return model.AirportDelayStat{
		AirportCode: airport,
		Date:        date,
		TotalFlights: Field{
			"statistics.flights.total", "departuresDelayInformation.numTotal", "flights.total", "numTotal",
		}.Int(raw),
		DelayedFlights: Field{
			"statistics.flights.delayed", "departuresDelayInformation.numDelayed", "flights.delayed", "numDelayed",
		}.Int(raw),
		CancelledFlights: Field{
			"statistics.flights.canceled", "statistics.flights.cancelled",
			"departuresDelayInformation.numCancelled", "flights.canceled", "numCancelled",
		}.Int(raw),
		AverageDelayMinute: Field{
			"statistics.delays.averageMinutes", "statistics.minutesDelayed.avg",
			"departuresDelayInformation.averageDelay", "averageDelay",
		}.Minutes(raw),
		MedianDelayMinute: Field{
			"statistics.delays.medianMinutes", "statistics.minutesDelayed.median",
			"departuresDelayInformation.medianDelay", "medianDelay",
		}.Minutes(raw),
	}, true
}

// Registrations returns the distinct aircraft registrations seen in flights,
// in first-seen order.
func Registrations(flights []model.Flight) []string {
	seen := make(map[string]struct{})
	var regs []string
	for _, f := range flights {
		reg := normalizeRegistration(f.AircraftRegistration)
		if reg == "" {
			continue
		}
		if _, ok := seen[reg]; ok {
			continue
		}
		seen[reg] = struct{}{}
		regs = append(regs, reg)
	}
	return regs
}

// AircraftStubs returns one minimal aircraft row per registration seen in
// flights, carrying the model reported by the schedule when present.
func AircraftStubs(flights []model.Flight) []model.Aircraft {
	byReg := make(map[string]int)
	var out []model.Aircraft
	for _, f := range flights {
		reg := normalizeRegistration(f.AircraftRegistration)
		if reg == "" {
			continue
		}
		if i, ok := byReg[reg]; ok {
			if out[i].Model == "" {
				out[i].Model = f.AircraftModel
			}
			continue
		}
		byReg[reg] = len(out)
		out = append(out, model.Aircraft{Registration: reg, Model: f.AircraftModel})
	}
	return out
}

func normalizeNumber(s string) string {
	return strings.ToUpper(strings.Join(strings.Fields(s), ""))
}

func normalizeRegistration(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	switch s {
	case "", "N/A", "NA", "UNKNOWN", "NONE":
		return ""
	}
	return s
}

func firstTime(ts ...*time.Time) *time.Time {
	for _, t := range ts {
		if t != nil {
			return t
		}
	}
	return nil
}
