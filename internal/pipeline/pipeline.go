package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/aerodash/aeroingest/internal/batch"
	"github.com/aerodash/aeroingest/internal/config"
	"github.com/aerodash/aeroingest/internal/fetcher"
	"github.com/aerodash/aeroingest/internal/model"
	"github.com/aerodash/aeroingest/internal/normalize"
	"github.com/aerodash/aeroingest/internal/store"
)

var (
	// ErrNoAirports fails a run whose first stage produced nothing.
	ErrNoAirports = errors.New("no airport data fetched")
	// ErrUnknownAirport means neither the API nor the store knows the code.
	ErrUnknownAirport = errors.New("unknown airport")
	// ErrUnknownFlight means the API has no flight for that number and date.
	ErrUnknownFlight = errors.New("unknown flight")

	errMissingKey = errors.New("payload lacks its natural key")
)

// Client is the subset of the fetch client the pipeline drives.
type Client interface {
	AirportInfo(ctx context.Context, code string) (any, error)
	AirportSchedule(ctx context.Context, code string, dir fetcher.Direction) (any, error)
	AirportDelays(ctx context.Context, code string) (any, error)
	AirportLocalTime(ctx context.Context, code string) (any, error)
	AircraftInfo(ctx context.Context, registration string) (any, error)
	FlightStatus(ctx context.Context, number, date string) (any, error)
	Stats() model.ClientStats
}

// Pipeline orchestrates: airports -> schedules -> aircraft -> delays,
// normalizing and storing after every stage.
type Pipeline struct {
	cfg    config.Fetch
	client Client
	store  store.Store
	sink   *store.Sink
	now    func() time.Time

	runMu sync.Mutex

	mu   sync.RWMutex
	last *model.Summary
}

// New wires a pipeline to its fetch client and store.
func New(cfg config.Fetch, client Client, st store.Store) *Pipeline {
	return &Pipeline{
		cfg:    cfg,
		client: client,
		store:  st,
		sink:   store.NewSink(st),
		now:    time.Now,
	}
}

type scheduleKey struct {
	code string
	dir  fetcher.Direction
}

// Run executes one full fetch. Partial failures only reduce the counts; the
// run fails with ErrNoAirports when stage (a) yields nothing. Runs are
// serialized.
func (p *Pipeline) Run(ctx context.Context) (model.Summary, error) {
	p.runMu.Lock()
	defer p.runMu.Unlock()

	start := time.Now()
	sum := model.Summary{RunID: uuid.NewString(), StartedAt: p.now().UTC()}
	log := slog.With("run_id", sum.RunID)
	log.Info("pipeline run starting")

	// 1. Airport info
	codes := limit(normalizeCodes(p.cfg.AirportCodes), p.cfg.MaxAirports)
	stage := time.Now()
	airports := batch.FetchAll(ctx, codes, p.cfg.AirportWorkers, p.fetchAirport)
	var fetched []string
	for _, code := range codes {
		a, ok := airports[code]
		if !ok {
			continue
		}
		fetched = append(fetched, code)
		sum.Airports.Fetched++
		if p.sink.Airport(ctx, a) {
			sum.Airports.Stored++
		}
	}
	p.observe(log, "airports", sum.Airports, stage)

	if len(fetched) == 0 {
		p.finish(log, &sum, start, false)
		return sum, ErrNoAirports
	}

	// 2. Schedules: departures for a subset, arrivals for a smaller one
	var keys []scheduleKey
	for _, code := range limit(fetched, p.cfg.ScheduleAirports) {
		keys = append(keys, scheduleKey{code, fetcher.Departures})
	}
	for _, code := range limit(fetched, p.cfg.ArrivalAirports) {
		keys = append(keys, scheduleKey{code, fetcher.Arrivals})
	}
	stage = time.Now()
	schedules := batch.FetchAll(ctx, keys, p.cfg.ScheduleWorkers, func(ctx context.Context, k scheduleKey) ([]model.Flight, error) {
		return p.fetchSchedule(ctx, k, p.cfg.MaxFlightsPerAirport)
	})
	var flights []model.Flight
	for _, k := range keys {
		flights = append(flights, schedules[k]...)
	}
	flights = normalize.Collapse(flights)
	sum.Flights.Fetched = len(flights)
	p.storeStubs(ctx, flights)
	sum.Flights.Stored = p.sink.Flights(ctx, flights)
	p.observe(log, "flights", sum.Flights, stage)

	// 3. Aircraft seen in the schedules
	regs := limit(normalize.Registrations(flights), p.cfg.MaxAircraft)
	stage = time.Now()
	aircraft := batch.FetchAll(ctx, regs, p.cfg.AircraftWorkers, p.fetchAircraft)
	for _, reg := range regs {
		a, ok := aircraft[reg]
		if !ok {
			continue
		}
		sum.Aircraft.Fetched++
		if p.sink.Aircraft(ctx, a) {
			sum.Aircraft.Stored++
		}
	}
	p.observe(log, "aircraft", sum.Aircraft, stage)

	// 4. Delay statistics for the major airports
	delayCodes := limit(fetched, p.cfg.DelayAirports)
	date := sum.StartedAt.Format(time.DateOnly)
	stage = time.Now()
	delays := batch.FetchAll(ctx, delayCodes, p.cfg.DelayWorkers, func(ctx context.Context, code string) (model.AirportDelayStat, error) {
		return p.fetchDelay(ctx, code, date)
	})
	for _, code := range delayCodes {
		d, ok := delays[code]
		if !ok {
			continue
		}
		sum.Delays.Fetched++
		if p.sink.Delay(ctx, d) {
			sum.Delays.Stored++
		}
	}
	p.observe(log, "delays", sum.Delays, stage)

	p.finish(log, &sum, start, true)
	return sum, nil
}

// QuickRefresh fetches only delay statistics and the first departures of a
// few airports. It does not replace the last full run summary.
func (p *Pipeline) QuickRefresh(ctx context.Context) (model.Summary, error) {
	p.runMu.Lock()
	defer p.runMu.Unlock()

	start := time.Now()
	sum := model.Summary{RunID: uuid.NewString(), StartedAt: p.now().UTC()}
	log := slog.With("run_id", sum.RunID, "mode", "quick")
	codes := limit(normalizeCodes(p.cfg.AirportCodes), p.cfg.QuickAirports)
	date := sum.StartedAt.Format(time.DateOnly)

	var (
		delays  map[string]model.AirportDelayStat
		flights map[scheduleKey][]model.Flight
	)
	g := new(errgroup.Group)
	g.Go(func() error {
		delays = batch.FetchAll(ctx, codes, p.cfg.DelayWorkers, func(ctx context.Context, code string) (model.AirportDelayStat, error) {
			return p.fetchDelay(ctx, code, date)
		})
		return nil
	})
	g.Go(func() error {
		keys := make([]scheduleKey, len(codes))
		for i, code := range codes {
			keys[i] = scheduleKey{code, fetcher.Departures}
		}
		flights = batch.FetchAll(ctx, keys, p.cfg.ScheduleWorkers, func(ctx context.Context, k scheduleKey) ([]model.Flight, error) {
			return p.fetchSchedule(ctx, k, p.cfg.QuickFlightsPerAirport)
		})
		return nil
	})
	_ = g.Wait()

	for _, code := range codes {
		if d, ok := delays[code]; ok {
			sum.Delays.Fetched++
			if p.sink.Delay(ctx, d) {
				sum.Delays.Stored++
			}
		}
		fs := flights[scheduleKey{code, fetcher.Departures}]
		sum.Flights.Fetched += len(fs)
		p.storeStubs(ctx, fs)
		sum.Flights.Stored += p.sink.Flights(ctx, fs)
	}

	sum.Success = true
	sum.ElapsedSeconds = time.Since(start).Seconds()
	sum.Client = p.client.Stats()
	log.Info("quick refresh complete", "flights", sum.Flights.Stored, "delays", sum.Delays.Stored, "elapsed", sum.ElapsedSeconds)
	return sum, nil
}

// AirportDetails fetches basic info, current departures and today's delays
// of one airport concurrently. Every piece found is stored. Basic info falls
// back to the store when the API has none.
func (p *Pipeline) AirportDetails(ctx context.Context, code string) (model.AirportDetails, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return model.AirportDetails{}, fmt.Errorf("%w: empty code", ErrUnknownAirport)
	}
	details := model.AirportDetails{Code: code, CurrentFlights: []model.Flight{}}
	date := p.now().UTC().Format(time.DateOnly)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a, err := p.fetchAirport(gctx, code)
		if err != nil {
			return nil // don't fail the group
		}
		p.sink.Airport(gctx, a)
		details.BasicInfo = &a
		return nil
	})
	g.Go(func() error {
		flights, err := p.fetchSchedule(gctx, scheduleKey{code, fetcher.Departures}, p.cfg.MaxFlightsPerAirport)
		if err != nil {
			return nil
		}
		p.storeStubs(gctx, flights)
		p.sink.Flights(gctx, flights)
		details.CurrentFlights = append(details.CurrentFlights, flights...)
		return nil
	})
	g.Go(func() error {
		d, err := p.fetchDelay(gctx, code, date)
		if err != nil {
			return nil
		}
		p.sink.Delay(gctx, d)
		details.Delays = &d
		return nil
	})
	g.Go(func() error {
		raw, err := p.client.AirportLocalTime(gctx, code)
		if err != nil {
			return nil
		}
		details.LocalTime = normalize.LocalTime(raw)
		return nil
	})
	_ = g.Wait()

	if details.BasicInfo == nil {
		stored, err := p.store.Airport(ctx, code)
		if err != nil {
			slog.Warn("failed to load stored airport", "code", code, "error", err)
		}
		details.BasicInfo = stored
	}
	if details.BasicInfo == nil && len(details.CurrentFlights) == 0 && details.Delays == nil {
		return details, fmt.Errorf("%w: %s", ErrUnknownAirport, code)
	}
	return details, nil
}

// FlightStatus fetches one flight by number on a local date (YYYY-MM-DD)
// and stores it.
func (p *Pipeline) FlightStatus(ctx context.Context, number, date string) (model.Flight, error) {
	number = strings.ToUpper(strings.Join(strings.Fields(number), ""))
	if number == "" {
		return model.Flight{}, fmt.Errorf("%w: empty number", ErrUnknownFlight)
	}
	raw, err := p.client.FlightStatus(ctx, number, date)
	if errors.Is(err, fetcher.ErrNotFound) {
		return model.Flight{}, fmt.Errorf("%w: %s on %s", ErrUnknownFlight, number, date)
	}
	if err != nil {
		return model.Flight{}, fmt.Errorf("flight status %s: %w", number, err)
	}
	f, ok := normalize.Flight(raw)
	if !ok {
		slog.Warn("flight payload rejected", "number", number, "date", date)
		return model.Flight{}, fmt.Errorf("%w: %s on %s", ErrUnknownFlight, number, date)
	}

	flights := []model.Flight{f}
	p.stamp(flights)
	p.storeStubs(ctx, flights)
	p.sink.Flight(ctx, flights[0])
	return flights[0], nil
}

// Last returns the summary of the latest completed full run.
func (p *Pipeline) Last() (model.Summary, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.last == nil {
		return model.Summary{}, false
	}
	return *p.last, true
}

func (p *Pipeline) fetchAirport(ctx context.Context, code string) (model.Airport, error) {
	raw, err := p.client.AirportInfo(ctx, code)
	if err != nil {
		return model.Airport{}, err
	}
	a, ok := normalize.Airport(raw)
	if !ok {
		slog.Warn("airport payload rejected", "code", code)
		return model.Airport{}, errMissingKey
	}
	return a, nil
}

func (p *Pipeline) fetchSchedule(ctx context.Context, k scheduleKey, n int) ([]model.Flight, error) {
	raw, err := p.client.AirportSchedule(ctx, k.code, k.dir)
	if err != nil {
		return nil, err
	}
	flights := normalize.ScheduleFlights(raw, k.code, string(k.dir), n)
	p.stamp(flights)
	return flights, nil
}

// stamp sets the fetch date of flights to today (UTC).
func (p *Pipeline) stamp(flights []model.Flight) {
	date := p.now().UTC().Format(time.DateOnly)
	for i := range flights {
		flights[i].FetchDate = date
	}
}

func (p *Pipeline) fetchAircraft(ctx context.Context, reg string) (model.Aircraft, error) {
	raw, err := p.client.AircraftInfo(ctx, reg)
	if err != nil {
		return model.Aircraft{}, err
	}
	a, ok := normalize.Aircraft(raw)
	if !ok {
		slog.Warn("aircraft payload rejected", "registration", reg)
		return model.Aircraft{}, errMissingKey
	}
	return a, nil
}

func (p *Pipeline) fetchDelay(ctx context.Context, code, date string) (model.AirportDelayStat, error) {
	raw, err := p.client.AirportDelays(ctx, code)
	if err != nil {
		return model.AirportDelayStat{}, err
	}
	d, ok := normalize.Delay(raw, code, date)
	if !ok {
		slog.Warn("delay payload rejected", "code", code)
		return model.AirportDelayStat{}, errMissingKey
	}
	return d, nil
}

// storeStubs records every registration seen in flights before the detailed
// aircraft stage runs.
func (p *Pipeline) storeStubs(ctx context.Context, flights []model.Flight) {
	for _, a := range normalize.AircraftStubs(flights) {
		p.sink.AircraftStub(ctx, a)
	}
}

func (p *Pipeline) observe(log *slog.Logger, stage string, c model.StageCounts, started time.Time) {
	stageRows.WithLabelValues(stage, "fetched").Add(float64(c.Fetched))
	stageRows.WithLabelValues(stage, "stored").Add(float64(c.Stored))
	log.Info("stage complete", "stage", stage, "fetched", c.Fetched, "stored", c.Stored, "elapsed", time.Since(started).Round(time.Millisecond))
}

func (p *Pipeline) finish(log *slog.Logger, sum *model.Summary, start time.Time, success bool) {
	sum.Success = success
	sum.ElapsedSeconds = time.Since(start).Seconds()
	sum.Client = p.client.Stats()

	runDuration.Observe(sum.ElapsedSeconds)
	if success {
		runsTotal.WithLabelValues("success").Inc()
		lastSuccess.SetToCurrentTime()
	} else {
		runsTotal.WithLabelValues("failed").Inc()
	}

	p.mu.Lock()
	s := *sum
	p.last = &s
	p.mu.Unlock()

	log.Info("pipeline run complete",
		"success", success,
		"airports", sum.Airports.Fetched,
		"flights", sum.Flights.Fetched,
		"aircraft", sum.Aircraft.Fetched,
		"delays", sum.Delays.Fetched,
		"api_calls", sum.Client.Calls,
		"cache_hits", sum.Client.CacheHits,
		"elapsed", sum.ElapsedSeconds,
	)
}

func normalizeCodes(codes []string) []string {
	seen := make(map[string]struct{}, len(codes))
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		c = strings.ToUpper(strings.TrimSpace(c))
		if c == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

// limit returns at most n leading elements; n <= 0 means none.
func limit[T any](s []T, n int) []T {
	if n <= 0 {
		return nil
	}
	if len(s) > n {
		return s[:n]
	}
	return s
}
