package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aerodash/aeroingest/internal/cache"
	"github.com/aerodash/aeroingest/internal/config"
	"github.com/aerodash/aeroingest/internal/gate"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

type recordedSleeps struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (r *recordedSleeps) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.waits = append(r.waits, d)
	r.mu.Unlock()
	return ctx.Err()
}

func (r *recordedSleeps) all() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.waits...)
}

func newTestFetcher(t *testing.T, h http.HandlerFunc) (*Fetcher, *gate.Gate, *recordedSleeps) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	cfg := &config.Config{
		API: config.API{BaseURL: srv.URL, Key: "test-key", Host: "api.test", Timeout: 2 * time.Second},
		Retry: config.Retry{
			MaxAttempts:      3,
			BackoffBase:      time.Second,
			TransientRetries: 1,
			TransientDelay:   time.Second,
		},
	}
	g := gate.New(time.Minute, 1000, 0)
	sleeps := &recordedSleeps{}
	f := New(cfg, g, cache.New(time.Minute), WithSleep(sleeps.sleep))
	return f, g, sleeps
}

func jsonHandler(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}
}

// ---------------------------------------------------------------------------
// Request
// ---------------------------------------------------------------------------

func TestRequestPath(t *testing.T) {
	path, err := Request{
		Endpoint:   EndpointAirportInfo,
		PathParams: map[string]string{"codeType": "iata", "code": "DEL"},
	}.Path()
	require.NoError(t, err)
	assert.Equal(t, "/airports/iata/DEL", path)

	path, err = Request{
		Endpoint:   EndpointAircraftInfo,
		PathParams: map[string]string{"registration": "VT/ALV"},
	}.Path()
	require.NoError(t, err)
	assert.Equal(t, "/aircrafts/reg/VT%2FALV", path)

	_, err = Request{Endpoint: EndpointFlightStatus, PathParams: map[string]string{"number": "AI101"}}.Path()
	assert.ErrorContains(t, err, "{date}")
}

func TestCodeType(t *testing.T) {
	assert.Equal(t, "iata", CodeType("DEL"))
	assert.Equal(t, "icao", CodeType("VIDP"))
}

// ---------------------------------------------------------------------------
// Fetch
// ---------------------------------------------------------------------------

func TestFetchSuccessSendsHeaders(t *testing.T) {
	f, _, _ := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/airports/iata/DEL", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-RapidAPI-Key"))
		assert.Equal(t, "api.test", r.Header.Get("X-RapidAPI-Host"))
		jsonHandler(`{"iata":"DEL","name":"Indira Gandhi"}`)(w, r)
	})

	payload, err := f.AirportInfo(context.Background(), "del")
	require.NoError(t, err)
	m, ok := payload.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "DEL", m["iata"])

	stats := f.Stats()
	assert.Equal(t, int64(1), stats.Calls)
	assert.Equal(t, int64(1), stats.Successes)
}

func TestFetchCacheHitBypassesGate(t *testing.T) {
	var hits atomic.Int32
	var directions sync.Map
	f, g, _ := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		directions.Store(r.URL.Query().Get("direction"), true)
		jsonHandler(`{"departures":[]}`)(w, r)
	})

	_, err := f.AirportSchedule(context.Background(), "DEL", Departures)
	require.NoError(t, err)
	granted := g.Granted()

	_, err = f.AirportSchedule(context.Background(), "DEL", Departures)
	require.NoError(t, err)

	assert.Equal(t, granted, g.Granted())
	assert.Equal(t, int32(1), hits.Load())
	assert.Equal(t, int64(1), f.Stats().CacheHits)

	// a different query is a different fingerprint
	_, err = f.AirportSchedule(context.Background(), "DEL", Arrivals)
	require.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load())

	_, ok := directions.Load("Departure")
	assert.True(t, ok)
	_, ok = directions.Load("Arrival")
	assert.True(t, ok)
}

func TestFetchNotFoundIsTerminalAndNotCached(t *testing.T) {
	var hits atomic.Int32
	f, _, sleeps := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	})

	for i := 0; i < 2; i++ {
		payload, err := f.AirportInfo(context.Background(), "XXX")
		assert.Nil(t, payload)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.Equal(t, KindNotFound, KindOf(err))
	}

	assert.Equal(t, int32(2), hits.Load(), "404 is never cached")
	assert.Empty(t, sleeps.all())
	assert.Equal(t, int64(2), f.Stats().NotFound)
	assert.Equal(t, int64(0), f.Stats().Errors)
}

func TestFetchNoContentIsNotFound(t *testing.T) {
	f, _, _ := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	_, err := f.AirportSchedule(context.Background(), "DEL", Departures)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFetchRateLimitedTerminates(t *testing.T) {
	var hits atomic.Int32
	f, g, sleeps := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	})

	payload, err := f.AirportInfo(context.Background(), "DEL")
	assert.Nil(t, payload)
	assert.ErrorIs(t, err, ErrRateLimited)

	var fe *Error
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, 3, fe.Attempts)
	assert.Equal(t, http.StatusTooManyRequests, fe.Status)

	assert.Equal(t, int32(3), hits.Load())
	assert.Equal(t, int64(3), g.Granted(), "every attempt passes the gate")
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, sleeps.all())
	assert.Equal(t, int64(1), f.Stats().Errors)
}

func TestFetchRateLimitedThenSuccess(t *testing.T) {
	var hits atomic.Int32
	f, _, sleeps := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		jsonHandler(`{"reg":"VT-ALV"}`)(w, r)
	})

	payload, err := f.AircraftInfo(context.Background(), "VT-ALV")
	require.NoError(t, err)
	assert.NotNil(t, payload)
	assert.Equal(t, []time.Duration{time.Second}, sleeps.all())
}

func TestFetchServerErrorRetriedOnce(t *testing.T) {
	var hits atomic.Int32
	f, _, sleeps := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := f.AirportDelays(context.Background(), "DEL")
	assert.ErrorIs(t, err, ErrTransient)
	assert.Equal(t, int32(2), hits.Load())
	assert.Equal(t, []time.Duration{time.Second}, sleeps.all())
}

func TestFetchServerErrorThenSuccess(t *testing.T) {
	var hits atomic.Int32
	f, _, _ := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		jsonHandler(`[{"airportIcao":"VIDP"}]`)(w, r)
	})

	payload, err := f.AirportDelays(context.Background(), "DEL")
	require.NoError(t, err)
	assert.IsType(t, []any{}, payload)
}

func TestFetchMalformedNotRetried(t *testing.T) {
	var hits atomic.Int32
	f, _, sleeps := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		jsonHandler(`{"iata": "DEL"`)(w, r)
	})

	_, err := f.AirportInfo(context.Background(), "DEL")
	assert.ErrorIs(t, err, ErrMalformed)
	assert.Equal(t, int32(1), hits.Load())
	assert.Empty(t, sleeps.all())
}

func TestFetchRejectedNotRetried(t *testing.T) {
	var hits atomic.Int32
	f, _, _ := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"message":"You are not subscribed to this API."}`))
	})

	_, err := f.AirportInfo(context.Background(), "DEL")
	assert.ErrorIs(t, err, ErrRejected)
	assert.ErrorContains(t, err, "not subscribed")
	assert.Equal(t, int32(1), hits.Load())
}

func TestFetchNetworkErrorIsTransient(t *testing.T) {
	f, _, sleeps := newTestFetcher(t, jsonHandler(`{}`))
	f.baseURL = "http://127.0.0.1:1"

	_, err := f.AirportInfo(context.Background(), "DEL")
	assert.ErrorIs(t, err, ErrTransient)
	assert.Len(t, sleeps.all(), 1)
}

func TestFetchCancelledContext(t *testing.T) {
	f, _, _ := newTestFetcher(t, jsonHandler(`{}`))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.AirportInfo(ctx, "DEL")
	assert.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFetchNullBodyIsNotFound(t *testing.T) {
	f, _, _ := newTestFetcher(t, jsonHandler(`null`))
	_, err := f.AirportInfo(context.Background(), "DEL")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClearCache(t *testing.T) {
	var hits atomic.Int32
	f, _, _ := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		jsonHandler(`{"iata":"DEL"}`)(w, r)
	})

	_, _ = f.AirportInfo(context.Background(), "DEL")
	f.ClearCache()
	_, _ = f.AirportInfo(context.Background(), "DEL")
	assert.Equal(t, int32(2), hits.Load())
}

func TestEndpointHelpersPaths(t *testing.T) {
	var paths sync.Map
	f, _, _ := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		paths.Store(r.URL.Path, true)
		jsonHandler(`{"ok":true}`)(w, r)
	})
	ctx := context.Background()

	_, err := f.FlightStatus(ctx, "AI 101", "2024-05-01")
	require.NoError(t, err)
	_, err = f.AirportLocalTime(ctx, "vidp")
	require.NoError(t, err)

	_, ok := paths.Load("/flights/number/AI101/2024-05-01")
	assert.True(t, ok)
	_, ok = paths.Load("/airports/icao/VIDP/time/local")
	assert.True(t, ok)
}

func TestStatsReportGateWait(t *testing.T) {
	srv := httptest.NewServer(jsonHandler(`{"iata":"DEL"}`))
	t.Cleanup(srv.Close)

	cfg := &config.Config{API: config.API{BaseURL: srv.URL, Timeout: 2 * time.Second}}
	f := New(cfg, gate.New(30*time.Millisecond, 1, 0), cache.New(time.Minute))

	_, err := f.AirportInfo(context.Background(), "DEL")
	require.NoError(t, err)
	assert.Zero(t, f.Stats().GateWaitSeconds)

	_, err = f.AirportInfo(context.Background(), "BOM")
	require.NoError(t, err)
	assert.Greater(t, f.Stats().GateWaitSeconds, 0.0, "second request waited for the window")
}
