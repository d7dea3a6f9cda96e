package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"

	"github.com/aerodash/aeroingest/internal/cache"
	"github.com/aerodash/aeroingest/internal/config"
	"github.com/aerodash/aeroingest/internal/gate"
	"github.com/aerodash/aeroingest/internal/model"
)

const maxBodyBytes = 8 << 20

var placeholder = regexp.MustCompile(`\{[A-Za-z0-9_]+\}`)

// Request names an endpoint template plus its parameters.
type Request struct {
	// Endpoint is a path template such as "/airports/{codeType}/{code}".
	Endpoint   string
	PathParams map[string]string
	Query      map[string]string
}

// Path substitutes the path parameters into the endpoint template.
func (r Request) Path() (string, error) {
	path := r.Endpoint
	for k, v := range r.PathParams {
		path = strings.ReplaceAll(path, "{"+k+"}", url.PathEscape(v))
	}
	if m := placeholder.FindString(path); m != "" {
		return "", fmt.Errorf("endpoint %s: missing path parameter %s", r.Endpoint, m)
	}
	return path, nil
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(f *Fetcher) { f.client = hc }
}

// WithPolicy overrides the retry policy derived from config.
func WithPolicy(p Policy) Option {
	return func(f *Fetcher) { f.policy = p }
}

// WithSleep replaces the backoff sleep (useful for testing).
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(f *Fetcher) { f.sleep = sleep }
}

// Fetcher is the single entry point to the remote API. Every call goes
// through the response cache, then the request gate, then the retry policy.
type Fetcher struct {
	client  *http.Client
	baseURL string
	header  http.Header
	gate    *gate.Gate
	cache   *cache.Cache
	policy  Policy
	sleep   func(ctx context.Context, d time.Duration) error

	calls     atomic.Int64
	cacheHits atomic.Int64
	successes atomic.Int64
	notFound  atomic.Int64
	failures  atomic.Int64
}

// New builds a Fetcher from the API and retry sections of cfg. Every request
// passes through g and c.
func New(cfg *config.Config, g *gate.Gate, c *cache.Cache, opts ...Option) *Fetcher {
	timeout := cfg.API.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	header := http.Header{}
	header.Set("Accept", "application/json")
	if cfg.API.Key != "" {
		header.Set("X-RapidAPI-Key", cfg.API.Key)
	}
	if cfg.API.Host != "" {
		header.Set("X-RapidAPI-Host", cfg.API.Host)
	}

	policy := DefaultPolicy()
	if cfg.Retry.MaxAttempts > 0 {
		policy = Policy{
			MaxAttempts:      cfg.Retry.MaxAttempts,
			BackoffBase:      cfg.Retry.BackoffBase,
			TransientRetries: cfg.Retry.TransientRetries,
			TransientDelay:   cfg.Retry.TransientDelay,
		}
	}

	f := &Fetcher{
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(cfg.API.BaseURL, "/"),
		header:  header,
		gate:    g,
		cache:   c,
		policy:  policy,
		sleep:   sleepCtx,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch returns the decoded JSON payload of a GET request. A nil payload is
// always paired with a *Error describing the terminal outcome.
func (f *Fetcher) Fetch(ctx context.Context, req Request) (any, error) {
	path, err := req.Path()
	if err != nil {
		f.failures.Add(1)
		return nil, &Error{Kind: KindRejected, Path: req.Endpoint, Err: err}
	}

	fp := cache.Fingerprint(path, req.Query)
	if body, ok := f.cache.Get(fp); ok {
		var payload any
		if err := json.Unmarshal(body, &payload); err == nil {
			f.cacheHits.Add(1)
			fetchOutcomes.WithLabelValues(req.Endpoint, "cache_hit").Inc()
			return payload, nil
		}
	}

	a := newAttempt(f.policy)
	for {
		if err := a.start(); err != nil {
			return nil, &Error{Kind: KindTransient, Path: path, Err: err}
		}

		if err := f.gate.Acquire(ctx); err != nil {
			a.abort()
			return nil, f.terminal(req, &Error{Kind: KindTransient, Path: path, Attempts: a.requests, Err: err})
		}

		f.calls.Add(1)
		start := time.Now()
		payload, body, ferr := f.do(ctx, path, req.Query)
		fetchLatency.WithLabelValues(req.Endpoint).Observe(time.Since(start).Seconds())

		if ferr == nil {
			a.succeed()
			f.cache.Put(fp, body)
			f.successes.Add(1)
			fetchOutcomes.WithLabelValues(req.Endpoint, "success").Inc()
			return payload, nil
		}
		ferr.Attempts = a.requests

		if ctx.Err() != nil {
			a.abort()
			return nil, f.terminal(req, ferr)
		}

		wait, retry := a.fail(ferr.Kind)
		if !retry {
			return nil, f.terminal(req, ferr)
		}

		slog.Debug("retrying request", "path", path, "kind", ferr.Kind.String(), "attempt", a.requests, "wait", wait)
		fetchOutcomes.WithLabelValues(req.Endpoint, "retry").Inc()
		if err := f.sleep(ctx, wait); err != nil {
			a.abort()
			return nil, f.terminal(req, &Error{Kind: ferr.Kind, Path: path, Status: ferr.Status, Attempts: a.requests, Err: err})
		}
	}
}

// terminal records and logs a failed fetch.
func (f *Fetcher) terminal(req Request, e *Error) *Error {
	fetchOutcomes.WithLabelValues(req.Endpoint, e.Kind.String()).Inc()
	if e.Kind == KindNotFound {
		f.notFound.Add(1)
		slog.Info("no data", "path", e.Path)
		return e
	}
	f.failures.Add(1)
	slog.Warn("fetch failed", "path", e.Path, "kind", e.Kind.String(), "status", e.Status, "attempts", e.Attempts, "error", e.Err)
	return e
}

// do issues one GET and classifies the outcome.
func (f *Fetcher) do(ctx context.Context, path string, query map[string]string) (any, []byte, *Error) {
	u := f.baseURL + path
	if len(query) > 0 {
		q := url.Values{}
		for k, v := range query {
			q.Set(k, v)
		}
		u += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return nil, nil, &Error{Kind: KindRejected, Path: path, Err: fmt.Errorf("creating request: %w", err)}
	}
	for k, v := range f.header {
		req.Header[k] = v
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, nil, &Error{Kind: KindTransient, Path: path, Err: fmt.Errorf("executing request: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, nil, &Error{Kind: KindTransient, Path: path, Status: resp.StatusCode, Err: fmt.Errorf("reading body: %w", err)}
	}

	switch {
	case resp.StatusCode == http.StatusNoContent, resp.StatusCode == http.StatusNotFound:
		return nil, nil, &Error{Kind: KindNotFound, Path: path, Status: resp.StatusCode}
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, nil, &Error{Kind: KindRateLimited, Path: path, Status: resp.StatusCode}
	case resp.StatusCode >= 500:
		return nil, nil, &Error{Kind: KindTransient, Path: path, Status: resp.StatusCode}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, nil, &Error{Kind: KindRejected, Path: path, Status: resp.StatusCode, Err: errors.New(snippet(body))}
	}

	var payload any
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, nil, &Error{Kind: KindMalformed, Path: path, Status: resp.StatusCode, Err: fmt.Errorf("parsing response: %w", err)}
	}
	if payload == nil {
		return nil, nil, &Error{Kind: KindNotFound, Path: path, Status: resp.StatusCode}
	}
	return payload, body, nil
}

// Stats returns a copy of the cumulative counters.
func (f *Fetcher) Stats() model.ClientStats {
	return model.ClientStats{
		Calls:           f.calls.Load(),
		CacheHits:       f.cacheHits.Load(),
		Successes:       f.successes.Load(),
		NotFound:        f.notFound.Load(),
		Errors:          f.failures.Load(),
		GateWaitSeconds: f.gate.Waited().Seconds(),
	}
}

// ClearCache drops every cached response.
func (f *Fetcher) ClearCache() {
	f.cache.Clear()
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
