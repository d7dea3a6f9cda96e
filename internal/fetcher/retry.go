package fetcher

import (
	"fmt"
	"time"
)

// Policy bounds the retries of a single request.
type Policy struct {
	// MaxAttempts caps the number of requests issued, first one included.
	MaxAttempts int
	// BackoffBase is multiplied by 2^attempt after each 429.
	BackoffBase time.Duration
	// TransientRetries is how many times a 5xx or network failure is retried.
	TransientRetries int
	// TransientDelay is the fixed wait before a transient retry.
	TransientDelay time.Duration
}

// DefaultPolicy matches the remote API's free tier.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:      3,
		BackoffBase:      time.Second,
		TransientRetries: 1,
		TransientDelay:   time.Second,
	}
}

// Backoff returns the wait after the given zero-based attempt was throttled.
func (p Policy) Backoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 16 {
		attempt = 16
	}
	return p.BackoffBase * time.Duration(1<<attempt)
}

// State is a step of a single fetch.
type State int

const (
	StateNotStarted State = iota
	StateRequesting
	StateBackoff
	StateSuccess
	StateNotFound
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateRequesting:
		return "requesting"
	case StateBackoff:
		return "backoff"
	case StateSuccess:
		return "success"
	case StateNotFound:
		return "not_found"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateSuccess || s == StateNotFound || s == StateFailed
}

// attempt walks one request through its states.
type attempt struct {
	policy    Policy
	state     State
	requests  int
	transient int
}

func newAttempt(p Policy) *attempt {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	return &attempt{policy: p}
}

// start moves into Requesting. Only NotStarted and Backoff may start.
func (a *attempt) start() error {
	if a.state != StateNotStarted && a.state != StateBackoff {
		return fmt.Errorf("cannot start request from state %s", a.state)
	}
	a.state = StateRequesting
	a.requests++
	return nil
}

func (a *attempt) succeed() {
	a.state = StateSuccess
}

// fail records a classified failure. When the policy allows another try it
// moves into Backoff and returns the wait; otherwise the state is terminal.
func (a *attempt) fail(kind Kind) (time.Duration, bool) {
	switch kind {
	case KindNotFound:
		a.state = StateNotFound
		return 0, false
	case KindRateLimited:
		if a.requests < a.policy.MaxAttempts {
			a.state = StateBackoff
			return a.policy.Backoff(a.requests - 1), true
		}
	case KindTransient:
		if a.transient < a.policy.TransientRetries && a.requests < a.policy.MaxAttempts {
			a.transient++
			a.state = StateBackoff
			return a.policy.TransientDelay, true
		}
	}
	a.state = StateFailed
	return 0, false
}

// abort ends the attempt without classification (context cancelled).
func (a *attempt) abort() {
	a.state = StateFailed
}
