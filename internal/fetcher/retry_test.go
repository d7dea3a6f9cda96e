package fetcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicyBackoff(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, time.Second, p.Backoff(0))
	assert.Equal(t, 2*time.Second, p.Backoff(1))
	assert.Equal(t, 4*time.Second, p.Backoff(2))
	assert.Equal(t, time.Second, p.Backoff(-3))
	assert.Equal(t, p.Backoff(16), p.Backoff(40))
}

func TestAttemptRateLimitedExhausts(t *testing.T) {
	a := newAttempt(DefaultPolicy())

	var waits []time.Duration
	for {
		require.NoError(t, a.start())
		wait, retry := a.fail(KindRateLimited)
		if !retry {
			break
		}
		assert.Equal(t, StateBackoff, a.state)
		waits = append(waits, wait)
	}

	assert.Equal(t, StateFailed, a.state)
	assert.Equal(t, 3, a.requests)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, waits)
}

func TestAttemptTransientRetriesOnce(t *testing.T) {
	a := newAttempt(DefaultPolicy())

	require.NoError(t, a.start())
	wait, retry := a.fail(KindTransient)
	assert.True(t, retry)
	assert.Equal(t, time.Second, wait)

	require.NoError(t, a.start())
	_, retry = a.fail(KindTransient)
	assert.False(t, retry)
	assert.Equal(t, StateFailed, a.state)
	assert.Equal(t, 2, a.requests)
}

func TestAttemptTerminalKinds(t *testing.T) {
	tests := []struct {
		kind Kind
		want State
	}{
		{KindNotFound, StateNotFound},
		{KindMalformed, StateFailed},
		{KindRejected, StateFailed},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			a := newAttempt(DefaultPolicy())
			require.NoError(t, a.start())
			_, retry := a.fail(tt.kind)
			assert.False(t, retry)
			assert.Equal(t, tt.want, a.state)
			assert.True(t, a.state.Terminal())
		})
	}
}

func TestAttemptCannotRestartTerminal(t *testing.T) {
	a := newAttempt(DefaultPolicy())
	require.NoError(t, a.start())
	a.succeed()
	assert.Equal(t, StateSuccess, a.state)
	assert.Error(t, a.start())

	// starting twice without a failure in between is refused too
	b := newAttempt(DefaultPolicy())
	require.NoError(t, b.start())
	assert.Error(t, b.start())
}

func TestAttemptSingleShotPolicy(t *testing.T) {
	a := newAttempt(Policy{MaxAttempts: 1, BackoffBase: time.Second, TransientRetries: 1})
	require.NoError(t, a.start())
	_, retry := a.fail(KindRateLimited)
	assert.False(t, retry)

	b := newAttempt(Policy{MaxAttempts: 1, TransientRetries: 1})
	require.NoError(t, b.start())
	_, retry = b.fail(KindTransient)
	assert.False(t, retry)
}

func TestErrorMatching(t *testing.T) {
	err := error(&Error{Kind: KindRateLimited, Path: "/airports/iata/DEL", Status: 429, Attempts: 3})
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Equal(t, KindRateLimited, KindOf(err))
	assert.Equal(t, Kind(0), KindOf(assert.AnError))
	assert.Equal(t, "fetch /airports/iata/DEL: rate_limited (status 429) after 3 attempts", err.Error())
}
