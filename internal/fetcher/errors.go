package fetcher

import (
	"errors"
	"fmt"
)

// Kind classifies why a fetch produced no payload.
type Kind int

const (
	// KindNotFound means the remote API has no data for the identifier.
	KindNotFound Kind = iota + 1
	// KindRateLimited means the remote API kept answering 429.
	KindRateLimited
	// KindTransient covers 5xx answers, network errors and timeouts.
	KindTransient
	// KindMalformed means the body was not valid JSON.
	KindMalformed
	// KindRejected covers the remaining 4xx answers (bad key, forbidden).
	KindRejected
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindRateLimited:
		return "rate_limited"
	case KindTransient:
		return "transient"
	case KindMalformed:
		return "malformed"
	case KindRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is.
var (
	ErrNotFound    = &Error{Kind: KindNotFound}
	ErrRateLimited = &Error{Kind: KindRateLimited}
	ErrTransient   = &Error{Kind: KindTransient}
	ErrMalformed   = &Error{Kind: KindMalformed}
	ErrRejected    = &Error{Kind: KindRejected}
)

// Error is the terminal outcome of a failed fetch.
type Error struct {
	Kind     Kind
	Path     string
	Status   int
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("fetch %s: %s", e.Path, e.Kind)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Attempts > 1 {
		msg += fmt.Sprintf(" after %d attempts", e.Attempts)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, ErrNotFound)
// works for every not-found failure.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// KindOf returns the kind carried by err, or 0 when err is not a fetch error.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return 0
}
