// Package batch fans identifier lookups out over a bounded worker pool.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
)

// FetchFunc resolves one identifier. A non-nil error drops the identifier
// from the result.
type FetchFunc[ID comparable, R any] func(ctx context.Context, id ID) (R, error)

// FetchAll calls fn for every distinct identifier using at most width
// concurrent workers and returns the successful results keyed by identifier.
// Failed identifiers are absent. Neither errors nor panics escape; once ctx
// is cancelled no further identifiers are dispatched.
func FetchAll[ID comparable, R any](ctx context.Context, ids []ID, width int, fn FetchFunc[ID, R]) map[ID]R {
	if width <= 0 {
		width = 1
	}

	results := make(map[ID]R, len(ids))
	var mu sync.Mutex

	g := new(errgroup.Group)
	g.SetLimit(width)

	seen := make(map[ID]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		if ctx.Err() != nil {
			slog.Warn("batch cancelled", "dispatched", len(seen)-1, "total", len(ids))
			break
		}

		id := id
		g.Go(func() error {
			r, err := call(ctx, id, fn)
			if err != nil {
				slog.Debug("batch item dropped", "id", id, "error", err)
				return nil // don't fail the group
			}
			mu.Lock()
			results[id] = r
			mu.Unlock()
			return nil
		})
	}

	_ = g.Wait()
	return results
}

func call[ID comparable, R any](ctx context.Context, id ID, fn FetchFunc[ID, R]) (r R, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic fetching %v: %v", id, p)
			slog.Error("batch worker panicked", "id", id, "panic", p)
		}
	}()
	return fn(ctx, id)
}
