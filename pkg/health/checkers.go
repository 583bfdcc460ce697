package health

import (
	"context"
	"runtime"

	"github.com/go-faster/errors"
)

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Ping checks that the dependency answers a round trip.
func Ping(p Pinger) Check {
	return func(ctx context.Context) error {
		if err := p.Ping(ctx); err != nil {
			return errors.Wrap(err, "ping")
		}
		return nil
	}
}

// Goroutines fails when the process runs more than limit goroutines, which
// usually means handlers are piling up behind a stuck dependency.
func Goroutines(limit int) Check {
	return func(context.Context) error {
		if n := runtime.NumGoroutine(); n > limit {
			return errors.Errorf("%d goroutines, limit %d", n, limit)
		}
		return nil
	}
}

// Backlog fails when count reports more than limit queued items.
func Backlog(count func(ctx context.Context) (int64, error), limit int64) Check {
	return func(ctx context.Context) error {
		n, err := count(ctx)
		if err != nil {
			return errors.Wrap(err, "count backlog")
		}
		if n > limit {
			return errors.Errorf("%d queued, limit %d", n, limit)
		}
		return nil
	}
}
