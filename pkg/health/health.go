// Package health runs background probes and serves their results for
// orchestrator liveness and readiness endpoints.
package health

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/jx"
	"golang.org/x/sync/errgroup"
)

// Probe selects which endpoint a check contributes to.
type Probe uint8

const (
	// Liveness checks restart the process when they fail.
	Liveness Probe = iota + 1
	// Readiness checks take the instance out of load balancing.
	Readiness
)

func (p Probe) String() string {
	switch p {
	case Liveness:
		return "liveness"
	case Readiness:
		return "readiness"
	default:
		return "unknown"
	}
}

// Check reports a problem by returning an error.
type Check func(ctx context.Context) error

// Option tunes a registered check.
type Option func(*check)

// Timeout bounds a single run of the check. Default is one second.
func Timeout(d time.Duration) Option {
	return func(c *check) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// Tolerate lets a check fail n times in a row before it is reported
// unhealthy. Default is 3. One success clears the streak.
func Tolerate(n int) Option {
	return func(c *check) {
		if n > 0 {
			c.tolerate = n
		}
	}
}

type check struct {
	name     string
	probe    Probe
	fn       Check
	timeout  time.Duration
	tolerate int

	mu        sync.Mutex
	ran       bool
	streak    int
	lastErr   error
	checkedAt time.Time
	took      time.Duration
}

type result struct {
	name      string
	healthy   bool
	pending   bool
	err       string
	checkedAt time.Time
	took      time.Duration
}

func (c *check) run(ctx context.Context, now func() time.Time) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := now()
	err := c.fn(ctx)
	took := now().Sub(start)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.ran = true
	c.checkedAt = start
	c.took = took
	if err != nil {
		c.streak++
		c.lastErr = err
		return
	}
	c.streak = 0
	c.lastErr = nil
}

// snapshot reads the check state. A check that has not run yet is healthy
// for liveness and pending for readiness.
func (c *check) snapshot() result {
	c.mu.Lock()
	defer c.mu.Unlock()

	r := result{
		name:      c.name,
		healthy:   c.streak < c.tolerate,
		checkedAt: c.checkedAt,
		took:      c.took,
	}
	if !c.ran && c.probe == Readiness {
		r.healthy = false
		r.pending = true
	}
	if c.lastErr != nil {
		r.err = c.lastErr.Error()
	}
	return r
}

// Registry holds the registered checks and the manual readiness switch.
type Registry struct {
	mu     sync.RWMutex
	checks []*check
	ready  atomic.Bool
	now    func() time.Time
}

// New returns an empty Registry. The instance is not ready until SetReady
// is called.
func New() *Registry {
	return &Registry{now: time.Now}
}

// Register adds a named check to probe p.
func (r *Registry) Register(p Probe, name string, fn Check, opts ...Option) {
	c := &check{
		name:     name,
		probe:    p,
		fn:       fn,
		timeout:  time.Second,
		tolerate: 3,
	}
	for _, o := range opts {
		o(c)
	}
	r.mu.Lock()
	r.checks = append(r.checks, c)
	r.mu.Unlock()
}

// SetReady flips the manual readiness switch. Shutdown clears it so the
// load balancer drains the instance before the server stops.
func (r *Registry) SetReady(ready bool) {
	r.ready.Store(ready)
}

// Ready reports whether the switch is on and every readiness check passes.
func (r *Registry) Ready() bool {
	if !r.ready.Load() {
		return false
	}
	for _, res := range r.results(Readiness) {
		if !res.healthy {
			return false
		}
	}
	return true
}

// RunOnce runs every check concurrently and waits for all of them.
func (r *Registry) RunOnce(ctx context.Context) {
	r.mu.RLock()
	checks := append([]*check(nil), r.checks...)
	r.mu.RUnlock()

	var g errgroup.Group
	for _, c := range checks {
		g.Go(func() error {
			c.run(ctx, r.now)
			return nil
		})
	}
	_ = g.Wait()
}

// Run runs the checks immediately and then on every tick of interval
// until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		r.RunOnce(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (r *Registry) results(p Probe) []result {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []result
	for _, c := range r.checks {
		if c.probe == p {
			out = append(out, c.snapshot())
		}
	}
	return out
}

// Handler serves the state of probe p as JSON. It answers 200 when
// every check of the probe passes and 503 otherwise.
func (r *Registry) Handler(p Probe) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		results := r.results(p)

		status := "ok"
		for _, res := range results {
			if !res.healthy {
				status = "failing"
				break
			}
		}
		if p == Readiness && !r.ready.Load() {
			status = "draining"
		}

		code := http.StatusOK
		if status != "ok" {
			code = http.StatusServiceUnavailable
		}
		writeReport(w, code, p, status, results)
	})
}

func writeReport(w http.ResponseWriter, code int, p Probe, status string, results []result) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	e.Obj(func(e *jx.Encoder) {
		e.Field("probe", func(e *jx.Encoder) { e.Str(p.String()) })
		e.Field("status", func(e *jx.Encoder) { e.Str(status) })
		e.Field("checks", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, res := range results {
					encodeResult(e, res)
				}
			})
		})
	})

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	_, _ = w.Write(e.Bytes())
}

func encodeResult(e *jx.Encoder, res result) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("name", func(e *jx.Encoder) { e.Str(res.name) })
		e.Field("healthy", func(e *jx.Encoder) { e.Bool(res.healthy) })
		if res.pending {
			e.Field("pending", func(e *jx.Encoder) { e.Bool(true) })
		}
		if res.err != "" {
			e.Field("error", func(e *jx.Encoder) { e.Str(res.err) })
		}
		if !res.checkedAt.IsZero() {
			e.Field("checked_at", func(e *jx.Encoder) { e.Str(res.checkedAt.UTC().Format(time.RFC3339)) })
			e.Field("took_ms", func(e *jx.Encoder) { e.Int64(res.took.Milliseconds()) })
		}
	})
}
