package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type report struct {
	Probe  string `json:"probe"`
	Status string `json:"status"`
	Checks []struct {
		Name    string `json:"name"`
		Healthy bool   `json:"healthy"`
		Pending bool   `json:"pending"`
		Error   string `json:"error"`
	} `json:"checks"`
}

func get(t *testing.T, r *Registry, p Probe) (int, report) {
	t.Helper()
	w := httptest.NewRecorder()
	r.Handler(p).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var rep report
	require.NoError(t, json.NewDecoder(w.Body).Decode(&rep))
	return w.Code, rep
}

func ok(context.Context) error { return nil }

func TestLiveness_PassesBeforeFirstRun(t *testing.T) {
	r := New()
	r.Register(Liveness, "goroutines", Goroutines(1<<20))

	code, rep := get(t, r, Liveness)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "liveness", rep.Probe)
	assert.Equal(t, "ok", rep.Status)
	require.Len(t, rep.Checks, 1)
	assert.True(t, rep.Checks[0].Healthy)
}

func TestLiveness_ToleratesFailures(t *testing.T) {
	r := New()
	r.Register(Liveness, "flaky", func(context.Context) error {
		return errors.New("boom")
	}, Tolerate(2))

	r.RunOnce(context.Background())
	code, _ := get(t, r, Liveness)
	assert.Equal(t, http.StatusOK, code, "one failure is tolerated")

	r.RunOnce(context.Background())
	code, rep := get(t, r, Liveness)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "failing", rep.Status)
	assert.Equal(t, "boom", rep.Checks[0].Error)
}

func TestLiveness_SuccessClearsStreak(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)

	r := New()
	r.Register(Liveness, "db", func(context.Context) error {
		if fail.Load() {
			return errors.New("down")
		}
		return nil
	}, Tolerate(1))

	r.RunOnce(context.Background())
	code, _ := get(t, r, Liveness)
	require.Equal(t, http.StatusServiceUnavailable, code)

	fail.Store(false)
	r.RunOnce(context.Background())
	code, rep := get(t, r, Liveness)
	assert.Equal(t, http.StatusOK, code)
	assert.Empty(t, rep.Checks[0].Error)
}

func TestReadiness_PendingAndDraining(t *testing.T) {
	r := New()
	r.Register(Readiness, "postgres", ok)

	code, rep := get(t, r, Readiness)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.True(t, rep.Checks[0].Pending)
	assert.False(t, r.Ready())

	r.RunOnce(context.Background())
	code, rep = get(t, r, Readiness)
	assert.Equal(t, http.StatusServiceUnavailable, code, "switch still off")
	assert.Equal(t, "draining", rep.Status)

	r.SetReady(true)
	code, rep = get(t, r, Readiness)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", rep.Status)
	assert.True(t, r.Ready())

	r.SetReady(false)
	code, _ = get(t, r, Readiness)
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestProbesAreSeparate(t *testing.T) {
	r := New()
	r.Register(Liveness, "live", ok)
	r.Register(Readiness, "broken", func(context.Context) error {
		return errors.New("nope")
	}, Tolerate(1))
	r.SetReady(true)
	r.RunOnce(context.Background())

	code, rep := get(t, r, Liveness)
	assert.Equal(t, http.StatusOK, code)
	require.Len(t, rep.Checks, 1)
	assert.Equal(t, "live", rep.Checks[0].Name)

	code, _ = get(t, r, Readiness)
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestTimeout(t *testing.T) {
	r := New()
	r.Register(Liveness, "slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, Timeout(10*time.Millisecond), Tolerate(1))

	r.RunOnce(context.Background())
	_, rep := get(t, r, Liveness)
	assert.False(t, rep.Checks[0].Healthy)
	assert.Contains(t, rep.Checks[0].Error, "deadline")
}

func TestRun_StopsOnCancel(t *testing.T) {
	var runs atomic.Int32
	r := New()
	r.Register(Liveness, "count", func(context.Context) error {
		runs.Add(1)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx, 5*time.Millisecond) }()

	require.Eventually(t, func() bool { return runs.Load() >= 2 }, time.Second, time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func TestCheckers(t *testing.T) {
	ctx := context.Background()

	assert.NoError(t, Ping(pinger{})(ctx))
	assert.ErrorContains(t, Ping(pinger{err: errors.New("refused")})(ctx), "refused")

	assert.NoError(t, Goroutines(1<<20)(ctx))
	assert.Error(t, Goroutines(0)(ctx))

	count := func(n int64, err error) func(context.Context) (int64, error) {
		return func(context.Context) (int64, error) { return n, err }
	}
	assert.NoError(t, Backlog(count(5, nil), 5)(ctx))
	assert.ErrorContains(t, Backlog(count(6, nil), 5)(ctx), "6 queued")
	assert.Error(t, Backlog(count(0, errors.New("db")), 5)(ctx))
}
