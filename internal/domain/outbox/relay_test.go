package outbox

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"
)

type memOutbox struct {
	mu     sync.Mutex
	now    time.Time
	events []Event
	leased map[int64]time.Time
}

func newMemOutbox(events ...Event) *memOutbox {
	return &memOutbox{
		now:    time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		events: events,
		leased: make(map[int64]time.Time),
	}
}

func (m *memOutbox) Claim(_ context.Context, limit int, lease time.Duration, maxAttempts int) ([]Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Event
	for _, e := range m.events {
		if len(out) == limit {
			break
		}
		if e.ProcessedAt != nil || e.Attempts >= maxAttempts {
			continue
		}
		if until, ok := m.leased[e.ID]; ok && until.After(m.now) {
			continue
		}
		m.leased[e.ID] = m.now.Add(lease)
		out = append(out, e)
	}
	return out, nil
}

func (m *memOutbox) find(id int64) *Event {
	for i := range m.events {
		if m.events[i].ID == id {
			return &m.events[i]
		}
	}
	return nil
}

func (m *memOutbox) MarkProcessed(_ context.Context, id int64, note string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.find(id)
	now := m.now
	e.ProcessedAt = &now
	e.LastError = note
	return nil
}

func (m *memOutbox) MarkFailed(_ context.Context, id int64, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.find(id)
	e.Attempts++
	e.LastError = reason
	return nil
}

func (m *memOutbox) advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

func newTestRelay(t *testing.T, repo Repository, cfg Config) *Relay {
	t.Helper()
	r, err := NewRelay(repo, cfg, zap.NewNop(), noop.NewMeterProvider())
	require.NoError(t, err)
	return r
}

func TestRelay_Drain(t *testing.T) {
	ctx := context.Background()
	repo := newMemOutbox(
		Event{ID: 1, Kind: KindReferralEarn, OrderID: 10},
		Event{ID: 2, Kind: KindCourierAssign, OrderID: 11},
		Event{ID: 3, Kind: KindReferralCancel, OrderID: 12},
		Event{ID: 4, Kind: "unknown", OrderID: 13},
	)
	r := newTestRelay(t, repo, Config{BatchSize: 2, MaxAttempts: 3, Lease: time.Minute})

	var handled []int64
	r.Handle(KindReferralEarn, func(_ context.Context, e Event) error {
		handled = append(handled, e.OrderID)
		return nil
	})
	r.Handle(KindCourierAssign, func(_ context.Context, e Event) error {
		return Permanent(errors.New("no courier in city"))
	})
	r.Handle(KindReferralCancel, func(_ context.Context, e Event) error {
		return errors.New("connection reset")
	})

	n, err := r.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []int64{10}, handled)

	assert.NotNil(t, repo.events[0].ProcessedAt)
	assert.Empty(t, repo.events[0].LastError)

	assert.NotNil(t, repo.events[1].ProcessedAt, "permanent failures are not retried")
	assert.Equal(t, "no courier in city", repo.events[1].LastError)

	assert.Nil(t, repo.events[2].ProcessedAt)
	assert.Equal(t, 1, repo.events[2].Attempts)
	assert.Equal(t, "connection reset", repo.events[2].LastError)

	assert.NotNil(t, repo.events[3].ProcessedAt)
	assert.Equal(t, "no handler", repo.events[3].LastError)
}

func TestRelay_RetriesAfterLeaseUntilMaxAttempts(t *testing.T) {
	ctx := context.Background()
	repo := newMemOutbox(Event{ID: 1, Kind: KindReferralEarn, OrderID: 10})
	r := newTestRelay(t, repo, Config{BatchSize: 10, MaxAttempts: 3, Lease: time.Minute})

	calls := 0
	r.Handle(KindReferralEarn, func(context.Context, Event) error {
		calls++
		return errors.New("temporary")
	})

	_, err := r.Drain(ctx)
	require.NoError(t, err)
	_, err = r.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, calls, "leased event is not claimed again before the lease expires")

	for i := 0; i < 5; i++ {
		repo.advance(2 * time.Minute)
		_, err = r.Drain(ctx)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, calls)
	assert.Equal(t, 3, repo.events[0].Attempts)
	assert.Nil(t, repo.events[0].ProcessedAt)
}

func TestRelay_RunStopsOnCancel(t *testing.T) {
	repo := newMemOutbox(Event{ID: 1, Kind: KindReferralEarn, OrderID: 10})
	r := newTestRelay(t, repo, Config{PollInterval: time.Hour})

	handled := make(chan int64, 1)
	r.Handle(KindReferralEarn, func(_ context.Context, e Event) error {
		handled <- e.OrderID
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	select {
	case id := <-handled:
		assert.Equal(t, int64(10), id)
	case <-time.After(5 * time.Second):
		t.Fatal("event was not handled")
	}

	r.Kick()
	r.Kick()
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("relay did not stop")
	}
}

func TestPermanent(t *testing.T) {
	assert.Nil(t, Permanent(nil))

	base := errors.New("boom")
	err := errors.Wrap(Permanent(base), "assign courier")
	assert.True(t, IsPermanent(err))
	assert.ErrorIs(t, err, base)
	assert.False(t, IsPermanent(base))
}
