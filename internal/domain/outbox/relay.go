package outbox

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// Handler performs the side effect of one event. Handlers must be
// idempotent: an event may be delivered more than once.
type Handler func(ctx context.Context, e Event) error

// Config controls relay polling and retries.
type Config struct {
	PollInterval time.Duration
	BatchSize    int
	MaxAttempts  int
	// Lease is how long a claimed event stays hidden from other relays and
	// also the delay before a failed event is retried.
	Lease time.Duration
}

func (c *Config) setDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 50
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 10
	}
	if c.Lease <= 0 {
		c.Lease = 30 * time.Second
	}
}

// Relay polls the outbox and dispatches events to handlers by kind. Handler
// failures are logged and retried; they never propagate to the code that
// wrote the event.
type Relay struct {
	repo   Repository
	cfg    Config
	lg     *zap.Logger
	events metric.Int64Counter
	kick   chan struct{}

	mu       sync.RWMutex
	handlers map[Kind]Handler
}

// NewRelay creates a Relay.
func NewRelay(repo Repository, cfg Config, lg *zap.Logger, mp metric.MeterProvider) (*Relay, error) {
	cfg.setDefaults()
	events, err := mp.Meter("github.com/xenking/storefront/internal/domain/outbox").
		Int64Counter("storefront.outbox.events",
			metric.WithDescription("Outbox events handled by kind and result"),
		)
	if err != nil {
		return nil, errors.Wrap(err, "create outbox events counter")
	}
	return &Relay{
		repo:     repo,
		cfg:      cfg,
		lg:       lg,
		events:   events,
		kick:     make(chan struct{}, 1),
		handlers: make(map[Kind]Handler),
	}, nil
}

// Handle registers h for kind, replacing any previous handler.
func (r *Relay) Handle(kind Kind, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[kind] = h
}

// Kick requests an immediate pass. It never blocks.
func (r *Relay) Kick() {
	select {
	case r.kick <- struct{}{}:
	default:
	}
}

// Run drains the outbox on every poll interval or kick until ctx is done.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	r.lg.Info("Outbox relay started",
		zap.Duration("poll_interval", r.cfg.PollInterval),
		zap.Int("batch_size", r.cfg.BatchSize),
	)
	for {
		if _, err := r.Drain(ctx); err != nil && ctx.Err() == nil {
			r.lg.Error("Outbox drain failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			r.lg.Info("Outbox relay stopped")
			return nil
		case <-ticker.C:
		case <-r.kick:
		}
	}
}

// Drain handles claimable events until none are left and returns how many
// were handled successfully.
func (r *Relay) Drain(ctx context.Context) (int, error) {
	done := 0
	for {
		batch, err := r.repo.Claim(ctx, r.cfg.BatchSize, r.cfg.Lease, r.cfg.MaxAttempts)
		if err != nil {
			return done, errors.Wrap(err, "claim outbox events")
		}
		if len(batch) == 0 {
			return done, nil
		}
		for _, e := range batch {
			if r.process(ctx, e) {
				done++
			}
		}
		if len(batch) < r.cfg.BatchSize {
			return done, nil
		}
	}
}

func (r *Relay) process(ctx context.Context, e Event) bool {
	lg := r.lg.With(
		zap.Int64("event_id", e.ID),
		zap.String("kind", string(e.Kind)),
		zap.Int64("order_id", e.OrderID),
	)

	r.mu.RLock()
	h, ok := r.handlers[e.Kind]
	r.mu.RUnlock()
	if !ok {
		lg.Warn("No handler for outbox event, dropping")
		r.finish(ctx, lg, e, "no handler")
		r.record(ctx, e.Kind, "dropped")
		return false
	}

	err := h(ctx, e)
	switch {
	case err == nil:
		r.finish(ctx, lg, e, "")
		r.record(ctx, e.Kind, "ok")
		return true
	case IsPermanent(err):
		lg.Warn("Outbox event failed permanently", zap.Error(err))
		r.finish(ctx, lg, e, err.Error())
		r.record(ctx, e.Kind, "permanent")
		return false
	default:
		if e.Attempts+1 >= r.cfg.MaxAttempts {
			lg.Error("Outbox event failed, giving up", zap.Int("attempts", e.Attempts+1), zap.Error(err))
		} else {
			lg.Warn("Outbox event failed, will retry", zap.Int("attempts", e.Attempts+1), zap.Error(err))
		}
		if markErr := r.repo.MarkFailed(ctx, e.ID, err.Error()); markErr != nil {
			lg.Error("Mark outbox event failed", zap.Error(markErr))
		}
		r.record(ctx, e.Kind, "retry")
		return false
	}
}

func (r *Relay) finish(ctx context.Context, lg *zap.Logger, e Event, note string) {
	if err := r.repo.MarkProcessed(ctx, e.ID, note); err != nil {
		lg.Error("Mark outbox event processed", zap.Error(err))
	}
}

func (r *Relay) record(ctx context.Context, kind Kind, result string) {
	r.events.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", string(kind)),
		attribute.String("result", result),
	))
}
