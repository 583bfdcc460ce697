package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/outbox"
)

const (
	// Rows locked by another claimer are skipped, so concurrent relays never
	// lease the same event.
	claimOutboxSQL = `UPDATE outbox_events SET locked_until = now() + $2::interval
		WHERE id IN (
			SELECT id FROM outbox_events
			WHERE processed_at IS NULL
				AND attempts < $3
				AND (locked_until IS NULL OR locked_until <= now())
			ORDER BY id
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, kind, order_id, attempts, last_error, created_at, processed_at`

	markOutboxProcessedSQL = `UPDATE outbox_events
		SET processed_at = now(), last_error = $2, locked_until = NULL
		WHERE id = $1`

	markOutboxFailedSQL = `UPDATE outbox_events
		SET attempts = attempts + 1, last_error = $2
		WHERE id = $1`

	outboxBacklogSQL = `SELECT count(*) FROM outbox_events
		WHERE processed_at IS NULL AND attempts < $1`
)

var _ outbox.Repository = (*OutboxRepository)(nil)

// OutboxRepository implements outbox.Repository backed by PostgreSQL.
type OutboxRepository struct {
	pool *pgxpool.Pool
}

// NewOutboxRepository returns an OutboxRepository that uses the given pool.
func NewOutboxRepository(pool *pgxpool.Pool) *OutboxRepository {
	return &OutboxRepository{pool: pool}
}

// Claim leases up to limit due events, oldest first.
func (r *OutboxRepository) Claim(ctx context.Context, limit int, lease time.Duration, maxAttempts int) ([]outbox.Event, error) {
	rows, err := r.pool.Query(ctx, claimOutboxSQL, limit, lease, maxAttempts)
	if err != nil {
		return nil, fmt.Errorf("claiming outbox events: %w", err)
	}
	events, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (outbox.Event, error) {
		var (
			e    outbox.Event
			kind string
		)
		err := row.Scan(&e.ID, &kind, &e.OrderID, &e.Attempts, &e.LastError, &e.CreatedAt, &e.ProcessedAt)
		e.Kind = outbox.Kind(kind)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("claiming outbox events: %w", err)
	}
	return events, nil
}

// MarkProcessed finishes the event.
func (r *OutboxRepository) MarkProcessed(ctx context.Context, id int64, note string) error {
	if _, err := r.pool.Exec(ctx, markOutboxProcessedSQL, id, note); err != nil {
		return fmt.Errorf("finishing outbox event %d: %w", id, err)
	}
	return nil
}

// MarkFailed counts a failed attempt. The lease is kept so the event waits
// for it to expire before the next try.
func (r *OutboxRepository) MarkFailed(ctx context.Context, id int64, reason string) error {
	if _, err := r.pool.Exec(ctx, markOutboxFailedSQL, id, reason); err != nil {
		return fmt.Errorf("recording outbox failure %d: %w", id, err)
	}
	return nil
}

// Backlog counts unprocessed events that still have attempts left.
func (r *OutboxRepository) Backlog(ctx context.Context, maxAttempts int) (int64, error) {
	var n int64
	if err := r.pool.QueryRow(ctx, outboxBacklogSQL, maxAttempts).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting outbox backlog: %w", err)
	}
	return n, nil
}
