// Package outbox delivers order side effects after the state change that
// caused them has committed. Events are written in the same transaction as
// the order update and handled by a Relay that retries failures.
package outbox

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

// Kind names the side effect an event triggers.
type Kind string

const (
	KindReferralPending Kind = "referral.pending"
	KindReferralEarn    Kind = "referral.earn"
	KindReferralCancel  Kind = "referral.cancel"
	KindCourierAssign   Kind = "courier.assign"
)

// Event is one pending side effect for an order.
type Event struct {
	ID          int64
	Kind        Kind
	OrderID     int64
	Attempts    int
	LastError   string
	CreatedAt   time.Time
	ProcessedAt *time.Time
}

// Repository stores events. Events are inserted by the order repository as
// part of its own transactions.
type Repository interface {
	// Claim leases up to limit unprocessed events that have been tried fewer
	// than maxAttempts times. Leased events are invisible to other claimers
	// until the lease expires.
	Claim(ctx context.Context, limit int, lease time.Duration, maxAttempts int) ([]Event, error)
	// MarkProcessed finishes an event. note is recorded as the last error
	// for events dropped without success.
	MarkProcessed(ctx context.Context, id int64, note string) error
	// MarkFailed increments the attempt counter and records the error. The
	// event becomes claimable again when its lease expires.
	MarkFailed(ctx context.Context, id int64, reason string) error
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was wrapped with Permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}
