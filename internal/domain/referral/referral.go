// Package referral maintains the commission ledger of customers who referred
// a buyer.
package referral

//go:generate go run go.uber.org/mock/mockgen -source=referral.go -destination=mock_referral_test.go -package=referral

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/order"
)

// Status is the state of an earning.
type Status string

const (
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusCancelled Status = "cancelled"
)

var (
	ErrNotFound = errors.New("referral earning not found")
	// ErrDuplicate is returned when the order already has an earning.
	ErrDuplicate = errors.New("referral earning already exists")
)

// Earning is the commission owed to a referrer for one order.
type Earning struct {
	ID      int64
	OrderID int64
	// UserID is the referrer being paid.
	UserID    int64
	Amount    decimal.Decimal
	Status    Status
	CreatedAt time.Time
}

// Item is an order line as seen by the commission calculation.
type Item struct {
	ProductID int64
	Quantity  int
	UnitPrice decimal.Decimal
	// Commission is the product's own percentage, nil when the product uses
	// the store default.
	Commission *decimal.Decimal
}

// OrderContext is what the ledger needs to know about an order.
type OrderContext struct {
	OrderID int64
	Status  order.Status
	BuyerID int64
	// ReferrerID is the buyer's referred_by, zero when there is none.
	ReferrerID int64
	Items      []Item
}

// Repository defines persistence operations for the earnings ledger.
type Repository interface {
	// OrderContext returns order.ErrNotFound for unknown orders.
	OrderContext(ctx context.Context, orderID int64) (*OrderContext, error)
	// FindByOrderID returns ErrNotFound when the order has no earning.
	FindByOrderID(ctx context.Context, orderID int64) (*Earning, error)
	// CreatePending inserts a pending earning. ErrDuplicate is returned when
	// the order already has one.
	CreatePending(ctx context.Context, e *Earning) error
	// CreatePaid inserts a paid earning and credits the referrer balance in
	// one transaction. ErrDuplicate is returned when the order already has
	// an earning.
	CreatePaid(ctx context.Context, e *Earning) error
	// MarkPaid moves a pending earning to paid and credits the referrer
	// balance in one transaction. It reports whether the row changed.
	MarkPaid(ctx context.Context, id int64) (bool, error)
	// MarkCancelled cancels the earning, debiting the referrer balance when
	// it was paid. It reports whether the row changed.
	MarkCancelled(ctx context.Context, id int64) (bool, error)
}

// CommissionRater returns the store default commission percentage.
type CommissionRater interface {
	CommissionRate(ctx context.Context) (decimal.Decimal, error)
}
