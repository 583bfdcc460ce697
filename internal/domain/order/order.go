package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/outbox"
)

// Status is the fulfilment state of an order.
type Status string

const (
	StatusPending        Status = "pending"
	StatusConfirmed      Status = "confirmed"
	StatusProcessing     Status = "processing"
	StatusReadyForPickup Status = "ready_for_pickup"
	StatusPickedUp       Status = "picked_up"
	StatusInTransit      Status = "in_transit"
	StatusShipped        Status = "shipped"
	StatusDelivered      Status = "delivered"
	StatusCancelled      Status = "cancelled"
	StatusReturned       Status = "returned"
)

var statuses = []Status{
	StatusPending,
	StatusConfirmed,
	StatusProcessing,
	StatusReadyForPickup,
	StatusPickedUp,
	StatusInTransit,
	StatusShipped,
	StatusDelivered,
	StatusCancelled,
	StatusReturned,
}

// CourierLoadStatuses are the states in which an order occupies a courier.
var CourierLoadStatuses = []Status{StatusReadyForPickup, StatusPickedUp, StatusInTransit}

// ParseStatus validates s.
func ParseStatus(s string) (Status, error) {
	for _, st := range statuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", ErrInvalidStatus
}

// Events returns the side effects entering st triggers.
func (st Status) Events() []outbox.Kind {
	switch st {
	case StatusDelivered:
		return []outbox.Kind{outbox.KindReferralEarn}
	case StatusCancelled:
		return []outbox.Kind{outbox.KindReferralCancel}
	case StatusReadyForPickup:
		return []outbox.Kind{outbox.KindCourierAssign}
	default:
		return nil
	}
}

// Customer is the contact and shipping data captured at checkout.
type Customer struct {
	Name    string
	Phone   string
	Email   string
	Address string
	City    string
}

// Item is an immutable order line.
type Item struct {
	ProductID int64
	SellerID  int64
	Name      string
	Quantity  int
	UnitPrice decimal.Decimal
	Color     string
	Size      string
}

// Subtotal returns UnitPrice * Quantity.
func (i Item) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Order is a placed order with the pricing captured at checkout.
type Order struct {
	ID     int64
	Number string
	// UserID is zero for guest orders.
	UserID        int64
	Status        Status
	Customer      Customer
	Items         []Item
	Subtotal      decimal.Decimal
	Discount      decimal.Decimal
	TaxRate       decimal.Decimal
	Tax           decimal.Decimal
	DeliveryFee   decimal.Decimal
	Total         decimal.Decimal
	CouponCode    string
	PaymentMethod string
	CourierID     *int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// CreateOptions carries the writes that share the order's transaction.
type CreateOptions struct {
	// CouponID records one usage of the coupon when non-zero.
	CouponID int64
	Events   []outbox.Kind
}

// Repository defines persistence operations for orders.
type Repository interface {
	// Create inserts the order and its items, decrements product stock
	// (floored at zero), records coupon usage and inserts the outbox events
	// in one transaction. It sets ID, CreatedAt and UpdatedAt.
	Create(ctx context.Context, o *Order, opts CreateOptions) error
	// Get returns ErrNotFound for unknown ids.
	Get(ctx context.Context, id int64) (*Order, error)
	ListByUser(ctx context.Context, userID int64) ([]Order, error)
	// UpdateStatus writes the status and the outbox events in one
	// transaction and returns the updated order.
	UpdateStatus(ctx context.Context, id int64, status Status, events []outbox.Kind) (*Order, error)
}

// ErrNotFound is returned when an order does not exist or is not visible to
// the caller.
var ErrNotFound = errors.New("order not found")
