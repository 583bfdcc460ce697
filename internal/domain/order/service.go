package order

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/outbox"
	"github.com/xenking/storefront/internal/domain/product"
)

// Sentinel errors for order validation.
var (
	ErrInvalidStatus = errors.New("invalid order status")
	ErrEmptyCart     = cart.ErrEmptyCart
)

// DefaultPaymentMethod is used when checkout does not name one.
const DefaultPaymentMethod = "cod"

// FieldError reports a missing checkout field.
type FieldError struct {
	Field string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s is required", e.Field)
}

// ProductNotFoundError indicates a cart line whose product is gone.
type ProductNotFoundError struct {
	ProductID int64
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %d not found", e.ProductID)
}

// Is matches product.ErrNotFound.
func (e *ProductNotFoundError) Is(target error) bool {
	return target == product.ErrNotFound
}

// IsValidationError reports whether err was caused by bad input.
func IsValidationError(err error) bool {
	var fe *FieldError
	return errors.As(err, &fe) || errors.Is(err, ErrInvalidStatus)
}

// Carts is the slice of the cart service checkout needs.
type Carts interface {
	Summary(ctx context.Context, scope cart.Scope) (*cart.Summary, error)
	Clear(ctx context.Context, scope cart.Scope) (*cart.Summary, error)
}

// FeeQuoter quotes the delivery fee for a city.
type FeeQuoter interface {
	FeeFor(ctx context.Context, city string) (decimal.Decimal, error)
}

// Kicker wakes the outbox relay after events were written.
type Kicker interface {
	Kick()
}

// CheckoutRequest holds the input for placing an order.
type CheckoutRequest struct {
	Customer      Customer
	PaymentMethod string
}

// Service encapsulates order placement and status changes.
type Service struct {
	carts    Carts
	products product.Repository
	delivery FeeQuoter
	orders   Repository
	relay    Kicker
}

// NewService creates an order Service with the required domain dependencies.
func NewService(
	carts Carts,
	products product.Repository,
	delivery FeeQuoter,
	orders Repository,
	relay Kicker,
) *Service {
	return &Service{
		carts:    carts,
		products: products,
		delivery: delivery,
		orders:   orders,
		relay:    relay,
	}
}

// Checkout snapshots the priced cart into an order. Stock is re-checked but
// not locked. The cart and the applied coupon are cleared after the order is
// stored; a failure to clear is logged and does not undo the order.
func (s *Service) Checkout(ctx context.Context, scope cart.Scope, req CheckoutRequest) (*Order, error) {
	customer, err := validateCustomer(req.Customer)
	if err != nil {
		return nil, err
	}

	sum, err := s.carts.Summary(ctx, scope)
	if err != nil {
		return nil, errors.Wrap(err, "price cart")
	}
	if sum.Empty() {
		return nil, ErrEmptyCart
	}

	items, err := s.items(ctx, sum.Lines)
	if err != nil {
		return nil, err
	}

	fee, err := s.delivery.FeeFor(ctx, customer.City)
	if err != nil {
		return nil, errors.Wrap(err, "quote delivery fee")
	}

	payment := strings.TrimSpace(req.PaymentMethod)
	if payment == "" {
		payment = DefaultPaymentMethod
	}

	o := &Order{
		Number:        uuid.New().String(),
		UserID:        scope.UserID,
		Status:        StatusPending,
		Customer:      customer,
		Items:         items,
		Subtotal:      sum.Subtotal,
		Discount:      sum.Discount,
		TaxRate:       sum.TaxRatePercent,
		Tax:           sum.Tax,
		DeliveryFee:   fee,
		Total:         sum.Total.Add(fee),
		CouponCode:    sum.Coupon,
		PaymentMethod: payment,
	}

	opts := CreateOptions{CouponID: sum.CouponID}
	if scope.UserID > 0 {
		opts.Events = append(opts.Events, outbox.KindReferralPending)
	}
	if err := s.orders.Create(ctx, o, opts); err != nil {
		return nil, errors.Wrap(err, "create order")
	}

	lg := zctx.From(ctx).With(zap.Int64("order_id", o.ID), zap.String("order_number", o.Number))
	lg.Info("Order placed",
		zap.Int("items", len(o.Items)),
		zap.String("total", o.Total.StringFixed(2)),
		zap.String("coupon", o.CouponCode),
	)

	if _, err := s.carts.Clear(ctx, scope); err != nil {
		lg.Error("Clear cart after checkout", zap.Error(err))
	}
	if len(opts.Events) > 0 && s.relay != nil {
		s.relay.Kick()
	}
	return o, nil
}

// items converts cart lines into order items, re-checking that each product
// still exists and has enough stock.
func (s *Service) items(ctx context.Context, lines []cart.Line) ([]Item, error) {
	ids := make([]int64, len(lines))
	for i, l := range lines {
		ids[i] = l.ProductID
	}

	// Batch fetch all products in a single query.
	fetched, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	byID := make(map[int64]product.Product, len(fetched))
	for _, p := range fetched {
		byID[p.ID] = p
	}

	items := make([]Item, len(lines))
	for i, l := range lines {
		p, ok := byID[l.ProductID]
		if !ok || !p.Active {
			return nil, &ProductNotFoundError{ProductID: l.ProductID}
		}
		if l.Quantity > p.StockQuantity {
			return nil, &cart.StockError{ProductID: p.ID, Available: p.StockQuantity}
		}
		items[i] = Item{
			ProductID: p.ID,
			SellerID:  p.SellerID,
			Name:      l.Name,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
			Color:     l.Color,
			Size:      l.Size,
		}
	}
	return items, nil
}

// UpdateStatus moves an order to status. Setting the current status again
// is a no-op. Side effects are queued in the outbox together with the status
// change and never fail this call.
func (s *Service) UpdateStatus(ctx context.Context, id int64, status string) (*Order, error) {
	st, err := ParseStatus(strings.TrimSpace(status))
	if err != nil {
		return nil, err
	}

	current, err := s.orders.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status == st {
		return current, nil
	}

	events := st.Events()
	updated, err := s.orders.UpdateStatus(ctx, id, st, events)
	if err != nil {
		return nil, errors.Wrap(err, "update order status")
	}

	zctx.From(ctx).Info("Order status changed",
		zap.Int64("order_id", id),
		zap.String("from", string(current.Status)),
		zap.String("to", string(st)),
	)
	if len(events) > 0 && s.relay != nil {
		s.relay.Kick()
	}
	return updated, nil
}

// Get returns an order by id.
func (s *Service) Get(ctx context.Context, id int64) (*Order, error) {
	return s.orders.Get(ctx, id)
}

// GetForUser returns an order owned by userID. Orders of other customers
// are reported as ErrNotFound.
func (s *Service) GetForUser(ctx context.Context, userID, id int64) (*Order, error) {
	o, err := s.orders.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.UserID == 0 || o.UserID != userID {
		return nil, ErrNotFound
	}
	return o, nil
}

// ListForUser returns the customer's orders, newest first.
func (s *Service) ListForUser(ctx context.Context, userID int64) ([]Order, error) {
	return s.orders.ListByUser(ctx, userID)
}

func validateCustomer(c Customer) (Customer, error) {
	c = Customer{
		Name:    strings.TrimSpace(c.Name),
		Phone:   strings.TrimSpace(c.Phone),
		Email:   strings.TrimSpace(c.Email),
		Address: strings.TrimSpace(c.Address),
		City:    strings.TrimSpace(c.City),
	}
	for _, f := range []struct{ name, value string }{
		{"name", c.Name},
		{"phone", c.Phone},
		{"address", c.Address},
		{"city", c.City},
	} {
		if f.value == "" {
			return Customer{}, &FieldError{Field: f.name}
		}
	}
	return c, nil
}
