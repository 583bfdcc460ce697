// Package courier assigns delivery couriers to orders that are ready for
// pickup.
package courier

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/outbox"
)

var (
	// ErrNotFound is returned for unknown courier ids.
	ErrNotFound = errors.New("courier not found")
	// ErrInactive is returned when assigning a courier that is switched off.
	ErrInactive = errors.New("courier is not active")
	// ErrNoCity is returned when none of the order's sellers has a city.
	ErrNoCity = errors.New("seller city unknown")
	// ErrNoCourier is returned when no active courier works in the city.
	ErrNoCourier = errors.New("no active courier in city")
)

// Courier is a delivery courier. Load is the number of orders currently
// assigned to it in a pickup or transit state.
type Courier struct {
	ID     int64
	Name   string
	City   string
	Active bool
	Load   int
}

// Repository defines persistence operations for couriers.
type Repository interface {
	Get(ctx context.Context, id int64) (*Courier, error)
	// AssignedCourier returns the order's courier id or zero. It returns
	// order.ErrNotFound for unknown orders.
	AssignedCourier(ctx context.Context, orderID int64) (int64, error)
	// SellerCity returns the city of the first seller of the order's items
	// that has one, or "".
	SellerCity(ctx context.Context, orderID int64) (string, error)
	// ActiveInCity lists active couriers whose trimmed city matches
	// case-insensitively, with Load filled in.
	ActiveInCity(ctx context.Context, city string) ([]Courier, error)
	Assign(ctx context.Context, orderID, courierID int64) error
}

// PickLeastLoaded returns the courier with the smallest Load, breaking ties
// by the lowest ID.
func PickLeastLoaded(cs []Courier) (Courier, bool) {
	if len(cs) == 0 {
		return Courier{}, false
	}
	best := cs[0]
	for _, c := range cs[1:] {
		if c.Load < best.Load || (c.Load == best.Load && c.ID < best.ID) {
			best = c
		}
	}
	return best, true
}

// Service picks and assigns couriers.
type Service struct {
	repo Repository
}

// NewService creates a courier Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// AssignForOrder gives the order a courier from its seller's city. An order
// that already has a courier keeps it. The order status is not changed.
func (s *Service) AssignForOrder(ctx context.Context, orderID int64) (*Courier, error) {
	existing, err := s.repo.AssignedCourier(ctx, orderID)
	if err != nil {
		return nil, errors.Wrap(err, "get assigned courier")
	}
	if existing != 0 {
		return s.repo.Get(ctx, existing)
	}

	city, err := s.repo.SellerCity(ctx, orderID)
	if err != nil {
		return nil, errors.Wrap(err, "get seller city")
	}
	city = strings.TrimSpace(city)
	if city == "" {
		return nil, ErrNoCity
	}

	candidates, err := s.repo.ActiveInCity(ctx, city)
	if err != nil {
		return nil, errors.Wrap(err, "list couriers")
	}
	c, ok := PickLeastLoaded(candidates)
	if !ok {
		return nil, errors.Wrapf(ErrNoCourier, "city %q", city)
	}

	if err := s.repo.Assign(ctx, orderID, c.ID); err != nil {
		return nil, errors.Wrap(err, "assign courier")
	}
	zctx.From(ctx).Info("Courier assigned",
		zap.Int64("order_id", orderID),
		zap.Int64("courier_id", c.ID),
		zap.String("city", city),
		zap.Int("load", c.Load),
	)
	return &c, nil
}

// Assign sets the courier of an order by hand, replacing any existing one.
func (s *Service) Assign(ctx context.Context, orderID, courierID int64) (*Courier, error) {
	c, err := s.repo.Get(ctx, courierID)
	if err != nil {
		return nil, err
	}
	if !c.Active {
		return nil, ErrInactive
	}
	if _, err := s.repo.AssignedCourier(ctx, orderID); err != nil {
		return nil, err
	}
	if err := s.repo.Assign(ctx, orderID, courierID); err != nil {
		return nil, errors.Wrap(err, "assign courier")
	}
	return c, nil
}

// Handler returns the outbox handler for courier.assign events.
func (s *Service) Handler() outbox.Handler {
	return func(ctx context.Context, e outbox.Event) error {
		_, err := s.AssignForOrder(ctx, e.OrderID)
		if errors.Is(err, ErrNoCity) || errors.Is(err, ErrNoCourier) || errors.Is(err, order.ErrNotFound) {
			return outbox.Permanent(err)
		}
		return err
	}
}
