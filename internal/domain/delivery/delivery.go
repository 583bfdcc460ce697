// Package delivery quotes delivery fees by location.
package delivery

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	ErrLocationRequired = errors.New("location is required")
	ErrNegativeCharge   = errors.New("delivery charge must not be negative")
	ErrDuplicate        = errors.New("a charge for this location already exists")
	ErrNotFound         = errors.New("delivery charge not found")
)

// Charge is the delivery fee for one location.
type Charge struct {
	ID       int64
	Location string
	Amount   decimal.Decimal
}

// Repository stores per-location charges. Location matching is
// case-insensitive and ignores surrounding spaces.
type Repository interface {
	List(ctx context.Context) ([]Charge, error)
	// FindByLocation returns ErrNotFound when no charge matches.
	FindByLocation(ctx context.Context, location string) (*Charge, error)
	// Create returns ErrDuplicate when the location already has a charge.
	Create(ctx context.Context, c *Charge) error
	// Delete returns ErrNotFound for unknown ids.
	Delete(ctx context.Context, id int64) error
	SetAllAmounts(ctx context.Context, amount decimal.Decimal) (int64, error)
}

// Settings is the slice of store settings the fee calculation reads.
type Settings interface {
	FreeDelivery(ctx context.Context) (bool, error)
	SetFreeDelivery(ctx context.Context, enabled bool) error
	DefaultDeliveryFee(ctx context.Context) (decimal.Decimal, error)
	SetDefaultDeliveryFee(ctx context.Context, fee decimal.Decimal) error
}

// Service quotes and manages delivery charges.
type Service struct {
	charges  Repository
	settings Settings
}

// NewService creates a delivery Service.
func NewService(charges Repository, settings Settings) *Service {
	return &Service{charges: charges, settings: settings}
}

// FeeFor returns the fee for delivering to city: zero when free delivery is
// on, the location's charge when one exists, and the default fee otherwise.
func (s *Service) FeeFor(ctx context.Context, city string) (decimal.Decimal, error) {
	free, err := s.settings.FreeDelivery(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	if free {
		return decimal.Zero, nil
	}

	if city = NormalizeLocation(city); city != "" {
		c, err := s.charges.FindByLocation(ctx, city)
		switch {
		case err == nil:
			return c.Amount, nil
		case !errors.Is(err, ErrNotFound):
			return decimal.Zero, errors.Wrap(err, "find delivery charge")
		}
	}
	return s.settings.DefaultDeliveryFee(ctx)
}

// List returns all configured charges.
func (s *Service) List(ctx context.Context) ([]Charge, error) {
	return s.charges.List(ctx)
}

// QuickAdd creates a charge for a new location.
func (s *Service) QuickAdd(ctx context.Context, location string, amount decimal.Decimal) (*Charge, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return nil, ErrLocationRequired
	}
	if amount.IsNegative() {
		return nil, ErrNegativeCharge
	}
	c := &Charge{Location: location, Amount: amount}
	if err := s.charges.Create(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Delete removes a charge.
func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.charges.Delete(ctx, id)
}

// SetFreeDelivery toggles free delivery for all locations.
func (s *Service) SetFreeDelivery(ctx context.Context, enabled bool) error {
	return s.settings.SetFreeDelivery(ctx, enabled)
}

// SetDefaultFee stores the fallback fee and applies it to every existing
// location charge. It returns the number of charges updated.
func (s *Service) SetDefaultFee(ctx context.Context, fee decimal.Decimal) (int64, error) {
	if fee.IsNegative() {
		return 0, ErrNegativeCharge
	}
	if err := s.settings.SetDefaultDeliveryFee(ctx, fee); err != nil {
		return 0, err
	}
	n, err := s.charges.SetAllAmounts(ctx, fee)
	if err != nil {
		return 0, errors.Wrap(err, "update delivery charges")
	}
	return n, nil
}

// NormalizeLocation lower-cases and trims a location for matching.
func NormalizeLocation(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// IsValidationError reports whether err is caused by bad input.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrLocationRequired) ||
		errors.Is(err, ErrNegativeCharge) ||
		errors.Is(err, ErrDuplicate)
}
