// Package settings exposes the store-wide configurable values (tax rate,
// referral commission, delivery fees) with documented defaults.
package settings

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Setting keys as stored in the settings table.
const (
	KeyTaxRate            = "tax_rate"
	KeyCommissionRate     = "commission_rate"
	KeyFreeDelivery       = "free_delivery"
	KeyDefaultDeliveryFee = "default_delivery_fee"
)

var (
	hundred          = decimal.NewFromInt(100)
	maxCommission    = decimal.NewFromInt(50)
	errNegativeValue = errors.New("value must not be negative")
)

// RangeError reports a setting value outside its accepted range.
type RangeError struct {
	Key      string
	Min, Max decimal.Decimal
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("%s must be between %s and %s", e.Key, e.Min, e.Max)
}

// Repository stores raw setting values by key.
type Repository interface {
	// Get returns the stored value and whether the key exists.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// Defaults are used when a key is unset or holds an unparsable value.
type Defaults struct {
	TaxRate            decimal.Decimal
	CommissionRate     decimal.Decimal
	DefaultDeliveryFee decimal.Decimal
}

// Service reads and writes typed settings.
type Service struct {
	repo     Repository
	defaults Defaults
}

// NewService creates a settings Service.
func NewService(repo Repository, defaults Defaults) *Service {
	return &Service{repo: repo, defaults: defaults}
}

// TaxRate returns the tax percentage (12 means 12%).
func (s *Service) TaxRate(ctx context.Context) (decimal.Decimal, error) {
	v, err := s.decimal(ctx, KeyTaxRate, s.defaults.TaxRate)
	if err != nil {
		return decimal.Zero, err
	}
	if v.IsNegative() || v.GreaterThan(hundred) {
		return s.defaults.TaxRate, nil
	}
	return v, nil
}

// SetTaxRate stores a new tax percentage in the 0..100 range.
func (s *Service) SetTaxRate(ctx context.Context, rate decimal.Decimal) error {
	if rate.IsNegative() || rate.GreaterThan(hundred) {
		return &RangeError{Key: KeyTaxRate, Min: decimal.Zero, Max: hundred}
	}
	return s.set(ctx, KeyTaxRate, rate.String())
}

// CommissionRate returns the default referral commission percentage. Stored
// values outside 0..50 yield zero.
func (s *Service) CommissionRate(ctx context.Context) (decimal.Decimal, error) {
	v, err := s.decimal(ctx, KeyCommissionRate, s.defaults.CommissionRate)
	if err != nil {
		return decimal.Zero, err
	}
	return ClampCommission(v), nil
}

// ClampCommission maps commission percentages outside 0..50 to zero.
func ClampCommission(rate decimal.Decimal) decimal.Decimal {
	if rate.IsNegative() || rate.GreaterThan(maxCommission) {
		return decimal.Zero
	}
	return rate
}

// FreeDelivery reports whether delivery is free for every location.
func (s *Service) FreeDelivery(ctx context.Context) (bool, error) {
	v, ok, err := s.repo.Get(ctx, KeyFreeDelivery)
	if err != nil {
		return false, errors.Wrap(err, "get free delivery")
	}
	return ok && strings.TrimSpace(v) == "1", nil
}

// SetFreeDelivery toggles free delivery.
func (s *Service) SetFreeDelivery(ctx context.Context, enabled bool) error {
	v := "0"
	if enabled {
		v = "1"
	}
	return s.set(ctx, KeyFreeDelivery, v)
}

// DefaultDeliveryFee is charged for locations without an explicit charge.
func (s *Service) DefaultDeliveryFee(ctx context.Context) (decimal.Decimal, error) {
	v, err := s.decimal(ctx, KeyDefaultDeliveryFee, s.defaults.DefaultDeliveryFee)
	if err != nil {
		return decimal.Zero, err
	}
	if v.IsNegative() {
		return s.defaults.DefaultDeliveryFee, nil
	}
	return v, nil
}

// SetDefaultDeliveryFee stores the fallback delivery fee.
func (s *Service) SetDefaultDeliveryFee(ctx context.Context, fee decimal.Decimal) error {
	if fee.IsNegative() {
		return errNegativeValue
	}
	return s.set(ctx, KeyDefaultDeliveryFee, fee.String())
}

func (s *Service) decimal(ctx context.Context, key string, def decimal.Decimal) (decimal.Decimal, error) {
	raw, ok, err := s.repo.Get(ctx, key)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "get setting %s", key)
	}
	if !ok {
		return def, nil
	}
	v, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return def, nil
	}
	return v, nil
}

func (s *Service) set(ctx context.Context, key, value string) error {
	if err := s.repo.Set(ctx, key, value); err != nil {
		return errors.Wrapf(err, "set setting %s", key)
	}
	return nil
}

// IsValidationError reports whether err was caused by an out of range value.
func IsValidationError(err error) bool {
	var re *RangeError
	return errors.As(err, &re) || errors.Is(err, errNegativeValue)
}
