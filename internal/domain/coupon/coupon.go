package coupon

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// DiscountType enumerates the supported coupon discount strategies.
type DiscountType string

const (
	// DiscountPercentage takes a percentage of the subtotal, optionally capped
	// by MaxDiscount.
	DiscountPercentage DiscountType = "percentage"
	// DiscountFixed takes a fixed amount, capped at the subtotal.
	DiscountFixed DiscountType = "fixed"
)

// Valid reports whether t is a known discount type.
func (t DiscountType) Valid() bool {
	return t == DiscountPercentage || t == DiscountFixed
}

var (
	// ErrEmptyCode is returned when no code was supplied.
	ErrEmptyCode = errors.New("coupon code is required")
	// ErrInvalidCoupon is returned when a coupon code is not found.
	ErrInvalidCoupon = errors.New("invalid coupon code")
	// ErrCouponInactive is returned for coupons switched off by an admin.
	ErrCouponInactive = errors.New("coupon is not active")
	// ErrCouponExpired is returned when a coupon is past its expiry time.
	ErrCouponExpired = errors.New("coupon expired")
	// ErrCouponUsageLimitReached is returned when a coupon has exhausted its
	// global or per-user uses.
	ErrCouponUsageLimitReached = errors.New("coupon usage limit reached")
	// ErrMinimumOrderNotMet is matched by *MinimumOrderError.
	ErrMinimumOrderNotMet = errors.New("minimum order amount not met")
)

// MinimumOrderError reports a subtotal below the coupon's minimum.
type MinimumOrderError struct {
	Minimum decimal.Decimal
}

func (e *MinimumOrderError) Error() string {
	return fmt.Sprintf("minimum order amount of %s required", e.Minimum.StringFixed(2))
}

// Is matches ErrMinimumOrderNotMet.
func (e *MinimumOrderError) Is(target error) bool {
	return target == ErrMinimumOrderNotMet
}

// IsRejection reports whether err is a coupon rule rejection rather than an
// infrastructure failure.
func IsRejection(err error) bool {
	for _, target := range []error{
		ErrEmptyCode,
		ErrInvalidCoupon,
		ErrCouponInactive,
		ErrCouponExpired,
		ErrCouponUsageLimitReached,
		ErrMinimumOrderNotMet,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// Rule defines a coupon's discount behaviour and eligibility constraints.
type Rule struct {
	ID             int64
	Code           string
	DiscountType   DiscountType
	Value          decimal.Decimal
	MinOrderAmount decimal.Decimal
	// MaxDiscount caps percentage discounts. Zero means uncapped.
	MaxDiscount decimal.Decimal
	ExpiresAt   *time.Time
	Active      bool
	// UsageLimitGlobal and UsageLimitPerUser are unlimited when zero.
	UsageLimitGlobal  int
	UsageLimitPerUser int
	UsedCount         int
	Description       string
}

// NormalizeCode trims and upper-cases a coupon code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Repository provides lookup and mutation of coupon rules.
type Repository interface {
	// FindByCode returns ErrInvalidCoupon when no coupon has the code.
	FindByCode(ctx context.Context, code string) (*Rule, error)
	// CountUserUsage counts orders by userID that used the coupon.
	CountUserUsage(ctx context.Context, couponID, userID int64) (int, error)
	// Upsert creates or replaces a coupon by code.
	Upsert(ctx context.Context, rule *Rule) error
}

// ErrInvalidRule is matched by every error Check returns.
var ErrInvalidRule = errors.New("invalid coupon rule")

// Check normalizes the code of rule and rejects rules that could never be
// applied.
func (r *Rule) Check() error {
	r.Code = NormalizeCode(r.Code)
	switch {
	case r.Code == "":
		return errors.Wrap(ErrInvalidRule, "code is required")
	case !r.DiscountType.Valid():
		return errors.Wrapf(ErrInvalidRule, "unknown discount type %q", r.DiscountType)
	case !r.Value.IsPositive():
		return errors.Wrap(ErrInvalidRule, "value must be positive")
	case r.DiscountType == DiscountPercentage && r.Value.GreaterThan(decimal.NewFromInt(100)):
		return errors.Wrap(ErrInvalidRule, "percentage must not exceed 100")
	case r.MinOrderAmount.IsNegative(), r.MaxDiscount.IsNegative():
		return errors.Wrap(ErrInvalidRule, "amounts must not be negative")
	case r.UsageLimitGlobal < 0, r.UsageLimitPerUser < 0:
		return errors.Wrap(ErrInvalidRule, "usage limits must not be negative")
	}
	return nil
}
