package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Validator checks whether a coupon code may be applied to a cart.
type Validator interface {
	Validate(ctx context.Context, code string, userID int64, subtotal decimal.Decimal) (*Rule, error)
}

// RepoValidator implements Validator on top of a Repository.
type RepoValidator struct {
	repo Repository
	now  func() time.Time
}

// NewRepoValidator creates a RepoValidator backed by the given Repository.
func NewRepoValidator(repo Repository) *RepoValidator {
	return &RepoValidator{repo: repo, now: time.Now}
}

// Validate looks up the coupon and checks it is active, unexpired, that
// subtotal meets its minimum order amount, and that neither the global nor
// the per-user usage limit is exhausted. Guests (userID 0) skip the per-user
// check. Validation has no side effects: usage is recorded when an order is
// placed.
func (v *RepoValidator) Validate(ctx context.Context, code string, userID int64, subtotal decimal.Decimal) (*Rule, error) {
	code = NormalizeCode(code)
	if code == "" {
		return nil, ErrEmptyCode
	}

	rule, err := v.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrInvalidCoupon) {
			return nil, ErrInvalidCoupon
		}
		return nil, errors.Wrap(err, "lookup coupon")
	}

	if !rule.Active {
		return nil, ErrCouponInactive
	}
	if rule.ExpiresAt != nil && v.now().After(*rule.ExpiresAt) {
		return nil, ErrCouponExpired
	}
	if rule.MinOrderAmount.IsPositive() && subtotal.LessThan(rule.MinOrderAmount) {
		return nil, &MinimumOrderError{Minimum: rule.MinOrderAmount}
	}
	if rule.UsageLimitGlobal > 0 && rule.UsedCount >= rule.UsageLimitGlobal {
		return nil, ErrCouponUsageLimitReached
	}

	if rule.UsageLimitPerUser > 0 && userID > 0 {
		used, err := v.repo.CountUserUsage(ctx, rule.ID, userID)
		if err != nil {
			return nil, errors.Wrap(err, "count coupon usage")
		}
		if used >= rule.UsageLimitPerUser {
			return nil, ErrCouponUsageLimitReached
		}
	}

	return rule, nil
}
