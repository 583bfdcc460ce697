package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/coupon"
)

const (
	couponColumns = `id, code, discount_type, discount_value, min_order_amount, max_discount,
		expires_at, is_active, usage_limit_global, usage_limit_per_user, used_count, description`

	getCouponByCodeSQL = `SELECT ` + couponColumns + ` FROM coupons WHERE UPPER(code) = UPPER($1)`

	countCouponUserUsageSQL = `SELECT COUNT(*) FROM coupon_usages WHERE coupon_id = $1 AND user_id = $2`

	upsertCouponSQL = `INSERT INTO coupons
		(code, discount_type, discount_value, min_order_amount, max_discount, expires_at,
		 is_active, usage_limit_global, usage_limit_per_user, description)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (code) DO UPDATE SET
			discount_type = EXCLUDED.discount_type,
			discount_value = EXCLUDED.discount_value,
			min_order_amount = EXCLUDED.min_order_amount,
			max_discount = EXCLUDED.max_discount,
			expires_at = EXCLUDED.expires_at,
			is_active = EXCLUDED.is_active,
			usage_limit_global = EXCLUDED.usage_limit_global,
			usage_limit_per_user = EXCLUDED.usage_limit_per_user,
			description = EXCLUDED.description
		RETURNING id, used_count`

	listCouponCodesSQL = `SELECT code FROM coupons`

	couponCodeExistsSQL = `SELECT EXISTS (SELECT 1 FROM coupons WHERE code = $1)`
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// FindByCode looks up a coupon by its code (case-insensitive), active or not.
// Returns coupon.ErrInvalidCoupon when no coupon has the code.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Rule, error) {
	rows, err := r.pool.Query(ctx, getCouponByCodeSQL, code)
	if err != nil {
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}

	rule, err := pgx.CollectExactlyOneRow(rows, scanCouponRule)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrInvalidCoupon
		}
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}
	return &rule, nil
}

// CountUserUsage counts the orders of userID that used the coupon.
func (r *CouponRepository) CountUserUsage(ctx context.Context, couponID, userID int64) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, countCouponUserUsageSQL, couponID, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting usage of coupon %d: %w", couponID, err)
	}
	return n, nil
}

// Upsert creates the coupon or replaces the one with the same code. The
// usage counter of an existing coupon is kept.
func (r *CouponRepository) Upsert(ctx context.Context, rule *coupon.Rule) error {
	err := r.pool.QueryRow(ctx, upsertCouponSQL,
		rule.Code, string(rule.DiscountType), rule.Value, rule.MinOrderAmount, rule.MaxDiscount,
		rule.ExpiresAt, rule.Active, rule.UsageLimitGlobal, rule.UsageLimitPerUser, rule.Description,
	).Scan(&rule.ID, &rule.UsedCount)
	if err != nil {
		return fmt.Errorf("upserting coupon %q: %w", rule.Code, err)
	}
	return nil
}

// ExistingCodes returns every stored coupon code.
func (r *CouponRepository) ExistingCodes(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, listCouponCodesSQL)
	if err != nil {
		return nil, fmt.Errorf("listing coupon codes: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// CodeExists reports whether a coupon with exactly this code is stored.
func (r *CouponRepository) CodeExists(ctx context.Context, code string) (bool, error) {
	var ok bool
	if err := r.pool.QueryRow(ctx, couponCodeExistsSQL, code).Scan(&ok); err != nil {
		return false, fmt.Errorf("checking coupon code %q: %w", code, err)
	}
	return ok, nil
}

func scanCouponRule(row pgx.CollectableRow) (coupon.Rule, error) {
	var (
		rule         coupon.Rule
		discountType string
	)
	err := row.Scan(
		&rule.ID, &rule.Code, &discountType, &rule.Value, &rule.MinOrderAmount, &rule.MaxDiscount,
		&rule.ExpiresAt, &rule.Active, &rule.UsageLimitGlobal, &rule.UsageLimitPerUser,
		&rule.UsedCount, &rule.Description,
	)
	rule.DiscountType = coupon.DiscountType(discountType)
	return rule, err
}
