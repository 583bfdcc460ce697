package coupon

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockCouponRepo struct {
	rule      *Rule
	err       error
	usage     int
	usageErr  error
	lookedUp  string
	usageUser int64
}

func (m *mockCouponRepo) FindByCode(_ context.Context, code string) (*Rule, error) {
	m.lookedUp = code
	return m.rule, m.err
}

func (m *mockCouponRepo) CountUserUsage(_ context.Context, _, userID int64) (int, error) {
	m.usageUser = userID
	return m.usage, m.usageErr
}

func (m *mockCouponRepo) Upsert(_ context.Context, _ *Rule) error {
	return nil
}

func TestRepoValidator_Validate(t *testing.T) {
	fixedNow := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	pastTime := fixedNow.Add(-24 * time.Hour)
	futureTime := fixedNow.Add(24 * time.Hour)

	tests := []struct {
		name     string
		repo     *mockCouponRepo
		code     string
		userID   int64
		subtotal decimal.Decimal
		wantCode string
		wantErr  error
	}{
		{
			name: "valid code",
			repo: &mockCouponRepo{
				rule: &Rule{ID: 1, Code: "SAVE10", DiscountType: DiscountPercentage, Value: d("10"), Active: true},
			},
			code:     "SAVE10",
			subtotal: d("500"),
			wantCode: "SAVE10",
		},
		{
			name:    "empty code",
			repo:    &mockCouponRepo{},
			code:    "   ",
			wantErr: ErrEmptyCode,
		},
		{
			name:     "unknown code",
			repo:     &mockCouponRepo{err: ErrInvalidCoupon},
			code:     "BOGUS",
			subtotal: d("50"),
			wantErr:  ErrInvalidCoupon,
		},
		{
			name: "inactive coupon",
			repo: &mockCouponRepo{
				rule: &Rule{ID: 2, Code: "OFF", DiscountType: DiscountFixed, Value: d("5"), Active: false},
			},
			code:     "OFF",
			subtotal: d("100"),
			wantErr:  ErrCouponInactive,
		},
		{
			name: "expired coupon",
			repo: &mockCouponRepo{
				rule: &Rule{ID: 3, Code: "OLD", DiscountType: DiscountFixed, Value: d("5"), Active: true, ExpiresAt: &pastTime},
			},
			code:     "OLD",
			subtotal: d("100"),
			wantErr:  ErrCouponExpired,
		},
		{
			name: "not yet expired",
			repo: &mockCouponRepo{
				rule: &Rule{ID: 4, Code: "SOON", DiscountType: DiscountFixed, Value: d("5"), Active: true, ExpiresAt: &futureTime},
			},
			code:     "SOON",
			subtotal: d("100"),
			wantCode: "SOON",
		},
		{
			name: "below minimum order amount",
			repo: &mockCouponRepo{
				rule: &Rule{ID: 5, Code: "BIG", DiscountType: DiscountFixed, Value: d("50"), Active: true, MinOrderAmount: d("1000")},
			},
			code:     "BIG",
			subtotal: d("999.99"),
			wantErr:  ErrMinimumOrderNotMet,
		},
		{
			name: "exactly minimum order amount",
			repo: &mockCouponRepo{
				rule: &Rule{ID: 5, Code: "BIG", DiscountType: DiscountFixed, Value: d("50"), Active: true, MinOrderAmount: d("1000")},
			},
			code:     "BIG",
			subtotal: d("1000"),
			wantCode: "BIG",
		},
		{
			name: "global usage limit reached",
			repo: &mockCouponRepo{
				rule: &Rule{ID: 6, Code: "LIMITED", DiscountType: DiscountFixed, Value: d("5"), Active: true, UsageLimitGlobal: 100, UsedCount: 100},
			},
			code:     "LIMITED",
			subtotal: d("100"),
			wantErr:  ErrCouponUsageLimitReached,
		},
		{
			name: "per user limit reached",
			repo: &mockCouponRepo{
				rule:  &Rule{ID: 7, Code: "ONCE", DiscountType: DiscountFixed, Value: d("5"), Active: true, UsageLimitPerUser: 1},
				usage: 1,
			},
			code:     "ONCE",
			userID:   42,
			subtotal: d("100"),
			wantErr:  ErrCouponUsageLimitReached,
		},
		{
			name: "per user limit ignored for guests",
			repo: &mockCouponRepo{
				rule:  &Rule{ID: 7, Code: "ONCE", DiscountType: DiscountFixed, Value: d("5"), Active: true, UsageLimitPerUser: 1},
				usage: 5,
			},
			code:     "ONCE",
			subtotal: d("100"),
			wantCode: "ONCE",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewRepoValidator(tt.repo)
			v.now = func() time.Time { return fixedNow }

			got, err := v.Validate(context.Background(), tt.code, tt.userID, tt.subtotal)

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.True(t, IsRejection(err))
				assert.Nil(t, got)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, tt.wantCode, got.Code)
		})
	}
}

func TestRepoValidator_NormalizesCode(t *testing.T) {
	repo := &mockCouponRepo{
		rule: &Rule{ID: 1, Code: "SAVE10", DiscountType: DiscountFixed, Value: d("10"), Active: true},
	}
	v := NewRepoValidator(repo)

	_, err := v.Validate(context.Background(), "  save10 ", 0, d("100"))
	require.NoError(t, err)
	assert.Equal(t, "SAVE10", repo.lookedUp)
}

func TestRepoValidator_UsageLookupError(t *testing.T) {
	repo := &mockCouponRepo{
		rule:     &Rule{ID: 1, Code: "ONCE", DiscountType: DiscountFixed, Value: d("10"), Active: true, UsageLimitPerUser: 1},
		usageErr: errors.New("db error"),
	}
	v := NewRepoValidator(repo)

	_, err := v.Validate(context.Background(), "ONCE", 9, d("100"))
	require.Error(t, err)
	assert.False(t, IsRejection(err))
	assert.Contains(t, err.Error(), "count coupon usage")
	assert.Equal(t, int64(9), repo.usageUser)
}

func TestRepoValidator_LookupError(t *testing.T) {
	v := NewRepoValidator(&mockCouponRepo{err: errors.New("connection reset")})

	_, err := v.Validate(context.Background(), "ANY", 0, d("100"))
	require.Error(t, err)
	assert.False(t, IsRejection(err))
	assert.Contains(t, err.Error(), "lookup coupon")
}
