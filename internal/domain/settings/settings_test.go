package settings

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memRepo struct {
	values map[string]string
	err    error
}

func (m *memRepo) Get(_ context.Context, key string) (string, bool, error) {
	if m.err != nil {
		return "", false, m.err
	}
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *memRepo) Set(_ context.Context, key, value string) error {
	if m.values == nil {
		m.values = map[string]string{}
	}
	m.values[key] = value
	return nil
}

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func newService(values map[string]string) (*Service, *memRepo) {
	repo := &memRepo{values: values}
	return NewService(repo, Defaults{
		TaxRate:            d("12"),
		CommissionRate:     d("10"),
		DefaultDeliveryFee: d("300"),
	}), repo
}

func TestService_TaxRate(t *testing.T) {
	tests := []struct {
		name   string
		values map[string]string
		want   decimal.Decimal
	}{
		{name: "unset uses default", want: d("12")},
		{name: "stored value", values: map[string]string{KeyTaxRate: "13"}, want: d("13")},
		{name: "fractional value", values: map[string]string{KeyTaxRate: " 7.5 "}, want: d("7.5")},
		{name: "garbage uses default", values: map[string]string{KeyTaxRate: "abc"}, want: d("12")},
		{name: "out of range uses default", values: map[string]string{KeyTaxRate: "150"}, want: d("12")},
		{name: "zero is allowed", values: map[string]string{KeyTaxRate: "0"}, want: d("0")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newService(tt.values)
			got, err := svc.TaxRate(context.Background())
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "want %s, got %s", tt.want, got)
		})
	}
}

func TestService_TaxRateRepoError(t *testing.T) {
	svc := NewService(&memRepo{err: errors.New("boom")}, Defaults{TaxRate: d("12")})
	_, err := svc.TaxRate(context.Background())
	require.Error(t, err)
}

func TestService_SetTaxRate(t *testing.T) {
	svc, repo := newService(nil)

	require.NoError(t, svc.SetTaxRate(context.Background(), d("15")))
	assert.Equal(t, "15", repo.values[KeyTaxRate])

	err := svc.SetTaxRate(context.Background(), d("101"))
	var re *RangeError
	require.ErrorAs(t, err, &re)
	assert.True(t, IsValidationError(err))

	err = svc.SetTaxRate(context.Background(), d("-1"))
	require.ErrorAs(t, err, &re)
}

func TestService_CommissionRate(t *testing.T) {
	tests := []struct {
		name   string
		values map[string]string
		want   decimal.Decimal
	}{
		{name: "default", want: d("10")},
		{name: "stored", values: map[string]string{KeyCommissionRate: "25"}, want: d("25")},
		{name: "above 50 becomes zero", values: map[string]string{KeyCommissionRate: "60"}, want: d("0")},
		{name: "negative becomes zero", values: map[string]string{KeyCommissionRate: "-3"}, want: d("0")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newService(tt.values)
			got, err := svc.CommissionRate(context.Background())
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "want %s, got %s", tt.want, got)
		})
	}
}

func TestService_Delivery(t *testing.T) {
	svc, _ := newService(nil)
	ctx := context.Background()

	free, err := svc.FreeDelivery(ctx)
	require.NoError(t, err)
	assert.False(t, free)

	require.NoError(t, svc.SetFreeDelivery(ctx, true))
	free, err = svc.FreeDelivery(ctx)
	require.NoError(t, err)
	assert.True(t, free)

	fee, err := svc.DefaultDeliveryFee(ctx)
	require.NoError(t, err)
	assert.True(t, d("300").Equal(fee))

	require.NoError(t, svc.SetDefaultDeliveryFee(ctx, d("150")))
	fee, err = svc.DefaultDeliveryFee(ctx)
	require.NoError(t, err)
	assert.True(t, d("150").Equal(fee))

	err = svc.SetDefaultDeliveryFee(ctx, d("-1"))
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
}
