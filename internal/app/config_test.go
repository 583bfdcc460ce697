package app

import (
	"testing"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadFromEnv(t *testing.T, env map[string]string) (*Config, error) {
	t.Helper()
	t.Setenv("DATABASE_URL", "")
	t.Setenv("PORT", "")
	for k, v := range env {
		t.Setenv(k, v)
	}
	return loadConfig(aconfig.Config{
		EnvPrefix: "SHOP",
		SkipFiles: true,
		SkipFlags: true,
	})
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := loadFromEnv(t, map[string]string{
		"SHOP_DATABASE_URL":      "postgres://localhost/shop",
		"SHOP_AUTH_TOKEN_SECRET": "secret",
	})
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.Addr)
	assert.Equal(t, "shop_session", cfg.Session.CookieName)
	assert.Equal(t, 720*time.Hour, cfg.Session.TTL)
	assert.Equal(t, 24*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, 10, cfg.CheckoutRateLimit.Max)
	assert.Equal(t, time.Hour, cfg.CheckoutRateLimit.Window)
	assert.Equal(t, 100, cfg.RateLimit.Max)
	assert.Equal(t, 50, cfg.Outbox.BatchSize)
	assert.Equal(t, int64(10000), cfg.Outbox.BacklogLimit)

	p, err := cfg.pricing()
	require.NoError(t, err)
	assert.Equal(t, "12", p.TaxRate.String())
	assert.Equal(t, "300", p.DeliveryFee.String())
	assert.Equal(t, "10", p.CommissionRate.String())
}

func TestLoadConfig_PlatformDefaults(t *testing.T) {
	cfg, err := loadFromEnv(t, map[string]string{
		"DATABASE_URL":           "postgres://platform/shop",
		"PORT":                   "9000",
		"SHOP_AUTH_TOKEN_SECRET": "secret",
	})
	require.NoError(t, err)
	assert.Equal(t, "postgres://platform/shop", cfg.DatabaseURL)
	assert.Equal(t, "0.0.0.0:9000", cfg.Addr)
}

func TestLoadConfig_Invalid(t *testing.T) {
	base := map[string]string{
		"SHOP_DATABASE_URL":      "postgres://localhost/shop",
		"SHOP_AUTH_TOKEN_SECRET": "secret",
	}
	for _, tt := range []struct {
		name string
		key  string
		val  string
		msg  string
	}{
		{name: "NoDatabase", key: "SHOP_DATABASE_URL", val: "", msg: "database URL is required"},
		{name: "NoSecret", key: "SHOP_AUTH_TOKEN_SECRET", val: "", msg: "token secret is required"},
		{name: "TaxRange", key: "SHOP_PRICING_DEFAULT_TAX_RATE", val: "120", msg: "outside 0..100"},
		{name: "TaxSyntax", key: "SHOP_PRICING_DEFAULT_TAX_RATE", val: "twelve", msg: "parse default tax rate"},
		{name: "NegativeFee", key: "SHOP_PRICING_DEFAULT_DELIVERY_FEE", val: "-1", msg: "is negative"},
		{name: "Commission", key: "SHOP_PRICING_DEFAULT_COMMISSION_RATE", val: "60", msg: "outside 0..50"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			env := map[string]string{}
			for k, v := range base {
				env[k] = v
			}
			env[tt.key] = tt.val

			_, err := loadFromEnv(t, env)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}
