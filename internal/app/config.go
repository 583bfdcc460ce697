package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Config holds the complete application configuration, loadable from
// environment variables (SHOP_ prefix), flags, or YAML config files.
type Config struct {
	Addr              string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL       string `usage:"PostgreSQL connection URL (SHOP_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	APIKeyPepper      string `usage:"HMAC pepper for API key hashing (SHOP_API_KEY_PEPPER)" flag:"api-key-pepper"`
	Auth              AuthConfig
	Session           SessionConfig
	Pricing           PricingConfig
	Outbox            OutboxConfig
	RateLimit         RateLimitConfig
	CheckoutRateLimit CheckoutRateLimitConfig
	CORS              CORSConfig
	Graceful          GracefulConfig
}

// AuthConfig controls customer bearer tokens.
type AuthConfig struct {
	TokenSecret string        `usage:"HMAC secret for customer tokens (SHOP_AUTH_TOKEN_SECRET)" flag:"token-secret"`
	TokenTTL    time.Duration `default:"24h" usage:"Customer token lifetime" flag:"token-ttl"`
	Issuer      string        `default:"storefront" usage:"Customer token issuer"`
}

// SessionConfig controls the visitor session cookie.
type SessionConfig struct {
	CookieName string        `default:"shop_session" usage:"Session cookie name" flag:"session-cookie"`
	TTL        time.Duration `default:"720h" usage:"Session lifetime" flag:"session-ttl"`
	Secure     bool          `default:"false" usage:"Send the session cookie over HTTPS only" flag:"session-secure"`
}

// PricingConfig holds the fallbacks used while the settings table is empty.
type PricingConfig struct {
	DefaultTaxRate        string `default:"12" usage:"Tax percentage when no tax_rate setting is stored"`
	DefaultDeliveryFee    string `default:"300" usage:"Delivery fee for locations without a charge"`
	DefaultCommissionRate string `default:"10" usage:"Referral commission percentage"`
}

// OutboxConfig controls the side-effect relay.
type OutboxConfig struct {
	PollInterval time.Duration `default:"5s" usage:"Outbox poll interval"`
	BatchSize    int           `default:"50" usage:"Events claimed per poll"`
	MaxAttempts  int           `default:"10" usage:"Attempts before an event is dead-lettered"`
	BacklogLimit int64         `default:"10000" usage:"Pending events before the liveness probe fails"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CheckoutRateLimitConfig limits order placement per client.
type CheckoutRateLimitConfig struct {
	Max    int           `default:"10" usage:"Max checkouts per window"`
	Window time.Duration `default:"1h" usage:"Checkout limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// pricingDefaults are the parsed Pricing values.
type pricingDefaults struct {
	TaxRate, DeliveryFee, CommissionRate decimal.Decimal
}

var (
	hundred = decimal.NewFromInt(100)
	fifty   = decimal.NewFromInt(50)
)

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	return loadConfig(aconfig.Config{
		EnvPrefix: "SHOP",
		Files:     []string{"config.yaml", "/etc/storefront/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
}

func loadConfig(acfg aconfig.Config) (*Config, error) {
	var cfg Config
	if err := aconfig.LoaderFor(&cfg, acfg).Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's SHOP_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return errors.New("database URL is required: set SHOP_DATABASE_URL or DATABASE_URL")
	}
	if c.Auth.TokenSecret == "" {
		return errors.New("token secret is required: set SHOP_AUTH_TOKEN_SECRET")
	}
	if c.Session.TTL <= 0 {
		return errors.New("session TTL must be positive")
	}
	if _, err := c.pricing(); err != nil {
		return err
	}
	return nil
}

// pricing parses the pricing fallbacks.
func (c *Config) pricing() (pricingDefaults, error) {
	var (
		p   pricingDefaults
		err error
	)
	if p.TaxRate, err = decimal.NewFromString(c.Pricing.DefaultTaxRate); err != nil {
		return p, errors.Wrap(err, "parse default tax rate")
	}
	if p.TaxRate.IsNegative() || p.TaxRate.GreaterThan(hundred) {
		return p, errors.Errorf("default tax rate %s is outside 0..100", p.TaxRate)
	}
	if p.DeliveryFee, err = decimal.NewFromString(c.Pricing.DefaultDeliveryFee); err != nil {
		return p, errors.Wrap(err, "parse default delivery fee")
	}
	if p.DeliveryFee.IsNegative() {
		return p, errors.Errorf("default delivery fee %s is negative", p.DeliveryFee)
	}
	if p.CommissionRate, err = decimal.NewFromString(c.Pricing.DefaultCommissionRate); err != nil {
		return p, errors.Wrap(err, "parse default commission rate")
	}
	if p.CommissionRate.IsNegative() || p.CommissionRate.GreaterThan(fifty) {
		return p, errors.Errorf("default commission rate %s is outside 0..50", p.CommissionRate)
	}
	return p, nil
}
