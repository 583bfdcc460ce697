package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/courier"
	"github.com/xenking/storefront/internal/domain/delivery"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/repository"
)

// seedFile is the layout of the JSON seed.
type seedFile struct {
	Settings map[string]string `json:"settings"`
	Sellers  []struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
		City string `json:"city"`
	} `json:"sellers"`
	Users []struct {
		Email      string `json:"email"`
		FirstName  string `json:"first_name"`
		LastName   string `json:"last_name"`
		ReferredBy string `json:"referred_by"`
	} `json:"users"`
	Products []struct {
		Name                string           `json:"name"`
		Slug                string           `json:"slug"`
		Price               decimal.Decimal  `json:"price"`
		SalePrice           decimal.Decimal  `json:"sale_price"`
		Stock               int              `json:"stock"`
		SellerID            int64            `json:"seller_id"`
		AffiliateCommission *decimal.Decimal `json:"affiliate_commission"`
	} `json:"products"`
	Coupons []struct {
		Code              string          `json:"code"`
		Type              string          `json:"type"`
		Value             decimal.Decimal `json:"value"`
		MinOrderAmount    decimal.Decimal `json:"min_order_amount"`
		MaxDiscount       decimal.Decimal `json:"max_discount"`
		ExpiresAt         *time.Time      `json:"expires_at"`
		UsageLimit        int             `json:"usage_limit"`
		UsageLimitPerUser int             `json:"usage_limit_per_user"`
		Description       string          `json:"description"`
	} `json:"coupons"`
	Couriers []struct {
		Name string `json:"name"`
		City string `json:"city"`
	} `json:"couriers"`
	DeliveryCharges []struct {
		Location string          `json:"location"`
		Amount   decimal.Decimal `json:"amount"`
	} `json:"delivery_charges"`
}

func main() {
	var (
		databaseURL  string
		seedPath     string
		apiKey       string
		apiKeyPepper string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&seedPath, "seed-file", "db/seed/seed.json", "path to the JSON seed file")
	flag.StringVar(&apiKey, "api-key", "", "admin API key to seed (or SHOP_SEED_API_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or SHOP_API_KEY_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKey == "" {
		apiKey = os.Getenv("SHOP_SEED_API_KEY")
	}
	if apiKey == "" {
		slog.Error("API key is required: set --api-key or SHOP_SEED_API_KEY")
		os.Exit(1)
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("SHOP_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, seedPath, apiKey, apiKeyPepper); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, seedPath, apiKey, pepper string) error {
	slog.Info("reading seed file", slog.String("path", seedPath))

	data, err := os.ReadFile(seedPath)
	if err != nil {
		return errors.Wrap(err, "read seed file")
	}
	var seed seedFile
	if err := json.Unmarshal(data, &seed); err != nil {
		return errors.Wrap(err, "parse seed JSON")
	}

	slog.Info("running migrations")
	if err := repository.RunMigrations(databaseURL); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	slog.Info("connecting to database")
	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	for _, step := range []struct {
		name string
		fn   func(context.Context, *pgxpool.Pool, *seedFile) error
	}{
		{"settings", seedSettings},
		{"accounts", seedAccounts},
		{"products", seedProducts},
		{"coupons", seedCoupons},
		{"couriers", seedCouriers},
		{"delivery charges", seedDeliveryCharges},
	} {
		if err := step.fn(ctx, pool, &seed); err != nil {
			return errors.Wrapf(err, "seed %s", step.name)
		}
	}

	if err := seedAPIKey(ctx, pool, apiKey, pepper); err != nil {
		return errors.Wrap(err, "seed api key")
	}
	return nil
}

func seedSettings(ctx context.Context, pool *pgxpool.Pool, seed *seedFile) error {
	repo := repository.NewSettingsRepository(pool)
	for key, value := range seed.Settings {
		if err := repo.Set(ctx, key, value); err != nil {
			return errors.Wrapf(err, "set %s", key)
		}
		slog.Info("stored setting", slog.String("key", key), slog.String("value", value))
	}
	return nil
}

func seedAccounts(ctx context.Context, pool *pgxpool.Pool, seed *seedFile) error {
	repo := repository.NewAccountRepository(pool)
	for _, s := range seed.Sellers {
		if err := repo.UpsertSeller(ctx, repository.Seller{ID: s.ID, Name: s.Name, City: s.City}); err != nil {
			return err
		}
		slog.Info("upserted seller", slog.Int64("id", s.ID), slog.String("city", s.City))
	}

	// Referrers must be stored before the users they referred.
	ids := make(map[string]int64, len(seed.Users))
	for _, u := range seed.Users {
		row := &repository.User{Email: u.Email, FirstName: u.FirstName, LastName: u.LastName}
		if u.ReferredBy != "" {
			ref, ok := ids[strings.ToLower(u.ReferredBy)]
			if !ok {
				return errors.Errorf("user %s is referred by unknown user %s", u.Email, u.ReferredBy)
			}
			row.ReferredBy = ref
		}
		if err := repo.UpsertUser(ctx, row); err != nil {
			return err
		}
		ids[strings.ToLower(u.Email)] = row.ID
		slog.Info("upserted user", slog.Int64("id", row.ID), slog.String("email", u.Email))
	}
	return nil
}

func seedProducts(ctx context.Context, pool *pgxpool.Pool, seed *seedFile) error {
	repo := repository.NewProductRepository(pool)
	for _, p := range seed.Products {
		row := &product.Product{
			Name:                p.Name,
			Slug:                p.Slug,
			Price:               p.Price,
			SalePrice:           p.SalePrice,
			StockQuantity:       p.Stock,
			SellerID:            p.SellerID,
			AffiliateCommission: p.AffiliateCommission,
			Active:              true,
		}
		if err := repo.Upsert(ctx, row); err != nil {
			return err
		}
		slog.Info("upserted product", slog.Int64("id", row.ID), slog.String("name", p.Name))
	}
	return nil
}

func seedCoupons(ctx context.Context, pool *pgxpool.Pool, seed *seedFile) error {
	repo := repository.NewCouponRepository(pool)
	for _, c := range seed.Coupons {
		rule := &coupon.Rule{
			Code:              c.Code,
			DiscountType:      coupon.DiscountType(c.Type),
			Value:             c.Value,
			MinOrderAmount:    c.MinOrderAmount,
			MaxDiscount:       c.MaxDiscount,
			ExpiresAt:         c.ExpiresAt,
			Active:            true,
			UsageLimitGlobal:  c.UsageLimit,
			UsageLimitPerUser: c.UsageLimitPerUser,
			Description:       c.Description,
		}
		if err := rule.Check(); err != nil {
			return errors.Wrapf(err, "coupon %s", c.Code)
		}
		if err := repo.Upsert(ctx, rule); err != nil {
			return err
		}
		slog.Info("upserted coupon", slog.String("code", rule.Code), slog.String("description", rule.Description))
	}
	return nil
}

// seedCouriers creates couriers missing from their city. Re-running the seed
// does not duplicate them.
func seedCouriers(ctx context.Context, pool *pgxpool.Pool, seed *seedFile) error {
	repo := repository.NewCourierRepository(pool)
	for _, c := range seed.Couriers {
		existing, err := repo.ActiveInCity(ctx, c.City)
		if err != nil {
			return err
		}
		if containsCourier(existing, c.Name) {
			continue
		}
		row := &courier.Courier{Name: c.Name, City: c.City, Active: true}
		if err := repo.Create(ctx, row); err != nil {
			return err
		}
		slog.Info("created courier", slog.Int64("id", row.ID), slog.String("city", c.City))
	}
	return nil
}

func containsCourier(cs []courier.Courier, name string) bool {
	for _, c := range cs {
		if strings.EqualFold(c.Name, name) {
			return true
		}
	}
	return false
}

func seedDeliveryCharges(ctx context.Context, pool *pgxpool.Pool, seed *seedFile) error {
	repo := repository.NewDeliveryRepository(pool)
	for _, c := range seed.DeliveryCharges {
		err := repo.Create(ctx, &delivery.Charge{Location: c.Location, Amount: c.Amount})
		switch {
		case errors.Is(err, delivery.ErrDuplicate):
			slog.Info("delivery charge exists", slog.String("location", c.Location))
		case err != nil:
			return err
		default:
			slog.Info("created delivery charge", slog.String("location", c.Location))
		}
	}
	return nil
}

func seedAPIKey(ctx context.Context, pool *pgxpool.Pool, apiKey, pepper string) error {
	slog.Info("seeding admin API key")

	if err := repository.NewAPIKeyRepository(pool).Upsert(ctx, &auth.APIKeyInfo{
		ID:      "admin",
		KeyHash: auth.HashKey([]byte(pepper), apiKey),
		Name:    "Admin key",
		Scopes:  auth.AllScopes,
	}); err != nil {
		return errors.Wrap(err, "upsert admin API key")
	}

	slog.Info("upserted API key", slog.String("id", "admin"), slog.String("name", "Admin key"))
	return nil
}
