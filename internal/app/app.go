package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/courier"
	"github.com/xenking/storefront/internal/domain/delivery"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/outbox"
	"github.com/xenking/storefront/internal/domain/referral"
	"github.com/xenking/storefront/internal/domain/session"
	"github.com/xenking/storefront/internal/domain/settings"
	"github.com/xenking/storefront/internal/handler"
	"github.com/xenking/storefront/internal/repository"
	"github.com/xenking/storefront/pkg/health"
	"github.com/xenking/storefront/pkg/httpmiddleware"
	"github.com/xenking/storefront/pkg/usertoken"
)

// Run creates all dependencies, starts the HTTP server and the outbox relay,
// and handles graceful shutdown. It is the single wiring point for the
// application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	defaults, err := cfg.pricing()
	if err != nil {
		return err
	}

	// PostgreSQL pool + migrations.
	pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := repository.RunMigrations(cfg.DatabaseURL); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Repositories.
	productRepo := repository.NewProductRepository(pool)
	couponRepo := repository.NewCouponRepository(pool)
	cartRepo := repository.NewCartRepository(pool)
	orderRepo := repository.NewOrderRepository(pool)
	courierRepo := repository.NewCourierRepository(pool)
	deliveryRepo := repository.NewDeliveryRepository(pool)
	settingsRepo := repository.NewSettingsRepository(pool)
	referralRepo := repository.NewReferralRepository(pool)
	outboxRepo := repository.NewOutboxRepository(pool)
	apikeyRepo := repository.NewAPIKeyRepository(pool)
	sessionRepo := repository.NewSessionRepository(pool)

	// Domain services.
	settingsSvc := settings.NewService(settingsRepo, settings.Defaults{
		TaxRate:            defaults.TaxRate,
		CommissionRate:     defaults.CommissionRate,
		DefaultDeliveryFee: defaults.DeliveryFee,
	})
	cartSvc, err := cart.NewService(productRepo, coupon.NewRepoValidator(couponRepo), settingsSvc, cartRepo, m.MeterProvider())
	if err != nil {
		return errors.Wrap(err, "create cart service")
	}
	deliverySvc := delivery.NewService(deliveryRepo, settingsSvc)
	courierSvc := courier.NewService(courierRepo)
	referralSvc := referral.NewService(referralRepo, settingsSvc)

	relay, err := outbox.NewRelay(outboxRepo, outbox.Config{
		PollInterval: cfg.Outbox.PollInterval,
		BatchSize:    cfg.Outbox.BatchSize,
		MaxAttempts:  cfg.Outbox.MaxAttempts,
	}, lg.Named("outbox"), m.MeterProvider())
	if err != nil {
		return errors.Wrap(err, "create outbox relay")
	}
	relay.Handle(outbox.KindCourierAssign, courierSvc.Handler())
	for kind, h := range referralSvc.Handlers() {
		relay.Handle(kind, h)
	}
	// Health probes.
	probes := health.New()
	probes.Register(health.Readiness, "postgres", health.Ping(pool), health.Timeout(5*time.Second))
	probes.Register(health.Liveness, "goroutines", health.Goroutines(10000))
	probes.Register(health.Liveness, "outbox", health.Backlog(func(ctx context.Context) (int64, error) {
		return outboxRepo.Backlog(ctx, cfg.Outbox.MaxAttempts)
	}, cfg.Outbox.BacklogLimit), health.Timeout(5*time.Second), health.Tolerate(5))
	probes.SetReady(true)

	orderSvc := order.NewService(cartSvc, productRepo, deliverySvc, orderRepo, relay)

	// HTTP handlers.
	h := handler.NewHandler(
		handler.CookieConfig{Name: cfg.Session.CookieName, Secure: cfg.Session.Secure},
		handler.Services{
			Products: productRepo,
			Carts:    cartSvc,
			Orders:   orderSvc,
			Delivery: deliverySvc,
			Settings: settingsSvc,
			Couriers: courierSvc,
			Coupons:  couponRepo,
			Sessions: session.NewManager(sessionRepo, cfg.Session.TTL),
			Tokens:   usertoken.New([]byte(cfg.Auth.TokenSecret), cfg.Auth.Issuer, cfg.Auth.TokenTTL),
			Keys:     auth.NewAuthenticator(apikeyRepo, []byte(cfg.APIKeyPepper)),
		},
	)

	// Mux: health endpoints + API routes on one server.
	mux := http.NewServeMux()
	mux.Handle("GET /livez", probes.Handler(health.Liveness))
	mux.Handle("GET /readyz", probes.Handler(health.Readiness))
	h.Register(mux, httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
		Max:    cfg.CheckoutRateLimit.Max,
		Window: cfg.CheckoutRateLimit.Window,
		Key:    httpmiddleware.SessionOrIP(cfg.Session.CookieName),
	}))
	routeFinder := httpmiddleware.MakeRouteFinder(mux)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				Origins:     cfg.CORS.Origins,
				Credentials: cfg.CORS.AllowCredentials,
				MaxAge:      24 * time.Hour,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Instrument("storefront-api", routeFinder, m),
			httpmiddleware.LogRequests(routeFinder),
			httpmiddleware.Labeler(routeFinder),
		),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return relay.Run(zctx.Base(gctx, lg.Named("outbox")))
	})
	g.Go(func() error {
		return probes.Run(gctx, 10*time.Second)
	})

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	g.Go(func() error {
		<-gctx.Done()
		probes.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		return nil
	})

	g.Go(func() error {
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})

	return g.Wait()
}
