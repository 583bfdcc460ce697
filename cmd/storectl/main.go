// Command storectl runs one-off operations against the storefront database.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v2"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/courier"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/outbox"
	"github.com/xenking/storefront/internal/domain/referral"
	"github.com/xenking/storefront/internal/domain/settings"
	"github.com/xenking/storefront/internal/repository"
	"github.com/xenking/storefront/pkg/usertoken"
)

func main() {
	lg, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = lg.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := newApp(lg).RunContext(ctx, os.Args); err != nil {
		lg.Error("Command failed", zap.Error(err))
		cancel()
		os.Exit(1)
	}
}

var databaseFlag = &cli.StringFlag{
	Name:     "database-url",
	Usage:    "PostgreSQL connection URL",
	EnvVars:  []string{"SHOP_DATABASE_URL", "DATABASE_URL"},
	Required: true,
}

func newApp(lg *zap.Logger) *cli.App {
	return &cli.App{
		Name:  "storectl",
		Usage: "storefront administration",
		Commands: []*cli.Command{
			{
				Name:   "migrate",
				Usage:  "apply database migrations",
				Flags:  []cli.Flag{databaseFlag},
				Action: migrateAction(lg),
			},
			{
				Name:  "token",
				Usage: "customer bearer tokens",
				Subcommands: []*cli.Command{
					{
						Name:  "issue",
						Usage: "issue a token for a customer id",
						Flags: []cli.Flag{
							&cli.Int64Flag{Name: "user-id", Required: true},
							&cli.StringFlag{Name: "secret", EnvVars: []string{"SHOP_AUTH_TOKEN_SECRET"}, Required: true},
							&cli.StringFlag{Name: "issuer", EnvVars: []string{"SHOP_AUTH_ISSUER"}, Value: "storefront"},
							&cli.DurationFlag{Name: "ttl", EnvVars: []string{"SHOP_AUTH_TOKEN_TTL"}, Value: 24 * time.Hour},
						},
						Action: issueTokenAction,
					},
				},
			},
			{
				Name:  "order",
				Usage: "order operations",
				Subcommands: []*cli.Command{
					{
						Name:      "status",
						Usage:     "move an order to a status",
						ArgsUsage: "<order-id> <status>",
						Flags:     []cli.Flag{databaseFlag},
						Action:    withPool(lg, orderStatusAction),
					},
					{
						Name:      "assign-courier",
						Usage:     "assign a courier to an order, picking one from the seller's city when none is given",
						ArgsUsage: "<order-id>",
						Flags: []cli.Flag{
							databaseFlag,
							&cli.Int64Flag{Name: "courier-id"},
						},
						Action: withPool(lg, assignCourierAction),
					},
				},
			},
			{
				Name:  "outbox",
				Usage: "order side-effect outbox",
				Subcommands: []*cli.Command{
					{
						Name:  "drain",
						Usage: "handle every pending outbox event once",
						Flags: []cli.Flag{
							databaseFlag,
							&cli.IntFlag{Name: "batch-size", Value: 50},
							&cli.IntFlag{Name: "max-attempts", Value: 10},
							&cli.StringFlag{Name: "commission-rate", EnvVars: []string{"SHOP_PRICING_DEFAULT_COMMISSION_RATE"}, Value: "10"},
						},
						Action: withPool(lg, drainOutboxAction),
					},
				},
			},
			{
				Name:  "sessions",
				Usage: "visitor sessions",
				Subcommands: []*cli.Command{
					{
						Name:   "purge",
						Usage:  "delete expired sessions",
						Flags:  []cli.Flag{databaseFlag},
						Action: withPool(lg, purgeSessionsAction),
					},
				},
			},
		},
	}
}

func migrateAction(lg *zap.Logger) cli.ActionFunc {
	return func(c *cli.Context) error {
		if err := repository.RunMigrations(c.String("database-url")); err != nil {
			return errors.Wrap(err, "run migrations")
		}
		lg.Info("Migrations applied")
		return nil
	}
}

func issueTokenAction(c *cli.Context) error {
	svc := usertoken.New([]byte(c.String("secret")), c.String("issuer"), c.Duration("ttl"))
	token, err := svc.Issue(c.Int64("user-id"))
	if err != nil {
		return errors.Wrap(err, "issue token")
	}
	_, err = fmt.Fprintln(c.App.Writer, token)
	return err
}

type poolAction func(c *cli.Context, lg *zap.Logger, pool *pgxpool.Pool) error

// withPool opens the database pool around action.
func withPool(lg *zap.Logger, action poolAction) cli.ActionFunc {
	return func(c *cli.Context) error {
		pool, err := repository.NewPool(c.Context, c.String("database-url"))
		if err != nil {
			return errors.Wrap(err, "connect to database")
		}
		defer pool.Close()
		return action(c, lg, pool)
	}
}

func orderID(c *cli.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Args().First(), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.Errorf("invalid order id %q", c.Args().First())
	}
	return id, nil
}

func orderStatusAction(c *cli.Context, lg *zap.Logger, pool *pgxpool.Pool) error {
	id, err := orderID(c)
	if err != nil {
		return err
	}
	svc := order.NewService(nil, nil, nil, repository.NewOrderRepository(pool), nil)
	o, err := svc.UpdateStatus(c.Context, id, c.Args().Get(1))
	if err != nil {
		return err
	}
	lg.Info("Order updated", zap.Int64("order_id", o.ID), zap.String("status", string(o.Status)))
	return nil
}

func assignCourierAction(c *cli.Context, lg *zap.Logger, pool *pgxpool.Pool) error {
	id, err := orderID(c)
	if err != nil {
		return err
	}
	svc := courier.NewService(repository.NewCourierRepository(pool))

	var assigned *courier.Courier
	if courierID := c.Int64("courier-id"); courierID > 0 {
		assigned, err = svc.Assign(c.Context, id, courierID)
	} else {
		assigned, err = svc.AssignForOrder(c.Context, id)
	}
	if err != nil {
		return err
	}
	lg.Info("Courier assigned",
		zap.Int64("order_id", id),
		zap.Int64("courier_id", assigned.ID),
		zap.String("courier", assigned.Name),
	)
	return nil
}

func drainOutboxAction(c *cli.Context, lg *zap.Logger, pool *pgxpool.Pool) error {
	rate, err := parseRate(c.String("commission-rate"))
	if err != nil {
		return err
	}
	settingsSvc := settings.NewService(repository.NewSettingsRepository(pool), settings.Defaults{CommissionRate: rate})

	relay, err := outbox.NewRelay(repository.NewOutboxRepository(pool), outbox.Config{
		BatchSize:   c.Int("batch-size"),
		MaxAttempts: c.Int("max-attempts"),
	}, lg.Named("outbox"), noop.NewMeterProvider())
	if err != nil {
		return err
	}
	relay.Handle(outbox.KindCourierAssign, courier.NewService(repository.NewCourierRepository(pool)).Handler())
	for kind, h := range referral.NewService(repository.NewReferralRepository(pool), settingsSvc).Handlers() {
		relay.Handle(kind, h)
	}

	n, err := relay.Drain(c.Context)
	if err != nil {
		return err
	}
	lg.Info("Outbox drained", zap.Int("handled", n))
	return nil
}

func purgeSessionsAction(c *cli.Context, lg *zap.Logger, pool *pgxpool.Pool) error {
	n, err := repository.NewSessionRepository(pool).PurgeExpired(c.Context)
	if err != nil {
		return err
	}
	lg.Info("Expired sessions purged", zap.Int64("deleted", n))
	return nil
}

func parseRate(raw string) (decimal.Decimal, error) {
	rate, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "parse commission rate")
	}
	return settings.ClampCommission(rate), nil
}
