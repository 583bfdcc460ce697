package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/referral"
)

const (
	getReferralOrderSQL = `SELECT o.id, o.status, COALESCE(o.user_id, 0), COALESCE(u.referred_by, 0)
		FROM orders o LEFT JOIN users u ON u.id = o.user_id
		WHERE o.id = $1`

	listReferralItemsSQL = `SELECT oi.product_id, oi.quantity, oi.price, p.affiliate_commission
		FROM order_items oi JOIN products p ON p.id = oi.product_id
		WHERE oi.order_id = $1 ORDER BY oi.id`

	getEarningByOrderSQL = `SELECT id, order_id, user_id, amount, status, created_at
		FROM referral_earnings WHERE order_id = $1`

	insertEarningSQL = `INSERT INTO referral_earnings (order_id, user_id, amount, status)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (order_id) DO NOTHING
		RETURNING id, created_at`

	markEarningPaidSQL = `UPDATE referral_earnings SET status = 'paid', updated_at = now()
		WHERE id = $1 AND status = 'pending'
		RETURNING user_id, amount`

	lockEarningSQL = `SELECT user_id, amount, status FROM referral_earnings WHERE id = $1 FOR UPDATE`

	cancelEarningSQL = `UPDATE referral_earnings SET status = 'cancelled', updated_at = now() WHERE id = $1`

	adjustBalanceSQL = `UPDATE users SET referral_balance = referral_balance + $2 WHERE id = $1`
)

var _ referral.Repository = (*ReferralRepository)(nil)

// ReferralRepository implements referral.Repository backed by PostgreSQL.
// Balance changes share the transaction of the earning they belong to.
type ReferralRepository struct {
	pool *pgxpool.Pool
}

// NewReferralRepository returns a ReferralRepository that uses the given pool.
func NewReferralRepository(pool *pgxpool.Pool) *ReferralRepository {
	return &ReferralRepository{pool: pool}
}

// OrderContext returns the order status, buyer, referrer and items.
func (r *ReferralRepository) OrderContext(ctx context.Context, orderID int64) (*referral.OrderContext, error) {
	var (
		oc     referral.OrderContext
		status string
	)
	err := r.pool.QueryRow(ctx, getReferralOrderSQL, orderID).Scan(&oc.OrderID, &status, &oc.BuyerID, &oc.ReferrerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %d: %w", orderID, err)
	}
	oc.Status = order.Status(status)

	rows, err := r.pool.Query(ctx, listReferralItemsSQL, orderID)
	if err != nil {
		return nil, fmt.Errorf("listing items of order %d: %w", orderID, err)
	}
	oc.Items, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (referral.Item, error) {
		var (
			it         referral.Item
			commission decimal.NullDecimal
		)
		err := row.Scan(&it.ProductID, &it.Quantity, &it.UnitPrice, &commission)
		if commission.Valid {
			c := commission.Decimal
			it.Commission = &c
		}
		return it, err
	})
	if err != nil {
		return nil, fmt.Errorf("listing items of order %d: %w", orderID, err)
	}
	return &oc, nil
}

// FindByOrderID returns referral.ErrNotFound when the order has no earning.
func (r *ReferralRepository) FindByOrderID(ctx context.Context, orderID int64) (*referral.Earning, error) {
	var (
		e      referral.Earning
		status string
	)
	err := r.pool.QueryRow(ctx, getEarningByOrderSQL, orderID).
		Scan(&e.ID, &e.OrderID, &e.UserID, &e.Amount, &status, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, referral.ErrNotFound
		}
		return nil, fmt.Errorf("getting earning of order %d: %w", orderID, err)
	}
	e.Status = referral.Status(status)
	return &e, nil
}

// CreatePending inserts a pending earning.
func (r *ReferralRepository) CreatePending(ctx context.Context, e *referral.Earning) error {
	return insertEarning(ctx, r.pool, e)
}

// CreatePaid inserts a paid earning and credits the referrer.
func (r *ReferralRepository) CreatePaid(ctx context.Context, e *referral.Earning) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if err := insertEarning(ctx, tx, e); err != nil {
			return err
		}
		return adjustBalance(ctx, tx, e.UserID, e.Amount)
	})
}

// MarkPaid pays a pending earning and credits the referrer.
func (r *ReferralRepository) MarkPaid(ctx context.Context, id int64) (bool, error) {
	changed := false
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var (
			userID int64
			amount decimal.Decimal
		)
		err := tx.QueryRow(ctx, markEarningPaidSQL, id).Scan(&userID, &amount)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil
			}
			return fmt.Errorf("paying earning %d: %w", id, err)
		}
		changed = true
		return adjustBalance(ctx, tx, userID, amount)
	})
	return changed, err
}

// MarkCancelled cancels an earning and takes a paid amount back.
func (r *ReferralRepository) MarkCancelled(ctx context.Context, id int64) (bool, error) {
	changed := false
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var (
			userID int64
			amount decimal.Decimal
			status string
		)
		err := tx.QueryRow(ctx, lockEarningSQL, id).Scan(&userID, &amount, &status)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return referral.ErrNotFound
			}
			return fmt.Errorf("locking earning %d: %w", id, err)
		}
		if referral.Status(status) == referral.StatusCancelled {
			return nil
		}
		if _, err := tx.Exec(ctx, cancelEarningSQL, id); err != nil {
			return fmt.Errorf("cancelling earning %d: %w", id, err)
		}
		changed = true
		if referral.Status(status) == referral.StatusPaid {
			return adjustBalance(ctx, tx, userID, amount.Neg())
		}
		return nil
	})
	return changed, err
}

func insertEarning(ctx context.Context, q querier, e *referral.Earning) error {
	err := q.QueryRow(ctx, insertEarningSQL, e.OrderID, e.UserID, e.Amount, string(e.Status)).
		Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return referral.ErrDuplicate
		}
		return fmt.Errorf("creating earning for order %d: %w", e.OrderID, err)
	}
	return nil
}

func adjustBalance(ctx context.Context, q querier, userID int64, delta decimal.Decimal) error {
	if _, err := q.Exec(ctx, adjustBalanceSQL, userID, delta); err != nil {
		return fmt.Errorf("adjusting referral balance of user %d: %w", userID, err)
	}
	return nil
}
