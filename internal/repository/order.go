package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/outbox"
)

const (
	orderColumns = `id, order_number, COALESCE(user_id, 0), status,
		customer_name, phone, email, address, city,
		subtotal, discount, tax_rate, tax, delivery_fee, total,
		coupon_code, payment_method, courier_id, created_at, updated_at`

	createOrderSQL = `INSERT INTO orders
		(order_number, user_id, status, customer_name, phone, email, address, city,
		 subtotal, discount, tax_rate, tax, delivery_fee, total, coupon_code, payment_method)
		VALUES ($1, NULLIF($2, 0), $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING id, created_at, updated_at`

	decrementStockSQL = `UPDATE products SET stock_quantity = GREATEST(0, stock_quantity - $2) WHERE id = $1`

	recordCouponUsageSQL = `INSERT INTO coupon_usages (coupon_id, user_id, order_id) VALUES ($1, NULLIF($2, 0), $3)`

	incrementCouponUsedSQL = `UPDATE coupons SET used_count = used_count + 1 WHERE id = $1`

	getOrderSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	listOrdersByUserSQL = `SELECT ` + orderColumns + ` FROM orders WHERE user_id = $1 ORDER BY created_at DESC, id DESC`

	listOrderItemsSQL = `SELECT order_id, product_id, COALESCE(seller_id, 0), name, quantity, price, color, size
		FROM order_items WHERE order_id = ANY($1) ORDER BY id`

	updateOrderStatusSQL = `UPDATE orders SET status = $2, updated_at = now() WHERE id = $1`

	insertOutboxEventSQL = `INSERT INTO outbox_events (kind, order_id) VALUES ($1, $2)`
)

var orderItemColumns = []string{"order_id", "product_id", "seller_id", "name", "quantity", "price", "color", "size"}

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists the order, its items, the stock decrement, the coupon
// usage and the outbox events in one transaction.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order, opts order.CreateOptions) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, createOrderSQL,
			o.Number, o.UserID, string(o.Status),
			o.Customer.Name, o.Customer.Phone, o.Customer.Email, o.Customer.Address, o.Customer.City,
			o.Subtotal, o.Discount, o.TaxRate, o.Tax, o.DeliveryFee, o.Total,
			o.CouponCode, o.PaymentMethod,
		).Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
		if err != nil {
			return fmt.Errorf("creating order %q: %w", o.Number, err)
		}

		rows := make([][]any, len(o.Items))
		for i, it := range o.Items {
			var seller any
			if it.SellerID != 0 {
				seller = it.SellerID
			}
			rows[i] = []any{o.ID, it.ProductID, seller, it.Name, it.Quantity, it.UnitPrice, it.Color, it.Size}
		}
		if _, err := tx.CopyFrom(ctx, pgx.Identifier{"order_items"}, orderItemColumns, pgx.CopyFromRows(rows)); err != nil {
			return fmt.Errorf("inserting items of order %q: %w", o.Number, err)
		}

		batch := &pgx.Batch{}
		for _, it := range o.Items {
			batch.Queue(decrementStockSQL, it.ProductID, it.Quantity)
		}
		if opts.CouponID != 0 {
			batch.Queue(recordCouponUsageSQL, opts.CouponID, o.UserID, o.ID)
			batch.Queue(incrementCouponUsedSQL, opts.CouponID)
		}
		for _, kind := range opts.Events {
			batch.Queue(insertOutboxEventSQL, string(kind), o.ID)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("finalizing order %q: %w", o.Number, err)
		}
		return nil
	})
}

// Get returns an order with its items.
func (r *OrderRepository) Get(ctx context.Context, id int64) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %d: %w", id, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %d: %w", id, err)
	}

	orders := []order.Order{o}
	if err := r.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

// ListByUser returns the customer's orders, newest first.
func (r *OrderRepository) ListByUser(ctx context.Context, userID int64) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listOrdersByUserSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("listing orders of user %d: %w", userID, err)
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, fmt.Errorf("listing orders of user %d: %w", userID, err)
	}
	if err := r.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// UpdateStatus writes the status and the outbox events in one transaction.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id int64, status order.Status, events []outbox.Kind) (*order.Order, error) {
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, updateOrderStatusSQL, id, string(status))
		if err != nil {
			return fmt.Errorf("updating status of order %d: %w", id, err)
		}
		if tag.RowsAffected() == 0 {
			return order.ErrNotFound
		}
		return insertEvents(ctx, tx, id, events)
	})
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, id)
}

func (r *OrderRepository) attachItems(ctx context.Context, orders []order.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]int64, len(orders))
	index := make(map[int64]int, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		index[o.ID] = i
	}

	rows, err := r.pool.Query(ctx, listOrderItemsSQL, ids)
	if err != nil {
		return fmt.Errorf("listing order items: %w", err)
	}
	var (
		orderID int64
		it      order.Item
	)
	_, err = pgx.ForEachRow(rows,
		[]any{&orderID, &it.ProductID, &it.SellerID, &it.Name, &it.Quantity, &it.UnitPrice, &it.Color, &it.Size},
		func() error {
			i := index[orderID]
			orders[i].Items = append(orders[i].Items, it)
			return nil
		},
	)
	if err != nil {
		return fmt.Errorf("listing order items: %w", err)
	}
	return nil
}

func insertEvents(ctx context.Context, q querier, orderID int64, events []outbox.Kind) error {
	for _, kind := range events {
		if _, err := q.Exec(ctx, insertOutboxEventSQL, string(kind), orderID); err != nil {
			return fmt.Errorf("queueing %s for order %d: %w", kind, orderID, err)
		}
	}
	return nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o      order.Order
		status string
	)
	err := row.Scan(
		&o.ID, &o.Number, &o.UserID, &status,
		&o.Customer.Name, &o.Customer.Phone, &o.Customer.Email, &o.Customer.Address, &o.Customer.City,
		&o.Subtotal, &o.Discount, &o.TaxRate, &o.Tax, &o.DeliveryFee, &o.Total,
		&o.CouponCode, &o.PaymentMethod, &o.CourierID, &o.CreatedAt, &o.UpdatedAt,
	)
	o.Status = order.Status(status)
	return o, err
}
