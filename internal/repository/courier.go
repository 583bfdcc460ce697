package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/courier"
	"github.com/xenking/storefront/internal/domain/order"
)

const (
	getCourierSQL = `SELECT c.id, c.name, c.city, c.status = 'active',
		(SELECT COUNT(*) FROM orders o WHERE o.courier_id = c.id AND o.status = ANY($2))
		FROM couriers c WHERE c.id = $1`

	getAssignedCourierSQL = `SELECT COALESCE(courier_id, 0) FROM orders WHERE id = $1`

	// Order items carry the seller at checkout; older rows fall back to the
	// product's current seller.
	getSellerCitySQL = `SELECT s.city
		FROM order_items oi
		JOIN products p ON p.id = oi.product_id
		JOIN sellers s ON s.id = COALESCE(oi.seller_id, p.seller_id)
		WHERE oi.order_id = $1 AND TRIM(s.city) <> ''
		ORDER BY oi.id
		LIMIT 1`

	listActiveCouriersInCitySQL = `SELECT c.id, c.name, c.city, TRUE, COUNT(o.id)
		FROM couriers c
		LEFT JOIN orders o ON o.courier_id = c.id AND o.status = ANY($2)
		WHERE c.status = 'active' AND LOWER(TRIM(c.city)) = LOWER(TRIM($1))
		GROUP BY c.id
		ORDER BY COUNT(o.id), c.id`

	assignCourierSQL = `UPDATE orders SET courier_id = $2, updated_at = now() WHERE id = $1`

	createCourierSQL = `INSERT INTO couriers (name, city, status) VALUES ($1, $2, $3) RETURNING id`
)

var _ courier.Repository = (*CourierRepository)(nil)

// CourierRepository implements courier.Repository backed by PostgreSQL.
type CourierRepository struct {
	pool *pgxpool.Pool
}

// NewCourierRepository returns a CourierRepository that uses the given pool.
func NewCourierRepository(pool *pgxpool.Pool) *CourierRepository {
	return &CourierRepository{pool: pool}
}

func loadStatuses() []string {
	out := make([]string, len(order.CourierLoadStatuses))
	for i, st := range order.CourierLoadStatuses {
		out[i] = string(st)
	}
	return out
}

// Get returns a courier with its current load.
func (r *CourierRepository) Get(ctx context.Context, id int64) (*courier.Courier, error) {
	rows, err := r.pool.Query(ctx, getCourierSQL, id, loadStatuses())
	if err != nil {
		return nil, fmt.Errorf("getting courier %d: %w", id, err)
	}
	c, err := pgx.CollectExactlyOneRow(rows, scanCourier)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, courier.ErrNotFound
		}
		return nil, fmt.Errorf("getting courier %d: %w", id, err)
	}
	return &c, nil
}

// AssignedCourier returns the order's courier id or zero.
func (r *CourierRepository) AssignedCourier(ctx context.Context, orderID int64) (int64, error) {
	var id int64
	if err := r.pool.QueryRow(ctx, getAssignedCourierSQL, orderID).Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, order.ErrNotFound
		}
		return 0, fmt.Errorf("getting courier of order %d: %w", orderID, err)
	}
	return id, nil
}

// SellerCity returns the first non-empty seller city of the order's items.
func (r *CourierRepository) SellerCity(ctx context.Context, orderID int64) (string, error) {
	var city string
	if err := r.pool.QueryRow(ctx, getSellerCitySQL, orderID).Scan(&city); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("getting seller city of order %d: %w", orderID, err)
	}
	return city, nil
}

// ActiveInCity lists active couriers of the city, least loaded first.
func (r *CourierRepository) ActiveInCity(ctx context.Context, city string) ([]courier.Courier, error) {
	rows, err := r.pool.Query(ctx, listActiveCouriersInCitySQL, city, loadStatuses())
	if err != nil {
		return nil, fmt.Errorf("listing couriers in %q: %w", city, err)
	}
	return pgx.CollectRows(rows, scanCourier)
}

// Assign sets the order's courier without touching its status.
func (r *CourierRepository) Assign(ctx context.Context, orderID, courierID int64) error {
	tag, err := r.pool.Exec(ctx, assignCourierSQL, orderID, courierID)
	if err != nil {
		return fmt.Errorf("assigning courier %d to order %d: %w", courierID, orderID, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

// Create inserts a courier and sets c.ID.
func (r *CourierRepository) Create(ctx context.Context, c *courier.Courier) error {
	status := "active"
	if !c.Active {
		status = "inactive"
	}
	if err := r.pool.QueryRow(ctx, createCourierSQL, c.Name, c.City, status).Scan(&c.ID); err != nil {
		return fmt.Errorf("creating courier %q: %w", c.Name, err)
	}
	return nil
}

func scanCourier(row pgx.CollectableRow) (courier.Courier, error) {
	var c courier.Courier
	err := row.Scan(&c.ID, &c.Name, &c.City, &c.Active, &c.Load)
	return c, err
}
