package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/delivery"
)

const (
	listChargesSQL = `SELECT id, location_name, charge FROM delivery_charges ORDER BY location_name`

	findChargeSQL = `SELECT id, location_name, charge FROM delivery_charges
		WHERE LOWER(TRIM(location_name)) = LOWER(TRIM($1))`

	createChargeSQL = `INSERT INTO delivery_charges (location_name, charge) VALUES ($1, $2) RETURNING id`

	deleteChargeSQL = `DELETE FROM delivery_charges WHERE id = $1`

	setAllChargesSQL = `UPDATE delivery_charges SET charge = $1`
)

var _ delivery.Repository = (*DeliveryRepository)(nil)

// DeliveryRepository implements delivery.Repository backed by PostgreSQL.
type DeliveryRepository struct {
	pool *pgxpool.Pool
}

// NewDeliveryRepository returns a DeliveryRepository that uses the given pool.
func NewDeliveryRepository(pool *pgxpool.Pool) *DeliveryRepository {
	return &DeliveryRepository{pool: pool}
}

// List returns every charge ordered by location.
func (r *DeliveryRepository) List(ctx context.Context) ([]delivery.Charge, error) {
	rows, err := r.pool.Query(ctx, listChargesSQL)
	if err != nil {
		return nil, fmt.Errorf("listing delivery charges: %w", err)
	}
	return pgx.CollectRows(rows, scanCharge)
}

// FindByLocation matches the location case-insensitively.
func (r *DeliveryRepository) FindByLocation(ctx context.Context, location string) (*delivery.Charge, error) {
	rows, err := r.pool.Query(ctx, findChargeSQL, location)
	if err != nil {
		return nil, fmt.Errorf("finding delivery charge: %w", err)
	}
	c, err := pgx.CollectExactlyOneRow(rows, scanCharge)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, delivery.ErrNotFound
		}
		return nil, fmt.Errorf("finding delivery charge: %w", err)
	}
	return &c, nil
}

// Create inserts the charge and sets c.ID.
func (r *DeliveryRepository) Create(ctx context.Context, c *delivery.Charge) error {
	err := r.pool.QueryRow(ctx, createChargeSQL, c.Location, c.Amount).Scan(&c.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return delivery.ErrDuplicate
		}
		return fmt.Errorf("creating delivery charge: %w", err)
	}
	return nil
}

// Delete removes a charge by id.
func (r *DeliveryRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, deleteChargeSQL, id)
	if err != nil {
		return fmt.Errorf("deleting delivery charge %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return delivery.ErrNotFound
	}
	return nil
}

// SetAllAmounts overwrites every location's charge.
func (r *DeliveryRepository) SetAllAmounts(ctx context.Context, amount decimal.Decimal) (int64, error) {
	tag, err := r.pool.Exec(ctx, setAllChargesSQL, amount)
	if err != nil {
		return 0, fmt.Errorf("updating delivery charges: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanCharge(row pgx.CollectableRow) (delivery.Charge, error) {
	var c delivery.Charge
	err := row.Scan(&c.ID, &c.Location, &c.Amount)
	return c, err
}
