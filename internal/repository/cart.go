package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/cart"
)

const (
	// effectivePriceExpr mirrors product.EffectivePrice.
	effectivePriceExpr = `CASE WHEN p.sale_price > 0 AND p.sale_price < p.price THEN p.sale_price ELSE p.price END`

	cartLineColumns = `ci.id, ci.product_id, p.name, ci.quantity, ` + effectivePriceExpr + `,
		ci.color, ci.size, p.stock_quantity`

	listCartLinesSQL = `SELECT ` + cartLineColumns + `
		FROM cart_items ci JOIN products p ON p.id = ci.product_id
		WHERE ci.user_id = $1 AND p.active
		ORDER BY ci.id`

	getCartLineSQL = `SELECT ` + cartLineColumns + `
		FROM cart_items ci JOIN products p ON p.id = ci.product_id
		WHERE ci.user_id = $1 AND ci.product_id = $2`

	upsertCartLineSQL = `WITH ci AS (
			INSERT INTO cart_items (user_id, product_id, quantity, color, size)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (user_id, product_id) DO UPDATE SET
				quantity = EXCLUDED.quantity,
				color = EXCLUDED.color,
				size = EXCLUDED.size
			RETURNING id, product_id, quantity, color, size
		)
		SELECT ` + cartLineColumns + ` FROM ci JOIN products p ON p.id = ci.product_id`

	deleteCartLineSQL = `DELETE FROM cart_items WHERE user_id = $1 AND product_id = $2`

	deleteCartItemSQL = `DELETE FROM cart_items WHERE user_id = $1 AND id = $2`

	clearCartSQL = `DELETE FROM cart_items WHERE user_id = $1`

	countCartSQL = `SELECT COALESCE(SUM(ci.quantity), 0)
		FROM cart_items ci JOIN products p ON p.id = ci.product_id
		WHERE ci.user_id = $1 AND p.active`
)

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository implements cart.Repository backed by PostgreSQL. Line
// prices come from the product row at read time.
type CartRepository struct {
	pool *pgxpool.Pool
}

// NewCartRepository returns a CartRepository that uses the given pool.
func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{pool: pool}
}

// Lines returns the customer's cart lines for active products.
func (r *CartRepository) Lines(ctx context.Context, userID int64) ([]cart.Line, error) {
	rows, err := r.pool.Query(ctx, listCartLinesSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("listing cart of user %d: %w", userID, err)
	}
	return pgx.CollectRows(rows, scanCartLine)
}

// Line returns the customer's line for productID and whether it exists.
func (r *CartRepository) Line(ctx context.Context, userID, productID int64) (cart.Line, bool, error) {
	rows, err := r.pool.Query(ctx, getCartLineSQL, userID, productID)
	if err != nil {
		return cart.Line{}, false, fmt.Errorf("getting cart line: %w", err)
	}
	l, err := pgx.CollectExactlyOneRow(rows, scanCartLine)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return cart.Line{}, false, nil
		}
		return cart.Line{}, false, fmt.Errorf("getting cart line: %w", err)
	}
	return l, true, nil
}

// Upsert sets the quantity and options of the customer's line for
// l.ProductID.
func (r *CartRepository) Upsert(ctx context.Context, userID int64, l cart.Line) (cart.Line, error) {
	rows, err := r.pool.Query(ctx, upsertCartLineSQL, userID, l.ProductID, l.Quantity, l.Color, l.Size)
	if err != nil {
		return cart.Line{}, fmt.Errorf("upserting cart line: %w", err)
	}
	out, err := pgx.CollectExactlyOneRow(rows, scanCartLine)
	if err != nil {
		return cart.Line{}, fmt.Errorf("upserting cart line: %w", err)
	}
	return out, nil
}

// Delete removes the customer's line for productID.
func (r *CartRepository) Delete(ctx context.Context, userID, productID int64) (bool, error) {
	tag, err := r.pool.Exec(ctx, deleteCartLineSQL, userID, productID)
	if err != nil {
		return false, fmt.Errorf("deleting cart line: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// DeleteItem removes a line by row id when it belongs to userID.
func (r *CartRepository) DeleteItem(ctx context.Context, userID, itemID int64) (bool, error) {
	tag, err := r.pool.Exec(ctx, deleteCartItemSQL, userID, itemID)
	if err != nil {
		return false, fmt.Errorf("deleting cart item %d: %w", itemID, err)
	}
	return tag.RowsAffected() > 0, nil
}

// Clear empties the customer's cart.
func (r *CartRepository) Clear(ctx context.Context, userID int64) error {
	if _, err := r.pool.Exec(ctx, clearCartSQL, userID); err != nil {
		return fmt.Errorf("clearing cart of user %d: %w", userID, err)
	}
	return nil
}

// Count sums the quantities in the customer's cart.
func (r *CartRepository) Count(ctx context.Context, userID int64) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, countCartSQL, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting cart of user %d: %w", userID, err)
	}
	return n, nil
}

func scanCartLine(row pgx.CollectableRow) (cart.Line, error) {
	var l cart.Line
	err := row.Scan(&l.ItemID, &l.ProductID, &l.Name, &l.Quantity, &l.UnitPrice, &l.Color, &l.Size, &l.Stock)
	return l, err
}
