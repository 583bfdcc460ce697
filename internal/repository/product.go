package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/product"
)

const (
	productColumns = `id, name, slug, price, sale_price, stock_quantity,
		COALESCE(seller_id, 0), affiliate_commission, active`

	listProductsSQL = `SELECT ` + productColumns + ` FROM products WHERE active ORDER BY id`

	getProductByIDSQL = `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	getProductsByIDsSQL = `SELECT ` + productColumns + ` FROM products WHERE id = ANY($1)`

	upsertProductSQL = `INSERT INTO products
		(name, slug, price, sale_price, stock_quantity, seller_id, affiliate_commission, active)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, 0), $7, $8)
		ON CONFLICT (slug) DO UPDATE SET
			name = EXCLUDED.name,
			price = EXCLUDED.price,
			sale_price = EXCLUDED.sale_price,
			stock_quantity = EXCLUDED.stock_quantity,
			seller_id = EXCLUDED.seller_id,
			affiliate_commission = EXCLUDED.affiliate_commission,
			active = EXCLUDED.active
		RETURNING id`
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// List returns the active products ordered by ID.
func (r *ProductRepository) List(ctx context.Context) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, listProductsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// GetByID returns a single product by its identifier, active or not.
func (r *ProductRepository) GetByID(ctx context.Context, id int64) (*product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting product %d: %w", id, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("getting product %d: %w", id, err)
	}
	return &p, nil
}

// GetByIDs returns products matching any of the given IDs.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []int64) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductsByIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting products by ids: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// Upsert inserts the product or updates the one with the same slug, and sets
// p.ID.
func (r *ProductRepository) Upsert(ctx context.Context, p *product.Product) error {
	var commission decimal.NullDecimal
	if p.AffiliateCommission != nil {
		commission = decimal.NewNullDecimal(*p.AffiliateCommission)
	}
	err := r.pool.QueryRow(ctx, upsertProductSQL,
		p.Name, p.Slug, p.Price, p.SalePrice, p.StockQuantity, p.SellerID, commission, p.Active,
	).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("upserting product %q: %w", p.Slug, err)
	}
	return nil
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var (
		p          product.Product
		commission decimal.NullDecimal
	)
	err := row.Scan(
		&p.ID, &p.Name, &p.Slug, &p.Price, &p.SalePrice, &p.StockQuantity,
		&p.SellerID, &commission, &p.Active,
	)
	if commission.Valid {
		c := commission.Decimal
		p.AffiliateCommission = &c
	}
	return p, err
}
