package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product represents a catalog item available for purchase.
type Product struct {
	ID            int64
	Name          string
	Slug          string
	Price         decimal.Decimal
	SalePrice     decimal.Decimal
	StockQuantity int
	SellerID      int64
	// AffiliateCommission is the per-product referral commission percentage.
	// Nil means the store-wide default applies.
	AffiliateCommission *decimal.Decimal
	Active              bool
}

// EffectivePrice returns the price a customer pays for one unit.
func (p Product) EffectivePrice() decimal.Decimal {
	return EffectivePrice(p.Price, p.SalePrice)
}

// EffectivePrice picks the sale price when it is positive and below the list
// price, and the list price otherwise.
func EffectivePrice(price, sale decimal.Decimal) decimal.Decimal {
	if sale.IsPositive() && sale.LessThan(price) {
		return sale
	}
	return price
}

// Repository defines read operations for the product catalog.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id int64) (*Product, error)
	GetByIDs(ctx context.Context, ids []int64) ([]Product, error)
}
