// Package cart implements the shopping cart over two backings: the session
// map for guests and persisted rows for authenticated customers.
package cart

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/pricing"
	"github.com/xenking/storefront/internal/domain/session"
)

// MaxQuantityPerProduct is the most units of one product a cart may hold.
const MaxQuantityPerProduct = 3

// Cart rule violations. All of them leave the cart unchanged.
var (
	ErrProductRequired        = errors.New("product_id is required")
	ErrInvalidQuantity        = errors.New("quantity must be at least 1")
	ErrInvalidAction          = errors.New("action must be increase or decrease")
	ErrQuantityCapExceeded    = fmt.Errorf("maximum %d items allowed per product", MaxQuantityPerProduct)
	ErrInsufficientStock      = errors.New("insufficient stock")
	ErrMinimumQuantityReached = errors.New("minimum quantity is 1, use remove instead")
	ErrItemNotFound           = errors.New("cart item not found")
	ErrEmptyCart              = errors.New("cart is empty")
	ErrNoSession              = errors.New("session is required")
	ErrGuestMerge             = errors.New("merging a guest cart requires a signed in customer")
)

// StockError reports a requested quantity above the available stock.
type StockError struct {
	ProductID int64
	Available int
}

func (e *StockError) Error() string {
	return fmt.Sprintf("only %d items available in stock", e.Available)
}

// Is matches ErrInsufficientStock.
func (e *StockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// IsRejection reports whether err is a cart rule violation as opposed to a
// storage failure.
func IsRejection(err error) bool {
	for _, target := range []error{
		ErrProductRequired,
		ErrInvalidQuantity,
		ErrInvalidAction,
		ErrQuantityCapExceeded,
		ErrInsufficientStock,
		ErrMinimumQuantityReached,
		ErrItemNotFound,
		ErrEmptyCart,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// Line is one product in a cart.
type Line struct {
	// ItemID is the cart row id for customers and the session item id for
	// guests.
	ItemID    int64
	ProductID int64
	Name      string
	Quantity  int
	UnitPrice decimal.Decimal
	Color     string
	Size      string
	// Stock is the product stock when known. Guest lines carry -1 until
	// the product is looked up.
	Stock int
}

// Subtotal returns UnitPrice * Quantity.
func (l Line) Subtotal() decimal.Decimal {
	return l.pricing().Subtotal()
}

func (l Line) pricing() pricing.Line {
	return pricing.Line{ProductID: l.ProductID, Quantity: l.Quantity, UnitPrice: l.UnitPrice}
}

func pricingLines(lines []Line) []pricing.Line {
	out := make([]pricing.Line, len(lines))
	for i, l := range lines {
		out[i] = l.pricing()
	}
	return out
}

// Scope identifies whose cart an operation works on. UserID zero means a
// guest, whose cart lives in Session.
type Scope struct {
	UserID  int64
	Session *session.Session
}

// IsGuest reports whether the scope has no signed in customer.
func (s Scope) IsGuest() bool {
	return s.UserID == 0
}

// Repository persists carts of signed in customers. Reads join the product
// table so Name, UnitPrice and Stock reflect the current catalog.
type Repository interface {
	Lines(ctx context.Context, userID int64) ([]Line, error)
	Line(ctx context.Context, userID, productID int64) (Line, bool, error)
	// Upsert sets the quantity of the (userID, ProductID) row.
	Upsert(ctx context.Context, userID int64, l Line) (Line, error)
	Delete(ctx context.Context, userID, productID int64) (bool, error)
	// DeleteItem removes a row by id, filtered by owner.
	DeleteItem(ctx context.Context, userID, itemID int64) (bool, error)
	Clear(ctx context.Context, userID int64) error
	Count(ctx context.Context, userID int64) (int, error)
}

// Store is one physical cart backing.
type Store interface {
	Lines(ctx context.Context) ([]Line, error)
	Line(ctx context.Context, productID int64) (Line, bool, error)
	Put(ctx context.Context, l Line) (Line, error)
	Delete(ctx context.Context, productID int64) (bool, error)
	DeleteItem(ctx context.Context, itemID int64) (bool, error)
	Clear(ctx context.Context) error
	Count(ctx context.Context) (int, error)
}

type guestStore struct {
	s   *session.Session
	now func() time.Time
}

func (g guestStore) Lines(_ context.Context) ([]Line, error) {
	guest := g.s.GuestLines()
	lines := make([]Line, len(guest))
	for i, gl := range guest {
		lines[i] = fromGuest(gl)
	}
	return lines, nil
}

func (g guestStore) Line(_ context.Context, productID int64) (Line, bool, error) {
	gl, ok := g.s.GuestLine(productID)
	if !ok {
		return Line{}, false, nil
	}
	return fromGuest(gl), true, nil
}

func (g guestStore) Put(_ context.Context, l Line) (Line, error) {
	gl := session.GuestLine{
		ProductID: l.ProductID,
		Name:      l.Name,
		UnitPrice: l.UnitPrice,
		Quantity:  l.Quantity,
		Color:     l.Color,
		Size:      l.Size,
	}
	if _, ok := g.s.GuestLine(l.ProductID); !ok {
		gl.AddedAt = g.now()
	}
	saved := fromGuest(g.s.PutGuestLine(gl))
	saved.Stock = l.Stock
	return saved, nil
}

func (g guestStore) Delete(_ context.Context, productID int64) (bool, error) {
	return g.s.DeleteGuestLine(productID), nil
}

func (g guestStore) DeleteItem(_ context.Context, itemID int64) (bool, error) {
	return g.s.DeleteGuestItem(itemID), nil
}

func (g guestStore) Clear(_ context.Context) error {
	g.s.ClearGuest()
	return nil
}

func (g guestStore) Count(_ context.Context) (int, error) {
	return g.s.GuestCount(), nil
}

func fromGuest(gl session.GuestLine) Line {
	return Line{
		ItemID:    gl.ItemID,
		ProductID: gl.ProductID,
		Name:      gl.Name,
		Quantity:  gl.Quantity,
		UnitPrice: gl.UnitPrice,
		Color:     gl.Color,
		Size:      gl.Size,
		Stock:     -1,
	}
}

type userStore struct {
	repo   Repository
	userID int64
}

func (u userStore) Lines(ctx context.Context) ([]Line, error) {
	return u.repo.Lines(ctx, u.userID)
}

func (u userStore) Line(ctx context.Context, productID int64) (Line, bool, error) {
	return u.repo.Line(ctx, u.userID, productID)
}

func (u userStore) Put(ctx context.Context, l Line) (Line, error) {
	return u.repo.Upsert(ctx, u.userID, l)
}

func (u userStore) Delete(ctx context.Context, productID int64) (bool, error) {
	return u.repo.Delete(ctx, u.userID, productID)
}

func (u userStore) DeleteItem(ctx context.Context, itemID int64) (bool, error) {
	return u.repo.DeleteItem(ctx, u.userID, itemID)
}

func (u userStore) Clear(ctx context.Context) error {
	return u.repo.Clear(ctx, u.userID)
}

func (u userStore) Count(ctx context.Context) (int, error) {
	return u.repo.Count(ctx, u.userID)
}
