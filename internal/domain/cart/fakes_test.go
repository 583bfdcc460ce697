package cart

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/session"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

type fakeProducts struct {
	byID map[int64]*product.Product
}

func newFakeProducts(products ...product.Product) *fakeProducts {
	f := &fakeProducts{byID: make(map[int64]*product.Product)}
	for i := range products {
		p := products[i]
		f.byID[p.ID] = &p
	}
	return f
}

func (f *fakeProducts) List(_ context.Context) ([]product.Product, error) {
	out := make([]product.Product, 0, len(f.byID))
	for _, p := range f.byID {
		out = append(out, *p)
	}
	return out, nil
}

func (f *fakeProducts) GetByID(_ context.Context, id int64) (*product.Product, error) {
	p, ok := f.byID[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakeProducts) GetByIDs(_ context.Context, ids []int64) ([]product.Product, error) {
	var out []product.Product
	for _, id := range ids {
		if p, ok := f.byID[id]; ok {
			out = append(out, *p)
		}
	}
	return out, nil
}

func newProduct(id int64, name, price string, stock int) product.Product {
	return product.Product{
		ID:            id,
		Name:          name,
		Price:         d(price),
		StockQuantity: stock,
		Active:        true,
	}
}

type fakeCoupons struct {
	rules map[string]*coupon.Rule
}

func (f *fakeCoupons) FindByCode(_ context.Context, code string) (*coupon.Rule, error) {
	r, ok := f.rules[code]
	if !ok {
		return nil, coupon.ErrInvalidCoupon
	}
	cp := *r
	return &cp, nil
}

func (f *fakeCoupons) CountUserUsage(_ context.Context, _, _ int64) (int, error) {
	return 0, nil
}

func (f *fakeCoupons) Upsert(_ context.Context, r *coupon.Rule) error {
	f.rules[r.Code] = r
	return nil
}

type fixedTax decimal.Decimal

func (f fixedTax) TaxRate(_ context.Context) (decimal.Decimal, error) {
	return decimal.Decimal(f), nil
}

// memCarts joins stored rows with the product fake on read, like the SQL
// repository does.
type memCarts struct {
	mu       sync.Mutex
	products *fakeProducts
	rows     map[int64]map[int64]Line
	nextID   int64
}

func newMemCarts(products *fakeProducts) *memCarts {
	return &memCarts{products: products, rows: make(map[int64]map[int64]Line)}
}

func (m *memCarts) join(l Line) Line {
	if p, ok := m.products.byID[l.ProductID]; ok {
		l.Name = p.Name
		l.UnitPrice = p.EffectivePrice()
		l.Stock = p.StockQuantity
	}
	return l
}

func (m *memCarts) Lines(_ context.Context, userID int64) ([]Line, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Line, 0, len(m.rows[userID]))
	for _, l := range m.rows[userID] {
		out = append(out, m.join(l))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemID < out[j].ItemID })
	return out, nil
}

func (m *memCarts) Line(_ context.Context, userID, productID int64) (Line, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.rows[userID][productID]
	if !ok {
		return Line{}, false, nil
	}
	return m.join(l), true, nil
}

func (m *memCarts) Upsert(_ context.Context, userID int64, l Line) (Line, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.rows[userID] == nil {
		m.rows[userID] = make(map[int64]Line)
	}
	if prev, ok := m.rows[userID][l.ProductID]; ok {
		l.ItemID = prev.ItemID
	} else {
		m.nextID++
		l.ItemID = m.nextID
	}
	m.rows[userID][l.ProductID] = l
	return m.join(l), nil
}

func (m *memCarts) Delete(_ context.Context, userID, productID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.rows[userID][productID]; !ok {
		return false, nil
	}
	delete(m.rows[userID], productID)
	return true, nil
}

func (m *memCarts) DeleteItem(_ context.Context, userID, itemID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for pid, l := range m.rows[userID] {
		if l.ItemID == itemID {
			delete(m.rows[userID], pid)
			return true, nil
		}
	}
	return false, nil
}

func (m *memCarts) Clear(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.rows, userID)
	return nil
}

func (m *memCarts) Count(_ context.Context, userID int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, l := range m.rows[userID] {
		n += l.Quantity
	}
	return n, nil
}

type fixture struct {
	products *fakeProducts
	coupons  *fakeCoupons
	carts    *memCarts
	svc      *Service
}

func newFixture(taxRate string, products ...product.Product) *fixture {
	f := &fixture{
		products: newFakeProducts(products...),
		coupons:  &fakeCoupons{rules: make(map[string]*coupon.Rule)},
	}
	f.carts = newMemCarts(f.products)
	svc, err := NewService(
		f.products,
		coupon.NewRepoValidator(f.coupons),
		fixedTax(d(taxRate)),
		f.carts,
		noop.NewMeterProvider(),
	)
	if err != nil {
		panic(err)
	}
	svc.now = func() time.Time { return time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC) }
	f.svc = svc
	return f
}

func guestScope() Scope {
	return Scope{Session: session.New(time.Now().Add(time.Hour))}
}

func userScope(userID int64) Scope {
	return Scope{UserID: userID, Session: session.New(time.Now().Add(time.Hour))}
}
