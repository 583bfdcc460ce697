package handler

import (
	"context"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/courier"
	"github.com/xenking/storefront/internal/domain/delivery"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/outbox"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/session"
	"github.com/xenking/storefront/internal/domain/settings"
	"github.com/xenking/storefront/pkg/usertoken"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

type memProducts struct {
	byID map[int64]product.Product
}

func (m *memProducts) List(_ context.Context) ([]product.Product, error) {
	out := make([]product.Product, 0, len(m.byID))
	for _, p := range m.byID {
		if p.Active {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memProducts) GetByID(_ context.Context, id int64) (*product.Product, error) {
	p, ok := m.byID[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return &p, nil
}

func (m *memProducts) GetByIDs(_ context.Context, ids []int64) ([]product.Product, error) {
	var out []product.Product
	for _, id := range ids {
		if p, ok := m.byID[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

type memCoupons struct {
	mu    sync.Mutex
	rules map[string]*coupon.Rule
}

func (m *memCoupons) FindByCode(_ context.Context, code string) (*coupon.Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rules[coupon.NormalizeCode(code)]
	if !ok {
		return nil, coupon.ErrInvalidCoupon
	}
	cp := *r
	return &cp, nil
}

func (m *memCoupons) CountUserUsage(_ context.Context, _, _ int64) (int, error) {
	return 0, nil
}

func (m *memCoupons) Upsert(_ context.Context, r *coupon.Rule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.ID == 0 {
		r.ID = int64(len(m.rules) + 1)
	}
	cp := *r
	m.rules[r.Code] = &cp
	return nil
}

type memSettings struct {
	mu     sync.Mutex
	values map[string]string
}

func (m *memSettings) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *memSettings) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

type memCharges struct {
	charges []delivery.Charge
}

func (m *memCharges) List(_ context.Context) ([]delivery.Charge, error) {
	return m.charges, nil
}

func (m *memCharges) FindByLocation(_ context.Context, location string) (*delivery.Charge, error) {
	for _, c := range m.charges {
		if delivery.NormalizeLocation(c.Location) == delivery.NormalizeLocation(location) {
			return &c, nil
		}
	}
	return nil, delivery.ErrNotFound
}

func (m *memCharges) Create(ctx context.Context, c *delivery.Charge) error {
	if _, err := m.FindByLocation(ctx, c.Location); err == nil {
		return delivery.ErrDuplicate
	}
	c.ID = int64(len(m.charges) + 1)
	m.charges = append(m.charges, *c)
	return nil
}

func (m *memCharges) Delete(_ context.Context, id int64) error {
	for i, c := range m.charges {
		if c.ID == id {
			m.charges = append(m.charges[:i], m.charges[i+1:]...)
			return nil
		}
	}
	return delivery.ErrNotFound
}

func (m *memCharges) SetAllAmounts(_ context.Context, amount decimal.Decimal) (int64, error) {
	for i := range m.charges {
		m.charges[i].Amount = amount
	}
	return int64(len(m.charges)), nil
}

// memCarts stores customer cart rows and joins the catalog on read.
type memCarts struct {
	mu       sync.Mutex
	products *memProducts
	rows     map[int64]map[int64]cart.Line
	nextID   int64
}

func (m *memCarts) join(l cart.Line) cart.Line {
	if p, ok := m.products.byID[l.ProductID]; ok {
		l.Name = p.Name
		l.UnitPrice = p.EffectivePrice()
		l.Stock = p.StockQuantity
	}
	return l
}

func (m *memCarts) Lines(_ context.Context, userID int64) ([]cart.Line, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]cart.Line, 0, len(m.rows[userID]))
	for _, l := range m.rows[userID] {
		out = append(out, m.join(l))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemID < out[j].ItemID })
	return out, nil
}

func (m *memCarts) Line(_ context.Context, userID, productID int64) (cart.Line, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.rows[userID][productID]
	if !ok {
		return cart.Line{}, false, nil
	}
	return m.join(l), true, nil
}

func (m *memCarts) Upsert(_ context.Context, userID int64, l cart.Line) (cart.Line, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rows[userID] == nil {
		m.rows[userID] = make(map[int64]cart.Line)
	}
	if existing, ok := m.rows[userID][l.ProductID]; ok {
		l.ItemID = existing.ItemID
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
	_, ok := m.rows[userID][productID]
	delete(m.rows[userID], productID)
	return ok, nil
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

type memOrders struct {
	mu     sync.Mutex
	orders map[int64]*order.Order
	events []outbox.Kind
}

func (m *memOrders) Create(_ context.Context, o *order.Order, opts order.CreateOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o.ID = int64(len(m.orders) + 1)
	o.CreatedAt = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	o.UpdatedAt = o.CreatedAt
	cp := *o
	m.orders[o.ID] = &cp
	m.events = append(m.events, opts.Events...)
	return nil
}

func (m *memOrders) Get(_ context.Context, id int64) (*order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *memOrders) ListByUser(_ context.Context, userID int64) ([]order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []order.Order
	for _, o := range m.orders {
		if o.UserID == userID {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *memOrders) UpdateStatus(_ context.Context, id int64, status order.Status, events []outbox.Kind) (*order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	o.Status = status
	m.events = append(m.events, events...)
	cp := *o
	return &cp, nil
}

// memCouriers shares the order fake so assignments show up on orders.
type memCouriers struct {
	orders   *memOrders
	couriers map[int64]courier.Courier
	city     string
}

func (m *memCouriers) Get(_ context.Context, id int64) (*courier.Courier, error) {
	c, ok := m.couriers[id]
	if !ok {
		return nil, courier.ErrNotFound
	}
	return &c, nil
}

func (m *memCouriers) AssignedCourier(ctx context.Context, orderID int64) (int64, error) {
	o, err := m.orders.Get(ctx, orderID)
	if err != nil {
		return 0, err
	}
	if o.CourierID == nil {
		return 0, nil
	}
	return *o.CourierID, nil
}

func (m *memCouriers) SellerCity(_ context.Context, _ int64) (string, error) {
	return m.city, nil
}

func (m *memCouriers) ActiveInCity(_ context.Context, city string) ([]courier.Courier, error) {
	var out []courier.Courier
	for _, c := range m.couriers {
		if c.Active && delivery.NormalizeLocation(c.City) == delivery.NormalizeLocation(city) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memCouriers) Assign(_ context.Context, orderID, courierID int64) error {
	m.orders.mu.Lock()
	defer m.orders.mu.Unlock()
	o, ok := m.orders.orders[orderID]
	if !ok {
		return order.ErrNotFound
	}
	id := courierID
	o.CourierID = &id
	return nil
}

type memKeys struct {
	byHash map[string]*auth.APIKeyInfo
}

func (m *memKeys) FindByHash(_ context.Context, hash string) (*auth.APIKeyInfo, error) {
	k, ok := m.byHash[hash]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return k, nil
}

const (
	testPepper   = "pepper"
	adminKey     = "admin-key"
	readOnlyKey  = "read-only-key"
	customerID   = int64(42)
	tokenSecret  = "token-secret"
	sessionName  = "shop_session"
	tokenIssuer  = "storefront-test"
	testTaxRate  = "12"
	defaultFee   = "300"
	widgetID     = int64(1)
	gadgetID     = int64(2)
	soldOutID    = int64(3)
	promoCode    = "SAVE10"
	fixedOffCode = "FLAT50"
)

type fixture struct {
	t        *testing.T
	server   *httptest.Server
	client   *http.Client
	orders   *memOrders
	carts    *memCarts
	settings *memSettings
	tokens   *usertoken.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	products := &memProducts{byID: map[int64]product.Product{
		widgetID:  {ID: widgetID, Name: "Widget", Slug: "widget", Price: d("100"), StockQuantity: 5, SellerID: 9, Active: true},
		gadgetID:  {ID: gadgetID, Name: "Gadget", Slug: "gadget", Price: d("60"), SalePrice: d("50"), StockQuantity: 2, Active: true},
		soldOutID: {ID: soldOutID, Name: "Sold out", Slug: "sold-out", Price: d("10"), StockQuantity: 0, Active: true},
	}}
	coupons := &memCoupons{rules: map[string]*coupon.Rule{
		promoCode:    {ID: 1, Code: promoCode, DiscountType: coupon.DiscountPercentage, Value: d("10"), Active: true},
		fixedOffCode: {ID: 2, Code: fixedOffCode, DiscountType: coupon.DiscountFixed, Value: d("50"), MinOrderAmount: d("200"), Active: true},
	}}
	settingsRepo := &memSettings{values: map[string]string{}}
	charges := &memCharges{charges: []delivery.Charge{{ID: 1, Location: "Dhaka", Amount: d("60")}}}
	carts := &memCarts{products: products, rows: map[int64]map[int64]cart.Line{}}
	orders := &memOrders{orders: map[int64]*order.Order{}}
	couriers := &memCouriers{orders: orders, city: "Dhaka", couriers: map[int64]courier.Courier{
		7: {ID: 7, Name: "Rahim", City: "dhaka", Active: true},
	}}
	keys := &memKeys{byHash: map[string]*auth.APIKeyInfo{}}
	for key, scopes := range map[string][]string{
		adminKey:    auth.AllScopes,
		readOnlyKey: {auth.ScopeOrdersRead},
	} {
		hash := auth.HashKey([]byte(testPepper), key)
		keys.byHash[hash] = &auth.APIKeyInfo{ID: key, KeyHash: hash, Name: key, Scopes: scopes}
	}

	settingsSvc := settings.NewService(settingsRepo, settings.Defaults{
		TaxRate:            d(testTaxRate),
		CommissionRate:     d("10"),
		DefaultDeliveryFee: d(defaultFee),
	})
	cartSvc, err := cart.NewService(products, coupon.NewRepoValidator(coupons), settingsSvc, carts, noop.NewMeterProvider())
	require.NoError(t, err)
	deliverySvc := delivery.NewService(charges, settingsSvc)
	tokens := usertoken.New([]byte(tokenSecret), tokenIssuer, time.Hour)

	h := NewHandler(CookieConfig{Name: sessionName}, Services{
		Products: products,
		Carts:    cartSvc,
		Orders:   order.NewService(cartSvc, products, deliverySvc, orders, nil),
		Delivery: deliverySvc,
		Settings: settingsSvc,
		Couriers: courier.NewService(couriers),
		Coupons:  coupons,
		Sessions: session.NewManager(session.NewMemoryStore(), time.Hour),
		Tokens:   tokens,
		Keys:     auth.NewAuthenticator(keys, []byte(testPepper)),
	})
	mux := http.NewServeMux()
	h.Register(mux, nil)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &fixture{
		t:        t,
		server:   srv,
		client:   &http.Client{Jar: jar},
		orders:   orders,
		carts:    carts,
		settings: settingsRepo,
		tokens:   tokens,
	}
}
