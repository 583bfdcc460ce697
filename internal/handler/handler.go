// Package handler serves the storefront JSON API over net/http.
package handler

import (
	"net/http"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/courier"
	"github.com/xenking/storefront/internal/domain/delivery"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/session"
	"github.com/xenking/storefront/internal/domain/settings"
	"github.com/xenking/storefront/pkg/usertoken"
)

// CookieConfig controls the session cookie.
type CookieConfig struct {
	Name   string
	Secure bool
}

// Services are the domain services behind the API.
type Services struct {
	Products product.Repository
	Carts    *cart.Service
	Orders   *order.Service
	Delivery *delivery.Service
	Settings *settings.Service
	Couriers *courier.Service
	Coupons  coupon.Repository
	Sessions *session.Manager
	Tokens   *usertoken.Service
	Keys     *auth.Authenticator
}

// Handler serves the storefront API.
type Handler struct {
	products product.Repository
	carts    *cart.Service
	orders   *order.Service
	delivery *delivery.Service
	settings *settings.Service
	couriers *courier.Service
	coupons  coupon.Repository
	sessions *session.Manager
	tokens   *usertoken.Service
	keys     *auth.Authenticator
	cookie   CookieConfig
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(cookie CookieConfig, s Services) *Handler {
	if cookie.Name == "" {
		cookie.Name = "shop_session"
	}
	return &Handler{
		products: s.Products,
		carts:    s.Carts,
		orders:   s.Orders,
		delivery: s.Delivery,
		settings: s.Settings,
		couriers: s.Couriers,
		coupons:  s.Coupons,
		sessions: s.Sessions,
		tokens:   s.Tokens,
		keys:     s.Keys,
		cookie:   cookie,
	}
}

// Register adds every API route to mux. checkoutLimit wraps the order
// placement route.
func (h *Handler) Register(mux *http.ServeMux, checkoutLimit func(http.Handler) http.Handler) {
	guest := func(f http.HandlerFunc) http.HandlerFunc { return h.withIdentity(false, f) }
	customer := func(f http.HandlerFunc) http.HandlerFunc { return h.withIdentity(true, f) }

	mux.HandleFunc("GET /api/products", h.listProducts)
	mux.HandleFunc("GET /api/products/{id}", h.getProduct)

	mux.HandleFunc("GET /api/cart", guest(h.cartIndex))
	mux.HandleFunc("GET /api/cart/count", guest(h.cartCount))
	mux.HandleFunc("GET /api/cart/summary", guest(h.cartSummary))
	mux.HandleFunc("GET /api/cart/drawer", guest(h.cartDrawer))
	mux.HandleFunc("GET /api/cart/live", guest(h.cartLive))
	mux.HandleFunc("POST /api/cart/add", guest(h.cartAdd))
	mux.HandleFunc("POST /api/cart/bulk-add", guest(h.cartBulkAdd))
	mux.HandleFunc("POST /api/cart/update", guest(h.cartUpdate))
	mux.HandleFunc("POST /api/cart/update-quantity", guest(h.cartUpdateQuantity))
	mux.HandleFunc("POST /api/cart/remove", guest(h.cartRemove))
	mux.HandleFunc("GET /api/cart/clear", guest(h.cartClear))
	mux.HandleFunc("POST /api/cart/clear", guest(h.cartClear))
	mux.HandleFunc("GET /api/cart/validate", guest(h.cartValidate))
	mux.HandleFunc("POST /api/cart/merge", customer(h.cartMerge))

	mux.HandleFunc("POST /api/checkout/coupon", guest(h.applyCoupon))
	mux.HandleFunc("POST /api/checkout/coupon/remove", guest(h.removeCoupon))
	mux.HandleFunc("GET /api/delivery/fee", h.deliveryFee)
	checkout := http.Handler(guest(h.checkout))
	if checkoutLimit != nil {
		checkout = checkoutLimit(checkout)
	}
	mux.Handle("POST /api/checkout", checkout)

	mux.HandleFunc("GET /api/orders", customer(h.listOrders))
	mux.HandleFunc("GET /api/orders/{id}", customer(h.getOrder))

	mux.HandleFunc("GET /api/admin/orders/{id}", h.withScope(auth.ScopeOrdersRead, h.adminGetOrder))
	mux.HandleFunc("PUT /api/admin/orders/{id}/status", h.withScope(auth.ScopeOrdersWrite, h.adminUpdateStatus))
	mux.HandleFunc("POST /api/admin/orders/{id}/courier", h.withScope(auth.ScopeOrdersWrite, h.adminAssignCourier))
	mux.HandleFunc("GET /api/admin/delivery-charges", h.withScope(auth.ScopeDeliveryWrite, h.adminListCharges))
	mux.HandleFunc("POST /api/admin/delivery-charges", h.withScope(auth.ScopeDeliveryWrite, h.adminAddCharge))
	mux.HandleFunc("DELETE /api/admin/delivery-charges/{id}", h.withScope(auth.ScopeDeliveryWrite, h.adminDeleteCharge))
	mux.HandleFunc("POST /api/admin/delivery/free", h.withScope(auth.ScopeDeliveryWrite, h.adminFreeDelivery))
	mux.HandleFunc("POST /api/admin/delivery/default-fee", h.withScope(auth.ScopeDeliveryWrite, h.adminDefaultFee))
	mux.HandleFunc("PUT /api/admin/settings/tax-rate", h.withScope(auth.ScopeSettingsWrite, h.adminTaxRate))
	mux.HandleFunc("POST /api/admin/coupons", h.withScope(auth.ScopeCouponsWrite, h.adminUpsertCoupon))
}
