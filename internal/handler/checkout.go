package handler

import (
	"net/http"
	"time"

	"github.com/go-faster/jx"

	"github.com/xenking/storefront/internal/domain/delivery"
	"github.com/xenking/storefront/internal/domain/order"
)

func (h *Handler) applyCoupon(w http.ResponseWriter, r *http.Request) {
	p, err := readParams(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	code := p.Get("coupon_code")
	if code == "" {
		code = p.Get("code")
	}
	sum, err := h.carts.ApplyCoupon(r.Context(), scope(r), code)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, func(e *jx.Encoder) {
		e.FieldStart("coupon")
		e.ObjStart()
		strField(e, "code", sum.Coupon)
		e.ObjEnd()
		money(e, "discount", sum.Discount)
		money(e, "final_amount", sum.Total)
	})
}

func (h *Handler) removeCoupon(w http.ResponseWriter, r *http.Request) {
	sum, err := h.carts.RemoveCoupon(r.Context(), scope(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, func(e *jx.Encoder) {
		money(e, "final_amount", sum.Total)
	})
}

func (h *Handler) deliveryFee(w http.ResponseWriter, r *http.Request) {
	city := r.URL.Query().Get("city")
	fee, err := h.delivery.FeeFor(r.Context(), city)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, func(e *jx.Encoder) {
		strField(e, "city", delivery.NormalizeLocation(city))
		money(e, "fee", fee)
	})
}

func (h *Handler) checkout(w http.ResponseWriter, r *http.Request) {
	p, err := readParams(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	o, err := h.orders.Checkout(r.Context(), scope(r), order.CheckoutRequest{
		Customer: order.Customer{
			Name:    p.Get("name"),
			Phone:   p.Get("phone"),
			Email:   p.Get("email"),
			Address: p.Get("address"),
			City:    p.Get("city"),
		},
		PaymentMethod: p.Get("payment_method"),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, func(e *jx.Encoder) {
		e.FieldStart("order")
		encodeOrder(e, o)
	})
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(o.ID)
	strField(e, "order_number", o.Number)
	strField(e, "status", string(o.Status))

	e.FieldStart("customer")
	e.ObjStart()
	strField(e, "name", o.Customer.Name)
	strField(e, "phone", o.Customer.Phone)
	strField(e, "email", o.Customer.Email)
	strField(e, "address", o.Customer.Address)
	strField(e, "city", o.Customer.City)
	e.ObjEnd()

	e.FieldStart("items")
	e.ArrStart()
	for _, it := range o.Items {
		e.ObjStart()
		e.FieldStart("product_id")
		e.Int64(it.ProductID)
		strField(e, "name", it.Name)
		intField(e, "quantity", it.Quantity)
		money(e, "price", it.UnitPrice)
		money(e, "subtotal", it.Subtotal())
		if it.Color != "" {
			strField(e, "color", it.Color)
		}
		if it.Size != "" {
			strField(e, "size", it.Size)
		}
		e.ObjEnd()
	}
	e.ArrEnd()

	money(e, "subtotal", o.Subtotal)
	money(e, "discount", o.Discount)
	money(e, "tax_rate", o.TaxRate)
	money(e, "tax", o.Tax)
	money(e, "delivery_fee", o.DeliveryFee)
	money(e, "total", o.Total)
	e.FieldStart("coupon_code")
	if o.CouponCode == "" {
		e.Null()
	} else {
		e.Str(o.CouponCode)
	}
	strField(e, "payment_method", o.PaymentMethod)
	e.FieldStart("courier_id")
	if o.CourierID == nil {
		e.Null()
	} else {
		e.Int64(*o.CourierID)
	}
	strField(e, "created_at", o.CreatedAt.UTC().Format(time.RFC3339))
	e.ObjEnd()
}
