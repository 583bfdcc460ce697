package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/courier"
	"github.com/xenking/storefront/internal/domain/delivery"
)

func (h *Handler) adminGetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	o, err := h.orders.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, func(e *jx.Encoder) {
		e.FieldStart("order")
		encodeOrder(e, o)
	})
}

func (h *Handler) adminUpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	p, err := readParams(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	o, err := h.orders.UpdateStatus(r.Context(), id, p.Get("status"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, func(e *jx.Encoder) {
		e.FieldStart("order")
		encodeOrder(e, o)
	})
}

// adminAssignCourier assigns the courier named in the body, or picks one
// from the seller's city when courier_id is absent.
func (h *Handler) adminAssignCourier(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	p, err := readParams(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	courierID, err := intParam(p.Values, "courier_id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	var c *courier.Courier
	if courierID > 0 {
		c, err = h.couriers.Assign(r.Context(), id, courierID)
	} else {
		c, err = h.couriers.AssignForOrder(r.Context(), id)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, func(e *jx.Encoder) {
		e.FieldStart("courier")
		e.ObjStart()
		e.FieldStart("id")
		e.Int64(c.ID)
		strField(e, "name", c.Name)
		strField(e, "city", c.City)
		e.ObjEnd()
	})
}

func (h *Handler) adminListCharges(w http.ResponseWriter, r *http.Request) {
	charges, err := h.delivery.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, func(e *jx.Encoder) {
		e.FieldStart("charges")
		e.ArrStart()
		for _, c := range charges {
			encodeCharge(e, c)
		}
		e.ArrEnd()
	})
}

func (h *Handler) adminAddCharge(w http.ResponseWriter, r *http.Request) {
	p, err := readParams(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	amount, err := decimalParam(p.Values, "amount")
	if err != nil {
		writeError(w, r, err)
		return
	}
	c, err := h.delivery.QuickAdd(r.Context(), p.Get("location"), amount)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, func(e *jx.Encoder) {
		e.FieldStart("charge")
		encodeCharge(e, *c)
	})
}

func (h *Handler) adminDeleteCharge(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.delivery.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, nil)
}

func (h *Handler) adminFreeDelivery(w http.ResponseWriter, r *http.Request) {
	p, err := readParams(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	enabled := boolParam(p.Values, "enabled")
	if err := h.delivery.SetFreeDelivery(r.Context(), enabled); err != nil {
		writeError(w, r, err)
		return
	}
	msg := "Free delivery disabled"
	if enabled {
		msg = "Free delivery enabled"
	}
	writeOK(w, func(e *jx.Encoder) {
		strField(e, "message", msg)
	})
}

func (h *Handler) adminDefaultFee(w http.ResponseWriter, r *http.Request) {
	p, err := readParams(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	fee, err := decimalParam(p.Values, "amount")
	if err != nil {
		writeError(w, r, err)
		return
	}
	n, err := h.delivery.SetDefaultFee(r.Context(), fee)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, func(e *jx.Encoder) {
		e.FieldStart("message")
		e.Str("Default fee set to " + fee.StringFixed(2) + " for all locations")
		e.FieldStart("updated")
		e.Int64(n)
	})
}

func (h *Handler) adminTaxRate(w http.ResponseWriter, r *http.Request) {
	p, err := readParams(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rate, err := decimalParam(p.Values, "tax_rate")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.settings.SetTaxRate(r.Context(), rate); err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, func(e *jx.Encoder) {
		money(e, "tax_rate", rate)
	})
}

func (h *Handler) adminUpsertCoupon(w http.ResponseWriter, r *http.Request) {
	p, err := readParams(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rule, err := couponRule(p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := rule.Check(); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.coupons.Upsert(r.Context(), rule); err != nil {
		writeError(w, r, errors.Wrap(err, "save coupon"))
		return
	}
	writeOK(w, func(e *jx.Encoder) {
		e.FieldStart("coupon")
		encodeCoupon(e, rule)
	})
}

func couponRule(p *params) (*coupon.Rule, error) {
	rule := &coupon.Rule{
		Code:         p.Get("code"),
		DiscountType: coupon.DiscountType(strings.ToLower(strings.TrimSpace(p.Get("discount_type")))),
		Description:  strings.TrimSpace(p.Get("description")),
		Active:       !p.Has("active") || boolParam(p.Values, "active"),
	}

	var err error
	if rule.Value, err = decimalParam(p.Values, "value"); err != nil {
		return nil, err
	}
	for key, dst := range map[string]*decimal.Decimal{
		"min_order_amount": &rule.MinOrderAmount,
		"max_discount":     &rule.MaxDiscount,
	} {
		if strings.TrimSpace(p.Get(key)) == "" {
			continue
		}
		if *dst, err = decimalParam(p.Values, key); err != nil {
			return nil, err
		}
	}
	for key, dst := range map[string]*int{
		"usage_limit":          &rule.UsageLimitGlobal,
		"usage_limit_per_user": &rule.UsageLimitPerUser,
	} {
		n, err := intParam(p.Values, key)
		if err != nil {
			return nil, err
		}
		*dst = int(n)
	}
	if raw := strings.TrimSpace(p.Get("expires_at")); raw != "" {
		t, err := parseExpiry(raw)
		if err != nil {
			return nil, err
		}
		rule.ExpiresAt = &t
	}
	return rule, nil
}

// parseExpiry accepts an RFC 3339 timestamp or a date, which expires at the
// end of that day in UTC.
func parseExpiry(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	d, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, badRequest("expires_at must be a date or RFC 3339 time")
	}
	return d.Add(24*time.Hour - time.Second), nil
}

func encodeCoupon(e *jx.Encoder, c *coupon.Rule) {
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(c.ID)
	strField(e, "code", c.Code)
	strField(e, "discount_type", string(c.DiscountType))
	money(e, "value", c.Value)
	money(e, "min_order_amount", c.MinOrderAmount)
	money(e, "max_discount", c.MaxDiscount)
	e.FieldStart("expires_at")
	if c.ExpiresAt == nil {
		e.Null()
	} else {
		e.Str(c.ExpiresAt.UTC().Format(time.RFC3339))
	}
	boolField(e, "active", c.Active)
	intField(e, "usage_limit", c.UsageLimitGlobal)
	intField(e, "usage_limit_per_user", c.UsageLimitPerUser)
	intField(e, "used_count", c.UsedCount)
	e.ObjEnd()
}

func encodeCharge(e *jx.Encoder, c delivery.Charge) {
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(c.ID)
	strField(e, "location", c.Location)
	money(e, "amount", c.Amount)
	e.ObjEnd()
}
