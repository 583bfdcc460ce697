package handler

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/go-faster/jx"

	"github.com/xenking/storefront/internal/domain/cart"
)

func (h *Handler) cartIndex(w http.ResponseWriter, r *http.Request) {
	sum, err := h.carts.Summary(r.Context(), scope(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, func(e *jx.Encoder) {
		encodeLines(e, "items", sum.Lines)
		totals(e, sum)
		money(e, "tax_rate", sum.TaxRatePercent)
		e.FieldStart("coupon")
		if sum.Coupon == "" {
			e.Null()
		} else {
			e.Str(sum.Coupon)
		}
	})
}

func (h *Handler) cartCount(w http.ResponseWriter, r *http.Request) {
	n, err := h.carts.Count(r.Context(), scope(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, func(e *jx.Encoder) {
		intField(e, "cart_count", n)
	})
}

func (h *Handler) cartSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := h.carts.Summary(r.Context(), scope(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, func(e *jx.Encoder) {
		totals(e, sum)
	})
}

// cartDrawer renders the slide-out cart. Delivery is quoted at checkout,
// so it is always zero here.
func (h *Handler) cartDrawer(w http.ResponseWriter, r *http.Request) {
	sum, err := h.carts.Summary(r.Context(), scope(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, func(e *jx.Encoder) {
		encodeLines(e, "items", sum.Lines)
		totals(e, sum)
		intField(e, "delivery", 0)
	})
}

func (h *Handler) cartLive(w http.ResponseWriter, r *http.Request) {
	sum, err := h.carts.Summary(r.Context(), scope(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, func(e *jx.Encoder) {
		encodeLines(e, "items", sum.Lines)
		intField(e, "total_count", sum.ItemCount)
		money(e, "total_amount", sum.Subtotal)
	})
}

func (h *Handler) cartAdd(w http.ResponseWriter, r *http.Request) {
	p, err := readParams(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	req, err := addRequest(p.Values)
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.carts.Add(r.Context(), scope(r), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, func(e *jx.Encoder) {
		totals(e, res.Summary)
		strField(e, "product_name", res.ProductName)
	})
}

func (h *Handler) cartBulkAdd(w http.ResponseWriter, r *http.Request) {
	p, err := readParams(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if len(p.items) == 0 {
		writeError(w, r, badRequest("items are required"))
		return
	}
	reqs := make([]cart.AddRequest, 0, len(p.items))
	for _, item := range p.items {
		req, err := addRequest(item)
		if err != nil {
			writeError(w, r, err)
			return
		}
		reqs = append(reqs, req)
	}

	res, err := h.carts.BulkAdd(r.Context(), scope(r), reqs)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, func(e *jx.Encoder) {
		e.FieldStart("results")
		e.ArrStart()
		for _, item := range res.Items {
			e.ObjStart()
			e.FieldStart("product_id")
			e.Int64(item.ProductID)
			boolField(e, "success", item.Success)
			if item.Err != nil {
				strField(e, "message", item.Err.Error())
			}
			e.ObjEnd()
		}
		e.ArrEnd()
		totals(e, res.Summary)
	})
}

func (h *Handler) cartUpdate(w http.ResponseWriter, r *http.Request) {
	p, err := readParams(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	productID, err := intParam(p.Values, "product_id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.carts.Update(r.Context(), scope(r), productID, strings.TrimSpace(p.Get("action")))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, func(e *jx.Encoder) {
		totals(e, res.Summary)
		lineFields(e, res.Line)
		boolField(e, "empty_cart", res.Summary.Empty())
	})
}

func (h *Handler) cartUpdateQuantity(w http.ResponseWriter, r *http.Request) {
	p, err := readParams(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	productID, err := intParam(p.Values, "product_id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	key := "change"
	if !p.Has(key) {
		key = "delta"
	}
	delta, err := quantityParam(p.Values, key)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if delta == 0 {
		writeError(w, r, badRequest("change must not be zero"))
		return
	}

	res, err := h.carts.ChangeQuantity(r.Context(), scope(r), productID, delta)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, func(e *jx.Encoder) {
		lineFields(e, res.Line)
		qty := 0
		if res.Line != nil {
			qty = res.Line.Quantity
		}
		intField(e, "new_quantity", qty)
		intField(e, "total_count", res.Summary.ItemCount)
		money(e, "cart_total", res.Summary.Subtotal)
		money(e, "tax", res.Summary.Tax)
		money(e, "final_total", res.Summary.Total)
	})
}

func (h *Handler) cartRemove(w http.ResponseWriter, r *http.Request) {
	p, err := readParams(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	productID, err := intParam(p.Values, "product_id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	key := "cart_item_id"
	if !p.Has(key) {
		key = "item_id"
	}
	itemID, err := intParam(p.Values, key)
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.carts.Remove(r.Context(), scope(r), cart.RemoveRequest{ProductID: productID, ItemID: itemID})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, func(e *jx.Encoder) {
		totals(e, res.Summary)
		boolField(e, "empty_cart", res.Summary.Empty())
	})
}

func (h *Handler) cartClear(w http.ResponseWriter, r *http.Request) {
	if _, err := h.carts.Clear(r.Context(), scope(r)); err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, func(e *jx.Encoder) {
		intField(e, "cart_count", 0)
		intField(e, "cart_total", 0)
		intField(e, "tax", 0)
		intField(e, "final_total", 0)
		boolField(e, "empty_cart", true)
	})
}

func (h *Handler) cartValidate(w http.ResponseWriter, r *http.Request) {
	v, err := h.carts.Validate(r.Context(), scope(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, func(e *jx.Encoder) {
		boolField(e, "has_issues", v.HasIssues)
		e.FieldStart("items")
		e.ArrStart()
		for _, c := range v.Items {
			e.ObjStart()
			e.FieldStart("product_id")
			e.Int64(c.Line.ProductID)
			strField(e, "name", c.Line.Name)
			intField(e, "quantity", c.Line.Quantity)
			boolField(e, "product_exists", c.ProductExists)
			boolField(e, "stock_sufficient", c.StockSufficient)
			intField(e, "available_stock", c.AvailableStock)
			e.ObjEnd()
		}
		e.ArrEnd()
	})
}

// cartMerge moves lines added before signing in into the customer cart.
func (h *Handler) cartMerge(w http.ResponseWriter, r *http.Request) {
	merged, sum, err := h.carts.MergeGuestCart(r.Context(), scope(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, func(e *jx.Encoder) {
		intField(e, "merged", merged)
		totals(e, sum)
	})
}

func addRequest(v url.Values) (cart.AddRequest, error) {
	productID, err := intParam(v, "product_id")
	if err != nil {
		return cart.AddRequest{}, err
	}
	qty := 1
	if v.Has("quantity") {
		if qty, err = quantityParam(v, "quantity"); err != nil {
			return cart.AddRequest{}, err
		}
	}
	return cart.AddRequest{
		ProductID: productID,
		Quantity:  qty,
		Color:     strings.TrimSpace(v.Get("color")),
		Size:      strings.TrimSpace(v.Get("size")),
	}, nil
}

// totals writes the priced cart fields shared by most cart responses.
func totals(e *jx.Encoder, sum *cart.Summary) {
	intField(e, "cart_count", sum.ItemCount)
	money(e, "cart_total", sum.Subtotal)
	money(e, "discount", sum.Discount)
	money(e, "tax", sum.Tax)
	money(e, "final_total", sum.Total)
	if sum.DroppedCoupon != "" {
		strField(e, "coupon_removed", sum.DroppedCoupon)
	}
}

// lineFields writes the quantity and subtotal of the changed line, zero
// when the line was removed.
func lineFields(e *jx.Encoder, l *cart.Line) {
	if l == nil {
		intField(e, "item_quantity", 0)
		intField(e, "item_subtotal", 0)
		return
	}
	intField(e, "item_quantity", l.Quantity)
	money(e, "item_subtotal", l.Subtotal())
}

func encodeLines(e *jx.Encoder, field string, lines []cart.Line) {
	e.FieldStart(field)
	e.ArrStart()
	for _, l := range lines {
		e.ObjStart()
		e.FieldStart("item_id")
		e.Int64(l.ItemID)
		e.FieldStart("product_id")
		e.Int64(l.ProductID)
		strField(e, "name", l.Name)
		intField(e, "quantity", l.Quantity)
		money(e, "price", l.UnitPrice)
		money(e, "subtotal", l.Subtotal())
		if l.Color != "" {
			strField(e, "color", l.Color)
		}
		if l.Size != "" {
			strField(e, "size", l.Size)
		}
		if l.Stock >= 0 {
			intField(e, "stock", l.Stock)
		}
		e.ObjEnd()
	}
	e.ArrEnd()
}
