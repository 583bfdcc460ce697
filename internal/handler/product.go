package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/storefront/internal/domain/product"
)

// listProducts returns every active product in the catalog.
func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.List(r.Context())
	if err != nil {
		writeError(w, r, errors.Wrap(err, "list products"))
		return
	}
	writeOK(w, func(e *jx.Encoder) {
		e.FieldStart("products")
		e.ArrStart()
		for _, p := range products {
			encodeProduct(e, p)
		}
		e.ArrEnd()
	})
}

// getProduct returns a single active product by id.
func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	p, err := h.products.GetByID(r.Context(), id)
	if err == nil && !p.Active {
		err = product.ErrNotFound
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, func(e *jx.Encoder) {
		e.FieldStart("product")
		encodeProduct(e, *p)
	})
}

func encodeProduct(e *jx.Encoder, p product.Product) {
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(p.ID)
	strField(e, "name", p.Name)
	strField(e, "slug", p.Slug)
	money(e, "price", p.Price)
	money(e, "sale_price", p.SalePrice)
	money(e, "effective_price", p.EffectivePrice())
	intField(e, "stock_quantity", p.StockQuantity)
	boolField(e, "in_stock", p.StockQuantity > 0)
	e.ObjEnd()
}
