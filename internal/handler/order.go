package handler

import (
	"net/http"

	"github.com/go-faster/jx"
)

// listOrders returns the signed in customer's orders, newest first.
func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.ListForUser(r.Context(), scope(r).UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, func(e *jx.Encoder) {
		e.FieldStart("orders")
		e.ArrStart()
		for i := range orders {
			encodeOrder(e, &orders[i])
		}
		e.ArrEnd()
	})
}

// getOrder returns one order of the signed in customer. Other customers'
// orders are reported as missing.
func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	o, err := h.orders.GetForUser(r.Context(), scope(r).UserID, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, func(e *jx.Encoder) {
		e.FieldStart("order")
		encodeOrder(e, o)
	})
}
