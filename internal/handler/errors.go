package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/courier"
	"github.com/xenking/storefront/internal/domain/delivery"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/settings"
	"github.com/xenking/storefront/pkg/httpmiddleware"
	"github.com/xenking/storefront/pkg/usertoken"
)

// httpStatus maps domain errors to response codes. Anything unknown is a
// 500.
func httpStatus(err error) int {
	var br *badRequestError
	switch {
	case errors.As(err, &br),
		errors.Is(err, cart.ErrProductRequired),
		errors.Is(err, cart.ErrInvalidQuantity),
		errors.Is(err, cart.ErrInvalidAction),
		errors.Is(err, cart.ErrEmptyCart),
		errors.Is(err, coupon.ErrEmptyCode),
		errors.Is(err, coupon.ErrInvalidRule),
		errors.Is(err, courier.ErrInactive),
		order.IsValidationError(err),
		delivery.IsValidationError(err) && !errors.Is(err, delivery.ErrDuplicate),
		settings.IsValidationError(err):
		return http.StatusBadRequest

	case errors.Is(err, delivery.ErrDuplicate):
		return http.StatusConflict

	case errors.Is(err, auth.ErrUnauthorized),
		errors.Is(err, usertoken.ErrInvalidToken),
		errors.Is(err, usertoken.ErrExpiredToken),
		errors.Is(err, errSignInRequired):
		return http.StatusUnauthorized

	case errors.Is(err, auth.ErrForbidden):
		return http.StatusForbidden

	case errors.Is(err, product.ErrNotFound),
		errors.Is(err, cart.ErrItemNotFound),
		errors.Is(err, order.ErrNotFound),
		errors.Is(err, courier.ErrNotFound),
		errors.Is(err, delivery.ErrNotFound):
		return http.StatusNotFound

	case cart.IsRejection(err), coupon.IsRejection(err),
		errors.Is(err, courier.ErrNoCity),
		errors.Is(err, courier.ErrNoCourier):
		return http.StatusUnprocessableEntity

	default:
		return http.StatusInternalServerError
	}
}

// writeError responds with the error body. Internal errors are logged and
// their details hidden.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := httpStatus(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
		msg = "internal server error"
	}
	httpmiddleware.WriteError(w, status, msg)
}
