package routes

import (
	"errors"

	"travel-booking-server/services"
	"travel-booking-server/utils"

	"github.com/kataras/iris/v12"
)

var (
	bookingService *services.BookingService
	paymentService *services.PaymentService
)

// Configure hands the route handlers their service dependencies. Called once
// from main before the app starts listening.
func Configure(bookings *services.BookingService, payments *services.PaymentService) {
	bookingService = bookings
	paymentService = payments
}

func currentUserID(ctx iris.Context) uint {
	if v := ctx.Values().Get("userID"); v != nil {
		if id, ok := v.(uint); ok {
			return id
		}
	}
	return 0
}

// respondServiceError maps the service error taxonomy onto HTTP statuses.
func respondServiceError(ctx iris.Context, err error) {
	switch {
	case errors.Is(err, services.ErrInvalidDateRange),
		errors.Is(err, services.ErrCapacityExceeded),
		errors.Is(err, services.ErrListingUnavailable),
		errors.Is(err, services.ErrBookingNotPayable),
		errors.Is(err, services.ErrRetryLimitExceeded):
		utils.JSONError(ctx, iris.StatusBadRequest, "validation_error", err.Error())
	case errors.Is(err, services.ErrForbidden):
		utils.JSONError(ctx, iris.StatusForbidden, "forbidden", err.Error())
	case errors.Is(err, services.ErrListingNotFound),
		errors.Is(err, services.ErrBookingNotFound),
		errors.Is(err, services.ErrPaymentNotFound):
		utils.JSONError(ctx, iris.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, services.ErrInvalidTransition),
		errors.Is(err, services.ErrAlreadyCancelled),
		errors.Is(err, services.ErrPaymentAlreadyExists):
		utils.JSONError(ctx, iris.StatusConflict, "conflict", err.Error())
	case errors.Is(err, services.ErrInvalidSignature):
		utils.JSONError(ctx, iris.StatusUnauthorized, "invalid_signature", err.Error())
	default:
		var gwErr *services.GatewayError
		if errors.As(err, &gwErr) {
			utils.JSONError(ctx, iris.StatusBadGateway, "gateway_error", gwErr.Message)
			return
		}
		utils.JSONError(ctx, iris.StatusInternalServerError, "internal_error", "something went wrong")
	}
}
