package routes

import (
	"errors"

	"travel-booking-server/services"
	"travel-booking-server/utils"

	"github.com/kataras/iris/v12"
)

// PaymentWebhook receives gateway callbacks. It is unauthenticated; the
// HMAC signature over the raw body is the only trust anchor.
func PaymentWebhook(ctx iris.Context) {
	body, err := ctx.GetBody()
	if err != nil {
		utils.JSONError(ctx, iris.StatusBadRequest, "bad_request", "Could not read request body")
		return
	}

	signature := ctx.GetHeader("Chapa-Signature")
	if err := paymentService.HandleWebhook(body, signature); err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidSignature):
			utils.JSONError(ctx, iris.StatusUnauthorized, "invalid_signature", err.Error())
		case errors.Is(err, services.ErrPaymentNotFound):
			utils.JSONError(ctx, iris.StatusNotFound, "not_found", err.Error())
		default:
			// Non-2xx so the gateway redelivers; reconcile is idempotent.
			utils.JSONError(ctx, iris.StatusInternalServerError, "internal_error", "Webhook processing failed")
		}
		return
	}

	ctx.JSON(iris.Map{"status": "webhook processed"})
}
