package routes

import (
	"errors"

	"travel-booking-server/models"
	"travel-booking-server/storage"
	"travel-booking-server/utils"

	"github.com/google/uuid"
	"github.com/kataras/iris/v12"
	"gorm.io/gorm"
)

type InitializePaymentInput struct {
	BookingID     uint   `json:"bookingID" validate:"required"`
	PaymentMethod string `json:"paymentMethod" validate:"required,oneof=chapa bank_transfer card"`
}

type VerifyPaymentInput struct {
	TransactionID string `json:"transactionID" validate:"required"`
}

func InitializePayment(ctx iris.Context) {
	var input InitializePaymentInput
	if err := ctx.ReadJSON(&input); err != nil {
		utils.JSONError(ctx, iris.StatusBadRequest, "bad_request", "Invalid request payload")
		return
	}

	payment, err := paymentService.Initialize(ctx.Request().Context(),
		input.BookingID, currentUserID(ctx), input.PaymentMethod)
	if err != nil {
		respondServiceError(ctx, err)
		return
	}

	checkoutURL := ""
	if payment.GatewayCheckoutURL != nil {
		checkoutURL = *payment.GatewayCheckoutURL
	}
	ctx.JSON(iris.Map{
		"paymentID":   payment.ID.String(),
		"status":      payment.Status,
		"checkoutURL": checkoutURL,
	})
}

func VerifyPayment(ctx iris.Context) {
	var input VerifyPaymentInput
	if err := ctx.ReadJSON(&input); err != nil {
		utils.JSONError(ctx, iris.StatusBadRequest, "bad_request", "Invalid request payload")
		return
	}

	payment, err := paymentService.Verify(ctx.Request().Context(),
		input.TransactionID, currentUserID(ctx))
	if err != nil {
		respondServiceError(ctx, err)
		return
	}

	ctx.JSON(payment)
}

func RetryPayment(ctx iris.Context) {
	paymentID, err := uuid.Parse(ctx.Params().Get("id"))
	if err != nil {
		utils.JSONError(ctx, iris.StatusBadRequest, "bad_request", "Invalid payment ID")
		return
	}

	payment, err := paymentService.Retry(ctx.Request().Context(), paymentID, currentUserID(ctx))
	if err != nil {
		respondServiceError(ctx, err)
		return
	}

	ctx.JSON(payment)
}

func GetPayment(ctx iris.Context) {
	paymentID, err := uuid.Parse(ctx.Params().Get("id"))
	if err != nil {
		utils.JSONError(ctx, iris.StatusBadRequest, "bad_request", "Invalid payment ID")
		return
	}

	var payment models.Payment
	if err := storage.DB.Preload("Booking").Preload("Booking.Listing").
		First(&payment, "id = ?", paymentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.JSONError(ctx, iris.StatusNotFound, "not_found", "Payment not found")
			return
		}
		utils.JSONError(ctx, iris.StatusInternalServerError, "internal_error", "Failed to retrieve payment")
		return
	}

	userID := currentUserID(ctx)
	if payment.Booking.GuestID != userID && payment.Booking.Listing.HostID != userID {
		utils.JSONError(ctx, iris.StatusNotFound, "not_found", "Payment not found")
		return
	}

	ctx.JSON(payment)
}
