package routes

import (
	"errors"
	"time"

	"travel-booking-server/models"
	"travel-booking-server/services"
	"travel-booking-server/storage"
	"travel-booking-server/utils"

	"github.com/kataras/iris/v12"
	"gorm.io/gorm"
)

type CreateBookingInput struct {
	ListingID       uint   `json:"listingID" validate:"required"`
	CheckIn         string `json:"checkIn" validate:"required"`
	CheckOut        string `json:"checkOut" validate:"required"`
	GuestsCount     int    `json:"guestsCount" validate:"required,min=1"`
	SpecialRequests string `json:"specialRequests"`
}

const dateLayout = "2006-01-02"

func CreateBooking(ctx iris.Context) {
	var input CreateBookingInput
	if err := ctx.ReadJSON(&input); err != nil {
		utils.JSONError(ctx, iris.StatusBadRequest, "bad_request", "Invalid request payload")
		return
	}

	checkIn, err := time.Parse(dateLayout, input.CheckIn)
	if err != nil {
		utils.JSONError(ctx, iris.StatusBadRequest, "bad_request", "checkIn must be a date in YYYY-MM-DD format")
		return
	}
	checkOut, err := time.Parse(dateLayout, input.CheckOut)
	if err != nil {
		utils.JSONError(ctx, iris.StatusBadRequest, "bad_request", "checkOut must be a date in YYYY-MM-DD format")
		return
	}

	booking, err := bookingService.Create(services.CreateBookingInput{
		ListingID:       input.ListingID,
		GuestID:         currentUserID(ctx),
		CheckIn:         checkIn,
		CheckOut:        checkOut,
		GuestsCount:     input.GuestsCount,
		SpecialRequests: input.SpecialRequests,
	})
	if err != nil {
		respondServiceError(ctx, err)
		return
	}

	ctx.StatusCode(iris.StatusCreated)
	ctx.JSON(booking)
}

func GetBooking(ctx iris.Context) {
	booking, ok := loadBooking(ctx)
	if !ok {
		return
	}

	userID := currentUserID(ctx)
	if booking.GuestID != userID && booking.Listing.HostID != userID {
		utils.JSONError(ctx, iris.StatusForbidden, "forbidden", "You can only view your own bookings")
		return
	}

	ctx.JSON(booking)
}

func GetMyBookings(ctx iris.Context) {
	userID := currentUserID(ctx)

	query := storage.DB.Preload("Listing").
		Joins("JOIN listings ON listings.id = bookings.listing_id").
		Where("bookings.guest_id = ? OR listings.host_id = ?", userID, userID)

	if status := ctx.URLParam("status"); status != "" {
		query = query.Where("bookings.status = ?", status)
	}

	var bookings []models.Booking
	if err := query.Order("bookings.created_at DESC").Find(&bookings).Error; err != nil {
		utils.JSONError(ctx, iris.StatusInternalServerError, "internal_error", "Failed to retrieve bookings")
		return
	}

	ctx.JSON(bookings)
}

// CancelBooking is a guest action.
func CancelBooking(ctx iris.Context) {
	booking, ok := loadBooking(ctx)
	if !ok {
		return
	}
	if booking.GuestID != currentUserID(ctx) {
		utils.JSONError(ctx, iris.StatusForbidden, "forbidden", "You can only cancel your own bookings")
		return
	}

	cancelled, err := bookingService.Cancel(booking.ID)
	if err != nil {
		respondServiceError(ctx, err)
		return
	}
	ctx.JSON(cancelled)
}

// ConfirmBooking is a host action.
func ConfirmBooking(ctx iris.Context) {
	booking, ok := loadBooking(ctx)
	if !ok {
		return
	}
	if booking.Listing.HostID != currentUserID(ctx) {
		utils.JSONError(ctx, iris.StatusForbidden, "forbidden", "Only the host can confirm bookings")
		return
	}

	confirmed, err := bookingService.Confirm(booking.ID)
	if err != nil {
		respondServiceError(ctx, err)
		return
	}
	ctx.JSON(confirmed)
}

// CompleteBooking is a host action marking the stay as finished.
func CompleteBooking(ctx iris.Context) {
	booking, ok := loadBooking(ctx)
	if !ok {
		return
	}
	if booking.Listing.HostID != currentUserID(ctx) {
		utils.JSONError(ctx, iris.StatusForbidden, "forbidden", "Only the host can complete bookings")
		return
	}

	completed, err := bookingService.Complete(booking.ID)
	if err != nil {
		respondServiceError(ctx, err)
		return
	}
	ctx.JSON(completed)
}

func loadBooking(ctx iris.Context) (*models.Booking, bool) {
	id := ctx.Params().GetUintDefault("id", 0)
	if id == 0 {
		utils.JSONError(ctx, iris.StatusBadRequest, "bad_request", "Invalid booking ID")
		return nil, false
	}

	var booking models.Booking
	if err := storage.DB.Preload("Listing").Preload("Guest").First(&booking, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.JSONError(ctx, iris.StatusNotFound, "not_found", "Booking not found")
			return nil, false
		}
		utils.JSONError(ctx, iris.StatusInternalServerError, "internal_error", "Failed to retrieve booking")
		return nil, false
	}
	return &booking, true
}
