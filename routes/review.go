package routes

import (
	"errors"

	"travel-booking-server/models"
	"travel-booking-server/storage"
	"travel-booking-server/utils"

	"github.com/kataras/iris/v12"
	"gorm.io/gorm"
)

type CreateReviewInput struct {
	BookingID uint   `json:"bookingID" validate:"required"`
	Rating    int    `json:"rating" validate:"required,min=1,max=5"`
	Comment   string `json:"comment" validate:"max=1000"`
}

// CreateReview attaches a review to a completed booking. One review per
// booking, enforced here at creation time.
func CreateReview(ctx iris.Context) {
	var input CreateReviewInput
	if err := ctx.ReadJSON(&input); err != nil {
		utils.JSONError(ctx, iris.StatusBadRequest, "bad_request", "Invalid request payload")
		return
	}

	var booking models.Booking
	if err := storage.DB.First(&booking, input.BookingID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.JSONError(ctx, iris.StatusNotFound, "not_found", "Booking not found")
			return
		}
		utils.JSONError(ctx, iris.StatusInternalServerError, "internal_error", "Failed to retrieve booking")
		return
	}

	userID := currentUserID(ctx)
	if booking.GuestID != userID {
		utils.JSONError(ctx, iris.StatusForbidden, "forbidden", "You can only review your own stays")
		return
	}
	if booking.Status != models.BookingStatusCompleted {
		utils.JSONError(ctx, iris.StatusBadRequest, "validation_error", "Only completed bookings can be reviewed")
		return
	}

	var existing models.Review
	err := storage.DB.First(&existing, "booking_id = ?", booking.ID).Error
	if err == nil {
		utils.JSONError(ctx, iris.StatusConflict, "conflict", "This booking already has a review")
		return
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		utils.JSONError(ctx, iris.StatusInternalServerError, "internal_error", "Failed to check existing review")
		return
	}

	review := models.Review{
		ListingID: booking.ListingID,
		BookingID: booking.ID,
		GuestID:   userID,
		Rating:    input.Rating,
		Comment:   input.Comment,
	}
	if err := storage.DB.Create(&review).Error; err != nil {
		utils.JSONError(ctx, iris.StatusInternalServerError, "internal_error", "Failed to create review")
		return
	}

	ctx.StatusCode(iris.StatusCreated)
	ctx.JSON(review)
}

func ListListingReviews(ctx iris.Context) {
	listingID := ctx.Params().GetUintDefault("id", 0)
	if listingID == 0 {
		utils.JSONError(ctx, iris.StatusBadRequest, "bad_request", "Invalid listing ID")
		return
	}

	var reviews []models.Review
	if err := storage.DB.Preload("Guest").
		Where("listing_id = ?", listingID).
		Order("created_at DESC").
		Find(&reviews).Error; err != nil {
		utils.JSONError(ctx, iris.StatusInternalServerError, "internal_error", "Failed to load reviews")
		return
	}

	ctx.JSON(reviews)
}
