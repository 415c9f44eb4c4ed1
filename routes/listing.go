package routes

import (
	"encoding/json"
	"errors"

	"travel-booking-server/models"
	"travel-booking-server/storage"
	"travel-booking-server/utils"

	"github.com/kataras/iris/v12"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type CreateListingInput struct {
	Title        string          `json:"title" validate:"required,max=200"`
	Description  string          `json:"description"`
	PropertyType string          `json:"propertyType" validate:"required,oneof=apartment house villa condo cabin hotel"`
	Address      string          `json:"address"`
	City         string          `json:"city" validate:"required"`
	Country      string          `json:"country" validate:"required"`
	NightlyRate  decimal.Decimal `json:"nightlyRate" validate:"required"`
	Currency     string          `json:"currency"`
	MaxGuests    int             `json:"maxGuests" validate:"required,min=1"`
	Bedrooms     int             `json:"bedrooms"`
	Beds         int             `json:"beds"`
	Bathrooms    int             `json:"bathrooms"`
	Amenities    []string        `json:"amenities"`
}

func CreateListing(ctx iris.Context) {
	var input CreateListingInput
	if err := ctx.ReadJSON(&input); err != nil {
		utils.JSONError(ctx, iris.StatusBadRequest, "bad_request", "Invalid request payload")
		return
	}

	amenities, err := toJSONColumn(input.Amenities)
	if err != nil {
		utils.JSONError(ctx, iris.StatusBadRequest, "bad_request", "Invalid amenities")
		return
	}

	available := true
	listing := models.Listing{
		HostID:       currentUserID(ctx),
		Title:        input.Title,
		Description:  input.Description,
		PropertyType: input.PropertyType,
		Address:      input.Address,
		City:         input.City,
		Country:      input.Country,
		NightlyRate:  input.NightlyRate,
		Currency:     input.Currency,
		MaxGuests:    input.MaxGuests,
		Bedrooms:     input.Bedrooms,
		Beds:         input.Beds,
		Bathrooms:    input.Bathrooms,
		Amenities:    amenities,
		IsAvailable:  &available,
	}

	if err := storage.DB.Create(&listing).Error; err != nil {
		utils.JSONError(ctx, iris.StatusInternalServerError, "internal_error", "Failed to create listing")
		return
	}

	ctx.StatusCode(iris.StatusCreated)
	ctx.JSON(listing)
}

func GetListing(ctx iris.Context) {
	id := ctx.Params().GetUintDefault("id", 0)
	if id == 0 {
		utils.JSONError(ctx, iris.StatusBadRequest, "bad_request", "Invalid listing ID")
		return
	}

	var listing models.Listing
	if err := storage.DB.Preload("Host").First(&listing, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.JSONError(ctx, iris.StatusNotFound, "not_found", "Listing not found")
			return
		}
		utils.JSONError(ctx, iris.StatusInternalServerError, "internal_error", "Failed to retrieve listing")
		return
	}

	ctx.JSON(listing)
}

func ListListings(ctx iris.Context) {
	query := storage.DB.Model(&models.Listing{})

	if city := ctx.URLParam("city"); city != "" {
		query = query.Where("city ILIKE ?", "%"+city+"%")
	}
	if available, err := ctx.URLParamBool("available"); err == nil && available {
		query = query.Where("is_available = ?", true)
	}

	var listings []models.Listing
	if err := query.Order("created_at DESC").Find(&listings).Error; err != nil {
		utils.JSONError(ctx, iris.StatusInternalServerError, "internal_error", "Failed to retrieve listings")
		return
	}

	ctx.JSON(listings)
}

// SetListingAvailability flips the availability flag; host-only.
func SetListingAvailability(ctx iris.Context) {
	id := ctx.Params().GetUintDefault("id", 0)
	if id == 0 {
		utils.JSONError(ctx, iris.StatusBadRequest, "bad_request", "Invalid listing ID")
		return
	}

	var input struct {
		IsAvailable bool `json:"isAvailable"`
	}
	if err := ctx.ReadJSON(&input); err != nil {
		utils.JSONError(ctx, iris.StatusBadRequest, "bad_request", "Invalid request payload")
		return
	}

	var listing models.Listing
	if err := storage.DB.First(&listing, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.JSONError(ctx, iris.StatusNotFound, "not_found", "Listing not found")
			return
		}
		utils.JSONError(ctx, iris.StatusInternalServerError, "internal_error", "Failed to retrieve listing")
		return
	}

	if listing.HostID != currentUserID(ctx) {
		utils.JSONError(ctx, iris.StatusForbidden, "forbidden", "You can only update your own listings")
		return
	}

	if err := storage.DB.Model(&listing).Update("is_available", input.IsAvailable).Error; err != nil {
		utils.JSONError(ctx, iris.StatusInternalServerError, "internal_error", "Failed to update listing")
		return
	}

	listing.IsAvailable = &input.IsAvailable
	ctx.JSON(listing)
}

func toJSONColumn(values []string) (datatypes.JSON, error) {
	if values == nil {
		values = []string{}
	}
	raw, err := json.Marshal(values)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}
