package models

import (
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Listing struct {
	gorm.Model
	HostID       uint            `json:"hostID" gorm:"not null;index"`
	Title        string          `json:"title" gorm:"not null"`
	Description  string          `json:"description" gorm:"type:text"`
	PropertyType string          `json:"propertyType" gorm:"type:varchar(20)"` // apartment, house, villa, condo, cabin, hotel
	Address      string          `json:"address" gorm:"type:text"`
	City         string          `json:"city" gorm:"index"`
	Country      string          `json:"country"`
	NightlyRate  decimal.Decimal `json:"nightlyRate" gorm:"type:numeric(10,2);not null"`
	Currency     string          `json:"currency" gorm:"type:varchar(3);default:'ETB'"`
	MaxGuests    int             `json:"maxGuests" gorm:"not null"`
	Bedrooms     int             `json:"bedrooms"`
	Beds         int             `json:"beds"`
	Bathrooms    int             `json:"bathrooms"`
	Amenities    datatypes.JSON  `json:"amenities" gorm:"type:jsonb"`
	IsAvailable  *bool           `json:"isAvailable" gorm:"default:true"`
	Host         User            `json:"host" gorm:"foreignKey:HostID;references:ID"`
	Reviews      []Review        `json:"reviews,omitempty"`
	Bookings     []Booking       `json:"bookings,omitempty"`
}
