package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	BookingStatusPending   = "pending"
	BookingStatusConfirmed = "confirmed"
	BookingStatusCancelled = "cancelled"
	BookingStatusCompleted = "completed"
)

type Booking struct {
	gorm.Model
	ListingID       uint            `json:"listingID" gorm:"not null;index"`
	GuestID         uint            `json:"guestID" gorm:"not null;index"`
	CheckIn         time.Time       `json:"checkIn" gorm:"type:date;not null"`
	CheckOut        time.Time       `json:"checkOut" gorm:"type:date;not null"`
	GuestsCount     int             `json:"guestsCount" gorm:"not null"`
	TotalPrice      decimal.Decimal `json:"totalPrice" gorm:"type:numeric(10,2);not null"` // snapshotted at creation, never recomputed
	Status          string          `json:"status" gorm:"type:varchar(20);default:'pending';index"`
	SpecialRequests string          `json:"specialRequests" gorm:"type:text"`
	Listing         Listing         `json:"listing" gorm:"foreignKey:ListingID"`
	Guest           User            `json:"guest" gorm:"foreignKey:GuestID"`
}

// Nights returns the stay length in whole days.
func (b *Booking) Nights() int {
	return int(b.CheckOut.Sub(b.CheckIn).Hours() / 24)
}
