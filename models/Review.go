package models

import "gorm.io/gorm"

type Review struct {
	gorm.Model
	ListingID uint    `json:"listingID" gorm:"not null;index"`
	BookingID uint    `json:"bookingID" gorm:"uniqueIndex;not null"` // one review per booking
	GuestID   uint    `json:"guestID" gorm:"not null;index"`
	Rating    int     `json:"rating" gorm:"not null;check:rating >= 1 AND rating <= 5"`
	Comment   string  `json:"comment" gorm:"type:text"`
	Listing   Listing `json:"listing" gorm:"foreignKey:ListingID"`
	Guest     User    `json:"guest" gorm:"foreignKey:GuestID"`
}
