package models

import "gorm.io/gorm"

type User struct {
	gorm.Model
	Email     string `json:"email" gorm:"uniqueIndex;not null"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Role      string `json:"role" gorm:"type:varchar(20);default:'guest'"` // guest, host, admin
	Listings  []Listing `json:"listings,omitempty" gorm:"foreignKey:HostID"`
	Bookings  []Booking `json:"bookings,omitempty" gorm:"foreignKey:GuestID"`
}
