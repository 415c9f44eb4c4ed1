package services

import (
	"errors"
	"log"
	"time"

	"travel-booking-server/models"
	"travel-booking-server/storage"

	"gorm.io/gorm"
)

// BookingService governs the booking lifecycle:
// pending -> confirmed -> completed, with cancelled reachable from pending or
// confirmed. All transitions are compare-and-set updates on the ledger, so a
// racing confirm and cancel can never both win.
type BookingService struct {
	ledger   *storage.Ledger
	notifier NotificationSink
}

func NewBookingService(ledger *storage.Ledger, notifier NotificationSink) *BookingService {
	return &BookingService{ledger: ledger, notifier: notifier}
}

type CreateBookingInput struct {
	ListingID       uint
	GuestID         uint
	CheckIn         time.Time
	CheckOut        time.Time
	GuestsCount     int
	SpecialRequests string
}

// Create validates the request against the listing, snapshots the total price
// and persists the booking in pending. No payment is created here.
func (s *BookingService) Create(in CreateBookingInput) (*models.Booking, error) {
	listing, err := s.ledger.GetListing(in.ListingID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrListingNotFound
		}
		return nil, err
	}

	total, err := Price(listing.NightlyRate, in.CheckIn, in.CheckOut)
	if err != nil {
		return nil, err
	}
	if in.GuestsCount > listing.MaxGuests {
		return nil, ErrCapacityExceeded
	}
	if listing.IsAvailable == nil || !*listing.IsAvailable {
		return nil, ErrListingUnavailable
	}

	booking := models.Booking{
		ListingID:       in.ListingID,
		GuestID:         in.GuestID,
		CheckIn:         in.CheckIn,
		CheckOut:        in.CheckOut,
		GuestsCount:     in.GuestsCount,
		TotalPrice:      total,
		Status:          models.BookingStatusPending,
		SpecialRequests: in.SpecialRequests,
	}
	if err := s.ledger.CreateBooking(&booking); err != nil {
		return nil, err
	}

	created, err := s.ledger.GetBooking(booking.ID)
	if err != nil {
		// The row exists; only the notification snapshot is degraded.
		log.Printf("booking %d created but reload failed: %v", booking.ID, err)
		return &booking, nil
	}
	s.notifier.BookingCreated(created)
	return created, nil
}

// Confirm moves a pending booking to confirmed. Callers racing against a
// cancel observe ErrInvalidTransition and must not overwrite.
func (s *BookingService) Confirm(bookingID uint) (*models.Booking, error) {
	applied, err := s.ledger.SetBookingStatus(bookingID,
		[]string{models.BookingStatusPending}, models.BookingStatusConfirmed)
	if err != nil {
		return nil, err
	}

	booking, err := s.ledger.GetBooking(bookingID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}
	if !applied {
		return booking, ErrInvalidTransition
	}

	s.notifier.BookingConfirmed(booking, models.BookingStatusPending)
	return booking, nil
}

// Cancel moves a pending or confirmed booking to cancelled. Re-cancelling an
// already cancelled booking is reported, not fatal.
func (s *BookingService) Cancel(bookingID uint) (*models.Booking, error) {
	applied, err := s.ledger.SetBookingStatus(bookingID,
		[]string{models.BookingStatusPending, models.BookingStatusConfirmed},
		models.BookingStatusCancelled)
	if err != nil {
		return nil, err
	}

	booking, err := s.ledger.GetBooking(bookingID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}
	if !applied {
		if booking.Status == models.BookingStatusCancelled {
			return booking, ErrAlreadyCancelled
		}
		return booking, ErrInvalidTransition
	}

	s.notifier.BookingCancelled(booking)
	return booking, nil
}

// Complete moves a confirmed booking to completed, after which a review may
// be attached.
func (s *BookingService) Complete(bookingID uint) (*models.Booking, error) {
	applied, err := s.ledger.SetBookingStatus(bookingID,
		[]string{models.BookingStatusConfirmed}, models.BookingStatusCompleted)
	if err != nil {
		return nil, err
	}

	booking, err := s.ledger.GetBooking(bookingID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}
	if !applied {
		return booking, ErrInvalidTransition
	}
	return booking, nil
}
