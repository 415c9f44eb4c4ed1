package services

import "errors"

// Validation and precondition errors reported to callers. Routes map these to
// HTTP statuses; none of them is a system fault.
var (
	ErrInvalidDateRange   = errors.New("check-out date must be after check-in date")
	ErrCapacityExceeded   = errors.New("guests count exceeds the listing capacity")
	ErrListingUnavailable = errors.New("listing is not available for booking")
	ErrListingNotFound    = errors.New("listing not found")

	ErrBookingNotFound   = errors.New("booking not found")
	ErrInvalidTransition = errors.New("invalid booking status transition")
	ErrAlreadyCancelled  = errors.New("booking is already cancelled")

	ErrForbidden            = errors.New("you do not have permission to perform this action")
	ErrBookingNotPayable    = errors.New("this booking cannot be paid")
	ErrPaymentAlreadyExists = errors.New("a payment already exists for this booking")
	ErrPaymentNotFound      = errors.New("payment not found")
	ErrRetryLimitExceeded   = errors.New("payment retry limit exceeded, manual intervention required")
	ErrInvalidSignature     = errors.New("invalid webhook signature")
)
