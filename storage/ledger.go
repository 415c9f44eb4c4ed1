package storage

import (
	"time"

	"travel-booking-server/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Ledger is the single source of truth for booking and payment records.
// Every status change goes through a compare-and-set update keyed on the
// record's current status, so two callers racing to transition the same row
// never both succeed.
type Ledger struct {
	db *gorm.DB
}

func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{db: db}
}

func (l *Ledger) GetUser(id uint) (*models.User, error) {
	var user models.User
	if err := l.db.First(&user, id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (l *Ledger) GetListing(id uint) (*models.Listing, error) {
	var listing models.Listing
	if err := l.db.First(&listing, id).Error; err != nil {
		return nil, err
	}
	return &listing, nil
}

func (l *Ledger) GetBooking(id uint) (*models.Booking, error) {
	var booking models.Booking
	if err := l.db.Preload("Listing").Preload("Listing.Host").Preload("Guest").First(&booking, id).Error; err != nil {
		return nil, err
	}
	return &booking, nil
}

func (l *Ledger) CreateBooking(booking *models.Booking) error {
	return l.db.Create(booking).Error
}

// SetBookingStatus applies "set status to next only if current status is one
// of expected". Returns false when the precondition no longer holds; the
// caller decides whether that is a benign no-op or a reported conflict.
func (l *Ledger) SetBookingStatus(id uint, expected []string, next string) (bool, error) {
	res := l.db.Model(&models.Booking{}).
		Where("id = ? AND status IN ?", id, expected).
		Update("status", next)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (l *Ledger) GetPayment(id uuid.UUID) (*models.Payment, error) {
	var payment models.Payment
	if err := l.db.Preload("Booking").First(&payment, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

func (l *Ledger) FindPaymentByBookingID(bookingID uint) (*models.Payment, error) {
	var payment models.Payment
	if err := l.db.First(&payment, "booking_id = ?", bookingID).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

func (l *Ledger) FindPaymentByTransactionID(txRef string) (*models.Payment, error) {
	var payment models.Payment
	if err := l.db.Preload("Booking").First(&payment, "gateway_transaction_id = ?", txRef).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

func (l *Ledger) CreatePayment(payment *models.Payment) error {
	return l.db.Create(payment).Error
}

// SetPaymentStatus is the payment counterpart of SetBookingStatus. The extra
// map carries fields that must land in the same atomic update as the status
// change (gateway ids, paid_at, error message).
func (l *Ledger) SetPaymentStatus(id uuid.UUID, expected []string, next string, extra map[string]interface{}) (bool, error) {
	updates := map[string]interface{}{"status": next}
	for column, value := range extra {
		updates[column] = value
	}
	res := l.db.Model(&models.Payment{}).
		Where("id = ? AND status IN ?", id, expected).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// StalePayments returns non-terminal payments created within the window that
// already have a gateway transaction id, oldest first. These are the
// reconciliation sweep candidates.
func (l *Ledger) StalePayments(window time.Duration) ([]models.Payment, error) {
	var payments []models.Payment
	cutoff := time.Now().Add(-window)
	err := l.db.Preload("Booking").
		Where("status IN ? AND created_at >= ? AND gateway_transaction_id IS NOT NULL",
			[]string{models.PaymentStatusPending, models.PaymentStatusProcessing}, cutoff).
		Order("created_at ASC").
		Find(&payments).Error
	return payments, err
}

// AbandonedPayments returns non-terminal payments older than the window.
// They are excluded from automatic sweeping and surfaced for manual review.
func (l *Ledger) AbandonedPayments(window time.Duration) ([]models.Payment, error) {
	var payments []models.Payment
	cutoff := time.Now().Add(-window)
	err := l.db.
		Where("status IN ? AND created_at < ?",
			[]string{models.PaymentStatusPending, models.PaymentStatusProcessing}, cutoff).
		Order("created_at ASC").
		Find(&payments).Error
	return payments, err
}
