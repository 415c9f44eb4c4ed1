package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	PaymentStatusPending    = "pending"
	PaymentStatusProcessing = "processing"
	PaymentStatusCompleted  = "completed"
	PaymentStatusFailed     = "failed"
	PaymentStatusCancelled  = "cancelled"
	PaymentStatusRefunded   = "refunded"
)

const MaxPaymentRetries = 3

// Payment tracks a single charge for a booking. The UUID primary key doubles
// as the gateway tx_ref so external references never collide with sequential
// booking ids.
type Payment struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	BookingID uint      `json:"bookingID" gorm:"uniqueIndex;not null"`
	Booking   Booking   `json:"booking" gorm:"foreignKey:BookingID"`

	Amount        decimal.Decimal `json:"amount" gorm:"type:numeric(10,2);not null"`
	Currency      string          `json:"currency" gorm:"type:varchar(3);default:'ETB'"`
	Status        string          `json:"status" gorm:"type:varchar(20);default:'pending';index:idx_payments_status_created"`
	PaymentMethod string          `json:"paymentMethod" gorm:"type:varchar(20);default:'chapa'"` // chapa, bank_transfer, card

	GatewayTransactionID *string `json:"gatewayTransactionID" gorm:"index"`
	GatewayCheckoutURL   *string `json:"gatewayCheckoutURL"`

	// Contact snapshot captured at initiation so historical payments stay
	// auditable even if the user record changes later.
	CustomerEmail     string `json:"customerEmail" gorm:"not null"`
	CustomerFirstName string `json:"customerFirstName"`
	CustomerLastName  string `json:"customerLastName"`

	ErrorMessage *string    `json:"errorMessage" gorm:"type:text"`
	RetryCount   int        `json:"retryCount" gorm:"default:0"`
	PaidAt       *time.Time `json:"paidAt"`

	CreatedAt time.Time `json:"createdAt" gorm:"index:idx_payments_status_created"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (p *Payment) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

func (p *Payment) IsSuccessful() bool {
	return p.Status == PaymentStatusCompleted
}

func (p *Payment) CanRetry() bool {
	return (p.Status == PaymentStatusFailed || p.Status == PaymentStatusCancelled) &&
		p.RetryCount < MaxPaymentRetries
}
