package services

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"travel-booking-server/models"
	"travel-booking-server/storage"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Webhook event types sent by the gateway.
const (
	WebhookEventChargeCompleted = "charge.completed"
	WebhookEventChargeFailed    = "charge.failed"
)

type WebhookEvent struct {
	Event          string `json:"event"`
	TxRef          string `json:"tx_ref"`
	FailureMessage string `json:"failure_message"`
}

type PaymentConfig struct {
	WebhookSecret string
	CallbackURL   string
	ReturnURL     string
	Currency      string
}

// PaymentService governs the payment lifecycle:
// pending -> processing -> completed, with failed reachable from processing
// (or directly when initiation fails). Synchronous verification, webhook
// intake and the reconciliation sweep all funnel through the same
// reconcile transitions, so duplicated or out-of-order gateway events
// resolve identically no matter which path delivers them.
type PaymentService struct {
	cfg      PaymentConfig
	ledger   *storage.Ledger
	gateway  Gateway
	bookings *BookingService
	notifier NotificationSink
}

func NewPaymentService(cfg PaymentConfig, ledger *storage.Ledger, gateway Gateway,
	bookings *BookingService, notifier NotificationSink) *PaymentService {
	if cfg.Currency == "" {
		cfg.Currency = "ETB"
	}
	return &PaymentService{
		cfg:      cfg,
		ledger:   ledger,
		gateway:  gateway,
		bookings: bookings,
		notifier: notifier,
	}
}

// Initialize creates (or, on a retry, reuses) the pending payment for a
// booking and starts a charge with the gateway. A gateway failure here is
// recorded on the payment and reported to the caller; it is never fatal. A
// timeout during initiation also lands in failed: no charge was confirmed
// started, so there is nothing for a later sweep to resolve.
func (s *PaymentService) Initialize(ctx context.Context, bookingID, guestID uint, method string) (*models.Payment, error) {
	booking, err := s.ledger.GetBooking(bookingID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}
	if booking.GuestID != guestID {
		return nil, ErrForbidden
	}
	if booking.Status != models.BookingStatusPending {
		return nil, ErrBookingNotPayable
	}

	payment, err := s.ledger.FindPaymentByBookingID(bookingID)
	switch {
	case err == nil:
		// Only a payment reset to pending by Retry may be re-initiated;
		// anything else is the booking's one payment.
		if payment.Status != models.PaymentStatusPending {
			return nil, ErrPaymentAlreadyExists
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		payment = &models.Payment{
			BookingID:         bookingID,
			Amount:            booking.TotalPrice,
			Currency:          s.cfg.Currency,
			Status:            models.PaymentStatusPending,
			PaymentMethod:     method,
			CustomerEmail:     booking.Guest.Email,
			CustomerFirstName: nameOr(booking.Guest.FirstName, "Customer"),
			CustomerLastName:  nameOr(booking.Guest.LastName, "User"),
		}
		if err := s.ledger.CreatePayment(payment); err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	session, gwErr := s.gateway.InitiateCharge(ctx, ChargeRequest{
		Amount:            payment.Amount,
		Currency:          payment.Currency,
		CustomerEmail:     payment.CustomerEmail,
		CustomerFirstName: payment.CustomerFirstName,
		CustomerLastName:  payment.CustomerLastName,
		TxRef:             payment.ID.String(),
		CallbackURL:       s.cfg.CallbackURL,
		ReturnURL:         fmt.Sprintf("%s/bookings/%d/payment-complete", s.cfg.ReturnURL, bookingID),
		Description:       fmt.Sprintf("Payment for booking %d", bookingID),
	})
	if gwErr != nil {
		if _, err := s.markFailed(payment.ID, gwErr.Error()); err != nil {
			log.Printf("payment %s: record initiation failure: %v", payment.ID, err)
		}
		reloaded, err := s.ledger.GetPayment(payment.ID)
		if err != nil {
			return nil, gwErr
		}
		return reloaded, gwErr
	}

	applied, err := s.ledger.SetPaymentStatus(payment.ID,
		[]string{models.PaymentStatusPending}, models.PaymentStatusProcessing,
		map[string]interface{}{
			"gateway_transaction_id": session.TransactionID,
			"gateway_checkout_url":   session.CheckoutURL,
		})
	if err != nil {
		return nil, err
	}
	if !applied {
		// A webhook beat us to a terminal state; the stored record wins.
		log.Printf("payment %s: already transitioned during initiation", payment.ID)
	}
	return s.ledger.GetPayment(payment.ID)
}

// Verify looks up the payment by its gateway transaction id and queries the
// gateway for the charge's state. A gateway query error is reported without
// touching the record: only an explicit gateway-reported failure status moves
// a payment to failed.
func (s *PaymentService) Verify(ctx context.Context, txRef string, guestID uint) (*models.Payment, error) {
	payment, err := s.ledger.FindPaymentByTransactionID(txRef)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	if guestID != 0 && payment.Booking.GuestID != guestID {
		// Scoped lookup: other users' payments are indistinguishable from
		// missing ones.
		return nil, ErrPaymentNotFound
	}
	return s.reconcileWithGateway(ctx, payment)
}

// ReconcilePayment is the sweep entry point: same gateway query and the same
// transitions as Verify, without caller scoping.
func (s *PaymentService) ReconcilePayment(ctx context.Context, payment *models.Payment) (*models.Payment, error) {
	return s.reconcileWithGateway(ctx, payment)
}

func (s *PaymentService) reconcileWithGateway(ctx context.Context, payment *models.Payment) (*models.Payment, error) {
	if payment.GatewayTransactionID == nil {
		return payment, ErrPaymentNotFound
	}

	status, err := s.gateway.VerifyCharge(ctx, *payment.GatewayTransactionID)
	if err != nil {
		// Timeout or transport failure is not evidence of anything; leave the
		// record untouched for a later webhook or sweep.
		return payment, err
	}

	switch status.Status {
	case ChargeStatusSuccess:
		if !status.Amount.IsZero() && !status.Amount.Equal(payment.Amount) {
			reason := fmt.Sprintf("gateway amount %s does not match recorded amount %s",
				status.Amount.StringFixed(2), payment.Amount.StringFixed(2))
			return s.markFailed(payment.ID, reason)
		}
		return s.ReconcileSuccess(payment.ID)
	case ChargeStatusFailed:
		return s.markFailed(payment.ID, "payment failed at gateway")
	default:
		// Still pending at the gateway: no transition.
		return payment, nil
	}
}

// ReconcileSuccess is the single transition into completed, shared by Verify,
// webhook intake and the reconciliation sweep. It is idempotent: a payment
// already completed is a no-op success, so duplicate deliveries neither
// double-fire the confirmation notification nor re-advance the booking.
func (s *PaymentService) ReconcileSuccess(paymentID uuid.UUID) (*models.Payment, error) {
	now := time.Now()
	applied, err := s.ledger.SetPaymentStatus(paymentID,
		[]string{models.PaymentStatusPending, models.PaymentStatusProcessing, models.PaymentStatusFailed},
		models.PaymentStatusCompleted,
		map[string]interface{}{"paid_at": &now, "error_message": nil})
	if err != nil {
		return nil, err
	}

	payment, err := s.ledger.GetPayment(paymentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}

	if !applied {
		if payment.Status == models.PaymentStatusCompleted {
			return payment, nil
		}
		// cancelled or refunded administratively; a success event cannot
		// resurrect it.
		return payment, ErrInvalidTransition
	}

	if _, err := s.bookings.Confirm(payment.BookingID); err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			// Already confirmed by a racing path; the payment result stands.
			log.Printf("payment %s: booking %d already confirmed", paymentID, payment.BookingID)
		} else {
			log.Printf("payment %s: confirm booking %d: %v", paymentID, payment.BookingID, err)
		}
	}

	s.notifier.PaymentConfirmed(payment, &payment.Booking)
	return payment, nil
}

// HandleWebhook processes a gateway callback. The signature is checked before
// anything else; a completed payment is never downgraded by a late failure
// event.
func (s *PaymentService) HandleWebhook(rawBody []byte, signature string) error {
	if !s.VerifyWebhookSignature(rawBody, signature) {
		return ErrInvalidSignature
	}

	var event WebhookEvent
	if err := json.Unmarshal(rawBody, &event); err != nil {
		return fmt.Errorf("malformed webhook payload: %w", err)
	}

	payment, err := s.ledger.FindPaymentByTransactionID(event.TxRef)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrPaymentNotFound
		}
		return err
	}

	switch event.Event {
	case WebhookEventChargeCompleted:
		if _, err := s.ReconcileSuccess(payment.ID); err != nil {
			if errors.Is(err, ErrInvalidTransition) {
				log.Printf("payment %s: success webhook for administratively closed payment ignored", payment.ID)
				return nil
			}
			return err
		}
		return nil
	case WebhookEventChargeFailed:
		reason := event.FailureMessage
		if reason == "" {
			reason = "payment failed"
		}
		if _, err := s.markFailed(payment.ID, reason); err != nil {
			return err
		}
		return nil
	default:
		log.Printf("payment %s: unknown webhook event %q ignored", payment.ID, event.Event)
		return nil
	}
}

// VerifyWebhookSignature compares an HMAC-SHA256 of the raw body against the
// signature header in constant time.
func (s *PaymentService) VerifyWebhookSignature(body []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(s.cfg.WebhookSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// Retry re-arms a failed or cancelled payment and re-invokes initiation. The
// retry count is capped; the cap is checked before any gateway traffic.
func (s *PaymentService) Retry(ctx context.Context, paymentID uuid.UUID, guestID uint) (*models.Payment, error) {
	payment, err := s.ledger.GetPayment(paymentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	if payment.Booking.GuestID != guestID {
		return nil, ErrForbidden
	}
	if payment.Status != models.PaymentStatusFailed && payment.Status != models.PaymentStatusCancelled {
		return payment, ErrInvalidTransition
	}
	if payment.RetryCount >= models.MaxPaymentRetries {
		return payment, ErrRetryLimitExceeded
	}

	applied, err := s.ledger.SetPaymentStatus(paymentID,
		[]string{models.PaymentStatusFailed, models.PaymentStatusCancelled},
		models.PaymentStatusPending,
		map[string]interface{}{
			"retry_count":   gorm.Expr("retry_count + 1"),
			"error_message": nil,
		})
	if err != nil {
		return nil, err
	}
	if !applied {
		reloaded, err := s.ledger.GetPayment(paymentID)
		if err != nil {
			return nil, err
		}
		return reloaded, ErrInvalidTransition
	}

	return s.Initialize(ctx, payment.BookingID, guestID, payment.PaymentMethod)
}

func (s *PaymentService) markFailed(paymentID uuid.UUID, reason string) (*models.Payment, error) {
	applied, err := s.ledger.SetPaymentStatus(paymentID,
		[]string{models.PaymentStatusPending, models.PaymentStatusProcessing},
		models.PaymentStatusFailed,
		map[string]interface{}{"error_message": reason})
	if err != nil {
		return nil, err
	}
	if !applied {
		// Already terminal; in particular a failure arriving after success
		// must never downgrade a completed payment.
		log.Printf("payment %s: failure event ignored, payment already terminal", paymentID)
	}
	payment, err := s.ledger.GetPayment(paymentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return payment, nil
}

func nameOr(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
