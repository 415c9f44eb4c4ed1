package services

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"testing"

	"travel-booking-server/models"
	"travel-booking-server/storage"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const testWebhookSecret = "whsec-test"

type paymentFixture struct {
	db       *gorm.DB
	ledger   *storage.Ledger
	gateway  *fakeGateway
	sink     *sinkRecorder
	bookings *BookingService
	payments *PaymentService
}

func newPaymentFixture(t *testing.T) *paymentFixture {
	t.Helper()
	db, ledger := newTestDB(t)
	gateway := &fakeGateway{}
	sink := &sinkRecorder{}
	bookings := NewBookingService(ledger, sink)
	payments := NewPaymentService(PaymentConfig{
		WebhookSecret: testWebhookSecret,
		CallbackURL:   "https://example.test/api/payment/webhook",
		ReturnURL:     "https://example.test",
		Currency:      "ETB",
	}, ledger, gateway, bookings, sink)
	return &paymentFixture{
		db:       db,
		ledger:   ledger,
		gateway:  gateway,
		sink:     sink,
		bookings: bookings,
		payments: payments,
	}
}

func (f *paymentFixture) pendingBooking(t *testing.T) (*models.User, *models.Booking) {
	t.Helper()
	return createPendingBooking(t, f.db, f.bookings)
}

// processingPayment drives a booking through Initialize with a successful
// gateway session, leaving the payment in processing with a transaction id.
func (f *paymentFixture) processingPayment(t *testing.T) (*models.User, *models.Booking, *models.Payment) {
	t.Helper()
	guest, booking := f.pendingBooking(t)
	payment, err := f.payments.Initialize(context.Background(), booking.ID, guest.ID, "chapa")
	if err != nil {
		t.Fatalf("initialize payment: %v", err)
	}
	return guest, booking, payment
}

func signBody(body []byte) string {
	mac := hmac.New(sha256.New, []byte(testWebhookSecret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func successStatus(amount string) func(string) (*ChargeStatus, error) {
	return func(string) (*ChargeStatus, error) {
		a, _ := decimal.NewFromString(amount)
		return &ChargeStatus{Status: ChargeStatusSuccess, Amount: a, Currency: "ETB"}, nil
	}
}

func TestInitializeMovesPaymentToProcessing(t *testing.T) {
	f := newPaymentFixture(t)
	_, booking, payment := f.processingPayment(t)

	if payment.Status != models.PaymentStatusProcessing {
		t.Errorf("status = %q, want processing", payment.Status)
	}
	if payment.GatewayTransactionID == nil || *payment.GatewayTransactionID != payment.ID.String() {
		t.Errorf("transaction id not recorded, got %v", payment.GatewayTransactionID)
	}
	if payment.GatewayCheckoutURL == nil || *payment.GatewayCheckoutURL == "" {
		t.Error("checkout url not recorded")
	}
	if !payment.Amount.Equal(booking.TotalPrice) {
		t.Errorf("payment amount %s does not snapshot booking total %s",
			payment.Amount, booking.TotalPrice)
	}
}

func TestInitializeRequiresPendingBooking(t *testing.T) {
	f := newPaymentFixture(t)
	guest, booking := f.pendingBooking(t)
	if _, err := f.bookings.Confirm(booking.ID); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	_, err := f.payments.Initialize(context.Background(), booking.ID, guest.ID, "chapa")
	if !errors.Is(err, ErrBookingNotPayable) {
		t.Fatalf("got %v, want ErrBookingNotPayable", err)
	}

	var count int64
	f.db.Model(&models.Payment{}).Count(&count)
	if count != 0 {
		t.Errorf("payment row created for unpayable booking, count = %d", count)
	}
	if f.gateway.initCallCount() != 0 {
		t.Errorf("gateway contacted for unpayable booking")
	}
}

func TestInitializeForbiddenForOtherGuest(t *testing.T) {
	f := newPaymentFixture(t)
	guest, booking := f.pendingBooking(t)

	_, err := f.payments.Initialize(context.Background(), booking.ID, guest.ID+100, "chapa")
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("got %v, want ErrForbidden", err)
	}
}

func TestInitializeRejectsSecondPayment(t *testing.T) {
	f := newPaymentFixture(t)
	guest, booking, _ := f.processingPayment(t)

	_, err := f.payments.Initialize(context.Background(), booking.ID, guest.ID, "chapa")
	if !errors.Is(err, ErrPaymentAlreadyExists) {
		t.Fatalf("got %v, want ErrPaymentAlreadyExists", err)
	}

	var count int64
	f.db.Model(&models.Payment{}).Count(&count)
	if count != 1 {
		t.Errorf("payment count = %d, want 1", count)
	}
}

func TestInitializeGatewayFailureLandsInFailed(t *testing.T) {
	f := newPaymentFixture(t)
	guest, booking := f.pendingBooking(t)
	f.gateway.initErr = &GatewayError{Op: "initialize", Message: "request timed out"}

	payment, err := f.payments.Initialize(context.Background(), booking.ID, guest.ID, "chapa")
	var gwErr *GatewayError
	if !errors.As(err, &gwErr) {
		t.Fatalf("got %v, want GatewayError", err)
	}
	if payment == nil {
		t.Fatal("failed payment record not returned")
	}
	if payment.Status != models.PaymentStatusFailed {
		t.Errorf("status = %q, want failed", payment.Status)
	}
	if payment.ErrorMessage == nil || *payment.ErrorMessage == "" {
		t.Error("failure reason not recorded")
	}
}

func TestVerifySuccessCompletesPaymentAndConfirmsBooking(t *testing.T) {
	f := newPaymentFixture(t)
	guest, booking, payment := f.processingPayment(t)
	f.gateway.verifyFn = successStatus("300.00")

	verified, err := f.payments.Verify(context.Background(), *payment.GatewayTransactionID, guest.ID)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if verified.Status != models.PaymentStatusCompleted {
		t.Errorf("status = %q, want completed", verified.Status)
	}
	if verified.PaidAt == nil {
		t.Error("paid_at not stamped")
	}

	reloaded, err := f.ledger.GetBooking(booking.ID)
	if err != nil {
		t.Fatalf("reload booking: %v", err)
	}
	if reloaded.Status != models.BookingStatusConfirmed {
		t.Errorf("booking status = %q, want confirmed", reloaded.Status)
	}
	if f.sink.paymentConfirmedCount() != 1 {
		t.Errorf("payment-confirmed notifications = %d, want 1", f.sink.paymentConfirmedCount())
	}
}

func TestReconcileSuccessIsIdempotent(t *testing.T) {
	f := newPaymentFixture(t)
	guest, _, payment := f.processingPayment(t)
	f.gateway.verifyFn = successStatus("300.00")

	first, err := f.payments.Verify(context.Background(), *payment.GatewayTransactionID, guest.ID)
	if err != nil {
		t.Fatalf("first verify: %v", err)
	}
	if first.PaidAt == nil {
		t.Fatal("paid_at not stamped")
	}
	paidAt := *first.PaidAt

	// Redelivery through every intake path: another verify, a duplicate
	// webhook and a direct reconcile all land on the completed record.
	second, err := f.payments.Verify(context.Background(), *payment.GatewayTransactionID, guest.ID)
	if err != nil {
		t.Fatalf("duplicate verify: %v", err)
	}
	if _, err := f.payments.ReconcileSuccess(payment.ID); err != nil {
		t.Fatalf("duplicate reconcile: %v", err)
	}
	body := []byte(fmt.Sprintf(`{"event":"charge.completed","tx_ref":"%s"}`, *payment.GatewayTransactionID))
	if err := f.payments.HandleWebhook(body, signBody(body)); err != nil {
		t.Fatalf("duplicate webhook: %v", err)
	}

	if second.Status != models.PaymentStatusCompleted {
		t.Errorf("status = %q, want completed", second.Status)
	}
	if second.PaidAt == nil || !second.PaidAt.Equal(paidAt) {
		t.Errorf("paid_at moved on redelivery: %v vs %v", second.PaidAt, paidAt)
	}
	if f.sink.paymentConfirmedCount() != 1 {
		t.Errorf("payment-confirmed notifications = %d, want exactly 1", f.sink.paymentConfirmedCount())
	}
}

func TestLateFailureNeverDowngradesCompleted(t *testing.T) {
	f := newPaymentFixture(t)
	guest, _, payment := f.processingPayment(t)
	f.gateway.verifyFn = successStatus("300.00")
	if _, err := f.payments.Verify(context.Background(), *payment.GatewayTransactionID, guest.ID); err != nil {
		t.Fatalf("verify: %v", err)
	}

	body := []byte(fmt.Sprintf(`{"event":"charge.failed","tx_ref":"%s","failure_message":"card declined"}`,
		*payment.GatewayTransactionID))
	if err := f.payments.HandleWebhook(body, signBody(body)); err != nil {
		t.Fatalf("late failure webhook: %v", err)
	}

	reloaded, err := f.ledger.GetPayment(payment.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Status != models.PaymentStatusCompleted {
		t.Errorf("late failure downgraded payment to %q", reloaded.Status)
	}
	if reloaded.PaidAt == nil {
		t.Error("paid_at cleared by late failure")
	}
}

func TestWebhookCompletedEventReconciles(t *testing.T) {
	f := newPaymentFixture(t)
	_, booking, payment := f.processingPayment(t)

	body := []byte(fmt.Sprintf(`{"event":"charge.completed","tx_ref":"%s"}`, *payment.GatewayTransactionID))
	if err := f.payments.HandleWebhook(body, signBody(body)); err != nil {
		t.Fatalf("webhook: %v", err)
	}

	reloaded, err := f.ledger.GetPayment(payment.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Status != models.PaymentStatusCompleted {
		t.Errorf("status = %q, want completed", reloaded.Status)
	}
	bookingReloaded, err := f.ledger.GetBooking(booking.ID)
	if err != nil {
		t.Fatalf("reload booking: %v", err)
	}
	if bookingReloaded.Status != models.BookingStatusConfirmed {
		t.Errorf("booking status = %q, want confirmed", bookingReloaded.Status)
	}
}

func TestWebhookFailedEventRecordsReason(t *testing.T) {
	f := newPaymentFixture(t)
	_, _, payment := f.processingPayment(t)

	body := []byte(fmt.Sprintf(`{"event":"charge.failed","tx_ref":"%s","failure_message":"insufficient funds"}`,
		*payment.GatewayTransactionID))
	if err := f.payments.HandleWebhook(body, signBody(body)); err != nil {
		t.Fatalf("webhook: %v", err)
	}

	reloaded, err := f.ledger.GetPayment(payment.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Status != models.PaymentStatusFailed {
		t.Errorf("status = %q, want failed", reloaded.Status)
	}
	if reloaded.ErrorMessage == nil || *reloaded.ErrorMessage != "insufficient funds" {
		t.Errorf("error message = %v, want gateway reason", reloaded.ErrorMessage)
	}
}

func TestWebhookRejectsBadSignatureBeforeLookup(t *testing.T) {
	f := newPaymentFixture(t)

	// No payment exists at all: a signature failure must win over not-found.
	body := []byte(`{"event":"charge.completed","tx_ref":"does-not-exist"}`)
	err := f.payments.HandleWebhook(body, "deadbeef")
	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("got %v, want ErrInvalidSignature", err)
	}
}

func TestWebhookUnknownTransaction(t *testing.T) {
	f := newPaymentFixture(t)

	body := []byte(`{"event":"charge.completed","tx_ref":"does-not-exist"}`)
	err := f.payments.HandleWebhook(body, signBody(body))
	if !errors.Is(err, ErrPaymentNotFound) {
		t.Fatalf("got %v, want ErrPaymentNotFound", err)
	}
}

func TestWebhookUnknownEventIgnored(t *testing.T) {
	f := newPaymentFixture(t)
	_, _, payment := f.processingPayment(t)

	body := []byte(fmt.Sprintf(`{"event":"charge.disputed","tx_ref":"%s"}`, *payment.GatewayTransactionID))
	if err := f.payments.HandleWebhook(body, signBody(body)); err != nil {
		t.Fatalf("unknown event should be acknowledged, got %v", err)
	}

	reloaded, err := f.ledger.GetPayment(payment.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Status != models.PaymentStatusProcessing {
		t.Errorf("unknown event changed status to %q", reloaded.Status)
	}
}

func TestVerifyUnknownTransactionTouchesNothing(t *testing.T) {
	f := newPaymentFixture(t)
	guest, booking := f.pendingBooking(t)

	_, err := f.payments.Verify(context.Background(), "no-such-tx", guest.ID)
	if !errors.Is(err, ErrPaymentNotFound) {
		t.Fatalf("got %v, want ErrPaymentNotFound", err)
	}
	if f.gateway.verifyCallCount() != 0 {
		t.Errorf("gateway queried for unknown transaction")
	}

	reloaded, err := f.ledger.GetBooking(booking.ID)
	if err != nil {
		t.Fatalf("reload booking: %v", err)
	}
	if reloaded.Status != models.BookingStatusPending {
		t.Errorf("booking status changed to %q", reloaded.Status)
	}
}

func TestVerifyScopedToOwner(t *testing.T) {
	f := newPaymentFixture(t)
	guest, _, payment := f.processingPayment(t)

	_, err := f.payments.Verify(context.Background(), *payment.GatewayTransactionID, guest.ID+100)
	if !errors.Is(err, ErrPaymentNotFound) {
		t.Fatalf("got %v, want ErrPaymentNotFound for foreign caller", err)
	}
}

func TestVerifyTransportErrorLeavesPaymentUntouched(t *testing.T) {
	f := newPaymentFixture(t)
	guest, _, payment := f.processingPayment(t)
	f.gateway.verifyFn = func(string) (*ChargeStatus, error) {
		return nil, &GatewayError{Op: "verify", Message: "request timed out"}
	}

	_, err := f.payments.Verify(context.Background(), *payment.GatewayTransactionID, guest.ID)
	var gwErr *GatewayError
	if !errors.As(err, &gwErr) {
		t.Fatalf("got %v, want GatewayError", err)
	}

	reloaded, err := f.ledger.GetPayment(payment.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Status != models.PaymentStatusProcessing {
		t.Errorf("transport error moved payment to %q", reloaded.Status)
	}
}

func TestVerifyGatewayReportedFailure(t *testing.T) {
	f := newPaymentFixture(t)
	guest, _, payment := f.processingPayment(t)
	f.gateway.verifyFn = func(string) (*ChargeStatus, error) {
		return &ChargeStatus{Status: ChargeStatusFailed}, nil
	}

	verified, err := f.payments.Verify(context.Background(), *payment.GatewayTransactionID, guest.ID)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if verified.Status != models.PaymentStatusFailed {
		t.Errorf("status = %q, want failed", verified.Status)
	}
}

func TestVerifyAmountMismatchMarksFailed(t *testing.T) {
	f := newPaymentFixture(t)
	guest, _, payment := f.processingPayment(t)
	f.gateway.verifyFn = successStatus("100.00")

	verified, err := f.payments.Verify(context.Background(), *payment.GatewayTransactionID, guest.ID)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if verified.Status != models.PaymentStatusFailed {
		t.Errorf("status = %q, want failed on amount mismatch", verified.Status)
	}
	if verified.ErrorMessage == nil {
		t.Fatal("mismatch reason not recorded")
	}
}

func TestVerifyPendingAtGatewayIsNoOp(t *testing.T) {
	f := newPaymentFixture(t)
	guest, _, payment := f.processingPayment(t)

	verified, err := f.payments.Verify(context.Background(), *payment.GatewayTransactionID, guest.ID)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if verified.Status != models.PaymentStatusProcessing {
		t.Errorf("pending charge moved payment to %q", verified.Status)
	}
}

func TestRetryReinitiatesFailedPayment(t *testing.T) {
	f := newPaymentFixture(t)
	guest, booking := f.pendingBooking(t)
	f.gateway.initErr = &GatewayError{Op: "initialize", Message: "request timed out"}

	failed, err := f.payments.Initialize(context.Background(), booking.ID, guest.ID, "chapa")
	if err == nil {
		t.Fatal("expected initiation failure")
	}
	if failed.Status != models.PaymentStatusFailed {
		t.Fatalf("status = %q, want failed", failed.Status)
	}

	f.gateway.initErr = nil
	retried, err := f.payments.Retry(context.Background(), failed.ID, guest.ID)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if retried.Status != models.PaymentStatusProcessing {
		t.Errorf("status = %q, want processing", retried.Status)
	}
	if retried.RetryCount != 1 {
		t.Errorf("retry count = %d, want 1", retried.RetryCount)
	}
	if retried.ErrorMessage != nil {
		t.Errorf("stale error message kept: %q", *retried.ErrorMessage)
	}

	var count int64
	f.db.Model(&models.Payment{}).Count(&count)
	if count != 1 {
		t.Errorf("retry created a second payment row, count = %d", count)
	}
}

func TestRetryCapCheckedBeforeGateway(t *testing.T) {
	f := newPaymentFixture(t)
	guest, booking := f.pendingBooking(t)
	f.gateway.initErr = &GatewayError{Op: "initialize", Message: "request timed out"}

	failed, _ := f.payments.Initialize(context.Background(), booking.ID, guest.ID, "chapa")
	if err := f.db.Model(&models.Payment{}).Where("id = ?", failed.ID).
		Update("retry_count", models.MaxPaymentRetries).Error; err != nil {
		t.Fatalf("set retry count: %v", err)
	}
	callsBefore := f.gateway.initCallCount()

	_, err := f.payments.Retry(context.Background(), failed.ID, guest.ID)
	if !errors.Is(err, ErrRetryLimitExceeded) {
		t.Fatalf("got %v, want ErrRetryLimitExceeded", err)
	}
	if f.gateway.initCallCount() != callsBefore {
		t.Errorf("gateway contacted for an exhausted payment")
	}
}

func TestRetryRequiresFailedPayment(t *testing.T) {
	f := newPaymentFixture(t)
	guest, _, payment := f.processingPayment(t)

	_, err := f.payments.Retry(context.Background(), payment.ID, guest.ID)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("retry of processing payment: got %v, want ErrInvalidTransition", err)
	}
}

func TestRetryForbiddenForOtherGuest(t *testing.T) {
	f := newPaymentFixture(t)
	guest, booking := f.pendingBooking(t)
	f.gateway.initErr = &GatewayError{Op: "initialize", Message: "request timed out"}
	failed, _ := f.payments.Initialize(context.Background(), booking.ID, guest.ID, "chapa")

	_, err := f.payments.Retry(context.Background(), failed.ID, guest.ID+100)
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("got %v, want ErrForbidden", err)
	}
}
