package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"travel-booking-server/models"

	"github.com/go-redis/redis/v8"
)

type NotificationKind string

const (
	NotificationBookingCreated   NotificationKind = "booking-created"
	NotificationBookingConfirmed NotificationKind = "booking-confirmed"
	NotificationBookingCancelled NotificationKind = "booking-cancelled"
	NotificationPaymentConfirmed NotificationKind = "payment-confirmed"
	NotificationHostNotified     NotificationKind = "host-notified"
)

const (
	notificationQueueKey    = "notifications:jobs"
	notificationMaxAttempts = 3
	notificationRetryDelay  = time.Minute
)

// BookingEventPayload carries everything a booking email needs, snapshotted
// at enqueue time so delivery never reads the database.
type BookingEventPayload struct {
	BookingID    uint   `json:"bookingID"`
	ListingTitle string `json:"listingTitle"`
	GuestName    string `json:"guestName"`
	GuestEmail   string `json:"guestEmail"`
	HostName     string `json:"hostName"`
	HostEmail    string `json:"hostEmail"`
	CheckIn      string `json:"checkIn"`
	CheckOut     string `json:"checkOut"`
	Nights       int    `json:"nights"`
	TotalPrice   string `json:"totalPrice"`
	Currency     string `json:"currency"`
	PriorStatus  string `json:"priorStatus,omitempty"`
}

type PaymentEventPayload struct {
	PaymentID      string `json:"paymentID"`
	BookingID      uint   `json:"bookingID"`
	ListingTitle   string `json:"listingTitle"`
	Amount         string `json:"amount"`
	Currency       string `json:"currency"`
	CustomerName   string `json:"customerName"`
	CustomerEmail  string `json:"customerEmail"`
	TransactionRef string `json:"transactionRef"`
}

// NotificationJob is the durable queue entry. Retries are recorded as data:
// a failed delivery re-enqueues the job with attempt bumped and a next
// eligible time, it never blocks or fails the operation that emitted it.
type NotificationJob struct {
	Kind           NotificationKind `json:"kind"`
	Payload        json.RawMessage  `json:"payload"`
	Attempt        int              `json:"attempt"`
	MaxAttempts    int              `json:"maxAttempts"`
	NextEligibleAt time.Time        `json:"nextEligibleAt"`
}

// NotificationSink is what the state machines see: fire-and-forget event
// emission. The production implementation is Notifier.
type NotificationSink interface {
	BookingCreated(booking *models.Booking)
	BookingConfirmed(booking *models.Booking, priorStatus string)
	BookingCancelled(booking *models.Booking)
	PaymentConfirmed(payment *models.Payment, booking *models.Booking)
}

// Notifier pushes notification jobs onto a Redis list and runs a small worker
// pool that pops, renders and delivers them through the Mailer.
type Notifier struct {
	redis   *redis.Client
	mailer  Mailer
	workers int
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewNotifier(rdb *redis.Client, mailer Mailer) *Notifier {
	ctx, cancel := context.WithCancel(context.Background())
	return &Notifier{
		redis:   rdb,
		mailer:  mailer,
		workers: 2,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start launches the delivery workers.
func (n *Notifier) Start() {
	for i := 0; i < n.workers; i++ {
		n.wg.Add(1)
		go n.worker()
	}
}

// Stop cancels the workers and waits for them to drain.
func (n *Notifier) Stop() {
	n.cancel()
	n.wg.Wait()
	log.Println("Notification workers stopped")
}

func (n *Notifier) BookingCreated(booking *models.Booking) {
	payload := bookingPayload(booking)
	n.enqueue(NotificationBookingCreated, payload)
	n.enqueue(NotificationHostNotified, payload)
}

func (n *Notifier) BookingConfirmed(booking *models.Booking, priorStatus string) {
	payload := bookingPayload(booking)
	payload.PriorStatus = priorStatus
	n.enqueue(NotificationBookingConfirmed, payload)
}

func (n *Notifier) BookingCancelled(booking *models.Booking) {
	n.enqueue(NotificationBookingCancelled, bookingPayload(booking))
}

func (n *Notifier) PaymentConfirmed(payment *models.Payment, booking *models.Booking) {
	txRef := ""
	if payment.GatewayTransactionID != nil {
		txRef = *payment.GatewayTransactionID
	}
	n.enqueue(NotificationPaymentConfirmed, PaymentEventPayload{
		PaymentID:      payment.ID.String(),
		BookingID:      booking.ID,
		ListingTitle:   booking.Listing.Title,
		Amount:         payment.Amount.StringFixed(2),
		Currency:       payment.Currency,
		CustomerName:   fmt.Sprintf("%s %s", payment.CustomerFirstName, payment.CustomerLastName),
		CustomerEmail:  payment.CustomerEmail,
		TransactionRef: txRef,
	})
}

func bookingPayload(booking *models.Booking) BookingEventPayload {
	return BookingEventPayload{
		BookingID:    booking.ID,
		ListingTitle: booking.Listing.Title,
		GuestName:    fmt.Sprintf("%s %s", booking.Guest.FirstName, booking.Guest.LastName),
		GuestEmail:   booking.Guest.Email,
		HostName:     fmt.Sprintf("%s %s", booking.Listing.Host.FirstName, booking.Listing.Host.LastName),
		HostEmail:    booking.Listing.Host.Email,
		CheckIn:      booking.CheckIn.Format("January 2, 2006"),
		CheckOut:     booking.CheckOut.Format("January 2, 2006"),
		Nights:       booking.Nights(),
		TotalPrice:   booking.TotalPrice.StringFixed(2),
		Currency:     booking.Listing.Currency,
	}
}

// enqueue is best-effort: a queue failure is logged, never returned to the
// operation that triggered the notification.
func (n *Notifier) enqueue(kind NotificationKind, payload interface{}) {
	raw, err := json.Marshal(payload)
	if err != nil {
		log.Printf("notifier: marshal %s payload: %v", kind, err)
		return
	}
	job := NotificationJob{
		Kind:           kind,
		Payload:        raw,
		Attempt:        0,
		MaxAttempts:    notificationMaxAttempts,
		NextEligibleAt: time.Now(),
	}
	n.push(job)
}

func (n *Notifier) push(job NotificationJob) {
	raw, err := json.Marshal(job)
	if err != nil {
		log.Printf("notifier: marshal %s job: %v", job.Kind, err)
		return
	}
	if err := n.redis.LPush(n.ctx, notificationQueueKey, raw).Err(); err != nil {
		log.Printf("notifier: enqueue %s: %v", job.Kind, err)
	}
}

func (n *Notifier) worker() {
	defer n.wg.Done()
	for {
		select {
		case <-n.ctx.Done():
			return
		default:
		}

		res, err := n.redis.BRPop(n.ctx, 5*time.Second, notificationQueueKey).Result()
		if err != nil {
			if err == redis.Nil {
				continue
			}
			if n.ctx.Err() != nil {
				return
			}
			log.Printf("notifier: pop: %v", err)
			time.Sleep(time.Second)
			continue
		}

		var job NotificationJob
		if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
			log.Printf("notifier: malformed job dropped: %v", err)
			continue
		}

		if wait := time.Until(job.NextEligibleAt); wait > 0 {
			// Not eligible yet: put it back and let the queue cycle.
			n.push(job)
			select {
			case <-n.ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		if err := n.deliver(job); err != nil {
			job.Attempt++
			if job.Attempt >= job.MaxAttempts {
				log.Printf("notifier: %s delivery failed after %d attempts, dropping: %v",
					job.Kind, job.Attempt, err)
				continue
			}
			job.NextEligibleAt = time.Now().Add(notificationRetryDelay)
			log.Printf("notifier: %s delivery failed (attempt %d/%d), retrying: %v",
				job.Kind, job.Attempt, job.MaxAttempts, err)
			n.push(job)
		}
	}
}

func (n *Notifier) deliver(job NotificationJob) error {
	switch job.Kind {
	case NotificationBookingCreated, NotificationBookingConfirmed,
		NotificationBookingCancelled, NotificationHostNotified:
		var p BookingEventPayload
		if err := json.Unmarshal(job.Payload, &p); err != nil {
			return err
		}
		toEmail, toName, subject, body := renderBookingEmail(job.Kind, p)
		return n.mailer.Send(toEmail, toName, subject, body)
	case NotificationPaymentConfirmed:
		var p PaymentEventPayload
		if err := json.Unmarshal(job.Payload, &p); err != nil {
			return err
		}
		subject := fmt.Sprintf("Payment Confirmation - %s", p.ListingTitle)
		body := fmt.Sprintf(
			"Hello %s,\n\nWe received your payment of %s %s for booking #%d.\nTransaction reference: %s\n\nThank you for booking with us!",
			p.CustomerName, p.Amount, p.Currency, p.BookingID, p.TransactionRef)
		return n.mailer.Send(p.CustomerEmail, p.CustomerName, subject, body)
	default:
		log.Printf("notifier: unknown notification kind %q dropped", job.Kind)
		return nil
	}
}

func renderBookingEmail(kind NotificationKind, p BookingEventPayload) (toEmail, toName, subject, body string) {
	stay := fmt.Sprintf("%s to %s (%d nights), total %s %s",
		p.CheckIn, p.CheckOut, p.Nights, p.TotalPrice, p.Currency)

	switch kind {
	case NotificationBookingCreated:
		return p.GuestEmail, p.GuestName,
			fmt.Sprintf("Booking Received - %s", p.ListingTitle),
			fmt.Sprintf("Hello %s,\n\nYour booking #%d for %s is pending confirmation.\n%s\n\nWe will notify you once the host confirms.",
				p.GuestName, p.BookingID, p.ListingTitle, stay)
	case NotificationHostNotified:
		return p.HostEmail, p.HostName,
			fmt.Sprintf("New Booking - %s", p.ListingTitle),
			fmt.Sprintf("Hello %s,\n\n%s requested a booking (#%d) for %s.\n%s",
				p.HostName, p.GuestName, p.BookingID, p.ListingTitle, stay)
	case NotificationBookingConfirmed:
		return p.GuestEmail, p.GuestName,
			fmt.Sprintf("Booking Confirmed - %s", p.ListingTitle),
			fmt.Sprintf("Hello %s,\n\nYour booking #%d for %s is confirmed (was %s).\n%s",
				p.GuestName, p.BookingID, p.ListingTitle, p.PriorStatus, stay)
	default: // NotificationBookingCancelled
		return p.GuestEmail, p.GuestName,
			fmt.Sprintf("Booking Cancelled - %s", p.ListingTitle),
			fmt.Sprintf("Hello %s,\n\nYour booking #%d for %s has been cancelled.\n%s",
				p.GuestName, p.BookingID, p.ListingTitle, stay)
	}
}
