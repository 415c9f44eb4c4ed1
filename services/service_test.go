package services

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"travel-booking-server/models"
	"travel-booking-server/storage"

	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var testDBCounter int64

// newTestDB opens an isolated in-memory database and returns both the raw
// handle (for fixture setup) and the ledger under test.
func newTestDB(t *testing.T) (*gorm.DB, *storage.Ledger) {
	t.Helper()
	n := atomic.AddInt64(&testDBCounter, 1)
	dsn := fmt.Sprintf("file:ledger_test_%d?mode=memory&cache=shared&_busy_timeout=5000", n)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		// sqlite's shared-cache mode returns table-lock errors under
		// concurrent writers; one connection serializes them.
		sqlDB.SetMaxOpenConns(1)
	}
	if err := db.AutoMigrate(
		&models.User{}, &models.Listing{}, &models.Booking{},
		&models.Payment{}, &models.Review{},
	); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return db, storage.NewLedger(db)
}

func seedListing(t *testing.T, db *gorm.DB, rate string, maxGuests int, available bool) (*models.User, *models.User, *models.Listing) {
	t.Helper()
	host := models.User{Email: fmt.Sprintf("host%d@example.com", time.Now().UnixNano()), FirstName: "Hana", LastName: "Host", Role: "host"}
	guest := models.User{Email: fmt.Sprintf("guest%d@example.com", time.Now().UnixNano()), FirstName: "Gideon", LastName: "Guest"}
	if err := db.Create(&host).Error; err != nil {
		t.Fatalf("seed host: %v", err)
	}
	if err := db.Create(&guest).Error; err != nil {
		t.Fatalf("seed guest: %v", err)
	}

	listing := models.Listing{
		HostID:       host.ID,
		Title:        "Lakeside Cabin",
		PropertyType: "cabin",
		City:         "Bahir Dar",
		Country:      "Ethiopia",
		NightlyRate:  mustDecimal(t, rate),
		Currency:     "ETB",
		MaxGuests:    maxGuests,
		IsAvailable:  &available,
	}
	if err := db.Create(&listing).Error; err != nil {
		t.Fatalf("seed listing: %v", err)
	}
	return &host, &guest, &listing
}

func mustDecimal(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("parse decimal %q: %v", s, err)
	}
	return d
}

func date(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		t.Fatalf("parse date %q: %v", s, err)
	}
	return d
}

// sinkRecorder counts notification emissions per kind.
type sinkRecorder struct {
	mu               sync.Mutex
	bookingCreated   []uint
	bookingConfirmed []uint
	bookingCancelled []uint
	paymentConfirmed []string
}

func (r *sinkRecorder) BookingCreated(b *models.Booking) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bookingCreated = append(r.bookingCreated, b.ID)
}

func (r *sinkRecorder) BookingConfirmed(b *models.Booking, priorStatus string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bookingConfirmed = append(r.bookingConfirmed, b.ID)
}

func (r *sinkRecorder) BookingCancelled(b *models.Booking) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bookingCancelled = append(r.bookingCancelled, b.ID)
}

func (r *sinkRecorder) PaymentConfirmed(p *models.Payment, b *models.Booking) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paymentConfirmed = append(r.paymentConfirmed, p.ID.String())
}

func (r *sinkRecorder) paymentConfirmedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.paymentConfirmed)
}

// fakeGateway is a scriptable Gateway implementation.
type fakeGateway struct {
	mu          sync.Mutex
	initSession *ChargeSession
	initErr     error
	verifyFn    func(txRef string) (*ChargeStatus, error)
	initCalls   int
	verifyCalls int
}

func (g *fakeGateway) InitiateCharge(ctx context.Context, req ChargeRequest) (*ChargeSession, error) {
	g.mu.Lock()
	g.initCalls++
	g.mu.Unlock()
	if g.initErr != nil {
		return nil, g.initErr
	}
	if g.initSession != nil {
		return g.initSession, nil
	}
	return &ChargeSession{TransactionID: req.TxRef, CheckoutURL: "https://checkout.test/" + req.TxRef}, nil
}

func (g *fakeGateway) VerifyCharge(ctx context.Context, txRef string) (*ChargeStatus, error) {
	g.mu.Lock()
	g.verifyCalls++
	g.mu.Unlock()
	if g.verifyFn != nil {
		return g.verifyFn(txRef)
	}
	return &ChargeStatus{Status: ChargeStatusPending}, nil
}

func (g *fakeGateway) initCallCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.initCalls
}

func (g *fakeGateway) verifyCallCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.verifyCalls
}
