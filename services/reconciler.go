package services

import (
	"context"
	"log"
	"time"

	"travel-booking-server/storage"
)

// Reconciler periodically re-verifies payments stuck in pending or processing
// against the gateway. Candidates are bounded to a recent window; older stuck
// payments are surfaced for manual review instead of being swept forever.
type Reconciler struct {
	ledger   *storage.Ledger
	payments *PaymentService
	interval time.Duration
	window   time.Duration
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
}

func NewReconciler(ledger *storage.Ledger, payments *PaymentService, interval, window time.Duration) *Reconciler {
	if interval == 0 {
		interval = 5 * time.Minute
	}
	if window == 0 {
		window = 24 * time.Hour
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Reconciler{
		ledger:   ledger,
		payments: payments,
		interval: interval,
		window:   window,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

// Start starts the sweep loop in a goroutine.
func (r *Reconciler) Start() {
	go r.run()
}

// Stop stops the loop and waits for an in-flight sweep to finish.
func (r *Reconciler) Stop() {
	r.cancel()
	<-r.done
	log.Println("Reconciler stopped")
}

func (r *Reconciler) run() {
	defer close(r.done)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(r.ctx)
		}
	}
}

// Sweep re-verifies every candidate payment. A failure on one candidate is
// logged and must not block reconciliation of the rest.
func (r *Reconciler) Sweep(ctx context.Context) {
	candidates, err := r.ledger.StalePayments(r.window)
	if err != nil {
		log.Printf("reconciler: load candidates: %v", err)
		return
	}

	for i := range candidates {
		payment := &candidates[i]
		if _, err := r.payments.ReconcilePayment(ctx, payment); err != nil {
			log.Printf("reconciler: payment %s: %v", payment.ID, err)
		}
	}

	abandoned, err := r.ledger.AbandonedPayments(r.window)
	if err != nil {
		log.Printf("reconciler: load abandoned payments: %v", err)
		return
	}
	for i := range abandoned {
		log.Printf("reconciler: payment %s stuck in %s for over %s, needs manual review",
			abandoned[i].ID, abandoned[i].Status, r.window)
	}
}
