package services

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestPriceMultipliesRateByNights(t *testing.T) {
	rate, _ := decimal.NewFromString("100.00")
	total, err := Price(rate, date(t, "2026-03-01"), date(t, "2026-03-04"))
	if err != nil {
		t.Fatalf("Price returned error: %v", err)
	}
	if got := total.StringFixed(2); got != "300.00" {
		t.Errorf("3 nights at 100.00: got %s, want 300.00", got)
	}
}

func TestPriceRoundsToTwoDecimals(t *testing.T) {
	rate, _ := decimal.NewFromString("33.335")
	total, err := Price(rate, date(t, "2026-03-01"), date(t, "2026-03-04"))
	if err != nil {
		t.Fatalf("Price returned error: %v", err)
	}
	if got := total.StringFixed(2); got != "100.01" {
		t.Errorf("3 nights at 33.335: got %s, want 100.01", got)
	}
}

func TestPriceIsDeterministic(t *testing.T) {
	rate, _ := decimal.NewFromString("149.99")
	in, out := date(t, "2026-07-10"), date(t, "2026-07-17")

	first, err := Price(rate, in, out)
	if err != nil {
		t.Fatalf("Price returned error: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := Price(rate, in, out)
		if err != nil {
			t.Fatalf("Price returned error on repeat: %v", err)
		}
		if !again.Equal(first) {
			t.Fatalf("same inputs produced %s then %s", first, again)
		}
	}
}

func TestPriceRejectsEmptyOrReversedRange(t *testing.T) {
	rate, _ := decimal.NewFromString("100.00")

	if _, err := Price(rate, date(t, "2026-03-04"), date(t, "2026-03-04")); !errors.Is(err, ErrInvalidDateRange) {
		t.Errorf("zero-night stay: got %v, want ErrInvalidDateRange", err)
	}
	if _, err := Price(rate, date(t, "2026-03-04"), date(t, "2026-03-01")); !errors.Is(err, ErrInvalidDateRange) {
		t.Errorf("reversed range: got %v, want ErrInvalidDateRange", err)
	}
}

func TestNightsCountsWholeDays(t *testing.T) {
	if got := Nights(date(t, "2026-03-01"), date(t, "2026-03-08")); got != 7 {
		t.Errorf("got %d nights, want 7", got)
	}
}
