package services

import (
	"time"

	"github.com/shopspring/decimal"
)

// Nights returns the whole-day stay length between two dates.
func Nights(checkIn, checkOut time.Time) int {
	in := checkIn.Truncate(24 * time.Hour)
	out := checkOut.Truncate(24 * time.Hour)
	return int(out.Sub(in).Hours() / 24)
}

// Price computes the total price for a stay: nightly rate times whole nights,
// rounded to the currency's two minor-unit digits. Pure and deterministic.
func Price(nightlyRate decimal.Decimal, checkIn, checkOut time.Time) (decimal.Decimal, error) {
	nights := Nights(checkIn, checkOut)
	if nights <= 0 {
		return decimal.Zero, ErrInvalidDateRange
	}
	return nightlyRate.Mul(decimal.NewFromInt(int64(nights))).Round(2), nil
}
