package utils

import (
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// CalculatePlatformFee returns the platform's share of a session's gross amount.
// Formula: gross * cutPercentage / 100, rounded half-up to cents.
func CalculatePlatformFee(gross decimal.Decimal, cutPercentage decimal.Decimal) decimal.Decimal {
	// decimal.Round rounds half away from zero, which is half-up for the
	// non-negative amounts handled here.
	return gross.Mul(cutPercentage).Div(hundred).Round(2)
}

// CycleBounds returns the [start, end) period of fixed length that contains t,
// counting periods forward and backward from anchor.
func CycleBounds(anchor time.Time, length time.Duration, t time.Time) (time.Time, time.Time) {
	if length <= 0 {
		return anchor, anchor
	}

	elapsed := t.Sub(anchor)
	index := int64(elapsed / length)
	if elapsed < 0 && elapsed%length != 0 {
		index--
	}

	start := anchor.Add(time.Duration(index) * length)
	return start, start.Add(length)
}

// DaysRemaining returns the number of started days left until end, never negative.
func DaysRemaining(now, end time.Time) int {
	if !now.Before(end) {
		return 0
	}
	remaining := end.Sub(now)
	days := int(remaining / (24 * time.Hour))
	if remaining%(24*time.Hour) != 0 {
		days++
	}
	return days
}

// HoursUntil returns whole hours until t, never negative.
func HoursUntil(now, t time.Time) int {
	if !now.Before(t) {
		return 0
	}
	return int(t.Sub(now) / time.Hour)
}
