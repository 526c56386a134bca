// Package ledger holds the accrual rules for the points ledger. The
// persistent side (history rows, conditional balance updates) lives in the
// repository; this package owns the arithmetic.
package ledger

import (
	"errors"
	"math"
	"time"
)

// Errors for ledger operations.
var (
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrInvalidMultiplier   = errors.New("multiplier must be >= 1")
	ErrInsufficientBalance = errors.New("insufficient point balance")
)

// EarnedPoints computes the points credited for a base amount under a
// member's multiplier: floor(amount * multiplier).
func EarnedPoints(amount int64, multiplier float64) int64 {
	return int64(math.Floor(float64(amount) * multiplier))
}

// ValidateEarn checks an earn request before it touches storage.
func ValidateEarn(amount int64, multiplier float64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if multiplier < 1 {
		return ErrInvalidMultiplier
	}
	return nil
}

// ValidateRedeem checks a redeem request against the current balance.
// The repository re-checks the balance in its conditional update; this
// front check keeps obviously bad requests off the database.
func ValidateRedeem(amount, current int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if amount > current {
		return ErrInsufficientBalance
	}
	return nil
}

// ExpiryTime returns the expiry timestamp for points earned at now, given
// the configured expiry window in days.
func ExpiryTime(now time.Time, expiryDays int) time.Time {
	return now.Add(time.Duration(expiryDays) * 24 * time.Hour)
}
