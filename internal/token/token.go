// Package token implements the spin token economy: converting accumulated
// points into spin tokens at a configurable threshold.
package token

import "errors"

// DefaultThreshold is the points-per-token conversion threshold.
const DefaultThreshold = 500

// Errors for token operations.
var (
	ErrInvalidThreshold = errors.New("token threshold must be positive")
	ErrNoSpinTokens     = errors.New("no spin tokens available")
)

// CheckAndAward converts excess points into spin tokens. It returns the
// number of tokens awarded and the points remaining after conversion:
// tokens = floor(pointsCurrent / threshold), remaining = pointsCurrent mod
// threshold. Points accumulated past multiple thresholds award multiple
// tokens in one step.
func CheckAndAward(pointsCurrent, threshold int64) (tokens, remaining int64, err error) {
	if threshold <= 0 {
		return 0, pointsCurrent, ErrInvalidThreshold
	}
	if pointsCurrent < threshold {
		return 0, pointsCurrent, nil
	}
	return pointsCurrent / threshold, pointsCurrent % threshold, nil
}
