// Package tier implements the loyalty tier ladder: mapping cumulative
// points to a tier and a progress percentage toward the next tier.
package tier

import (
	"errors"
	"fmt"

	"loyalty-engine/internal/model"
)

// Default cumulative-points thresholds for each tier.
const (
	DefaultSilverThreshold   = 1000
	DefaultGoldThreshold     = 5000
	DefaultPlatinumThreshold = 15000
	DefaultDiamondThreshold  = 50000
)

// Errors for ladder configuration.
var (
	ErrThresholdOrder = errors.New("tier thresholds must strictly increase along the ladder")
)

// Ladder holds the cumulative-points threshold for each tier, in ladder
// order. Thresholds[0] belongs to bronze and is always 0.
type Ladder struct {
	thresholds []int64
}

// Config holds configurable thresholds for the non-bronze tiers.
type Config struct {
	Silver   int64
	Gold     int64
	Platinum int64
	Diamond  int64
}

// NewLadder creates a Ladder from the given configuration. A nil config
// uses the default thresholds. Thresholds must strictly increase.
func NewLadder(cfg *Config) (*Ladder, error) {
	thresholds := []int64{
		0,
		DefaultSilverThreshold,
		DefaultGoldThreshold,
		DefaultPlatinumThreshold,
		DefaultDiamondThreshold,
	}
	if cfg != nil {
		thresholds[1] = cfg.Silver
		thresholds[2] = cfg.Gold
		thresholds[3] = cfg.Platinum
		thresholds[4] = cfg.Diamond
	}

	for i := 1; i < len(thresholds); i++ {
		if thresholds[i] <= thresholds[i-1] {
			return nil, fmt.Errorf("%w: %s(%d) <= %s(%d)",
				ErrThresholdOrder,
				model.TierOrder[i], thresholds[i],
				model.TierOrder[i-1], thresholds[i-1])
		}
	}

	return &Ladder{thresholds: thresholds}, nil
}

// Threshold returns the cumulative-points threshold for a tier.
func (l *Ladder) Threshold(t model.Tier) int64 {
	rank := t.Rank()
	if rank < 0 {
		return 0
	}
	return l.thresholds[rank]
}

// Next returns the tier above t, or t itself when t is the top of the
// ladder.
func Next(t model.Tier) model.Tier {
	rank := t.Rank()
	if rank < 0 || rank >= len(model.TierOrder)-1 {
		return t
	}
	return model.TierOrder[rank+1]
}

// Advance re-evaluates a member's tier from their cumulative points.
// It promotes at most one tier per call, even when totalPoints has jumped
// past several thresholds; callers that want to cascade must re-invoke.
// On promotion the returned progress is 100 for the just-reached tier.
// Otherwise progress is the percentage of the span between the current
// and next thresholds, clamped to [0, 100]. Diamond has no next tier and
// stays at 100.
func (l *Ladder) Advance(totalPoints int64, current model.Tier) (model.Tier, float64, bool) {
	rank := current.Rank()
	if rank < 0 {
		rank = 0
		current = model.TierBronze
	}

	// Top of the ladder: nothing above diamond.
	if rank == len(l.thresholds)-1 {
		return current, 100, false
	}

	nextThreshold := l.thresholds[rank+1]
	if totalPoints >= nextThreshold {
		return model.TierOrder[rank+1], 100, true
	}

	currentThreshold := l.thresholds[rank]
	span := float64(nextThreshold - currentThreshold)
	progress := float64(totalPoints-currentThreshold) / span * 100
	return current, clamp(progress, 0, 100), false
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
