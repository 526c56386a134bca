// Package wheel implements the reward wheel selector: the ordered
// eligibility gate a spin request must pass, and the weighted random draw
// over the wheel's slots.
package wheel

import (
	"errors"
	"fmt"
	"math/rand"
	"time"

	"loyalty-engine/internal/model"
)

// Gate rule identifiers reported on eligibility failures.
const (
	RuleWheelInactive     = "wheel_inactive"
	RuleOutsideWindow     = "outside_window"
	RuleTierTooLow        = "tier_too_low"
	RulePointsTooLow      = "points_too_low"
	RuleTotalLimitReached = "total_limit_reached"
	RuleUserLimitReached  = "user_limit_reached"
	RuleMinOrderValue     = "min_order_value"
)

// Errors for the selector.
var (
	ErrNoActiveSlots = errors.New("wheel has no active slots with positive weight")
	ErrInvalidWeight = errors.New("slot base weight must be within [0, 100]")
)

// NotEligibleError reports which gate rule rejected a spin request.
type NotEligibleError struct {
	Rule string
}

func (e *NotEligibleError) Error() string {
	return fmt.Sprintf("not eligible to spin: %s", e.Rule)
}

// IsNotEligible reports whether err is an eligibility-gate failure.
func IsNotEligible(err error) bool {
	var ne *NotEligibleError
	return errors.As(err, &ne)
}

// Slot is one weighted outcome on a wheel.
type Slot struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	RewardType  string `json:"reward_type"`
	RewardValue int64  `json:"reward_value"`
	BaseWeight  int64  `json:"base_weight"`
	Active      bool   `json:"active"`
}

// Eligibility is the gate configuration of a wheel. RequiredTier empty or
// "none" means no tier requirement. TotalSpinsAllowed nil means
// unlimited. MinOrderValue of 0 means no order requirement.
type Eligibility struct {
	StartDate         time.Time  `json:"start_date"`
	EndDate           time.Time  `json:"end_date"`
	RequiredTier      model.Tier `json:"required_tier"`
	RequiredPoints    int64      `json:"required_points"`
	SpinsPerUser      int64      `json:"spins_per_user"`
	TotalSpinsAllowed *int64     `json:"total_spins_allowed"`
	MinOrderValue     int64      `json:"min_order_value"`
}

// Wheel is one campaign-scoped reward wheel definition. TierModifiers
// maps tier name -> slot ID -> additive weight bonus.
type Wheel struct {
	ID               string
	Name             string
	IsActive         bool
	Slots            []Slot
	TierModifiers    map[model.Tier]map[string]int64
	Eligibility      Eligibility
	CurrentSpinsUsed int64
}

// Validate checks slot weight bounds at wheel load time.
func (w *Wheel) Validate() error {
	for _, slot := range w.Slots {
		if slot.BaseWeight < 0 || slot.BaseWeight > 100 {
			return fmt.Errorf("%w: slot %q has weight %d", ErrInvalidWeight, slot.ID, slot.BaseWeight)
		}
	}
	return nil
}

// SpinContext carries the member-side inputs to the eligibility gate.
// OrderValue is the triggering order's value when the spin follows a
// checkout; wheels with a minimum order value reject requests without one.
type SpinContext struct {
	Tier          model.Tier
	PointsCurrent int64
	UserSpinsUsed int64
	OrderValue    int64
	Now           time.Time
}

// CheckEligibility runs the gate rules in order and returns a
// NotEligibleError naming the first rule that fails. Rule order matters:
// wheel state first, member requirements next, caps last.
func (w *Wheel) CheckEligibility(sc SpinContext) error {
	if !w.IsActive {
		return &NotEligibleError{Rule: RuleWheelInactive}
	}
	e := w.Eligibility
	if sc.Now.Before(e.StartDate) || (!e.EndDate.IsZero() && sc.Now.After(e.EndDate)) {
		return &NotEligibleError{Rule: RuleOutsideWindow}
	}
	if e.RequiredTier != "" && e.RequiredTier != "none" {
		if sc.Tier.Rank() < e.RequiredTier.Rank() {
			return &NotEligibleError{Rule: RuleTierTooLow}
		}
	}
	if sc.PointsCurrent < e.RequiredPoints {
		return &NotEligibleError{Rule: RulePointsTooLow}
	}
	if e.TotalSpinsAllowed != nil && w.CurrentSpinsUsed >= *e.TotalSpinsAllowed {
		return &NotEligibleError{Rule: RuleTotalLimitReached}
	}
	if e.SpinsPerUser > 0 && sc.UserSpinsUsed >= e.SpinsPerUser {
		return &NotEligibleError{Rule: RuleUserLimitReached}
	}
	if e.MinOrderValue > 0 && sc.OrderValue < e.MinOrderValue {
		return &NotEligibleError{Rule: RuleMinOrderValue}
	}
	return nil
}

// EffectiveWeight returns a slot's draw weight for a member tier: the
// base weight plus the tier's additive modifier for that slot.
func (w *Wheel) EffectiveWeight(slot Slot, tier model.Tier) int64 {
	weight := slot.BaseWeight
	if mods, ok := w.TierModifiers[tier]; ok {
		weight += mods[slot.ID]
	}
	return weight
}

// TotalWeight sums the effective weights of all active slots.
func (w *Wheel) TotalWeight(tier model.Tier) int64 {
	var total int64
	for _, slot := range w.Slots {
		if slot.Active {
			total += w.EffectiveWeight(slot, tier)
		}
	}
	return total
}

// Source yields uniform random values in [0, 1). Production code uses
// RandSource; tests substitute a fixed stub.
type Source interface {
	Float64() float64
}

// RandSource adapts math/rand to the Source interface.
type RandSource struct {
	rng *rand.Rand
}

// NewRandSource creates a Source seeded from the current time.
func NewRandSource() *RandSource {
	return &RandSource{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

func (r *RandSource) Float64() float64 {
	return r.rng.Float64()
}

// Draw performs the weighted random draw over the wheel's active slots
// for a member of the given tier. The draw value is uniform in
// [0, totalWeight); walking the slots in declared order, the first slot
// whose cumulative weight exceeds the draw value is selected, so each
// slot owns the half-open interval [prevCumulative, cumulative). A wheel
// whose active slots sum to zero weight is a configuration error, never a
// silent default to the first slot.
func (w *Wheel) Draw(tier model.Tier, src Source) (*Slot, error) {
	total := w.TotalWeight(tier)
	if total <= 0 {
		return nil, ErrNoActiveSlots
	}

	value := src.Float64() * float64(total)
	var cumulative float64
	for i := range w.Slots {
		slot := &w.Slots[i]
		if !slot.Active {
			continue
		}
		cumulative += float64(w.EffectiveWeight(*slot, tier))
		if value < cumulative {
			return slot, nil
		}
	}

	// Float accumulation can land exactly on the total; the last active
	// slot owns the boundary.
	for i := len(w.Slots) - 1; i >= 0; i-- {
		if w.Slots[i].Active {
			return &w.Slots[i], nil
		}
	}
	return nil, ErrNoActiveSlots
}
