// Property-based tests for the weighted draw.
package wheel

import (
	"testing"
	"time"

	"pgregory.net/rapid"

	"loyalty-engine/internal/model"
)

// TestDrawPartitionProperty: for any wheel with at least one positively
// weighted active slot and any draw fraction in [0,1), the draw selects
// an active slot, and the selected slot is the one whose cumulative
// weight interval contains the draw value.
func TestDrawPartitionProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		slotCount := rapid.IntRange(1, 8).Draw(t, "slotCount")

		w := &Wheel{
			ID:       "prop",
			IsActive: true,
			Eligibility: Eligibility{
				StartDate: time.Now().Add(-time.Hour),
				EndDate:   time.Now().Add(time.Hour),
			},
		}
		var total int64
		for i := 0; i < slotCount; i++ {
			weight := rapid.Int64Range(0, 100).Draw(t, "weight")
			active := rapid.Bool().Draw(t, "active")
			w.Slots = append(w.Slots, Slot{
				ID:         string(rune('a' + i)),
				BaseWeight: weight,
				Active:     active,
			})
			if active {
				total += weight
			}
		}

		fraction := rapid.Float64Range(0, 0.9999999).Draw(t, "fraction")
		slot, err := w.Draw(model.TierBronze, stubSource{value: fraction})

		if total <= 0 {
			if err != ErrNoActiveSlots {
				t.Fatalf("zero-weight wheel should fail with ErrNoActiveSlots, got slot=%v err=%v", slot, err)
			}
			return
		}

		if err != nil {
			t.Fatalf("draw failed on wheel with total weight %d: %v", total, err)
		}
		if !slot.Active {
			t.Fatalf("draw selected inactive slot %q", slot.ID)
		}

		// Recompute the owning interval independently.
		value := fraction * float64(total)
		var cumulative float64
		var expected string
		for _, s := range w.Slots {
			if !s.Active {
				continue
			}
			cumulative += float64(s.BaseWeight)
			if value < cumulative {
				expected = s.ID
				break
			}
		}
		if expected != "" && slot.ID != expected {
			t.Fatalf("draw value %f selected slot %q, interval walk expects %q", value, slot.ID, expected)
		}
	})
}

// TestDrawNeverSelectsZeroWeightSlotProperty: a slot whose effective
// weight is zero owns an empty interval and can never be selected.
func TestDrawNeverSelectsZeroWeightSlotProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		w := &Wheel{
			ID:       "prop",
			IsActive: true,
			Slots: []Slot{
				{ID: "winner", BaseWeight: rapid.Int64Range(1, 100).Draw(t, "w1"), Active: true},
				{ID: "ghost", BaseWeight: 0, Active: true},
				{ID: "winner2", BaseWeight: rapid.Int64Range(1, 100).Draw(t, "w2"), Active: true},
			},
		}

		fraction := rapid.Float64Range(0, 0.9999999).Draw(t, "fraction")
		slot, err := w.Draw(model.TierBronze, stubSource{value: fraction})
		if err != nil {
			t.Fatalf("draw failed: %v", err)
		}
		if slot.ID == "ghost" {
			t.Fatalf("zero-weight slot selected at fraction %f", fraction)
		}
	})
}

// TestEligibilityGateTotalProperty: the gate always reports a known rule
// identifier, and a fully permissive wheel always passes.
func TestEligibilityGateTotalProperty(t *testing.T) {
	knownRules := map[string]bool{
		RuleWheelInactive:     true,
		RuleOutsideWindow:     true,
		RuleTierTooLow:        true,
		RulePointsTooLow:      true,
		RuleTotalLimitReached: true,
		RuleUserLimitReached:  true,
		RuleMinOrderValue:     true,
	}

	rapid.Check(t, func(t *rapid.T) {
		now := time.Now()
		w := testWheel()
		w.IsActive = rapid.Bool().Draw(t, "active")
		w.Eligibility.RequiredPoints = rapid.Int64Range(0, 1000).Draw(t, "requiredPoints")
		w.Eligibility.SpinsPerUser = rapid.Int64Range(0, 5).Draw(t, "spinsPerUser")

		sc := SpinContext{
			Tier:          model.TierOrder[rapid.IntRange(0, 4).Draw(t, "tierIdx")],
			PointsCurrent: rapid.Int64Range(0, 1000).Draw(t, "points"),
			UserSpinsUsed: rapid.Int64Range(0, 5).Draw(t, "spinsUsed"),
			Now:           now,
		}

		err := w.CheckEligibility(sc)
		if err == nil {
			return
		}
		ne, ok := err.(*NotEligibleError)
		if !ok {
			t.Fatalf("gate returned non-eligibility error: %v", err)
		}
		if !knownRules[ne.Rule] {
			t.Fatalf("gate reported unknown rule %q", ne.Rule)
		}
	})
}
