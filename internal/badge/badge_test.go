package badge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"

	"loyalty-engine/internal/model"
)

func def(id, triggerType string, value float64) Definition {
	return Definition{
		ID:       id,
		Trigger:  Trigger{Type: triggerType, Value: value, Timeframe: "lifetime"},
		IsActive: true,
	}
}

func TestDefinition_Validate(t *testing.T) {
	tests := []struct {
		name    string
		def     Definition
		wantErr error
	}{
		{"valid counter trigger", def("b1", TriggerPurchaseCount, 5), nil},
		{"valid custom trigger", Definition{ID: "b2", Trigger: Trigger{Type: TriggerCustom}, IsActive: true}, nil},
		{"missing trigger type", Definition{ID: "b3"}, ErrInvalidTrigger},
		{"zero trigger value", def("b4", TriggerLoyaltyPoints, 0), ErrInvalidTrigger},
		{"negative trigger value", def("b5", TriggerSpinCount, -1), ErrInvalidTrigger},
		{"unknown trigger type", def("b6", "moon_phase", 3), ErrUnknownTrigger},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.def.Validate()
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestMatches_CounterTriggers(t *testing.T) {
	stats := Stats{
		PurchaseCount:  10,
		TotalSpent:     2500,
		PurchaseStreak: 4,
		LoyaltyPoints:  1800,
		SpinCount:      7,
		ReviewCount:    3,
		ReferralCount:  1,
		Tier:           model.TierGold,
	}

	tests := []struct {
		name    string
		trigger Trigger
		want    bool
	}{
		{"purchase count met", Trigger{Type: TriggerPurchaseCount, Value: 10}, true},
		{"purchase count not met", Trigger{Type: TriggerPurchaseCount, Value: 11}, false},
		{"purchase value met", Trigger{Type: TriggerPurchaseValue, Value: 2000}, true},
		{"streak not met", Trigger{Type: TriggerPurchaseStreak, Value: 5}, false},
		{"loyalty points met", Trigger{Type: TriggerLoyaltyPoints, Value: 1800}, true},
		{"spin count met", Trigger{Type: TriggerSpinCount, Value: 5}, true},
		{"review count not met", Trigger{Type: TriggerReviewCount, Value: 4}, false},
		{"referral count met", Trigger{Type: TriggerReferralCount, Value: 1}, true},
		// tier_upgrade compares ladder rank against the 1-based trigger value.
		{"tier upgrade met exactly", Trigger{Type: TriggerTierUpgrade, Value: 3}, true},
		{"tier upgrade met below", Trigger{Type: TriggerTierUpgrade, Value: 2}, true},
		{"tier upgrade not met", Trigger{Type: TriggerTierUpgrade, Value: 4}, false},
		{"unknown trigger", Trigger{Type: "moon_phase", Value: 1}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Matches(stats, tt.trigger))
		})
	}
}

func TestMatches_CustomConditions(t *testing.T) {
	stats := Stats{
		PurchaseCount: 12,
		Tier:          model.TierSilver,
		Extra: map[string]any{
			"categories_purchased": []string{"books", "garden"},
			"country":              "NZ",
			"cart_size":            float64(6),
			"purchase_time":        "09:30",
		},
	}

	tests := []struct {
		name       string
		conditions []Condition
		want       bool
	}{
		{"empty conditions vacuously true", nil, true},
		{"equals string", []Condition{{Field: "country", Operator: OpEquals, Value: "NZ"}}, true},
		{"equals mismatched", []Condition{{Field: "country", Operator: OpEquals, Value: "AU"}}, false},
		{"not_equals", []Condition{{Field: "country", Operator: OpNotEquals, Value: "AU"}}, true},
		{"greater_than numeric", []Condition{{Field: "cart_size", Operator: OpGreaterThan, Value: float64(5)}}, true},
		{"less_than numeric", []Condition{{Field: "cart_size", Operator: OpLessThan, Value: float64(5)}}, false},
		{"greater_than across int64 and float64", []Condition{{Field: "purchase_count", Operator: OpGreaterThan, Value: float64(10)}}, true},
		{"less_than clock string", []Condition{{Field: "purchase_time", Operator: OpLessThan, Value: "10:00"}}, true},
		{"greater_than clock string", []Condition{{Field: "purchase_time", Operator: OpGreaterThan, Value: "22:00"}}, false},
		{"less_than mixed types is false", []Condition{{Field: "purchase_time", Operator: OpLessThan, Value: float64(10)}}, false},
		{"contains slice member", []Condition{{Field: "categories_purchased", Operator: OpContains, Value: "books"}}, true},
		{"contains slice miss", []Condition{{Field: "categories_purchased", Operator: OpContains, Value: "tools"}}, false},
		{"contains substring", []Condition{{Field: "country", Operator: OpContains, Value: "N"}}, true},
		{"missing field is false", []Condition{{Field: "nonexistent", Operator: OpEquals, Value: 1}}, false},
		{"malformed operator is false", []Condition{{Field: "country", Operator: "matches_regex", Value: ".*"}}, false},
		{
			"conjunction all pass",
			[]Condition{
				{Field: "country", Operator: OpEquals, Value: "NZ"},
				{Field: "cart_size", Operator: OpGreaterThan, Value: float64(1)},
			},
			true,
		},
		{
			"conjunction one fails",
			[]Condition{
				{Field: "country", Operator: OpEquals, Value: "NZ"},
				{Field: "cart_size", Operator: OpGreaterThan, Value: float64(100)},
			},
			false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trigger := Trigger{Type: TriggerCustom, Conditions: tt.conditions}
			assert.Equal(t, tt.want, Matches(stats, trigger))
		})
	}
}

func TestEligible(t *testing.T) {
	catalog := []Definition{
		def("first_purchase", TriggerPurchaseCount, 1),
		def("big_spender", TriggerPurchaseValue, 10000),
		def("regular", TriggerPurchaseCount, 10),
		{ID: "hidden_badge", Trigger: Trigger{Type: TriggerPurchaseCount, Value: 1}, IsActive: true, IsHidden: true},
		{ID: "retired_badge", Trigger: Trigger{Type: TriggerPurchaseCount, Value: 1}, IsActive: false},
	}

	stats := Stats{PurchaseCount: 10, TotalSpent: 4000}

	// Hidden and inactive entries never evaluate.
	got := Eligible(stats, catalog, nil)
	assert.Equal(t, []string{"first_purchase", "regular"}, got)

	// Held badges are excluded; evaluation is idempotent.
	held := map[string]bool{"first_purchase": true}
	got = Eligible(stats, catalog, held)
	assert.Equal(t, []string{"regular"}, got)

	again := Eligible(stats, catalog, held)
	assert.Equal(t, got, again)
}

// TestEligibleIdempotentProperty: with unchanged stats and no awarding,
// repeat evaluation returns the same set; after holding the returned
// badges, re-evaluation returns none of them.
func TestEligibleIdempotentProperty(t *testing.T) {
	catalog := []Definition{
		def("b_pc", TriggerPurchaseCount, 5),
		def("b_pv", TriggerPurchaseValue, 1000),
		def("b_lp", TriggerLoyaltyPoints, 500),
		def("b_sc", TriggerSpinCount, 3),
		def("b_rc", TriggerReviewCount, 2),
	}

	rapid.Check(t, func(t *rapid.T) {
		stats := Stats{
			PurchaseCount: rapid.Int64Range(0, 20).Draw(t, "purchases"),
			TotalSpent:    rapid.Int64Range(0, 5000).Draw(t, "spent"),
			LoyaltyPoints: rapid.Int64Range(0, 2000).Draw(t, "points"),
			SpinCount:     rapid.Int64Range(0, 10).Draw(t, "spins"),
			ReviewCount:   rapid.Int64Range(0, 5).Draw(t, "reviews"),
		}

		first := Eligible(stats, catalog, nil)
		second := Eligible(stats, catalog, nil)
		if len(first) != len(second) {
			t.Fatalf("evaluation not stable: %v vs %v", first, second)
		}
		for i := range first {
			if first[i] != second[i] {
				t.Fatalf("evaluation not stable: %v vs %v", first, second)
			}
		}

		held := make(map[string]bool, len(first))
		for _, id := range first {
			held[id] = true
		}
		after := Eligible(stats, catalog, held)
		if len(after) != 0 {
			t.Fatalf("held badges re-awarded: %v", after)
		}
	})
}
