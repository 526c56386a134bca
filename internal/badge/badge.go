// Package badge implements the badge catalog definitions and the
// eligibility evaluator that decides which badges a member newly
// qualifies for.
package badge

import (
	"errors"
	"fmt"
	"strings"

	"loyalty-engine/internal/model"
)

// Trigger types supported by the evaluator.
const (
	TriggerPurchaseCount  = "purchase_count"
	TriggerPurchaseValue  = "purchase_value"
	TriggerPurchaseStreak = "purchase_streak"
	TriggerLoyaltyPoints  = "loyalty_points"
	TriggerTierUpgrade    = "tier_upgrade"
	TriggerSpinCount      = "spin_count"
	TriggerReviewCount    = "review_count"
	TriggerReferralCount  = "referral_count"
	TriggerCustom         = "custom"
)

// Operators supported in custom trigger conditions.
const (
	OpEquals      = "equals"
	OpNotEquals   = "not_equals"
	OpGreaterThan = "greater_than"
	OpLessThan    = "less_than"
	OpContains    = "contains"
)

// Errors for badge definitions.
var (
	ErrInvalidTrigger = errors.New("badge must have a trigger type and value")
	ErrUnknownTrigger = errors.New("unknown badge trigger type")
)

var validTriggers = map[string]bool{
	TriggerPurchaseCount:  true,
	TriggerPurchaseValue:  true,
	TriggerPurchaseStreak: true,
	TriggerLoyaltyPoints:  true,
	TriggerTierUpgrade:    true,
	TriggerSpinCount:      true,
	TriggerReviewCount:    true,
	TriggerReferralCount:  true,
	TriggerCustom:         true,
}

// Condition is one clause of a custom trigger. All clauses of a trigger
// must hold (conjunction). A clause referencing a missing stats field or
// an unknown operator evaluates to false, never to an error.
type Condition struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    any    `json:"value"`
}

// Trigger describes when a badge becomes eligible. Value carries the
// numeric threshold for counter triggers and the 1-based tier rank for
// tier_upgrade. Timeframe is stored for display but every timeframe
// currently reduces to a lifetime comparison; time-windowed aggregates
// are a caller concern.
type Trigger struct {
	Type       string      `json:"type"`
	Value      float64     `json:"value"`
	Timeframe  string      `json:"timeframe"`
	Conditions []Condition `json:"conditions,omitempty"`
}

// Reward describes what awarding the badge grants the member.
type Reward struct {
	Type  string `json:"type"`
	Value int64  `json:"value"`
}

// Definition is one admin-managed badge catalog entry, shared across all
// members.
type Definition struct {
	ID       string
	Name     string
	Category string
	Rarity   string
	Trigger  Trigger
	Reward   Reward
	IsActive bool
	IsHidden bool

	// Catalog-level aggregates, maintained by the repository with atomic
	// increments.
	TotalAwarded   int64
	CurrentHolders int64
}

// Validate rejects definitions that cannot be evaluated. A badge with no
// trigger type or a zero trigger value (except custom, which relies on
// conditions) must be rejected at creation time.
func (d *Definition) Validate() error {
	if d.Trigger.Type == "" {
		return ErrInvalidTrigger
	}
	if !validTriggers[d.Trigger.Type] {
		return fmt.Errorf("%w: %q", ErrUnknownTrigger, d.Trigger.Type)
	}
	if d.Trigger.Type != TriggerCustom && d.Trigger.Value <= 0 {
		return ErrInvalidTrigger
	}
	return nil
}

// Stats is the aggregate view of a member that triggers are evaluated
// against. Extra carries additional fields addressable by custom
// conditions.
type Stats struct {
	PurchaseCount  int64
	TotalSpent     int64
	PurchaseStreak int64
	LoyaltyPoints  int64
	Tier           model.Tier
	SpinCount      int64
	ReviewCount    int64
	ReferralCount  int64
	Extra          map[string]any
}

// Fields returns the stats as a field map for custom-condition lookup.
// Well-known fields use the same names the counter triggers use.
func (s Stats) Fields() map[string]any {
	fields := map[string]any{
		"purchase_count":  s.PurchaseCount,
		"purchase_value":  s.TotalSpent,
		"purchase_streak": s.PurchaseStreak,
		"loyalty_points":  s.LoyaltyPoints,
		"tier":            string(s.Tier),
		"spin_count":      s.SpinCount,
		"review_count":    s.ReviewCount,
		"referral_count":  s.ReferralCount,
	}
	for k, v := range s.Extra {
		fields[k] = v
	}
	return fields
}

// Eligible returns the IDs of active, non-hidden badges the member newly
// qualifies for. Badges in held are excluded, so evaluating twice with
// unchanged stats never re-awards.
func Eligible(stats Stats, catalog []Definition, held map[string]bool) []string {
	var ids []string
	for _, def := range catalog {
		if !def.IsActive || def.IsHidden || held[def.ID] {
			continue
		}
		if Matches(stats, def.Trigger) {
			ids = append(ids, def.ID)
		}
	}
	return ids
}

// Matches evaluates a single trigger against member stats.
func Matches(stats Stats, trigger Trigger) bool {
	threshold := int64(trigger.Value)
	switch trigger.Type {
	case TriggerPurchaseCount:
		return stats.PurchaseCount >= threshold
	case TriggerPurchaseValue:
		return stats.TotalSpent >= threshold
	case TriggerPurchaseStreak:
		return stats.PurchaseStreak >= threshold
	case TriggerLoyaltyPoints:
		return stats.LoyaltyPoints >= threshold
	case TriggerSpinCount:
		return stats.SpinCount >= threshold
	case TriggerReviewCount:
		return stats.ReviewCount >= threshold
	case TriggerReferralCount:
		return stats.ReferralCount >= threshold
	case TriggerTierUpgrade:
		// Trigger value is the 1-based tier rank.
		return stats.Tier.Rank() >= int(trigger.Value)-1
	case TriggerCustom:
		return matchesConditions(stats.Fields(), trigger.Conditions)
	default:
		return false
	}
}

// matchesConditions evaluates the conjunction of custom condition
// clauses. An empty list is vacuously true.
func matchesConditions(fields map[string]any, conditions []Condition) bool {
	for _, cond := range conditions {
		value, ok := fields[cond.Field]
		if !ok {
			return false
		}
		if !matchesCondition(value, cond) {
			return false
		}
	}
	return true
}

func matchesCondition(value any, cond Condition) bool {
	switch cond.Operator {
	case OpEquals:
		return looseEqual(value, cond.Value)
	case OpNotEquals:
		return !looseEqual(value, cond.Value)
	case OpGreaterThan:
		gt, ok := looseLess(cond.Value, value)
		return ok && gt
	case OpLessThan:
		lt, ok := looseLess(value, cond.Value)
		return ok && lt
	case OpContains:
		return contains(value, cond.Value)
	default:
		// Malformed operator evaluates false to keep evaluation total.
		return false
	}
}

// looseEqual compares values numerically when both sides are numbers, and
// by string form otherwise. Condition values round-trip through JSON, so
// numbers arrive as float64 while stats carry int64.
func looseEqual(a, b any) bool {
	af, aok := asFloat(a)
	bf, bok := asFloat(b)
	if aok && bok {
		return af == bf
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

// looseLess orders values numerically when both sides are numbers and
// lexically when both are strings, which covers fixed-width clock fields
// like "09:30" < "10:00". The second result reports whether the pair is
// comparable at all.
func looseLess(a, b any) (bool, bool) {
	af, aok := asFloat(a)
	bf, bok := asFloat(b)
	if aok && bok {
		return af < bf, true
	}
	as, asok := a.(string)
	bs, bsok := b.(string)
	if asok && bsok {
		return as < bs, true
	}
	return false, false
}

// contains is set membership for slices and substring match for strings.
func contains(value any, needle any) bool {
	switch v := value.(type) {
	case []string:
		for _, item := range v {
			if item == fmt.Sprint(needle) {
				return true
			}
		}
		return false
	case []any:
		for _, item := range v {
			if looseEqual(item, needle) {
				return true
			}
		}
		return false
	case string:
		return strings.Contains(v, fmt.Sprint(needle))
	default:
		return false
	}
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
