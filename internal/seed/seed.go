// Package seed installs the default badge catalog and reward wheels.
// Seeding is idempotent: definitions are upserted and existing award and
// spin counters survive a re-run.
package seed

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"loyalty-engine/internal/badge"
	"loyalty-engine/internal/model"
	"loyalty-engine/internal/repository"
	"loyalty-engine/internal/wheel"
)

// Run installs the default catalog and wheels.
func Run(ctx context.Context, badges *repository.BadgeRepository, wheels *repository.WheelRepository, logger zerolog.Logger) error {
	for _, def := range DefaultBadges() {
		if err := def.Validate(); err != nil {
			return fmt.Errorf("invalid default badge %q: %w", def.ID, err)
		}
		if err := badges.Upsert(ctx, &def); err != nil {
			return fmt.Errorf("failed to seed badge %q: %w", def.ID, err)
		}
	}

	for _, w := range DefaultWheels() {
		if err := w.Validate(); err != nil {
			return fmt.Errorf("invalid default wheel %q: %w", w.ID, err)
		}
		if err := wheels.Upsert(ctx, &w); err != nil {
			return fmt.Errorf("failed to seed wheel %q: %w", w.ID, err)
		}
	}

	logger.Info().
		Int("badges", len(DefaultBadges())).
		Int("wheels", len(DefaultWheels())).
		Msg("default catalog seeded")
	return nil
}

// DefaultBadges returns the built-in badge catalog.
func DefaultBadges() []badge.Definition {
	return []badge.Definition{
		{
			ID:       "first_purchase",
			Name:     "First Purchase",
			Category: "purchase",
			Rarity:   "common",
			Trigger:  badge.Trigger{Type: badge.TriggerPurchaseCount, Value: 1, Timeframe: "once"},
			Reward:   badge.Reward{Type: model.RewardBonusPoints, Value: 100},
			IsActive: true,
		},
		{
			ID:       "frequent_shopper",
			Name:     "Frequent Shopper",
			Category: "purchase",
			Rarity:   "uncommon",
			Trigger:  badge.Trigger{Type: badge.TriggerPurchaseCount, Value: 5, Timeframe: "lifetime"},
			Reward:   badge.Reward{Type: model.RewardBonusPoints, Value: 250},
			IsActive: true,
		},
		{
			ID:       "big_spender",
			Name:     "Big Spender",
			Category: "purchase",
			Rarity:   "rare",
			Trigger:  badge.Trigger{Type: badge.TriggerPurchaseValue, Value: 10000, Timeframe: "lifetime"},
			Reward:   badge.Reward{Type: model.RewardBonusPoints, Value: 500},
			IsActive: true,
		},
		{
			ID:       "streak_master",
			Name:     "Streak Master",
			Category: "streak",
			Rarity:   "epic",
			Trigger:  badge.Trigger{Type: badge.TriggerPurchaseStreak, Value: 3, Timeframe: "lifetime"},
			Reward:   badge.Reward{Type: model.RewardBonusPoints, Value: 1000},
			IsActive: true,
		},
		{
			ID:       "bronze_member",
			Name:     "Bronze Member",
			Category: "tier",
			Rarity:   "common",
			Trigger:  badge.Trigger{Type: badge.TriggerTierUpgrade, Value: 1, Timeframe: "once"},
			Reward:   badge.Reward{Type: model.RewardBonusPoints, Value: 200},
			IsActive: true,
		},
		{
			ID:       "silver_member",
			Name:     "Silver Member",
			Category: "tier",
			Rarity:   "uncommon",
			Trigger:  badge.Trigger{Type: badge.TriggerTierUpgrade, Value: 2, Timeframe: "once"},
			Reward:   badge.Reward{Type: model.RewardBonusPoints, Value: 500},
			IsActive: true,
		},
		{
			ID:       "gold_member",
			Name:     "Gold Member",
			Category: "tier",
			Rarity:   "rare",
			Trigger:  badge.Trigger{Type: badge.TriggerTierUpgrade, Value: 3, Timeframe: "once"},
			Reward:   badge.Reward{Type: model.RewardBonusPoints, Value: 1000},
			IsActive: true,
		},
		{
			ID:       "platinum_member",
			Name:     "Platinum Member",
			Category: "tier",
			Rarity:   "epic",
			Trigger:  badge.Trigger{Type: badge.TriggerTierUpgrade, Value: 4, Timeframe: "once"},
			Reward:   badge.Reward{Type: model.RewardBonusPoints, Value: 2500},
			IsActive: true,
		},
		{
			ID:       "diamond_member",
			Name:     "Diamond Member",
			Category: "tier",
			Rarity:   "legendary",
			Trigger:  badge.Trigger{Type: badge.TriggerTierUpgrade, Value: 5, Timeframe: "once"},
			Reward:   badge.Reward{Type: model.RewardBonusPoints, Value: 5000},
			IsActive: true,
		},
		{
			ID:       "reviewer",
			Name:     "Reviewer",
			Category: "social",
			Rarity:   "uncommon",
			Trigger:  badge.Trigger{Type: badge.TriggerReviewCount, Value: 5, Timeframe: "lifetime"},
			Reward:   badge.Reward{Type: model.RewardBonusPoints, Value: 300},
			IsActive: true,
		},
		{
			ID:       "referral_master",
			Name:     "Referral Master",
			Category: "social",
			Rarity:   "rare",
			Trigger:  badge.Trigger{Type: badge.TriggerReferralCount, Value: 3, Timeframe: "lifetime"},
			Reward:   badge.Reward{Type: model.RewardBonusPoints, Value: 750},
			IsActive: true,
		},
		{
			ID:       "early_bird",
			Name:     "Early Bird",
			Category: "achievement",
			Rarity:   "common",
			Trigger: badge.Trigger{
				Type: badge.TriggerCustom, Value: 1, Timeframe: "once",
				Conditions: []badge.Condition{
					{Field: "purchase_time", Operator: badge.OpLessThan, Value: "10:00"},
				},
			},
			Reward:   badge.Reward{Type: model.RewardBonusPoints, Value: 150},
			IsActive: true,
		},
		{
			ID:       "night_owl",
			Name:     "Night Owl",
			Category: "achievement",
			Rarity:   "uncommon",
			Trigger: badge.Trigger{
				Type: badge.TriggerCustom, Value: 1, Timeframe: "once",
				Conditions: []badge.Condition{
					{Field: "purchase_time", Operator: badge.OpGreaterThan, Value: "22:00"},
				},
			},
			Reward:   badge.Reward{Type: model.RewardBonusPoints, Value: 200},
			IsActive: true,
		},
	}
}

// DefaultWheels returns the built-in reward wheels. Weights follow the
// default 40/25/20/10/5 distribution on the daily wheel, with additive
// tier bonuses shifting odds toward reward slots for higher tiers.
func DefaultWheels() []wheel.Wheel {
	return []wheel.Wheel{
		{
			ID:       "daily_rewards",
			Name:     "Daily Rewards Wheel",
			IsActive: true,
			Slots: []wheel.Slot{
				{ID: "try_again", Name: "Try Again", RewardType: model.RewardTryAgain, BaseWeight: 40, Active: true},
				{ID: "small_coupon", Name: "5% Off Coupon", RewardType: model.RewardCoupon, RewardValue: 5, BaseWeight: 25, Active: true},
				{ID: "medium_coupon", Name: "10% Off Coupon", RewardType: model.RewardCoupon, RewardValue: 10, BaseWeight: 20, Active: true},
				{ID: "free_shipping", Name: "Free Shipping", RewardType: model.RewardFreeShipping, BaseWeight: 10, Active: true},
				{ID: "bonus_points", Name: "Bonus Points", RewardType: model.RewardBonusPoints, RewardValue: 100, BaseWeight: 5, Active: true},
			},
			TierModifiers: map[model.Tier]map[string]int64{
				model.TierSilver:   {"small_coupon": 2, "medium_coupon": 3, "free_shipping": 2, "bonus_points": 1},
				model.TierGold:     {"small_coupon": 3, "medium_coupon": 4, "free_shipping": 3, "bonus_points": 2},
				model.TierPlatinum: {"small_coupon": 4, "medium_coupon": 5, "free_shipping": 4, "bonus_points": 3},
				model.TierDiamond:  {"small_coupon": 5, "medium_coupon": 6, "free_shipping": 5, "bonus_points": 4},
			},
			Eligibility: wheel.Eligibility{
				SpinsPerUser: 1,
			},
		},
		{
			ID:       "vip_rewards",
			Name:     "VIP Rewards Wheel",
			IsActive: true,
			Slots: []wheel.Slot{
				{ID: "try_again", Name: "Try Again", RewardType: model.RewardTryAgain, BaseWeight: 25, Active: true},
				{ID: "medium_coupon", Name: "15% Off Coupon", RewardType: model.RewardCoupon, RewardValue: 15, BaseWeight: 30, Active: true},
				{ID: "large_coupon", Name: "25% Off Coupon", RewardType: model.RewardCoupon, RewardValue: 25, BaseWeight: 20, Active: true},
				{ID: "free_shipping", Name: "Free Shipping", RewardType: model.RewardFreeShipping, BaseWeight: 15, Active: true},
				{ID: "bonus_points", Name: "Bonus Points", RewardType: model.RewardBonusPoints, RewardValue: 250, BaseWeight: 10, Active: true},
			},
			TierModifiers: map[model.Tier]map[string]int64{
				model.TierGold:     {"medium_coupon": 2, "large_coupon": 2, "free_shipping": 2, "bonus_points": 2},
				model.TierPlatinum: {"medium_coupon": 3, "large_coupon": 3, "free_shipping": 3, "bonus_points": 3},
				model.TierDiamond:  {"medium_coupon": 4, "large_coupon": 4, "free_shipping": 4, "bonus_points": 4},
			},
			Eligibility: wheel.Eligibility{
				RequiredTier:  model.TierGold,
				SpinsPerUser:  2,
				MinOrderValue: 5000,
			},
		},
	}
}
