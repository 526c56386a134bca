// Package model defines the data models for the loyalty engine.
package model

import "time"

// Tier is an ordered loyalty rank. The ladder runs bronze < silver < gold
// < platinum < diamond.
type Tier string

// Tier names in ladder order.
const (
	TierBronze   Tier = "bronze"
	TierSilver   Tier = "silver"
	TierGold     Tier = "gold"
	TierPlatinum Tier = "platinum"
	TierDiamond  Tier = "diamond"
)

// TierOrder lists the tiers from lowest to highest.
var TierOrder = []Tier{TierBronze, TierSilver, TierGold, TierPlatinum, TierDiamond}

// Rank returns the 0-based ladder position of a tier, or -1 for an
// unknown tier name.
func (t Tier) Rank() int {
	for i, tier := range TierOrder {
		if tier == t {
			return i
		}
	}
	return -1
}

// Member represents a user's loyalty account. Created lazily on the first
// loyalty-relevant event and mutated only through the ledger, tier and
// spin-token operations.
type Member struct {
	UserID              int64     `db:"user_id"`
	PointsCurrent       int64     `db:"points_current"`
	PointsTotal         int64     `db:"points_total"`
	Multiplier          float64   `db:"multiplier"`
	Tier                Tier      `db:"tier"`
	TierProgress        float64   `db:"tier_progress"`
	SpinTokensAvailable int64     `db:"spin_tokens_available"`
	SpinTokensTotal     int64     `db:"spin_tokens_total"`
	SpinAttempts        int64     `db:"spin_attempts"`
	PurchaseCount       int64     `db:"purchase_count"`
	TotalSpent          int64     `db:"total_spent"`
	PurchaseStreak      int64     `db:"purchase_streak"`
	ReviewCount         int64     `db:"review_count"`
	ReferralCount       int64     `db:"referral_count"`
	LastPurchaseDay     time.Time `db:"last_purchase_day"`
	LastLoginDay        time.Time `db:"last_login_day"`
	LoginStreak         int64     `db:"login_streak"`
	CreatedAt           time.Time `db:"created_at"`
	UpdatedAt           time.Time `db:"updated_at"`
}

// LedgerEntry represents one immutable row in a member's points history.
type LedgerEntry struct {
	ID        int64      `db:"id"`
	UserID    int64      `db:"user_id"`
	Type      string     `db:"type"`
	Amount    int64      `db:"amount"`
	Reason    string     `db:"reason"`
	ExpiresAt *time.Time `db:"expires_at"`
	CreatedAt time.Time  `db:"created_at"`
}

// Ledger entry types.
const (
	EntryEarned   = "earned"   // Points earned from purchases or engagement
	EntryRedeemed = "redeemed" // Points spent by the member
	EntryExpired  = "expired"  // Points removed by expiry sweep
	EntryBonus    = "bonus"    // Bonus credit (spin rewards, badge rewards)
)

// EarnedBadge represents one badge held by a member. A badge ID appears at
// most once per member.
type EarnedBadge struct {
	UserID   int64     `db:"user_id"`
	BadgeID  string    `db:"badge_id"`
	EarnedAt time.Time `db:"earned_at"`
}

// SpinRecord represents one append-only spin-log row for a wheel.
type SpinRecord struct {
	ID          string    `db:"id"`
	WheelID     string    `db:"wheel_id"`
	UserID      int64     `db:"user_id"`
	SlotID      string    `db:"slot_id"`
	RewardType  string    `db:"reward_type"`
	RewardValue int64     `db:"reward_value"`
	CreatedAt   time.Time `db:"created_at"`
}

// Reward types carried by wheel slots and badge rewards.
const (
	RewardCoupon       = "coupon"        // Percentage discount coupon
	RewardFreeShipping = "free_shipping" // Free shipping flag
	RewardBonusPoints  = "bonus_points"  // Fixed point credit via the ledger
	RewardTryAgain     = "try_again"     // No-op outcome
	RewardSpinToken    = "spin_token"    // Extra spin token (badge rewards)
)

// Engagement event types accepted by the engine.
const (
	EventReviewPosted      = "review_posted"
	EventReferralConfirmed = "referral_confirmed"
	EventDailyLogin        = "daily_login"
)

// LeaderboardEntry is one row of the points leaderboard, sorted descending
// by total points earned.
type LeaderboardEntry struct {
	UserID      int64 `db:"user_id"`
	PointsTotal int64 `db:"points_total"`
	Tier        Tier  `db:"tier"`
}
