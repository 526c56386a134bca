// Package service implements the loyalty engine's business logic layer.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"loyalty-engine/internal/badge"
	"loyalty-engine/internal/config"
	"loyalty-engine/internal/ledger"
	"loyalty-engine/internal/model"
	"loyalty-engine/internal/pkg/lock"
	"loyalty-engine/internal/repository"
	"loyalty-engine/internal/tier"
	"loyalty-engine/internal/token"
)

// ErrUnknownEvent is returned for an engagement event type the engine
// does not recognize.
var ErrUnknownEvent = errors.New("unknown engagement event")

// MutationSummary reports everything a single loyalty mutation changed,
// so callers can show the member what happened in one response.
type MutationSummary struct {
	PointsEarned  int64
	PointsBalance int64
	PointsTotal   int64
	TokensAwarded int64
	Tier          model.Tier
	TierChanged   bool
	TierProgress  float64
	BadgesAwarded []string
}

// LoyaltyService orchestrates accrual, tier progression and badge
// evaluation. All mutations for one member run under that member's lock,
// so concurrent events for the same member serialize while different
// members proceed in parallel.
type LoyaltyService struct {
	cfg     *config.Config
	ladder  *tier.Ladder
	members *repository.MemberRepository
	badges  *repository.BadgeRepository
	locks   *lock.MemberLock
	logger  zerolog.Logger
}

// NewLoyaltyService creates a new LoyaltyService instance.
func NewLoyaltyService(
	cfg *config.Config,
	ladder *tier.Ladder,
	members *repository.MemberRepository,
	badges *repository.BadgeRepository,
	locks *lock.MemberLock,
	logger zerolog.Logger,
) *LoyaltyService {
	return &LoyaltyService{
		cfg:     cfg,
		ladder:  ladder,
		members: members,
		badges:  badges,
		locks:   locks,
		logger:  logger.With().Str("component", "loyalty").Logger(),
	}
}

// OnPurchaseCompleted processes a completed order: credits points at the
// member's multiplier, updates purchase aggregates, converts threshold
// multiples into spin tokens, advances the tier at most one step, and
// evaluates badge triggers. ts is the order completion time, so replayed
// events land on the day they happened; a zero ts means now.
func (s *LoyaltyService) OnPurchaseCompleted(ctx context.Context, userID int64, orderAmount int64, ts time.Time) (*MutationSummary, error) {
	return s.withMember(userID, func() (*MutationSummary, error) {
		member, _, err := s.members.GetOrCreate(ctx, userID, s.cfg.Points.DefaultMultiplier)
		if err != nil {
			return nil, err
		}

		if err := ledger.ValidateEarn(orderAmount, member.Multiplier); err != nil {
			return nil, err
		}
		points := ledger.EarnedPoints(orderAmount, member.Multiplier)

		if ts.IsZero() {
			ts = time.Now()
		}
		expiry := ledger.ExpiryTime(ts, s.cfg.Points.ExpiryDays)
		reason := fmt.Sprintf("purchase: order amount %d", orderAmount)
		member, err = s.members.Earn(ctx, userID, points, model.EntryEarned, reason, expiry)
		if err != nil {
			return nil, err
		}

		member, err = s.members.RecordPurchase(ctx, userID, orderAmount, ts)
		if err != nil {
			return nil, err
		}

		extra := map[string]any{"purchase_time": ts.Format("15:04")}
		summary, err := s.settle(ctx, member, extra)
		if err != nil {
			return nil, err
		}
		summary.PointsEarned = points

		s.logger.Info().
			Int64("user_id", userID).
			Int64("order_amount", orderAmount).
			Int64("points", points).
			Int64("tokens", summary.TokensAwarded).
			Str("tier", string(summary.Tier)).
			Msg("purchase processed")
		return summary, nil
	})
}

// OnEngagementEvent processes a non-purchase engagement event. Reviews
// and referrals always credit points; a daily login credits only the
// first time per calendar day, while later logins that day still return
// the current state with zero points earned. A positive eventValue
// overrides the configured credit for the event (campaign boosts);
// zero takes the default.
func (s *LoyaltyService) OnEngagementEvent(ctx context.Context, userID int64, eventType string, eventValue int64) (*MutationSummary, error) {
	return s.withMember(userID, func() (*MutationSummary, error) {
		member, _, err := s.members.GetOrCreate(ctx, userID, s.cfg.Points.DefaultMultiplier)
		if err != nil {
			return nil, err
		}

		var points int64
		credit := true
		now := time.Now()
		switch eventType {
		case model.EventReviewPosted:
			if err := s.members.IncrementReviewCount(ctx, userID); err != nil {
				return nil, err
			}
			points = s.cfg.Engagement.ReviewPoints
		case model.EventReferralConfirmed:
			if err := s.members.IncrementReferralCount(ctx, userID); err != nil {
				return nil, err
			}
			points = s.cfg.Engagement.ReferralPoints
		case model.EventDailyLogin:
			var firstToday bool
			member, firstToday, err = s.members.RecordLogin(ctx, userID, now)
			if err != nil {
				return nil, err
			}
			points = s.cfg.Engagement.LoginPoints
			credit = firstToday
		default:
			return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, eventType)
		}

		if eventValue > 0 {
			points = eventValue
		}
		if !credit {
			points = 0
		}

		if points > 0 {
			expiry := ledger.ExpiryTime(now, s.cfg.Points.ExpiryDays)
			member, err = s.members.Earn(ctx, userID, points, model.EntryEarned, "engagement: "+eventType, expiry)
			if err != nil {
				return nil, err
			}
		}

		summary, err := s.settle(ctx, member, nil)
		if err != nil {
			return nil, err
		}
		summary.PointsEarned = points

		s.logger.Info().
			Int64("user_id", userID).
			Str("event", eventType).
			Int64("points", points).
			Msg("engagement processed")
		return summary, nil
	})
}

// RedeemPoints debits points from a member's current balance. The debit
// never affects tier standing, which tracks lifetime earnings.
func (s *LoyaltyService) RedeemPoints(ctx context.Context, userID int64, amount int64, reason string) (*model.Member, error) {
	if amount <= 0 {
		return nil, ledger.ErrInvalidAmount
	}

	s.locks.Lock(userID)
	defer s.locks.Unlock(userID)

	member, err := s.members.Redeem(ctx, userID, amount, reason)
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Int64("user_id", userID).
		Int64("amount", amount).
		Int64("balance", member.PointsCurrent).
		Msg("points redeemed")
	return member, nil
}

// settle runs the post-earn pipeline: token conversion, tier
// advancement, then badge evaluation against the updated aggregates.
// Ordering matters: the tier must be current before tier_upgrade badges
// are evaluated. extra carries event-scoped fields for custom badge
// conditions, like the purchase time of the order being settled.
func (s *LoyaltyService) settle(ctx context.Context, member *model.Member, extra map[string]any) (*MutationSummary, error) {
	summary := &MutationSummary{}

	threshold := s.cfg.SpinTokens.PointsThreshold
	tokens, _, err := token.CheckAndAward(member.PointsCurrent, threshold)
	if err != nil {
		return nil, err
	}
	if tokens > 0 {
		member, err = s.members.ConvertPointsToTokens(ctx, member.UserID, threshold)
		if err != nil {
			return nil, err
		}
		summary.TokensAwarded = tokens
	}

	newTier, progress, promoted := s.ladder.Advance(member.PointsTotal, member.Tier)
	if promoted || progress != member.TierProgress {
		if err := s.members.UpdateTier(ctx, member.UserID, newTier, progress); err != nil {
			return nil, err
		}
		member.Tier = newTier
		member.TierProgress = progress
	}
	summary.Tier = newTier
	summary.TierChanged = promoted
	summary.TierProgress = progress

	awarded, err := s.evaluateBadges(ctx, member, extra)
	if err != nil {
		return nil, err
	}
	summary.BadgesAwarded = awarded

	summary.PointsBalance = member.PointsCurrent
	summary.PointsTotal = member.PointsTotal
	return summary, nil
}

// evaluateBadges awards every active badge the member newly qualifies
// for and applies badge rewards. Rewards credited here do not trigger a
// recursive evaluation; the next event picks up any knock-on
// eligibility.
func (s *LoyaltyService) evaluateBadges(ctx context.Context, member *model.Member, extra map[string]any) ([]string, error) {
	catalog, err := s.badges.GetActive(ctx)
	if err != nil {
		return nil, err
	}
	if len(catalog) == 0 {
		return nil, nil
	}

	held, err := s.badges.GetHeld(ctx, member.UserID)
	if err != nil {
		return nil, err
	}

	defs := make([]badge.Definition, 0, len(catalog))
	byID := make(map[string]*badge.Definition, len(catalog))
	for _, def := range catalog {
		defs = append(defs, *def)
		byID[def.ID] = def
	}

	var awarded []string
	for _, id := range badge.Eligible(memberStats(member, extra), defs, held) {
		newly, err := s.badges.Award(ctx, member.UserID, id)
		if err != nil {
			return nil, err
		}
		if !newly {
			continue
		}
		awarded = append(awarded, id)

		if err := s.applyBadgeReward(ctx, member, byID[id]); err != nil {
			return nil, err
		}
		s.logger.Info().
			Int64("user_id", member.UserID).
			Str("badge", id).
			Msg("badge awarded")
	}
	return awarded, nil
}

func (s *LoyaltyService) applyBadgeReward(ctx context.Context, member *model.Member, def *badge.Definition) error {
	if def == nil || def.Reward.Value <= 0 {
		return nil
	}
	switch def.Reward.Type {
	case model.RewardBonusPoints:
		updated, err := s.members.Earn(ctx, member.UserID, def.Reward.Value, model.EntryBonus, "badge reward: "+def.ID, time.Time{})
		if err != nil {
			return err
		}
		*member = *updated
	case model.RewardSpinToken:
		updated, err := s.members.GrantSpinTokens(ctx, member.UserID, def.Reward.Value)
		if err != nil {
			return err
		}
		*member = *updated
	}
	// Coupons and free shipping are fulfilled by the commerce side; the
	// award row itself is the grant.
	return nil
}

// ExpirePoints sweeps due earn entries out of current balances. Run
// periodically; each call handles everything due at call time.
func (s *LoyaltyService) ExpirePoints(ctx context.Context) (int64, error) {
	affected, err := s.members.ExpireDuePoints(ctx, time.Now())
	if err != nil {
		return 0, err
	}
	if affected > 0 {
		s.logger.Info().Int64("members", affected).Msg("expired points swept")
	}
	return affected, nil
}

// GetMember retrieves the current loyalty state for a member.
func (s *LoyaltyService) GetMember(ctx context.Context, userID int64) (*model.Member, error) {
	return s.members.GetByID(ctx, userID)
}

// GetHistory retrieves a member's points history, newest first.
func (s *LoyaltyService) GetHistory(ctx context.Context, userID int64, limit int) ([]*model.LedgerEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.members.GetHistory(ctx, userID, limit)
}

// GetEarnedBadges retrieves the badges a member holds, newest first.
func (s *LoyaltyService) GetEarnedBadges(ctx context.Context, userID int64) ([]*model.EarnedBadge, error) {
	return s.badges.GetEarned(ctx, userID)
}

// GetEligibleBadges previews which badges the member currently
// qualifies for without awarding them.
func (s *LoyaltyService) GetEligibleBadges(ctx context.Context, userID int64) ([]string, error) {
	member, err := s.members.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	catalog, err := s.badges.GetActive(ctx)
	if err != nil {
		return nil, err
	}
	held, err := s.badges.GetHeld(ctx, userID)
	if err != nil {
		return nil, err
	}

	defs := make([]badge.Definition, 0, len(catalog))
	for _, def := range catalog {
		defs = append(defs, *def)
	}
	return badge.Eligible(memberStats(member, nil), defs, held), nil
}

// GetLeaderboard retrieves the top members by lifetime points earned.
func (s *LoyaltyService) GetLeaderboard(ctx context.Context, limit int) ([]*model.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = s.cfg.Leaderboard.DefaultLimit
	}
	return s.members.GetLeaderboard(ctx, limit)
}

func (s *LoyaltyService) withMember(userID int64, fn func() (*MutationSummary, error)) (*MutationSummary, error) {
	s.locks.Lock(userID)
	defer s.locks.Unlock(userID)
	return fn()
}

func memberStats(m *model.Member, extra map[string]any) badge.Stats {
	return badge.Stats{
		PurchaseCount:  m.PurchaseCount,
		TotalSpent:     m.TotalSpent,
		PurchaseStreak: m.PurchaseStreak,
		LoyaltyPoints:  m.PointsTotal,
		Tier:           m.Tier,
		SpinCount:      m.SpinAttempts,
		ReviewCount:    m.ReviewCount,
		ReferralCount:  m.ReferralCount,
		Extra:          extra,
	}
}
