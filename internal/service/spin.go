package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"loyalty-engine/internal/config"
	"loyalty-engine/internal/model"
	"loyalty-engine/internal/pkg/lock"
	"loyalty-engine/internal/repository"
	"loyalty-engine/internal/token"
	"loyalty-engine/internal/wheel"
)

// SpinResult reports the outcome of one wheel spin.
type SpinResult struct {
	Record          *model.SpinRecord
	Slot            wheel.Slot
	TokensRemaining int64
	PointsBalance   int64
}

// SpinService orchestrates wheel spins: eligibility gating, the weighted
// draw, and the atomic commit of token consumption, counters and reward.
type SpinService struct {
	cfg     *config.Config
	members *repository.MemberRepository
	wheels  *repository.WheelRepository
	locks   *lock.MemberLock
	src     wheel.Source
	logger  zerolog.Logger
}

// NewSpinService creates a new SpinService instance. src is the
// randomness source for draws; pass wheel.NewRandSource() in production.
func NewSpinService(
	cfg *config.Config,
	members *repository.MemberRepository,
	wheels *repository.WheelRepository,
	locks *lock.MemberLock,
	src wheel.Source,
	logger zerolog.Logger,
) *SpinService {
	return &SpinService{
		cfg:     cfg,
		members: members,
		wheels:  wheels,
		locks:   locks,
		src:     src,
		logger:  logger.With().Str("component", "spin").Logger(),
	}
}

// RequestSpin performs one spin on a wheel for a member. orderValue is
// the member's current order total for wheels gated on a minimum order;
// pass 0 when there is no order context, which fails such gates.
//
// The gate runs against a snapshot, then the commit re-checks every
// consumable (token balance, global cap, per-user cap) inside one
// transaction, so a losing race surfaces as a typed error rather than a
// double spend.
func (s *SpinService) RequestSpin(ctx context.Context, userID int64, wheelID string, orderValue int64) (*SpinResult, error) {
	s.locks.Lock(userID)
	defer s.locks.Unlock(userID)

	member, err := s.members.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if member.SpinTokensAvailable <= 0 {
		return nil, token.ErrNoSpinTokens
	}

	w, err := s.wheels.GetByID(ctx, wheelID)
	if err != nil {
		return nil, err
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}

	userSpins, err := s.wheels.UserSpinCount(ctx, wheelID, userID)
	if err != nil {
		return nil, err
	}

	err = w.CheckEligibility(wheel.SpinContext{
		Tier:          member.Tier,
		PointsCurrent: member.PointsCurrent,
		UserSpinsUsed: userSpins,
		OrderValue:    orderValue,
		Now:           time.Now(),
	})
	if err != nil {
		return nil, err
	}

	slot, err := w.Draw(member.Tier, s.src)
	if err != nil {
		return nil, err
	}

	record, err := s.wheels.CommitSpin(ctx, w, userID, *slot, time.Now())
	if err != nil {
		return nil, err
	}

	member, err = s.members.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Int64("user_id", userID).
		Str("wheel", wheelID).
		Str("slot", slot.ID).
		Str("reward", slot.RewardType).
		Msg("spin committed")

	return &SpinResult{
		Record:          record,
		Slot:            *slot,
		TokensRemaining: member.SpinTokensAvailable,
		PointsBalance:   member.PointsCurrent,
	}, nil
}

// ConvertTokens converts whole threshold multiples of the member's
// current balance into spin tokens on demand.
func (s *SpinService) ConvertTokens(ctx context.Context, userID int64) (*model.Member, int64, error) {
	s.locks.Lock(userID)
	defer s.locks.Unlock(userID)

	member, err := s.members.GetByID(ctx, userID)
	if err != nil {
		return nil, 0, err
	}

	threshold := s.cfg.SpinTokens.PointsThreshold
	tokens, _, err := token.CheckAndAward(member.PointsCurrent, threshold)
	if err != nil {
		return nil, 0, err
	}
	if tokens == 0 {
		return member, 0, nil
	}

	member, err = s.members.ConvertPointsToTokens(ctx, userID, threshold)
	if err != nil {
		return nil, 0, err
	}
	return member, tokens, nil
}

// GetSpinHistory retrieves a member's recent spins on a wheel.
func (s *SpinService) GetSpinHistory(ctx context.Context, wheelID string, userID int64, limit int) ([]*model.SpinRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.wheels.GetSpinLog(ctx, wheelID, userID, limit)
}
