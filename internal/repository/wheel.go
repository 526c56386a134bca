package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"loyalty-engine/internal/model"
	"loyalty-engine/internal/token"
	"loyalty-engine/internal/wheel"
)

// Common errors for wheel persistence.
var (
	ErrWheelNotFound     = errors.New("wheel not found")
	ErrTotalLimitReached = errors.New("wheel total spin limit reached")
	ErrUserLimitReached  = errors.New("wheel per-user spin limit reached")
)

// WheelRepository handles spin wheel persistence. Slots and tier
// modifiers are stored as JSONB; counters are plain columns moved with
// conditional updates.
type WheelRepository struct {
	pool *pgxpool.Pool
}

// NewWheelRepository creates a new WheelRepository instance.
func NewWheelRepository(pool *pgxpool.Pool) *WheelRepository {
	return &WheelRepository{pool: pool}
}

// Upsert inserts or updates a wheel definition. The global spin counter
// is preserved on update so re-seeding is idempotent.
func (r *WheelRepository) Upsert(ctx context.Context, w *wheel.Wheel) error {
	slots, err := json.Marshal(w.Slots)
	if err != nil {
		return fmt.Errorf("failed to marshal wheel slots: %w", err)
	}
	modifiers, err := json.Marshal(w.TierModifiers)
	if err != nil {
		return fmt.Errorf("failed to marshal tier modifiers: %w", err)
	}

	const query = `
		INSERT INTO wheels (
			id, name, is_active, slots, tier_modifiers,
			start_date, end_date, required_tier, required_points,
			spins_per_user, total_spins_allowed, min_order_value
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			is_active = EXCLUDED.is_active,
			slots = EXCLUDED.slots,
			tier_modifiers = EXCLUDED.tier_modifiers,
			start_date = EXCLUDED.start_date,
			end_date = EXCLUDED.end_date,
			required_tier = EXCLUDED.required_tier,
			required_points = EXCLUDED.required_points,
			spins_per_user = EXCLUDED.spins_per_user,
			total_spins_allowed = EXCLUDED.total_spins_allowed,
			min_order_value = EXCLUDED.min_order_value
	`

	_, err = r.pool.Exec(ctx, query,
		w.ID, w.Name, w.IsActive, slots, modifiers,
		w.Eligibility.StartDate, w.Eligibility.EndDate,
		w.Eligibility.RequiredTier, w.Eligibility.RequiredPoints,
		w.Eligibility.SpinsPerUser, w.Eligibility.TotalSpinsAllowed,
		w.Eligibility.MinOrderValue,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert wheel: %w", err)
	}
	return nil
}

// GetByID retrieves a wheel definition by ID.
// Returns ErrWheelNotFound if the wheel does not exist.
func (r *WheelRepository) GetByID(ctx context.Context, id string) (*wheel.Wheel, error) {
	const query = `
		SELECT id, name, is_active, slots, tier_modifiers,
		       start_date, end_date, required_tier, required_points,
		       spins_per_user, total_spins_allowed, min_order_value,
		       current_spins_used
		FROM wheels
		WHERE id = $1
	`

	var (
		w         wheel.Wheel
		slots     []byte
		modifiers []byte
	)
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&w.ID, &w.Name, &w.IsActive, &slots, &modifiers,
		&w.Eligibility.StartDate, &w.Eligibility.EndDate,
		&w.Eligibility.RequiredTier, &w.Eligibility.RequiredPoints,
		&w.Eligibility.SpinsPerUser, &w.Eligibility.TotalSpinsAllowed,
		&w.Eligibility.MinOrderValue,
		&w.CurrentSpinsUsed,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrWheelNotFound
		}
		return nil, fmt.Errorf("failed to get wheel: %w", err)
	}

	if err := json.Unmarshal(slots, &w.Slots); err != nil {
		return nil, fmt.Errorf("failed to unmarshal wheel slots: %w", err)
	}
	if len(modifiers) > 0 {
		if err := json.Unmarshal(modifiers, &w.TierModifiers); err != nil {
			return nil, fmt.Errorf("failed to unmarshal tier modifiers: %w", err)
		}
	}
	return &w, nil
}

// GetActive retrieves all active wheel IDs and names.
func (r *WheelRepository) GetActive(ctx context.Context) ([]*wheel.Wheel, error) {
	const query = `SELECT id FROM wheels WHERE is_active = true ORDER BY id`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list wheels: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan wheel id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating wheels: %w", err)
	}

	wheels := make([]*wheel.Wheel, 0, len(ids))
	for _, id := range ids {
		w, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		wheels = append(wheels, w)
	}
	return wheels, nil
}

// UserSpinCount returns how many spins a member has used on a wheel.
func (r *WheelRepository) UserSpinCount(ctx context.Context, wheelID string, userID int64) (int64, error) {
	const query = `
		SELECT spins_used FROM wheel_member_spins
		WHERE wheel_id = $1 AND user_id = $2
	`

	var count int64
	err := r.pool.QueryRow(ctx, query, wheelID, userID).Scan(&count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get user spin count: %w", err)
	}
	return count, nil
}

// CommitSpin applies the full state change of one spin in a single
// transaction: consume a spin token, advance the wheel's global counter
// against its cap, advance the member's per-wheel counter against the
// per-user cap, and append the spin log row. Any failed conditional
// rolls everything back, so a spin either happens completely or leaves
// no trace. Returns the recorded spin.
func (r *WheelRepository) CommitSpin(ctx context.Context, w *wheel.Wheel, userID int64, slot wheel.Slot, now time.Time) (*model.SpinRecord, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin spin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Consume one spin token. Zero rows means the balance hit zero since
	// the pre-check.
	result, err := tx.Exec(ctx, `
		UPDATE members
		SET spin_tokens_available = spin_tokens_available - 1,
		    spin_attempts = spin_attempts + 1,
		    updated_at = NOW()
		WHERE user_id = $1 AND spin_tokens_available > 0
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to consume spin token: %w", err)
	}
	if result.RowsAffected() == 0 {
		return nil, token.ErrNoSpinTokens
	}

	// Global campaign cap. NULL total_spins_allowed means unlimited.
	result, err = tx.Exec(ctx, `
		UPDATE wheels
		SET current_spins_used = current_spins_used + 1
		WHERE id = $1
		  AND (total_spins_allowed IS NULL OR current_spins_used < total_spins_allowed)
	`, w.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to advance wheel counter: %w", err)
	}
	if result.RowsAffected() == 0 {
		return nil, ErrTotalLimitReached
	}

	// Per-user cap. spins_per_user of 0 means unlimited.
	result, err = tx.Exec(ctx, `
		INSERT INTO wheel_member_spins (wheel_id, user_id, spins_used)
		VALUES ($1, $2, 1)
		ON CONFLICT (wheel_id, user_id) DO UPDATE
		SET spins_used = wheel_member_spins.spins_used + 1
		WHERE $3 = 0 OR wheel_member_spins.spins_used < $3
	`, w.ID, userID, w.Eligibility.SpinsPerUser)
	if err != nil {
		return nil, fmt.Errorf("failed to advance member spin counter: %w", err)
	}
	if result.RowsAffected() == 0 {
		return nil, ErrUserLimitReached
	}

	record := &model.SpinRecord{
		ID:          uuid.NewString(),
		WheelID:     w.ID,
		UserID:      userID,
		SlotID:      slot.ID,
		RewardType:  slot.RewardType,
		RewardValue: slot.RewardValue,
		CreatedAt:   now,
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO spin_log (id, wheel_id, user_id, slot_id, reward_type, reward_value, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, record.ID, record.WheelID, record.UserID, record.SlotID, record.RewardType, record.RewardValue, record.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to append spin log: %w", err)
	}

	// Credit in-transaction rewards so the spin and its payout commit
	// together. Coupons and free shipping are externally fulfilled and
	// only logged.
	switch slot.RewardType {
	case model.RewardBonusPoints:
		_, err = tx.Exec(ctx, `
			UPDATE members
			SET points_current = points_current + $2,
			    points_total = points_total + $2,
			    updated_at = NOW()
			WHERE user_id = $1
		`, userID, slot.RewardValue)
		if err != nil {
			return nil, fmt.Errorf("failed to credit bonus points: %w", err)
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO points_history (user_id, type, amount, reason, created_at)
			VALUES ($1, $2, $3, $4, NOW())
		`, userID, model.EntryBonus, slot.RewardValue, "spin reward: "+slot.Name)
		if err != nil {
			return nil, fmt.Errorf("failed to append points history: %w", err)
		}
	case model.RewardSpinToken:
		_, err = tx.Exec(ctx, `
			UPDATE members
			SET spin_tokens_available = spin_tokens_available + $2,
			    spin_tokens_total = spin_tokens_total + $2,
			    updated_at = NOW()
			WHERE user_id = $1
		`, userID, slot.RewardValue)
		if err != nil {
			return nil, fmt.Errorf("failed to credit spin tokens: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit spin: %w", err)
	}
	return record, nil
}

// GetSpinLog retrieves a member's spin history on a wheel, newest first.
func (r *WheelRepository) GetSpinLog(ctx context.Context, wheelID string, userID int64, limit int) ([]*model.SpinRecord, error) {
	const query = `
		SELECT id, wheel_id, user_id, slot_id, reward_type, reward_value, created_at
		FROM spin_log
		WHERE wheel_id = $1 AND user_id = $2
		ORDER BY created_at DESC
		LIMIT $3
	`

	rows, err := r.pool.Query(ctx, query, wheelID, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get spin log: %w", err)
	}
	defer rows.Close()

	var records []*model.SpinRecord
	for rows.Next() {
		var rec model.SpinRecord
		err := rows.Scan(&rec.ID, &rec.WheelID, &rec.UserID, &rec.SlotID, &rec.RewardType, &rec.RewardValue, &rec.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan spin record: %w", err)
		}
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating spin log: %w", err)
	}
	return records, nil
}
