package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"loyalty-engine/internal/badge"
	"loyalty-engine/internal/model"
)

// ErrBadgeNotFound is returned when a badge definition does not exist.
var ErrBadgeNotFound = errors.New("badge not found")

// BadgeRepository handles badge catalog and award persistence.
type BadgeRepository struct {
	pool *pgxpool.Pool
}

// NewBadgeRepository creates a new BadgeRepository instance.
func NewBadgeRepository(pool *pgxpool.Pool) *BadgeRepository {
	return &BadgeRepository{pool: pool}
}

// Upsert inserts or updates a badge definition. Award counters are
// preserved on update so re-seeding the catalog is idempotent.
func (r *BadgeRepository) Upsert(ctx context.Context, def *badge.Definition) error {
	conditions, err := json.Marshal(def.Trigger.Conditions)
	if err != nil {
		return fmt.Errorf("failed to marshal badge conditions: %w", err)
	}

	const query = `
		INSERT INTO badge_definitions (
			id, name, category, rarity,
			trigger_type, trigger_value, trigger_timeframe, trigger_conditions,
			reward_type, reward_value, is_active, is_hidden
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			category = EXCLUDED.category,
			rarity = EXCLUDED.rarity,
			trigger_type = EXCLUDED.trigger_type,
			trigger_value = EXCLUDED.trigger_value,
			trigger_timeframe = EXCLUDED.trigger_timeframe,
			trigger_conditions = EXCLUDED.trigger_conditions,
			reward_type = EXCLUDED.reward_type,
			reward_value = EXCLUDED.reward_value,
			is_active = EXCLUDED.is_active,
			is_hidden = EXCLUDED.is_hidden
	`

	_, err = r.pool.Exec(ctx, query,
		def.ID, def.Name, def.Category, def.Rarity,
		def.Trigger.Type, def.Trigger.Value, def.Trigger.Timeframe, conditions,
		def.Reward.Type, def.Reward.Value, def.IsActive, def.IsHidden,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert badge definition: %w", err)
	}
	return nil
}

// GetActive retrieves all active badge definitions.
func (r *BadgeRepository) GetActive(ctx context.Context) ([]*badge.Definition, error) {
	const query = `
		SELECT id, name, category, rarity,
		       trigger_type, trigger_value, trigger_timeframe, trigger_conditions,
		       reward_type, reward_value, is_active, is_hidden,
		       total_awarded, current_holders
		FROM badge_definitions
		WHERE is_active = true
		ORDER BY id
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get badge definitions: %w", err)
	}
	defer rows.Close()

	var defs []*badge.Definition
	for rows.Next() {
		def, err := scanBadgeDefinition(rows)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating badge definitions: %w", err)
	}
	return defs, nil
}

// GetByID retrieves a single badge definition.
func (r *BadgeRepository) GetByID(ctx context.Context, id string) (*badge.Definition, error) {
	const query = `
		SELECT id, name, category, rarity,
		       trigger_type, trigger_value, trigger_timeframe, trigger_conditions,
		       reward_type, reward_value, is_active, is_hidden,
		       total_awarded, current_holders
		FROM badge_definitions
		WHERE id = $1
	`

	def, err := scanBadgeDefinition(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBadgeNotFound
		}
		return nil, err
	}
	return def, nil
}

func scanBadgeDefinition(row pgx.Row) (*badge.Definition, error) {
	var (
		def        badge.Definition
		conditions []byte
	)
	err := row.Scan(
		&def.ID, &def.Name, &def.Category, &def.Rarity,
		&def.Trigger.Type, &def.Trigger.Value, &def.Trigger.Timeframe, &conditions,
		&def.Reward.Type, &def.Reward.Value, &def.IsActive, &def.IsHidden,
		&def.TotalAwarded, &def.CurrentHolders,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan badge definition: %w", err)
	}
	if len(conditions) > 0 {
		if err := json.Unmarshal(conditions, &def.Trigger.Conditions); err != nil {
			return nil, fmt.Errorf("failed to unmarshal badge conditions: %w", err)
		}
	}
	return &def, nil
}

// GetHeld returns the set of badge IDs a member already holds.
func (r *BadgeRepository) GetHeld(ctx context.Context, userID int64) (map[string]bool, error) {
	const query = `SELECT badge_id FROM badges_earned WHERE user_id = $1`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get earned badges: %w", err)
	}
	defer rows.Close()

	held := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan badge id: %w", err)
		}
		held[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating earned badges: %w", err)
	}
	return held, nil
}

// GetEarned retrieves the badges a member holds, newest first.
func (r *BadgeRepository) GetEarned(ctx context.Context, userID int64) ([]*model.EarnedBadge, error) {
	const query = `
		SELECT user_id, badge_id, earned_at
		FROM badges_earned
		WHERE user_id = $1
		ORDER BY earned_at DESC
	`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get earned badges: %w", err)
	}
	defer rows.Close()

	var earned []*model.EarnedBadge
	for rows.Next() {
		var e model.EarnedBadge
		if err := rows.Scan(&e.UserID, &e.BadgeID, &e.EarnedAt); err != nil {
			return nil, fmt.Errorf("failed to scan earned badge: %w", err)
		}
		earned = append(earned, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating earned badges: %w", err)
	}
	return earned, nil
}

// Award grants a badge to a member. The grant and the catalog counters
// move in one transaction, and the counters only advance when the grant
// row actually landed, so awarding the same badge twice is a no-op.
// Returns true if the badge was newly awarded.
func (r *BadgeRepository) Award(ctx context.Context, userID int64, badgeID string) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to begin award transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	result, err := tx.Exec(ctx, `
		INSERT INTO badges_earned (user_id, badge_id, earned_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (user_id, badge_id) DO NOTHING
	`, userID, badgeID)
	if err != nil {
		return false, fmt.Errorf("failed to award badge: %w", err)
	}
	if result.RowsAffected() == 0 {
		return false, nil
	}

	_, err = tx.Exec(ctx, `
		UPDATE badge_definitions
		SET total_awarded = total_awarded + 1,
		    current_holders = current_holders + 1,
		    last_awarded = NOW()
		WHERE id = $1
	`, badgeID)
	if err != nil {
		return false, fmt.Errorf("failed to update badge counters: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("failed to commit badge award: %w", err)
	}
	return true, nil
}
