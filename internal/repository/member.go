// Package repository provides data access layer implementations.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"loyalty-engine/internal/ledger"
	"loyalty-engine/internal/model"
)

// ErrMemberNotFound is returned when a member row does not exist.
var ErrMemberNotFound = errors.New("member not found")

const memberColumns = `
	user_id, points_current, points_total, multiplier, tier, tier_progress,
	spin_tokens_available, spin_tokens_total, spin_attempts,
	purchase_count, total_spent, purchase_streak, review_count, referral_count,
	last_purchase_day, last_login_day, login_streak, created_at, updated_at
`

// MemberRepository handles loyalty member persistence. Every mutation is
// either a single conditional UPDATE or a single transaction, so two
// concurrent requests can never both pass a balance or cap check and
// both commit.
type MemberRepository struct {
	pool *pgxpool.Pool
}

// NewMemberRepository creates a new MemberRepository instance.
func NewMemberRepository(pool *pgxpool.Pool) *MemberRepository {
	return &MemberRepository{pool: pool}
}

func scanMember(row pgx.Row) (*model.Member, error) {
	var m model.Member
	err := row.Scan(
		&m.UserID,
		&m.PointsCurrent,
		&m.PointsTotal,
		&m.Multiplier,
		&m.Tier,
		&m.TierProgress,
		&m.SpinTokensAvailable,
		&m.SpinTokensTotal,
		&m.SpinAttempts,
		&m.PurchaseCount,
		&m.TotalSpent,
		&m.PurchaseStreak,
		&m.ReviewCount,
		&m.ReferralCount,
		&m.LastPurchaseDay,
		&m.LastLoginDay,
		&m.LoginStreak,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// Create creates a new member with zero points at the bronze tier.
// Members are created lazily on the first loyalty-relevant event.
func (r *MemberRepository) Create(ctx context.Context, userID int64, multiplier float64) (*model.Member, error) {
	query := `
		INSERT INTO members (user_id, multiplier, tier, created_at, updated_at)
		VALUES ($1, $2, 'bronze', NOW(), NOW())
		RETURNING ` + memberColumns

	member, err := scanMember(r.pool.QueryRow(ctx, query, userID, multiplier))
	if err != nil {
		return nil, fmt.Errorf("failed to create member: %w", err)
	}
	return member, nil
}

// GetByID retrieves a member by user ID.
// Returns ErrMemberNotFound if the member does not exist.
func (r *MemberRepository) GetByID(ctx context.Context, userID int64) (*model.Member, error) {
	query := `SELECT ` + memberColumns + ` FROM members WHERE user_id = $1`

	member, err := scanMember(r.pool.QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMemberNotFound
		}
		return nil, fmt.Errorf("failed to get member: %w", err)
	}
	return member, nil
}

// GetOrCreate retrieves a member by user ID, creating one if it doesn't
// exist. Returns the member and whether it was newly created.
func (r *MemberRepository) GetOrCreate(ctx context.Context, userID int64, multiplier float64) (*model.Member, bool, error) {
	member, err := r.GetByID(ctx, userID)
	if err == nil {
		return member, false, nil
	}
	if !errors.Is(err, ErrMemberNotFound) {
		return nil, false, err
	}

	member, err = r.Create(ctx, userID, multiplier)
	if err != nil {
		// Handle race condition: another request might have created the member
		member, err = r.GetByID(ctx, userID)
		if err != nil {
			return nil, false, err
		}
		return member, false, nil
	}

	return member, true, nil
}

// Earn credits points to a member: one immutable history row plus the
// balance update, committed together. Entry type is "earned" for
// purchases and engagement, "bonus" for spin and badge rewards.
func (r *MemberRepository) Earn(ctx context.Context, userID int64, points int64, entryType, reason string, expiresAt time.Time) (*model.Member, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin earn transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var expiry *time.Time
	if !expiresAt.IsZero() {
		expiry = &expiresAt
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO points_history (user_id, type, amount, reason, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
	`, userID, entryType, points, reason, expiry)
	if err != nil {
		return nil, fmt.Errorf("failed to append points history: %w", err)
	}

	query := `
		UPDATE members
		SET points_current = points_current + $2,
		    points_total = points_total + $2,
		    updated_at = NOW()
		WHERE user_id = $1
		RETURNING ` + memberColumns

	member, err := scanMember(tx.QueryRow(ctx, query, userID, points))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMemberNotFound
		}
		return nil, fmt.Errorf("failed to update balance: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit earn: %w", err)
	}
	return member, nil
}

// Redeem debits points from a member. The balance check and the debit are
// one conditional UPDATE: if the balance no longer covers the amount,
// zero rows are affected, nothing is written and ErrInsufficientBalance
// is returned.
func (r *MemberRepository) Redeem(ctx context.Context, userID int64, amount int64, reason string) (*model.Member, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin redeem transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		UPDATE members
		SET points_current = points_current - $2, updated_at = NOW()
		WHERE user_id = $1 AND points_current >= $2
		RETURNING ` + memberColumns

	member, err := scanMember(tx.QueryRow(ctx, query, userID, amount))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Either the member is missing or the balance is short;
			// disambiguate for the caller.
			if _, getErr := r.GetByID(ctx, userID); getErr != nil {
				return nil, getErr
			}
			return nil, ledger.ErrInsufficientBalance
		}
		return nil, fmt.Errorf("failed to redeem points: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO points_history (user_id, type, amount, reason, created_at)
		VALUES ($1, $2, $3, $4, NOW())
	`, userID, model.EntryRedeemed, -amount, reason)
	if err != nil {
		return nil, fmt.Errorf("failed to append points history: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit redeem: %w", err)
	}
	return member, nil
}

// ConvertPointsToTokens converts whole multiples of the threshold from
// the current balance into spin tokens, in a single conditional UPDATE.
// Returns the updated member, or the unchanged member when the balance
// was below the threshold.
func (r *MemberRepository) ConvertPointsToTokens(ctx context.Context, userID int64, threshold int64) (*model.Member, error) {
	query := `
		UPDATE members
		SET spin_tokens_available = spin_tokens_available + points_current / $2,
		    spin_tokens_total = spin_tokens_total + points_current / $2,
		    points_current = points_current % $2,
		    updated_at = NOW()
		WHERE user_id = $1 AND points_current >= $2
		RETURNING ` + memberColumns

	member, err := scanMember(r.pool.QueryRow(ctx, query, userID, threshold))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return r.GetByID(ctx, userID)
		}
		return nil, fmt.Errorf("failed to convert points to tokens: %w", err)
	}
	return member, nil
}

// GrantSpinTokens adds spin tokens directly (badge rewards).
func (r *MemberRepository) GrantSpinTokens(ctx context.Context, userID int64, tokens int64) (*model.Member, error) {
	query := `
		UPDATE members
		SET spin_tokens_available = spin_tokens_available + $2,
		    spin_tokens_total = spin_tokens_total + $2,
		    updated_at = NOW()
		WHERE user_id = $1
		RETURNING ` + memberColumns

	member, err := scanMember(r.pool.QueryRow(ctx, query, userID, tokens))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMemberNotFound
		}
		return nil, fmt.Errorf("failed to grant spin tokens: %w", err)
	}
	return member, nil
}

// UpdateTier stores a re-evaluated tier and progress.
func (r *MemberRepository) UpdateTier(ctx context.Context, userID int64, tier model.Tier, progress float64) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE members
		SET tier = $2, tier_progress = $3, updated_at = NOW()
		WHERE user_id = $1
	`, userID, tier, progress)
	if err != nil {
		return fmt.Errorf("failed to update tier: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrMemberNotFound
	}
	return nil
}

// RecordPurchase updates the purchase aggregates used by badge triggers:
// count, lifetime spend and the consecutive-day purchase streak. The
// streak continues on a next-day purchase, holds on a same-day purchase
// and resets otherwise, all decided inside the statement against the
// stored last purchase day.
func (r *MemberRepository) RecordPurchase(ctx context.Context, userID int64, orderAmount int64, day time.Time) (*model.Member, error) {
	query := `
		UPDATE members
		SET purchase_count = purchase_count + 1,
		    total_spent = total_spent + $2,
		    purchase_streak = CASE
		        WHEN last_purchase_day = $3::date THEN purchase_streak
		        WHEN last_purchase_day = $3::date - 1 THEN purchase_streak + 1
		        ELSE 1
		    END,
		    last_purchase_day = $3::date,
		    updated_at = NOW()
		WHERE user_id = $1
		RETURNING ` + memberColumns

	member, err := scanMember(r.pool.QueryRow(ctx, query, userID, orderAmount, day))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMemberNotFound
		}
		return nil, fmt.Errorf("failed to record purchase: %w", err)
	}
	return member, nil
}

// IncrementReviewCount bumps the member's review aggregate.
func (r *MemberRepository) IncrementReviewCount(ctx context.Context, userID int64) error {
	return r.incrementCounter(ctx, userID, "review_count")
}

// IncrementReferralCount bumps the member's referral aggregate.
func (r *MemberRepository) IncrementReferralCount(ctx context.Context, userID int64) error {
	return r.incrementCounter(ctx, userID, "referral_count")
}

func (r *MemberRepository) incrementCounter(ctx context.Context, userID int64, column string) error {
	// column comes from the fixed callers above, never from input.
	query := fmt.Sprintf(`
		UPDATE members SET %s = %s + 1, updated_at = NOW() WHERE user_id = $1
	`, column, column)
	result, err := r.pool.Exec(ctx, query, userID)
	if err != nil {
		return fmt.Errorf("failed to increment %s: %w", column, err)
	}
	if result.RowsAffected() == 0 {
		return ErrMemberNotFound
	}
	return nil
}

// RecordLogin maintains the consecutive-day login streak. The update
// fires only on the first login of a given day; a repeat same-day login
// matches no row and leaves the member untouched, so concurrent logins
// can credit the day at most once. The streak continues on a next-day
// login and resets after a gap. Returns the member and whether this was
// the first login of the day.
func (r *MemberRepository) RecordLogin(ctx context.Context, userID int64, day time.Time) (*model.Member, bool, error) {
	query := `
		UPDATE members
		SET login_streak = CASE
		        WHEN last_login_day = $2::date - 1 THEN login_streak + 1
		        ELSE 1
		    END,
		    last_login_day = $2::date,
		    updated_at = NOW()
		WHERE user_id = $1 AND last_login_day < $2::date
		RETURNING ` + memberColumns

	member, err := scanMember(r.pool.QueryRow(ctx, query, userID, day))
	if err == nil {
		return member, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("failed to record login: %w", err)
	}

	// No row matched: either the member is missing or today is already
	// recorded. A plain read tells the two apart.
	member, err = r.GetByID(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	return member, false, nil
}

// ExpireDuePoints sweeps earn entries whose expiry has passed: each due
// entry is marked swept, the member's current balance gives up the
// expired amount (never going negative; spent points cannot expire
// again), and an offsetting expired entry lands in the history. The
// whole sweep is one transaction. Returns the number of members
// affected.
func (r *MemberRepository) ExpireDuePoints(ctx context.Context, now time.Time) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin expiry sweep: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		WITH due AS (
			UPDATE points_history
			SET swept = TRUE
			WHERE type IN ($2, $3) AND swept = FALSE
			  AND expires_at IS NOT NULL AND expires_at < $1
			RETURNING user_id, amount
		)
		SELECT user_id, SUM(amount) FROM due GROUP BY user_id
	`, now, model.EntryEarned, model.EntryBonus)
	if err != nil {
		return 0, fmt.Errorf("failed to collect due entries: %w", err)
	}

	type dueTotal struct {
		userID int64
		amount int64
	}
	var due []dueTotal
	for rows.Next() {
		var d dueTotal
		if err := rows.Scan(&d.userID, &d.amount); err != nil {
			rows.Close()
			return 0, fmt.Errorf("failed to scan due total: %w", err)
		}
		due = append(due, d)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("error iterating due totals: %w", err)
	}

	for _, d := range due {
		var balance int64
		err := tx.QueryRow(ctx, `
			UPDATE members
			SET points_current = GREATEST(points_current - $2, 0),
			    updated_at = NOW()
			WHERE user_id = $1
			RETURNING points_current
		`, d.userID, d.amount).Scan(&balance)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				continue
			}
			return 0, fmt.Errorf("failed to expire balance: %w", err)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO points_history (user_id, type, amount, reason, created_at)
			VALUES ($1, $2, $3, 'points expired', NOW())
		`, d.userID, model.EntryExpired, -d.amount)
		if err != nil {
			return 0, fmt.Errorf("failed to append expiry entry: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit expiry sweep: %w", err)
	}
	return int64(len(due)), nil
}

// GetHistory retrieves a member's points history, newest first.
func (r *MemberRepository) GetHistory(ctx context.Context, userID int64, limit int) ([]*model.LedgerEntry, error) {
	const query = `
		SELECT id, user_id, type, amount, reason, expires_at, created_at
		FROM points_history
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get points history: %w", err)
	}
	defer rows.Close()

	var entries []*model.LedgerEntry
	for rows.Next() {
		var e model.LedgerEntry
		err := rows.Scan(&e.ID, &e.UserID, &e.Type, &e.Amount, &e.Reason, &e.ExpiresAt, &e.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ledger entries: %w", err)
	}
	return entries, nil
}

// GetLeaderboard retrieves the top members by lifetime points earned.
func (r *MemberRepository) GetLeaderboard(ctx context.Context, limit int) ([]*model.LeaderboardEntry, error) {
	const query = `
		SELECT user_id, points_total, tier
		FROM members
		ORDER BY points_total DESC, user_id ASC
		LIMIT $1
	`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get leaderboard: %w", err)
	}
	defer rows.Close()

	var entries []*model.LeaderboardEntry
	for rows.Next() {
		var e model.LeaderboardEntry
		if err := rows.Scan(&e.UserID, &e.PointsTotal, &e.Tier); err != nil {
			return nil, fmt.Errorf("failed to scan leaderboard entry: %w", err)
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating leaderboard: %w", err)
	}
	return entries, nil
}
