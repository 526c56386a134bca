// Package main is the entry point for the loyalty engine daemon. It
// runs migrations, seeds the default catalog and keeps the points
// expiry sweep running; the services themselves are embedded by the
// commerce backend.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"loyalty-engine/internal/config"
	"loyalty-engine/internal/pkg/db"
	"loyalty-engine/internal/pkg/lock"
	"loyalty-engine/internal/repository"
	"loyalty-engine/internal/seed"
	"loyalty-engine/internal/service"
	"loyalty-engine/internal/tier"
)

func main() {
	// Configure zerolog
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Load configuration
	cfg, err := config.Load("config")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log.Info().Msg("Configuration loaded successfully")

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database connection pool
	dbPool, err := db.NewPool(ctx, &cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer dbPool.Close()

	// Run database migrations
	if err := runMigrations(ctx, dbPool); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}

	// Initialize repositories
	memberRepo := repository.NewMemberRepository(dbPool.Pool)
	badgeRepo := repository.NewBadgeRepository(dbPool.Pool)
	wheelRepo := repository.NewWheelRepository(dbPool.Pool)

	// Seed default badge catalog and reward wheels
	if err := seed.Run(ctx, badgeRepo, wheelRepo, log.Logger); err != nil {
		log.Fatal().Err(err).Msg("Failed to seed default catalog")
	}

	activeWheels, err := wheelRepo.GetActive(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load reward wheels")
	}
	log.Info().Int("count", len(activeWheels)).Msg("Active reward wheels loaded")

	// Build the tier ladder from configured thresholds
	ladder, err := tier.NewLadder(&tier.Config{
		Silver:   cfg.Tiers.Silver,
		Gold:     cfg.Tiers.Gold,
		Platinum: cfg.Tiers.Platinum,
		Diamond:  cfg.Tiers.Diamond,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid tier thresholds")
	}

	// Initialize member lock and the loyalty service
	memberLock := lock.NewMemberLock()
	loyaltyService := service.NewLoyaltyService(cfg, ladder, memberRepo, badgeRepo, memberLock, log.Logger)

	// Start the points expiry sweep
	go func() {
		ticker := time.NewTicker(cfg.Points.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := loyaltyService.ExpirePoints(ctx); err != nil {
					log.Error().Err(err).Msg("Points expiry sweep failed")
				}
			}
		}
	}()

	log.Info().
		Dur("sweep_interval", cfg.Points.SweepInterval).
		Msg("Loyalty engine is running")

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	cancel()
	log.Info().Msg("Loyalty engine stopped gracefully")
}

// runMigrations executes database migrations.
func runMigrations(ctx context.Context, pool *db.Pool) error {
	log.Info().Msg("Running database migrations...")

	// Migration 1: Create members table
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS members (
			user_id BIGINT PRIMARY KEY,
			points_current BIGINT NOT NULL DEFAULT 0,
			points_total BIGINT NOT NULL DEFAULT 0,
			multiplier DOUBLE PRECISION NOT NULL DEFAULT 1.0,
			tier VARCHAR(20) NOT NULL DEFAULT 'bronze',
			tier_progress DOUBLE PRECISION NOT NULL DEFAULT 0,
			spin_tokens_available BIGINT NOT NULL DEFAULT 0,
			spin_tokens_total BIGINT NOT NULL DEFAULT 0,
			spin_attempts BIGINT NOT NULL DEFAULT 0,
			purchase_count BIGINT NOT NULL DEFAULT 0,
			total_spent BIGINT NOT NULL DEFAULT 0,
			purchase_streak BIGINT NOT NULL DEFAULT 0,
			review_count BIGINT NOT NULL DEFAULT 0,
			referral_count BIGINT NOT NULL DEFAULT 0,
			last_purchase_day DATE NOT NULL DEFAULT 'epoch',
			last_login_day DATE NOT NULL DEFAULT 'epoch',
			login_streak BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_members_points_total ON members(points_total DESC);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 1: members table created")

	// Migration 2: Create points history table
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS points_history (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL REFERENCES members(user_id) ON DELETE CASCADE,
			type VARCHAR(20) NOT NULL,
			amount BIGINT NOT NULL,
			reason TEXT NOT NULL DEFAULT '',
			expires_at TIMESTAMPTZ,
			swept BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_points_history_user_time ON points_history(user_id, created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_points_history_expiry ON points_history(expires_at) WHERE swept = FALSE AND expires_at IS NOT NULL;
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 2: points_history table created")

	// Migration 3: Create badge tables
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS badge_definitions (
			id VARCHAR(64) PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			category VARCHAR(50) NOT NULL DEFAULT '',
			rarity VARCHAR(50) NOT NULL DEFAULT '',
			trigger_type VARCHAR(50) NOT NULL,
			trigger_value DOUBLE PRECISION NOT NULL DEFAULT 0,
			trigger_timeframe VARCHAR(50) NOT NULL DEFAULT 'lifetime',
			trigger_conditions JSONB,
			reward_type VARCHAR(50) NOT NULL DEFAULT '',
			reward_value BIGINT NOT NULL DEFAULT 0,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			is_hidden BOOLEAN NOT NULL DEFAULT FALSE,
			total_awarded BIGINT NOT NULL DEFAULT 0,
			current_holders BIGINT NOT NULL DEFAULT 0,
			last_awarded TIMESTAMPTZ
		);
		CREATE TABLE IF NOT EXISTS badges_earned (
			user_id BIGINT NOT NULL REFERENCES members(user_id) ON DELETE CASCADE,
			badge_id VARCHAR(64) NOT NULL REFERENCES badge_definitions(id) ON DELETE CASCADE,
			earned_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (user_id, badge_id)
		);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 3: badge tables created")

	// Migration 4: Create wheel tables
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS wheels (
			id VARCHAR(64) PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			slots JSONB NOT NULL,
			tier_modifiers JSONB,
			start_date TIMESTAMPTZ NOT NULL DEFAULT '0001-01-01T00:00:00Z',
			end_date TIMESTAMPTZ NOT NULL DEFAULT '0001-01-01T00:00:00Z',
			required_tier VARCHAR(20) NOT NULL DEFAULT '',
			required_points BIGINT NOT NULL DEFAULT 0,
			spins_per_user BIGINT NOT NULL DEFAULT 0,
			total_spins_allowed BIGINT,
			min_order_value BIGINT NOT NULL DEFAULT 0,
			current_spins_used BIGINT NOT NULL DEFAULT 0
		);
		CREATE TABLE IF NOT EXISTS wheel_member_spins (
			wheel_id VARCHAR(64) NOT NULL REFERENCES wheels(id) ON DELETE CASCADE,
			user_id BIGINT NOT NULL REFERENCES members(user_id) ON DELETE CASCADE,
			spins_used BIGINT NOT NULL DEFAULT 0,
			PRIMARY KEY (wheel_id, user_id)
		);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 4: wheel tables created")

	// Migration 5: Create spin log table
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS spin_log (
			id UUID PRIMARY KEY,
			wheel_id VARCHAR(64) NOT NULL REFERENCES wheels(id) ON DELETE CASCADE,
			user_id BIGINT NOT NULL REFERENCES members(user_id) ON DELETE CASCADE,
			slot_id VARCHAR(64) NOT NULL,
			reward_type VARCHAR(50) NOT NULL,
			reward_value BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_spin_log_wheel_user ON spin_log(wheel_id, user_id, created_at DESC);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 5: spin_log table created")

	log.Info().Msg("All migrations completed successfully")
	return nil
}
