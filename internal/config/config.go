// Package config provides configuration management using viper.
// It supports loading from YAML files and environment variable overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Database    DatabaseConfig    `mapstructure:"database"`
	Points      PointsConfig      `mapstructure:"points"`
	Tiers       TiersConfig       `mapstructure:"tiers"`
	SpinTokens  SpinTokensConfig  `mapstructure:"spin_tokens"`
	Engagement  EngagementConfig  `mapstructure:"engagement"`
	Leaderboard LeaderboardConfig `mapstructure:"leaderboard"`
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	PoolSize        int           `mapstructure:"pool_size"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

// PointsConfig holds points ledger configuration.
type PointsConfig struct {
	ExpiryDays        int           `mapstructure:"expiry_days"`
	DefaultMultiplier float64       `mapstructure:"default_multiplier"`
	SweepInterval     time.Duration `mapstructure:"sweep_interval"`
}

// TiersConfig holds the cumulative-points thresholds for each tier above
// bronze. Thresholds must strictly increase along the ladder.
type TiersConfig struct {
	Silver   int64 `mapstructure:"silver"`
	Gold     int64 `mapstructure:"gold"`
	Platinum int64 `mapstructure:"platinum"`
	Diamond  int64 `mapstructure:"diamond"`
}

// SpinTokensConfig holds the points-to-token conversion threshold.
type SpinTokensConfig struct {
	PointsThreshold int64 `mapstructure:"points_threshold"`
}

// EngagementConfig holds the point values granted for engagement events.
type EngagementConfig struct {
	ReviewPoints   int64 `mapstructure:"review_points"`
	ReferralPoints int64 `mapstructure:"referral_points"`
	LoginPoints    int64 `mapstructure:"login_points"`
}

// LeaderboardConfig holds leaderboard query configuration.
type LeaderboardConfig struct {
	DefaultLimit int `mapstructure:"default_limit"`
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name,
	)
}

// Load reads configuration from file and environment variables.
// It looks for config.yaml in the config directory.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Configure viper
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Enable environment variable override
	// Environment variables use underscore separator and uppercase
	// e.g., DATABASE_HOST, DATABASE_PORT, POINTS_EXPIRY_DAYS
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (optional - env vars can provide all config)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK - we can use env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "loyalty")
	v.SetDefault("database.name", "loyalty")
	v.SetDefault("database.pool_size", 20)
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")

	// Points defaults
	v.SetDefault("points.expiry_days", 365)
	v.SetDefault("points.default_multiplier", 1.0)
	v.SetDefault("points.sweep_interval", "1h")

	// Tier ladder defaults
	v.SetDefault("tiers.silver", 1000)
	v.SetDefault("tiers.gold", 5000)
	v.SetDefault("tiers.platinum", 15000)
	v.SetDefault("tiers.diamond", 50000)

	// Spin token defaults
	v.SetDefault("spin_tokens.points_threshold", 500)

	// Engagement defaults
	v.SetDefault("engagement.review_points", 50)
	v.SetDefault("engagement.referral_points", 500)
	v.SetDefault("engagement.login_points", 10)

	// Leaderboard defaults
	v.SetDefault("leaderboard.default_limit", 10)
}
