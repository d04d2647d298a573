package config

import (
	"time"

	"github.com/spf13/viper"
)

type RewardsConfig struct {
	DuplicateWindow       time.Duration
	RedemptionExpiry      time.Duration
	CodePrefix            string
	CodeLength            int
	CodeAttempts          int
	MaxRedeemsPerWindow   int
	RedeemRateLimitWindow time.Duration
	SweepInterval         time.Duration
	AchievementCacheTTL   time.Duration
	EventQueue            string
}

func setRewardsDefaults() {
	viper.SetDefault("awards.duplicate_window", 5*time.Minute)
	viper.SetDefault("redemption.expiry", 90*24*time.Hour)
	viper.SetDefault("redemption.code_prefix", "CL-")
	viper.SetDefault("redemption.code_length", 8)
	viper.SetDefault("redemption.code_attempts", 5)
	viper.SetDefault("redemption.max_attempts_per_window", 10)
	viper.SetDefault("redemption.rate_limit_window", time.Minute)
	viper.SetDefault("redemption.sweep_interval", time.Hour)
	viper.SetDefault("achievements.cache_ttl", 10*time.Minute)
	viper.SetDefault("events.queue", "rewards:events")
}

// BindRewardsEnv maps the rewards keys onto their environment variables.
func BindRewardsEnv() {
	viper.BindEnv("awards.duplicate_window", "AWARDS_DUPLICATE_WINDOW")
	viper.BindEnv("redemption.expiry", "REDEMPTION_EXPIRY")
	viper.BindEnv("redemption.code_prefix", "REDEMPTION_CODE_PREFIX")
	viper.BindEnv("redemption.code_length", "REDEMPTION_CODE_LENGTH")
	viper.BindEnv("redemption.code_attempts", "REDEMPTION_CODE_ATTEMPTS")
	viper.BindEnv("redemption.max_attempts_per_window", "REDEMPTION_MAX_ATTEMPTS_PER_WINDOW")
	viper.BindEnv("redemption.rate_limit_window", "REDEMPTION_RATE_LIMIT_WINDOW")
	viper.BindEnv("redemption.sweep_interval", "REDEMPTION_SWEEP_INTERVAL")
	viper.BindEnv("achievements.cache_ttl", "ACHIEVEMENTS_CACHE_TTL")
	viper.BindEnv("events.queue", "EVENTS_QUEUE")
}

func LoadRewardsConfig() *RewardsConfig {
	setRewardsDefaults()

	cfg := &RewardsConfig{
		DuplicateWindow:       viper.GetDuration("awards.duplicate_window"),
		RedemptionExpiry:      viper.GetDuration("redemption.expiry"),
		CodePrefix:            viper.GetString("redemption.code_prefix"),
		CodeLength:            viper.GetInt("redemption.code_length"),
		CodeAttempts:          viper.GetInt("redemption.code_attempts"),
		MaxRedeemsPerWindow:   viper.GetInt("redemption.max_attempts_per_window"),
		RedeemRateLimitWindow: viper.GetDuration("redemption.rate_limit_window"),
		SweepInterval:         viper.GetDuration("redemption.sweep_interval"),
		AchievementCacheTTL:   viper.GetDuration("achievements.cache_ttl"),
		EventQueue:            viper.GetString("events.queue"),
	}

	if cfg.CodeLength < 6 {
		cfg.CodeLength = 6
	}
	if cfg.CodeAttempts < 1 {
		cfg.CodeAttempts = 1
	}
	return cfg
}

// DefaultRewardsConfig returns the built-in defaults without consulting viper.
func DefaultRewardsConfig() *RewardsConfig {
	return &RewardsConfig{
		DuplicateWindow:       5 * time.Minute,
		RedemptionExpiry:      90 * 24 * time.Hour,
		CodePrefix:            "CL-",
		CodeLength:            8,
		CodeAttempts:          5,
		MaxRedeemsPerWindow:   10,
		RedeemRateLimitWindow: time.Minute,
		SweepInterval:         time.Hour,
		AchievementCacheTTL:   10 * time.Minute,
		EventQueue:            "rewards:events",
	}
}
