package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestLoadRewardsConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		viper.Reset()
		cfg := LoadRewardsConfig()

		assert.Equal(t, DefaultRewardsConfig(), cfg)
	})

	t.Run("overrides", func(t *testing.T) {
		viper.Reset()
		viper.Set("awards.duplicate_window", "10m")
		viper.Set("redemption.expiry", "720h")
		viper.Set("redemption.code_prefix", "RX-")

		cfg := LoadRewardsConfig()
		assert.Equal(t, 10*time.Minute, cfg.DuplicateWindow)
		assert.Equal(t, 30*24*time.Hour, cfg.RedemptionExpiry)
		assert.Equal(t, "RX-", cfg.CodePrefix)
	})

	t.Run("code length floor", func(t *testing.T) {
		viper.Reset()
		viper.Set("redemption.code_length", 2)
		viper.Set("redemption.code_attempts", 0)

		cfg := LoadRewardsConfig()
		assert.Equal(t, 6, cfg.CodeLength)
		assert.Equal(t, 1, cfg.CodeAttempts)
	})
}
