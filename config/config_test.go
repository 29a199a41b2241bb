package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsDecodeIntoPolicies(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	require.NoError(t, v.Unmarshal(&cfg))

	assert.Equal(t, "mongo", cfg.DBDriver)
	assert.Equal(t, 15*time.Minute, cfg.OTPTTL)
	assert.Equal(t, 21*24*time.Hour, cfg.TransferTTL)

	assert.Equal(t, DefaultOTPPolicy(), cfg.OTP())
	assert.Equal(t, DefaultTransferPolicy(), cfg.Transfer())
}

func TestOverridesWin(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("OTP_MAX_RESENDS", 2)
	v.Set("TRANSFER_SESSION_TTL", "10m")
	v.Set("OTP_HASH_COST", 4)

	var cfg Config
	require.NoError(t, v.Unmarshal(&cfg))

	assert.Equal(t, 2, cfg.Transfer().MaxResends)
	assert.Equal(t, 10*time.Minute, cfg.Transfer().SessionTTL)
	assert.Equal(t, 4, cfg.OTP().HashCost)
}

func TestZeroConfigFallsBackToDefaults(t *testing.T) {
	var cfg Config
	assert.Equal(t, DefaultOTPPolicy(), cfg.OTP())
	assert.Equal(t, DefaultTransferPolicy(), cfg.Transfer())
}
