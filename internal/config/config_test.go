package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func unsetenv(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	require.NoError(t, os.Unsetenv(key))
}

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")
	t.Setenv("MANAGER_PIN", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Empty(t, cfg.AuthSecret, "AUTH_SECRET must stay empty when unset")
	assert.Empty(t, cfg.ManagerPIN, "MANAGER_PIN must stay empty when unset")
}

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"TAX_POLICY", "ESTIMATION_VALIDITY", "PORT", "FLAT_TAX_RATE_PERCENT", "ACCESS_TOKEN_TTL", "LOGIN_RATE_LIMIT", "PIN_RATE_LIMIT"} {
		unsetenv(t, key)
	}

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Address())
	assert.Equal(t, "flat8", cfg.TaxPolicy)
	assert.Equal(t, 8.0, cfg.FlatTaxRatePercent)
	assert.Equal(t, 168*time.Hour, cfg.EstimationValidity)
	assert.Equal(t, 8*time.Hour, cfg.AccessTokenTTL)
	assert.Equal(t, 10, cfg.LoginRateLimit)
	assert.Equal(t, 8, cfg.PINRateLimit)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("TAX_POLICY", "perItemInclusive")
	t.Setenv("TAX_COUNTRY", " ind ")
	t.Setenv("REPORT_CACHE_TTL", "5m")
	t.Setenv("ACCESS_TOKEN_TTL", "10s")
	t.Setenv("AUTH_SECRET", "  padded-secret  ")
	t.Setenv("PIN_RATE_LIMIT", "0")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "perItemInclusive", cfg.TaxPolicy)
	assert.Equal(t, "IND", cfg.TaxCountry)
	assert.Equal(t, 5*time.Minute, cfg.ReportCacheTTL)
	assert.Equal(t, 8*time.Hour, cfg.AccessTokenTTL, "sub-minute token ttl falls back to the default")
	assert.Equal(t, "padded-secret", cfg.AuthSecret)
	assert.Equal(t, 8, cfg.PINRateLimit)
}

func TestLoadRejectsMalformedDuration(t *testing.T) {
	t.Setenv("ESTIMATION_VALIDITY", "a week")

	_, err := Load()
	require.Error(t, err)
}
