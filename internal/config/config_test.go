package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("JWT_REFRESH_SECRET", "test-refresh-secret")

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, "3000", cfg.ServerPort)
	require.Equal(t, 15*time.Minute, cfg.JWTAccessTTL)
	require.Equal(t, 168*time.Hour, cfg.JWTRefreshTTL)
	require.Equal(t, int64(60), cfg.RateLimitMax)
	require.Equal(t, int64(10), cfg.AuthRateLimitMax)
	require.Equal(t, 10, cfg.BcryptCost)
	require.Equal(t, 50, cfg.BreakerErrorThreshold)
	require.Equal(t, 5*time.Second, cfg.DBBreakerTimeout)
	require.Equal(t, time.Second, cfg.CacheBreakerTimeout)
}

func TestLoadRequiresSecrets(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("JWT_REFRESH_SECRET", "")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadRejectsSharedSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "same")
	t.Setenv("JWT_REFRESH_SECRET", "same")

	_, err := Load()
	require.ErrorContains(t, err, "must differ")
}

func TestGetDurationFallsBackOnGarbage(t *testing.T) {
	t.Setenv("REQUEST_TIMEOUT", "not-a-duration")
	require.Equal(t, 30*time.Second, getDuration("REQUEST_TIMEOUT", 30*time.Second))
}
