package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("JWT_SECRET", "")
	t.Setenv("ADMIN_PASSWORD", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Empty(t, cfg.JWTSecret)
	assert.Empty(t, cfg.AdminPassword)
	assert.Empty(t, cfg.CashierPassword)
}

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Address())
	assert.Equal(t, 8*time.Hour, cfg.TokenTTL)
	assert.Equal(t, 15*time.Minute, cfg.ReminderInterval)
	assert.Equal(t, 9, cfg.ReminderHour)
	assert.Equal(t, 2, cfg.ReplicationWorkers)
	assert.False(t, cfg.IsProduction())
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PORT", "9090")
	t.Setenv("APP_ENV", "production")
	t.Setenv("TOKEN_TTL", "30m")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("REDIS_DB", "3")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Address())
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, 30*time.Minute, cfg.TokenTTL)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Origins())
	assert.Equal(t, 3, cfg.RedisDB)
}

func TestLoadRejectsBadReminderHour(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("REMINDER_HOUR", "25")

	_, err := Load()
	require.Error(t, err)
}

func TestLocationFallsBackToLocal(t *testing.T) {
	cfg := &Config{}
	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, time.Local, loc)

	cfg.Timezone = "Not/AZone"
	_, err = cfg.Location()
	require.Error(t, err)
}
