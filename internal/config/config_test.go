package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("STORE_DRIVER", "")
	cfg := FromViper(newViper())

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 7*24*time.Hour, cfg.Invites.TTL)
	assert.Equal(t, 7*24*time.Hour, cfg.Invites.LinkTTL)
	assert.Equal(t, 8, cfg.Notifications.Workers)
	assert.True(t, cfg.Notifications.NotifyOnPublicJoin)
	assert.Equal(t, "0 */15 * * * *", cfg.SweepSchedule)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("STORE_DRIVER", "SQLite")
	t.Setenv("INVITE_TTL", "720h")
	t.Setenv("NOTIFY_ON_PUBLIC_JOIN", "false")
	t.Setenv("APP_BASE_URL", "https://bankroll.app/")

	cfg := FromViper(newViper())

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, DriverSQLite, cfg.StoreDriver)
	assert.Equal(t, 30*24*time.Hour, cfg.Invites.TTL)
	assert.False(t, cfg.Notifications.NotifyOnPublicJoin)
	assert.Equal(t, "https://bankroll.app", cfg.Invites.BaseURL)
}
