package config

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"CONFIG_FILE", "TELEGRAM_BOT_TOKEN", "OWNER_TELEGRAM_ID", "PARTNER_TELEGRAM_ID",
	"DATABASE_PATH", "TIMEZONE", "MORNING_TIME", "UPCOMING_DAYS", "WEBHOOK_URL",
	"SERVER_PORT", "API_USERNAME", "API_PASSWORD", "CALDAV_URL", "CALDAV_USERNAME",
	"CALDAV_PASSWORD", "CALDAV_CALENDAR", "CALDAV_SYNC_CRON",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("TELEGRAM_BOT_TOKEN", "token")
	t.Setenv("OWNER_TELEGRAM_ID", "42")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "./data/contactbook.db", cfg.DatabasePath)
	assert.Equal(t, "Europe/Moscow", cfg.Timezone.String())
	assert.Equal(t, 7, cfg.UpcomingDays)
	assert.Equal(t, "8080", cfg.ServerPort)
	assert.False(t, cfg.APIEnabled())
	assert.False(t, cfg.CalDAV.Enabled())
	assert.True(t, cfg.IsAllowedUser(42))
	assert.False(t, cfg.IsAllowedUser(0))

	spec, err := cfg.MorningSpec()
	require.NoError(t, err)
	assert.Equal(t, "0 9 * * *", spec)
}

func TestLoad_RequiresToken(t *testing.T) {
	clearEnv(t)
	t.Setenv("OWNER_TELEGRAM_ID", "42")

	_, err := Load()
	assert.ErrorContains(t, err, "TELEGRAM_BOT_TOKEN")
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := map[string]string{
		"OWNER_TELEGRAM_ID": "abc",
		"TIMEZONE":          "Mars/Olympus",
		"MORNING_TIME":      "25:00",
		"UPCOMING_DAYS":     "-2",
	}

	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("TELEGRAM_BOT_TOKEN", "token")
			t.Setenv("OWNER_TELEGRAM_ID", "42")
			t.Setenv(key, value)

			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoad_FileWithEnvOverride(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
telegram_token: from-file
owner_telegram_id: 7
timezone: Asia/Singapore
morning_time: "07:30"
upcoming_days: 3
caldav:
  username: me
  password: secret
  calendar: /calendars/me/contacts/
  sync_cron: "*/30 * * * *"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("UPCOMING_DAYS", "14")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "from-file", cfg.TelegramToken)
	assert.Equal(t, int64(7), cfg.OwnerTelegramID)
	assert.Equal(t, "Asia/Singapore", cfg.Timezone.String())
	assert.Equal(t, 14, cfg.UpcomingDays)
	assert.True(t, cfg.CalDAV.Enabled())
	assert.Equal(t, "*/30 * * * *", cfg.CalDAV.SyncCron)

	spec, err := cfg.MorningSpec()
	require.NoError(t, err)
	assert.Equal(t, "30 7 * * *", spec)
}

func TestLoad_MissingFileFails(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "absent.yaml"))
	t.Setenv("TELEGRAM_BOT_TOKEN", "token")
	t.Setenv("OWNER_TELEGRAM_ID", "42")

	_, err := Load()
	assert.ErrorIs(t, err, fs.ErrNotExist)
	assert.ErrorContains(t, err, "read config file")
}

func TestLoad_WithoutFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("TELEGRAM_BOT_TOKEN", "token")
	t.Setenv("OWNER_TELEGRAM_ID", "42")

	_, err := Load()
	assert.NoError(t, err)
}

func TestLoad_InvalidSyncCron(t *testing.T) {
	clearEnv(t)
	t.Setenv("TELEGRAM_BOT_TOKEN", "token")
	t.Setenv("OWNER_TELEGRAM_ID", "42")
	t.Setenv("CALDAV_USERNAME", "me")
	t.Setenv("CALDAV_PASSWORD", "secret")
	t.Setenv("CALDAV_SYNC_CRON", "every hour")

	_, err := Load()
	assert.ErrorContains(t, err, "CALDAV_SYNC_CRON")
}
