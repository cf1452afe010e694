package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

type Config struct {
	TelegramToken     string `yaml:"telegram_token"`
	OwnerTelegramID   int64  `yaml:"owner_telegram_id"`
	PartnerTelegramID int64  `yaml:"partner_telegram_id"`
	DatabasePath      string `yaml:"database_path"`
	TimezoneName      string `yaml:"timezone"`
	MorningTime       string `yaml:"morning_time"`
	UpcomingDays      int    `yaml:"upcoming_days"`
	WebhookURL        string `yaml:"webhook_url"`
	ServerPort        string `yaml:"server_port"`
	APIUsername       string `yaml:"api_username"`
	APIPassword       string `yaml:"api_password"`

	CalDAV CalDAVConfig `yaml:"caldav"`

	Timezone *time.Location `yaml:"-"`
}

// CalDAVConfig enables exporting schedules to a CalDAV calendar
type CalDAVConfig struct {
	URL      string `yaml:"url"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Calendar string `yaml:"calendar"`
	SyncCron string `yaml:"sync_cron"`
}

func (c CalDAVConfig) Enabled() bool {
	return c.Username != "" && c.Password != ""
}

func defaults() *Config {
	return &Config{
		DatabasePath: "./data/contactbook.db",
		TimezoneName: "Europe/Moscow",
		MorningTime:  "09:00",
		UpcomingDays: 7,
		ServerPort:   "8080",
		CalDAV: CalDAVConfig{
			SyncCron: "0 * * * *",
		},
	}
}

// Load reads the optional YAML file named by CONFIG_FILE, then applies
// environment variables on top of it.
func Load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

func applyEnv(cfg *Config) error {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	setString("TELEGRAM_BOT_TOKEN", &cfg.TelegramToken)
	setString("DATABASE_PATH", &cfg.DatabasePath)
	setString("TIMEZONE", &cfg.TimezoneName)
	setString("MORNING_TIME", &cfg.MorningTime)
	setString("WEBHOOK_URL", &cfg.WebhookURL)
	setString("SERVER_PORT", &cfg.ServerPort)
	setString("API_USERNAME", &cfg.APIUsername)
	setString("API_PASSWORD", &cfg.APIPassword)
	setString("CALDAV_URL", &cfg.CalDAV.URL)
	setString("CALDAV_USERNAME", &cfg.CalDAV.Username)
	setString("CALDAV_PASSWORD", &cfg.CalDAV.Password)
	setString("CALDAV_CALENDAR", &cfg.CalDAV.Calendar)
	setString("CALDAV_SYNC_CRON", &cfg.CalDAV.SyncCron)

	if v := os.Getenv("OWNER_TELEGRAM_ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("OWNER_TELEGRAM_ID must be a number")
		}
		cfg.OwnerTelegramID = id
	}

	if v := os.Getenv("PARTNER_TELEGRAM_ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("PARTNER_TELEGRAM_ID must be a number")
		}
		cfg.PartnerTelegramID = id
	}

	if v := os.Getenv("UPCOMING_DAYS"); v != "" {
		days, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("UPCOMING_DAYS must be a number")
		}
		cfg.UpcomingDays = days
	}
	return nil
}

func (c *Config) validate() error {
	if c.TelegramToken == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}
	if c.OwnerTelegramID == 0 {
		return fmt.Errorf("OWNER_TELEGRAM_ID is required and must be a number")
	}
	if c.UpcomingDays < 0 {
		return fmt.Errorf("UPCOMING_DAYS must not be negative")
	}

	tz, err := time.LoadLocation(c.TimezoneName)
	if err != nil {
		return fmt.Errorf("invalid TIMEZONE: %w", err)
	}
	c.Timezone = tz

	if _, err := c.MorningSpec(); err != nil {
		return err
	}
	if c.CalDAV.Enabled() {
		if _, err := cron.ParseStandard(c.CalDAV.SyncCron); err != nil {
			return fmt.Errorf("invalid CALDAV_SYNC_CRON: %w", err)
		}
	}
	return nil
}

// MorningSpec converts MorningTime ("HH:MM") to a daily cron spec
func (c *Config) MorningSpec() (string, error) {
	parts := strings.Split(c.MorningTime, ":")
	if len(parts) != 2 {
		return "", fmt.Errorf("invalid MORNING_TIME %q: expected HH:MM", c.MorningTime)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return "", fmt.Errorf("invalid MORNING_TIME %q: bad hour", c.MorningTime)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return "", fmt.Errorf("invalid MORNING_TIME %q: bad minute", c.MorningTime)
	}
	return fmt.Sprintf("%d %d * * *", minute, hour), nil
}

func (c *Config) IsAllowedUser(telegramID int64) bool {
	return telegramID == c.OwnerTelegramID || (c.PartnerTelegramID != 0 && telegramID == c.PartnerTelegramID)
}

// APIEnabled reports whether REST API credentials are configured
func (c *Config) APIEnabled() bool {
	return c.APIUsername != "" && c.APIPassword != ""
}
