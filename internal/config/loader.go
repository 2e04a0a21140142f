package config

import (
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"vpn-access-bot/internal/constants"
	"vpn-access-bot/internal/errors"
)

// defaultPlans maps plan codes to durations in days
var defaultPlans = map[string]int{
	"trial": 3,
	"1m":    30,
	"3m":    90,
	"12m":   365,
}

// Load loads the configuration from environment variables
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("XUI_API_PATH", constants.DefaultAPIPath)
	v.SetDefault("XUI_SSL_VERIFY", true)
	v.SetDefault("XUI_TIMEOUT_SECONDS", constants.DefaultTimeout)
	v.SetDefault("DB_PATH", "data/bot.db")
	v.SetDefault("REMINDER_INTERVAL_MINUTES", constants.DefaultReminderIntervalMinutes)
	v.SetDefault("WEBHOOK_BIND", "127.0.0.1")
	v.SetDefault("WEBHOOK_PORT", 8080)
	v.SetDefault("TRIBUTE_DEFAULT_PLAN", "trial")

	cfg := &Config{
		LogLevel: v.GetString("LOG_LEVEL"),
		Telegram: TelegramConfig{
			Token:    strings.TrimSpace(v.GetString("BOT_TOKEN")),
			AdminIDs: parseInt64List(v.GetString("TG_ADMIN_IDS")),
		},
		Panel: PanelConfig{
			BaseURL:    strings.TrimRight(strings.TrimSpace(v.GetString("XUI_BASE_URL")), "/"),
			Username:   strings.TrimSpace(v.GetString("XUI_USERNAME")),
			Password:   strings.TrimSpace(v.GetString("XUI_PASSWORD")),
			APIPath:    strings.TrimRight(strings.TrimSpace(v.GetString("XUI_API_PATH")), "/"),
			InboundIDs: parseInboundIDs(v.GetString("XUI_INBOUND_IDS")),
			Flow:       strings.TrimSpace(v.GetString("XUI_FLOW")),
			TotalGB:    v.GetInt64("XUI_TOTAL_GB"),
			LimitIP:    v.GetInt("XUI_LIMIT_IP"),
			PublicHost: strings.TrimSpace(v.GetString("XUI_PUBLIC_HOST")),
			PublicPort: v.GetInt("XUI_PUBLIC_PORT"),
			SubBaseURL: strings.TrimSpace(v.GetString("XUI_SUB_BASE_URL")),
			VerifySSL:  v.GetBool("XUI_SSL_VERIFY"),
			Timeout:    time.Duration(v.GetInt("XUI_TIMEOUT_SECONDS")) * time.Second,
		},
		Webhook: WebhookConfig{
			Bind:              v.GetString("WEBHOOK_BIND"),
			Port:              v.GetInt("WEBHOOK_PORT"),
			Token:             strings.TrimSpace(v.GetString("WEBHOOK_TOKEN")),
			TributeAPIKey:     strings.TrimSpace(v.GetString("TRIBUTE_API_KEY")),
			TributeDefault:    strings.TrimSpace(v.GetString("TRIBUTE_DEFAULT_PLAN")),
			TributeProductMap: parsePlanMap(v.GetString("TRIBUTE_PRODUCT_MAP")),
		},
		Reminders: ReminderConfig{
			Interval: time.Duration(v.GetInt("REMINDER_INTERVAL_MINUTES")) * time.Minute,
		},
		Storage: StorageConfig{
			DBPath: v.GetString("DB_PATH"),
		},
		Plans: parsePlans(v.GetString("PLAN_DAYS")),
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// parseInboundIDs parses a comma-separated inbound id list, dropping
// duplicates while preserving first-seen order
func parseInboundIDs(raw string) []int {
	seen := make(map[int]bool)
	var ids []int
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.Atoi(part)
		if err != nil || id <= 0 {
			continue
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids
}

// parseInt64List parses a comma-separated list of integers
func parseInt64List(raw string) []int64 {
	var out []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, id)
	}
	return out
}

// parsePlanMap parses "key:value,key:value" pairs
func parsePlanMap(raw string) map[string]string {
	mapping := make(map[string]string)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, ok := strings.Cut(part, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if key != "" && value != "" {
			mapping[key] = value
		}
	}
	return mapping
}

// parsePlans parses a "code:days" override list, falling back to the
// built-in plan table
func parsePlans(raw string) map[string]int {
	if strings.TrimSpace(raw) == "" {
		plans := make(map[string]int, len(defaultPlans))
		for code, days := range defaultPlans {
			plans[code] = days
		}
		return plans
	}

	plans := make(map[string]int)
	for code, value := range parsePlanMap(raw) {
		days, err := strconv.Atoi(value)
		if err != nil || days <= 0 {
			continue
		}
		plans[code] = days
	}
	return plans
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	if cfg.Telegram.Token == "" {
		return &errors.ConfigError{Section: "telegram", Message: "BOT_TOKEN is required"}
	}
	if cfg.Panel.BaseURL == "" {
		return &errors.ConfigError{Section: "panel", Message: "XUI_BASE_URL is required"}
	}
	if cfg.Panel.Username == "" {
		return &errors.ConfigError{Section: "panel", Message: "XUI_USERNAME is required"}
	}
	if cfg.Panel.Password == "" {
		return &errors.ConfigError{Section: "panel", Message: "XUI_PASSWORD is required"}
	}
	if len(cfg.Panel.InboundIDs) == 0 {
		return &errors.ConfigError{Section: "panel", Message: "XUI_INBOUND_IDS is required"}
	}
	if len(cfg.Plans) == 0 {
		return &errors.ConfigError{Section: "plans", Message: "PLAN_DAYS produced an empty plan table"}
	}
	return nil
}
