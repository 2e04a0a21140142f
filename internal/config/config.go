package config

import "time"

// Config represents the application configuration
type Config struct {
	Telegram  TelegramConfig
	Panel     PanelConfig
	Webhook   WebhookConfig
	Reminders ReminderConfig
	Storage   StorageConfig
	Plans     map[string]int
	LogLevel  string
}

// TelegramConfig holds the Telegram bot configuration
type TelegramConfig struct {
	Token    string
	AdminIDs []int64
}

// PanelConfig holds the configuration for the upstream proxy panel
type PanelConfig struct {
	BaseURL    string
	Username   string
	Password   string
	APIPath    string
	InboundIDs []int
	Flow       string
	TotalGB    int64
	LimitIP    int
	PublicHost string
	PublicPort int
	SubBaseURL string
	VerifySSL  bool
	Timeout    time.Duration
}

// WebhookConfig holds the payment webhook server configuration
type WebhookConfig struct {
	Bind              string
	Port              int
	Token             string
	TributeAPIKey     string
	TributeDefault    string
	TributeProductMap map[string]string
}

// ReminderConfig holds the reminder scheduler configuration
type ReminderConfig struct {
	Interval time.Duration
}

// StorageConfig holds the local database configuration
type StorageConfig struct {
	DBPath string
}
