package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
)

// ChannelIDs holds the chat-webhook channel routing table by notification kind.
type ChannelIDs struct {
	System    string
	Character string
	Kill      string
	Rally     string
	Status    string
}

// Features holds the feature-flag booleans gated by the license.
type Features struct {
	SystemTracking    bool
	CharacterTracking bool
	Notifications     bool
}

// Config is the fully resolved runtime configuration, loaded once at startup.
type Config struct {
	Environment string // dev | test | prod

	ESIBase  string
	MapBase  string
	MapSlug  string
	MapToken string

	ChatWebhookURL string
	ChannelIDs     ChannelIDs

	LicenseKey             string
	LicenseBase            string
	APIToken                string
	LicenseRefreshInterval time.Duration

	StartupSuppressionSeconds int
	CollectionInterval        time.Duration
	RetentionPeriod           time.Duration
	AggregationWindow         time.Duration
	DedupTTLSeconds           int

	Features Features

	RedisURL        string
	EnableTelemetry bool
	ServiceName     string
	OTLPEndpoint    string
	LogLevel        string
	EnablePrettyLogs bool
	AdminListenAddr  string
}

// Load reads configuration from the process environment (optionally seeded by a
// .env file) and validates required fields. A missing required key is a fatal
// init failure per spec.md §6 ("non-zero on fatal init failure").
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Environment: GetEnv("ENVIRONMENT", "dev"),

		ESIBase:  GetEnv("ESI_BASE", "https://esi.evetech.net"),
		MapBase:  GetEnv("MAP_BASE", ""),
		MapSlug:  GetEnv("MAP_SLUG", ""),
		MapToken: GetEnv("MAP_TOKEN", ""),

		ChatWebhookURL: GetEnv("CHAT_WEBHOOK_URL", ""),
		ChannelIDs: ChannelIDs{
			System:    GetEnv("CHANNEL_IDS_SYSTEM", ""),
			Character: GetEnv("CHANNEL_IDS_CHARACTER", ""),
			Kill:      GetEnv("CHANNEL_IDS_KILL", ""),
			Rally:     GetEnv("CHANNEL_IDS_RALLY", ""),
			Status:    GetEnv("CHANNEL_IDS_STATUS", ""),
		},

		LicenseKey:             GetEnv("LICENSE_KEY", ""),
		LicenseBase:            GetEnv("LICENSE_BASE", ""),
		APIToken:                GetEnv("API_TOKEN", ""),
		LicenseRefreshInterval: GetDurationMsEnv("LICENSE_REFRESH_INTERVAL", 3_600_000),

		StartupSuppressionSeconds: GetIntEnv("STARTUP_SUPPRESSION_SECONDS", 30),
		CollectionInterval:        GetDurationMsEnv("COLLECTION_INTERVAL", 30_000),
		RetentionPeriod:           GetDurationMsEnv("RETENTION_PERIOD", 24*60*60*1000),
		AggregationWindow:         GetDurationMsEnv("AGGREGATION_WINDOW", 5*60*1000),
		DedupTTLSeconds:           GetIntEnv("DEDUP_TTL_SECONDS", 86_400),

		Features: Features{
			SystemTracking:    GetBoolEnv("FEATURE_SYSTEM_TRACKING", true),
			CharacterTracking: GetBoolEnv("FEATURE_CHARACTER_TRACKING", true),
			Notifications:     GetBoolEnv("FEATURE_NOTIFICATIONS", true),
		},

		RedisURL:         GetEnv("REDIS_URL", ""),
		EnableTelemetry:  GetBoolEnv("ENABLE_TELEMETRY", false),
		ServiceName:      GetEnv("SERVICE_NAME", "wanderer-notifier"),
		OTLPEndpoint:     GetEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
		LogLevel:         GetEnv("LOG_LEVEL", "info"),
		EnablePrettyLogs: GetBoolEnv("ENABLE_PRETTY_LOGS", false),
		AdminListenAddr:  GetEnv("ADMIN_LISTEN_ADDR", ":8090"),
	}

	if cfg.Environment == "dev" || cfg.Environment == "test" {
		return cfg, nil
	}

	var missing []string
	if cfg.MapBase == "" {
		missing = append(missing, "MAP_BASE")
	}
	if cfg.MapSlug == "" {
		missing = append(missing, "MAP_SLUG")
	}
	if cfg.ChatWebhookURL == "" {
		missing = append(missing, "CHAT_WEBHOOK_URL")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required configuration: %v", missing)
	}

	return cfg, nil
}
