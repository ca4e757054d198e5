package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config represents the full application configuration surface.
type Config struct {
	Server   ServerConfig
	Log      LogConfig
	WhatsApp WhatsAppConfig
	MongoDB  MongoDBConfig
	Storage  StorageConfig
	Relay    RelayConfig
	Gateway  GatewayConfig
	Stats    StatsConfig
}

// ServerConfig holds HTTP server related options.
type ServerConfig struct {
	Port string
}

// LogConfig selects the minimum log level.
type LogConfig struct {
	Level string
}

// WhatsAppConfig contains options for the Meta WhatsApp Cloud API. Access tokens
// are not configured here: each chatbot document carries its own.
type WhatsAppConfig struct {
	BaseURL     string
	APIVersion  string
	VerifyToken string
	Timeout     time.Duration
}

// MongoDBConfig holds settings for MongoDB.
type MongoDBConfig struct {
	URI                string
	DBName             string
	EventsCollection   string
	ChatBotsCollection string
	MessagesCollection string
	CursorsCollection  string
}

// StorageConfig describes the S3 bucket media is copied into.
type StorageConfig struct {
	Bucket        string
	Region        string
	Endpoint      string
	PublicBaseURL string
	KeyNamespace  string
}

// RelayConfig tunes the event ingestion pipeline.
type RelayConfig struct {
	MediaConcurrency int64
	EventTimeout     time.Duration
	ResumeStream     bool
	ReconnectDelay   time.Duration
	ChatBotCacheTTL  time.Duration
}

// GatewayConfig holds websocket gateway settings.
type GatewayConfig struct {
	IdentityHeader string
	SendBuffer     int
}

// StatsConfig holds the relay stats reporter schedule.
type StatsConfig struct {
	CronSchedule string
}

// Load reads environment variables (optionally from the provided file) and
// materializes a Config instance.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed loading env file %s: %w", envFile, err)
			}
		}
	} else {
		// Ignore the returned error here; missing .env files are acceptable when
		// configuration comes from the environment directly.
		_ = godotenv.Load()
	}

	var parseErrs []error

	cfg := &Config{
		Server: ServerConfig{
			Port: getenvWithDefault("APP_PORT", "3000"),
		},
		Log: LogConfig{
			Level: getenvWithDefault("LOG_LEVEL", "info"),
		},
		WhatsApp: WhatsAppConfig{
			BaseURL:     getenvWithDefault("WHATSAPP_BASE_URL", "https://graph.facebook.com"),
			APIVersion:  getenvWithDefault("WHATSAPP_API_VERSION", "v16.0"),
			VerifyToken: os.Getenv("META_VERIFY_TOKEN"),
			Timeout:     getDuration("WHATSAPP_TIMEOUT", 30*time.Second, &parseErrs),
		},
		MongoDB: MongoDBConfig{
			URI:                getenvWithDefault("MONGODB_URI", "mongodb://localhost:27017"),
			DBName:             getenvWithDefault("MONGODB_DB_NAME", "chatrelay"),
			EventsCollection:   getenvWithDefault("MONGODB_EVENTS_COLLECTION", "external-events"),
			ChatBotsCollection: getenvWithDefault("MONGODB_CHATBOTS_COLLECTION", "chatbots"),
			MessagesCollection: getenvWithDefault("MONGODB_MESSAGES_COLLECTION", "messages"),
			CursorsCollection:  getenvWithDefault("MONGODB_CURSORS_COLLECTION", "event-cursors"),
		},
		Storage: StorageConfig{
			Bucket:        os.Getenv("STORAGE_BUCKET"),
			Region:        getenvWithDefault("STORAGE_REGION", "ap-south-1"),
			Endpoint:      os.Getenv("STORAGE_ENDPOINT"),
			PublicBaseURL: strings.TrimSuffix(os.Getenv("STORAGE_PUBLIC_BASE_URL"), "/"),
			KeyNamespace:  strings.Trim(getenvWithDefault("STORAGE_KEY_NAMESPACE", "whatsapp-media"), "/"),
		},
		Relay: RelayConfig{
			MediaConcurrency: int64(getInt("RELAY_MEDIA_CONCURRENCY", 16, &parseErrs)),
			EventTimeout:     getDuration("RELAY_EVENT_TIMEOUT", 2*time.Minute, &parseErrs),
			ResumeStream:     getBool("RELAY_RESUME_STREAM", false, &parseErrs),
			ReconnectDelay:   getDuration("RELAY_RECONNECT_DELAY", 2*time.Second, &parseErrs),
			ChatBotCacheTTL:  getDuration("CHATBOT_CACHE_TTL", 0, &parseErrs),
		},
		Gateway: GatewayConfig{
			IdentityHeader: getenvWithDefault("GATEWAY_IDENTITY_HEADER", "user-id"),
			SendBuffer:     getInt("GATEWAY_SEND_BUFFER", 64, &parseErrs),
		},
		Stats: StatsConfig{
			CronSchedule: getenvWithDefault("STATS_CRON_SCHEDULE", "*/5 * * * *"),
		},
	}

	if len(parseErrs) > 0 {
		return nil, errors.Join(parseErrs...)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate ensures that required configuration fields are populated.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}

	if c.Server.Port == "" {
		return errors.New("APP_PORT must be provided")
	}

	if c.WhatsApp.BaseURL == "" {
		return errors.New("WHATSAPP_BASE_URL must not be empty")
	}

	if c.WhatsApp.APIVersion == "" {
		return errors.New("WHATSAPP_API_VERSION must not be empty")
	}

	switch {
	case c.MongoDB.URI == "":
		return errors.New("MONGODB_URI must be provided")
	case c.MongoDB.DBName == "":
		return errors.New("MONGODB_DB_NAME must be provided")
	case c.MongoDB.EventsCollection == "":
		return errors.New("MONGODB_EVENTS_COLLECTION must not be empty")
	case c.MongoDB.ChatBotsCollection == "":
		return errors.New("MONGODB_CHATBOTS_COLLECTION must not be empty")
	}

	switch {
	case c.Storage.Bucket == "":
		return errors.New("STORAGE_BUCKET must be provided")
	case c.Storage.PublicBaseURL == "":
		return errors.New("STORAGE_PUBLIC_BASE_URL must be provided")
	case c.Storage.Region == "":
		return errors.New("STORAGE_REGION must not be empty")
	}

	if c.Relay.MediaConcurrency <= 0 {
		return errors.New("RELAY_MEDIA_CONCURRENCY must be positive")
	}

	if c.Relay.EventTimeout <= 0 {
		return errors.New("RELAY_EVENT_TIMEOUT must be positive")
	}

	if c.Relay.ResumeStream && c.MongoDB.CursorsCollection == "" {
		return errors.New("MONGODB_CURSORS_COLLECTION must be provided when RELAY_RESUME_STREAM is enabled")
	}

	if strings.TrimSpace(c.Gateway.IdentityHeader) == "" {
		return errors.New("GATEWAY_IDENTITY_HEADER must not be empty")
	}

	if c.Gateway.SendBuffer <= 0 {
		c.Gateway.SendBuffer = 64
	}

	if c.Stats.CronSchedule == "" {
		return errors.New("STATS_CRON_SCHEDULE must be provided")
	}

	return nil
}

func getenvWithDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getInt(key string, fallback int, errs *[]error) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s must be an integer: %w", key, err))
		return fallback
	}
	return value
}

func getBool(key string, fallback bool, errs *[]error) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s must be a boolean: %w", key, err))
		return fallback
	}
	return value
}

func getDuration(key string, fallback time.Duration, errs *[]error) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s must be a duration: %w", key, err))
		return fallback
	}
	return value
}
