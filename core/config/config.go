package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// TelegramConfig holds Telegram transport settings.
type TelegramConfig struct {
	Token string `yaml:"token" envconfig:"BOT_TOKEN"`
	// LongPollTimeoutSeconds bounds a single getUpdates call; 0 -> default
	LongPollTimeoutSeconds int `yaml:"longpoll_timeout_seconds" envconfig:"TELEGRAM_LONGPOLL_TIMEOUT_SECONDS"`
	// ConversationTimeoutSeconds is the per-receive idle deadline of a worker.
	ConversationTimeoutSeconds int `yaml:"conversation_timeout_seconds" envconfig:"TELEGRAM_CONVERSATION_TIMEOUT_SECONDS"`
}

// LoggingConfig defines logging related configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Dir    string `yaml:"dir"`
	File   string `yaml:"file"`
	// Profile indicates environment profile such as "debug" or "prod".
	Profile string `yaml:"profile"`
}

// LanguageConfig selects the default and fallback locale for conversations.
type LanguageConfig struct {
	Default  string `yaml:"default" envconfig:"LANGUAGE_DEFAULT"`
	Fallback string `yaml:"fallback" envconfig:"LANGUAGE_FALLBACK"`
}

// MediaConfig configures the media resolver and download limits.
type MediaConfig struct {
	// ResolverPath is the yt-dlp compatible binary used for extraction.
	ResolverPath string `yaml:"resolver_path" envconfig:"MEDIA_RESOLVER_PATH"`
	// ResolveIntervalMS spaces out sequential playlist-entry resolutions.
	ResolveIntervalMS int `yaml:"resolve_interval_ms" envconfig:"MEDIA_RESOLVE_INTERVAL_MS"`
	// MaxDownloadMB caps a single audio download; 0 -> default
	MaxDownloadMB int `yaml:"max_download_mb" envconfig:"MEDIA_MAX_DOWNLOAD_MB"`
}

// PaymentsConfig enables the donation flow when a provider token is present.
type PaymentsConfig struct {
	ProviderToken string `yaml:"provider_token" envconfig:"PAYMENTS_PROVIDER_TOKEN"`
	Currency      string `yaml:"currency" envconfig:"PAYMENTS_CURRENCY"`
	// Amounts are preset donation options in minor currency units.
	Amounts []int `yaml:"amounts"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Host           string `yaml:"host" envconfig:"DB_HOST"`
	Port           string `yaml:"port" envconfig:"DB_PORT"`
	User           string `yaml:"user" envconfig:"DB_USER"`
	Password       string `yaml:"password" envconfig:"DB_PASSWORD"`
	Name           string `yaml:"name" envconfig:"DB_NAME"`
	SSLMode        string `yaml:"sslmode" envconfig:"DB_SSLMODE"`
	MaxConnections int    `yaml:"max_connections" envconfig:"DB_MAX_CONNECTIONS"`
}

// Config aggregates the application configuration.
type Config struct {
	Telegram TelegramConfig `yaml:"telegram"`
	Database DatabaseConfig `yaml:"database"`
	Logging  LoggingConfig  `yaml:"logging"`
	Language LanguageConfig `yaml:"language"`
	Media    MediaConfig    `yaml:"media"`
	Payments PaymentsConfig `yaml:"payments"`
}

// Load reads configuration from a YAML file and environment variables.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}

	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize performs basic validation of required configuration fields and adjusts defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}

	if cfg.Telegram.Token == "" {
		return fmt.Errorf("telegram token is required")
	}
	if cfg.Telegram.LongPollTimeoutSeconds < 0 {
		return fmt.Errorf("telegram.longpoll_timeout_seconds must be >= 0")
	}
	if cfg.Telegram.LongPollTimeoutSeconds == 0 {
		cfg.Telegram.LongPollTimeoutSeconds = 30
	}
	if cfg.Telegram.ConversationTimeoutSeconds < 0 {
		return fmt.Errorf("telegram.conversation_timeout_seconds must be >= 0")
	}
	if cfg.Telegram.ConversationTimeoutSeconds == 0 {
		cfg.Telegram.ConversationTimeoutSeconds = 7200
	}

	if strings.TrimSpace(cfg.Database.Host) == "" {
		cfg.Database.Host = "localhost"
	}
	if strings.TrimSpace(cfg.Database.Port) == "" {
		cfg.Database.Port = "5432"
	}
	if strings.TrimSpace(cfg.Database.Name) == "" {
		return fmt.Errorf("database.name is required")
	}
	if strings.TrimSpace(cfg.Database.SSLMode) == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxConnections <= 0 {
		cfg.Database.MaxConnections = 4
	}

	if strings.TrimSpace(cfg.Language.Default) == "" {
		cfg.Language.Default = "en"
	}
	if strings.TrimSpace(cfg.Language.Fallback) == "" {
		cfg.Language.Fallback = cfg.Language.Default
	}

	if strings.TrimSpace(cfg.Media.ResolverPath) == "" {
		cfg.Media.ResolverPath = "yt-dlp"
	}
	if cfg.Media.ResolveIntervalMS < 0 {
		return fmt.Errorf("media.resolve_interval_ms must be >= 0")
	}
	if cfg.Media.MaxDownloadMB <= 0 {
		cfg.Media.MaxDownloadMB = 48
	}

	if strings.TrimSpace(cfg.Payments.ProviderToken) != "" {
		if strings.TrimSpace(cfg.Payments.Currency) == "" {
			return fmt.Errorf("payments.currency is required when payments.provider_token is set")
		}
		if len(cfg.Payments.Amounts) == 0 {
			cfg.Payments.Amounts = []int{100, 500, 1000}
		}
		for _, a := range cfg.Payments.Amounts {
			if a <= 0 {
				return fmt.Errorf("payments.amounts must be > 0, got %d", a)
			}
		}
	}

	return nil
}
