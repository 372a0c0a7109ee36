// Package config loads settings from .env, an optional config file and
// EXAMPREP_* environment variables, in increasing priority.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. EXAMPREP_SYNC_DEBOUNCE.
const EnvPrefix = "EXAMPREP"

type Config struct {
	Log       LogConfig      `mapstructure:"log"`
	Database  DatabaseConfig `mapstructure:"database"`
	Remote    RemoteConfig   `mapstructure:"remote"`
	Sync      SyncConfig     `mapstructure:"sync"`
	Cadence   CadenceConfig  `mapstructure:"cadence"`
	Reminders ReminderConfig `mapstructure:"reminders"`
	AI        AIConfig       `mapstructure:"ai"`
	Billing   BillingConfig  `mapstructure:"billing"`
	Server    ServerConfig   `mapstructure:"server"`
	Telegram  TelegramConfig `mapstructure:"telegram"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json | text
	// File enables a rotating log file next to stderr output.
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

type DatabaseConfig struct {
	Type string `mapstructure:"type"` // sqlite | postgres
	Path string `mapstructure:"path"`
	DSN  string `mapstructure:"dsn"`
}

type RemoteConfig struct {
	Backend string      `mapstructure:"backend"` // mongo | redis | memory
	Mongo   MongoConfig `mapstructure:"mongo"`
	Redis   RedisConfig `mapstructure:"redis"`
}

type MongoConfig struct {
	URI         string        `mapstructure:"uri"`
	Database    string        `mapstructure:"database"`
	Collection  string        `mapstructure:"collection"`
	MaxPoolSize uint64        `mapstructure:"max_pool_size"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type RedisConfig struct {
	URL    string `mapstructure:"url"`
	Prefix string `mapstructure:"prefix"`
}

type SyncConfig struct {
	Debounce     time.Duration `mapstructure:"debounce"`
	MinInterval  time.Duration `mapstructure:"min_interval"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type CadenceConfig struct {
	CheckInterval    time.Duration `mapstructure:"check_interval"`
	PulseDelay       time.Duration `mapstructure:"pulse_delay"`
	FreeAIAnswers    int           `mapstructure:"free_ai_answers"`
	FreeChatMessages int           `mapstructure:"free_chat_messages"`
}

type ReminderConfig struct {
	StartHour int `mapstructure:"start_hour"`
	EndHour   int `mapstructure:"end_hour"`
}

type AIConfig struct {
	APIKey            string        `mapstructure:"api_key"`
	BaseURL           string        `mapstructure:"base_url"`
	Model             string        `mapstructure:"model"`
	MaxTokens         int           `mapstructure:"max_tokens"`
	Temperature       float32       `mapstructure:"temperature"`
	MaxRetries        int           `mapstructure:"max_retries"`
	RetryBase         time.Duration `mapstructure:"retry_base"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute"`
}

// Enabled reports whether an API key is configured.
func (c AIConfig) Enabled() bool {
	return c.APIKey != ""
}

type BillingConfig struct {
	// CheckoutURLs maps a tier to its hosted checkout page.
	CheckoutURLs  map[string]string `mapstructure:"checkout_urls"`
	WebhookSecret string            `mapstructure:"webhook_secret"`
}

type ServerConfig struct {
	Addr           string        `mapstructure:"addr"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

type TelegramConfig struct {
	Token   string `mapstructure:"token"`
	Enabled bool   `mapstructure:"enabled"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 50)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 28)

	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.path", "data/examprep.db")
	v.SetDefault("database.dsn", "")

	v.SetDefault("remote.backend", "memory")
	v.SetDefault("remote.mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("remote.mongo.database", "examprep")
	v.SetDefault("remote.mongo.collection", "users")
	v.SetDefault("remote.mongo.max_pool_size", 20)
	v.SetDefault("remote.mongo.timeout", 10*time.Second)
	v.SetDefault("remote.redis.url", "redis://localhost:6379/0")
	v.SetDefault("remote.redis.prefix", "examprep:user:")

	v.SetDefault("sync.debounce", 2*time.Second)
	v.SetDefault("sync.min_interval", 5*time.Second)
	v.SetDefault("sync.write_timeout", 15*time.Second)

	v.SetDefault("cadence.check_interval", time.Minute)
	v.SetDefault("cadence.pulse_delay", 5*time.Second)
	v.SetDefault("cadence.free_ai_answers", 5)
	v.SetDefault("cadence.free_chat_messages", 10)

	v.SetDefault("reminders.start_hour", 8)
	v.SetDefault("reminders.end_hour", 21)

	v.SetDefault("ai.api_key", "")
	v.SetDefault("ai.base_url", "")
	v.SetDefault("ai.model", "gpt-4o-mini")
	v.SetDefault("ai.max_tokens", 600)
	v.SetDefault("ai.temperature", 0.4)
	v.SetDefault("ai.max_retries", 3)
	v.SetDefault("ai.retry_base", 500*time.Millisecond)
	v.SetDefault("ai.requests_per_minute", 60)

	v.SetDefault("billing.checkout_urls", map[string]string{})
	v.SetDefault("billing.webhook_secret", "")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.request_timeout", 30*time.Second)

	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.enabled", false)
}

// Load reads configuration. path names an optional config file; when empty
// a config.yaml in the working directory is used if present.
func Load(path string) (*Config, error) {
	// .env only fills variables that are not already set
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "failed to load .env")
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// names the previous bot deployment used
	_ = v.BindEnv("telegram.token", EnvPrefix+"_TELEGRAM_TOKEN", "TELEGRAM_BOT_TOKEN")
	_ = v.BindEnv("ai.api_key", EnvPrefix+"_AI_API_KEY", "OPENAI_API_KEY")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "failed to read config file %s", path)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, errors.Wrap(err, "failed to read config file")
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to decode config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values the application cannot run with.
func (c *Config) Validate() error {
	switch c.Database.Type {
	case "sqlite", "postgres":
	default:
		return errors.Errorf("unknown database type %q", c.Database.Type)
	}
	if c.Database.Type == "postgres" && c.Database.DSN == "" {
		return errors.New("database.dsn is required for postgres")
	}
	switch c.Remote.Backend {
	case "mongo", "redis", "memory":
	default:
		return errors.Errorf("unknown remote backend %q", c.Remote.Backend)
	}
	if c.Reminders.StartHour < 0 || c.Reminders.EndHour > 23 || c.Reminders.StartHour > c.Reminders.EndHour {
		return errors.Errorf("invalid reminder window %d-%d", c.Reminders.StartHour, c.Reminders.EndHour)
	}
	if c.Cadence.FreeAIAnswers < 0 || c.Cadence.FreeChatMessages < 0 {
		return errors.New("free quotas must not be negative")
	}
	// day rollovers and the reminder window must be noticed within a minute
	if c.Cadence.CheckInterval <= 0 || c.Cadence.CheckInterval > time.Minute {
		return errors.Errorf("cadence.check_interval must be in (0, 1m], got %s", c.Cadence.CheckInterval)
	}
	if c.Telegram.Enabled && c.Telegram.Token == "" {
		return errors.New("telegram is enabled but no token is set")
	}
	return nil
}
