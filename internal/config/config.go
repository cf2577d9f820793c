// Package config loads the bot's settings from an optional YAML file and
// EXPENSEBOT_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. EXPENSEBOT_TELEGRAM_TOKEN
// for telegram.token.
const EnvPrefix = "EXPENSEBOT"

// Store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverBigQuery = "bigquery"
	DriverMemory   = "memory"
)

// Config is the full application configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Store      StoreConfig      `mapstructure:"store"`
	Gemini     GeminiConfig     `mapstructure:"gemini"`
	Extraction ExtractionConfig `mapstructure:"extraction"`
	Telegram   TelegramConfig   `mapstructure:"telegram"`
	WhatsApp   WhatsAppConfig   `mapstructure:"whatsapp"`
	Email      EmailConfig      `mapstructure:"email"`
	Dedup      TTLConfig        `mapstructure:"dedup"`
	Pending    TTLConfig        `mapstructure:"pending"`
	LinkCode   TTLConfig        `mapstructure:"linkcode"`
	Dashboard  DashboardConfig  `mapstructure:"dashboard"`
	GCS        GCSConfig        `mapstructure:"gcs"`
	Notion     NotionConfig     `mapstructure:"notion"`
	Outbox     OutboxConfig     `mapstructure:"outbox"`
	Assistant  AssistantConfig  `mapstructure:"assistant"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	// APIToken protects /api/*. Empty leaves the API open.
	APIToken string `mapstructure:"api_token"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type StoreConfig struct {
	Driver     string         `mapstructure:"driver"`
	SQLitePath string         `mapstructure:"sqlite_path"`
	BigQuery   BigQueryConfig `mapstructure:"bigquery"`
}

type BigQueryConfig struct {
	Project string `mapstructure:"project"`
	Dataset string `mapstructure:"dataset"`
}

type GeminiConfig struct {
	APIKey     string `mapstructure:"api_key"`
	Model      string `mapstructure:"model"`
	AudioModel string `mapstructure:"audio_model"`
}

type ExtractionConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

type TelegramConfig struct {
	Token         string `mapstructure:"token"`
	Mode          string `mapstructure:"mode"`
	WebhookSecret string `mapstructure:"webhook_secret"`
}

type WhatsAppConfig struct {
	Token         string `mapstructure:"token"`
	PhoneNumberID string `mapstructure:"phone_number_id"`
	VerifyToken   string `mapstructure:"verify_token"`
	AppSecret     string `mapstructure:"app_secret"`
}

// Enabled reports whether the WhatsApp channel is configured.
func (c WhatsAppConfig) Enabled() bool {
	return c.Token != "" && c.PhoneNumberID != ""
}

type EmailConfig struct {
	Alias          string   `mapstructure:"alias"`
	Domain         string   `mapstructure:"domain"`
	SenderKeywords []string `mapstructure:"sender_keywords"`
	BankName       string   `mapstructure:"bank_name"`
	SigningKey     string   `mapstructure:"signing_key"`
}

type TTLConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

type DashboardConfig struct {
	URL string `mapstructure:"url"`
}

type GCSConfig struct {
	Bucket string `mapstructure:"bucket"`
}

type NotionConfig struct {
	Token      string `mapstructure:"token"`
	DatabaseID string `mapstructure:"database_id"`
}

type OutboxConfig struct {
	Buffer     int `mapstructure:"buffer"`
	Workers    int `mapstructure:"workers"`
	MaxRetries int `mapstructure:"max_retries"`
	// History is how many finished jobs stay visible on /api/jobs.
	History int `mapstructure:"history"`
}

type AssistantConfig struct {
	ProgressReplies bool `mapstructure:"progress_replies"`
}

// SetDefaults registers a default for every key. Viper only maps
// environment variables onto keys it knows, so every key must appear here.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.api_token", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("store.driver", DriverSQLite)
	v.SetDefault("store.sqlite_path", "data/expenses.db")
	v.SetDefault("store.bigquery.project", "")
	v.SetDefault("store.bigquery.dataset", "expense_bot")

	v.SetDefault("gemini.api_key", "")
	v.SetDefault("gemini.model", "gemini-2.5-flash")
	v.SetDefault("gemini.audio_model", "gemini-2.5-flash")

	v.SetDefault("extraction.timeout", 30*time.Second)

	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.mode", "polling")
	v.SetDefault("telegram.webhook_secret", "")

	v.SetDefault("whatsapp.token", "")
	v.SetDefault("whatsapp.phone_number_id", "")
	v.SetDefault("whatsapp.verify_token", "")
	v.SetDefault("whatsapp.app_secret", "")

	v.SetDefault("email.alias", "gastos")
	v.SetDefault("email.domain", "")
	v.SetDefault("email.sender_keywords", []string{"interbank"})
	v.SetDefault("email.bank_name", "Interbank")
	v.SetDefault("email.signing_key", "")

	v.SetDefault("dedup.ttl", 5*time.Minute)
	v.SetDefault("pending.ttl", 5*time.Minute)
	v.SetDefault("linkcode.ttl", 10*time.Minute)

	v.SetDefault("dashboard.url", "")
	v.SetDefault("gcs.bucket", "")
	v.SetDefault("notion.token", "")
	v.SetDefault("notion.database_id", "")

	v.SetDefault("outbox.buffer", 256)
	v.SetDefault("outbox.workers", 4)
	v.SetDefault("outbox.max_retries", 2)
	v.SetDefault("outbox.history", 1000)

	v.SetDefault("assistant.progress_replies", false)
}

// Load reads configuration into the global viper instance, which also holds
// the CLI flag bindings. path may be empty.
func Load(path string) (*Config, error) {
	return LoadViper(viper.GetViper(), path)
}

// LoadViper reads configuration into v. A missing file at an explicit path
// is an error; with no path, ./config.yaml is read when present.
func LoadViper(v *viper.Viper, path string) (*Config, error) {
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("Load: read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("Load: decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("Load: %w", err)
	}
	return &cfg, nil
}

// Validate checks values that have a fixed set of choices or must be
// positive. Missing credentials are reported by the commands that need them.
func (c *Config) Validate() error {
	var errs []error

	switch c.Store.Driver {
	case DriverSQLite, DriverBigQuery, DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("store.driver: unknown driver %q", c.Store.Driver))
	}
	if c.Store.Driver == DriverBigQuery && c.Store.BigQuery.Project == "" {
		errs = append(errs, errors.New("store.bigquery.project is required for the bigquery driver"))
	}

	switch c.Telegram.Mode {
	case "polling", "webhook":
	default:
		errs = append(errs, fmt.Errorf("telegram.mode: unknown mode %q", c.Telegram.Mode))
	}

	switch c.Logging.Format {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format: unknown format %q", c.Logging.Format))
	}

	for key, d := range map[string]time.Duration{
		"dedup.ttl":          c.Dedup.TTL,
		"pending.ttl":        c.Pending.TTL,
		"linkcode.ttl":       c.LinkCode.TTL,
		"extraction.timeout": c.Extraction.Timeout,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", key))
		}
	}

	if c.Outbox.Workers <= 0 || c.Outbox.Buffer <= 0 {
		errs = append(errs, errors.New("outbox.workers and outbox.buffer must be positive"))
	}
	if c.Outbox.MaxRetries < 0 {
		errs = append(errs, errors.New("outbox.max_retries must not be negative"))
	}

	return errors.Join(errs...)
}
