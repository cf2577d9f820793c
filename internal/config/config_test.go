package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := LoadViper(viper.New(), "")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, DriverSQLite, cfg.Store.Driver)
	assert.Equal(t, "polling", cfg.Telegram.Mode)
	assert.Equal(t, 5*time.Minute, cfg.Dedup.TTL)
	assert.Equal(t, 5*time.Minute, cfg.Pending.TTL)
	assert.Equal(t, 10*time.Minute, cfg.LinkCode.TTL)
	assert.Equal(t, 30*time.Second, cfg.Extraction.Timeout)
	assert.Equal(t, []string{"interbank"}, cfg.Email.SenderKeywords)
	assert.Equal(t, "gastos", cfg.Email.Alias)
	assert.Equal(t, 2, cfg.Outbox.MaxRetries)
	assert.False(t, cfg.Assistant.ProgressReplies)
	assert.False(t, cfg.WhatsApp.Enabled())
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: "9090"
store:
  driver: memory
telegram:
  token: "123:abc"
  mode: webhook
whatsapp:
  token: wa-token
  phone_number_id: "1234"
pending:
  ttl: 2m
email:
  domain: expensebot.app
  sender_keywords: [interbank, bcp]
outbox:
  workers: 8
assistant:
  progress_replies: true
`), 0o600))

	cfg, err := LoadViper(viper.New(), path)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, DriverMemory, cfg.Store.Driver)
	assert.Equal(t, "webhook", cfg.Telegram.Mode)
	assert.Equal(t, 2*time.Minute, cfg.Pending.TTL)
	assert.Equal(t, []string{"interbank", "bcp"}, cfg.Email.SenderKeywords)
	assert.Equal(t, 8, cfg.Outbox.Workers)
	assert.Equal(t, 256, cfg.Outbox.Buffer)
	assert.True(t, cfg.Assistant.ProgressReplies)
	assert.True(t, cfg.WhatsApp.Enabled())
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot.yaml")
	require.NoError(t, os.WriteFile(path, []byte("telegram:\n  token: from-file\n"), 0o600))

	t.Setenv("EXPENSEBOT_TELEGRAM_TOKEN", "from-env")
	t.Setenv("EXPENSEBOT_DEDUP_TTL", "90s")
	t.Setenv("EXPENSEBOT_STORE_BIGQUERY_DATASET", "finance")

	cfg, err := LoadViper(viper.New(), path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Telegram.Token)
	assert.Equal(t, 90*time.Second, cfg.Dedup.TTL)
	assert.Equal(t, "finance", cfg.Store.BigQuery.Dataset)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := LoadViper(viper.New(), filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg, err := LoadViper(viper.New(), "")
		require.NoError(t, err)
		return cfg
	}
	t.Chdir(t.TempDir())

	tests := []struct {
		name   string
		mutate func(c *Config)
		errMsg string
	}{
		{name: "unknown driver", mutate: func(c *Config) { c.Store.Driver = "postgres" }, errMsg: "store.driver"},
		{name: "bigquery without project", mutate: func(c *Config) { c.Store.Driver = DriverBigQuery }, errMsg: "store.bigquery.project"},
		{name: "bad telegram mode", mutate: func(c *Config) { c.Telegram.Mode = "push" }, errMsg: "telegram.mode"},
		{name: "bad log format", mutate: func(c *Config) { c.Logging.Format = "xml" }, errMsg: "logging.format"},
		{name: "zero pending ttl", mutate: func(c *Config) { c.Pending.TTL = 0 }, errMsg: "pending.ttl"},
		{name: "no workers", mutate: func(c *Config) { c.Outbox.Workers = 0 }, errMsg: "outbox.workers"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}
