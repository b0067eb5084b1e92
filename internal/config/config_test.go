package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "outreach.db", cfg.Store.Path)
	assert.Equal(t, "https://api.apify.com/v2", cfg.Apify.BaseURL)
	assert.Equal(t, 5, cfg.Apify.PollIntervalSecs)
	assert.Equal(t, 1024, cfg.Anthropic.MaxTokens)
	assert.Equal(t, "https://r.jina.ai", cfg.Jina.BaseURL)
	assert.Equal(t, "https://api.firecrawl.dev/v2", cfg.Firecrawl.BaseURL)
	assert.Equal(t, 587, cfg.Mail.Port)
	assert.Equal(t, 3, cfg.Retry.MaxRetries)
	assert.Equal(t, 1, cfg.Retry.BaseDelaySecs)
	assert.Equal(t, 10, cfg.Pipeline.MaxLeads)
	assert.Equal(t, 1, cfg.Pipeline.Concurrency)
	assert.False(t, cfg.Pipeline.StructuredDedupKey)
	assert.False(t, cfg.Schedule.SendInitial)
	assert.Equal(t, "@every 1h", cfg.Driver.IngestSpec)
	assert.Equal(t, "@every 15m", cfg.Driver.DispatchSpec)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.InDelta(t, 0.5, cfg.Monitoring.FailureRateThreshold, 0.001)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: json
  path: state
scrape:
  rendered_hosts:
    - app.example.com
    - spa.example.org
sender:
  name: Dana Weber
  company: Amplifa
log:
  format: console
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "json", cfg.Store.Driver)
	assert.Equal(t, "state", cfg.Store.Path)
	assert.Equal(t, []string{"app.example.com", "spa.example.org"}, cfg.Scrape.RenderedHosts)
	assert.Equal(t, "Dana Weber", cfg.Sender.Name)
	assert.Equal(t, "Amplifa", cfg.Sender.Company)
	assert.Equal(t, "console", cfg.Log.Format)
	// defaults still apply
	assert.Equal(t, 30, cfg.Scrape.TimeoutSecs)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("log:\n  level: debug\n"), 0o644))

	t.Setenv("OUTREACH_LOG_LEVEL", "warn")
	t.Setenv("OUTREACH_MAIL_PORT", "2525")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, 2525, cfg.Mail.Port)
}

func TestLoadDotEnv(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("OUTREACH_APIFY_ACTOR_ID=from-dotenv\n"), 0o644))
	t.Cleanup(func() { _ = os.Unsetenv("OUTREACH_APIFY_ACTOR_ID") })

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.Apify.ActorID)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("store: [unclosed"), 0o644))

	_, err := Load()
	assert.Error(t, err)
}

func TestInitLogger(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	assert.NotNil(t, zap.L())
	require.NoError(t, InitLogger(LogConfig{Level: "info", Format: "json"}))
	assert.Error(t, InitLogger(LogConfig{Level: "loud", Format: "json"}))
}

func validBase() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "sqlite"
	cfg.Store.Path = "outreach.db"
	cfg.Retry.MaxRetries = 3
	cfg.Pipeline.Concurrency = 1
	cfg.Monitoring.FailureRateThreshold = 0.5
	cfg.Server.Port = 8080
	return cfg
}

func TestValidateIngest(t *testing.T) {
	cfg := validBase()
	err := cfg.Validate(ModeIngest)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "apify.token is required")
	assert.Contains(t, err.Error(), "apify.actor_id is required")
	assert.Contains(t, err.Error(), "anthropic.key is required")

	cfg.Apify.Token = "apify_api_x"
	cfg.Apify.ActorID = "user~leads"
	cfg.Anthropic.Key = "sk-ant-x"
	assert.NoError(t, cfg.Validate(ModeIngest))
}

func TestValidateDispatch(t *testing.T) {
	cfg := validBase()
	cfg.Mail.Host = "smtp.example.com"
	cfg.Mail.Username = "outreach@example.com"

	err := cfg.Validate(ModeDispatch)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mail.password is required")

	cfg.Mail.DryRun = true
	assert.NoError(t, cfg.Validate(ModeDispatch))
}

func TestValidateDaemonNeedsBoth(t *testing.T) {
	cfg := validBase()
	cfg.Anthropic.Key = "sk-ant-x"
	err := cfg.Validate(ModeDaemon)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "apify.token")
	assert.Contains(t, err.Error(), "mail.host")
}

func TestValidateStoreDriver(t *testing.T) {
	cfg := validBase()
	cfg.Anthropic.Key = "k"

	cfg.Store.Driver = "postgres"
	err := cfg.Validate(ModeTest)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")

	cfg.Store.Driver = "mongo"
	err = cfg.Validate(ModeTest)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `store.driver "mongo"`)
}

func TestValidateBounds(t *testing.T) {
	cfg := validBase()
	cfg.Pipeline.Concurrency = 0
	cfg.Retry.MaxRetries = 0
	cfg.Monitoring.FailureRateThreshold = 1.5
	cfg.Server.Port = 0

	err := cfg.Validate(ModeServe)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pipeline.concurrency must be between 1 and 20")
	assert.Contains(t, err.Error(), "retry.max_retries must be >= 1")
	assert.Contains(t, err.Error(), "failure_rate_threshold")
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateNotionTokenWhenLeadDBSet(t *testing.T) {
	cfg := validBase()
	cfg.Notion.LeadDB = "db-123"
	err := cfg.Validate(ModeServe)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "notion.token is required")
}

func TestValidateUnknownMode(t *testing.T) {
	err := validBase().Validate("bogus")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestFromAddress(t *testing.T) {
	assert.Equal(t, "user@example.com", MailConfig{Username: "user@example.com"}.FromAddress())
	assert.Equal(t, "hello@example.com", MailConfig{Username: "u", From: "hello@example.com"}.FromAddress())
}
