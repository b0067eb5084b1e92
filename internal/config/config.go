package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Apify      ApifyConfig      `yaml:"apify" mapstructure:"apify"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Firecrawl  FirecrawlConfig  `yaml:"firecrawl" mapstructure:"firecrawl"`
	Jina       JinaConfig       `yaml:"jina" mapstructure:"jina"`
	Notion     NotionConfig     `yaml:"notion" mapstructure:"notion"`
	Mail       MailConfig       `yaml:"mail" mapstructure:"mail"`
	Sender     SenderConfig     `yaml:"sender" mapstructure:"sender"`
	Retry      RetryConfig      `yaml:"retry" mapstructure:"retry"`
	Scrape     ScrapeConfig     `yaml:"scrape" mapstructure:"scrape"`
	Pipeline   PipelineConfig   `yaml:"pipeline" mapstructure:"pipeline"`
	Schedule   ScheduleConfig   `yaml:"schedule" mapstructure:"schedule"`
	Driver     DriverConfig     `yaml:"driver" mapstructure:"driver"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the persistence backend.
type StoreConfig struct {
	// Driver is one of sqlite, postgres, json.
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	// Path is the sqlite file or the json state directory.
	Path string `yaml:"path" mapstructure:"path"`
}

// ApifyConfig holds dataset provider settings.
type ApifyConfig struct {
	Token            string `yaml:"token" mapstructure:"token"`
	BaseURL          string `yaml:"base_url" mapstructure:"base_url"`
	ActorID          string `yaml:"actor_id" mapstructure:"actor_id"`
	RunInput         string `yaml:"run_input" mapstructure:"run_input"`
	PollIntervalSecs int    `yaml:"poll_interval_secs" mapstructure:"poll_interval_secs"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int    `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// FirecrawlConfig holds Firecrawl API settings (rendered fallback only).
type FirecrawlConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// JinaConfig holds Jina AI Reader settings.
type JinaConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// NotionConfig holds Notion API credentials for the lead sheet.
type NotionConfig struct {
	Token  string `yaml:"token" mapstructure:"token"`
	LeadDB string `yaml:"lead_db" mapstructure:"lead_db"`
}

// MailConfig holds SMTP settings.
type MailConfig struct {
	Host     string `yaml:"host" mapstructure:"host"`
	Port     int    `yaml:"port" mapstructure:"port"`
	Username string `yaml:"username" mapstructure:"username"`
	Password string `yaml:"password" mapstructure:"password"`
	From     string `yaml:"from" mapstructure:"from"`
	DryRun   bool   `yaml:"dry_run" mapstructure:"dry_run"`
}

// SenderConfig is the signature rendered into every email.
type SenderConfig struct {
	Name     string `yaml:"name" mapstructure:"name"`
	Position string `yaml:"position" mapstructure:"position"`
	Company  string `yaml:"company" mapstructure:"company"`
}

// RetryConfig configures the retrying remote fetcher.
type RetryConfig struct {
	MaxRetries    int `yaml:"max_retries" mapstructure:"max_retries"`
	BaseDelaySecs int `yaml:"base_delay_secs" mapstructure:"base_delay_secs"`
}

// ScrapeConfig configures website fetching.
type ScrapeConfig struct {
	TimeoutSecs      int      `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	UserAgent        string   `yaml:"user_agent" mapstructure:"user_agent"`
	RenderedHosts    []string `yaml:"rendered_hosts" mapstructure:"rendered_hosts"`
	RequestsPerSec   float64  `yaml:"requests_per_sec" mapstructure:"requests_per_sec"`
	BreakerThreshold int      `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerResetSecs int      `yaml:"breaker_reset_secs" mapstructure:"breaker_reset_secs"`
}

// PipelineConfig configures batch processing.
type PipelineConfig struct {
	MaxLeads           int  `yaml:"max_leads" mapstructure:"max_leads"`
	Concurrency        int  `yaml:"concurrency" mapstructure:"concurrency"`
	StructuredDedupKey bool `yaml:"structured_dedup_key" mapstructure:"structured_dedup_key"`
}

// ScheduleConfig configures the follow-up scheduler.
type ScheduleConfig struct {
	SendInitial bool `yaml:"send_initial" mapstructure:"send_initial"`
}

// DriverConfig holds the cron specs of the daemon jobs.
type DriverConfig struct {
	IngestSpec   string `yaml:"ingest_spec" mapstructure:"ingest_spec"`
	DispatchSpec string `yaml:"dispatch_spec" mapstructure:"dispatch_spec"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port    int  `yaml:"port" mapstructure:"port"`
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
}

// MonitoringConfig configures batch failure alerting.
type MonitoringConfig struct {
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	MinLeads             int     `yaml:"min_leads" mapstructure:"min_leads"`
	// CheckIntervalSecs is how often the schedule backlog is checked.
	CheckIntervalSecs int `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Mode names the entry point being validated.
type Mode string

const (
	ModeIngest   Mode = "ingest"
	ModeDispatch Mode = "dispatch"
	ModeDaemon   Mode = "daemon"
	ModeTest     Mode = "test"
	ModeServe    Mode = "serve"
	// ModeAdmin covers store-only commands such as init and schedules.
	ModeAdmin Mode = "admin"
)

var envOnlyKeys = []string{
	"store.database_url",
	"apify.token", "apify.actor_id", "apify.run_input",
	"anthropic.key",
	"firecrawl.key",
	"jina.key",
	"notion.token", "notion.lead_db",
	"mail.username", "mail.password", "mail.from", "mail.dry_run",
	"sender.name", "sender.position", "sender.company",
	"schedule.send_initial",
	"pipeline.structured_dedup_key",
	"server.enabled",
	"monitoring.webhook_url",
}

// Load reads configuration from .env, config.yaml and the environment.
func Load() (*Config, error) {
	// Missing .env is fine; variables already set win.
	_ = godotenv.Load()

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("OUTREACH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Keys without defaults must be bound so env-only secrets unmarshal.
	for _, key := range envOnlyKeys {
		_ = v.BindEnv(key)
	}

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "outreach.db")
	v.SetDefault("apify.base_url", "https://api.apify.com/v2")
	v.SetDefault("apify.poll_interval_secs", 5)
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 1024)
	v.SetDefault("firecrawl.base_url", "https://api.firecrawl.dev/v2")
	v.SetDefault("jina.base_url", "https://r.jina.ai")
	v.SetDefault("mail.host", "smtp.gmail.com")
	v.SetDefault("mail.port", 587)
	v.SetDefault("retry.max_retries", 3)
	v.SetDefault("retry.base_delay_secs", 1)
	v.SetDefault("scrape.timeout_secs", 30)
	v.SetDefault("scrape.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36")
	v.SetDefault("scrape.requests_per_sec", 2.0)
	v.SetDefault("scrape.breaker_threshold", 5)
	v.SetDefault("scrape.breaker_reset_secs", 60)
	v.SetDefault("pipeline.max_leads", 10)
	v.SetDefault("pipeline.concurrency", 1)
	v.SetDefault("driver.ingest_spec", "@every 1h")
	v.SetDefault("driver.dispatch_spec", "@every 15m")
	v.SetDefault("server.port", 8080)
	v.SetDefault("monitoring.failure_rate_threshold", 0.5)
	v.SetDefault("monitoring.min_leads", 3)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks that every setting required by mode is present and that
// numeric knobs are in range. It is called once at startup.
func (c *Config) Validate(mode Mode) error {
	var errs []string
	require := func(key, val string) {
		if strings.TrimSpace(val) == "" {
			errs = append(errs, key+" is required")
		}
	}

	switch c.Store.Driver {
	case "sqlite", "json":
		require("store.path", c.Store.Path)
	case "postgres":
		require("store.database_url", c.Store.DatabaseURL)
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q is not one of sqlite, postgres, json", c.Store.Driver))
	}

	ingest := func() {
		require("apify.token", c.Apify.Token)
		require("apify.actor_id", c.Apify.ActorID)
		require("anthropic.key", c.Anthropic.Key)
	}
	dispatch := func() {
		require("mail.host", c.Mail.Host)
		require("mail.username", c.Mail.Username)
		if !c.Mail.DryRun {
			require("mail.password", c.Mail.Password)
		}
	}

	switch mode {
	case ModeIngest:
		ingest()
	case ModeDispatch:
		dispatch()
	case ModeDaemon:
		ingest()
		dispatch()
	case ModeTest:
		require("anthropic.key", c.Anthropic.Key)
	case ModeAdmin:
	case ModeServe:
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Notion.LeadDB != "" {
		require("notion.token", c.Notion.Token)
	}
	if c.Retry.MaxRetries < 1 {
		errs = append(errs, "retry.max_retries must be >= 1")
	}
	if c.Pipeline.Concurrency < 1 || c.Pipeline.Concurrency > 20 {
		errs = append(errs, "pipeline.concurrency must be between 1 and 20")
	}
	if c.Monitoring.FailureRateThreshold < 0 || c.Monitoring.FailureRateThreshold > 1 {
		errs = append(errs, "monitoring.failure_rate_threshold must be between 0 and 1")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// FromAddress returns the mail sender address, defaulting to the SMTP user.
func (m MailConfig) FromAddress() string {
	if m.From != "" {
		return m.From
	}
	return m.Username
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
