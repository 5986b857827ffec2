package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Serper     SerperConfig     `yaml:"serper" mapstructure:"serper"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Discovery  DiscoveryConfig  `yaml:"discovery" mapstructure:"discovery"`
	Redis      RedisConfig      `yaml:"redis" mapstructure:"redis"`
	Schedule   ScheduleConfig   `yaml:"schedule" mapstructure:"schedule"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
}

// SerperConfig holds web search API settings.
type SerperConfig struct {
	Key             string  `yaml:"key" mapstructure:"key"`
	BaseURL         string  `yaml:"base_url" mapstructure:"base_url"`
	CountryLanguage string  `yaml:"country_language" mapstructure:"country_language"`
	ResultsPerQuery int     `yaml:"results_per_query" mapstructure:"results_per_query"`
	TimeoutSecs     int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	Retries         int     `yaml:"retries" mapstructure:"retries"`
	RatePerSec      float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
}

// AnthropicConfig holds AI scoring settings. An empty key disables AI scoring.
type AnthropicConfig struct {
	Key         string  `yaml:"key" mapstructure:"key"`
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	Model       string  `yaml:"model" mapstructure:"model"`
	MaxTokens   int     `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature float64 `yaml:"temperature" mapstructure:"temperature"`
}

// DiscoveryConfig tunes the discovery and scrape runners.
type DiscoveryConfig struct {
	AIScoreThreshold      int    `yaml:"ai_score_threshold" mapstructure:"ai_score_threshold"`
	EnrichmentTimeoutSecs int    `yaml:"enrichment_timeout_secs" mapstructure:"enrichment_timeout_secs"`
	EnrichmentDelayMs     int    `yaml:"enrichment_delay_ms" mapstructure:"enrichment_delay_ms"`
	ScrapeDelayMs         int    `yaml:"scrape_delay_ms" mapstructure:"scrape_delay_ms"`
	MaxQueries            int    `yaml:"max_queries" mapstructure:"max_queries"`
	DefaultLimit          int    `yaml:"default_limit" mapstructure:"default_limit"`
	UserAgent             string `yaml:"user_agent" mapstructure:"user_agent"`
	ScraperUserAgent      string `yaml:"scraper_user_agent" mapstructure:"scraper_user_agent"`
	RubricPath            string `yaml:"rubric_path" mapstructure:"rubric_path"`
}

// RedisConfig configures the per-candidate upsert lock. An empty URL runs
// without cross-process locking.
type RedisConfig struct {
	URL         string `yaml:"url" mapstructure:"url"`
	LockTTLSecs int    `yaml:"lock_ttl_secs" mapstructure:"lock_ttl_secs"`
}

// ScheduleConfig lists recurring discovery runs started by serve.
type ScheduleConfig struct {
	Entries []ScheduleEntry `yaml:"entries" mapstructure:"entries"`
}

// ScheduleEntry is one cron-triggered run.
type ScheduleEntry struct {
	Spec    string `yaml:"spec" mapstructure:"spec"`
	Preset  string `yaml:"preset" mapstructure:"preset"`
	Country string `yaml:"country" mapstructure:"country"`
	Limit   int    `yaml:"limit" mapstructure:"limit"`
}

// ServerConfig configures the HTTP trigger surface.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	APIToken       string   `yaml:"api_token" mapstructure:"api_token"`
}

// MonitoringConfig configures the run health checker started by serve.
type MonitoringConfig struct {
	Enabled              bool    `yaml:"enabled" mapstructure:"enabled"`
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours  int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	StaleRunMinutes      int     `yaml:"stale_run_minutes" mapstructure:"stale_run_minutes"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("SCREENFREE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Conventional provider variable names work too.
	_ = v.BindEnv("serper.key", "SCREENFREE_SERPER_KEY", "SERPER_API_KEY")
	_ = v.BindEnv("anthropic.key", "SCREENFREE_ANTHROPIC_KEY", "ANTHROPIC_API_KEY")
	_ = v.BindEnv("store.database_url", "SCREENFREE_STORE_DATABASE_URL", "DATABASE_URL")
	_ = v.BindEnv("redis.url", "SCREENFREE_REDIS_URL", "REDIS_URL")

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.sqlite_path", "screenfree.db")
	v.SetDefault("serper.base_url", "https://google.serper.dev")
	v.SetDefault("serper.country_language", "de")
	v.SetDefault("serper.results_per_query", 10)
	v.SetDefault("serper.timeout_secs", 15)
	v.SetDefault("serper.retries", 3)
	v.SetDefault("serper.rate_per_sec", 5.0)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 500)
	v.SetDefault("anthropic.temperature", 0.3)
	v.SetDefault("discovery.ai_score_threshold", 35)
	v.SetDefault("discovery.enrichment_timeout_secs", 10)
	v.SetDefault("discovery.enrichment_delay_ms", 500)
	v.SetDefault("discovery.scrape_delay_ms", 1000)
	v.SetDefault("discovery.max_queries", 50)
	v.SetDefault("discovery.default_limit", 50)
	v.SetDefault("discovery.user_agent", "Mozilla/5.0 (compatible; StilleOrteBot/1.0; +https://still-magazin.com)")
	v.SetDefault("discovery.scraper_user_agent",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	v.SetDefault("redis.lock_ttl_secs", 30)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("monitoring.enabled", true)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.failure_rate_threshold", 0.25)
	v.SetDefault("monitoring.stale_run_minutes", 120)
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

// Validate checks the settings a command needs. mode is one of discover,
// scrape, review, migrate or serve.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "discover":
		errs = append(errs, c.validateStore()...)
		errs = append(errs, c.validateSearch()...)
	case "scrape", "review", "migrate":
		errs = append(errs, c.validateStore()...)
	case "serve":
		errs = append(errs, c.validateStore()...)
		errs = append(errs, c.validateSearch()...)
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
		for i, e := range c.Schedule.Entries {
			if e.Spec == "" {
				errs = append(errs, fmt.Sprintf("schedule.entries[%d].spec is required", i))
			}
			if e.Preset != "" && e.Country != "" {
				errs = append(errs, fmt.Sprintf("schedule.entries[%d] sets both preset and country", i))
			}
		}
		if c.Monitoring.FailureRateThreshold < 0 || c.Monitoring.FailureRateThreshold > 1 {
			errs = append(errs, "monitoring.failure_rate_threshold must be between 0 and 1")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Discovery.AIScoreThreshold < 0 || c.Discovery.AIScoreThreshold > 100 {
		errs = append(errs, "discovery.ai_score_threshold must be between 0 and 100")
	}
	if c.Discovery.DefaultLimit < 1 || c.Discovery.DefaultLimit > 200 {
		errs = append(errs, "discovery.default_limit must be between 1 and 200")
	}
	if c.Anthropic.Temperature < 0 || c.Anthropic.Temperature > 1 {
		errs = append(errs, "anthropic.temperature must be between 0 and 1")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateStore() []string {
	switch c.Store.Driver {
	case "postgres":
		if c.Store.DatabaseURL == "" {
			return []string{"store.database_url is required"}
		}
	case "sqlite":
		if c.Store.SQLitePath == "" {
			return []string{"store.sqlite_path is required"}
		}
	default:
		return []string{fmt.Sprintf("store.driver must be postgres or sqlite, got %q", c.Store.Driver)}
	}
	return nil
}

func (c *Config) validateSearch() []string {
	var errs []string
	if c.Serper.Key == "" {
		errs = append(errs, "serper.key is required")
	}
	if c.Serper.ResultsPerQuery < 1 || c.Serper.ResultsPerQuery > 100 {
		errs = append(errs, "serper.results_per_query must be between 1 and 100")
	}
	if c.Serper.RatePerSec <= 0 {
		errs = append(errs, "serper.rate_per_sec must be > 0")
	}
	return errs
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
