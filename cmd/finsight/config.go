package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// =============================================================================
// Config Types
// =============================================================================

// Config holds all application configuration.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Data         DataConfig         `mapstructure:"data"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Log          LogConfig          `mapstructure:"log"`
	LLM          LLMConfig          `mapstructure:"llm"`
	Search       SearchConfig       `mapstructure:"search"`
	MarketData   MarketDataConfig   `mapstructure:"marketdata"`
	AlphaVantage AlphaVantageConfig `mapstructure:"alphavantage"`
	Agents       AgentsConfig       `mapstructure:"agents"`
	Auth         AuthConfig         `mapstructure:"auth"`
	Metering     MeteringConfig     `mapstructure:"metering"`
	Retention    RetentionConfig    `mapstructure:"retention"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host        string        `mapstructure:"host"`
	Port        int           `mapstructure:"port"`
	ReadTimeout time.Duration `mapstructure:"read_timeout"`

	// WriteTimeout of zero means unlimited: query responses stream for as
	// long as the model takes to answer.
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Address returns the server address in host:port format.
func (c ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DataConfig holds the base directory for local state.
type DataConfig struct {
	Dir string `mapstructure:"dir"`
}

// DatabaseConfig holds database configuration. An empty DSN derives the
// path from data.dir.
type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// LLMConfig holds model provider configuration. APIKey falls back to the
// GROQ_API_KEY environment variable.
type LLMConfig struct {
	APIKey        string        `mapstructure:"api_key"`
	BaseURL       string        `mapstructure:"base_url"`
	Model         string        `mapstructure:"model"`
	Temperature   float32       `mapstructure:"temperature"`
	Timeout       time.Duration `mapstructure:"timeout"`
	MaxTurns      int           `mapstructure:"max_turns"`
	HistoryWindow int           `mapstructure:"history_window"`
}

// SearchConfig holds web search configuration.
type SearchConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	MaxResults int           `mapstructure:"max_results"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// MarketDataConfig holds market data configuration. The capability flags
// control which tools the finance agent gets.
type MarketDataConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Timeout   time.Duration `mapstructure:"timeout"`
	NewsCount int           `mapstructure:"news_count"`

	StockPrice             bool `mapstructure:"stock_price"`
	AnalystRecommendations bool `mapstructure:"analyst_recommendations"`
	StockFundamentals      bool `mapstructure:"stock_fundamentals"`
	CompanyNews            bool `mapstructure:"company_news"`
}

// AlphaVantageConfig holds Alpha Vantage configuration. APIKey falls back
// to the ALPHA_VANTAGE_API_KEY environment variable; without a key the
// toolkit is left out of the team.
type AlphaVantageConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	APIKey    string        `mapstructure:"api_key"`
	Timeout   time.Duration `mapstructure:"timeout"`
	NewsLimit int           `mapstructure:"news_limit"`

	StockNews       bool `mapstructure:"stock_news"`
	CompanyOverview bool `mapstructure:"company_overview"`
}

// AgentsConfig holds team roster configuration.
type AgentsConfig struct {
	// Profile is an optional YAML file overriding the default team.
	Profile string `mapstructure:"profile"`
}

// AuthConfig holds API authentication configuration.
type AuthConfig struct {
	// Token protects the API when set. Empty means open access.
	Token string `mapstructure:"token"`
}

// MeteringConfig holds usage reporting configuration.
type MeteringConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	URL            string        `mapstructure:"url"`
	Token          string        `mapstructure:"token"`
	ReportInterval time.Duration `mapstructure:"report_interval"`
	BatchSize      int           `mapstructure:"batch_size"`
}

// RetentionConfig holds session retention configuration.
type RetentionConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Interval  time.Duration `mapstructure:"interval"`
	MaxAge    time.Duration `mapstructure:"max_age"`
	BatchSize int           `mapstructure:"batch_size"`
}

// =============================================================================
// Config Loading
// =============================================================================

// LoadConfig loads configuration from file and environment.
func LoadConfig(configPath string) (*Config, error) {
	// A local .env is read first so its keys are visible to viper.
	_ = godotenv.Load()

	v := viper.New()

	// Set defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "0s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("data.dir", "./data")
	v.SetDefault("database.dsn", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Model provider defaults
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "https://api.groq.com/openai/v1")
	v.SetDefault("llm.model", "llama-3.3-70b-versatile")
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.timeout", "5m")
	v.SetDefault("llm.max_turns", 10)
	v.SetDefault("llm.history_window", 20)

	// Tool backend defaults
	v.SetDefault("search.enabled", true)
	v.SetDefault("search.max_results", 5)
	v.SetDefault("search.timeout", "15s")
	v.SetDefault("marketdata.enabled", true)
	v.SetDefault("marketdata.timeout", "15s")
	v.SetDefault("marketdata.news_count", 5)
	v.SetDefault("marketdata.stock_price", true)
	v.SetDefault("marketdata.analyst_recommendations", true)
	v.SetDefault("marketdata.stock_fundamentals", true)
	v.SetDefault("marketdata.company_news", true)
	v.SetDefault("alphavantage.enabled", true)
	v.SetDefault("alphavantage.api_key", "")
	v.SetDefault("alphavantage.timeout", "15s")
	v.SetDefault("alphavantage.news_limit", 5)
	v.SetDefault("alphavantage.stock_news", true)
	v.SetDefault("alphavantage.company_overview", true)

	v.SetDefault("agents.profile", "")
	v.SetDefault("auth.token", "")

	// Metering defaults: disabled until a webhook is configured
	v.SetDefault("metering.enabled", false)
	v.SetDefault("metering.url", "")
	v.SetDefault("metering.token", "")
	v.SetDefault("metering.report_interval", "60s")
	v.SetDefault("metering.batch_size", 100)

	// Retention defaults: sessions are kept until pruning is enabled
	v.SetDefault("retention.enabled", false)
	v.SetDefault("retention.interval", "1h")
	v.SetDefault("retention.max_age", "720h")
	v.SetDefault("retention.batch_size", 100)

	// Load from file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			// Only return error if file was explicitly specified and is invalid
			if _, ok := err.(viper.ConfigParseError); ok {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
			// File not found is OK, we'll use defaults
		}
	}

	// Enable environment variable overrides
	v.SetEnvPrefix("FINSIGHT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Unmarshal config
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// The provider keys are honored under their conventional names so a
	// plain .env works without FINSIGHT_ prefixes.
	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = os.Getenv("GROQ_API_KEY")
	}
	if cfg.AlphaVantage.APIKey == "" {
		cfg.AlphaVantage.APIKey = os.Getenv("ALPHA_VANTAGE_API_KEY")
	}

	if cfg.Database.DSN == "" {
		cfg.Database.DSN = filepath.Join(cfg.Data.Dir, "finsight.db")
	}

	return &cfg, nil
}

// =============================================================================
// Logger Setup
// =============================================================================

// SetupLogger creates a logger with the configured level and format.
func SetupLogger(cfg *Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if strings.ToLower(cfg.Log.Format) == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
