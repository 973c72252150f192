// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/seo-auditor/internal/logging"
	"github.com/JakeFAU/seo-auditor/internal/policy/ratelimit"
	"github.com/JakeFAU/seo-auditor/internal/storage/local"
)

// EnvPrefix is prepended to every environment override, e.g.
// SEOAUDIT_SERVER_PORT=9090.
const EnvPrefix = "SEOAUDIT"

// Extractor backends.
const (
	BackendChromedp   = "chromedp"
	BackendPlaywright = "playwright"
	BackendColly      = "colly"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig     `mapstructure:"server"`
	Auth      AuthConfig       `mapstructure:"auth"`
	Logging   logging.Config   `mapstructure:"logging"`
	Engine    EngineConfig     `mapstructure:"engine"`
	Extractor ExtractorConfig  `mapstructure:"extractor"`
	RateLimit ratelimit.Config `mapstructure:"ratelimit"`
	Archive   ArchiveConfig    `mapstructure:"archive"`
	PubSub    PubSubConfig     `mapstructure:"pubsub"`
	Assembler AssemblerConfig  `mapstructure:"assembler"`
	Insight   InsightConfig    `mapstructure:"insight"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// EngineConfig sizes the worker pool and job retention.
type EngineConfig struct {
	Concurrency    int           `mapstructure:"concurrency"`
	QueueDepth     int           `mapstructure:"queue_depth"`
	Retention      time.Duration `mapstructure:"retention"`
	SweepInterval  time.Duration `mapstructure:"sweep_interval"`
	JobTimeout     time.Duration `mapstructure:"job_timeout"`
	EnqueueTimeout time.Duration `mapstructure:"enqueue_timeout"`
}

// ExtractorConfig selects and tunes the page extractor.
type ExtractorConfig struct {
	Backend     string        `mapstructure:"backend"`
	UserAgent   string        `mapstructure:"user_agent"`
	NavTimeout  time.Duration `mapstructure:"nav_timeout"`
	MaxParallel int           `mapstructure:"max_parallel"`
	// HTTPTimeout bounds the plain fetch used by /api/crawl.
	HTTPTimeout time.Duration `mapstructure:"http_timeout"`
	ExecPath    string        `mapstructure:"exec_path"`
}

// ArchiveConfig selects where extraction snapshots are written.
type ArchiveConfig struct {
	Backend      string       `mapstructure:"backend"`
	Bucket       string       `mapstructure:"bucket"`
	Prefix       string       `mapstructure:"prefix"`
	CacheControl string       `mapstructure:"cache_control"`
	Local        local.Config `mapstructure:"local"`
}

// PubSubConfig holds metadata for completion notifications. An empty
// ProjectID keeps events in memory.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// AssemblerConfig tunes the audit assembler used by the audit command.
type AssemblerConfig struct {
	BaseURL            string        `mapstructure:"base_url"`
	PollInterval       time.Duration `mapstructure:"poll_interval"`
	MaxAttempts        int           `mapstructure:"max_attempts"`
	FallbackDelay      time.Duration `mapstructure:"fallback_delay"`
	DegradeToSimulated bool          `mapstructure:"degrade_to_simulated"`
	RequestTimeout     time.Duration `mapstructure:"request_timeout"`
}

// InsightConfig selects the AI insight generator.
type InsightConfig struct {
	Provider string        `mapstructure:"provider"`
	APIKey   string        `mapstructure:"api_key"`
	Model    string        `mapstructure:"model"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
	v.SetDefault("engine.concurrency", 4)
	v.SetDefault("engine.queue_depth", 64)
	v.SetDefault("engine.retention", "1h")
	v.SetDefault("engine.sweep_interval", "1h")
	v.SetDefault("engine.job_timeout", "60s")
	v.SetDefault("engine.enqueue_timeout", "5s")
	v.SetDefault("extractor.backend", BackendChromedp)
	v.SetDefault("extractor.user_agent", "")
	v.SetDefault("extractor.nav_timeout", "45s")
	v.SetDefault("extractor.max_parallel", 4)
	v.SetDefault("extractor.http_timeout", "15s")
	v.SetDefault("extractor.exec_path", "")
	v.SetDefault("ratelimit.per_host_rps", 0.0)
	v.SetDefault("ratelimit.burst", 1)
	v.SetDefault("archive.backend", "none")
	v.SetDefault("archive.bucket", "")
	v.SetDefault("archive.prefix", "snapshots")
	v.SetDefault("archive.cache_control", "")
	v.SetDefault("archive.local.base_dir", "data/snapshots")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic", "audit-jobs")
	v.SetDefault("assembler.base_url", "http://localhost:8080")
	v.SetDefault("assembler.poll_interval", "2s")
	v.SetDefault("assembler.max_attempts", 30)
	v.SetDefault("assembler.fallback_delay", "1500ms")
	v.SetDefault("assembler.degrade_to_simulated", true)
	v.SetDefault("assembler.request_timeout", "10s")
	v.SetDefault("insight.provider", "mock")
	v.SetDefault("insight.api_key", "")
	v.SetDefault("insight.model", "gemini-1.5-flash")
	v.SetDefault("insight.timeout", "20s")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Engine.Concurrency <= 0 {
		return fmt.Errorf("engine.concurrency must be > 0")
	}
	if c.Engine.QueueDepth <= 0 {
		return fmt.Errorf("engine.queue_depth must be > 0")
	}
	if c.Engine.JobTimeout < 0 {
		return fmt.Errorf("engine.job_timeout must be >= 0")
	}
	switch c.Extractor.Backend {
	case BackendChromedp, BackendPlaywright, BackendColly:
	default:
		return fmt.Errorf("extractor.backend must be one of chromedp, playwright, colly; got %q", c.Extractor.Backend)
	}
	if c.Extractor.NavTimeout <= 0 {
		return fmt.Errorf("extractor.nav_timeout must be > 0")
	}
	if c.Engine.JobTimeout > 0 && c.Engine.JobTimeout < c.Extractor.NavTimeout {
		return fmt.Errorf("engine.job_timeout (%s) must exceed extractor.nav_timeout (%s)", c.Engine.JobTimeout, c.Extractor.NavTimeout)
	}
	if c.Extractor.MaxParallel < 0 {
		return fmt.Errorf("extractor.max_parallel must be >= 0")
	}
	if c.RateLimit.PerHostRPS > 0 && c.RateLimit.Burst <= 0 {
		return fmt.Errorf("ratelimit.burst must be > 0 when ratelimit.per_host_rps is set")
	}
	switch c.Archive.Backend {
	case "none", "memory":
	case "local":
		if c.Archive.Local.BaseDir == "" {
			return fmt.Errorf("archive.local.base_dir must be set for the local archive")
		}
	case "gcs":
		if c.Archive.Bucket == "" {
			return fmt.Errorf("archive.bucket must be set for the gcs archive")
		}
	default:
		return fmt.Errorf("archive.backend must be one of none, memory, local, gcs; got %q", c.Archive.Backend)
	}
	if c.Assembler.MaxAttempts <= 0 {
		return fmt.Errorf("assembler.max_attempts must be > 0")
	}
	if c.Assembler.PollInterval <= 0 {
		return fmt.Errorf("assembler.poll_interval must be > 0")
	}
	switch c.Insight.Provider {
	case "none", "mock":
	case "gemini":
		if c.Insight.APIKey == "" {
			return fmt.Errorf("insight.api_key must be set for the gemini provider")
		}
	default:
		return fmt.Errorf("insight.provider must be one of none, mock, gemini; got %q", c.Insight.Provider)
	}
	return nil
}

// ListenAddr returns the HTTP listen address.
func (c Config) ListenAddr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}
