// Package config loads and validates harvester configuration via Viper.
package config

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Intake    IntakeConfig    `mapstructure:"intake"`
	Fetch     FetchConfig     `mapstructure:"fetch"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Convert   ConvertConfig   `mapstructure:"convert"`
	Output    OutputConfig    `mapstructure:"output"`
	Session   SessionConfig   `mapstructure:"session"`
	Snapshot  SnapshotConfig  `mapstructure:"snapshot"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	Publisher PublisherConfig `mapstructure:"publisher"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port           int `mapstructure:"port"`
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// IntakeConfig bounds the submission queue.
type IntakeConfig struct {
	QueueCapacity    int `mapstructure:"queue_capacity"`
	MaxURLsPerSubmit int `mapstructure:"max_urls_per_submit"`
}

// FetchConfig governs the HTTP fetcher.
type FetchConfig struct {
	ConnectTimeoutSeconds int    `mapstructure:"connect_timeout_seconds"`
	RequestTimeoutSeconds int    `mapstructure:"request_timeout_seconds"`
	MaxRedirects          int    `mapstructure:"max_redirects"`
	MaxBodyBytes          int64  `mapstructure:"max_body_bytes"`
	UserAgent             string `mapstructure:"user_agent"`
}

// PipelineConfig sets the in-flight job cap and the per-stage watchdog
// budgets. A Concurrency of zero resolves to min(2*GOMAXPROCS, 8) at
// startup.
type PipelineConfig struct {
	Concurrency            int `mapstructure:"concurrency"`
	ExtractTimeoutSeconds  int `mapstructure:"extract_timeout_seconds"`
	ConvertTimeoutSeconds  int `mapstructure:"convert_timeout_seconds"`
	TokenizeTimeoutSeconds int `mapstructure:"tokenize_timeout_seconds"`
	WriteTimeoutSeconds    int `mapstructure:"write_timeout_seconds"`
}

// ConvertConfig governs markdown conversion.
type ConvertConfig struct {
	MaxLinks int `mapstructure:"max_links"`
}

// OutputConfig sets where documents and export artifacts land.
type OutputConfig struct {
	Dir              string `mapstructure:"dir"`
	ExportFilename   string `mapstructure:"export_filename"`
	ManifestFilename string `mapstructure:"manifest_filename"`
}

// SessionConfig controls reducer behavior.
type SessionConfig struct {
	AllowRestart   bool `mapstructure:"allow_restart"`
	RenderTickerMs int  `mapstructure:"render_ticker_ms"`
}

// SnapshotConfig selects the completed-job snapshot backend.
type SnapshotConfig struct {
	Provider string         `mapstructure:"provider"`
	Path     string         `mapstructure:"path"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// PostgresConfig holds connection parameters for the postgres snapshot store.
type PostgresConfig struct {
	DSN   string `mapstructure:"dsn"`
	Table string `mapstructure:"table"`
}

// ArchiveConfig selects the artifact archive backend.
type ArchiveConfig struct {
	Provider string `mapstructure:"provider"`
	BaseDir  string `mapstructure:"base_dir"`
	Bucket   string `mapstructure:"bucket"`
}

// PublisherConfig holds metadata for publish-subscribe notifications.
type PublisherConfig struct {
	Provider  string `mapstructure:"provider"`
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment. Environment variables use the
// HARVESTER_ prefix with dots replaced by underscores, for example
// HARVESTER_SERVER_PORT.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("HARVESTER")
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
	v.SetDefault("server.timeout_seconds", 60)
	v.SetDefault("intake.queue_capacity", 256)
	v.SetDefault("intake.max_urls_per_submit", 1000)
	v.SetDefault("fetch.connect_timeout_seconds", 10)
	v.SetDefault("fetch.request_timeout_seconds", 30)
	v.SetDefault("fetch.max_redirects", 5)
	v.SetDefault("fetch.max_body_bytes", 5<<20)
	v.SetDefault("fetch.user_agent", "harvester/1.0")
	v.SetDefault("pipeline.concurrency", 0)
	v.SetDefault("pipeline.extract_timeout_seconds", 30)
	v.SetDefault("pipeline.convert_timeout_seconds", 15)
	v.SetDefault("pipeline.tokenize_timeout_seconds", 10)
	v.SetDefault("pipeline.write_timeout_seconds", 10)
	v.SetDefault("convert.max_links", 5000)
	v.SetDefault("output.dir", "data/harvest")
	v.SetDefault("output.export_filename", "export.txt")
	v.SetDefault("output.manifest_filename", "manifest.json")
	v.SetDefault("session.allow_restart", false)
	v.SetDefault("session.render_ticker_ms", 250)
	v.SetDefault("snapshot.provider", "file")
	v.SetDefault("snapshot.path", "data/harvest/snapshot.json")
	v.SetDefault("snapshot.postgres.table", "harvest_snapshots")
	v.SetDefault("archive.provider", "noop")
	v.SetDefault("publisher.provider", "noop")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Intake.QueueCapacity <= 0 {
		return fmt.Errorf("intake.queue_capacity must be > 0")
	}
	if c.Pipeline.Concurrency < 0 {
		return fmt.Errorf("pipeline.concurrency must be >= 0")
	}
	if c.Fetch.RequestTimeoutSeconds <= 0 {
		return fmt.Errorf("fetch.request_timeout_seconds must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	switch c.Snapshot.Provider {
	case "file", "memory", "noop":
	case "postgres":
		if c.Snapshot.Postgres.DSN == "" {
			return fmt.Errorf("snapshot.postgres.dsn must be set when snapshot provider is postgres")
		}
	default:
		return fmt.Errorf("unknown snapshot provider: %s", c.Snapshot.Provider)
	}
	switch c.Archive.Provider {
	case "noop", "memory":
	case "local":
		if c.Archive.BaseDir == "" {
			return fmt.Errorf("archive.base_dir must be set when archive provider is local")
		}
	case "gcs":
		if c.Archive.Bucket == "" {
			return fmt.Errorf("archive.bucket must be set when archive provider is gcs")
		}
	default:
		return fmt.Errorf("unknown archive provider: %s", c.Archive.Provider)
	}
	switch c.Publisher.Provider {
	case "noop", "memory":
	case "pubsub":
		if c.Publisher.ProjectID == "" || c.Publisher.Topic == "" {
			return fmt.Errorf("publisher.project_id and publisher.topic must be set when publisher provider is pubsub")
		}
	default:
		return fmt.Errorf("unknown publisher provider: %s", c.Publisher.Provider)
	}
	return nil
}

// Concurrency resolves the cap on simultaneously executing jobs. Zero means
// auto-size to twice GOMAXPROCS, capped at eight, which suits the
// fetch-bound workload.
func (c Config) Concurrency() int {
	if c.Pipeline.Concurrency > 0 {
		return c.Pipeline.Concurrency
	}
	n := 2 * runtime.GOMAXPROCS(0)
	if n > 8 {
		n = 8
	}
	return n
}

// RequestTimeout converts the fetch timeout into a duration.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Fetch.RequestTimeoutSeconds) * time.Second
}

// RenderTick converts the render cadence into a duration.
func (c Config) RenderTick() time.Duration {
	return time.Duration(c.Session.RenderTickerMs) * time.Millisecond
}
