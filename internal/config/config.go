package config

import (
	"fmt"
	"os"
	"time"

	"github.com/FairForge/reclaimer/internal/database"
	"github.com/FairForge/reclaimer/internal/logging"
	"gopkg.in/yaml.v3"
)

// Store modes
const (
	StoreLocal = "local"
	StoreS3    = "s3"
)

type Config struct {
	Log      logging.Config  `yaml:"log"`
	Store    StoreConfig     `yaml:"store"`
	Database database.Config `yaml:"database"`
	Engine   EngineConfig    `yaml:"engine"`
	Advisory AdvisoryConfig  `yaml:"advisory"`
	Policies PoliciesConfig  `yaml:"policies"`
	Schedule ScheduleConfig  `yaml:"schedule"`
	Metrics  MetricsConfig   `yaml:"metrics"`
}

type StoreConfig struct {
	Mode  string      `yaml:"mode" default:"local"`
	Local LocalConfig `yaml:"local"`
	S3    S3Config    `yaml:"s3"`

	// RetryAttempts bounds attempts per store call, the first included.
	// The default of 1 never retries.
	RetryAttempts int `yaml:"retry_attempts" default:"1"`
}

type LocalConfig struct {
	Path string `yaml:"path" default:"/var/lib/reclaimer"`
}

type S3Config struct {
	Endpoint     string `yaml:"endpoint"`
	Region       string `yaml:"region" default:"us-east-1"`
	Bucket       string `yaml:"bucket"`
	AccessKey    string `yaml:"access_key"`
	SecretKey    string `yaml:"secret_key"`
	PathStyle    bool   `yaml:"path_style"`
	ArchiveClass string `yaml:"archive_class" default:"GLACIER_IR"`
}

type EngineConfig struct {
	Workers    int           `yaml:"workers" default:"8"`
	ProtectTTL time.Duration `yaml:"protect_ttl" default:"168h"`

	// DefaultRetentionDays applies to formats no policy names
	DefaultRetentionDays int `yaml:"default_retention_days" default:"90"`

	Codec      string `yaml:"codec" default:"zstd"` // zstd | snappy
	CodecLevel int    `yaml:"codec_level"`
}

type AdvisoryConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Endpoint      string        `yaml:"endpoint"`
	APIKey        string        `yaml:"api_key"`
	Model         string        `yaml:"model"`
	MaxTokens     int           `yaml:"max_tokens"`
	Timeout       time.Duration `yaml:"timeout" default:"20s"`
	RatePerSecond float64       `yaml:"rate_per_second"`
	Burst         int           `yaml:"burst"`
	Threshold     float64       `yaml:"threshold" default:"0.8"`
	BatchInsights bool          `yaml:"batch_insights"`
}

type PoliciesConfig struct {
	// File is a YAML policy file. Without it policies come from the
	// database, or the default policy alone applies.
	File string `yaml:"file"`
}

// ScheduleConfig drives the serve command's cron runs. Like the run
// command, scheduled runs are dry unless dry_run is set to false.
type ScheduleConfig struct {
	Cron   string   `yaml:"cron"`
	Scopes []string `yaml:"scopes"`
	DryRun *bool    `yaml:"dry_run" default:"true"`
}

// IsDryRun reports whether scheduled runs leave the store untouched
func (s ScheduleConfig) IsDryRun() bool {
	return s.DryRun == nil || *s.DryRun
}

type MetricsConfig struct {
	Listen string `yaml:"listen" default:":9090"`
}

// Load reads a YAML file (optional), applies environment overrides and
// defaults, and validates the result.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	LoadFromEnv(cfg)
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// ApplyDefaults fills in default values
func (c *Config) ApplyDefaults() {
	c.Log.ApplyDefaults()

	if c.Store.Mode == "" {
		c.Store.Mode = StoreLocal
	}
	if c.Store.Local.Path == "" {
		c.Store.Local.Path = "/var/lib/reclaimer"
	}
	if c.Store.S3.Region == "" {
		c.Store.S3.Region = "us-east-1"
	}
	if c.Store.S3.ArchiveClass == "" {
		c.Store.S3.ArchiveClass = "GLACIER_IR"
	}
	if c.Store.RetryAttempts <= 0 {
		c.Store.RetryAttempts = 1
	}

	if c.Engine.Workers <= 0 {
		c.Engine.Workers = 8
	}
	if c.Engine.ProtectTTL <= 0 {
		c.Engine.ProtectTTL = 7 * 24 * time.Hour
	}
	if c.Engine.DefaultRetentionDays <= 0 {
		c.Engine.DefaultRetentionDays = 90
	}
	if c.Engine.Codec == "" {
		c.Engine.Codec = "zstd"
	}

	if c.Advisory.Timeout <= 0 {
		c.Advisory.Timeout = 20 * time.Second
	}
	if c.Advisory.Threshold <= 0 {
		c.Advisory.Threshold = 0.8
	}

	if c.Schedule.DryRun == nil {
		dryRun := true
		c.Schedule.DryRun = &dryRun
	}

	if c.Metrics.Listen == "" {
		c.Metrics.Listen = ":9090"
	}
}

// Validate checks the configuration
func (c *Config) Validate() error {
	if err := c.Log.Validate(); err != nil {
		return err
	}

	switch c.Store.Mode {
	case StoreLocal:
		if c.Store.Local.Path == "" {
			return fmt.Errorf("store.local.path is required")
		}
	case StoreS3:
		if c.Store.S3.Bucket == "" {
			return fmt.Errorf("store.s3.bucket is required")
		}
		if (c.Store.S3.AccessKey == "") != (c.Store.S3.SecretKey == "") {
			return fmt.Errorf("store.s3 access_key and secret_key must be set together")
		}
	default:
		return fmt.Errorf("invalid store.mode: %q", c.Store.Mode)
	}

	switch c.Engine.Codec {
	case "zstd", "snappy":
	default:
		return fmt.Errorf("invalid engine.codec: %q", c.Engine.Codec)
	}
	if c.Engine.CodecLevel < 0 || c.Engine.CodecLevel > 19 {
		return fmt.Errorf("engine.codec_level must be between 0 and 19")
	}

	if c.Advisory.Enabled && c.Advisory.APIKey == "" {
		return fmt.Errorf("advisory.api_key is required when advisory is enabled")
	}
	if c.Advisory.Threshold > 1 {
		return fmt.Errorf("advisory.threshold must not exceed 1")
	}

	if c.Schedule.Cron != "" && len(c.Schedule.Scopes) == 0 {
		return fmt.Errorf("schedule.scopes is required with schedule.cron")
	}

	return nil
}
