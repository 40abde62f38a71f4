package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tendant/simple-attachment/pkg/simpleattachment"
)

// Option applies configuration to a Config instance.
type Option func(*Config) error

// Load constructs a Config by applying the supplied options on top of library defaults.
func Load(opts ...Option) (*Config, error) {
	cfg := defaults()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// DefaultReconcileMinAge keeps reconciliation away from blobs whose record
// insert may still be in flight.
const DefaultReconcileMinAge = 10 * time.Minute

func defaults() Config {
	return Config{
		DatabaseType: "memory",
		Storage: StorageConfig{
			Type:         "memory",
			Region:       "us-east-1",
			SSEAlgorithm: "AES256",
		},
		Retry: RetryConfig{
			MaxRetries: 3,
			BaseDelay:  100 * time.Millisecond,
		},
		UploadPrefix:         "attachments",
		ReconcileConcurrency: 1,
		ReconcileMinAge:      DefaultReconcileMinAge,
	}
}

// Config describes how to wire the attachment store and the reconciliation job
type Config struct {
	// Database configuration
	DatabaseType string `yaml:"database_type"` // "memory", "postgres"
	DatabaseURL  string `yaml:"database_url"`
	DBSchema     string `yaml:"db_schema"` // Postgres search_path, empty keeps the server default

	Storage StorageConfig `yaml:"storage"`
	Retry   RetryConfig   `yaml:"retry"`

	// UploadPrefix is the directory new blobs are written under
	UploadPrefix string `yaml:"upload_prefix"`

	ReconcileConcurrency int           `yaml:"reconcile_concurrency"`
	ReconcileMinAge      time.Duration `yaml:"reconcile_min_age"`

	// AllowEphemeralReconcile permits deleting runs while records live in
	// memory and blobs in persistent storage. Only safe when the same process
	// wrote every record.
	AllowEphemeralReconcile bool `yaml:"allow_ephemeral_reconcile"`

	// PathSources are extra tables whose columns hold blob paths
	PathSources []PathSourceConfig `yaml:"path_sources"`

	// Owners maps owner kinds to the table that holds them
	Owners []OwnerConfig `yaml:"owners"`

	EnableEventLogging bool `yaml:"enable_event_logging"`
}

// StorageConfig selects and configures the blob backend
type StorageConfig struct {
	Type    string `yaml:"type"` // "memory", "fs", "s3"
	BaseDir string `yaml:"base_dir"`

	Bucket                 string `yaml:"bucket"`
	Region                 string `yaml:"region"`
	Prefix                 string `yaml:"prefix"`
	Endpoint               string `yaml:"endpoint"`
	UsePathStyle           bool   `yaml:"use_path_style"`
	AccessKeyID            string `yaml:"access_key_id"`
	SecretAccessKey        string `yaml:"secret_access_key"`
	EnableSSE              bool   `yaml:"enable_sse"`
	SSEAlgorithm           string `yaml:"sse_algorithm"`
	SSEKMSKeyID            string `yaml:"sse_kms_key_id"`
	CreateBucketIfNotExist bool   `yaml:"create_bucket_if_not_exist"`
}

// RetryConfig bounds retries of transient storage failures
type RetryConfig struct {
	MaxRetries int           `yaml:"max_retries"`
	BaseDelay  time.Duration `yaml:"base_delay"`
}

// PathSourceConfig names a table column holding blob paths
type PathSourceConfig struct {
	Name   string `yaml:"name"`
	Table  string `yaml:"table"`
	Column string `yaml:"column"`
}

// OwnerConfig names the table an owner kind lives in
type OwnerConfig struct {
	Type     string `yaml:"type"`
	Table    string `yaml:"table"`
	IDColumn string `yaml:"id_column"`
}

// EphemeralMetadata reports whether records vanish with the process while
// blobs outlive it. Deleting reconciliation is refused in that setup unless
// AllowEphemeralReconcile is set.
func (c *Config) EphemeralMetadata() bool {
	return c.DatabaseType == "memory" && c.Storage.Type != "memory"
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.DatabaseType != "memory" && c.DatabaseType != "postgres" {
		return errors.New("database_type must be 'memory' or 'postgres'")
	}
	if c.DatabaseType == "postgres" && c.DatabaseURL == "" {
		return errors.New("database_url is required when using postgres")
	}

	switch c.Storage.Type {
	case "memory":
	case "fs":
		if strings.TrimSpace(c.Storage.BaseDir) == "" {
			return errors.New("storage base_dir is required for fs storage")
		}
	case "s3":
		if c.Storage.Bucket == "" {
			return errors.New("storage bucket is required for s3 storage")
		}
	default:
		return fmt.Errorf("unsupported storage type: %s", c.Storage.Type)
	}

	if c.Retry.MaxRetries < 0 {
		return errors.New("retry max_retries cannot be negative")
	}
	if c.ReconcileConcurrency < 1 {
		return errors.New("reconcile_concurrency must be at least 1")
	}
	if c.ReconcileMinAge < 0 {
		return errors.New("reconcile_min_age cannot be negative")
	}

	if (len(c.PathSources) > 0 || len(c.Owners) > 0) && c.DatabaseType != "postgres" {
		return errors.New("path_sources and owners require a postgres database")
	}
	for i, s := range c.PathSources {
		if s.Table == "" || s.Column == "" {
			return fmt.Errorf("path_sources[%d]: table and column are required", i)
		}
	}
	seen := make(map[simpleattachment.OwnerType]bool)
	for i, o := range c.Owners {
		t, err := simpleattachment.ParseOwnerType(o.Type)
		if err != nil {
			return fmt.Errorf("owners[%d]: %w: %q", i, err, o.Type)
		}
		if seen[t] {
			return fmt.Errorf("owners[%d]: duplicate owner type %q", i, t)
		}
		seen[t] = true
		if o.Table == "" {
			return fmt.Errorf("owners[%d]: table is required", i)
		}
	}

	return nil
}
