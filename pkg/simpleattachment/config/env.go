package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// WithEnv applies environment variable overrides using the provided prefix.
//
// Database:
//
//	DATABASE_URL - "memory" (default) or "postgres://..." / "postgresql://..."
//	DB_SCHEMA    - Postgres search_path
//
// Storage:
//
//	STORAGE_URL - one of:
//	              "memory://" (default)
//	              "file:///path/to/data"
//	              "s3://bucket?region=us-east-1&endpoint=http://localhost:9000&prefix=uploads&path_style=true"
//	AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY, AWS_REGION are read unprefixed.
//
// Job:
//
//	RECONCILE_CONCURRENCY     - parallel deletes (default 1)
//	RECONCILE_MIN_AGE         - skip orphans younger than this, e.g. "1h" (default 10m)
//	RECONCILE_ALLOW_EPHEMERAL - allow deleting runs with an in-memory database
//	STORAGE_RETRIES           - retries for transient storage errors (default 3)
//	UPLOAD_PREFIX             - directory new uploads are written under
//	EVENT_LOGGING             - log attachment lifecycle events
func WithEnv(prefix string) Option {
	return func(c *Config) error {
		if err := applyDatabaseEnv(prefix, c); err != nil {
			return err
		}
		if err := applyStorageEnv(prefix, c); err != nil {
			return err
		}

		if v, ok := lookupEnv(prefix, "DB_SCHEMA"); ok {
			c.DBSchema = v
		}
		if v, ok := lookupEnv(prefix, "UPLOAD_PREFIX"); ok && v != "" {
			c.UploadPrefix = v
		}
		if n, ok, err := parseIntEnv(prefix, "RECONCILE_CONCURRENCY"); err != nil {
			return err
		} else if ok {
			c.ReconcileConcurrency = n
		}
		if n, ok, err := parseIntEnv(prefix, "STORAGE_RETRIES"); err != nil {
			return err
		} else if ok {
			c.Retry.MaxRetries = n
		}
		if d, ok, err := parseDurationEnv(prefix, "RECONCILE_MIN_AGE"); err != nil {
			return err
		} else if ok {
			c.ReconcileMinAge = d
		}
		if b, ok, err := parseBoolEnv(prefix, "RECONCILE_ALLOW_EPHEMERAL"); err != nil {
			return err
		} else if ok {
			c.AllowEphemeralReconcile = b
		}
		if b, ok, err := parseBoolEnv(prefix, "EVENT_LOGGING"); err != nil {
			return err
		} else if ok {
			c.EnableEventLogging = b
		}

		return nil
	}
}

// applyDatabaseEnv applies database configuration from environment
func applyDatabaseEnv(prefix string, c *Config) error {
	dbURL, hasURL := lookupEnv(prefix, "DATABASE_URL")
	if !hasURL {
		return nil
	}

	switch {
	case dbURL == "" || dbURL == "memory":
		c.DatabaseType = "memory"
		c.DatabaseURL = ""
	case strings.HasPrefix(dbURL, "postgresql://"), strings.HasPrefix(dbURL, "postgres://"):
		c.DatabaseType = "postgres"
		c.DatabaseURL = dbURL
	default:
		return fmt.Errorf("unsupported DATABASE_URL format: %s (use 'memory' or 'postgresql://...')", dbURL)
	}
	return nil
}

// applyStorageEnv applies storage configuration from environment
func applyStorageEnv(prefix string, c *Config) error {
	storageURL, hasURL := lookupEnv(prefix, "STORAGE_URL")
	if !hasURL {
		return nil
	}

	switch {
	case storageURL == "" || storageURL == "memory" || storageURL == "memory://":
		c.Storage.Type = "memory"
		return nil
	case strings.HasPrefix(storageURL, "file://"):
		path := strings.TrimPrefix(storageURL, "file://")
		if path == "" {
			return fmt.Errorf("filesystem path cannot be empty in STORAGE_URL")
		}
		c.Storage.Type = "fs"
		c.Storage.BaseDir = path
		return nil
	case strings.HasPrefix(storageURL, "s3://"):
		return applyS3Storage(storageURL, c)
	}

	return fmt.Errorf("unsupported STORAGE_URL format: %s (use 'memory://', 'file://...', or 's3://...')", storageURL)
}

// applyS3Storage configures S3 storage from URL
// Format: s3://bucket?region=us-east-1&endpoint=http://localhost:9000&prefix=uploads
func applyS3Storage(raw string, c *Config) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid STORAGE_URL: %w", err)
	}
	if u.Host == "" {
		return fmt.Errorf("S3 bucket name cannot be empty in STORAGE_URL")
	}

	c.Storage.Type = "s3"
	c.Storage.Bucket = u.Host
	q := u.Query()
	if v := q.Get("region"); v != "" {
		c.Storage.Region = v
	}
	if v := q.Get("endpoint"); v != "" {
		c.Storage.Endpoint = v
	}
	if v := q.Get("prefix"); v != "" {
		c.Storage.Prefix = v
	} else if p := strings.Trim(u.Path, "/"); p != "" {
		c.Storage.Prefix = p
	}
	if v := q.Get("path_style"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid path_style in STORAGE_URL: %w", err)
		}
		c.Storage.UsePathStyle = b
	}

	if accessKey, ok := os.LookupEnv("AWS_ACCESS_KEY_ID"); ok && accessKey != "" {
		c.Storage.AccessKeyID = accessKey
	}
	if secretKey, ok := os.LookupEnv("AWS_SECRET_ACCESS_KEY"); ok && secretKey != "" {
		c.Storage.SecretAccessKey = secretKey
	}
	if region, ok := os.LookupEnv("AWS_REGION"); ok && region != "" && q.Get("region") == "" {
		c.Storage.Region = region
	}
	return nil
}

func lookupEnv(prefix, key string) (string, bool) {
	return os.LookupEnv(prefix + key)
}

func parseBoolEnv(prefix, key string) (bool, bool, error) {
	raw, ok := lookupEnv(prefix, key)
	if !ok || raw == "" {
		return false, false, nil
	}
	parsed, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false, fmt.Errorf("invalid boolean for %s%s: %w", prefix, key, err)
	}
	return parsed, true, nil
}

func parseIntEnv(prefix, key string) (int, bool, error) {
	raw, ok := lookupEnv(prefix, key)
	if !ok || raw == "" {
		return 0, false, nil
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, fmt.Errorf("invalid integer for %s%s: %w", prefix, key, err)
	}
	return parsed, true, nil
}

func parseDurationEnv(prefix, key string) (time.Duration, bool, error) {
	raw, ok := lookupEnv(prefix, key)
	if !ok || raw == "" {
		return 0, false, nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return 0, false, fmt.Errorf("invalid duration for %s%s: %w", prefix, key, err)
	}
	return parsed, true, nil
}
