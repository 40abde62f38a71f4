package config

import (
	"fmt"
	"time"
)

// WithDatabase configures the database backend
func WithDatabase(dbType, url string) Option {
	return func(c *Config) error {
		if dbType != "memory" && dbType != "postgres" {
			return fmt.Errorf("database type must be 'memory' or 'postgres', got: %s", dbType)
		}
		if dbType == "postgres" && url == "" {
			return fmt.Errorf("database URL is required for postgres")
		}
		c.DatabaseType = dbType
		c.DatabaseURL = url
		return nil
	}
}

// WithFilesystemStorage stores blobs under baseDir
func WithFilesystemStorage(baseDir string) Option {
	return func(c *Config) error {
		if baseDir == "" {
			return fmt.Errorf("base directory cannot be empty")
		}
		c.Storage = StorageConfig{Type: "fs", BaseDir: baseDir}
		return nil
	}
}

// WithMemoryStorage keeps blobs in process memory
func WithMemoryStorage() Option {
	return func(c *Config) error {
		c.Storage = StorageConfig{Type: "memory"}
		return nil
	}
}

// WithReconcile sets the delete parallelism and minimum orphan age
func WithReconcile(concurrency int, minAge time.Duration) Option {
	return func(c *Config) error {
		c.ReconcileConcurrency = concurrency
		c.ReconcileMinAge = minAge
		return nil
	}
}

// WithRetry sets the storage retry policy
func WithRetry(maxRetries int, baseDelay time.Duration) Option {
	return func(c *Config) error {
		c.Retry = RetryConfig{MaxRetries: maxRetries, BaseDelay: baseDelay}
		return nil
	}
}

// WithPathSource adds a table column whose values count as referenced paths
func WithPathSource(name, table, column string) Option {
	return func(c *Config) error {
		c.PathSources = append(c.PathSources, PathSourceConfig{Name: name, Table: table, Column: column})
		return nil
	}
}

// WithOwnerTable registers the table holding an owner kind
func WithOwnerTable(ownerType, table, idColumn string) Option {
	return func(c *Config) error {
		c.Owners = append(c.Owners, OwnerConfig{Type: ownerType, Table: table, IDColumn: idColumn})
		return nil
	}
}
