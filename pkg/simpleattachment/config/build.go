package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/simple-attachment/pkg/simpleattachment"
	"github.com/tendant/simple-attachment/pkg/simpleattachment/admin"
	"github.com/tendant/simple-attachment/pkg/simpleattachment/naming"
	"github.com/tendant/simple-attachment/pkg/simpleattachment/reconcile"
	"github.com/tendant/simple-attachment/pkg/simpleattachment/repo/memory"
	repopg "github.com/tendant/simple-attachment/pkg/simpleattachment/repo/postgres"
	fsstorage "github.com/tendant/simple-attachment/pkg/simpleattachment/storage/fs"
	memorystorage "github.com/tendant/simple-attachment/pkg/simpleattachment/storage/memory"
	"github.com/tendant/simple-attachment/pkg/simpleattachment/storage/retry"
	s3storage "github.com/tendant/simple-attachment/pkg/simpleattachment/storage/s3"
)

// Components is the wired object graph built from a Config
type Components struct {
	Repository simpleattachment.Repository
	BlobStore  simpleattachment.BlobStore
	Service    simpleattachment.Service
	Owners     *simpleattachment.OwnerRegistry
	Reconciler *reconcile.Reconciler
	Admin      admin.AdminService

	pool *pgxpool.Pool
}

// Close releases the database pool, if any
func (c *Components) Close() {
	if c.pool != nil {
		c.pool.Close()
	}
}

// Build wires repository, storage, service, owner registry and reconciler.
// A single pgx pool is shared by everything that needs the database.
func (c *Config) Build(ctx context.Context, logger *slog.Logger) (*Components, error) {
	if logger == nil {
		logger = slog.Default()
	}
	comps := &Components{}

	if c.DatabaseType == "postgres" {
		pool, err := c.OpenPool(ctx)
		if err != nil {
			return nil, err
		}
		comps.pool = pool
	}

	var err error
	if comps.Repository, err = c.BuildRepository(comps.pool); err != nil {
		comps.Close()
		return nil, fmt.Errorf("failed to build repository: %w", err)
	}
	if comps.BlobStore, err = c.BuildBlobStore(); err != nil {
		comps.Close()
		return nil, fmt.Errorf("failed to build blob store: %w", err)
	}
	if comps.Service, err = c.BuildService(comps.Repository, comps.BlobStore, logger); err != nil {
		comps.Close()
		return nil, err
	}
	if comps.Owners, err = c.BuildOwnerRegistry(comps.pool); err != nil {
		comps.Close()
		return nil, err
	}
	if comps.Reconciler, err = c.BuildReconciler(comps.pool, comps.Repository, comps.BlobStore, logger); err != nil {
		comps.Close()
		return nil, err
	}
	comps.Admin = admin.New(comps.Repository, comps.Owners)

	return comps, nil
}

// OpenPool connects to Postgres, setting search_path when a schema is configured
func (c *Config) OpenPool(ctx context.Context) (*pgxpool.Pool, error) {
	if c.DatabaseURL == "" {
		return nil, errors.New("database_url is required for postgres")
	}
	cfg, err := pgxpool.ParseConfig(c.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
	}
	if schema := c.DBSchema; schema != "" {
		cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			_, err := conn.Exec(ctx, "SET search_path TO "+pgx.Identifier{schema}.Sanitize())
			return err
		}
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pgx pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}
	return pool, nil
}

// BuildRepository creates a Repository based on the configuration
func (c *Config) BuildRepository(pool *pgxpool.Pool) (simpleattachment.Repository, error) {
	switch c.DatabaseType {
	case "memory":
		return memory.New(), nil
	case "postgres":
		if pool == nil {
			return nil, errors.New("postgres repository requires a connection pool")
		}
		return repopg.NewWithPool(pool), nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s", c.DatabaseType)
	}
}

// BuildBlobStore creates the configured backend, wrapped with retries when
// MaxRetries is positive
func (c *Config) BuildBlobStore() (simpleattachment.BlobStore, error) {
	var store simpleattachment.BlobStore
	switch c.Storage.Type {
	case "memory":
		store = memorystorage.New()
	case "fs":
		backend, err := fsstorage.New(fsstorage.Config{BaseDir: c.Storage.BaseDir})
		if err != nil {
			return nil, err
		}
		store = backend
	case "s3":
		backend, err := s3storage.New(s3storage.Config{
			Region:                 c.Storage.Region,
			Bucket:                 c.Storage.Bucket,
			Prefix:                 c.Storage.Prefix,
			AccessKeyID:            c.Storage.AccessKeyID,
			SecretAccessKey:        c.Storage.SecretAccessKey,
			Endpoint:               c.Storage.Endpoint,
			UsePathStyle:           c.Storage.UsePathStyle,
			EnableSSE:              c.Storage.EnableSSE,
			SSEAlgorithm:           c.Storage.SSEAlgorithm,
			SSEKMSKeyID:            c.Storage.SSEKMSKeyID,
			CreateBucketIfNotExist: c.Storage.CreateBucketIfNotExist,
		})
		if err != nil {
			return nil, err
		}
		store = backend
	default:
		return nil, fmt.Errorf("unsupported storage backend type: %s", c.Storage.Type)
	}

	if c.Retry.MaxRetries > 0 {
		store = retry.Wrap(store, retry.Config{
			MaxRetries: uint64(c.Retry.MaxRetries),
			BaseDelay:  c.Retry.BaseDelay,
		})
	}
	return store, nil
}

// BuildService creates a Service over the given repository and store
func (c *Config) BuildService(repo simpleattachment.Repository, store simpleattachment.BlobStore, logger *slog.Logger) (simpleattachment.Service, error) {
	options := []simpleattachment.Option{
		simpleattachment.WithRepository(repo),
		simpleattachment.WithBlobStore(store),
		simpleattachment.WithNameGenerator(naming.NewTimestampGenerator(c.UploadPrefix)),
		simpleattachment.WithLogger(logger),
	}
	if c.EnableEventLogging {
		options = append(options, simpleattachment.WithEventSink(simpleattachment.NewLoggingEventSink(logger)))
	}
	return simpleattachment.New(options...)
}

// BuildOwnerRegistry registers a table lookup per configured owner kind
func (c *Config) BuildOwnerRegistry(pool *pgxpool.Pool) (*simpleattachment.OwnerRegistry, error) {
	registry := simpleattachment.NewOwnerRegistry()
	for _, o := range c.Owners {
		if pool == nil {
			return nil, errors.New("owner lookups require a postgres database")
		}
		t, err := simpleattachment.ParseOwnerType(o.Type)
		if err != nil {
			return nil, err
		}
		idColumn := o.IDColumn
		if idColumn == "" {
			idColumn = "id"
		}
		lookup, err := repopg.NewTableOwnerLookup(pool, o.Table, idColumn)
		if err != nil {
			return nil, fmt.Errorf("owner %s: %w", o.Type, err)
		}
		if err := registry.Register(t, lookup); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

// BuildReconciler creates a Reconciler whose referenced set is the attachment
// table plus every configured path source
func (c *Config) BuildReconciler(pool *pgxpool.Pool, repo simpleattachment.Repository, store simpleattachment.BlobStore, logger *slog.Logger) (*reconcile.Reconciler, error) {
	sources := []simpleattachment.PathSource{simpleattachment.NewRepositoryPathSource(repo)}
	for _, s := range c.PathSources {
		if pool == nil {
			return nil, errors.New("path sources require a postgres database")
		}
		src, err := repopg.NewColumnSource(pool, s.Name, s.Table, s.Column)
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	if logger == nil {
		logger = slog.Default()
	}
	options := []reconcile.Option{
		reconcile.WithLogger(logger),
		reconcile.WithConcurrency(c.ReconcileConcurrency),
	}
	if c.EphemeralMetadata() && !c.AllowEphemeralReconcile {
		options = append(options, reconcile.WithDryRunOnly(fmt.Sprintf(
			"attachment records are kept in memory but %s storage is persistent; use a postgres database or set allow_ephemeral_reconcile",
			c.Storage.Type)))
	}
	return reconcile.New(store, sources, options...)
}
