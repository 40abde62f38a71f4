package config

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-attachment/pkg/simpleattachment"
	"github.com/tendant/simple-attachment/pkg/simpleattachment/admin"
	"github.com/tendant/simple-attachment/pkg/simpleattachment/reconcile"
	fsstorage "github.com/tendant/simple-attachment/pkg/simpleattachment/storage/fs"
	"github.com/tendant/simple-attachment/pkg/simpleattachment/storage/retry"
	s3storage "github.com/tendant/simple-attachment/pkg/simpleattachment/storage/s3"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.DatabaseType)
	assert.Equal(t, "memory", cfg.Storage.Type)
	assert.Equal(t, "attachments", cfg.UploadPrefix)
	assert.Equal(t, 1, cfg.ReconcileConcurrency)
	assert.Equal(t, 3, cfg.Retry.MaxRetries)
	assert.Equal(t, DefaultReconcileMinAge, cfg.ReconcileMinAge)
	assert.False(t, cfg.AllowEphemeralReconcile)
	assert.False(t, cfg.EphemeralMetadata())
}

func TestEphemeralMetadata(t *testing.T) {
	fsCfg, err := Load(WithFilesystemStorage(t.TempDir()))
	require.NoError(t, err)
	assert.True(t, fsCfg.EphemeralMetadata())

	pgCfg, err := Load(WithDatabase("postgres", "postgres://x"), WithFilesystemStorage(t.TempDir()))
	require.NoError(t, err)
	assert.False(t, pgCfg.EphemeralMetadata())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		opts []Option
	}{
		{"postgres without url", []Option{func(c *Config) error { c.DatabaseType = "postgres"; return nil }}},
		{"unknown database", []Option{func(c *Config) error { c.DatabaseType = "mongo"; return nil }}},
		{"fs without base dir", []Option{func(c *Config) error { c.Storage.Type = "fs"; return nil }}},
		{"s3 without bucket", []Option{func(c *Config) error { c.Storage.Type = "s3"; return nil }}},
		{"zero concurrency", []Option{WithReconcile(0, 0)}},
		{"negative min age", []Option{WithReconcile(1, -time.Second)}},
		{"negative retries", []Option{WithRetry(-1, 0)}},
		{"path source on memory", []Option{WithPathSource("portfolio", "portfolio_item", "image_path")}},
		{"owner on memory", []Option{WithOwnerTable("user", "users", "id")}},
		{"unknown owner type", []Option{WithDatabase("postgres", "postgres://x"), WithOwnerTable("planet", "planets", "id")}},
		{"duplicate owner type", []Option{WithDatabase("postgres", "postgres://x"), WithOwnerTable("user", "users", "id"), WithOwnerTable("user", "people", "id")}},
		{"path source without column", []Option{WithDatabase("postgres", "postgres://x"), WithPathSource("p", "portfolio_item", "")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.opts...)
			assert.Error(t, err)
		})
	}
}

func TestWithFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "attachments.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database_type: postgres
database_url: postgres://app@localhost/portal
db_schema: portal
storage:
  type: fs
  base_dir: /srv/media
retry:
  max_retries: 5
  base_delay: 250ms
reconcile_concurrency: 8
reconcile_min_age: 1h
path_sources:
  - name: portfolio
    table: portfolio_item
    column: image_path
owners:
  - type: user
    table: users
    id_column: id
`), 0644))

	cfg, err := Load(WithFile(path))
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.DatabaseType)
	assert.Equal(t, "portal", cfg.DBSchema)
	assert.Equal(t, "fs", cfg.Storage.Type)
	assert.Equal(t, "/srv/media", cfg.Storage.BaseDir)
	assert.Equal(t, RetryConfig{MaxRetries: 5, BaseDelay: 250 * time.Millisecond}, cfg.Retry)
	assert.Equal(t, 8, cfg.ReconcileConcurrency)
	assert.Equal(t, time.Hour, cfg.ReconcileMinAge)
	assert.Equal(t, []PathSourceConfig{{Name: "portfolio", Table: "portfolio_item", Column: "image_path"}}, cfg.PathSources)
	assert.Equal(t, []OwnerConfig{{Type: "user", Table: "users", IDColumn: "id"}}, cfg.Owners)
	// Untouched keys keep defaults
	assert.Equal(t, "attachments", cfg.UploadPrefix)
}

func TestWithFile_EnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.yaml")
	require.NoError(t, os.WriteFile(path, []byte("reconcile_concurrency: 2\n"), 0644))
	t.Setenv("RECONCILE_CONCURRENCY", "6")

	cfg, err := Load(WithFile(path), WithEnv(""))
	require.NoError(t, err)
	assert.Equal(t, 6, cfg.ReconcileConcurrency)
}

func TestWithFile_Errors(t *testing.T) {
	_, err := Load(WithFile(filepath.Join(t.TempDir(), "missing.yaml")))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("no_such_key: 1\n"), 0644))
	_, err = Load(WithFile(path))
	assert.Error(t, err)

	empty := filepath.Join(t.TempDir(), "empty.yaml")
	require.NoError(t, os.WriteFile(empty, nil, 0644))
	_, err = Load(WithFile(empty))
	assert.NoError(t, err)
}

func TestBuildBlobStore(t *testing.T) {
	t.Run("fs with retries", func(t *testing.T) {
		cfg, err := Load(WithFilesystemStorage(t.TempDir()))
		require.NoError(t, err)

		store, err := cfg.BuildBlobStore()
		require.NoError(t, err)
		wrapped, ok := store.(*retry.Store)
		require.True(t, ok)
		assert.IsType(t, &fsstorage.Backend{}, wrapped.Unwrap())
	})

	t.Run("s3 without retries", func(t *testing.T) {
		cfg, err := Load(WithRetry(0, 0), func(c *Config) error {
			c.Storage = StorageConfig{Type: "s3", Bucket: "media", AccessKeyID: "k", SecretAccessKey: "s"}
			return nil
		})
		require.NoError(t, err)

		store, err := cfg.BuildBlobStore()
		require.NoError(t, err)
		assert.IsType(t, &s3storage.Backend{}, store)
	})
}

func TestBuild_InMemoryRecordsRefuseDeletingReconcile(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(WithFilesystemStorage(dir), WithReconcile(1, 0))
	require.NoError(t, err)

	comps, err := cfg.Build(context.Background(), nil)
	require.NoError(t, err)
	defer comps.Close()

	ctx := context.Background()
	a, err := comps.Service.Create(ctx, simpleattachment.CreateAttachmentRequest{
		OriginalName: "cv.pdf",
		Reader:       bytes.NewReader([]byte("%PDF")),
	})
	require.NoError(t, err)

	// a second process sees no records for the same storage root
	other, err := cfg.Build(ctx, nil)
	require.NoError(t, err)
	defer other.Close()

	_, err = other.Reconciler.Run(ctx, reconcile.RunOptions{})
	assert.ErrorIs(t, err, simpleattachment.ErrReconcileUnsafe)

	exists, err := other.BlobStore.Exists(ctx, a.StoredPath)
	require.NoError(t, err)
	assert.True(t, exists)

	preview, err := other.Reconciler.Run(ctx, reconcile.RunOptions{DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, 0, preview.DeletedCount)
}

func TestBuild_MemoryEndToEnd(t *testing.T) {
	cfg, err := Load(WithFilesystemStorage(t.TempDir()), WithReconcile(2, 0), func(c *Config) error {
		c.AllowEphemeralReconcile = true
		return nil
	})
	require.NoError(t, err)

	comps, err := cfg.Build(context.Background(), nil)
	require.NoError(t, err)
	defer comps.Close()

	ctx := context.Background()
	a, err := comps.Service.Create(ctx, simpleattachment.CreateAttachmentRequest{
		AttachmentType: "resume",
		OriginalName:   "cv.pdf",
		Owner:          &simpleattachment.OwnerRef{Type: simpleattachment.OwnerTypeUser, ID: "1"},
		Reader:         bytes.NewReader([]byte("%PDF-1.4")),
	})
	require.NoError(t, err)
	assert.Regexp(t, `^attachments/cv__\d{4}-\d{2}-\d{2}-\d{2}-\d{2}-\d{2}\.pdf$`, a.StoredPath)

	_, err = comps.BlobStore.Write(ctx, "attachments/stray.tmp", bytes.NewReader([]byte("x")))
	require.NoError(t, err)

	report, err := comps.Reconciler.Run(ctx, reconcile.RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"attachments/stray.tmp"}, report.Orphans())
	assert.Equal(t, 1, report.DeletedCount)

	stats, err := comps.Admin.GetStatistics(ctx, admin.StatisticsRequest{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Statistics.TotalCount)
}
