// Command server exposes reconciliation and reporting over HTTP for operators.
// Attachment CRUD is left to the host application.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"github.com/tendant/chi-demo/app"
	"github.com/tendant/chi-demo/middleware"
	"github.com/tendant/simple-attachment/pkg/simpleattachment"
	"github.com/tendant/simple-attachment/pkg/simpleattachment/api"
	"github.com/tendant/simple-attachment/pkg/simpleattachment/config"
	"github.com/tendant/simple-attachment/pkg/simpleattachment/reconcile"
)

type Config struct {
	ApiKeySHA256      string        `env:"API_KEY_SHA256" env-default:"1"`
	ConfigFile        string        `env:"ATTACHMENT_CONFIG_FILE"`
	EnvPrefix         string        `env:"ATTACHMENT_ENV_PREFIX"`
	ReconcileInterval time.Duration `env:"RECONCILE_INTERVAL" env-default:"0s"`
	ReconcileDryRun   bool          `env:"RECONCILE_DRY_RUN" env-default:"true"`
}

func loadAttachmentConfig(cfg Config) (*config.Config, error) {
	var options []config.Option
	if cfg.ConfigFile != "" {
		options = append(options, config.WithFile(cfg.ConfigFile))
	}
	options = append(options, config.WithEnv(cfg.EnvPrefix))
	return config.Load(options...)
}

// checkSchedule rejects a deleting schedule that would reconcile against
// records held only in this process's memory.
func checkSchedule(cfg Config, attachmentCfg *config.Config) error {
	if cfg.ReconcileInterval <= 0 || cfg.ReconcileDryRun {
		return nil
	}
	if attachmentCfg.EphemeralMetadata() && !attachmentCfg.AllowEphemeralReconcile {
		return fmt.Errorf("%w: scheduled reconcile needs a postgres database when storage is %s",
			simpleattachment.ErrReconcileUnsafe, attachmentCfg.Storage.Type)
	}
	return nil
}

// runScheduled reconciles on a fixed interval until ctx is done. Overlapping
// runs are rejected by the reconciler and only logged.
func runScheduled(ctx context.Context, r *reconcile.Reconciler, interval time.Duration, opts reconcile.RunOptions) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report, err := r.Run(ctx, opts)
			if err != nil {
				slog.Error("Scheduled reconcile failed", "err", err)
				continue
			}
			slog.Info("Scheduled reconcile done",
				"dry_run", report.DryRun,
				"orphans", report.OrphanCount,
				"deleted", report.DeletedCount,
				"failed", report.FailedCount)
		}
	}
}

func main() {
	_ = godotenv.Load()

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		slog.Error("Failed to read configuration", "err", err)
		os.Exit(1)
	}

	attachmentCfg, err := loadAttachmentConfig(cfg)
	if err != nil {
		slog.Error("Invalid attachment configuration", "err", err)
		os.Exit(1)
	}

	if err := checkSchedule(cfg, attachmentCfg); err != nil {
		slog.Error("Invalid reconcile schedule", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	comps, err := attachmentCfg.Build(ctx, slog.Default())
	if err != nil {
		slog.Error("Failed to initialize attachment components", "err", err)
		os.Exit(1)
	}
	defer comps.Close()

	if cfg.ReconcileInterval > 0 {
		go runScheduled(ctx, comps.Reconciler, cfg.ReconcileInterval, reconcile.RunOptions{
			DryRun: cfg.ReconcileDryRun,
			MinAge: attachmentCfg.ReconcileMinAge,
		})
	}

	apiKeyMiddleware, err := middleware.ApiKeyMiddleware(middleware.ApiKeyConfig{
		APIKeys: map[string]string{
			"key1": cfg.ApiKeySHA256,
		},
	})
	if err != nil {
		slog.Error("Failed initialize API Key middleware", "err", err)
		os.Exit(1)
	}

	server := app.DefaultApp()
	app.RoutesHealthz(server.R)
	app.RoutesHealthzReady(server.R)

	opsHandler := api.NewOpsHandler(comps.Reconciler, comps.Admin, attachmentCfg.ReconcileMinAge)
	server.R.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(apiKeyMiddleware)
			r.Mount("/ops", opsHandler.Routes())
		})
	})

	server.Run()
}
