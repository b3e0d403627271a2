package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/receipts-backend/internal/artifacts"
	"github.com/angelmondragon/receipts-backend/internal/dispatch"
	"github.com/angelmondragon/receipts-backend/internal/events"
	"github.com/angelmondragon/receipts-backend/internal/orders"
	"github.com/angelmondragon/receipts-backend/internal/pdf"
	"github.com/angelmondragon/receipts-backend/internal/pipeline"
	"github.com/angelmondragon/receipts-backend/internal/receipts"
	"github.com/angelmondragon/receipts-backend/pkg/config"
	"github.com/angelmondragon/receipts-backend/pkg/db"
	"github.com/angelmondragon/receipts-backend/pkg/logger"
	"github.com/angelmondragon/receipts-backend/pkg/mail"
	"github.com/angelmondragon/receipts-backend/pkg/metrics"
	"github.com/angelmondragon/receipts-backend/pkg/migrate"
	"github.com/angelmondragon/receipts-backend/pkg/storage/gcs"
	"github.com/angelmondragon/receipts-backend/pkg/storage/local"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	store, cleanup, err := buildArtifactStore(context.Background(), cfg, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap artifact storage", err)
		os.Exit(1)
	}
	defer cleanup()

	eventsRepo := events.NewRepository(dbClient.DB())

	pipelineParams := pipeline.Params{
		Events:        eventsRepo,
		Orders:        orders.NewRepository(dbClient.DB()),
		Receipts:      receipts.NewRepository(dbClient.DB()),
		Store:         store,
		Renderer:      pdf.NewRenderer(cfg.Store),
		Tokens:        receipts.NewTokenIssuer(cfg.Download.Secret),
		PublicBaseURL: cfg.App.ResolvePublicBaseURL(),
		TokenTTL:      cfg.Download.TTL,
		Logger:        logg,
	}
	if cfg.Mail.Configured() {
		mailClient, err := mail.NewClient(cfg.Mail, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap mail client", err)
			os.Exit(1)
		}
		pipelineParams.Mailer = mailClient
	} else {
		logg.Warn(context.Background(), "mail is not configured, receipt emails stay pending")
	}

	pipe, err := pipeline.New(pipelineParams)
	if err != nil {
		logg.Error(context.Background(), "failed to create receipt pipeline", err)
		os.Exit(1)
	}

	worker, err := dispatch.NewWorker(dispatch.WorkerParams{
		Config:    cfg.Dispatch,
		Repo:      dispatch.NewRepository(dbClient.DB()),
		Processor: pipe,
		Events:    eventsRepo,
		Metrics:   metrics.NewJobMetrics(prometheus.DefaultRegisterer),
		Logger:    logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create dispatch worker", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"concurrency": cfg.Dispatch.Concurrency,
	})
	logg.Info(ctx, "starting receipt worker")

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "receipt worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "receipt worker shutting down gracefully")
}

// buildArtifactStore selects cloud storage when a bucket is configured and
// falls back to the on-disk store otherwise.
func buildArtifactStore(ctx context.Context, cfg *config.Config, logg *logger.Logger) (artifacts.Store, func(), error) {
	if cfg.GCS.Configured() {
		gcsClient, err := gcs.NewClient(ctx, cfg.GCS, cfg.GCP, logg)
		if err != nil {
			return nil, nil, err
		}
		store, err := artifacts.NewCloudStore(gcsClient)
		if err != nil {
			_ = gcsClient.Close()
			return nil, nil, err
		}
		cleanup := func() {
			if err := gcsClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing gcs client", err)
			}
		}
		return store, cleanup, nil
	}

	logg.Warn(ctx, "gcs bucket not configured, storing receipt pdfs on local disk")
	files, err := local.NewStore(cfg.FeatureFlags.LocalPDFRoot)
	if err != nil {
		return nil, nil, err
	}
	store, err := artifacts.NewLocalStore(files)
	if err != nil {
		return nil, nil, err
	}
	return store, func() {}, nil
}
