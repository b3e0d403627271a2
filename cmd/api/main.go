package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/receipts-backend/api/controllers"
	"github.com/angelmondragon/receipts-backend/api/routes"
	"github.com/angelmondragon/receipts-backend/internal/artifacts"
	"github.com/angelmondragon/receipts-backend/internal/dispatch"
	"github.com/angelmondragon/receipts-backend/internal/events"
	"github.com/angelmondragon/receipts-backend/internal/orders"
	"github.com/angelmondragon/receipts-backend/internal/pdf"
	"github.com/angelmondragon/receipts-backend/internal/pipeline"
	"github.com/angelmondragon/receipts-backend/internal/receipts"
	"github.com/angelmondragon/receipts-backend/internal/sender"
	"github.com/angelmondragon/receipts-backend/internal/signature"
	"github.com/angelmondragon/receipts-backend/internal/webhooks"
	"github.com/angelmondragon/receipts-backend/pkg/config"
	"github.com/angelmondragon/receipts-backend/pkg/db"
	"github.com/angelmondragon/receipts-backend/pkg/logger"
	"github.com/angelmondragon/receipts-backend/pkg/mail"
	"github.com/angelmondragon/receipts-backend/pkg/migrate"
	"github.com/angelmondragon/receipts-backend/pkg/redis"
	"github.com/angelmondragon/receipts-backend/pkg/storage/gcs"
	"github.com/angelmondragon/receipts-backend/pkg/storage/local"
)

const shutdownGrace = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	if cfg.Admin.AllowUnauthenticated {
		logg.Warn(context.Background(), "RECEIPTS_ALLOW_UNAUTHENTICATED_ADMIN is on, admin endpoints are open to everyone")
	}

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

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	store, cleanup, err := buildArtifactStore(context.Background(), cfg, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap artifact storage", err)
		os.Exit(1)
	}
	defer cleanup()

	eventsRepo := events.NewRepository(dbClient.DB())
	ordersRepo := orders.NewRepository(dbClient.DB())
	receiptsRepo := receipts.NewRepository(dbClient.DB())
	jobsRepo := dispatch.NewRepository(dbClient.DB())

	tokens := receipts.NewTokenIssuer(cfg.Download.Secret)

	pipelineParams := pipeline.Params{
		Events:        eventsRepo,
		Orders:        ordersRepo,
		Receipts:      receiptsRepo,
		Store:         store,
		Renderer:      pdf.NewRenderer(cfg.Store),
		Tokens:        tokens,
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

	dispatcher := dispatch.NewDispatcher(jobsRepo, redisClient, cfg.Dispatch.DedupTTL, logg)

	tolerance := time.Duration(cfg.Webhook.ToleranceSec) * time.Second
	webhookService, err := webhooks.NewService(webhooks.ServiceParams{
		Verifier:   signature.NewVerifier(cfg.Webhook.Secret, tolerance),
		Events:     eventsRepo,
		Dispatcher: dispatcher,
		Logger:     logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook service", err)
		os.Exit(1)
	}

	receiptService, err := receipts.NewService(receipts.ServiceParams{
		Repo:          receiptsRepo,
		Tokens:        tokens,
		Store:         store,
		PublicBaseURL: cfg.App.ResolvePublicBaseURL(),
		TokenTTL:      cfg.Download.TTL,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create receipt service", err)
		os.Exit(1)
	}

	webhookSender, err := sender.New(sender.Params{
		Events:      eventsRepo,
		Signer:      signature.NewSigner(cfg.Webhook.Secret),
		ReceiverURL: cfg.Webhook.ReceiverURL,
		SendTimeout: cfg.Webhook.SendTimeout,
		Logger:      logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook sender", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Deps{
			Config:   cfg,
			Logger:   logg,
			Webhooks: webhookService,
			Receipts: receiptService,
			Orders:   ordersRepo,
			Pipeline: pipe,
			Sender:   webhookSender,
			HealthChecks: map[string]controllers.Pinger{
				"database": dbClient,
				"redis":    redisClient,
			},
		}),
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "error during server shutdown", err)
		}
		logg.Info(ctx, "api server shutting down gracefully")
	}
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
