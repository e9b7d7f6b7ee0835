package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/reelpostly/repostly/internal/config"
	"github.com/reelpostly/repostly/internal/handler"
	"github.com/reelpostly/repostly/internal/pkg/logger"
	"github.com/reelpostly/repostly/internal/pkg/oauth"
	"github.com/reelpostly/repostly/internal/repository"
	"github.com/reelpostly/repostly/internal/server"
	"github.com/reelpostly/repostly/internal/service"
	"github.com/reelpostly/repostly/internal/storage"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	logger.Init(logger.Options{
		Level:      cfg.Log.Level,
		FilePath:   cfg.Log.FilePath,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	})
	defer logger.Sync()

	db, err := repository.Open(cfg)
	if err != nil {
		logger.Error("open database", zap.Error(err))
		os.Exit(1)
	}

	credentialRepo := repository.NewCredentialRepository(db)
	creditRepo := repository.NewCreditRepository(db)
	webhookRepo := repository.NewWebhookEventRepository(db)
	mediaRepo := repository.NewMediaCacheRepository(db)
	journalRepo := repository.NewJournalRepository(db)

	ctx := context.Background()
	store, err := storage.NewS3Store(ctx, cfg)
	if err != nil {
		logger.Error("init storage", zap.Error(err))
		os.Exit(1)
	}

	journal := service.NewJournalWriter(journalRepo, cfg.Journal.Workers, cfg.Journal.QueueSize)
	credentials := service.NewCredentialService(credentialRepo, oauth.NewClient(cfg.RefreshTimeout()), cfg)
	credits := service.NewCreditService(creditRepo, journal, cfg)
	webhooks := service.NewWebhookService(webhookRepo, creditRepo, credits, cfg)
	sweep := service.NewReconcileSweepService(webhookRepo, webhooks, cfg)
	media, err := service.NewMediaCacheService(mediaRepo, store, cfg)
	if err != nil {
		logger.Error("init media cache", zap.Error(err))
		os.Exit(1)
	}

	if err := sweep.Start(); err != nil {
		logger.Error("start sweep", zap.Error(err))
		os.Exit(1)
	}

	srv := server.New(cfg, credits, server.Handlers{
		Credit:  handler.NewCreditHandler(credits),
		Webhook: handler.NewWebhookHandler(webhooks),
		Media:   handler.NewMediaHandler(media),
		Connect: handler.NewConnectHandler(credentials),
	})

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("host", cfg.Server.Host),
			zap.Int("port", cfg.Server.Port))
		errCh <- srv.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("server failed", zap.Error(err))
		}
	case sig := <-quit:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", zap.Error(err))
	}
	sweep.Stop()
	journal.Stop()
}
