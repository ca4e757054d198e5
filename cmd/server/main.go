package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/mamadbah2/chatrelay/internal/config"
	"github.com/mamadbah2/chatrelay/internal/repository/mongodb"
	"github.com/mamadbah2/chatrelay/internal/repository/objectstore"
	"github.com/mamadbah2/chatrelay/internal/scheduler"
	"github.com/mamadbah2/chatrelay/internal/server/gateway"
	"github.com/mamadbah2/chatrelay/internal/server/handlers"
	"github.com/mamadbah2/chatrelay/internal/server/router"
	"github.com/mamadbah2/chatrelay/internal/service/chatbots"
	"github.com/mamadbah2/chatrelay/internal/service/ingest"
	"github.com/mamadbah2/chatrelay/internal/service/media"
	"github.com/mamadbah2/chatrelay/internal/service/outbound"
	"github.com/mamadbah2/chatrelay/internal/service/relay"
	"github.com/mamadbah2/chatrelay/internal/service/webhook"
	whatsappclient "github.com/mamadbah2/chatrelay/pkg/clients/whatsapp"
	"github.com/mamadbah2/chatrelay/pkg/logger"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		panic(err)
	}

	baseLogger := logger.Must(logger.New(cfg.Log.Level))
	defer func() { _ = baseLogger.Sync() }()

	zap.ReplaceGlobals(baseLogger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	connectCtx, cancelConnect := context.WithTimeout(ctx, 15*time.Second)
	mongoRepo, err := mongodb.NewRepository(connectCtx, cfg.MongoDB)
	cancelConnect()
	if err != nil {
		baseLogger.Fatal("failed to init mongodb repository", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := mongoRepo.Close(closeCtx); err != nil {
			baseLogger.Error("failed to close mongodb connection", zap.Error(err))
		}
	}()

	store, err := objectstore.NewS3Store(ctx, cfg.Storage, logger.Named(baseLogger, "repo.objectstore"))
	if err != nil {
		baseLogger.Fatal("failed to init object store", zap.Error(err))
	}

	whatsClient := whatsappclient.NewClient(cfg.WhatsApp)
	resolver := chatbots.NewResolver(mongoRepo.ChatBots(), cfg.Relay.ChatBotCacheTTL, baseLogger.Named("svc.chatbots"))
	pipeline := media.NewPipeline(whatsClient, store, cfg.Storage.KeyNamespace, baseLogger.Named("svc.media"))
	outboundSvc := outbound.NewService(resolver, whatsClient, baseLogger.Named("svc.outbound"))

	hub := gateway.NewHub(outboundSvc, mongoRepo.Messages(), gateway.Options{
		IdentityHeader:  cfg.Gateway.IdentityHeader,
		SendBuffer:      cfg.Gateway.SendBuffer,
		DispatchTimeout: cfg.WhatsApp.Timeout,
	}, baseLogger.Named("gateway"))

	stats := relay.NewStats()
	eventRouter := relay.NewRouter(resolver, pipeline, hub, stats, baseLogger.Named("svc.relay"))

	ingestor := ingest.NewIngestor(mongoRepo.Events(), mongoRepo.Cursors(), eventRouter, ingest.Options{
		Name:           cfg.MongoDB.EventsCollection,
		Concurrency:    cfg.Relay.MediaConcurrency,
		EventTimeout:   cfg.Relay.EventTimeout,
		ReconnectDelay: cfg.Relay.ReconnectDelay,
		Resume:         cfg.Relay.ResumeStream,
	}, baseLogger.Named("svc.ingest"))
	if err := ingestor.Subscribe(ctx); err != nil {
		baseLogger.Fatal("failed to subscribe to event log", zap.Error(err))
	}

	webhookSvc := webhook.NewService(cfg.WhatsApp.VerifyToken, mongoRepo.Events(), baseLogger.Named("svc.webhook"))
	webhookHandler := handlers.NewWebhookHandler(webhookSvc, outboundSvc, baseLogger.Named("handlers.whatsapp"))
	engine := router.New(webhookHandler, hub, baseLogger.Named("router"))

	sched := scheduler.NewScheduler(cfg.Stats.CronSchedule, stats, hub, baseLogger.Named("scheduler"))
	if err := sched.Start(); err != nil {
		baseLogger.Fatal("failed to start scheduler", zap.Error(err))
	}
	defer sched.Stop()

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		baseLogger.Info("server starting", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			baseLogger.Fatal("http server crashed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	baseLogger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ingestor.Unsubscribe()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		baseLogger.Error("graceful shutdown failed", zap.Error(err))
	}
	hub.Close()
	if err := ingestor.Drain(shutdownCtx); err != nil {
		baseLogger.Warn("in-flight events still running at shutdown", zap.Error(err))
	}
}
