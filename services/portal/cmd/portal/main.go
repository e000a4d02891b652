package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"healthconnect/internal/usertoken"
	"healthconnect/internal/util"
	"healthconnect/pkg/events"
	"healthconnect/pkg/queue"
	"healthconnect/pkg/storage"
	"healthconnect/pkg/store"
	"healthconnect/services/portal/internal/app"
	"healthconnect/services/portal/internal/config"
	"healthconnect/services/portal/internal/notify"
	"healthconnect/services/portal/internal/reminder"
	"healthconnect/services/portal/internal/server"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	leeway, err := config.ParseDuration("jwtLeeway", cfg.JWTLeeway)
	if err != nil {
		log.Fatalf("failed to parse jwt leeway: %v", err)
	}
	presignTTL, err := config.ParseDuration("presignTTL", cfg.PresignTTL)
	if err != nil {
		log.Fatalf("failed to parse presign TTL: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dataStore, err := store.NewGormStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to init postgres store: %v", err)
	}
	defer dataStore.Close()

	buckets, err := storage.NewMinioBuckets(ctx, storage.MinioConfig{
		Endpoint:  cfg.MinioEndpoint,
		AccessKey: cfg.MinioAccessKey,
		SecretKey: cfg.MinioSecretKey,
		UseSSL:    cfg.MinioUseSSL,
	})
	if err != nil {
		log.Fatalf("failed to init object storage: %v", err)
	}

	var publisher events.Publisher = events.NopPublisher{}
	if cfg.AMQPURL != "" {
		amqpPublisher, err := events.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			log.Fatalf("failed to init event publisher: %v", err)
		}
		publisher = amqpPublisher
	} else {
		logger.Warn("amqpURL not set; notification events are not published")
	}
	defer publisher.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	defer redisClient.Close()
	mailStream := cfg.MailStream
	if mailStream == "" {
		mailStream = "healthconnect:mail"
	}
	mailQueue, err := queue.NewRedisMailQueue(queue.RedisQueueConfig{
		Client: redisClient,
		Stream: mailStream,
		Logger: logger,
	})
	if err != nil {
		log.Fatalf("failed to init mail queue: %v", err)
	}

	verifier, err := usertoken.NewVerifier(ctx, usertoken.Config{
		JWKSURL:  cfg.AuthJWKSURL,
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		Leeway:   leeway,
		// Shares the auth service's Redis so logout, password reset and
		// admin removal take effect here.
		Revocations: store.NewRedisTokenRevoker(redisClient, 0),
	})
	if err != nil {
		log.Fatalf("failed to init token verifier: %v", err)
	}

	notifier := notify.NewService(dataStore, publisher, logger)
	appCore, err := app.New(app.Config{
		Store:            dataStore,
		Buckets:          buckets,
		Notifier:         notifier,
		PresignTTL:       presignTTL,
		MaxDocumentBytes: cfg.MaxDocumentBytes,
		MaxImageBytes:    cfg.MaxImageBytes,
		Logger:           logger,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	reminders, err := reminder.New(reminder.Config{
		Store:    dataStore,
		Notifier: notifier,
		Mail:     mailQueue,
		Schedule: cfg.ReminderSchedule,
		Logger:   logger,
	})
	if err != nil {
		log.Fatalf("failed to init refill reminders: %v", err)
	}
	if err := reminders.Start(ctx); err != nil {
		log.Fatalf("failed to start refill reminders: %v", err)
	}
	defer reminders.Stop()

	maxUpload := cfg.MaxDocumentBytes
	if cfg.MaxImageBytes > maxUpload {
		maxUpload = cfg.MaxImageBytes
	}
	if maxUpload > 0 {
		maxUpload += 1 << 20
	}
	httpServer, err := server.New(server.Config{
		App:            appCore,
		Verifier:       verifier,
		MaxUploadBytes: maxUpload,
	})
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	handler := util.WithSecurityHeaders(
		util.WithCORS(cfg.CORSOrigins,
			util.WithRequestID(
				util.WithRequestLog("portal", httpServer.Router()))))

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error", "err", err)
		}
	}()

	slog.Info("portal server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "err", err)
	}
}
