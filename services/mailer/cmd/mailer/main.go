package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"healthconnect/internal/util"
	"healthconnect/pkg/mail"
	"healthconnect/pkg/queue"
	"healthconnect/services/mailer/internal/config"
	"healthconnect/services/mailer/internal/worker"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	retryDelay, err := config.ParseDuration("retryDelay", cfg.RetryDelay)
	if err != nil {
		log.Fatalf("failed to parse retry delay: %v", err)
	}
	sendTimeout, err := config.ParseDuration("sendTimeout", cfg.SendTimeout)
	if err != nil {
		log.Fatalf("failed to parse send timeout: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var sender mail.Sender = mail.LogSender{Logger: logger}
	if strings.TrimSpace(cfg.SMTPHost) != "" {
		smtpSender, err := mail.NewSMTPSender(mail.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		})
		if err != nil {
			log.Fatalf("failed to init smtp sender: %v", err)
		}
		sender = smtpSender
	} else {
		logger.Warn("smtpHost not set; mail is logged instead of sent")
	}

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	defer redisClient.Close()
	mailQueue, err := queue.NewRedisMailQueue(queue.RedisQueueConfig{
		Client:     redisClient,
		Stream:     cfg.MailStream,
		Group:      cfg.MailGroup,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: retryDelay,
		Logger:     logger,
	})
	if err != nil {
		log.Fatalf("failed to init mail queue: %v", err)
	}

	w, err := worker.New(worker.Config{Sender: sender, SendTimeout: sendTimeout, Logger: logger})
	if err != nil {
		log.Fatalf("failed to init worker: %v", err)
	}
	consumers := mailQueue.Start(ctx, cfg.Concurrency, w.Handle)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		status, code := "ok", http.StatusOK
		if err := redisClient.Ping(r.Context()).Err(); err != nil {
			status, code = "redis unavailable", http.StatusServiceUnavailable
		}
		rw.Header().Set("Content-Type", "application/json")
		rw.WriteHeader(code)
		_ = json.NewEncoder(rw).Encode(map[string]string{"status": status})
	})

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      util.WithRequestID(util.WithRequestLog("mailer", mux)),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
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

	slog.Info("mailer listening", "addr", addr, "stream", cfg.MailStream, "concurrency", cfg.Concurrency)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "err", err)
	}
	stop()
	consumers.Wait()
}
