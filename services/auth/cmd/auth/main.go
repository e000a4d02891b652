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

	"healthconnect/internal/ratelimit"
	"healthconnect/internal/util"
	"healthconnect/pkg/queue"
	"healthconnect/pkg/store"
	"healthconnect/services/auth/internal/app"
	"healthconnect/services/auth/internal/config"
	"healthconnect/services/auth/internal/security"
	"healthconnect/services/auth/internal/server"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	sessionTTL, err := config.ParseDuration("sessionTTL", cfg.SessionTTL)
	if err != nil {
		log.Fatalf("failed to parse session TTL: %v", err)
	}
	if sessionTTL == 0 {
		sessionTTL = 2 * time.Hour
	}
	leeway, err := config.ParseDuration("jwtLeeway", cfg.JWTLeeway)
	if err != nil {
		log.Fatalf("failed to parse jwt leeway: %v", err)
	}
	resetTTL, err := config.ParseDuration("resetCodeTTL", cfg.ResetCodeTTL)
	if err != nil {
		log.Fatalf("failed to parse reset code TTL: %v", err)
	}
	verifyKeys, err := config.ParseVerifyPublicKeys(cfg.JWTVerifyPublicKeys)
	if err != nil {
		log.Fatalf("failed to parse jwt verify keys: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	defer redisClient.Close()

	dataStore, err := store.NewGormStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to init postgres store: %v", err)
	}
	defer dataStore.Close()

	sessions, err := store.NewJWTSessionStoreFromPEM(
		cfg.JWTPrivateKeyPath,
		cfg.JWTKeyID,
		verifyKeys,
		sessionTTL,
		store.NewRedisTokenRevoker(redisClient, sessionTTL+leeway),
		store.JWTOptions{Issuer: cfg.JWTIssuer, Audience: cfg.JWTAudience, Leeway: leeway},
	)
	if err != nil {
		log.Fatalf("failed to init session store: %v", err)
	}

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

	appCore, err := app.New(app.Config{
		Accounts:     dataStore,
		ResetCodes:   dataStore,
		Sessions:     sessions,
		Mail:         mailQueue,
		ResetCodeTTL: resetTTL,
		Logger:       logger,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}
	appCore.StartResetCodeSweeper(ctx, time.Hour)

	limiters, err := buildLimiters(redisClient, cfg)
	if err != nil {
		log.Fatalf("failed to init rate limiters: %v", err)
	}
	proxies, err := util.NewTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		log.Fatalf("failed to parse trusted proxies: %v", err)
	}

	httpServer := server.New(server.Config{
		App:            appCore,
		Limiters:       limiters,
		Alerter:        security.NewAuditAlerter(redisClient, ""),
		TrustedProxies: proxies,
	})

	handler := util.WithSecurityHeaders(
		util.WithCORS(cfg.CORSOrigins,
			util.WithRequestID(
				util.WithRequestLog("auth", httpServer.Router()))))

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
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

	slog.Info("auth server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "err", err)
	}
}

func buildLimiters(client *redis.Client, cfg config.FileConfig) (server.Limiters, error) {
	var out server.Limiters
	specs := []struct {
		dst    **ratelimit.FixedWindowLimiter
		prefix string
		limit  int
		window time.Duration
	}{
		{&out.Signup, "healthconnect:rl:signup", cfg.SignupRateLimitPerMinute, time.Minute},
		{&out.Login, "healthconnect:rl:login", cfg.LoginRateLimitPerMinute, time.Minute},
		{&out.ResetSend, "healthconnect:rl:reset-send", cfg.ResetSendRateLimitPerHour, time.Hour},
		{&out.ResetVerify, "healthconnect:rl:reset-verify", cfg.ResetVerifyRateLimitPerHour, time.Hour},
	}
	for _, spec := range specs {
		if spec.limit == 0 {
			continue
		}
		limiter, err := ratelimit.NewFixedWindowLimiter(client, spec.prefix, spec.limit, spec.window)
		if err != nil {
			return server.Limiters{}, err
		}
		*spec.dst = limiter
	}
	return out, nil
}
