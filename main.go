package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"qrmenu-api/approval"
	"qrmenu-api/config"
	"qrmenu-api/filehost"
	"qrmenu-api/handlers"
	"qrmenu-api/middleware"
	"qrmenu-api/notify"
	"qrmenu-api/ratelimit"
	"qrmenu-api/reset"
	"qrmenu-api/routes"

	"github.com/gin-gonic/gin"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/redis/go-redis/v9"
)

const Version = "1.0.0"

func main() {
	logger := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	logger = log.With(logger, "ts", log.DefaultTimestampUTC)
	logger = log.With(logger, "caller", log.DefaultCaller)

	if err := run(logger); err != nil {
		level.Error(logger).Log("exit", err)
		os.Exit(1)
	}
}

func run(logger log.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	gin.SetMode(cfg.GinMode)
	logger.Log("startup", fmt.Sprintf("Starting qrmenu-api version %s", Version), "mode", cfg.GinMode)

	db, err := config.OpenDB(cfg)
	if err != nil {
		return err
	}
	if created, err := config.SeedSuperAdmin(db, cfg.SuperAdminEmail, cfg.SuperAdminPassword); err != nil {
		return err
	} else if created {
		level.Info(logger).Log("msg", "super admin account created", "email", cfg.SuperAdminEmail)
	}

	store, closeStore, err := rateLimitStore(cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	var mailer notify.Mailer = notify.LogMailer{Logger: logger}
	if cfg.SMTPHost != "" {
		mailer = notify.NewSMTPMailer(notify.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		})
	} else {
		level.Warn(logger).Log("msg", "SMTP_HOST not set, emails are written to the log")
	}

	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(logger))

	var files filehost.Uploader
	if cfg.FileHostURL != "" {
		files = filehost.NewClient(cfg.FileHostURL, cfg.FileHostAPIKey)
	} else {
		dir := filepath.Join(".", "uploads")
		files = filehost.DiskUploader{Dir: dir, BaseURL: "/uploads"}
		r.Static("/uploads", dir)
		level.Warn(logger).Log("msg", "FILE_HOST_URL not set, uploads are stored on disk", "dir", dir)
	}

	h := &handlers.Handler{
		DB:       db,
		Logger:   logger,
		Sessions: middleware.NewSessions(cfg.JWTSecret, cfg.SessionTTL),
		Reset: reset.NewService(db, reset.Config{
			OTPDigits:   cfg.OTPDigits,
			OTPTTL:      cfg.OTPTTL,
			MaxAttempts: cfg.OTPAttempts,
			TokenTTL:    cfg.ResetTokenTTL,
		}),
		Approval:      approval.NewService(db, mailer, logger),
		Mailer:        mailer,
		Files:         files,
		ResetRequests: ratelimit.New(store, "reset", cfg.ResetRequestWindow, cfg.ResetRequestMax),
		OTPVerify:     ratelimit.New(store, "otp", cfg.OTPVerifyWindow, cfg.OTPVerifyMax),
		AppBaseURL:    cfg.AppBaseURL,
		SecureCookies: cfg.GinMode == gin.ReleaseMode,
	}
	routes.SetupRoutes(r, h)

	serve := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errs := make(chan error, 1)
	go func() {
		logger.Log("transport", "HTTP", "addr", serve.Addr)
		errs <- serve.ListenAndServe()
	}()

	select {
	case err := <-errs:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Log("shutdown", "signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return serve.Shutdown(shutdownCtx)
}

// rateLimitStore uses Redis when REDIS_URL is set and process memory otherwise.
func rateLimitStore(cfg *config.Config, logger log.Logger) (ratelimit.Store, func(), error) {
	if cfg.RedisURL == "" {
		return ratelimit.NewMemoryStore(), func() {}, nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		// Limits fail open on store errors, so a missing Redis is not fatal.
		level.Warn(logger).Log("msg", "redis unreachable at startup", "err", err)
	}
	return ratelimit.NewRedisStore(client, "qrmenu:rl"), func() { _ = client.Close() }, nil
}
