package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/learnhub-notify/internal/application/device"
	"github.com/learnhub-notify/internal/application/notification"
	"github.com/learnhub-notify/internal/config"
	"github.com/learnhub-notify/internal/infrastructure/dynamo"
	jwtinfra "github.com/learnhub-notify/internal/infrastructure/jwt"
	"github.com/learnhub-notify/internal/infrastructure/smtp"
	"github.com/learnhub-notify/internal/infrastructure/sns"
	transporthttp "github.com/learnhub-notify/internal/transport/http"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading from environment")
	}

	cfg := config.Load()
	logger := slog.Default()

	// Bootstrap DynamoDB tables (creates them if they don't exist).
	dynamoClient := dynamo.NewClient(cfg)
	dynamo.Bootstrap(context.Background(), dynamoClient, cfg.DynamoTables)

	notifRepo := dynamo.NewNotificationRepo(dynamoClient, cfg.DynamoTables.Notifications)
	userRepo := dynamo.NewUserRepo(dynamoClient, cfg.DynamoTables.Users)
	tokenRepo := dynamo.NewDeviceTokenRepo(dynamoClient, cfg.DynamoTables.DeviceTokens)
	attemptRepo := dynamo.NewAttemptRepo(dynamoClient, cfg.DynamoTables.DeliveryAttempts)

	// JWT provider (optional — graceful fallback if keys are missing).
	var jwtProvider *jwtinfra.Provider
	if p, err := jwtinfra.NewProvider(cfg); err == nil {
		jwtProvider = p
	} else {
		logger.Warn("JWT provider not available", "err", err)
	}

	// SMTP mailer.
	mailer := smtp.NewMailer(cfg)

	// SNS push sender (optional — graceful fallback).
	var pushSender sns.PushSender
	if sender, err := sns.NewSender(cfg); err == nil {
		pushSender = sender
	} else {
		logger.Warn("SNS push sender not available", "err", err)
	}

	dispatcher := notification.NewDispatcher(notifRepo, userRepo, tokenRepo, attemptRepo, pushSender, mailer, logger)
	notifSvc := notification.NewService(notification.ServiceDeps{
		NotificationRepo: notifRepo,
		UserRepo:         userRepo,
		Dispatcher:       dispatcher,
		RetryWindow:      cfg.RetryWindow,
		Logger:           logger,
	})
	deviceSvc := device.NewService(tokenRepo)

	schedulerCtx, stopScheduler := context.WithCancel(context.Background())
	notification.StartRetryScheduler(schedulerCtx, notifSvc, cfg.RetryInterval, logger)

	deps := &transporthttp.Deps{
		NotificationSvc: notifSvc,
		DeviceSvc:       deviceSvc,
		JWTProvider:     jwtProvider,
		Logger:          logger,
	}
	router := transporthttp.NewRouter(cfg, deps)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", "port", cfg.AppPort, "env", cfg.AppEnv)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")
	stopScheduler()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("forced shutdown: %v", err)
	}

	// Let in-flight dispatch tasks finish before exiting.
	notifSvc.Wait()
	logger.Info("server stopped")
}
