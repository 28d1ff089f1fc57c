package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"voipms-gateway/internal/adapters/db/postgres"
	"voipms-gateway/internal/adapters/provider/voipms"
	"voipms-gateway/internal/adapters/queue/rabbitmq"
	"voipms-gateway/internal/app"
	"voipms-gateway/internal/config"
	"voipms-gateway/internal/middleware"
	"voipms-gateway/internal/transport"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{AddSource: true}))
	if err := run(log); err != nil {
		log.Error("application failed", "error", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	conf, err := config.Load()
	if err != nil {
		return err
	}
	if err := conf.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	repo, err := postgres.New(conf.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer repo.Close()

	publisher, err := rabbitmq.NewPublisher(conf.AMQPURL)
	if err != nil {
		return fmt.Errorf("connect to rabbitmq: %w", err)
	}
	defer publisher.Close()

	dispatcher := app.NewDispatcher(publisher, log)
	defer dispatcher.Close()

	sender := voipms.New(conf.VoipmsAPIURL, conf.SendTimeout, log)
	registry := app.NewWebhookRegistry()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ctrl, err := app.NewLineController(ctx, conf.Line(), conf.BaseURL,
		sender, repo, dispatcher, registry, log)
	if err != nil {
		return fmt.Errorf("start line controller: %w", err)
	}
	defer ctrl.Close()

	// Tell subscribers where VoIP.ms callbacks must be pointed. The URL is
	// delivered over the event bus, never logged.
	ctrl.AnnounceWebhookURL()

	fiberApp := fiber.New(fiber.Config{
		AppName:               "voipms-gateway",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		IdleTimeout:           120 * time.Second,
		// OWASP: Disable server header to reduce information disclosure
		ServerHeader: "",
		// Inbound callbacks carry media URLs, not media; bodies stay small
		BodyLimit: 1 * 1024 * 1024, // 1MB
	})

	// ═══════════════════════════════════════════════════════════
	// Global Middleware
	// ═══════════════════════════════════════════════════════════

	// 1. Panic Recovery - prevents application crashes
	fiberApp.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	// 2. Request Logging - audit trail
	fiberApp.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} - ${method} ${path} ${latency}\n",
		TimeFormat: "2006-01-02 15:04:05",
	}))

	// 3. Request ID - tracing and correlation
	fiberApp.Use(middleware.RequestIDMiddleware())

	// 4. Security Headers - OWASP recommended headers
	fiberApp.Use(middleware.SecurityHeaders())

	// 5. CORS - Cross-Origin Resource Sharing
	fiberApp.Use(middleware.CORSConfig(conf.AllowedOrigins))

	// 6. Rate Limiting - 100 requests per minute per IP, webhook exempt
	rateLimiter := middleware.NewRateLimiter(100, 1*time.Minute)
	fiberApp.Use(rateLimiter.Middleware())

	// ═══════════════════════════════════════════════════════════
	// Routes
	// ═══════════════════════════════════════════════════════════

	fiberApp.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "healthy"})
	})

	handler := transport.NewHandler(ctrl, registry, log)
	handler.Register(fiberApp.Group("/api"))
	handler.RegisterWebhook(fiberApp)

	errChan := make(chan error, 1)
	go func() {
		log.Info("gateway started", "addr", conf.HTTPAddr, "did", conf.DID)
		if err := fiberApp.Listen(conf.HTTPAddr); err != nil {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errChan:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := fiberApp.ShutdownWithContext(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown gracefully: %w", err)
	}

	log.Info("gateway stopped gracefully")
	return nil
}
