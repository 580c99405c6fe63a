package main

import (
	"context"
	"os/signal"
	"syscall"

	"app/internal/config"
	"app/internal/logger"
	"app/internal/notifier"
	"app/internal/pgmq"
	"app/internal/pubsub"
	"app/internal/tenant"

	"github.com/joho/godotenv"
)

func main() {
	// Initialize logger
	logger := logger.New()

	// Load environment variables
	if err := godotenv.Load(); err != nil {
		logger.Warn().Msg("Warning: no .env file found")
	}

	// Load config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Msgf("Error loading config: %v", err)
	}

	// Set up context with graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Load tenants, ensuring the outbox queues exist before draining them
	registry, err := tenant.Load(ctx, cfg, logger,
		func(ctx context.Context, t *tenant.Tenant) error {
			client := pgmq.New(t.DB)
			if err := client.EnsureQueue(ctx, cfg.NotificationQueueName); err != nil {
				return err
			}
			return client.EnsureQueue(ctx, cfg.NotificationDLQName)
		},
	)
	if err != nil {
		logger.Fatal().Msgf("Failed to load tenants: %v", err)
	}
	defer registry.Close()

	// Initialize Pub/Sub publisher
	publisher, err := pubsub.NewPublisher(ctx, cfg.GCPProjectID)
	if err != nil {
		logger.Fatal().Msgf("Failed to create Pub/Sub publisher: %v", err)
	}
	defer publisher.Close()

	if err := notifier.Run(ctx, cfg, registry, publisher, logger); err != nil {
		logger.Fatal().Msgf("Notifier failed: %v", err)
	}

	logger.Info().Msg("Notifier stopped gracefully")
}
