// Package notifier drains the per-tenant notification outboxes and publishes
// each message to Pub/Sub. It runs as its own process so a slow or failing
// Pub/Sub never backs up into the API.
package notifier

import (
	"context"
	"encoding/json"
	"time"

	"app/internal/config"
	"app/internal/model"
	"app/internal/pgmq"
	"app/internal/pubsub"
	"app/internal/tenant"

	"github.com/rs/zerolog"
)

// Run starts the notifier loop. It sweeps every tenant's outbox queue in
// turn, publishes each notification with retry and backoff, and moves
// exhausted messages to the dead-letter queue. Returns when ctx is done.
func Run(ctx context.Context, cfg *config.Config, registry *tenant.Registry, publisher pubsub.Publisher, logger zerolog.Logger) error {
	queue := cfg.NotificationQueueName
	dlq := cfg.NotificationDLQName
	logger.Info().Str("queue", queue).Str("topic", cfg.NotificationTopic).Msg("Starting notifier")

	clients := make(map[string]*pgmq.Client, len(registry.IDs()))
	for _, id := range registry.IDs() {
		clients[id] = pgmq.New(registry.Get(id).DB)
	}

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("Shutting down notifier")
			return nil
		default:
		}

		drained := 0
		for _, id := range registry.IDs() {
			n, err := drainTenant(ctx, cfg, id, clients[id], queue, dlq, publisher, logger)
			if err != nil {
				logger.Error().Err(err).Str("tenant", id).Msg("Error reading notification queue")
				continue
			}
			drained += n
		}
		// All queues empty: back off briefly instead of hammering the DBs.
		if drained == 0 {
			select {
			case <-ctx.Done():
			case <-time.After(time.Duration(cfg.NotifierPollTimeoutSec) * time.Second):
			}
		}
	}
}

func drainTenant(ctx context.Context, cfg *config.Config, tenantID string, client *pgmq.Client,
	queue, dlq string, publisher pubsub.Publisher, logger zerolog.Logger) (int, error) {
	msgs, err := client.ReadWithPoll(ctx, queue, 0, cfg.NotifierPollMaxMsg)
	if err != nil {
		return 0, err
	}
	for _, msg := range msgs {
		var n model.Notification
		if err := json.Unmarshal(msg.Data, &n); err != nil {
			logger.Error().Err(err).Int64("msg_id", msg.ID).Str("tenant", tenantID).
				Msg("Failed to unmarshal notification; deleting message")
			client.Delete(ctx, queue, []int64{msg.ID})
			continue
		}

		attrs := map[string]string{
			"tenant":  tenantID,
			"type":    n.Type,
			"user_id": n.UserID,
		}

		// Publish with exponential backoff retry
		backoff := time.Duration(cfg.NotifierBackoffInitialSec) * time.Second
		var pubErr error
		for attempt := 1; attempt <= cfg.NotifierMaxRetries; attempt++ {
			_, pubErr = publisher.Publish(ctx, cfg.NotificationTopic, msg.Data, attrs)
			if pubErr == nil {
				break
			}
			logger.Error().Err(pubErr).Int("attempt", attempt).Str("tenant", tenantID).
				Msg("Pub/Sub publish failed, retrying")
			select {
			case <-ctx.Done():
				return 0, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > time.Duration(cfg.NotifierBackoffMaxSec)*time.Second {
				backoff = time.Duration(cfg.NotifierBackoffMaxSec) * time.Second
			}
		}
		if pubErr != nil {
			// Exhausted retries: park the message in the DLQ and ack the
			// original so the queue keeps moving.
			if err := client.Send(ctx, dlq, msg.Data); err != nil {
				logger.Error().Err(err).Str("dlq", dlq).Str("tenant", tenantID).
					Msg("Failed to send message to dead-letter queue")
			}
			if err := client.Delete(ctx, queue, []int64{msg.ID}); err != nil {
				logger.Error().Err(err).Str("tenant", tenantID).Msg("Error deleting notification after failure")
			}
			logger.Warn().Int("attempts", cfg.NotifierMaxRetries).Str("tenant", tenantID).
				Str("user_id", n.UserID).Err(pubErr).
				Msg("Exhausted all publish retries; moving notification to DLQ")
			continue
		}

		if err := client.Delete(ctx, queue, []int64{msg.ID}); err != nil {
			logger.Error().Err(err).Str("tenant", tenantID).Msg("Error deleting notification message")
		}
	}
	return len(msgs), nil
}
