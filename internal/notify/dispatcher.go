// Package notify is the core's side of the NotificationDispatch collaborator.
// Dispatch is fire-and-forget: enqueue failures are logged and swallowed,
// the mutating operation that triggered them has already succeeded.
package notify

import (
	"context"
	"encoding/json"
	"time"

	"app/internal/model"
	"app/internal/pgmq"

	"github.com/rs/zerolog"
)

// Dispatcher sends a single notification to one user.
type Dispatcher interface {
	SendSingleNotification(ctx context.Context, n model.Notification)
}

// OutboxDispatcher writes notifications to the tenant's pgmq outbox queue.
// The notifier worker drains the queue and publishes to Pub/Sub.
type OutboxDispatcher struct {
	client   *pgmq.Client
	queue    string
	tenantID string
	logger   zerolog.Logger
}

// NewOutboxDispatcher builds a dispatcher over the given tenant's queue.
func NewOutboxDispatcher(client *pgmq.Client, queue, tenantID string, logger zerolog.Logger) *OutboxDispatcher {
	return &OutboxDispatcher{
		client:   client,
		queue:    queue,
		tenantID: tenantID,
		logger:   logger.With().Str("component", "notify").Str("tenant", tenantID).Logger(),
	}
}

// SendSingleNotification enqueues the notification. Errors are logged, never
// returned: a failed notification must not fail the request that produced it.
func (d *OutboxDispatcher) SendSingleNotification(ctx context.Context, n model.Notification) {
	n.TenantID = d.tenantID
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(n)
	if err != nil {
		d.logger.Error().Err(err).Str("user_id", n.UserID).Msg("Failed to marshal notification")
		return
	}
	if err := d.client.Send(ctx, d.queue, payload); err != nil {
		d.logger.Error().Err(err).Str("user_id", n.UserID).Str("type", n.Type).Msg("Failed to enqueue notification")
	}
}
