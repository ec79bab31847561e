package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/locallink/locallink-backend/pkg/enums"
	"github.com/locallink/locallink-backend/pkg/logger"
	"github.com/locallink/locallink-backend/pkg/outbox"
	"github.com/locallink/locallink-backend/pkg/outbox/idempotency"
	"github.com/locallink/locallink-backend/pkg/outbox/payloads"
)

const inboxConsumer = "inbox-notifications"

type notifier interface {
	Notify(ctx context.Context, actorID string, text string, kind enums.NotificationType, silent bool) error
}

// Consumer turns domain events that no live market session reports into
// inbox entries: dead leads for the admin and ratings for the rated user.
type Consumer struct {
	inbox        notifier
	subscription *pubsub.Subscriber
	idempotency  *idempotency.Manager
	adminID      string
	logg         *logger.Logger
}

// NewConsumer builds the inbox consumer.
func NewConsumer(inbox notifier, subscription *pubsub.Subscriber, manager *idempotency.Manager, adminID string, logg *logger.Logger) (*Consumer, error) {
	if inbox == nil {
		return nil, fmt.Errorf("notifications service required")
	}
	if subscription == nil {
		return nil, fmt.Errorf("notification subscription required")
	}
	if manager == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if strings.TrimSpace(adminID) == "" {
		return nil, fmt.Errorf("admin id required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		inbox:        inbox,
		subscription: subscription,
		idempotency:  manager,
		adminID:      adminID,
		logg:         logg,
	}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		result := c.process(ctx, msg.ID, msg.Attributes, msg.Data)
		if result.nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	ack  bool
	nack bool
}

func (c *Consumer) process(ctx context.Context, messageID string, attrs map[string]string, data []byte) processResult {
	eventType := enums.EventType(attrs["event_type"])
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": messageID,
		"event_type": eventType,
	})

	if eventType != enums.EventDeadLeadDetected && eventType != enums.EventCounterpartyRated {
		c.logg.Debug(logCtx, "notifications.consumer.skip")
		return processResult{ack: true}
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		c.logg.Error(logCtx, "notifications.consumer.bad_envelope", err)
		return processResult{ack: true}
	}
	if strings.TrimSpace(envelope.EventID) == "" {
		c.logg.Warn(logCtx, "notifications.consumer.missing_event_id")
		return processResult{ack: true}
	}

	already, err := c.idempotency.Begin(ctx, inboxConsumer, envelope.EventID)
	if err != nil {
		c.logg.Error(logCtx, "notifications.consumer.idempotency_failed", err)
		return processResult{nack: true}
	}
	if already {
		c.logg.Info(logCtx, "notifications.consumer.duplicate")
		return processResult{ack: true}
	}

	if err := c.handle(ctx, eventType, envelope.Data); err != nil {
		c.logg.Error(logCtx, "notifications.consumer.handle_failed", err)
		_ = c.idempotency.Release(ctx, inboxConsumer, envelope.EventID)
		return processResult{nack: true}
	}
	if err := c.idempotency.Complete(ctx, inboxConsumer, envelope.EventID); err != nil {
		c.logg.Warn(c.logg.WithField(logCtx, "error", err.Error()), "notifications.consumer.complete_failed")
	}
	return processResult{ack: true}
}

func (c *Consumer) handle(ctx context.Context, eventType enums.EventType, data json.RawMessage) error {
	switch eventType {
	case enums.EventDeadLeadDetected:
		var payload payloads.DeadLeadEvent
		if err := json.Unmarshal(data, &payload); err != nil {
			return fmt.Errorf("decode dead lead: %w", err)
		}
		text := fmt.Sprintf("Dead lead in %s: request %s has no quotes after %d min.",
			payload.City, payload.RequestID, payload.AgeSecs/60)
		return c.inbox.Notify(ctx, c.adminID, text, enums.NotificationTypeLead, false)
	case enums.EventCounterpartyRated:
		var payload payloads.CounterpartyRatedEvent
		if err := json.Unmarshal(data, &payload); err != nil {
			return fmt.Errorf("decode rating: %w", err)
		}
		if payload.RatedID == "" {
			return fmt.Errorf("rated id missing")
		}
		text := fmt.Sprintf("You received a %d-star rating. New average %.1f.", payload.Stars, payload.NewRating)
		return c.inbox.Notify(ctx, payload.RatedID, text, enums.NotificationTypeSystem, true)
	}
	return nil
}
