// Package pubsub connects the marketplace to Google Cloud Pub/Sub: one
// domain topic carries every lifecycle event and an optional subscription
// feeds the notification worker.
package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/locallink/locallink-backend/pkg/config"
	"github.com/locallink/locallink-backend/pkg/logger"
	"github.com/locallink/locallink-backend/pkg/outbox"
)

// inboxAckDeadline covers one inbox write plus a dedup lease round trip.
const inboxAckDeadline = 30

var (
	errProjectIDRequired = errors.New("gcp project id is required")
	errNoTopic           = errors.New("pubsub domain topic is required")
	errNilClient         = errors.New("pubsub client not initialized")
)

// Client owns the Pub/Sub connection and the resolved resource names.
type Client struct {
	client       *pubsub.Client
	topic        string
	subscription string
}

// NewClient connects and checks that the domain topic and, when configured,
// the notification subscription exist. With CreateMissing set (emulator and
// local runs) absent resources are created instead of failing startup.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	project := strings.TrimSpace(gcp.ProjectID)
	if project == "" {
		return nil, errProjectIDRequired
	}
	if !cfg.Enabled() {
		return nil, errNoTopic
	}

	raw, err := pubsub.NewClient(ctx, project)
	if err != nil {
		return nil, fmt.Errorf("pubsub client: %w", err)
	}
	c := &Client{
		client:       raw,
		topic:        resourceName(project, "topics", cfg.DomainTopic),
		subscription: resourceName(project, "subscriptions", cfg.NotificationSubscription),
	}

	if err := c.ensureTopic(ctx, cfg.CreateMissing); err != nil {
		_ = raw.Close()
		return nil, err
	}
	if c.subscription != "" {
		if err := c.ensureSubscription(ctx, cfg.CreateMissing); err != nil {
			_ = raw.Close()
			return nil, err
		}
	}

	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"topic":        c.topic,
			"subscription": c.subscription,
		}), "pubsub.ready")
	}
	return c, nil
}

func (c *Client) ensureTopic(ctx context.Context, create bool) error {
	_, err := c.client.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: c.topic})
	if status.Code(err) == codes.NotFound && create {
		_, err = c.client.TopicAdminClient.CreateTopic(ctx, &pubsubpb.Topic{Name: c.topic})
		err = ignoreExists(err)
	}
	return describe("topic", c.topic, err)
}

func (c *Client) ensureSubscription(ctx context.Context, create bool) error {
	_, err := c.client.SubscriptionAdminClient.GetSubscription(ctx, &pubsubpb.GetSubscriptionRequest{Subscription: c.subscription})
	if status.Code(err) == codes.NotFound && create {
		_, err = c.client.SubscriptionAdminClient.CreateSubscription(ctx, &pubsubpb.Subscription{
			Name:               c.subscription,
			Topic:              c.topic,
			AckDeadlineSeconds: inboxAckDeadline,
		})
		err = ignoreExists(err)
	}
	return describe("subscription", c.subscription, err)
}

// ignoreExists treats losing a create race to another instance as success.
func ignoreExists(err error) error {
	if status.Code(err) == codes.AlreadyExists {
		return nil
	}
	return err
}

func describe(kind, name string, err error) error {
	switch {
	case err == nil:
		return nil
	case status.Code(err) == codes.NotFound:
		return fmt.Errorf("%s %s does not exist", kind, name)
	}
	return fmt.Errorf("check %s %s: %w", kind, name, err)
}

// NotificationSubscription returns the subscriber feeding user inboxes, or
// nil when none is configured.
func (c *Client) NotificationSubscription() *pubsub.Subscriber {
	if c == nil || c.client == nil || c.subscription == "" {
		return nil
	}
	return c.client.Subscriber(c.subscription)
}

// DomainPublisher returns the domain topic publisher.
func (c *Client) DomainPublisher() *pubsub.Publisher {
	if c == nil || c.client == nil || c.topic == "" {
		return nil
	}
	return c.client.Publisher(c.topic)
}

// Ping checks that the domain topic is still reachable.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errNilClient
	}
	return c.ensureTopic(ctx, false)
}

// Close releases the connection.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// resourceName expands a short id into projects/<p>/<kind>/<id>. Names that
// are already full resource paths pass through untouched.
func resourceName(project, kind, name string) string {
	name = strings.TrimSpace(name)
	switch {
	case name == "":
		return ""
	case strings.HasPrefix(name, "projects/") && strings.Contains(name, "/"+kind+"/"):
		return name
	case project == "":
		return ""
	}
	return "projects/" + project + "/" + kind + "/" + name
}

// EventPublisher sends outbox messages to the domain topic and waits for the
// server ack so callers can log a failed publish.
type EventPublisher struct {
	publisher *pubsub.Publisher
}

var _ outbox.Publisher = (*EventPublisher)(nil)

// NewEventPublisher wraps the client's domain topic.
func NewEventPublisher(c *Client) (*EventPublisher, error) {
	p := c.DomainPublisher()
	if p == nil {
		return nil, errNoTopic
	}
	return &EventPublisher{publisher: p}, nil
}

func (p *EventPublisher) Publish(ctx context.Context, msg outbox.Message) error {
	attrs := make(map[string]string, len(msg.Attributes)+1)
	for k, v := range msg.Attributes {
		attrs[k] = v
	}
	attrs["event_id"] = msg.ID

	if _, err := p.publisher.Publish(ctx, &pubsub.Message{Data: msg.Body, Attributes: attrs}).Get(ctx); err != nil {
		return fmt.Errorf("pubsub publish %s: %w", msg.ID, err)
	}
	return nil
}

// Stop flushes pending messages.
func (p *EventPublisher) Stop() {
	if p != nil && p.publisher != nil {
		p.publisher.Stop()
	}
}
