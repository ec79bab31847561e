package docstore

import (
	"context"
	"fmt"
	"strings"
)

// ChangeFeed carries "collection changed" notifications between processes
// sharing one database. Payloads carry no document data; receivers reload.
type ChangeFeed interface {
	Publish(ctx context.Context, collection Collection) error
	Listen(ctx context.Context, fn func(Collection)) error
}

// broadcaster is the slice of pkg/redis.Client used by RedisFeed.
type broadcaster interface {
	Publish(ctx context.Context, channel, payload string) error
	Listen(ctx context.Context, channel string, fn func(payload string)) error
}

// RedisFeed publishes collection names on a Redis pub/sub channel. Messages
// sent by this process are skipped on receipt since the local hub was already
// notified at write time.
type RedisFeed struct {
	client  broadcaster
	channel string
	origin  string
}

// NewRedisFeed builds a feed tagged with origin (usually the instance id).
func NewRedisFeed(client broadcaster, channel, origin string) (*RedisFeed, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client required")
	}
	if channel == "" {
		return nil, fmt.Errorf("change channel required")
	}
	if origin == "" {
		origin = "local"
	}
	return &RedisFeed{client: client, channel: channel, origin: origin}, nil
}

func (f *RedisFeed) Publish(ctx context.Context, collection Collection) error {
	return f.client.Publish(ctx, f.channel, f.origin+"|"+string(collection))
}

func (f *RedisFeed) Listen(ctx context.Context, fn func(Collection)) error {
	return f.client.Listen(ctx, f.channel, func(payload string) {
		origin, name, ok := strings.Cut(payload, "|")
		if !ok || origin == f.origin {
			return
		}
		collection := Collection(name)
		if !collection.IsValid() {
			return
		}
		fn(collection)
	})
}
