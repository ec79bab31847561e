package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	redislib "github.com/redis/go-redis/v9"
)

type inboxStore interface {
	PushCapped(ctx context.Context, key string, value string, limit int64) error
	Range(ctx context.Context, key string, start, stop int64) ([]string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
}

type inboxKeyer interface {
	InboxKey(actorID string) string
}

// Repository persists per-actor inboxes.
type Repository interface {
	Append(ctx context.Context, actorID string, n Notification) error
	List(ctx context.Context, actorID string) ([]Notification, error)
	ReadMarker(ctx context.Context, actorID string) (int64, error)
	SetReadMarker(ctx context.Context, actorID string, at int64) error
	Clear(ctx context.Context, actorID string) error
}

type repositoryImpl struct {
	store inboxStore
	keys  inboxKeyer
	limit int64
}

// NewRepository stores each inbox as a capped Redis list holding the newest
// limit entries, plus a read marker key.
func NewRepository(store inboxStore, keys inboxKeyer, limit int) Repository {
	if limit <= 0 {
		limit = 50
	}
	return &repositoryImpl{store: store, keys: keys, limit: int64(limit)}
}

func (r *repositoryImpl) Append(ctx context.Context, actorID string, n Notification) error {
	raw, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	return r.store.PushCapped(ctx, r.keys.InboxKey(actorID), string(raw), r.limit)
}

func (r *repositoryImpl) List(ctx context.Context, actorID string) ([]Notification, error) {
	rows, err := r.store.Range(ctx, r.keys.InboxKey(actorID), 0, r.limit-1)
	if err != nil {
		return nil, err
	}
	out := make([]Notification, 0, len(rows))
	for _, row := range rows {
		var n Notification
		if err := json.Unmarshal([]byte(row), &n); err != nil {
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

func (r *repositoryImpl) ReadMarker(ctx context.Context, actorID string) (int64, error) {
	raw, err := r.store.Get(ctx, r.readKey(actorID))
	if errors.Is(err, redislib.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(raw, 10, 64)
}

func (r *repositoryImpl) SetReadMarker(ctx context.Context, actorID string, at int64) error {
	return r.store.Set(ctx, r.readKey(actorID), strconv.FormatInt(at, 10), 0)
}

func (r *repositoryImpl) Clear(ctx context.Context, actorID string) error {
	return r.store.Del(ctx, r.keys.InboxKey(actorID), r.readKey(actorID))
}

func (r *repositoryImpl) readKey(actorID string) string {
	return r.keys.InboxKey(actorID) + ":read"
}
