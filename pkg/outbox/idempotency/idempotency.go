// Package idempotency dedupes event handling across consumer restarts and
// Pub/Sub redeliveries.
package idempotency

import (
	"context"
	"errors"
	"strings"
	"time"
)

// DefaultLease bounds how long an unfinished claim blocks redelivery. A
// consumer that dies mid-handling loses its claim after this long.
const DefaultLease = 2 * time.Minute

const (
	stateHandling = "handling"
	stateDone     = "done"
)

type markStore interface {
	Set(context.Context, string, any, time.Duration) error
	SetNX(context.Context, string, any, time.Duration) (bool, error)
	Del(context.Context, ...string) error
	IdempotencyKey(scope, id string) string
}

// Manager tracks which events a consumer has handled. Begin claims an event
// under a short lease; Complete turns the claim into a mark that lives for
// the retention window; Release drops the claim so a retry can run.
// Keys look like ll:idempotency:evt:<consumer>:<eventID>.
type Manager struct {
	store     markStore
	retention time.Duration
	lease     time.Duration
}

func NewManager(store markStore, retention time.Duration) (*Manager, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if retention < 0 {
		return nil, errors.New("retention must be non-negative")
	}
	lease := DefaultLease
	if retention > 0 && retention < lease {
		lease = retention
	}
	return &Manager{store: store, retention: retention, lease: lease}, nil
}

// Begin claims id for consumer. handled is true when another delivery
// already finished the event or is still working on it.
func (m *Manager) Begin(ctx context.Context, consumer, id string) (handled bool, err error) {
	key, err := m.key(consumer, id)
	if err != nil {
		return false, err
	}
	claimed, err := m.store.SetNX(ctx, key, stateHandling, m.lease)
	if err != nil {
		return false, err
	}
	return !claimed, nil
}

// Complete records id as handled for the retention window.
func (m *Manager) Complete(ctx context.Context, consumer, id string) error {
	key, err := m.key(consumer, id)
	if err != nil {
		return err
	}
	return m.store.Set(ctx, key, stateDone, m.retention)
}

// Release forgets a claim after a failed attempt.
func (m *Manager) Release(ctx context.Context, consumer, id string) error {
	key, err := m.key(consumer, id)
	if err != nil {
		return err
	}
	return m.store.Del(ctx, key)
}

func (m *Manager) key(consumer, id string) (string, error) {
	consumer, id = strings.TrimSpace(consumer), strings.TrimSpace(id)
	switch {
	case consumer == "":
		return "", errors.New("consumer name is required")
	case id == "":
		return "", errors.New("event id is required")
	}
	return m.store.IdempotencyKey("evt:"+consumer, id), nil
}
