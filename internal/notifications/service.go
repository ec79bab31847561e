package notifications

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/locallink/locallink-backend/internal/market"
	"github.com/locallink/locallink-backend/pkg/enums"
	pkgerrors "github.com/locallink/locallink-backend/pkg/errors"
)

// Notification is one inbox entry. Read is derived from the inbox read
// marker when listing.
type Notification struct {
	ID        string                 `json:"id"`
	Text      string                 `json:"text"`
	Type      enums.NotificationType `json:"type"`
	EntityID  string                 `json:"entityId,omitempty"`
	Silent    bool                   `json:"silent,omitempty"`
	Timestamp int64                  `json:"timestamp"`
	IsRead    bool                   `json:"isRead"`
}

// Inbox is the listing returned to clients.
type Inbox struct {
	Items  []Notification `json:"items"`
	Unread int            `json:"unread"`
}

// Service defines inbox operations.
type Service interface {
	Notify(ctx context.Context, actorID string, text string, kind enums.NotificationType, silent bool) error
	RecordSignals(ctx context.Context, actorID string, signals []market.Signal) error
	List(ctx context.Context, actorID string) (*Inbox, error)
	MarkAllRead(ctx context.Context, actorID string) error
	Clear(ctx context.Context, actorID string) error
}

type service struct {
	repo  Repository
	now   func() time.Time
	newID func() string
}

// NewService wires notifications dependencies.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "notifications repository required")
	}
	return &service{
		repo:  repo,
		now:   time.Now,
		newID: func() string { return uuid.NewString()[:8] },
	}, nil
}

func (s *service) Notify(ctx context.Context, actorID string, text string, kind enums.NotificationType, silent bool) error {
	if strings.TrimSpace(actorID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "actor id required")
	}
	if !kind.IsValid() {
		kind = enums.NotificationTypeSystem
	}
	n := Notification{
		ID:        s.newID(),
		Text:      text,
		Type:      kind,
		Silent:    silent,
		Timestamp: s.now().UnixMilli(),
	}
	if err := s.repo.Append(ctx, actorID, n); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store notification")
	}
	return nil
}

// RecordSignals appends one entry per relevance signal, oldest first, so the
// newest signal ends up on top of the inbox.
func (s *service) RecordSignals(ctx context.Context, actorID string, signals []market.Signal) error {
	if strings.TrimSpace(actorID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "actor id required")
	}
	for i := len(signals) - 1; i >= 0; i-- {
		sig := signals[i]
		ts := sig.At
		if ts == 0 {
			ts = s.now().UnixMilli()
		}
		n := Notification{
			ID:        s.newID(),
			Text:      sig.Text,
			Type:      enums.NotificationTypeFor(sig.Kind),
			EntityID:  sig.EntityID,
			Timestamp: ts,
		}
		if err := s.repo.Append(ctx, actorID, n); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store notification")
		}
	}
	return nil
}

func (s *service) List(ctx context.Context, actorID string) (*Inbox, error) {
	if strings.TrimSpace(actorID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "actor id required")
	}
	items, err := s.repo.List(ctx, actorID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list notifications")
	}
	readAt, err := s.repo.ReadMarker(ctx, actorID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read marker")
	}

	inbox := &Inbox{Items: items}
	for i := range inbox.Items {
		inbox.Items[i].IsRead = inbox.Items[i].Timestamp <= readAt
		if !inbox.Items[i].IsRead {
			inbox.Unread++
		}
	}
	return inbox, nil
}

func (s *service) MarkAllRead(ctx context.Context, actorID string) error {
	if strings.TrimSpace(actorID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "actor id required")
	}
	if err := s.repo.SetReadMarker(ctx, actorID, s.now().UnixMilli()); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark notifications read")
	}
	return nil
}

func (s *service) Clear(ctx context.Context, actorID string) error {
	if strings.TrimSpace(actorID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "actor id required")
	}
	if err := s.repo.Clear(ctx, actorID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear notifications")
	}
	return nil
}
