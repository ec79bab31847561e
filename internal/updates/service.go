package updates

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/locallink/locallink-backend/pkg/docstore"
	"github.com/locallink/locallink-backend/pkg/enums"
	pkgerrors "github.com/locallink/locallink-backend/pkg/errors"
	"github.com/locallink/locallink-backend/pkg/logger"
	"github.com/locallink/locallink-backend/pkg/models"
)

const maxTextLen = 280

// PostInput is a shop's promotional note.
type PostInput struct {
	Text  string
	Image string
}

// Service manages shop daily updates.
type Service interface {
	Post(ctx context.Context, shop models.Actor, input PostInput) (*models.DailyUpdate, error)
	ListLive(ctx context.Context) ([]models.DailyUpdate, error)
}

type service struct {
	store docstore.Store
	ttl   time.Duration
	limit int
	logg  *logger.Logger
	now   func() time.Time
}

// NewService builds the daily updates service. Updates expire after ttl and
// listings return at most limit entries.
func NewService(store docstore.Store, ttl time.Duration, limit int, logg *logger.Logger) (Service, error) {
	if store == nil {
		return nil, fmt.Errorf("document store required")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{store: store, ttl: ttl, limit: limit, logg: logg, now: time.Now}, nil
}

func (s *service) Post(ctx context.Context, shop models.Actor, input PostInput) (*models.DailyUpdate, error) {
	if shop.Role != enums.ActorRoleShopOwner {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only shops can post updates")
	}
	text := strings.TrimSpace(input.Text)
	if text == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "update text required")
	}
	if len([]rune(text)) > maxTextLen {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("update text exceeds %d characters", maxTextLen))
	}

	now := s.now()
	update := models.DailyUpdate{
		ID:        "upd_" + uuid.NewString(),
		ShopID:    shop.ID,
		ShopName:  shop.ShopName,
		Text:      text,
		Image:     input.Image,
		CreatedAt: now.UnixMilli(),
		ExpiresAt: now.Add(s.ttl).UnixMilli(),
	}
	fields, err := docstore.Fields(update)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode update")
	}
	if _, err := s.store.Write(ctx, docstore.CollectionUpdates, update.ID, fields, docstore.IfAbsent()); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save update")
	}
	return &update, nil
}

// ListLive returns unexpired updates, newest first.
func (s *service) ListLive(ctx context.Context) ([]models.DailyUpdate, error) {
	docs, err := s.store.LoadAll(ctx, docstore.CollectionUpdates)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load updates")
	}
	all, errs := models.DecodeAll(docs, models.UpdateFromDocument)
	if len(errs) > 0 {
		s.logg.Warn(s.logg.WithField(ctx, "invalid", len(errs)), "updates.document.invalid")
	}

	nowMs := s.now().UnixMilli()
	live := all[:0]
	for _, u := range all {
		if u.Live(nowMs) {
			live = append(live, u)
		}
	}
	sort.Slice(live, func(i, j int) bool { return live[i].CreatedAt > live[j].CreatedAt })
	if s.limit > 0 && len(live) > s.limit {
		live = live[:s.limit]
	}
	return live, nil
}
