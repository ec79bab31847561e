package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/locallink/locallink-backend/pkg/docstore"
	"github.com/locallink/locallink-backend/pkg/enums"
	pkgerrors "github.com/locallink/locallink-backend/pkg/errors"
	"github.com/locallink/locallink-backend/pkg/logger"
	"github.com/locallink/locallink-backend/pkg/metrics"
	"github.com/locallink/locallink-backend/pkg/models"
	"github.com/locallink/locallink-backend/pkg/outbox"
)

type outboxEmitter interface {
	Emit(ctx context.Context, event outbox.DomainEvent) error
}

// Service drives the order lifecycle from offer acceptance to rating.
type Service interface {
	AcceptOffer(ctx context.Context, input AcceptOfferInput) (*models.Order, error)
	ResumeAcceptance(ctx context.Context, orderID string) (*models.Order, error)
	StalledAcceptances(ctx context.Context, olderThan time.Duration) ([]models.Order, error)
	RecoverOrphanedLocks(ctx context.Context, olderThan time.Duration) ([]string, error)
	ClaimDelivery(ctx context.Context, orderID string, partner models.Actor) (*models.Order, error)
	AdvanceStatus(ctx context.Context, orderID, partnerID string, next enums.OrderStatus) (*models.Order, error)
	Rate(ctx context.Context, input RateInput) (*RateResult, error)
	FinalizeTownHubPickup(ctx context.Context, orderID string) (*models.Order, error)
	Get(ctx context.Context, orderID string) (*models.Order, error)
	ListForActor(ctx context.Context, actor models.Actor) ([]models.Order, error)
}

type service struct {
	store   docstore.Store
	outbox  outboxEmitter
	metrics *metrics.MarketMetrics
	logg    *logger.Logger
	now     func() time.Time

	ratingRetries uint64
}

const (
	defaultRatingRetries = 5
	ratingRetryDelay     = 10 * time.Millisecond
)

// NewService builds the order lifecycle service. metrics and logg are optional.
func NewService(store docstore.Store, outbox outboxEmitter, m *metrics.MarketMetrics, logg *logger.Logger) (Service, error) {
	if store == nil {
		return nil, fmt.Errorf("document store required")
	}
	if outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		store:         store,
		outbox:        outbox,
		metrics:       m,
		logg:          logg,
		now:           time.Now,
		ratingRetries: defaultRatingRetries,
	}, nil
}

func (s *service) Get(ctx context.Context, orderID string) (*models.Order, error) {
	if orderID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, _, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// ListForActor returns the orders an actor takes part in, newest first.
// Delivery partners also see unclaimed jobs in their city; admins see all.
func (s *service) ListForActor(ctx context.Context, actor models.Actor) ([]models.Order, error) {
	docs, err := s.store.LoadAll(ctx, docstore.CollectionOrders)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "failed to load orders")
	}
	all, errs := models.DecodeAll(docs, models.OrderFromDocument)
	for _, decodeErr := range errs {
		s.logg.Warn(s.logg.WithField(ctx, "error", decodeErr.Error()), "orders.document.invalid")
	}

	out := make([]models.Order, 0, len(all))
	for _, o := range all {
		if VisibleTo(o, actor) {
			out = append(out, o)
		}
	}
	sortNewestFirst(out)
	return out, nil
}

// VisibleTo reports whether actor may see the order.
func VisibleTo(o models.Order, actor models.Actor) bool {
	switch actor.Role {
	case enums.ActorRoleAdmin:
		return true
	case enums.ActorRoleDeliveryPartner:
		if o.DeliveryPartnerID == actor.ID {
			return true
		}
		return o.Status == enums.OrderStatusPendingAssignment && sameCity(o.City, actor.City)
	default:
		return o.CustomerID == actor.ID || o.ShopID == actor.ID
	}
}

func (s *service) loadOrder(ctx context.Context, orderID string) (models.Order, int64, error) {
	doc, err := s.store.Get(ctx, docstore.CollectionOrders, orderID)
	if err != nil {
		return models.Order{}, 0, storeError(err, "order")
	}
	order, err := models.OrderFromDocument(*doc)
	if err != nil {
		return models.Order{}, 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "stored order is invalid")
	}
	return order, doc.Revision, nil
}

func (s *service) emit(ctx context.Context, event outbox.DomainEvent) {
	if err := s.outbox.Emit(ctx, event); err != nil {
		s.logg.Error(s.logg.WithFields(ctx, map[string]any{
			"event_type":   event.EventType,
			"aggregate_id": event.AggregateID,
		}), "orders.event.emit_failed", err)
	}
}

// storeError maps adapter errors onto API codes. Precondition failures are
// handled by callers since their meaning depends on the operation.
func storeError(err error, entity string) error {
	switch {
	case errors.Is(err, docstore.ErrNotFound):
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, entity+" not found")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "failed to access "+entity)
	}
}

func orderFromWrite(doc *docstore.Document) (*models.Order, error) {
	order, err := models.OrderFromDocument(*doc)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "stored order is invalid")
	}
	return &order, nil
}
