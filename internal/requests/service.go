package requests

import (
	"context"
	"errors"
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
	"github.com/locallink/locallink-backend/pkg/outbox"
	"github.com/locallink/locallink-backend/pkg/outbox/payloads"
	"go.uber.org/multierr"
)

type outboxEmitter interface {
	Emit(ctx context.Context, event outbox.DomainEvent) error
}

// BroadcastInput is the finalized assistant summary a customer publishes.
type BroadcastInput struct {
	Category    enums.Category
	Description string
	Image       string
	// PinCode and Locality default to the customer's profile.
	PinCode  string
	Locality string
}

// Service manages customer product requests.
type Service interface {
	Broadcast(ctx context.Context, customer models.Actor, input BroadcastInput) (*models.ProductRequest, error)
	Get(ctx context.Context, requestID string) (*models.ProductRequest, error)
	ListMine(ctx context.Context, customerID string) ([]models.ProductRequest, error)
	Cancel(ctx context.Context, customerID, requestID string) (*models.ProductRequest, error)
}

type service struct {
	store  docstore.Store
	outbox outboxEmitter
	logg   *logger.Logger
	now    func() time.Time
	newID  func() string
}

// NewService builds the requests service. logg is optional.
func NewService(store docstore.Store, outbox outboxEmitter, logg *logger.Logger) (Service, error) {
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
		store:  store,
		outbox: outbox,
		logg:   logg,
		now:    time.Now,
		newID:  func() string { return "req_" + uuid.NewString() },
	}, nil
}

func (s *service) Broadcast(ctx context.Context, customer models.Actor, input BroadcastInput) (*models.ProductRequest, error) {
	if customer.Role != enums.ActorRoleCustomer {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only customers can broadcast requests")
	}
	description := strings.TrimSpace(input.Description)
	if description == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "description required")
	}
	if strings.TrimSpace(customer.City) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer city required")
	}

	request := models.ProductRequest{
		ID:           s.newID(),
		CustomerID:   customer.ID,
		CustomerName: customer.Name,
		PinCode:      orDefault(input.PinCode, customer.PinCode),
		City:         customer.City,
		Locality:     orDefault(input.Locality, customer.Locality),
		Category:     enums.NormalizeCategory(string(input.Category)),
		Description:  description,
		Image:        input.Image,
		Status:       enums.RequestStatusBroadcasted,
		CreatedAt:    s.now().UnixMilli(),
	}
	fields, err := docstore.Fields(request)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode request")
	}
	if _, err := s.store.Write(ctx, docstore.CollectionRequests, request.ID, fields, docstore.IfAbsent()); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "failed to broadcast request")
	}

	if err := s.outbox.Emit(ctx, outbox.DomainEvent{
		EventType:     enums.EventRequestBroadcasted,
		AggregateType: enums.AggregateRequest,
		AggregateID:   request.ID,
		Actor:         &outbox.ActorRef{ActorID: customer.ID, Role: customer.Role},
		Data: payloads.RequestBroadcastedEvent{
			RequestID:  request.ID,
			CustomerID: customer.ID,
			City:       request.City,
			Category:   request.Category,
		},
	}); err != nil {
		s.logg.Error(s.logg.WithProductRequest(ctx, request.ID), "requests.event.emit_failed", err)
	}
	return &request, nil
}

func (s *service) Get(ctx context.Context, requestID string) (*models.ProductRequest, error) {
	doc, err := s.store.Get(ctx, docstore.CollectionRequests, requestID)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "request not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "failed to load request")
	}
	request, err := models.RequestFromDocument(*doc)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "stored request is invalid")
	}
	return &request, nil
}

func (s *service) ListMine(ctx context.Context, customerID string) ([]models.ProductRequest, error) {
	docs, err := s.store.LoadAll(ctx, docstore.CollectionRequests, docstore.Eq("customerId", customerID))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "failed to load requests")
	}
	out, errs := models.DecodeAll(docs, models.RequestFromDocument)
	for _, decodeErr := range errs {
		s.logg.Warn(s.logg.WithField(ctx, "error", decodeErr.Error()), "requests.document.invalid")
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt > out[j].CreatedAt })
	return out, nil
}

// Cancel withdraws a broadcast request and rejects its pending quotes. Once an
// offer holds the acceptance lock the request can no longer be cancelled.
func (s *service) Cancel(ctx context.Context, customerID, requestID string) (*models.ProductRequest, error) {
	request, err := s.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if request.CustomerID != customerID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "request belongs to another customer")
	}
	if request.Status == enums.RequestStatusCancelled {
		return request, nil
	}

	doc, err := s.store.Write(ctx, docstore.CollectionRequests, requestID,
		map[string]any{"status": enums.RequestStatusCancelled},
		docstore.When("status", enums.RequestStatusBroadcasted),
		docstore.When("acceptedOfferId", nil),
	)
	if errors.Is(err, docstore.ErrPreconditionFailed) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStateConflict, err, "request already has an accepted offer")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "failed to cancel request")
	}
	cancelled, err := models.RequestFromDocument(*doc)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "stored request is invalid")
	}
	s.rejectPendingOffers(s.logg.WithProductRequest(ctx, requestID), requestID)
	return &cancelled, nil
}

// rejectPendingOffers runs after the cancel is stored, so failures are only
// logged. Offers that land afterwards see the cancelled request and withdraw
// themselves.
func (s *service) rejectPendingOffers(ctx context.Context, requestID string) {
	docs, err := s.store.LoadAll(ctx, docstore.CollectionOffers, docstore.Eq("requestId", requestID))
	if err != nil {
		s.logg.Error(ctx, "requests.cancel.offers_unavailable", err)
		return
	}
	var errs error
	rejected := 0
	for _, doc := range docs {
		_, err := s.store.Write(ctx, docstore.CollectionOffers, doc.ID,
			map[string]any{"status": enums.OfferStatusRejected},
			docstore.When("status", enums.OfferStatusPending),
		)
		switch {
		case err == nil:
			rejected++
		case errors.Is(err, docstore.ErrPreconditionFailed):
		default:
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", doc.ID, err))
		}
	}
	if errs != nil {
		s.logg.Error(ctx, "requests.cancel.reject_failed", errs)
	}
	s.logg.Info(s.logg.WithField(ctx, "rejected_offers", rejected), "requests.cancelled")
}

func orDefault(value, fallback string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return fallback
}
