package offers

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/locallink/locallink-backend/pkg/docstore"
	"github.com/locallink/locallink-backend/pkg/enums"
	pkgerrors "github.com/locallink/locallink-backend/pkg/errors"
	"github.com/locallink/locallink-backend/pkg/logger"
	"github.com/locallink/locallink-backend/pkg/models"
	"github.com/locallink/locallink-backend/pkg/outbox"
	"github.com/locallink/locallink-backend/pkg/outbox/payloads"
	"github.com/sethvargo/go-retry"
)

const (
	chatRetries    = 5
	chatRetryDelay = 10 * time.Millisecond
)

type outboxEmitter interface {
	Emit(ctx context.Context, event outbox.DomainEvent) error
}

// Service handles shop quotes and the chat attached to each quote.
type Service interface {
	Submit(ctx context.Context, shop models.Actor, input SubmitInput) (*models.Offer, error)
	SendMessage(ctx context.Context, input MessageInput) (*models.Offer, error)
	RescueDeadLead(ctx context.Context, input RescueInput) (*models.Offer, error)
	ListForRequest(ctx context.Context, requestID string) ([]models.Offer, error)
	ListForShop(ctx context.Context, shopID string) ([]models.Offer, error)
}

type service struct {
	store  docstore.Store
	outbox outboxEmitter
	logg   *logger.Logger
	now    func() time.Time
}

// NewService builds the offers service. logg is optional.
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
	return &service{store: store, outbox: outbox, logg: logg, now: time.Now}, nil
}

// OfferIDFor derives the offer id from the request and shop, which limits
// every shop to a single quote per request.
func OfferIDFor(requestID, shopID string) string {
	return "offer_" + requestID + "_" + shopID
}

func (s *service) Submit(ctx context.Context, shop models.Actor, input SubmitInput) (*models.Offer, error) {
	if shop.Role != enums.ActorRoleShopOwner {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only shop owners can quote")
	}
	return s.submit(ctx, shop, input)
}

// RescueDeadLead quotes on a request as the Town Hub. Acceptance then takes
// the normal path and produces a Town Hub order.
func (s *service) RescueDeadLead(ctx context.Context, input RescueInput) (*models.Offer, error) {
	hub := models.Actor{
		ID:       models.TownHubID,
		Role:     enums.ActorRoleShopOwner,
		ShopName: models.TownHubName,
		Rating:   5,
	}
	offer, err := s.submit(ctx, hub, SubmitInput{
		RequestID: input.RequestID,
		Price:     input.Price,
		Message:   input.Message,
	})
	if err != nil {
		return nil, err
	}
	s.emit(ctx, outbox.DomainEvent{
		EventType:     enums.EventDeadLeadRescued,
		AggregateType: enums.AggregateRequest,
		AggregateID:   offer.RequestID,
		Actor:         &outbox.ActorRef{ActorID: models.TownHubID, Role: enums.ActorRoleAdmin},
		Data:          payloads.DeadLeadEvent{RequestID: offer.RequestID, OfferID: offer.ID},
	})
	return offer, nil
}

func (s *service) submit(ctx context.Context, shop models.Actor, input SubmitInput) (*models.Offer, error) {
	requestID := strings.TrimSpace(input.RequestID)
	if requestID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "request id required")
	}
	if !input.Price.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "price must be greater than zero")
	}
	ctx = s.logg.WithProductRequest(s.logg.WithActorID(ctx, shop.ID), requestID)

	doc, err := s.store.Get(ctx, docstore.CollectionRequests, requestID)
	if err != nil {
		return nil, storeError(err, "request")
	}
	request, err := models.RequestFromDocument(*doc)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "stored request is invalid")
	}
	if !request.Status.AcceptsOffers() || request.AcceptedOfferID != "" {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "request is no longer taking quotes")
	}
	if request.CustomerID == shop.ID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "cannot quote on your own request")
	}

	offer := models.Offer{
		ID:           OfferIDFor(requestID, shop.ID),
		RequestID:    requestID,
		CustomerID:   request.CustomerID,
		ShopID:       shop.ID,
		ShopName:     firstNonEmpty(shop.ShopName, shop.Name),
		ShopRating:   shop.Rating,
		Price:        input.Price,
		ProductImage: input.ProductImage,
		Message:      strings.TrimSpace(input.Message),
		Status:       enums.OfferStatusPending,
		CreatedAt:    s.now().UnixMilli(),
	}
	fields, err := docstore.Fields(offer)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode offer")
	}
	if _, err := s.store.Write(ctx, docstore.CollectionOffers, offer.ID, fields, docstore.IfAbsent()); err != nil {
		if errors.Is(err, docstore.ErrPreconditionFailed) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "you already quoted on this request")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "failed to save offer")
	}
	if err := s.confirmOpen(ctx, offer); err != nil {
		return nil, err
	}

	s.emit(ctx, outbox.DomainEvent{
		EventType:     enums.EventOfferSubmitted,
		AggregateType: enums.AggregateOffer,
		AggregateID:   offer.ID,
		Actor:         &outbox.ActorRef{ActorID: shop.ID, Role: shop.Role},
		Data: payloads.OfferSubmittedEvent{
			OfferID:   offer.ID,
			RequestID: requestID,
			ShopID:    shop.ID,
			Price:     offer.Price,
			TownHub:   offer.IsTownHub(),
		},
	})
	s.logg.Info(ctx, "offers.submitted")
	return &offer, nil
}

// confirmOpen re-reads the request after the offer is stored. An acceptance or
// cancellation that listed the offers before this one landed would otherwise
// leave it pending on a closed request, so the offer withdraws itself.
func (s *service) confirmOpen(ctx context.Context, offer models.Offer) error {
	doc, err := s.store.Get(ctx, docstore.CollectionRequests, offer.RequestID)
	if err != nil {
		// the acceptance's closing sweep still covers the offer
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "offers.recheck_failed")
		return nil
	}
	request, err := models.RequestFromDocument(*doc)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "stored request is invalid")
	}
	if request.AcceptedOfferID == offer.ID {
		return nil
	}
	if request.Status.AcceptsOffers() && request.AcceptedOfferID == "" {
		return nil
	}

	_, err = s.store.Write(ctx, docstore.CollectionOffers, offer.ID,
		map[string]any{"status": enums.OfferStatusRejected},
		docstore.When("status", enums.OfferStatusPending),
	)
	if err != nil && !errors.Is(err, docstore.ErrPreconditionFailed) {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "failed to withdraw offer")
	}
	s.logg.Info(s.logg.WithField(ctx, "request_status", string(request.Status)), "offers.withdrawn_late")
	return pkgerrors.New(pkgerrors.CodeStateConflict, "request is no longer taking quotes")
}

// SendMessage appends a chat line. Only the offer's customer and shop can
// talk on it. Concurrent appends are serialized on the document revision.
func (s *service) SendMessage(ctx context.Context, input MessageInput) (*models.Offer, error) {
	if input.OfferID == "" || input.SenderID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "offer and sender required")
	}
	text := strings.TrimSpace(input.Text)
	if text == "" && input.Image == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "message is empty")
	}

	var updated models.Offer
	backoff := retry.WithMaxRetries(chatRetries, retry.NewConstant(chatRetryDelay))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		doc, err := s.store.Get(ctx, docstore.CollectionOffers, input.OfferID)
		if err != nil {
			return storeError(err, "offer")
		}
		offer, err := models.OfferFromDocument(*doc)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "stored offer is invalid")
		}
		if input.SenderID != offer.CustomerID && input.SenderID != offer.ShopID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "not a participant of this chat")
		}
		offer.ChatHistory = append(offer.ChatHistory, models.ChatMessage{
			SenderID:  input.SenderID,
			Text:      text,
			Timestamp: s.now().UnixMilli(),
			Image:     input.Image,
		})
		_, err = s.store.Write(ctx, docstore.CollectionOffers, offer.ID,
			map[string]any{"chatHistory": offer.ChatHistory},
			docstore.IfRevision(doc.Revision),
		)
		if errors.Is(err, docstore.ErrPreconditionFailed) {
			return retry.RetryableError(err)
		}
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "failed to send message")
		}
		updated = offer
		return nil
	})
	if errors.Is(err, docstore.ErrPreconditionFailed) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "chat is busy, try again")
	}
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func (s *service) ListForRequest(ctx context.Context, requestID string) ([]models.Offer, error) {
	return s.list(ctx, docstore.Eq("requestId", requestID))
}

func (s *service) ListForShop(ctx context.Context, shopID string) ([]models.Offer, error) {
	return s.list(ctx, docstore.Eq("shopId", shopID))
}

func (s *service) list(ctx context.Context, filter docstore.Filter) ([]models.Offer, error) {
	docs, err := s.store.LoadAll(ctx, docstore.CollectionOffers, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "failed to load offers")
	}
	out, errs := models.DecodeAll(docs, models.OfferFromDocument)
	for _, decodeErr := range errs {
		s.logg.Warn(s.logg.WithField(ctx, "error", decodeErr.Error()), "offers.document.invalid")
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt > out[j].CreatedAt })
	return out, nil
}

func (s *service) emit(ctx context.Context, event outbox.DomainEvent) {
	if err := s.outbox.Emit(ctx, event); err != nil {
		s.logg.Error(s.logg.WithField(ctx, "event_type", event.EventType), "offers.event.emit_failed", err)
	}
}

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

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
