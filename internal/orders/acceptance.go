package orders

import (
	"context"
	"errors"
	"time"

	"github.com/locallink/locallink-backend/pkg/docstore"
	"github.com/locallink/locallink-backend/pkg/enums"
	pkgerrors "github.com/locallink/locallink-backend/pkg/errors"
	"github.com/locallink/locallink-backend/pkg/metrics"
	"github.com/locallink/locallink-backend/pkg/models"
	"github.com/locallink/locallink-backend/pkg/outbox"
	"github.com/locallink/locallink-backend/pkg/outbox/payloads"
	"go.uber.org/multierr"
)

const opAcceptOffer = "accept_offer"

// OrderIDForOffer derives the order id from the accepted offer, so retries of
// the same acceptance converge on one order document.
func OrderIDForOffer(offerID string) string {
	return "order_" + offerID
}

// AcceptOffer turns an offer into an order. The request's acceptedOfferId is
// claimed first with a conditional write, so of two concurrent acceptances
// on one request only the first proceeds. The remaining steps are idempotent
// and recorded on the order's acceptanceStep marker.
func (s *service) AcceptOffer(ctx context.Context, input AcceptOfferInput) (*models.Order, error) {
	if input.OfferID == "" || input.RequestID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "offer id and request id required")
	}
	if input.CustomerID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "customer identity missing")
	}
	ctx = s.logg.WithField(s.logg.WithProductRequest(ctx, input.RequestID), "offer_id", input.OfferID)

	offer, request, err := s.loadAcceptancePair(ctx, input)
	if err != nil {
		s.metrics.ObserveTransition(opAcceptOffer, outcomeFor(err))
		return nil, err
	}

	if err := s.lockRequest(ctx, request, offer.ID); err != nil {
		s.metrics.ObserveTransition(opAcceptOffer, outcomeFor(err))
		return nil, err
	}

	order, err := s.complete(ctx, input, offer, request)
	s.metrics.ObserveTransition(opAcceptOffer, outcomeFor(err))
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithOrderID(ctx, order.ID), "orders.accept.committed")
	return order, nil
}

// complete writes the order for a locked request and drives the remaining
// steps. If the order could not be written the lock is handed back so other
// offers stay acceptable.
func (s *service) complete(ctx context.Context, input AcceptOfferInput, offer models.Offer, request models.ProductRequest) (*models.Order, error) {
	order, err := s.createOrder(ctx, input, offer, request)
	if err != nil {
		s.releaseLock(ctx, request.ID, offer.ID)
		return nil, err
	}

	rejected, err := s.drive(ctx, order)
	if err != nil {
		return nil, err
	}

	s.emit(ctx, outbox.DomainEvent{
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         &outbox.ActorRef{ActorID: input.CustomerID, Role: enums.ActorRoleCustomer},
		Data: payloads.OrderCreatedEvent{
			OrderID:         order.ID,
			RequestID:       order.RequestID,
			OfferID:         order.OfferID,
			CustomerID:      order.CustomerID,
			ShopID:          order.ShopID,
			City:            order.City,
			AmountToCollect: order.AmountToCollect,
			TownHub:         order.IsTownHubOrder,
			RejectedOffers:  rejected,
		},
	})
	return order, nil
}

func (s *service) loadAcceptancePair(ctx context.Context, input AcceptOfferInput) (models.Offer, models.ProductRequest, error) {
	offerDoc, err := s.store.Get(ctx, docstore.CollectionOffers, input.OfferID)
	if err != nil {
		return models.Offer{}, models.ProductRequest{}, storeError(err, "offer")
	}
	offer, err := models.OfferFromDocument(*offerDoc)
	if err != nil {
		return models.Offer{}, models.ProductRequest{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "stored offer is invalid")
	}
	requestDoc, err := s.store.Get(ctx, docstore.CollectionRequests, input.RequestID)
	if err != nil {
		return models.Offer{}, models.ProductRequest{}, storeError(err, "request")
	}
	request, err := models.RequestFromDocument(*requestDoc)
	if err != nil {
		return models.Offer{}, models.ProductRequest{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "stored request is invalid")
	}

	if offer.RequestID != request.ID {
		return offer, request, pkgerrors.New(pkgerrors.CodeValidation, "offer does not belong to request")
	}
	if input.ShopID != "" && input.ShopID != offer.ShopID {
		return offer, request, pkgerrors.New(pkgerrors.CodeValidation, "offer does not belong to shop")
	}
	if request.CustomerID != input.CustomerID || offer.CustomerID != input.CustomerID {
		return offer, request, pkgerrors.New(pkgerrors.CodeForbidden, "request belongs to another customer")
	}
	if request.AcceptedOfferID != "" && request.AcceptedOfferID != offer.ID {
		return offer, request, pkgerrors.New(pkgerrors.CodeConflict, "request already has an accepted offer")
	}
	if offer.Status == enums.OfferStatusRejected {
		return offer, request, pkgerrors.New(pkgerrors.CodeConflict, "offer was already rejected")
	}
	switch request.Status {
	case enums.RequestStatusBroadcasted:
	case enums.RequestStatusFulfilled:
		if request.AcceptedOfferID != offer.ID {
			return offer, request, pkgerrors.New(pkgerrors.CodeStateConflict, "request is no longer open")
		}
	default:
		return offer, request, pkgerrors.New(pkgerrors.CodeStateConflict, "request is not accepting offers")
	}
	return offer, request, nil
}

func (s *service) lockRequest(ctx context.Context, request models.ProductRequest, offerID string) error {
	_, err := s.store.Write(ctx, docstore.CollectionRequests, request.ID,
		map[string]any{"acceptedOfferId": offerID, "acceptanceLockedAt": s.now().UnixMilli()},
		docstore.When("acceptedOfferId", nil, offerID),
		docstore.When("status", enums.RequestStatusBroadcasted, enums.RequestStatusFulfilled),
	)
	if errors.Is(err, docstore.ErrPreconditionFailed) {
		return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "request already has an accepted offer")
	}
	if err != nil {
		return storeError(err, "request")
	}
	return nil
}

// releaseLock clears the acceptance lock when offerID still holds it, the
// request is still open and no order was written for the offer. Failures are
// logged; RecoverOrphanedLocks picks up whatever stays locked.
func (s *service) releaseLock(ctx context.Context, requestID, offerID string) {
	ctx = context.WithoutCancel(ctx)
	_, err := s.store.Get(ctx, docstore.CollectionOrders, OrderIDForOffer(offerID))
	if err == nil {
		return
	}
	if !errors.Is(err, docstore.ErrNotFound) {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "orders.accept.release_skipped")
		return
	}
	_, err = s.store.Write(ctx, docstore.CollectionRequests, requestID,
		map[string]any{"acceptedOfferId": nil, "acceptanceLockedAt": nil},
		docstore.When("acceptedOfferId", offerID),
		docstore.When("status", enums.RequestStatusBroadcasted),
	)
	switch {
	case err == nil:
		s.logg.Info(ctx, "orders.accept.lock_released")
	case errors.Is(err, docstore.ErrPreconditionFailed):
	default:
		s.logg.Error(ctx, "orders.accept.release_failed", err)
	}
}

func (s *service) createOrder(ctx context.Context, input AcceptOfferInput, offer models.Offer, request models.ProductRequest) (*models.Order, error) {
	shop, err := s.profile(ctx, offer.ShopID)
	if err != nil {
		return nil, err
	}
	customer, err := s.profile(ctx, request.CustomerID)
	if err != nil {
		return nil, err
	}

	now := s.now().UnixMilli()
	order := models.Order{
		ID:              OrderIDForOffer(offer.ID),
		RequestID:       request.ID,
		OfferID:         offer.ID,
		CustomerID:      request.CustomerID,
		CustomerName:    firstNonEmpty(customer.Name, request.CustomerName),
		CustomerPhone:   customer.PhoneNumber,
		ShopID:          offer.ShopID,
		ShopName:        firstNonEmpty(offer.ShopName, shop.ShopName),
		ShopPhone:       shop.PhoneNumber,
		ShopAddress:     shop.Address,
		Category:        request.Category,
		ItemDescription: request.Description,
		DeliveryAddress: firstNonEmpty(input.DeliveryAddress, customer.Address),
		AmountToCollect: offer.Price,
		PinCode:         request.PinCode,
		City:            request.City,
		Status:          enums.OrderStatusPendingAssignment,
		CreatedAt:       now,
		IsTownHubOrder:  offer.IsTownHub(),

		AcceptanceStep:      enums.AcceptanceOrderCreated,
		AcceptanceUpdatedAt: now,
	}
	if order.IsTownHubOrder {
		order.ShopName = models.TownHubName
	}

	fields, err := docstore.Fields(order)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to encode order")
	}
	doc, err := s.store.Write(ctx, docstore.CollectionOrders, order.ID, fields, docstore.IfAbsent())
	if errors.Is(err, docstore.ErrPreconditionFailed) {
		// a previous attempt already created it; continue from its marker
		existing, _, loadErr := s.loadOrder(ctx, order.ID)
		if loadErr != nil {
			return nil, loadErr
		}
		return &existing, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "failed to create order")
	}
	return orderFromWrite(doc)
}

// profile loads a user for enrichment. Missing profiles (Town Hub, deleted
// users) leave the enrichment fields empty.
func (s *service) profile(ctx context.Context, id string) (models.Actor, error) {
	if id == models.TownHubID {
		return models.Actor{ID: id, ShopName: models.TownHubName}, nil
	}
	doc, err := s.store.Get(ctx, docstore.CollectionUsers, id)
	if errors.Is(err, docstore.ErrNotFound) {
		return models.Actor{ID: id}, nil
	}
	if err != nil {
		return models.Actor{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "failed to load profile")
	}
	actor, err := models.ActorFromDocument(*doc)
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "orders.profile.invalid")
		return models.Actor{ID: id}, nil
	}
	return actor, nil
}

// drive runs every acceptance step the order's marker has not reached yet.
// It returns the ids of the offers it rejected.
func (s *service) drive(ctx context.Context, order *models.Order) ([]string, error) {
	var rejected []string
	if !order.AcceptanceStep.Reached(enums.AcceptanceRivalsRejected) {
		ids, err := s.rejectRivals(ctx, order)
		if err != nil {
			return nil, err
		}
		rejected = ids
		if err := s.mark(ctx, order, enums.AcceptanceRivalsRejected); err != nil {
			return nil, err
		}
	}

	if !order.AcceptanceStep.Reached(enums.AcceptanceOfferAccepted) {
		_, err := s.store.Write(ctx, docstore.CollectionOffers, order.OfferID,
			map[string]any{"status": enums.OfferStatusAccepted},
			docstore.When("status", enums.OfferStatusPending, enums.OfferStatusAccepted, nil),
		)
		if errors.Is(err, docstore.ErrPreconditionFailed) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "offer can no longer be accepted")
		}
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "failed to accept offer")
		}
		if err := s.mark(ctx, order, enums.AcceptanceOfferAccepted); err != nil {
			return nil, err
		}
	}

	if !order.AcceptanceStep.Reached(enums.AcceptanceCommitted) {
		// a lock released by a failed concurrent attempt is taken back here
		_, err := s.store.Write(ctx, docstore.CollectionRequests, order.RequestID,
			map[string]any{"status": enums.RequestStatusFulfilled, "acceptedOfferId": order.OfferID},
			docstore.When("acceptedOfferId", nil, order.OfferID),
			docstore.When("status", enums.RequestStatusBroadcasted, enums.RequestStatusFulfilled),
		)
		if errors.Is(err, docstore.ErrPreconditionFailed) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "request is locked by another offer")
		}
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "failed to fulfil request")
		}
		if err := s.mark(ctx, order, enums.AcceptanceCommitted); err != nil {
			return nil, err
		}

		// offers written while the saga ran; quoting re-checks the request
		// too, so whichever side runs last rejects them
		late, err := s.rejectRivals(ctx, order)
		if err != nil {
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "orders.accept.late_sweep_failed")
		}
		rejected = append(rejected, late...)
	}
	return rejected, nil
}

func (s *service) rejectRivals(ctx context.Context, order *models.Order) ([]string, error) {
	docs, err := s.store.LoadAll(ctx, docstore.CollectionOffers, docstore.Eq("requestId", order.RequestID))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "failed to load competing offers")
	}
	var rejected []string
	for _, doc := range docs {
		if doc.ID == order.OfferID {
			continue
		}
		_, err := s.store.Write(ctx, docstore.CollectionOffers, doc.ID,
			map[string]any{"status": enums.OfferStatusRejected},
			docstore.When("status", enums.OfferStatusPending, nil),
		)
		if errors.Is(err, docstore.ErrPreconditionFailed) {
			continue
		}
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "failed to reject competing offer")
		}
		rejected = append(rejected, doc.ID)
	}
	return rejected, nil
}

// mark advances the persisted saga marker. Losing the conditional write means
// a concurrent resumer already moved it, which is fine.
func (s *service) mark(ctx context.Context, order *models.Order, step enums.AcceptanceStep) error {
	now := s.now().UnixMilli()
	_, err := s.store.Write(ctx, docstore.CollectionOrders, order.ID,
		map[string]any{"acceptanceStep": step, "acceptanceUpdatedAt": now},
		docstore.When("acceptanceStep", order.AcceptanceStep),
	)
	if err != nil && !errors.Is(err, docstore.ErrPreconditionFailed) {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "failed to record acceptance progress")
	}
	order.AcceptanceStep = step
	order.AcceptanceUpdatedAt = now
	return nil
}

// ResumeAcceptance replays the outstanding steps of an interrupted acceptance.
func (s *service) ResumeAcceptance(ctx context.Context, orderID string) (*models.Order, error) {
	if orderID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, _, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !order.AcceptanceStep.InFlight() {
		return &order, nil
	}
	from := order.AcceptanceStep
	ctx = s.logg.WithOrderID(ctx, order.ID)
	if _, err := s.drive(ctx, &order); err != nil {
		s.metrics.ObserveTransition("resume_acceptance", outcomeFor(err))
		return nil, err
	}
	s.metrics.ObserveTransition("resume_acceptance", metrics.OutcomeOK)
	s.emit(ctx, outbox.DomainEvent{
		EventType:     enums.EventAcceptanceResumed,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Data:          payloads.AcceptanceResumedEvent{OrderID: order.ID, FromStep: from},
	})
	s.logg.Info(s.logg.WithField(ctx, "from_step", string(from)), "orders.accept.resumed")
	return &order, nil
}

// RecoverOrphanedLocks handles requests whose acceptance lock is older than
// olderThan while no order exists for the locked offer. The acceptance is
// completed when the offer is still acceptable, otherwise the lock is
// released. It returns the ids of the orders it created.
func (s *service) RecoverOrphanedLocks(ctx context.Context, olderThan time.Duration) ([]string, error) {
	docs, err := s.store.LoadAll(ctx, docstore.CollectionRequests, docstore.Eq("status", enums.RequestStatusBroadcasted))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "failed to load requests")
	}
	requests, decodeErrs := models.DecodeAll(docs, models.RequestFromDocument)
	if len(decodeErrs) > 0 {
		s.logg.Warn(s.logg.WithField(ctx, "error", multierr.Combine(decodeErrs...).Error()), "orders.document.invalid")
	}

	cutoff := s.now().Add(-olderThan).UnixMilli()
	var recovered []string
	var errs error
	for _, request := range requests {
		if request.AcceptedOfferID == "" || request.AcceptanceLockedAt > cutoff {
			continue
		}
		_, err := s.store.Get(ctx, docstore.CollectionOrders, OrderIDForOffer(request.AcceptedOfferID))
		if err == nil {
			continue
		}
		if !errors.Is(err, docstore.ErrNotFound) {
			errs = multierr.Append(errs, storeError(err, "order"))
			continue
		}

		rctx := s.logg.WithField(s.logg.WithProductRequest(ctx, request.ID), "offer_id", request.AcceptedOfferID)
		input := AcceptOfferInput{OfferID: request.AcceptedOfferID, RequestID: request.ID, CustomerID: request.CustomerID}
		offer, locked, err := s.loadAcceptancePair(rctx, input)
		if err != nil {
			if !unacceptable(err) {
				errs = multierr.Append(errs, err)
				continue
			}
			s.logg.Warn(s.logg.WithField(rctx, "error", err.Error()), "orders.accept.orphan_unacceptable")
			s.releaseLock(rctx, input.RequestID, input.OfferID)
			continue
		}
		order, err := s.complete(rctx, input, offer, locked)
		s.metrics.ObserveTransition("recover_acceptance", outcomeFor(err))
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		s.logg.Info(s.logg.WithOrderID(rctx, order.ID), "orders.accept.recovered")
		recovered = append(recovered, order.ID)
	}
	return recovered, errs
}

// StalledAcceptances lists in-flight acceptances whose marker has not moved
// for olderThan.
func (s *service) StalledAcceptances(ctx context.Context, olderThan time.Duration) ([]models.Order, error) {
	docs, err := s.store.LoadAll(ctx, docstore.CollectionOrders)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "failed to load orders")
	}
	orders, errs := models.DecodeAll(docs, models.OrderFromDocument)
	if len(errs) > 0 {
		s.logg.Warn(s.logg.WithField(ctx, "error", multierr.Combine(errs...).Error()), "orders.document.invalid")
	}
	cutoff := s.now().Add(-olderThan).UnixMilli()
	var out []models.Order
	for _, o := range orders {
		if o.AcceptanceStep.InFlight() && o.AcceptanceUpdatedAt <= cutoff {
			out = append(out, o)
		}
	}
	sortNewestFirst(out)
	return out, nil
}

// unacceptable reports errors that mean the offer can never be accepted, as
// opposed to a failed dependency worth retrying.
func unacceptable(err error) bool {
	for _, code := range []pkgerrors.Code{
		pkgerrors.CodeNotFound,
		pkgerrors.CodeConflict,
		pkgerrors.CodeStateConflict,
		pkgerrors.CodeForbidden,
		pkgerrors.CodeValidation,
	} {
		if pkgerrors.IsCode(err, code) {
			return true
		}
	}
	return false
}

func outcomeFor(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case pkgerrors.IsCode(err, pkgerrors.CodeConflict),
		pkgerrors.IsCode(err, pkgerrors.CodeStateConflict),
		pkgerrors.IsCode(err, pkgerrors.CodeClaimed):
		return metrics.OutcomeConflict
	default:
		return metrics.OutcomeError
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
