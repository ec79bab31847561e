package orders

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/locallink/locallink-backend/pkg/docstore"
	"github.com/locallink/locallink-backend/pkg/enums"
	pkgerrors "github.com/locallink/locallink-backend/pkg/errors"
	"github.com/locallink/locallink-backend/pkg/metrics"
	"github.com/locallink/locallink-backend/pkg/models"
	"github.com/locallink/locallink-backend/pkg/outbox"
	"github.com/locallink/locallink-backend/pkg/outbox/payloads"
)

// AlreadyClaimedMessage is shown to a partner who lost a delivery job race.
const AlreadyClaimedMessage = "Oops! This delivery job was already taken by someone else."

const (
	opClaimDelivery = "claim_delivery"
	opAdvanceStatus = "advance_status"
)

// ClaimDelivery assigns a pending order to partner. The order is re-read from
// the store and the assignment is conditional on it still being unassigned,
// so exactly one of several concurrent claimants wins.
func (s *service) ClaimDelivery(ctx context.Context, orderID string, partner models.Actor) (*models.Order, error) {
	if orderID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if partner.ID == "" || partner.Role != enums.ActorRoleDeliveryPartner {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only delivery partners can claim jobs")
	}
	ctx = s.logg.WithOrderID(s.logg.WithActorID(ctx, partner.ID), orderID)

	order, _, err := s.loadOrder(ctx, orderID)
	if err != nil {
		s.metrics.ObserveTransition(opClaimDelivery, outcomeFor(err))
		return nil, err
	}
	if order.Status != enums.OrderStatusPendingAssignment {
		s.metrics.ObserveTransition(opClaimDelivery, metrics.OutcomeConflict)
		return nil, pkgerrors.New(pkgerrors.CodeClaimed, AlreadyClaimedMessage)
	}

	doc, err := s.store.Write(ctx, docstore.CollectionOrders, orderID, map[string]any{
		"status":                 enums.OrderStatusAssigned,
		"deliveryPartnerId":      partner.ID,
		"deliveryPartnerName":    partner.Name,
		"deliveryPartnerPhone":   partner.PhoneNumber,
		"deliveryPartnerVehicle": partner.VehicleType,
	}, docstore.When("status", enums.OrderStatusPendingAssignment))
	if errors.Is(err, docstore.ErrPreconditionFailed) {
		s.metrics.ObserveTransition(opClaimDelivery, metrics.OutcomeConflict)
		s.logg.Info(ctx, "orders.claim.lost_race")
		return nil, pkgerrors.Wrap(pkgerrors.CodeClaimed, err, AlreadyClaimedMessage)
	}
	if err != nil {
		s.metrics.ObserveTransition(opClaimDelivery, metrics.OutcomeError)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "failed to claim delivery")
	}

	claimed, err := orderFromWrite(doc)
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveTransition(opClaimDelivery, metrics.OutcomeOK)
	s.emit(ctx, outbox.DomainEvent{
		EventType:     enums.EventDeliveryClaimed,
		AggregateType: enums.AggregateOrder,
		AggregateID:   orderID,
		Actor:         &outbox.ActorRef{ActorID: partner.ID, Role: partner.Role},
		Data:          payloads.DeliveryClaimedEvent{OrderID: orderID, PartnerID: partner.ID},
	})
	s.logg.Info(ctx, "orders.claim.won")
	return claimed, nil
}

// AdvanceStatus moves an order exactly one stage forward on behalf of its
// assigned partner. Submitting the current status again is a no-op.
func (s *service) AdvanceStatus(ctx context.Context, orderID, partnerID string, next enums.OrderStatus) (*models.Order, error) {
	if orderID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if !next.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid order status")
	}
	ctx = s.logg.WithOrderID(s.logg.WithActorID(ctx, partnerID), orderID)

	order, _, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.DeliveryPartnerID == "" || order.DeliveryPartnerID != partnerID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order is not assigned to this partner")
	}
	if order.Status == next {
		s.metrics.ObserveTransition(opAdvanceStatus, metrics.OutcomeNoop)
		return &order, nil
	}
	want, ok := order.Status.Next()
	if !ok || want != next {
		s.metrics.ObserveTransition(opAdvanceStatus, metrics.OutcomeConflict)
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			"order cannot move from "+order.Status.String()+" to "+next.String())
	}

	doc, err := s.store.Write(ctx, docstore.CollectionOrders, orderID,
		map[string]any{"status": next},
		docstore.When("status", order.Status),
		docstore.When("deliveryPartnerId", partnerID),
	)
	if errors.Is(err, docstore.ErrPreconditionFailed) {
		current, _, loadErr := s.loadOrder(ctx, orderID)
		if loadErr == nil && current.Status == next && current.DeliveryPartnerID == partnerID {
			s.metrics.ObserveTransition(opAdvanceStatus, metrics.OutcomeNoop)
			return &current, nil
		}
		s.metrics.ObserveTransition(opAdvanceStatus, metrics.OutcomeConflict)
		return nil, pkgerrors.Wrap(pkgerrors.CodeStateConflict, err, "order changed concurrently")
	}
	if err != nil {
		s.metrics.ObserveTransition(opAdvanceStatus, metrics.OutcomeError)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "failed to update order status")
	}

	updated, err := orderFromWrite(doc)
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveTransition(opAdvanceStatus, metrics.OutcomeOK)
	s.emit(ctx, outbox.DomainEvent{
		EventType:     enums.EventOrderStatusChanged,
		AggregateType: enums.AggregateOrder,
		AggregateID:   orderID,
		Actor:         &outbox.ActorRef{ActorID: partnerID, Role: enums.ActorRoleDeliveryPartner},
		Data: payloads.OrderStatusChangedEvent{
			OrderID:   orderID,
			PartnerID: partnerID,
			From:      order.Status,
			To:        next,
		},
	})
	return updated, nil
}

// FinalizeTownHubPickup records that the admin handed a Town Hub order to its
// courier. Only Town Hub orders qualify and the flag is set once.
func (s *service) FinalizeTownHubPickup(ctx context.Context, orderID string) (*models.Order, error) {
	if orderID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, _, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !order.IsTownHubOrder {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "not a town hub order")
	}
	if order.TownHubPickupFinalized {
		return &order, nil
	}
	doc, err := s.store.Write(ctx, docstore.CollectionOrders, orderID,
		map[string]any{"townHubPickupFinalized": true},
		docstore.When("isTownHubOrder", true),
	)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "failed to finalize pickup")
	}
	return orderFromWrite(doc)
}

func sameCity(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

func sortNewestFirst(orders []models.Order) {
	sort.Slice(orders, func(i, j int) bool {
		if orders[i].CreatedAt != orders[j].CreatedAt {
			return orders[i].CreatedAt > orders[j].CreatedAt
		}
		return orders[i].ID > orders[j].ID
	})
}
