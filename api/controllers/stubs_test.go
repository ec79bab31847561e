package controllers

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/locallink/locallink-backend/api/middleware"
	"github.com/locallink/locallink-backend/internal/market"
	"github.com/locallink/locallink-backend/internal/notifications"
	"github.com/locallink/locallink-backend/internal/offers"
	"github.com/locallink/locallink-backend/internal/orders"
	"github.com/locallink/locallink-backend/internal/requests"
	"github.com/locallink/locallink-backend/internal/users"
	"github.com/locallink/locallink-backend/pkg/enums"
	pkgerrors "github.com/locallink/locallink-backend/pkg/errors"
	"github.com/locallink/locallink-backend/pkg/logger"
	"github.com/locallink/locallink-backend/pkg/models"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func addRouteParam(req *http.Request, key, value string) *http.Request {
	routeCtx := chi.RouteContext(req.Context())
	if routeCtx == nil {
		routeCtx = chi.NewRouteContext()
	}
	routeCtx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))
}

func asActor(req *http.Request, id string, role enums.ActorRole) *http.Request {
	return req.WithContext(middleware.WithIdentity(req.Context(), middleware.Identity{ActorID: id, Role: role}))
}

type stubUsers struct {
	actors        map[string]models.Actor
	registerFn    func(ctx context.Context, input users.RegisterInput) (*users.AuthResult, error)
	loginFn       func(ctx context.Context, phone, password string) (*users.AuthResult, error)
	logoutFn      func(ctx context.Context, accessID string) error
	updateFn      func(ctx context.Context, id string, patch users.ProfilePatch) (*models.Actor, error)
	setVerifiedFn func(ctx context.Context, id string, verified bool) (*models.Actor, error)
	listFn        func(ctx context.Context, role enums.ActorRole) ([]models.Actor, error)
}

func (s *stubUsers) Register(ctx context.Context, input users.RegisterInput) (*users.AuthResult, error) {
	if s.registerFn != nil {
		return s.registerFn(ctx, input)
	}
	return nil, nil
}

func (s *stubUsers) Login(ctx context.Context, phone, password string) (*users.AuthResult, error) {
	if s.loginFn != nil {
		return s.loginFn(ctx, phone, password)
	}
	return nil, nil
}

func (s *stubUsers) Logout(ctx context.Context, accessID string) error {
	if s.logoutFn != nil {
		return s.logoutFn(ctx, accessID)
	}
	return nil
}

func (s *stubUsers) Get(_ context.Context, id string) (*models.Actor, error) {
	actor, ok := s.actors[id]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
	}
	return &actor, nil
}

func (s *stubUsers) UpdateProfile(ctx context.Context, id string, patch users.ProfilePatch) (*models.Actor, error) {
	if s.updateFn != nil {
		return s.updateFn(ctx, id, patch)
	}
	return nil, nil
}

func (s *stubUsers) SetVerified(ctx context.Context, id string, verified bool) (*models.Actor, error) {
	if s.setVerifiedFn != nil {
		return s.setVerifiedFn(ctx, id, verified)
	}
	return nil, nil
}

func (s *stubUsers) List(ctx context.Context, role enums.ActorRole) ([]models.Actor, error) {
	if s.listFn != nil {
		return s.listFn(ctx, role)
	}
	return nil, nil
}

type stubRequests struct {
	broadcastFn func(ctx context.Context, customer models.Actor, input requests.BroadcastInput) (*models.ProductRequest, error)
	getFn       func(ctx context.Context, requestID string) (*models.ProductRequest, error)
	listMineFn  func(ctx context.Context, customerID string) ([]models.ProductRequest, error)
	cancelFn    func(ctx context.Context, customerID, requestID string) (*models.ProductRequest, error)
}

func (s *stubRequests) Broadcast(ctx context.Context, customer models.Actor, input requests.BroadcastInput) (*models.ProductRequest, error) {
	if s.broadcastFn != nil {
		return s.broadcastFn(ctx, customer, input)
	}
	return nil, nil
}

func (s *stubRequests) Get(ctx context.Context, requestID string) (*models.ProductRequest, error) {
	if s.getFn != nil {
		return s.getFn(ctx, requestID)
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "request not found")
}

func (s *stubRequests) ListMine(ctx context.Context, customerID string) ([]models.ProductRequest, error) {
	if s.listMineFn != nil {
		return s.listMineFn(ctx, customerID)
	}
	return nil, nil
}

func (s *stubRequests) Cancel(ctx context.Context, customerID, requestID string) (*models.ProductRequest, error) {
	if s.cancelFn != nil {
		return s.cancelFn(ctx, customerID, requestID)
	}
	return nil, nil
}

type stubOffers struct {
	submitFn         func(ctx context.Context, shop models.Actor, input offers.SubmitInput) (*models.Offer, error)
	sendMessageFn    func(ctx context.Context, input offers.MessageInput) (*models.Offer, error)
	rescueFn         func(ctx context.Context, input offers.RescueInput) (*models.Offer, error)
	listForRequestFn func(ctx context.Context, requestID string) ([]models.Offer, error)
	listForShopFn    func(ctx context.Context, shopID string) ([]models.Offer, error)
}

func (s *stubOffers) Submit(ctx context.Context, shop models.Actor, input offers.SubmitInput) (*models.Offer, error) {
	if s.submitFn != nil {
		return s.submitFn(ctx, shop, input)
	}
	return nil, nil
}

func (s *stubOffers) SendMessage(ctx context.Context, input offers.MessageInput) (*models.Offer, error) {
	if s.sendMessageFn != nil {
		return s.sendMessageFn(ctx, input)
	}
	return nil, nil
}

func (s *stubOffers) RescueDeadLead(ctx context.Context, input offers.RescueInput) (*models.Offer, error) {
	if s.rescueFn != nil {
		return s.rescueFn(ctx, input)
	}
	return nil, nil
}

func (s *stubOffers) ListForRequest(ctx context.Context, requestID string) ([]models.Offer, error) {
	if s.listForRequestFn != nil {
		return s.listForRequestFn(ctx, requestID)
	}
	return nil, nil
}

func (s *stubOffers) ListForShop(ctx context.Context, shopID string) ([]models.Offer, error) {
	if s.listForShopFn != nil {
		return s.listForShopFn(ctx, shopID)
	}
	return nil, nil
}

type stubOrders struct {
	acceptFn  func(ctx context.Context, input orders.AcceptOfferInput) (*models.Order, error)
	claimFn   func(ctx context.Context, orderID string, partner models.Actor) (*models.Order, error)
	advanceFn func(ctx context.Context, orderID, partnerID string, next enums.OrderStatus) (*models.Order, error)
	rateFn    func(ctx context.Context, input orders.RateInput) (*orders.RateResult, error)
	finalFn   func(ctx context.Context, orderID string) (*models.Order, error)
	getFn     func(ctx context.Context, orderID string) (*models.Order, error)
	listFn    func(ctx context.Context, actor models.Actor) ([]models.Order, error)
}

func (s *stubOrders) AcceptOffer(ctx context.Context, input orders.AcceptOfferInput) (*models.Order, error) {
	if s.acceptFn != nil {
		return s.acceptFn(ctx, input)
	}
	return nil, nil
}

func (s *stubOrders) ResumeAcceptance(context.Context, string) (*models.Order, error) {
	return nil, nil
}

func (s *stubOrders) StalledAcceptances(context.Context, time.Duration) ([]models.Order, error) {
	return nil, nil
}

func (s *stubOrders) RecoverOrphanedLocks(context.Context, time.Duration) ([]string, error) {
	return nil, nil
}

func (s *stubOrders) ClaimDelivery(ctx context.Context, orderID string, partner models.Actor) (*models.Order, error) {
	if s.claimFn != nil {
		return s.claimFn(ctx, orderID, partner)
	}
	return nil, nil
}

func (s *stubOrders) AdvanceStatus(ctx context.Context, orderID, partnerID string, next enums.OrderStatus) (*models.Order, error) {
	if s.advanceFn != nil {
		return s.advanceFn(ctx, orderID, partnerID, next)
	}
	return nil, nil
}

func (s *stubOrders) Rate(ctx context.Context, input orders.RateInput) (*orders.RateResult, error) {
	if s.rateFn != nil {
		return s.rateFn(ctx, input)
	}
	return nil, nil
}

func (s *stubOrders) FinalizeTownHubPickup(ctx context.Context, orderID string) (*models.Order, error) {
	if s.finalFn != nil {
		return s.finalFn(ctx, orderID)
	}
	return nil, nil
}

func (s *stubOrders) Get(ctx context.Context, orderID string) (*models.Order, error) {
	if s.getFn != nil {
		return s.getFn(ctx, orderID)
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
}

func (s *stubOrders) ListForActor(ctx context.Context, actor models.Actor) ([]models.Order, error) {
	if s.listFn != nil {
		return s.listFn(ctx, actor)
	}
	return nil, nil
}

type stubNotifications struct {
	listFn        func(ctx context.Context, actorID string) (*notifications.Inbox, error)
	markAllReadFn func(ctx context.Context, actorID string) error
	clearFn       func(ctx context.Context, actorID string) error
	recorded      chan []market.Signal
}

func (s *stubNotifications) Notify(context.Context, string, string, enums.NotificationType, bool) error {
	return nil
}

func (s *stubNotifications) RecordSignals(_ context.Context, _ string, signals []market.Signal) error {
	if s.recorded != nil {
		s.recorded <- signals
	}
	return nil
}

func (s *stubNotifications) List(ctx context.Context, actorID string) (*notifications.Inbox, error) {
	if s.listFn != nil {
		return s.listFn(ctx, actorID)
	}
	return &notifications.Inbox{}, nil
}

func (s *stubNotifications) MarkAllRead(ctx context.Context, actorID string) error {
	if s.markAllReadFn != nil {
		return s.markAllReadFn(ctx, actorID)
	}
	return nil
}

func (s *stubNotifications) Clear(ctx context.Context, actorID string) error {
	if s.clearFn != nil {
		return s.clearFn(ctx, actorID)
	}
	return nil
}
