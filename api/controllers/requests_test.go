package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/locallink/locallink-backend/internal/offers"
	"github.com/locallink/locallink-backend/internal/requests"
	"github.com/locallink/locallink-backend/pkg/enums"
	pkgerrors "github.com/locallink/locallink-backend/pkg/errors"
	"github.com/locallink/locallink-backend/pkg/models"
)

func puneUsers() *stubUsers {
	return &stubUsers{actors: map[string]models.Actor{
		"cust_1": {ID: "cust_1", Role: enums.ActorRoleCustomer, Name: "Asha", City: "Pune"},
		"cust_2": {ID: "cust_2", Role: enums.ActorRoleCustomer, Name: "Ravi", City: "Pune"},
		"shop_1": {ID: "shop_1", Role: enums.ActorRoleShopOwner, ShopName: "Sharma Kirana", City: "Pune"},
		"shop_2": {ID: "shop_2", Role: enums.ActorRoleShopOwner, ShopName: "Gupta Stores", City: "Pune"},
		"dp_1":   {ID: "dp_1", Role: enums.ActorRoleDeliveryPartner, Name: "Vikram", City: "Pune"},
	}}
}

func TestBroadcastRequestForwardsActorAndCategory(t *testing.T) {
	var gotActor models.Actor
	var gotInput requests.BroadcastInput
	svc := &stubRequests{broadcastFn: func(_ context.Context, customer models.Actor, input requests.BroadcastInput) (*models.ProductRequest, error) {
		gotActor, gotInput = customer, input
		return &models.ProductRequest{ID: "req_1", CustomerID: customer.ID}, nil
	}}

	body := `{"category":"grocery","description":" Need: Atta\nQuantity: 5kg "}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/requests", strings.NewReader(body))
	req = asActor(req, "cust_1", enums.ActorRoleCustomer)
	resp := httptest.NewRecorder()
	BroadcastRequest(svc, puneUsers(), testLogger())(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
	if gotActor.City != "Pune" {
		t.Fatalf("expected loaded profile, got %+v", gotActor)
	}
	if gotInput.Category != enums.CategoryGrocery || gotInput.Description != "Need: Atta\nQuantity: 5kg" {
		t.Fatalf("unexpected input %+v", gotInput)
	}
}

func TestBroadcastRequestUnknownActor(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/requests", strings.NewReader(`{"description":"x"}`))
	req = asActor(req, "ghost", enums.ActorRoleCustomer)
	resp := httptest.NewRecorder()
	BroadcastRequest(&stubRequests{}, puneUsers(), testLogger())(resp, req)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", resp.Code)
	}
}

func requestWithOffers() (*stubRequests, *stubOffers) {
	reqs := &stubRequests{getFn: func(_ context.Context, id string) (*models.ProductRequest, error) {
		return &models.ProductRequest{ID: id, CustomerID: "cust_1", City: "Pune", Status: enums.RequestStatusBroadcasted}, nil
	}}
	offs := &stubOffers{listForRequestFn: func(_ context.Context, requestID string) ([]models.Offer, error) {
		return []models.Offer{
			{ID: offers.OfferIDFor(requestID, "shop_1"), RequestID: requestID, ShopID: "shop_1", Price: decimal.NewFromInt(150)},
			{ID: offers.OfferIDFor(requestID, "shop_2"), RequestID: requestID, ShopID: "shop_2", Price: decimal.NewFromInt(140)},
		}, nil
	}}
	return reqs, offs
}

func decodeDetail(t *testing.T, resp *httptest.ResponseRecorder) RequestDetail {
	t.Helper()
	var envelope struct {
		Data RequestDetail `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return envelope.Data
}

func TestGetRequestVisibility(t *testing.T) {
	reqs, offs := requestWithOffers()
	handler := GetRequest(reqs, offs, testLogger())

	cases := []struct {
		name   string
		actor  string
		role   enums.ActorRole
		status int
		offers int
	}{
		{name: "owner sees every quote", actor: "cust_1", role: enums.ActorRoleCustomer, status: http.StatusOK, offers: 2},
		{name: "other customer", actor: "cust_2", role: enums.ActorRoleCustomer, status: http.StatusForbidden},
		{name: "shop sees own quote", actor: "shop_2", role: enums.ActorRoleShopOwner, status: http.StatusOK, offers: 1},
		{name: "partner", actor: "dp_1", role: enums.ActorRoleDeliveryPartner, status: http.StatusForbidden},
		{name: "admin", actor: "admin", role: enums.ActorRoleAdmin, status: http.StatusOK, offers: 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/requests/req_1", nil)
			req = addRouteParam(asActor(req, tc.actor, tc.role), "requestId", "req_1")
			resp := httptest.NewRecorder()
			handler(resp, req)

			if resp.Code != tc.status {
				t.Fatalf("expected %d got %d", tc.status, resp.Code)
			}
			if tc.status != http.StatusOK {
				return
			}
			if detail := decodeDetail(t, resp); len(detail.Offers) != tc.offers {
				t.Fatalf("expected %d offers got %d", tc.offers, len(detail.Offers))
			}
		})
	}
}

func TestListMyRequestsDegradesOnStoreOutage(t *testing.T) {
	svc := &stubRequests{listMineFn: func(context.Context, string) ([]models.ProductRequest, error) {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "store unavailable")
	}}
	req := asActor(httptest.NewRequest(http.MethodGet, "/api/v1/requests", nil), "cust_1", enums.ActorRoleCustomer)
	resp := httptest.NewRecorder()
	ListMyRequests(svc, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), `"data":[]`) {
		t.Fatalf("expected empty list, got %s", resp.Body.String())
	}
}

func TestCancelRequestPassesOwner(t *testing.T) {
	svc := &stubRequests{cancelFn: func(_ context.Context, customerID, requestID string) (*models.ProductRequest, error) {
		if customerID != "cust_1" || requestID != "req_9" {
			t.Fatalf("unexpected cancel %s %s", customerID, requestID)
		}
		return &models.ProductRequest{ID: requestID, Status: enums.RequestStatusCancelled}, nil
	}}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/requests/req_9/cancel", nil)
	req = addRouteParam(asActor(req, "cust_1", enums.ActorRoleCustomer), "requestId", "req_9")
	resp := httptest.NewRecorder()
	CancelRequest(svc, testLogger())(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}

func TestSubmitOfferParsesDecimalPrice(t *testing.T) {
	var got offers.SubmitInput
	svc := &stubOffers{submitFn: func(_ context.Context, shop models.Actor, input offers.SubmitInput) (*models.Offer, error) {
		if shop.ShopName != "Sharma Kirana" {
			t.Fatalf("unexpected shop %+v", shop)
		}
		got = input
		return &models.Offer{ID: "o1"}, nil
	}}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/requests/req_1/offers", strings.NewReader(`{"price":"249.50","message":"Fresh stock"}`))
	req = addRouteParam(asActor(req, "shop_1", enums.ActorRoleShopOwner), "requestId", "req_1")
	resp := httptest.NewRecorder()
	SubmitOffer(svc, puneUsers(), testLogger())(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
	if got.RequestID != "req_1" || !got.Price.Equal(decimal.RequireFromString("249.50")) {
		t.Fatalf("unexpected input %+v", got)
	}
}

func TestSubmitOfferConflictMapsTo409(t *testing.T) {
	svc := &stubOffers{submitFn: func(context.Context, models.Actor, offers.SubmitInput) (*models.Offer, error) {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "you already quoted on this request")
	}}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/requests/req_1/offers", strings.NewReader(`{"price":10}`))
	req = addRouteParam(asActor(req, "shop_1", enums.ActorRoleShopOwner), "requestId", "req_1")
	resp := httptest.NewRecorder()
	SubmitOffer(svc, puneUsers(), testLogger())(resp, req)
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", resp.Code)
	}
}

func TestSendOfferMessageUsesCallerAsSender(t *testing.T) {
	svc := &stubOffers{sendMessageFn: func(_ context.Context, input offers.MessageInput) (*models.Offer, error) {
		if input.SenderID != "cust_1" || input.OfferID != "o1" || input.Text != "Kal tak milega?" {
			t.Fatalf("unexpected message %+v", input)
		}
		return &models.Offer{ID: "o1"}, nil
	}}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/offers/o1/messages", strings.NewReader(`{"text":"Kal tak milega?"}`))
	req = addRouteParam(asActor(req, "cust_1", enums.ActorRoleCustomer), "offerId", "o1")
	resp := httptest.NewRecorder()
	SendOfferMessage(svc, testLogger())(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}

func TestAdminRescueDeadLead(t *testing.T) {
	svc := &stubOffers{rescueFn: func(_ context.Context, input offers.RescueInput) (*models.Offer, error) {
		return &models.Offer{ID: offers.OfferIDFor(input.RequestID, models.TownHubID), ShopID: models.TownHubID}, nil
	}}
	req := httptest.NewRequest(http.MethodPost, "/api/admin/v1/requests/req_1/rescue", strings.NewReader(`{"price":"99","message":"Town Hub has it"}`))
	req = addRouteParam(asActor(req, "admin", enums.ActorRoleAdmin), "requestId", "req_1")
	resp := httptest.NewRecorder()
	AdminRescueDeadLead(svc, testLogger())(resp, req)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d", resp.Code)
	}
}
