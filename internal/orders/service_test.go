package orders

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/locallink/locallink-backend/pkg/docstore"
	"github.com/locallink/locallink-backend/pkg/enums"
	pkgerrors "github.com/locallink/locallink-backend/pkg/errors"
	"github.com/locallink/locallink-backend/pkg/models"
	"github.com/locallink/locallink-backend/pkg/outbox"
	"github.com/shopspring/decimal"
)

var fixedNow = time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)

type recordingEmitter struct {
	mu     sync.Mutex
	events []outbox.DomainEvent
}

func (r *recordingEmitter) Emit(_ context.Context, event outbox.DomainEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingEmitter) types() []enums.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]enums.EventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.EventType)
	}
	return out
}

// faultyStore fails the writes selected by failWrite.
type faultyStore struct {
	docstore.Store
	mu        sync.Mutex
	failWrite func(c docstore.Collection, id string, fields map[string]any) bool
}

func (f *faultyStore) Write(ctx context.Context, c docstore.Collection, id string, fields map[string]any, opts ...docstore.WriteOption) (*docstore.Document, error) {
	f.mu.Lock()
	fail := f.failWrite != nil && f.failWrite(c, id, fields)
	f.mu.Unlock()
	if fail {
		return nil, errors.New("store unavailable")
	}
	return f.Store.Write(ctx, c, id, fields, opts...)
}

type fixture struct {
	store  docstore.Store
	svc    *service
	events *recordingEmitter
}

func newFixture(t *testing.T, store docstore.Store) *fixture {
	t.Helper()
	if store == nil {
		store = docstore.NewMemoryStore(nil)
	}
	events := &recordingEmitter{}
	svc, err := NewService(store, events, nil, nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	impl := svc.(*service)
	impl.now = func() time.Time { return fixedNow }
	return &fixture{store: store, svc: impl, events: events}
}

func (f *fixture) put(t *testing.T, c docstore.Collection, id string, v any) {
	t.Helper()
	fields, err := docstore.Fields(v)
	if err != nil {
		t.Fatalf("fields: %v", err)
	}
	if _, err := f.store.Write(context.Background(), c, id, fields); err != nil {
		t.Fatalf("write %s/%s: %v", c, id, err)
	}
}

func (f *fixture) offerStatus(t *testing.T, id string) enums.OfferStatus {
	t.Helper()
	doc, err := f.store.Get(context.Background(), docstore.CollectionOffers, id)
	if err != nil {
		t.Fatalf("get offer %s: %v", id, err)
	}
	offer, err := models.OfferFromDocument(*doc)
	if err != nil {
		t.Fatalf("decode offer: %v", err)
	}
	return offer.Status
}

func (f *fixture) request(t *testing.T, id string) models.ProductRequest {
	t.Helper()
	doc, err := f.store.Get(context.Background(), docstore.CollectionRequests, id)
	if err != nil {
		t.Fatalf("get request %s: %v", id, err)
	}
	r, err := models.RequestFromDocument(*doc)
	if err != nil {
		t.Fatalf("decode request: %v", err)
	}
	return r
}

func (f *fixture) user(t *testing.T, id string) models.Actor {
	t.Helper()
	doc, err := f.store.Get(context.Background(), docstore.CollectionUsers, id)
	if err != nil {
		t.Fatalf("get user %s: %v", id, err)
	}
	a, err := models.ActorFromDocument(*doc)
	if err != nil {
		t.Fatalf("decode user: %v", err)
	}
	return a
}

var (
	meera = models.Actor{
		ID: "cust-meera", Role: enums.ActorRoleCustomer, Name: "Meera", PhoneNumber: "9000000001",
		Address: "12 FC Road", PinCode: "411004", City: "Pune", Rating: 5, TotalRatings: 0,
	}
	shopA = models.Actor{
		ID: "shop-a", Role: enums.ActorRoleShopOwner, Name: "Anil", PhoneNumber: "9000000002",
		Address: "Deccan Gymkhana", City: "Pune", Rating: 5, ShopName: "Anil Kirana", Category: enums.CategoryGrocery,
	}
	shopB = models.Actor{
		ID: "shop-b", Role: enums.ActorRoleShopOwner, Name: "Bela", PhoneNumber: "9000000003",
		Address: "Kothrud", City: "Pune", Rating: 5, ShopName: "Bela Stores", Category: enums.CategoryGrocery,
	}
	partnerD1 = models.Actor{
		ID: "d1", Role: enums.ActorRoleDeliveryPartner, Name: "Dev", PhoneNumber: "9000000004",
		City: "Pune", Rating: 4.8, VehicleType: "scooter",
	}
	partnerD2 = models.Actor{
		ID: "d2", Role: enums.ActorRoleDeliveryPartner, Name: "Divya", PhoneNumber: "9000000005",
		City: "Pune", Rating: 4.8, VehicleType: "bike",
	}
)

// seedPune writes the grocery scenario: one broadcast request with quotes
// from two shops.
func seedPune(t *testing.T, f *fixture) {
	t.Helper()
	for _, a := range []models.Actor{meera, shopA, shopB, partnerD1, partnerD2} {
		f.put(t, docstore.CollectionUsers, a.ID, a)
	}
	f.put(t, docstore.CollectionRequests, "r1", models.ProductRequest{
		ID: "r1", CustomerID: meera.ID, CustomerName: meera.Name, PinCode: "411004", City: "Pune",
		Category: enums.CategoryGrocery, Description: "5kg atta and 1L ghee",
		Status: enums.RequestStatusBroadcasted, CreatedAt: fixedNow.Add(-time.Hour).UnixMilli(),
	})
	for _, o := range []models.Offer{
		{ID: "oA", RequestID: "r1", CustomerID: meera.ID, ShopID: shopA.ID, ShopName: shopA.ShopName, Price: decimal.NewFromInt(120)},
		{ID: "oB", RequestID: "r1", CustomerID: meera.ID, ShopID: shopB.ID, ShopName: shopB.ShopName, Price: decimal.RequireFromString("99.50")},
	} {
		o.Status = enums.OfferStatusPending
		o.CreatedAt = fixedNow.Add(-30 * time.Minute).UnixMilli()
		f.put(t, docstore.CollectionOffers, o.ID, o)
	}
}

func acceptInput(offerID string) AcceptOfferInput {
	return AcceptOfferInput{OfferID: offerID, RequestID: "r1", CustomerID: meera.ID}
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	if _, err := NewService(nil, &recordingEmitter{}, nil, nil); err == nil {
		t.Fatal("expected error for missing store")
	}
	if _, err := NewService(docstore.NewMemoryStore(nil), nil, nil, nil); err == nil {
		t.Fatal("expected error for missing emitter")
	}
}

func TestAcceptOfferPuneScenario(t *testing.T) {
	f := newFixture(t, nil)
	seedPune(t, f)

	order, err := f.svc.AcceptOffer(context.Background(), acceptInput("oB"))
	if err != nil {
		t.Fatalf("AcceptOffer: %v", err)
	}

	if order.ID != "order_oB" || order.Status != enums.OrderStatusPendingAssignment {
		t.Fatalf("unexpected order %+v", order)
	}
	if order.AcceptanceStep != enums.AcceptanceCommitted {
		t.Fatalf("expected committed marker, got %q", order.AcceptanceStep)
	}
	if !order.AmountToCollect.Equal(decimal.RequireFromString("99.5")) {
		t.Fatalf("unexpected amount %s", order.AmountToCollect)
	}
	if order.ShopPhone != shopB.PhoneNumber || order.ShopAddress != shopB.Address {
		t.Fatalf("shop enrichment missing: %+v", order)
	}
	if order.CustomerPhone != meera.PhoneNumber || order.DeliveryAddress != meera.Address {
		t.Fatalf("customer enrichment missing: %+v", order)
	}
	if order.Category != enums.CategoryGrocery || order.ItemDescription != "5kg atta and 1L ghee" {
		t.Fatalf("request enrichment missing: %+v", order)
	}

	if got := f.offerStatus(t, "oA"); got != enums.OfferStatusRejected {
		t.Fatalf("expected rival rejected, got %q", got)
	}
	if got := f.offerStatus(t, "oB"); got != enums.OfferStatusAccepted {
		t.Fatalf("expected offer accepted, got %q", got)
	}
	req := f.request(t, "r1")
	if req.Status != enums.RequestStatusFulfilled || req.AcceptedOfferID != "oB" {
		t.Fatalf("unexpected request state %+v", req)
	}

	stored, err := f.svc.Get(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if stored.AcceptanceStep != enums.AcceptanceCommitted {
		t.Fatalf("expected stored marker committed, got %q", stored.AcceptanceStep)
	}

	types := f.events.types()
	if len(types) != 1 || types[0] != enums.EventOrderCreated {
		t.Fatalf("unexpected events %v", types)
	}
}

func TestAcceptOfferIsIdempotentForSameOffer(t *testing.T) {
	f := newFixture(t, nil)
	seedPune(t, f)

	first, err := f.svc.AcceptOffer(context.Background(), acceptInput("oB"))
	if err != nil {
		t.Fatalf("first accept: %v", err)
	}
	second, err := f.svc.AcceptOffer(context.Background(), acceptInput("oB"))
	if err != nil {
		t.Fatalf("repeat accept: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected same order, got %s and %s", first.ID, second.ID)
	}
}

func TestSecondAcceptanceOfDifferentOfferConflicts(t *testing.T) {
	f := newFixture(t, nil)
	seedPune(t, f)

	if _, err := f.svc.AcceptOffer(context.Background(), acceptInput("oB")); err != nil {
		t.Fatalf("accept oB: %v", err)
	}
	_, err := f.svc.AcceptOffer(context.Background(), acceptInput("oA"))
	if !pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if _, err := f.store.Get(context.Background(), docstore.CollectionOrders, "order_oA"); !errors.Is(err, docstore.ErrNotFound) {
		t.Fatalf("expected no order for losing offer, got %v", err)
	}
}

func TestConcurrentAcceptanceHasSingleWinner(t *testing.T) {
	f := newFixture(t, nil)
	seedPune(t, f)

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i, offerID := range []string{"oA", "oB"} {
		wg.Add(1)
		go func(i int, offerID string) {
			defer wg.Done()
			_, results[i] = f.svc.AcceptOffer(context.Background(), acceptInput(offerID))
		}(i, offerID)
	}
	wg.Wait()

	wins := 0
	for _, err := range results {
		if err == nil {
			wins++
			continue
		}
		if !pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
			t.Fatalf("loser should see a conflict, got %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins)
	}
	docs, err := f.store.LoadAll(context.Background(), docstore.CollectionOrders)
	if err != nil {
		t.Fatalf("load orders: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("expected one order, got %d", len(docs))
	}
	accepted := 0
	for _, id := range []string{"oA", "oB"} {
		if f.offerStatus(t, id) == enums.OfferStatusAccepted {
			accepted++
		}
	}
	if accepted != 1 {
		t.Fatalf("expected one accepted offer, got %d", accepted)
	}
}

func TestResumeAfterFailedRivalRejection(t *testing.T) {
	mem := docstore.NewMemoryStore(nil)
	faulty := &faultyStore{Store: mem}
	faulty.failWrite = func(c docstore.Collection, id string, _ map[string]any) bool {
		return c == docstore.CollectionOffers && id == "oA"
	}
	f := newFixture(t, faulty)
	seedPuneWith(t, f, mem)

	_, err := f.svc.AcceptOffer(context.Background(), acceptInput("oB"))
	if !pkgerrors.IsCode(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency error, got %v", err)
	}
	stalled, err := f.svc.Get(context.Background(), "order_oB")
	if err != nil {
		t.Fatalf("order should exist after partial failure: %v", err)
	}
	if stalled.AcceptanceStep != enums.AcceptanceOrderCreated {
		t.Fatalf("expected order_created marker, got %q", stalled.AcceptanceStep)
	}

	f.svc.now = func() time.Time { return fixedNow.Add(5 * time.Minute) }
	pending, err := f.svc.StalledAcceptances(context.Background(), 2*time.Minute)
	if err != nil {
		t.Fatalf("StalledAcceptances: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != "order_oB" {
		t.Fatalf("expected stalled order_oB, got %+v", pending)
	}

	faulty.mu.Lock()
	faulty.failWrite = nil
	faulty.mu.Unlock()

	resumed, err := f.svc.ResumeAcceptance(context.Background(), "order_oB")
	if err != nil {
		t.Fatalf("ResumeAcceptance: %v", err)
	}
	if resumed.AcceptanceStep != enums.AcceptanceCommitted {
		t.Fatalf("expected committed, got %q", resumed.AcceptanceStep)
	}
	if got := f.offerStatus(t, "oA"); got != enums.OfferStatusRejected {
		t.Fatalf("expected rival rejected after resume, got %q", got)
	}
	if got := f.request(t, "r1").Status; got != enums.RequestStatusFulfilled {
		t.Fatalf("expected request fulfilled, got %q", got)
	}
	pending, err = f.svc.StalledAcceptances(context.Background(), 0)
	if err != nil || len(pending) != 0 {
		t.Fatalf("expected nothing stalled, got %v %v", pending, err)
	}

	// resuming a committed order is a no-op
	if _, err := f.svc.ResumeAcceptance(context.Background(), "order_oB"); err != nil {
		t.Fatalf("second resume: %v", err)
	}
	types := f.events.types()
	if len(types) != 1 || types[0] != enums.EventAcceptanceResumed {
		t.Fatalf("unexpected events %v", types)
	}
}

func seedPuneWith(t *testing.T, f *fixture, direct docstore.Store) {
	t.Helper()
	seedPune(t, &fixture{store: direct})
}

func TestAcceptOfferRejectsForeignCustomer(t *testing.T) {
	f := newFixture(t, nil)
	seedPune(t, f)
	input := acceptInput("oB")
	input.CustomerID = "someone-else"
	if _, err := f.svc.AcceptOffer(context.Background(), input); !pkgerrors.IsCode(err, pkgerrors.CodeForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	input = acceptInput("missing")
	if _, err := f.svc.AcceptOffer(context.Background(), input); !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func acceptedOrder(t *testing.T, f *fixture) *models.Order {
	t.Helper()
	seedPune(t, f)
	order, err := f.svc.AcceptOffer(context.Background(), acceptInput("oB"))
	if err != nil {
		t.Fatalf("AcceptOffer: %v", err)
	}
	return order
}

func TestClaimDeliveryRace(t *testing.T) {
	f := newFixture(t, nil)
	order := acceptedOrder(t, f)

	var wg sync.WaitGroup
	partners := []models.Actor{partnerD1, partnerD2}
	results := make([]error, len(partners))
	for i, p := range partners {
		wg.Add(1)
		go func(i int, p models.Actor) {
			defer wg.Done()
			_, results[i] = f.svc.ClaimDelivery(context.Background(), order.ID, p)
		}(i, p)
	}
	wg.Wait()

	winner := ""
	for i, err := range results {
		if err == nil {
			if winner != "" {
				t.Fatalf("two partners won the claim")
			}
			winner = partners[i].ID
			continue
		}
		if !pkgerrors.IsCode(err, pkgerrors.CodeClaimed) {
			t.Fatalf("loser should see already-claimed, got %v", err)
		}
	}
	if winner == "" {
		t.Fatal("expected one winner")
	}

	stored, err := f.svc.Get(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if stored.Status != enums.OrderStatusAssigned || stored.DeliveryPartnerID != winner {
		t.Fatalf("unexpected assignment %+v", stored)
	}

	// a late claim sees the job as taken without writing
	_, err = f.svc.ClaimDelivery(context.Background(), order.ID, partnerD1)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeClaimed || typed.Message() != AlreadyClaimedMessage {
		t.Fatalf("expected already-claimed message, got %v", err)
	}
}

func TestClaimDeliveryRequiresPartner(t *testing.T) {
	f := newFixture(t, nil)
	order := acceptedOrder(t, f)
	if _, err := f.svc.ClaimDelivery(context.Background(), order.ID, shopA); !pkgerrors.IsCode(err, pkgerrors.CodeForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestAdvanceStatusIsStrictAndMonotonic(t *testing.T) {
	f := newFixture(t, nil)
	order := acceptedOrder(t, f)
	ctx := context.Background()
	if _, err := f.svc.ClaimDelivery(ctx, order.ID, partnerD1); err != nil {
		t.Fatalf("claim: %v", err)
	}

	if _, err := f.svc.AdvanceStatus(ctx, order.ID, partnerD1.ID, enums.OrderStatusDelivered); !pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("skipping collected should conflict, got %v", err)
	}
	if _, err := f.svc.AdvanceStatus(ctx, order.ID, partnerD2.ID, enums.OrderStatusCollected); !pkgerrors.IsCode(err, pkgerrors.CodeForbidden) {
		t.Fatalf("other partner should be forbidden, got %v", err)
	}

	collected, err := f.svc.AdvanceStatus(ctx, order.ID, partnerD1.ID, enums.OrderStatusCollected)
	if err != nil || collected.Status != enums.OrderStatusCollected {
		t.Fatalf("collect: %v %+v", err, collected)
	}
	again, err := f.svc.AdvanceStatus(ctx, order.ID, partnerD1.ID, enums.OrderStatusCollected)
	if err != nil || again.Status != enums.OrderStatusCollected {
		t.Fatalf("repeat collect should be a no-op: %v", err)
	}
	if _, err := f.svc.AdvanceStatus(ctx, order.ID, partnerD1.ID, enums.OrderStatusAssigned); !pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("moving backwards should conflict, got %v", err)
	}
	delivered, err := f.svc.AdvanceStatus(ctx, order.ID, partnerD1.ID, enums.OrderStatusDelivered)
	if err != nil || delivered.Status != enums.OrderStatusDelivered {
		t.Fatalf("deliver: %v", err)
	}
	if _, err := f.svc.AdvanceStatus(ctx, order.ID, partnerD1.ID, "teleported"); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("unknown status should fail validation, got %v", err)
	}
}

func deliveredOrder(t *testing.T, f *fixture) *models.Order {
	t.Helper()
	order := acceptedOrder(t, f)
	ctx := context.Background()
	if _, err := f.svc.ClaimDelivery(ctx, order.ID, partnerD1); err != nil {
		t.Fatalf("claim: %v", err)
	}
	for _, next := range []enums.OrderStatus{enums.OrderStatusCollected, enums.OrderStatusDelivered} {
		if _, err := f.svc.AdvanceStatus(ctx, order.ID, partnerD1.ID, next); err != nil {
			t.Fatalf("advance to %s: %v", next, err)
		}
	}
	return order
}

func TestRateIsIdempotentAndAverages(t *testing.T) {
	f := newFixture(t, nil)
	order := deliveredOrder(t, f)
	ctx := context.Background()

	res, err := f.svc.Rate(ctx, RateInput{OrderID: order.ID, RaterID: meera.ID, RaterRole: enums.ActorRoleCustomer, Stars: 4})
	if err != nil {
		t.Fatalf("rate: %v", err)
	}
	if !res.Applied || res.RatedID != shopB.ID || res.NewRating != 4 || res.TotalRatings != 1 {
		t.Fatalf("unexpected result %+v", res)
	}

	res, err = f.svc.Rate(ctx, RateInput{OrderID: order.ID, RaterID: meera.ID, RaterRole: enums.ActorRoleCustomer, Stars: 1})
	if err != nil {
		t.Fatalf("repeat rate: %v", err)
	}
	if res.Applied {
		t.Fatal("second rating by the same side must not apply")
	}
	shop := f.user(t, shopB.ID)
	if shop.Rating != 4 || shop.TotalRatings != 1 {
		t.Fatalf("shop aggregate changed on repeat: %+v", shop)
	}

	res, err = f.svc.Rate(ctx, RateInput{OrderID: order.ID, RaterID: shopB.ID, RaterRole: enums.ActorRoleShopOwner, Stars: 3})
	if err != nil || !res.Applied || res.RatedID != meera.ID {
		t.Fatalf("shop rating customer: %v %+v", err, res)
	}
	stored, _ := f.svc.Get(ctx, order.ID)
	if !stored.ShopRated || !stored.CustomerRated {
		t.Fatalf("expected both flags set: %+v", stored)
	}
}

func TestRateValidation(t *testing.T) {
	f := newFixture(t, nil)
	order := acceptedOrder(t, f)
	ctx := context.Background()

	if _, err := f.svc.Rate(ctx, RateInput{OrderID: order.ID, RaterID: meera.ID, RaterRole: enums.ActorRoleCustomer, Stars: 6}); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := f.svc.Rate(ctx, RateInput{OrderID: order.ID, RaterID: meera.ID, RaterRole: enums.ActorRoleCustomer, Stars: 5}); !pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("undelivered order should conflict, got %v", err)
	}
}

func TestRateReleasesFlagWhenAggregateFails(t *testing.T) {
	mem := docstore.NewMemoryStore(nil)
	faulty := &faultyStore{Store: mem}
	f := newFixture(t, faulty)
	order := deliveredOrder(t, f)

	faulty.mu.Lock()
	faulty.failWrite = func(c docstore.Collection, _ string, _ map[string]any) bool {
		return c == docstore.CollectionUsers
	}
	faulty.mu.Unlock()

	_, err := f.svc.Rate(context.Background(), RateInput{OrderID: order.ID, RaterID: meera.ID, RaterRole: enums.ActorRoleCustomer, Stars: 5})
	if !pkgerrors.IsCode(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency error, got %v", err)
	}
	stored, _ := f.svc.Get(context.Background(), order.ID)
	if stored.ShopRated {
		t.Fatal("flag should be released so the rating can be retried")
	}
}

func TestNextRating(t *testing.T) {
	cases := []struct {
		current float64
		total   int
		stars   int
		want    float64
	}{
		{5, 0, 3, 3},
		{4, 1, 5, 4.5},
		{4.5, 2, 3, 4},
	}
	for _, tc := range cases {
		got, total := NextRating(tc.current, tc.total, tc.stars)
		if got != tc.want || total != tc.total+1 {
			t.Fatalf("NextRating(%v,%d,%d) = %v,%d", tc.current, tc.total, tc.stars, got, total)
		}
	}
}

func TestTownHubOrderPickup(t *testing.T) {
	f := newFixture(t, nil)
	seedPune(t, f)
	f.put(t, docstore.CollectionOffers, "hub-1", models.Offer{
		ID: "hub-1", RequestID: "r1", CustomerID: meera.ID, ShopID: models.TownHubID, ShopName: models.TownHubName,
		Price: decimal.NewFromInt(110), Status: enums.OfferStatusPending, CreatedAt: fixedNow.UnixMilli(),
	})

	order, err := f.svc.AcceptOffer(context.Background(), acceptInput("hub-1"))
	if err != nil {
		t.Fatalf("accept town hub offer: %v", err)
	}
	if !order.IsTownHubOrder || order.ShopName != models.TownHubName {
		t.Fatalf("expected town hub order, got %+v", order)
	}

	finalized, err := f.svc.FinalizeTownHubPickup(context.Background(), order.ID)
	if err != nil || !finalized.TownHubPickupFinalized {
		t.Fatalf("finalize: %v %+v", err, finalized)
	}
	if _, err := f.svc.FinalizeTownHubPickup(context.Background(), order.ID); err != nil {
		t.Fatalf("finalize twice should be a no-op: %v", err)
	}
}

func TestFinalizePickupRejectsShopOrders(t *testing.T) {
	f := newFixture(t, nil)
	order := acceptedOrder(t, f)
	if _, err := f.svc.FinalizeTownHubPickup(context.Background(), order.ID); !pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestListForActor(t *testing.T) {
	f := newFixture(t, nil)
	order := acceptedOrder(t, f)
	ctx := context.Background()

	for _, tc := range []struct {
		actor models.Actor
		want  int
	}{
		{meera, 1},
		{shopB, 1},
		{shopA, 0},
		{partnerD1, 1},
		{models.Actor{ID: "d9", Role: enums.ActorRoleDeliveryPartner, City: "Mumbai"}, 0},
		{models.Actor{ID: "founder_001", Role: enums.ActorRoleAdmin}, 1},
	} {
		got, err := f.svc.ListForActor(ctx, tc.actor)
		if err != nil {
			t.Fatalf("ListForActor(%s): %v", tc.actor.ID, err)
		}
		if len(got) != tc.want {
			t.Fatalf("ListForActor(%s) = %d orders, want %d", tc.actor.ID, len(got), tc.want)
		}
		if tc.want == 1 && got[0].ID != order.ID {
			t.Fatalf("unexpected order %s", got[0].ID)
		}
	}
}

func TestFailedOrderWriteReleasesLock(t *testing.T) {
	mem := docstore.NewMemoryStore(nil)
	faulty := &faultyStore{Store: mem}
	faulty.failWrite = func(c docstore.Collection, _ string, _ map[string]any) bool {
		return c == docstore.CollectionOrders
	}
	f := newFixture(t, faulty)
	seedPuneWith(t, f, mem)

	if _, err := f.svc.AcceptOffer(context.Background(), acceptInput("oB")); !pkgerrors.IsCode(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency error, got %v", err)
	}
	r := f.request(t, "r1")
	if r.AcceptedOfferID != "" || r.Status != enums.RequestStatusBroadcasted {
		t.Fatalf("expected open unlocked request, got %q/%q", r.AcceptedOfferID, r.Status)
	}

	faulty.mu.Lock()
	faulty.failWrite = nil
	faulty.mu.Unlock()

	order, err := f.svc.AcceptOffer(context.Background(), acceptInput("oA"))
	if err != nil {
		t.Fatalf("another offer must stay acceptable: %v", err)
	}
	if order.OfferID != "oA" || f.offerStatus(t, "oB") != enums.OfferStatusRejected {
		t.Fatalf("expected oA to win over oB, got order %s oB=%s", order.OfferID, f.offerStatus(t, "oB"))
	}
}

func TestRecoverOrphanedLockCompletesAcceptance(t *testing.T) {
	mem := docstore.NewMemoryStore(nil)
	faulty := &faultyStore{Store: mem}
	// the order write fails and so does handing the lock back
	faulty.failWrite = func(c docstore.Collection, _ string, fields map[string]any) bool {
		if c == docstore.CollectionOrders {
			return true
		}
		v, ok := fields["acceptedOfferId"]
		return c == docstore.CollectionRequests && ok && v == nil
	}
	f := newFixture(t, faulty)
	seedPuneWith(t, f, mem)

	if _, err := f.svc.AcceptOffer(context.Background(), acceptInput("oB")); err == nil {
		t.Fatal("expected acceptance to fail")
	}
	if got := f.request(t, "r1").AcceptedOfferID; got != "oB" {
		t.Fatalf("expected lock left on oB, got %q", got)
	}
	faulty.mu.Lock()
	faulty.failWrite = nil
	faulty.mu.Unlock()

	// a fresh lock is left alone
	recovered, err := f.svc.RecoverOrphanedLocks(context.Background(), 2*time.Minute)
	if err != nil || len(recovered) != 0 {
		t.Fatalf("expected nothing recovered yet, got %v %v", recovered, err)
	}

	f.svc.now = func() time.Time { return fixedNow.Add(5 * time.Minute) }
	recovered, err = f.svc.RecoverOrphanedLocks(context.Background(), 2*time.Minute)
	if err != nil {
		t.Fatalf("RecoverOrphanedLocks: %v", err)
	}
	if len(recovered) != 1 || recovered[0] != "order_oB" {
		t.Fatalf("expected order_oB recovered, got %v", recovered)
	}
	if got := f.request(t, "r1").Status; got != enums.RequestStatusFulfilled {
		t.Fatalf("expected request fulfilled, got %q", got)
	}
	if f.offerStatus(t, "oA") != enums.OfferStatusRejected || f.offerStatus(t, "oB") != enums.OfferStatusAccepted {
		t.Fatalf("unexpected offers oA=%s oB=%s", f.offerStatus(t, "oA"), f.offerStatus(t, "oB"))
	}
	order, err := f.svc.Get(context.Background(), "order_oB")
	if err != nil || order.AcceptanceStep != enums.AcceptanceCommitted {
		t.Fatalf("expected committed order, got %+v %v", order, err)
	}
}

func TestRecoverOrphanedLockReleasesUnacceptableOffer(t *testing.T) {
	f := newFixture(t, nil)
	seedPune(t, f)
	// locked on an offer that no longer exists
	if _, err := f.store.Write(context.Background(), docstore.CollectionRequests, "r1",
		map[string]any{"acceptedOfferId": "gone", "acceptanceLockedAt": fixedNow.Add(-time.Hour).UnixMilli()}); err != nil {
		t.Fatalf("lock: %v", err)
	}

	recovered, err := f.svc.RecoverOrphanedLocks(context.Background(), 2*time.Minute)
	if err != nil || len(recovered) != 0 {
		t.Fatalf("expected release without recovery, got %v %v", recovered, err)
	}
	if got := f.request(t, "r1").AcceptedOfferID; got != "" {
		t.Fatalf("expected lock released, got %q", got)
	}
}

func TestOfferLandingDuringAcceptanceIsRejected(t *testing.T) {
	mem := docstore.NewMemoryStore(nil)
	faulty := &faultyStore{Store: mem}
	faulty.failWrite = func(c docstore.Collection, _ string, fields map[string]any) bool {
		// a quote stored after the rivals were listed, just before commit
		if c == docstore.CollectionRequests && fields["status"] == enums.RequestStatusFulfilled {
			late, _ := docstore.Fields(models.Offer{
				ID: "oC", RequestID: "r1", CustomerID: meera.ID, ShopID: "shop-c",
				Price: decimal.NewFromInt(80), Status: enums.OfferStatusPending, CreatedAt: fixedNow.UnixMilli(),
			})
			if _, err := mem.Write(context.Background(), docstore.CollectionOffers, "oC", late, docstore.IfAbsent()); err != nil {
				t.Errorf("late offer: %v", err)
			}
		}
		return false
	}
	f := newFixture(t, faulty)
	seedPuneWith(t, f, mem)

	if _, err := f.svc.AcceptOffer(context.Background(), acceptInput("oB")); err != nil {
		t.Fatalf("AcceptOffer: %v", err)
	}
	for id, want := range map[string]enums.OfferStatus{
		"oA": enums.OfferStatusRejected,
		"oB": enums.OfferStatusAccepted,
		"oC": enums.OfferStatusRejected,
	} {
		if got := f.offerStatus(t, id); got != want {
			t.Fatalf("offer %s: expected %s got %s", id, want, got)
		}
	}
}
