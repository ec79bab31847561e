package controllers

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/locallink/locallink-backend/internal/market"
	"github.com/locallink/locallink-backend/pkg/docstore"
	"github.com/locallink/locallink-backend/pkg/enums"
	"github.com/locallink/locallink-backend/pkg/models"
)

// streamRecorder is a ResponseWriter safe to read while the handler writes.
type streamRecorder struct {
	mu     sync.Mutex
	header http.Header
	status int
	body   bytes.Buffer
	wrote  chan struct{}
}

func newStreamRecorder() *streamRecorder {
	return &streamRecorder{header: http.Header{}, wrote: make(chan struct{}, 64)}
}

func (s *streamRecorder) Header() http.Header { return s.header }

func (s *streamRecorder) WriteHeader(status int) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
}

func (s *streamRecorder) Write(p []byte) (int, error) {
	s.mu.Lock()
	n, err := s.body.Write(p)
	s.mu.Unlock()
	select {
	case s.wrote <- struct{}{}:
	default:
	}
	return n, err
}

func (s *streamRecorder) Flush() {}

func (s *streamRecorder) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.body.String()
}

func (s *streamRecorder) waitFor(t *testing.T, substr string) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for !strings.Contains(s.String(), substr) {
		select {
		case <-s.wrote:
		case <-deadline:
			t.Fatalf("timed out waiting for %q in %s", substr, s.String())
		}
	}
}

func writeDoc(t *testing.T, store docstore.Store, c docstore.Collection, id string, v any) {
	t.Helper()
	fields, err := docstore.Fields(v)
	if err != nil {
		t.Fatalf("fields: %v", err)
	}
	if _, err := store.Write(context.Background(), c, id, fields); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestMarketStreamDeliversSnapshotAndRecordsSignals(t *testing.T) {
	store := docstore.NewMemoryStore(nil)
	since := time.Now().Add(-time.Minute)
	writeDoc(t, store, docstore.CollectionRequests, "req_1", models.ProductRequest{
		ID: "req_1", CustomerID: "cust_1", City: "Pune", Category: enums.CategoryGrocery,
		Description: "5kg atta", Status: enums.RequestStatusBroadcasted, CreatedAt: since.Add(-time.Minute).UnixMilli(),
	})

	inbox := &stubNotifications{recorded: make(chan []market.Signal, 4)}
	handler := MarketStream(StreamParams{
		Store:         store,
		Users:         puneUsers(),
		Notifications: inbox,
		Heartbeat:     time.Hour,
		Logger:        testLogger(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/market/stream?since="+strconv.FormatInt(since.UnixMilli(), 10), nil)
	req = asActor(req.WithContext(ctx), "cust_1", enums.ActorRoleCustomer)
	rec := newStreamRecorder()

	done := make(chan struct{})
	go func() {
		handler(rec, req)
		close(done)
	}()

	rec.waitFor(t, "event: market")
	if !strings.Contains(rec.String(), "req_1") {
		t.Fatalf("first frame missing request: %s", rec.String())
	}
	if got := rec.header.Get("Content-Type"); got != "text/event-stream" {
		t.Fatalf("unexpected content type %q", got)
	}

	writeDoc(t, store, docstore.CollectionOffers, "offer_req_1_shop_1", models.Offer{
		ID: "offer_req_1_shop_1", RequestID: "req_1", CustomerID: "cust_1", ShopID: "shop_1",
		ShopName: "Sharma Kirana", Price: decimal.NewFromInt(240), Status: enums.OfferStatusPending,
		CreatedAt: time.Now().UnixMilli(),
	})

	select {
	case signals := <-inbox.recorded:
		if len(signals) != 1 || signals[0].Kind != enums.SignalOffer {
			t.Fatalf("unexpected signals %+v", signals)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("signals were not recorded")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("stream did not stop after cancel")
	}
}

func TestMarketStreamRejectsBadSince(t *testing.T) {
	handler := MarketStream(StreamParams{Store: docstore.NewMemoryStore(nil), Users: puneUsers(), Logger: testLogger()})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/market/stream?since=yesterday", nil)
	req = asActor(req, "cust_1", enums.ActorRoleCustomer)
	resp := httptest.NewRecorder()
	handler(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestCoalescerKeepsEverySignal(t *testing.T) {
	c := newCoalescer()
	c.push(market.Update{Signals: []market.Signal{{EntityID: "a"}}})
	c.push(market.Update{Snapshot: market.Snapshot{Requests: []models.ProductRequest{{ID: "r"}}}, Signals: []market.Signal{{EntityID: "b"}}})

	<-c.ready
	update, ok := c.take()
	if !ok || len(update.Signals) != 2 || len(update.Snapshot.Requests) != 1 {
		t.Fatalf("unexpected coalesced update %+v", update)
	}
	if _, ok := c.take(); ok {
		t.Fatalf("expected nothing pending")
	}
}
