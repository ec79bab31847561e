package market

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/locallink/locallink-backend/pkg/docstore"
	"github.com/locallink/locallink-backend/pkg/logger"
	"github.com/locallink/locallink-backend/pkg/models"
)

const defaultUpdatesLimit = 20

// Snapshot is the merged view of the live marketplace collections. Every
// list is sorted newest first.
type Snapshot struct {
	Requests []models.ProductRequest `json:"requests"`
	Offers   []models.Offer          `json:"offers"`
	Orders   []models.Order          `json:"orders"`
	Updates  []models.DailyUpdate    `json:"updates"`
}

func (s Snapshot) clone() Snapshot {
	return Snapshot{
		Requests: append([]models.ProductRequest(nil), s.Requests...),
		Offers:   append([]models.Offer(nil), s.Offers...),
		Orders:   append([]models.Order(nil), s.Orders...),
		Updates:  append([]models.DailyUpdate(nil), s.Updates...),
	}
}

// OffersFor returns the offers placed on requestID.
func (s Snapshot) OffersFor(requestID string) []models.Offer {
	var out []models.Offer
	for _, o := range s.Offers {
		if o.RequestID == requestID {
			out = append(out, o)
		}
	}
	return out
}

// OrderFor returns the order created for requestID, if any.
func (s Snapshot) OrderFor(requestID string) (models.Order, bool) {
	for _, o := range s.Orders {
		if o.RequestID == requestID {
			return o, true
		}
	}
	return models.Order{}, false
}

// LoadSnapshot reads all four collections once. It is the point-in-time
// counterpart of Engine.Subscribe, used by admin views and scheduled jobs.
func LoadSnapshot(ctx context.Context, store docstore.Store, opts Options) (Snapshot, error) {
	opts = opts.withDefaults()
	var snap Snapshot
	for _, c := range marketCollections {
		docs, err := store.LoadAll(ctx, c)
		if err != nil {
			return Snapshot{}, fmt.Errorf("load %s: %w", c, err)
		}
		errs := snap.replace(c, docs, opts.Now(), opts.UpdatesLimit)
		logInvalid(ctx, opts.Logger, c, errs)
	}
	return snap, nil
}

var marketCollections = []docstore.Collection{
	docstore.CollectionRequests,
	docstore.CollectionOffers,
	docstore.CollectionOrders,
	docstore.CollectionUpdates,
}

// replace swaps one collection's list for the decoded, sorted docs.
func (s *Snapshot) replace(c docstore.Collection, docs []docstore.Document, now time.Time, updatesLimit int) []error {
	switch c {
	case docstore.CollectionRequests:
		items, errs := models.DecodeAll(docs, models.RequestFromDocument)
		sort.Slice(items, func(i, j int) bool {
			return newer(items[i].CreatedAt, items[i].ID, items[j].CreatedAt, items[j].ID)
		})
		s.Requests = items
		return errs
	case docstore.CollectionOffers:
		items, errs := models.DecodeAll(docs, models.OfferFromDocument)
		sort.Slice(items, func(i, j int) bool {
			return newer(items[i].CreatedAt, items[i].ID, items[j].CreatedAt, items[j].ID)
		})
		s.Offers = items
		return errs
	case docstore.CollectionOrders:
		items, errs := models.DecodeAll(docs, models.OrderFromDocument)
		sort.Slice(items, func(i, j int) bool {
			return newer(items[i].CreatedAt, items[i].ID, items[j].CreatedAt, items[j].ID)
		})
		s.Orders = items
		return errs
	case docstore.CollectionUpdates:
		items, errs := models.DecodeAll(docs, models.UpdateFromDocument)
		sort.Slice(items, func(i, j int) bool {
			return newer(items[i].CreatedAt, items[i].ID, items[j].CreatedAt, items[j].ID)
		})
		// newest N first, then drop the expired ones among them
		if updatesLimit > 0 && len(items) > updatesLimit {
			items = items[:updatesLimit]
		}
		nowMs := now.UnixMilli()
		live := items[:0]
		for _, u := range items {
			if u.Live(nowMs) {
				live = append(live, u)
			}
		}
		s.Updates = live
		return errs
	}
	return nil
}

func newer(aCreated int64, aID string, bCreated int64, bID string) bool {
	if aCreated != bCreated {
		return aCreated > bCreated
	}
	return aID > bID
}

func logInvalid(ctx context.Context, log *logger.Logger, c docstore.Collection, errs []error) {
	if log == nil {
		return
	}
	for _, err := range errs {
		log.Warn(log.WithFields(ctx, map[string]any{
			"collection": string(c),
			"error":      err.Error(),
		}), "market.document.invalid")
	}
}
