package analytics

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/locallink/locallink-backend/internal/analytics/types"
	"github.com/locallink/locallink-backend/internal/market"
	"github.com/locallink/locallink-backend/pkg/docstore"
	"github.com/locallink/locallink-backend/pkg/enums"
	pkgerrors "github.com/locallink/locallink-backend/pkg/errors"
	"github.com/locallink/locallink-backend/pkg/logger"
	"github.com/locallink/locallink-backend/pkg/models"
	"github.com/shopspring/decimal"
)

const (
	seriesDays   = 14
	topCityCount = 5
)

// Service provides admin reports computed from a point-in-time market read.
type Service interface {
	Stats(ctx context.Context) (*types.MarketplaceStats, error)
	Pipeline(ctx context.Context) ([]market.PipelineEntry, error)
	DeadLeads(ctx context.Context) ([]models.ProductRequest, error)
	Interactions(ctx context.Context, limit int) ([]types.Interaction, error)
	Conversations(ctx context.Context) ([]types.Conversation, error)
}

type service struct {
	store docstore.Store
	grace time.Duration
	logg  *logger.Logger
	now   func() time.Time
}

// NewService builds the analytics service. grace is the dead-lead window.
func NewService(store docstore.Store, grace time.Duration, logg *logger.Logger) (Service, error) {
	if store == nil {
		return nil, fmt.Errorf("document store required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{store: store, grace: grace, logg: logg, now: time.Now}, nil
}

func (s *service) snapshot(ctx context.Context) (market.Snapshot, error) {
	snap, err := market.LoadSnapshot(ctx, s.store, market.Options{Logger: s.logg, Now: s.now})
	if err != nil {
		return market.Snapshot{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load marketplace")
	}
	return snap, nil
}

func (s *service) Stats(ctx context.Context) (*types.MarketplaceStats, error) {
	snap, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	docs, err := s.store.LoadAll(ctx, docstore.CollectionUsers)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load users")
	}
	users, _ := models.DecodeAll(docs, models.ActorFromDocument)
	stats := ComputeStats(snap, users, s.now(), s.grace)
	return &stats, nil
}

func (s *service) Pipeline(ctx context.Context) ([]market.PipelineEntry, error) {
	snap, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return market.Pipeline(snap), nil
}

func (s *service) DeadLeads(ctx context.Context) ([]models.ProductRequest, error) {
	snap, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return market.DeadLeads(snap, s.now(), s.grace), nil
}

func (s *service) Interactions(ctx context.Context, limit int) ([]types.Interaction, error) {
	snap, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return Interactions(snap, limit), nil
}

func (s *service) Conversations(ctx context.Context) ([]types.Conversation, error) {
	snap, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return Conversations(snap), nil
}

// ComputeStats aggregates the admin overview. Conversion is orders per
// request in percent; GMV sums the amount to collect across all orders.
func ComputeStats(snap market.Snapshot, users []models.Actor, now time.Time, grace time.Duration) types.MarketplaceStats {
	stats := types.MarketplaceStats{
		TotalRequests:    len(snap.Requests),
		TotalOffers:      len(snap.Offers),
		TotalOrders:      len(snap.Orders),
		ActiveCategories: map[enums.Category]int{},
		Funnel:           map[enums.PipelineStage]int{},
		GMV:              decimal.Zero,
		DeliveredGMV:     decimal.Zero,
	}
	for _, u := range users {
		switch u.Role {
		case enums.ActorRoleCustomer:
			stats.TotalUsers++
		case enums.ActorRoleShopOwner:
			stats.TotalShops++
		case enums.ActorRoleDeliveryPartner:
			stats.TotalPartners++
		}
	}
	if stats.TotalRequests > 0 {
		stats.ConversionRate = float64(stats.TotalOrders) / float64(stats.TotalRequests) * 100
	}

	cities := map[string]int64{}
	for _, r := range snap.Requests {
		stats.ActiveCategories[r.Category]++
		cities[r.City]++
	}
	stats.TopCities = topN(cities, topCityCount)

	perDay := map[string]int64{}
	for _, o := range snap.Orders {
		stats.GMV = stats.GMV.Add(o.AmountToCollect)
		if o.Status == enums.OrderStatusDelivered {
			stats.DeliveredGMV = stats.DeliveredGMV.Add(o.AmountToCollect)
		}
		perDay[time.UnixMilli(o.CreatedAt).UTC().Format(time.DateOnly)]++
	}
	stats.OrdersSeries = dailySeries(perDay, now, seriesDays)

	for _, entry := range market.Pipeline(snap) {
		stats.Funnel[entry.Stage]++
	}
	stats.DeadLeads = len(market.DeadLeads(snap, now, grace))
	for _, o := range snap.Offers {
		if len(o.ChatHistory) > 0 {
			stats.Conversations++
		}
	}
	return stats
}

// Interactions merges requests, offers and orders into one feed, newest first.
func Interactions(snap market.Snapshot, limit int) []types.Interaction {
	out := make([]types.Interaction, 0, len(snap.Requests)+len(snap.Offers)+len(snap.Orders))
	for _, r := range snap.Requests {
		out = append(out, types.Interaction{
			Type: "request", ID: r.ID, ActorID: r.CustomerID, Timestamp: r.CreatedAt,
			Summary: fmt.Sprintf("%s needs %s in %s", r.CustomerName, r.Category, r.City),
		})
	}
	for _, o := range snap.Offers {
		out = append(out, types.Interaction{
			Type: "offer", ID: o.ID, ActorID: o.ShopID, Timestamp: o.CreatedAt,
			Summary: fmt.Sprintf("%s quoted %s", o.ShopName, o.Price.StringFixed(2)),
		})
	}
	for _, o := range snap.Orders {
		out = append(out, types.Interaction{
			Type: "order", ID: o.ID, ActorID: o.CustomerID, Timestamp: o.CreatedAt,
			Summary: fmt.Sprintf("Order from %s is %s", o.ShopName, o.Status),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp > out[j].Timestamp })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Conversations lists offers that have chat, most recent message first.
func Conversations(snap market.Snapshot) []types.Conversation {
	var out []types.Conversation
	for _, o := range snap.Offers {
		if len(o.ChatHistory) == 0 {
			continue
		}
		last := o.ChatHistory[len(o.ChatHistory)-1]
		out = append(out, types.Conversation{
			OfferID:     o.ID,
			RequestID:   o.RequestID,
			CustomerID:  o.CustomerID,
			ShopID:      o.ShopID,
			ShopName:    o.ShopName,
			Messages:    len(o.ChatHistory),
			LastMessage: last.Text,
			LastAt:      last.Timestamp,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastAt > out[j].LastAt })
	return out
}

func topN(counts map[string]int64, n int) []types.LabelValue {
	out := make([]types.LabelValue, 0, len(counts))
	for label, v := range counts {
		out = append(out, types.LabelValue{Label: label, Value: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Value != out[j].Value {
			return out[i].Value > out[j].Value
		}
		return out[i].Label < out[j].Label
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// dailySeries fills the last days calendar days ending today, zeros included.
func dailySeries(perDay map[string]int64, now time.Time, days int) []types.TimeSeriesPoint {
	end := now.UTC()
	out := make([]types.TimeSeriesPoint, 0, days)
	for i := days - 1; i >= 0; i-- {
		day := end.AddDate(0, 0, -i).Format(time.DateOnly)
		out = append(out, types.TimeSeriesPoint{Date: day, Value: perDay[day]})
	}
	return out
}
