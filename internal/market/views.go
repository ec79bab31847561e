package market

import (
	"time"

	"github.com/locallink/locallink-backend/pkg/enums"
	"github.com/locallink/locallink-backend/pkg/models"
)

// DefaultDeadLeadGrace is how long a broadcast may sit without quotes before
// the admin is asked to rescue it.
const DefaultDeadLeadGrace = 10 * time.Minute

// DeadLeads lists broadcasted requests older than grace that have no offers.
func DeadLeads(snap Snapshot, now time.Time, grace time.Duration) []models.ProductRequest {
	if grace <= 0 {
		grace = DefaultDeadLeadGrace
	}
	quoted := make(map[string]struct{}, len(snap.Offers))
	for _, o := range snap.Offers {
		quoted[o.RequestID] = struct{}{}
	}
	cutoff := now.Add(-grace).UnixMilli()
	var out []models.ProductRequest
	for _, r := range snap.Requests {
		if r.Status != enums.RequestStatusBroadcasted || r.CreatedAt >= cutoff {
			continue
		}
		if _, ok := quoted[r.ID]; ok {
			continue
		}
		out = append(out, r)
	}
	return out
}

// PipelineEntry pairs a request with its funnel stage.
type PipelineEntry struct {
	Request    models.ProductRequest `json:"request"`
	Stage      enums.PipelineStage   `json:"stage"`
	OfferCount int                   `json:"offerCount"`
	OrderID    string                `json:"orderId,omitempty"`
}

// Pipeline classifies every request in the snapshot, newest first.
func Pipeline(snap Snapshot) []PipelineEntry {
	offers := map[string]int{}
	for _, o := range snap.Offers {
		offers[o.RequestID]++
	}
	orders := map[string]models.Order{}
	for _, o := range snap.Orders {
		orders[o.RequestID] = o
	}

	out := make([]PipelineEntry, 0, len(snap.Requests))
	for _, r := range snap.Requests {
		entry := PipelineEntry{Request: r, OfferCount: offers[r.ID]}
		order, hasOrder := orders[r.ID]
		if hasOrder {
			entry.OrderID = order.ID
		}
		entry.Stage = classify(r, entry.OfferCount, order, hasOrder)
		out = append(out, entry)
	}
	return out
}

func classify(r models.ProductRequest, offerCount int, order models.Order, hasOrder bool) enums.PipelineStage {
	switch r.Status {
	case enums.RequestStatusDrafting, enums.RequestStatusSummarized:
		return enums.StageDrafting
	case enums.RequestStatusCancelled:
		return enums.StageCancelled
	}
	if hasOrder {
		switch order.Status {
		case enums.OrderStatusDelivered:
			return enums.StageDelivered
		case enums.OrderStatusAssigned, enums.OrderStatusCollected:
			return enums.StageInDelivery
		default:
			return enums.StageOrdered
		}
	}
	if r.Status == enums.RequestStatusFulfilled {
		// order not observed yet; collections arrive independently
		return enums.StageOrdered
	}
	if offerCount > 0 {
		return enums.StageQuoted
	}
	return enums.StageAwaitingQuotes
}
