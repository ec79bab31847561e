package market

import (
	"fmt"
	"strings"

	"github.com/locallink/locallink-backend/pkg/enums"
	"github.com/locallink/locallink-backend/pkg/models"
)

// Signal is a "something new for you" alert derived from a snapshot diff.
type Signal struct {
	Kind     enums.SignalKind `json:"kind"`
	EntityID string           `json:"entityId"`
	Text     string           `json:"text"`
	At       int64            `json:"at"`
}

const (
	textOrderForCustomer = "Order confirmed! Assignment in progress..."
	textOrderForShop     = "Business Update: New order received!"
	textJobForPartner    = "New Job: Delivery job available nearby!"
	textLostSale         = "Update: Customer chose another shop for their request."
)

func leadText(category enums.Category) string {
	return fmt.Sprintf("Town Broadcast: New lead for %s!", category)
}

func quoteText(shopName string) string {
	return fmt.Sprintf("New quote from %s!", shopName)
}

// detector derives signals for one actor. An item is new when it was absent
// from the previous list and created after the session started.
type detector struct {
	actor     models.Actor
	sessionMs int64
	nowMs     int64
}

func (d detector) isNew(id string, createdAt int64, seen map[string]struct{}) bool {
	if createdAt <= d.sessionMs {
		return false
	}
	_, existed := seen[id]
	return !existed
}

func (d detector) requests(prev, next []models.ProductRequest) []Signal {
	if d.actor.Role != enums.ActorRoleShopOwner {
		return nil
	}
	seen := make(map[string]struct{}, len(prev))
	for _, r := range prev {
		seen[r.ID] = struct{}{}
	}
	var out []Signal
	for _, r := range next {
		if !d.isNew(r.ID, r.CreatedAt, seen) || r.Status != enums.RequestStatusBroadcasted {
			continue
		}
		if !sameCity(r.City, d.actor.City) {
			continue
		}
		if r.Category != d.actor.Category && r.Category != enums.CategoryOther {
			continue
		}
		out = append(out, d.signal(enums.SignalLead, r.ID, leadText(r.Category)))
	}
	return out
}

func (d detector) offers(prev, next []models.Offer) []Signal {
	previous := make(map[string]models.Offer, len(prev))
	seen := make(map[string]struct{}, len(prev))
	for _, o := range prev {
		previous[o.ID] = o
		seen[o.ID] = struct{}{}
	}
	var out []Signal
	for _, o := range next {
		if o.CustomerID == d.actor.ID && d.isNew(o.ID, o.CreatedAt, seen) {
			out = append(out, d.signal(enums.SignalOffer, o.ID, quoteText(o.ShopName)))
		}
		if d.actor.Role == enums.ActorRoleShopOwner && o.ShopID == d.actor.ID {
			before, ok := previous[o.ID]
			if ok && before.Status != enums.OfferStatusRejected && o.Status == enums.OfferStatusRejected {
				out = append(out, d.signal(enums.SignalLostSale, o.ID, textLostSale))
			}
		}
	}
	return out
}

func (d detector) orders(prev, next []models.Order) []Signal {
	seen := make(map[string]struct{}, len(prev))
	for _, o := range prev {
		seen[o.ID] = struct{}{}
	}
	var out []Signal
	for _, o := range next {
		if !d.isNew(o.ID, o.CreatedAt, seen) {
			continue
		}
		switch {
		case o.CustomerID == d.actor.ID:
			out = append(out, d.signal(enums.SignalOrder, o.ID, textOrderForCustomer))
		case o.ShopID == d.actor.ID:
			out = append(out, d.signal(enums.SignalOrder, o.ID, textOrderForShop))
		case d.actor.Role == enums.ActorRoleDeliveryPartner &&
			o.Status == enums.OrderStatusPendingAssignment &&
			sameCity(o.City, d.actor.City):
			out = append(out, d.signal(enums.SignalJob, o.ID, textJobForPartner))
		}
	}
	return out
}

func (d detector) signal(kind enums.SignalKind, id, text string) Signal {
	return Signal{Kind: kind, EntityID: id, Text: text, At: d.nowMs}
}

func sameCity(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
