package payloads

import (
	"github.com/locallink/locallink-backend/pkg/enums"
	"github.com/shopspring/decimal"
)

// RequestBroadcastedEvent is emitted when a customer need goes live.
type RequestBroadcastedEvent struct {
	RequestID  string         `json:"request_id"`
	CustomerID string         `json:"customer_id"`
	City       string         `json:"city"`
	Category   enums.Category `json:"category"`
}

// OfferSubmittedEvent is emitted for every new quote, including Town Hub rescues.
type OfferSubmittedEvent struct {
	OfferID   string          `json:"offer_id"`
	RequestID string          `json:"request_id"`
	ShopID    string          `json:"shop_id"`
	Price     decimal.Decimal `json:"price"`
	TownHub   bool            `json:"town_hub"`
}

// OrderCreatedEvent is emitted once an acceptance saga commits.
type OrderCreatedEvent struct {
	OrderID         string          `json:"order_id"`
	RequestID       string          `json:"request_id"`
	OfferID         string          `json:"offer_id"`
	CustomerID      string          `json:"customer_id"`
	ShopID          string          `json:"shop_id"`
	City            string          `json:"city"`
	AmountToCollect decimal.Decimal `json:"amount_to_collect"`
	TownHub         bool            `json:"town_hub"`
	RejectedOffers  []string        `json:"rejected_offers,omitempty"`
}

// DeliveryClaimedEvent is emitted when a partner wins a delivery job.
type DeliveryClaimedEvent struct {
	OrderID   string `json:"order_id"`
	PartnerID string `json:"partner_id"`
}

// OrderStatusChangedEvent records one forward step of an order.
type OrderStatusChangedEvent struct {
	OrderID   string            `json:"order_id"`
	PartnerID string            `json:"partner_id"`
	From      enums.OrderStatus `json:"from"`
	To        enums.OrderStatus `json:"to"`
}

// CounterpartyRatedEvent records a rating applied to a user aggregate.
type CounterpartyRatedEvent struct {
	OrderID      string          `json:"order_id"`
	RatedID      string          `json:"rated_id"`
	RaterRole    enums.ActorRole `json:"rater_role"`
	Stars        int             `json:"stars"`
	NewRating    float64         `json:"new_rating"`
	TotalRatings int             `json:"total_ratings"`
}

// DeadLeadEvent covers both detection and rescue of an unquoted request.
type DeadLeadEvent struct {
	RequestID string `json:"request_id"`
	City      string `json:"city"`
	AgeSecs   int64  `json:"age_secs,omitempty"`
	OfferID   string `json:"offer_id,omitempty"`
}

// AcceptanceResumedEvent is emitted when a stalled acceptance is driven to commit.
type AcceptanceResumedEvent struct {
	OrderID  string               `json:"order_id"`
	FromStep enums.AcceptanceStep `json:"from_step"`
}
