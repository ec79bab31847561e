package types

import (
	"github.com/locallink/locallink-backend/pkg/enums"
	"github.com/shopspring/decimal"
)

// TimeSeriesPoint describes a single date/value pair.
type TimeSeriesPoint struct {
	Date  string `json:"date"`
	Value int64  `json:"value"`
}

// LabelValue represents a top-N entry such as a category or city.
type LabelValue struct {
	Label string `json:"label"`
	Value int64  `json:"value"`
}

// MarketplaceStats is the admin overview of the whole town market.
type MarketplaceStats struct {
	TotalUsers       int                         `json:"totalUsers"`
	TotalShops       int                         `json:"totalShops"`
	TotalPartners    int                         `json:"totalPartners"`
	TotalRequests    int                         `json:"totalRequests"`
	TotalOffers      int                         `json:"totalOffers"`
	TotalOrders      int                         `json:"totalOrders"`
	ConversionRate   float64                     `json:"conversionRate"`
	ActiveCategories map[enums.Category]int      `json:"activeCategories"`
	TopCities        []LabelValue                `json:"topCities"`
	GMV              decimal.Decimal             `json:"gmv"`
	DeliveredGMV     decimal.Decimal             `json:"deliveredGmv"`
	OrdersSeries     []TimeSeriesPoint           `json:"ordersSeries"`
	Funnel           map[enums.PipelineStage]int `json:"funnel"`
	DeadLeads        int                         `json:"deadLeads"`
	Conversations    int                         `json:"activeConversations"`
}

// Interaction is one entry of the chronological admin activity feed.
type Interaction struct {
	Type      string `json:"type"`
	ID        string `json:"id"`
	ActorID   string `json:"actorId"`
	Summary   string `json:"summary"`
	Timestamp int64  `json:"timestamp"`
}

// Conversation is an offer with a non-empty chat.
type Conversation struct {
	OfferID     string `json:"offerId"`
	RequestID   string `json:"requestId"`
	CustomerID  string `json:"customerId"`
	ShopID      string `json:"shopId"`
	ShopName    string `json:"shopName"`
	Messages    int    `json:"messages"`
	LastMessage string `json:"lastMessage"`
	LastAt      int64  `json:"lastAt"`
}
