package orders

import "github.com/locallink/locallink-backend/pkg/enums"

// AcceptOfferInput is a customer's decision to take one quote.
type AcceptOfferInput struct {
	OfferID    string
	RequestID  string
	ShopID     string
	CustomerID string
	// DeliveryAddress overrides the customer's profile address when set.
	DeliveryAddress string
}

// RateInput carries one side's rating of the counterparty after delivery.
type RateInput struct {
	OrderID   string
	RaterID   string
	RaterRole enums.ActorRole
	Stars     int
}

// RateResult reports what a Rate call changed. Applied is false when this
// side had already rated the order.
type RateResult struct {
	Applied      bool    `json:"applied"`
	RatedID      string  `json:"ratedId,omitempty"`
	NewRating    float64 `json:"newRating,omitempty"`
	TotalRatings int     `json:"totalRatings,omitempty"`
}
