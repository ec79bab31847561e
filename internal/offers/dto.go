package offers

import "github.com/shopspring/decimal"

// SubmitInput is a shop's quote on a broadcast request.
type SubmitInput struct {
	RequestID    string
	Price        decimal.Decimal
	Message      string
	ProductImage string
}

// MessageInput is one chat line on an offer.
type MessageInput struct {
	OfferID  string
	SenderID string
	Text     string
	Image    string
}

// RescueInput is the admin's Town Hub quote on a dead lead.
type RescueInput struct {
	RequestID string
	Price     decimal.Decimal
	Message   string
}
