package models

import (
	"github.com/locallink/locallink-backend/pkg/enums"
	"github.com/shopspring/decimal"
)

// Reserved identity the admin uses to quote on dead leads.
const (
	TownHubID   = "town_hub"
	TownHubName = "Town Hub"
)

// Actor is a user profile; the shop fields are only set for shop owners and
// VehicleType only for delivery partners.
type Actor struct {
	ID           string          `json:"id" validate:"required"`
	Role         enums.ActorRole `json:"role" validate:"required,enum"`
	Name         string          `json:"name" validate:"required"`
	PhoneNumber  string          `json:"phoneNumber" validate:"required"`
	PasswordHash string          `json:"passwordHash,omitempty"`
	Address      string          `json:"address,omitempty"`
	PinCode      string          `json:"pinCode"`
	City         string          `json:"city" validate:"required"`
	Locality     string          `json:"locality,omitempty"`
	Rating       float64         `json:"rating" validate:"gte=0,lte=5"`
	TotalRatings int             `json:"totalRatings" validate:"gte=0"`
	IsVerified   bool            `json:"isVerified,omitempty"`
	VehicleType  string          `json:"vehicleType,omitempty"`

	ShopName    string         `json:"shopName,omitempty" validate:"required_if=Role shop_owner"`
	Category    enums.Category `json:"category,omitempty" validate:"required_if=Role shop_owner"`
	ShopImage   string         `json:"shopImage,omitempty"`
	Description string         `json:"description,omitempty"`
	PromoBanner string         `json:"promoBanner,omitempty"`

	CreatedAt int64 `json:"createdAt,omitempty"`
}

// Public strips credentials before the profile leaves the service.
func (a Actor) Public() Actor {
	a.PasswordHash = ""
	return a
}

// IsShop reports whether the actor owns a shop.
func (a Actor) IsShop() bool {
	return a.Role == enums.ActorRoleShopOwner
}

// ChatMessage is one entry of an offer's direct chat.
type ChatMessage struct {
	SenderID  string `json:"senderId" validate:"required"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp" validate:"gt=0"`
	Image     string `json:"image,omitempty"`
}

// ProductRequest is a customer need broadcast to matching shops.
type ProductRequest struct {
	ID              string              `json:"id" validate:"required"`
	CustomerID      string              `json:"customerId" validate:"required"`
	CustomerName    string              `json:"customerName"`
	PinCode         string              `json:"pinCode"`
	City            string              `json:"city" validate:"required"`
	Locality        string              `json:"locality,omitempty"`
	Category        enums.Category      `json:"category"`
	Description     string              `json:"description"`
	Image           string              `json:"image,omitempty"`
	Status          enums.RequestStatus `json:"status" validate:"required,enum"`
	CreatedAt       int64               `json:"createdAt" validate:"gt=0"`
	AcceptedOfferID string              `json:"acceptedOfferId,omitempty"`
	// AcceptanceLockedAt is when AcceptedOfferID was claimed (unix ms).
	AcceptanceLockedAt int64 `json:"acceptanceLockedAt,omitempty"`
}

// Offer is a shop quote on a request.
type Offer struct {
	ID           string            `json:"id" validate:"required"`
	RequestID    string            `json:"requestId" validate:"required"`
	CustomerID   string            `json:"customerId" validate:"required"`
	ShopID       string            `json:"shopId" validate:"required"`
	ShopName     string            `json:"shopName"`
	ShopRating   float64           `json:"shopRating"`
	Price        decimal.Decimal   `json:"price"`
	ProductImage string            `json:"productImage,omitempty"`
	Message      string            `json:"message,omitempty"`
	ChatHistory  []ChatMessage     `json:"chatHistory,omitempty" validate:"dive"`
	Status       enums.OfferStatus `json:"status,omitempty" validate:"omitempty,enum"`
	CreatedAt    int64             `json:"createdAt" validate:"gt=0"`
}

// IsTownHub reports whether the offer was placed by the admin rescue identity.
func (o Offer) IsTownHub() bool {
	return o.ShopID == TownHubID
}

// Order is the fulfilment record created when an offer is accepted.
type Order struct {
	ID              string          `json:"id" validate:"required"`
	RequestID       string          `json:"requestId" validate:"required"`
	OfferID         string          `json:"offerId" validate:"required"`
	CustomerID      string          `json:"customerId" validate:"required"`
	CustomerName    string          `json:"customerName,omitempty"`
	CustomerPhone   string          `json:"customerPhone,omitempty"`
	ShopID          string          `json:"shopId" validate:"required"`
	ShopName        string          `json:"shopName"`
	ShopPhone       string          `json:"shopPhone,omitempty"`
	ShopAddress     string          `json:"shopAddress,omitempty"`
	Category        enums.Category  `json:"category,omitempty"`
	ItemDescription string          `json:"itemDescription,omitempty"`
	DeliveryAddress string          `json:"deliveryAddress"`
	AmountToCollect decimal.Decimal `json:"amountToCollect"`
	PinCode         string          `json:"pinCode"`
	City            string          `json:"city"`

	Status                 enums.OrderStatus `json:"status" validate:"required,enum"`
	DeliveryPartnerID      string            `json:"deliveryPartnerId,omitempty"`
	DeliveryPartnerName    string            `json:"deliveryPartnerName,omitempty"`
	DeliveryPartnerPhone   string            `json:"deliveryPartnerPhone,omitempty"`
	DeliveryPartnerVehicle string            `json:"deliveryPartnerVehicle,omitempty"`

	CustomerRated bool  `json:"customerRated"`
	ShopRated     bool  `json:"shopRated"`
	CreatedAt     int64 `json:"createdAt" validate:"gt=0"`

	IsTownHubOrder         bool                 `json:"isTownHubOrder,omitempty"`
	TownHubPickupFinalized bool                 `json:"townHubPickupFinalized,omitempty"`
	AcceptanceStep         enums.AcceptanceStep `json:"acceptanceStep,omitempty" validate:"omitempty,enum"`
	AcceptanceUpdatedAt    int64                `json:"acceptanceUpdatedAt,omitempty"`
}

// DailyUpdate is a shop's promotional note that expires after a day.
type DailyUpdate struct {
	ID        string `json:"id" validate:"required"`
	ShopID    string `json:"shopId" validate:"required"`
	ShopName  string `json:"shopName"`
	Text      string `json:"text" validate:"required"`
	Image     string `json:"image,omitempty"`
	CreatedAt int64  `json:"createdAt" validate:"gt=0"`
	ExpiresAt int64  `json:"expiresAt" validate:"gtfield=CreatedAt"`
}

// Live reports whether the update is still visible at nowMs.
func (u DailyUpdate) Live(nowMs int64) bool {
	return u.ExpiresAt > nowMs
}
