package users

import (
	"time"

	"github.com/locallink/locallink-backend/pkg/enums"
	"github.com/locallink/locallink-backend/pkg/models"
)

// RegisterInput is the sign-up form. Shop fields apply to shop owners and
// VehicleType to delivery partners.
type RegisterInput struct {
	Role            enums.ActorRole
	Name            string
	PhoneNumber     string
	Password        string
	ConfirmPassword string
	PinCode         string
	City            string
	Locality        string
	Address         string

	ShopName    string
	Category    string
	VehicleType string
}

// ProfilePatch carries the editable profile fields; empty values are left
// unchanged.
type ProfilePatch struct {
	Name        string
	Address     string
	PinCode     string
	City        string
	Locality    string
	VehicleType string
	ShopName    string
	Category    string
	ShopImage   string
	Description string
	PromoBanner string
}

// AuthResult is returned by register and login.
type AuthResult struct {
	AccessToken  string       `json:"access_token"`
	SessionStart time.Time    `json:"session_start"`
	User         models.Actor `json:"user"`
}
