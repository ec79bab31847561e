package controllers

import (
	"net/http"
	"strings"

	"github.com/locallink/locallink-backend/api/responses"
	"github.com/locallink/locallink-backend/api/validators"
	"github.com/locallink/locallink-backend/internal/users"
	"github.com/locallink/locallink-backend/pkg/enums"
	pkgerrors "github.com/locallink/locallink-backend/pkg/errors"
	"github.com/locallink/locallink-backend/pkg/logger"
	"github.com/locallink/locallink-backend/pkg/models"
)

type profilePatchRequest struct {
	Name        string `json:"name" validate:"max=120"`
	Address     string `json:"address" validate:"max=300"`
	PinCode     string `json:"pinCode" validate:"max=12"`
	City        string `json:"city" validate:"max=80"`
	Locality    string `json:"locality" validate:"max=120"`
	VehicleType string `json:"vehicleType" validate:"max=40"`
	ShopName    string `json:"shopName" validate:"max=120"`
	Category    string `json:"category"`
	ShopImage   string `json:"shopImage"`
	Description string `json:"description" validate:"max=500"`
	PromoBanner string `json:"promoBanner"`
}

type verifyRequest struct {
	Verified *bool `json:"verified" validate:"required"`
}

func GetProfile(svc users.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := currentActor(r.Context(), svc)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, actor)
	}
}

// UpdateProfile merges the non-empty fields of the body into the caller's
// profile.
func UpdateProfile(svc users.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := currentActor(r.Context(), svc)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body profilePatchRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		updated, err := svc.UpdateProfile(r.Context(), actor.ID, users.ProfilePatch{
			Name:        strings.TrimSpace(body.Name),
			Address:     strings.TrimSpace(body.Address),
			PinCode:     strings.TrimSpace(body.PinCode),
			City:        strings.TrimSpace(body.City),
			Locality:    strings.TrimSpace(body.Locality),
			VehicleType: strings.TrimSpace(body.VehicleType),
			ShopName:    strings.TrimSpace(body.ShopName),
			Category:    body.Category,
			ShopImage:   body.ShopImage,
			Description: strings.TrimSpace(body.Description),
			PromoBanner: body.PromoBanner,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, updated)
	}
}

// AdminListUsers lists accounts, optionally filtered by the role query.
func AdminListUsers(svc users.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("users"))
			return
		}

		var role enums.ActorRole
		if raw := strings.TrimSpace(r.URL.Query().Get("role")); raw != "" {
			parsed, err := enums.ParseActorRole(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid role"))
				return
			}
			role = parsed
		}

		list, err := svc.List(r.Context(), role)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if list == nil {
			list = []models.Actor{}
		}
		responses.WriteSuccess(w, list)
	}
}

func AdminSetVerified(svc users.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("users"))
			return
		}
		userID, err := pathParam(r, "userId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body verifyRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		updated, err := svc.SetVerified(r.Context(), userID, *body.Verified)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, updated)
	}
}
