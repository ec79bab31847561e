package controllers

import (
	"net/http"

	"github.com/locallink/locallink-backend/api/middleware"
	"github.com/locallink/locallink-backend/api/responses"
	"github.com/locallink/locallink-backend/api/validators"
	"github.com/locallink/locallink-backend/internal/users"
	"github.com/locallink/locallink-backend/pkg/enums"
	pkgerrors "github.com/locallink/locallink-backend/pkg/errors"
	"github.com/locallink/locallink-backend/pkg/logger"
)

type registerRequest struct {
	Role            string `json:"role" validate:"required,oneof=customer shop_owner delivery_partner"`
	Name            string `json:"name" validate:"required,max=120"`
	PhoneNumber     string `json:"phoneNumber" validate:"required"`
	Password        string `json:"password" validate:"required"`
	ConfirmPassword string `json:"confirmPassword" validate:"required"`
	PinCode         string `json:"pinCode"`
	City            string `json:"city" validate:"required"`
	Locality        string `json:"locality"`
	Address         string `json:"address"`
	ShopName        string `json:"shopName"`
	Category        string `json:"category"`
	VehicleType     string `json:"vehicleType"`
}

type loginRequest struct {
	PhoneNumber string `json:"phoneNumber" validate:"required"`
	Password    string `json:"password" validate:"required"`
}

// AuthRegister creates an account and starts a session.
func AuthRegister(svc users.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("users"))
			return
		}

		var body registerRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Register(r.Context(), users.RegisterInput{
			Role:            enums.ActorRole(body.Role),
			Name:            validators.SanitizeString(body.Name, 120),
			PhoneNumber:     body.PhoneNumber,
			Password:        body.Password,
			ConfirmPassword: body.ConfirmPassword,
			PinCode:         validators.SanitizeString(body.PinCode, 12),
			City:            validators.SanitizeString(body.City, 80),
			Locality:        validators.SanitizeString(body.Locality, 120),
			Address:         validators.SanitizeString(body.Address, 300),
			ShopName:        validators.SanitizeString(body.ShopName, 120),
			Category:        body.Category,
			VehicleType:     validators.SanitizeString(body.VehicleType, 40),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		w.Header().Set("X-LL-Token", result.AccessToken)
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// AuthLogin exchanges phone and password for an access token.
func AuthLogin(svc users.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("users"))
			return
		}

		var body loginRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Login(r.Context(), body.PhoneNumber, body.Password)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		w.Header().Set("X-LL-Token", result.AccessToken)
		responses.WriteSuccess(w, result)
	}
}

// AuthLogout revokes the caller's access session.
func AuthLogout(svc users.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("users"))
			return
		}
		accessID := middleware.AccessIDFromContext(r.Context())
		if accessID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "session missing"))
			return
		}
		if err := svc.Logout(r.Context(), accessID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]bool{"loggedOut": true})
	}
}
