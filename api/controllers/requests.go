package controllers

import (
	"net/http"

	"github.com/locallink/locallink-backend/api/responses"
	"github.com/locallink/locallink-backend/api/validators"
	"github.com/locallink/locallink-backend/internal/offers"
	"github.com/locallink/locallink-backend/internal/requests"
	"github.com/locallink/locallink-backend/internal/users"
	"github.com/locallink/locallink-backend/pkg/enums"
	pkgerrors "github.com/locallink/locallink-backend/pkg/errors"
	"github.com/locallink/locallink-backend/pkg/logger"
	"github.com/locallink/locallink-backend/pkg/models"
)

type broadcastRequest struct {
	Category    string `json:"category"`
	Description string `json:"description" validate:"required,max=2000"`
	Image       string `json:"image"`
	PinCode     string `json:"pinCode" validate:"max=12"`
	Locality    string `json:"locality" validate:"max=120"`
}

// RequestDetail is a request with the offers the caller may see.
type RequestDetail struct {
	Request models.ProductRequest `json:"request"`
	Offers  []models.Offer        `json:"offers"`
}

// BroadcastRequest publishes a customer's finalized need to nearby shops.
func BroadcastRequest(svc requests.Service, usersSvc users.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("requests"))
			return
		}
		actor, err := currentActor(r.Context(), usersSvc)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body broadcastRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		request, err := svc.Broadcast(r.Context(), actor, requests.BroadcastInput{
			Category:    enums.NormalizeCategory(body.Category),
			Description: validators.SanitizeMultiline(body.Description, 2000),
			Image:       body.Image,
			PinCode:     validators.SanitizeString(body.PinCode, 12),
			Locality:    validators.SanitizeString(body.Locality, 120),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, request)
	}
}

func ListMyRequests(svc requests.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("requests"))
			return
		}
		actorID, err := requireActorID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.ListMine(r.Context(), actorID)
		if err != nil && !degradedList(r, logg, err, "requests.list_mine") {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if list == nil {
			list = []models.ProductRequest{}
		}
		responses.WriteSuccess(w, list)
	}
}

// GetRequest returns a request and its offers. Customers only see their own
// requests; shops only see their own quote.
func GetRequest(svc requests.Service, offersSvc offers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil || offersSvc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("requests"))
			return
		}
		actorID, err := requireActorID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		requestID, err := pathParam(r, "requestId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		request, err := svc.Get(r.Context(), requestID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		role := roleOf(r)
		if role == enums.ActorRoleCustomer && request.CustomerID != actorID {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "request belongs to another customer"))
			return
		}
		if role == enums.ActorRoleDeliveryPartner {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "requests are not visible to delivery partners"))
			return
		}

		list, err := offersSvc.ListForRequest(r.Context(), requestID)
		if err != nil && !degradedList(r, logg, err, "requests.offers") {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		visible := make([]models.Offer, 0, len(list))
		for _, o := range list {
			if role == enums.ActorRoleShopOwner && o.ShopID != actorID {
				continue
			}
			visible = append(visible, o)
		}
		responses.WriteSuccess(w, RequestDetail{Request: *request, Offers: visible})
	}
}

func CancelRequest(svc requests.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("requests"))
			return
		}
		actorID, err := requireActorID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		requestID, err := pathParam(r, "requestId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		request, err := svc.Cancel(r.Context(), actorID, requestID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, request)
	}
}
