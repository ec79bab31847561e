package controllers

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/locallink/locallink-backend/api/responses"
	"github.com/locallink/locallink-backend/api/validators"
	"github.com/locallink/locallink-backend/internal/offers"
	"github.com/locallink/locallink-backend/internal/users"
	"github.com/locallink/locallink-backend/pkg/logger"
	"github.com/locallink/locallink-backend/pkg/models"
)

type submitOfferRequest struct {
	Price        decimal.Decimal `json:"price"`
	Message      string          `json:"message" validate:"max=500"`
	ProductImage string          `json:"productImage"`
}

type chatMessageRequest struct {
	Text  string `json:"text" validate:"max=1000"`
	Image string `json:"image"`
}

type rescueRequest struct {
	Price   decimal.Decimal `json:"price"`
	Message string          `json:"message" validate:"max=500"`
}

// SubmitOffer records a shop's quote on a broadcast request.
func SubmitOffer(svc offers.Service, usersSvc users.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("offers"))
			return
		}
		requestID, err := pathParam(r, "requestId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		shop, err := currentActor(r.Context(), usersSvc)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body submitOfferRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		offer, err := svc.Submit(r.Context(), shop, offers.SubmitInput{
			RequestID:    requestID,
			Price:        body.Price,
			Message:      validators.SanitizeMultiline(body.Message, 500),
			ProductImage: body.ProductImage,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, offer)
	}
}

// SendOfferMessage appends a line to the chat between an offer's customer
// and shop.
func SendOfferMessage(svc offers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("offers"))
			return
		}
		actorID, err := requireActorID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		offerID, err := pathParam(r, "offerId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body chatMessageRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		offer, err := svc.SendMessage(r.Context(), offers.MessageInput{
			OfferID:  offerID,
			SenderID: actorID,
			Text:     validators.SanitizeMultiline(body.Text, 1000),
			Image:    body.Image,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, offer)
	}
}

// ListShopOffers returns every quote the calling shop has placed.
func ListShopOffers(svc offers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("offers"))
			return
		}
		actorID, err := requireActorID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.ListForShop(r.Context(), actorID)
		if err != nil && !degradedList(r, logg, err, "offers.list_for_shop") {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if list == nil {
			list = []models.Offer{}
		}
		responses.WriteSuccess(w, list)
	}
}

// AdminRescueDeadLead quotes on an unanswered request as the Town Hub.
func AdminRescueDeadLead(svc offers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("offers"))
			return
		}
		requestID, err := pathParam(r, "requestId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body rescueRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		offer, err := svc.RescueDeadLead(r.Context(), offers.RescueInput{
			RequestID: requestID,
			Price:     body.Price,
			Message:   validators.SanitizeMultiline(body.Message, 500),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, offer)
	}
}
