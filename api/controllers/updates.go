package controllers

import (
	"net/http"

	"github.com/locallink/locallink-backend/api/responses"
	"github.com/locallink/locallink-backend/api/validators"
	"github.com/locallink/locallink-backend/internal/updates"
	"github.com/locallink/locallink-backend/internal/users"
	"github.com/locallink/locallink-backend/pkg/logger"
	"github.com/locallink/locallink-backend/pkg/models"
)

type postUpdateRequest struct {
	Text  string `json:"text" validate:"required,max=280"`
	Image string `json:"image"`
}

func PostUpdate(svc updates.Service, usersSvc users.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("updates"))
			return
		}
		shop, err := currentActor(r.Context(), usersSvc)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body postUpdateRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		update, err := svc.Post(r.Context(), shop, updates.PostInput{
			Text:  validators.SanitizeMultiline(body.Text, 280),
			Image: body.Image,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, update)
	}
}

func ListUpdates(svc updates.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("updates"))
			return
		}
		list, err := svc.ListLive(r.Context())
		if err != nil && !degradedList(r, logg, err, "updates.list") {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if list == nil {
			list = []models.DailyUpdate{}
		}
		responses.WriteSuccess(w, list)
	}
}
