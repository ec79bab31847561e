package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/locallink/locallink-backend/api/middleware"
	"github.com/locallink/locallink-backend/pkg/enums"
	pkgerrors "github.com/locallink/locallink-backend/pkg/errors"
	"github.com/locallink/locallink-backend/pkg/logger"
	"github.com/locallink/locallink-backend/pkg/models"
)

// actorLoader is the slice of users.Service the handlers need to resolve
// the caller's profile.
type actorLoader interface {
	Get(ctx context.Context, id string) (*models.Actor, error)
}

// currentActor loads the authenticated caller's profile.
func currentActor(ctx context.Context, loader actorLoader) (models.Actor, error) {
	actorID := middleware.ActorIDFromContext(ctx)
	if actorID == "" {
		return models.Actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor context missing")
	}
	if loader == nil {
		return models.Actor{}, pkgerrors.New(pkgerrors.CodeInternal, "users service unavailable")
	}
	actor, err := loader.Get(ctx, actorID)
	if err != nil {
		return models.Actor{}, err
	}
	return *actor, nil
}

func pathParam(r *http.Request, key string) (string, error) {
	value := strings.TrimSpace(chi.URLParam(r, key))
	if value == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, key+" is required")
	}
	return value, nil
}

func unavailable(name string) error {
	return pkgerrors.New(pkgerrors.CodeInternal, name+" service unavailable")
}

// degradedList reports whether a failed list read should be served as an
// empty list. Only store outages degrade; every other error is returned.
func degradedList(r *http.Request, logg *logger.Logger, err error, op string) bool {
	if !pkgerrors.IsCode(err, pkgerrors.CodeDependency) {
		return false
	}
	if logg != nil {
		logg.Warn(logg.WithField(r.Context(), "error", err.Error()), op+".degraded")
	}
	return true
}

func requireActorID(r *http.Request) (string, error) {
	actorID := middleware.ActorIDFromContext(r.Context())
	if actorID == "" {
		return "", pkgerrors.New(pkgerrors.CodeUnauthorized, "actor context missing")
	}
	return actorID, nil
}

func roleOf(r *http.Request) enums.ActorRole {
	return middleware.RoleFromContext(r.Context())
}
