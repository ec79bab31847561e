package orders

import (
	"context"
	"errors"

	"github.com/locallink/locallink-backend/pkg/docstore"
	"github.com/locallink/locallink-backend/pkg/enums"
	pkgerrors "github.com/locallink/locallink-backend/pkg/errors"
	"github.com/locallink/locallink-backend/pkg/metrics"
	"github.com/locallink/locallink-backend/pkg/models"
	"github.com/locallink/locallink-backend/pkg/outbox"
	"github.com/locallink/locallink-backend/pkg/outbox/payloads"
	"github.com/sethvargo/go-retry"
)

const opRate = "rate"

// Rate applies one side's rating of the counterparty. The order's rated flag
// is claimed first, so repeating the call never counts twice; the user's
// running average is then updated under a revision check.
func (s *service) Rate(ctx context.Context, input RateInput) (*RateResult, error) {
	if input.OrderID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if input.Stars < 1 || input.Stars > 5 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "stars must be between 1 and 5")
	}
	ctx = s.logg.WithOrderID(ctx, input.OrderID)

	order, _, err := s.loadOrder(ctx, input.OrderID)
	if err != nil {
		return nil, err
	}
	if order.Status != enums.OrderStatusDelivered {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order is not delivered yet")
	}

	var flag, ratedID string
	switch input.RaterRole {
	case enums.ActorRoleCustomer:
		if input.RaterID != order.CustomerID {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the order's customer can rate the shop")
		}
		flag, ratedID = "shopRated", order.ShopID
	case enums.ActorRoleShopOwner:
		if input.RaterID != order.ShopID {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the order's shop can rate the customer")
		}
		flag, ratedID = "customerRated", order.CustomerID
	default:
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "role cannot rate orders")
	}

	_, err = s.store.Write(ctx, docstore.CollectionOrders, order.ID,
		map[string]any{flag: true},
		docstore.When(flag, false, nil),
	)
	if errors.Is(err, docstore.ErrPreconditionFailed) {
		s.metrics.ObserveTransition(opRate, metrics.OutcomeNoop)
		return &RateResult{Applied: false, RatedID: ratedID}, nil
	}
	if err != nil {
		s.metrics.ObserveTransition(opRate, metrics.OutcomeError)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "failed to record rating")
	}

	result := &RateResult{Applied: true, RatedID: ratedID}
	if ratedID == models.TownHubID {
		// the rescue identity has no profile to aggregate into
		s.metrics.ObserveTransition(opRate, metrics.OutcomeOK)
		return result, nil
	}

	rating, total, err := s.applyRating(ctx, ratedID, input.Stars)
	if err != nil {
		s.releaseFlag(ctx, order.ID, flag)
		s.metrics.ObserveTransition(opRate, metrics.OutcomeError)
		return nil, err
	}
	result.NewRating = rating
	result.TotalRatings = total

	s.metrics.ObserveTransition(opRate, metrics.OutcomeOK)
	s.emit(ctx, outbox.DomainEvent{
		EventType:     enums.EventCounterpartyRated,
		AggregateType: enums.AggregateUser,
		AggregateID:   ratedID,
		Actor:         &outbox.ActorRef{ActorID: input.RaterID, Role: input.RaterRole},
		Data: payloads.CounterpartyRatedEvent{
			OrderID:      order.ID,
			RatedID:      ratedID,
			RaterRole:    input.RaterRole,
			Stars:        input.Stars,
			NewRating:    rating,
			TotalRatings: total,
		},
	})
	return result, nil
}

// NextRating folds stars into a running average over total ratings.
func NextRating(current float64, total, stars int) (float64, int) {
	if total < 0 {
		total = 0
	}
	return (current*float64(total) + float64(stars)) / float64(total+1), total + 1
}

func (s *service) applyRating(ctx context.Context, userID string, stars int) (float64, int, error) {
	var rating float64
	var total int
	backoff := retry.WithMaxRetries(s.ratingRetries, retry.NewConstant(ratingRetryDelay))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		doc, err := s.store.Get(ctx, docstore.CollectionUsers, userID)
		if err != nil {
			return storeError(err, "rated user")
		}
		actor, err := models.ActorFromDocument(*doc)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "stored profile is invalid")
		}
		rating, total = NextRating(actor.Rating, actor.TotalRatings, stars)
		_, err = s.store.Write(ctx, docstore.CollectionUsers, userID,
			map[string]any{"rating": rating, "totalRatings": total},
			docstore.IfRevision(doc.Revision),
		)
		if errors.Is(err, docstore.ErrPreconditionFailed) {
			return retry.RetryableError(err)
		}
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "failed to update rating")
		}
		return nil
	})
	if errors.Is(err, docstore.ErrPreconditionFailed) {
		return 0, 0, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "rating contention, try again")
	}
	return rating, total, err
}

// releaseFlag reopens the rating slot when the aggregate update failed so
// the rater can try again.
func (s *service) releaseFlag(ctx context.Context, orderID, flag string) {
	_, err := s.store.Write(ctx, docstore.CollectionOrders, orderID,
		map[string]any{flag: false},
		docstore.When(flag, true),
	)
	if err != nil {
		s.logg.Error(s.logg.WithField(ctx, "flag", flag), "orders.rate.release_failed", err)
	}
}
