package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/locallink/locallink-backend/pkg/logger"
	"github.com/locallink/locallink-backend/pkg/models"
)

const defaultAcceptanceStaleAfter = 2 * time.Minute

type acceptanceReconciler interface {
	StalledAcceptances(ctx context.Context, olderThan time.Duration) ([]models.Order, error)
	ResumeAcceptance(ctx context.Context, orderID string) (*models.Order, error)
	RecoverOrphanedLocks(ctx context.Context, olderThan time.Duration) ([]string, error)
}

// AcceptanceJobParams configure the stalled acceptance reconciler.
type AcceptanceJobParams struct {
	Logger     *logger.Logger
	Orders     acceptanceReconciler
	StaleAfter time.Duration
}

// NewAcceptanceJob builds the job that drives interrupted acceptances to
// completion: requests locked without an order first, then orders whose
// saga marker stopped moving.
func NewAcceptanceJob(params AcceptanceJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders service required")
	}
	stale := params.StaleAfter
	if stale <= 0 {
		stale = defaultAcceptanceStaleAfter
	}
	return &acceptanceJob{
		logg:   params.Logger,
		orders: params.Orders,
		stale:  stale,
	}, nil
}

type acceptanceJob struct {
	logg   *logger.Logger
	orders acceptanceReconciler
	stale  time.Duration
}

func (j *acceptanceJob) Name() string { return "acceptance-reconcile" }

func (j *acceptanceJob) Run(ctx context.Context) error {
	var errs []error
	recovered, err := j.orders.RecoverOrphanedLocks(ctx, j.stale)
	if err != nil {
		errs = append(errs, fmt.Errorf("recover orphaned locks: %w", err))
	}

	stalled, err := j.orders.StalledAcceptances(ctx, j.stale)
	if err != nil {
		return multierr.Append(multierr.Combine(errs...), fmt.Errorf("list stalled acceptances: %w", err))
	}

	resumed := 0
	for _, order := range stalled {
		if _, err := j.orders.ResumeAcceptance(ctx, order.ID); err != nil {
			errs = append(errs, fmt.Errorf("resume %s: %w", order.ID, err))
			continue
		}
		resumed++
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"recovered": len(recovered),
		"stalled":   len(stalled),
		"resumed":   resumed,
	}), "acceptance reconcile complete")
	return multierr.Combine(errs...)
}
