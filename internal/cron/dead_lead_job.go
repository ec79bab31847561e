package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/locallink/locallink-backend/internal/market"
	"github.com/locallink/locallink-backend/pkg/docstore"
	"github.com/locallink/locallink-backend/pkg/enums"
	"github.com/locallink/locallink-backend/pkg/logger"
	"github.com/locallink/locallink-backend/pkg/outbox"
	"github.com/locallink/locallink-backend/pkg/outbox/payloads"
)

const deadLeadAlertConsumer = "dead-lead-alert"

type outboxEmitter interface {
	Emit(ctx context.Context, event outbox.DomainEvent) error
}

type processedMarker interface {
	Begin(ctx context.Context, consumer, id string) (bool, error)
	Complete(ctx context.Context, consumer, id string) error
	Release(ctx context.Context, consumer, id string) error
}

// DeadLeadJobParams configure the dead-lead alert job.
type DeadLeadJobParams struct {
	Logger      *logger.Logger
	Store       docstore.Store
	Outbox      outboxEmitter
	Idempotency processedMarker
	Grace       time.Duration
}

// NewDeadLeadJob builds the job that announces each request left without
// a quote past the grace window. A request is announced once.
func NewDeadLeadJob(params DeadLeadJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Store == nil {
		return nil, fmt.Errorf("document store required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox service required")
	}
	if params.Idempotency == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	grace := params.Grace
	if grace <= 0 {
		grace = market.DefaultDeadLeadGrace
	}
	return &deadLeadJob{
		logg:   params.Logger,
		store:  params.Store,
		outbox: params.Outbox,
		marks:  params.Idempotency,
		grace:  grace,
		now:    time.Now,
	}, nil
}

type deadLeadJob struct {
	logg   *logger.Logger
	store  docstore.Store
	outbox outboxEmitter
	marks  processedMarker
	grace  time.Duration
	now    func() time.Time
}

func (j *deadLeadJob) Name() string { return "dead-lead-alert" }

func (j *deadLeadJob) Run(ctx context.Context) error {
	now := j.now()
	snap, err := market.LoadSnapshot(ctx, j.store, market.Options{
		Logger: j.logg,
		Now:    func() time.Time { return now },
	})
	if err != nil {
		return fmt.Errorf("load market snapshot: %w", err)
	}

	var errs []error
	announced := 0
	for _, lead := range market.DeadLeads(snap, now, j.grace) {
		seen, err := j.marks.Begin(ctx, deadLeadAlertConsumer, lead.ID)
		if err != nil {
			errs = append(errs, fmt.Errorf("mark %s: %w", lead.ID, err))
			continue
		}
		if seen {
			continue
		}

		event := outbox.DomainEvent{
			EventType:     enums.EventDeadLeadDetected,
			AggregateType: enums.AggregateRequest,
			AggregateID:   lead.ID,
			Data: payloads.DeadLeadEvent{
				RequestID: lead.ID,
				City:      lead.City,
				AgeSecs:   (now.UnixMilli() - lead.CreatedAt) / 1000,
			},
			OccurredAt: now.UTC(),
		}
		if err := j.outbox.Emit(ctx, event); err != nil {
			if delErr := j.marks.Release(ctx, deadLeadAlertConsumer, lead.ID); delErr != nil {
				err = multierr.Append(err, delErr)
			}
			errs = append(errs, fmt.Errorf("emit dead lead %s: %w", lead.ID, err))
			continue
		}
		if err := j.marks.Complete(ctx, deadLeadAlertConsumer, lead.ID); err != nil {
			errs = append(errs, fmt.Errorf("complete %s: %w", lead.ID, err))
		}
		announced++
	}

	j.logg.Info(j.logg.WithField(ctx, "announced", announced), "dead lead scan complete")
	return multierr.Combine(errs...)
}
