package main

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/locallink/locallink-backend/pkg/logger"
	"github.com/locallink/locallink-backend/pkg/redis"
)

type consumer interface {
	Run(ctx context.Context) error
}

// dependency is a named backend checked before consumers start.
type dependency struct {
	name   string
	pinger redis.Pinger
}

type ServiceParams struct {
	Logger       *logger.Logger
	Dependencies []dependency
	Consumers    map[string]consumer
}

// Service runs the event consumers of the worker process until one fails or
// the context ends.
type Service struct {
	logg      *logger.Logger
	deps      []dependency
	consumers map[string]consumer
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if len(params.Consumers) == 0 {
		return nil, errors.New("at least one consumer is required")
	}
	for name, c := range params.Consumers {
		if c == nil {
			return nil, fmt.Errorf("consumer %s is nil", name)
		}
	}
	return &Service{
		logg:      params.Logger,
		deps:      params.Dependencies,
		consumers: params.Consumers,
	}, nil
}

func (s *Service) ensureReadiness(ctx context.Context) error {
	for _, dep := range s.deps {
		if dep.pinger == nil {
			continue
		}
		if err := dep.pinger.Ping(ctx); err != nil {
			s.logg.Error(ctx, fmt.Sprintf("%s ping failed", dep.name), err)
			return fmt.Errorf("%s ping failed: %w", dep.name, err)
		}
	}
	s.logg.Info(ctx, "all worker dependencies are ready")
	return nil
}

func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := s.ensureReadiness(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	for name, c := range s.consumers {
		g.Go(func() error {
			consumerCtx := s.logg.WithField(gctx, "consumer", name)
			s.logg.Info(consumerCtx, "consumer starting")
			err := c.Run(consumerCtx)
			if err != nil && !errors.Is(err, context.Canceled) {
				s.logg.Error(consumerCtx, "consumer stopped unexpectedly", err)
				return fmt.Errorf("consumer %s: %w", name, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
