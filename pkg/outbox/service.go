package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/locallink/locallink-backend/pkg/enums"
	"github.com/locallink/locallink-backend/pkg/logger"
)

const currentVersion = 1

type DomainEvent struct {
	EventType     enums.EventType
	AggregateType enums.AggregateType
	AggregateID   string
	Actor         *ActorRef
	Data          interface{}
	Version       int
	OccurredAt    time.Time
}

// Message is one encoded envelope ready for the broker.
type Message struct {
	ID         string
	Attributes map[string]string
	Body       []byte
}

// Publisher delivers encoded events to the broker.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

type Service struct {
	publisher Publisher
	logg      *logger.Logger
	now       func() time.Time
}

// NewService builds an emitter. A nil publisher keeps events in the log only,
// which is how local and test deployments run without a broker.
func NewService(publisher Publisher, logg *logger.Logger) *Service {
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{publisher: publisher, logg: logg, now: time.Now}
}

// Encode builds the envelope for event.
func Encode(event DomainEvent, eventID string, now time.Time) (PayloadEnvelope, []byte, error) {
	if !event.EventType.IsValid() {
		return PayloadEnvelope{}, nil, fmt.Errorf("invalid event type %q", event.EventType)
	}
	if !event.AggregateType.IsValid() {
		return PayloadEnvelope{}, nil, fmt.Errorf("invalid aggregate type %q", event.AggregateType)
	}
	if event.AggregateID == "" {
		return PayloadEnvelope{}, nil, fmt.Errorf("aggregate id required")
	}
	payload, err := json.Marshal(event.Data)
	if err != nil {
		return PayloadEnvelope{}, nil, err
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = now
	}
	if event.Version == 0 {
		event.Version = currentVersion
	}
	envelope := PayloadEnvelope{
		Version:       event.Version,
		EventID:       eventID,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		OccurredAt:    event.OccurredAt.UTC(),
		Actor:         event.Actor,
		Data:          payload,
	}
	body, err := json.Marshal(envelope)
	if err != nil {
		return PayloadEnvelope{}, nil, err
	}
	return envelope, body, nil
}

// Emit encodes and publishes event.
func (s *Service) Emit(ctx context.Context, event DomainEvent) error {
	if ctx == nil {
		ctx = context.Background()
	}
	envelope, body, err := Encode(event, uuid.NewString(), s.now())
	if err != nil {
		return err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"event_id":       envelope.EventID,
		"event_type":     envelope.EventType,
		"aggregate_id":   envelope.AggregateID,
		"aggregate_type": envelope.AggregateType,
	})
	if s.publisher == nil {
		s.logg.Debug(logCtx, "outbox event dropped (no publisher)")
		return nil
	}
	if err := s.publisher.Publish(ctx, Message{
		ID:         envelope.EventID,
		Attributes: envelope.Attributes(),
		Body:       body,
	}); err != nil {
		return fmt.Errorf("publish %s: %w", envelope.EventType, err)
	}
	s.logg.Info(logCtx, "outbox event published")
	return nil
}
