package outbox

import (
	"encoding/json"
	"time"

	"github.com/locallink/locallink-backend/pkg/enums"
)

// ActorRef identifies who produced the event.
type ActorRef struct {
	ActorID string          `json:"actorId"`
	Role    enums.ActorRole `json:"role,omitempty"`
}

// PayloadEnvelope is the stable message body published for every domain event.
type PayloadEnvelope struct {
	Version       int                 `json:"version"`
	EventID       string              `json:"eventId"`
	EventType     enums.EventType     `json:"eventType"`
	AggregateType enums.AggregateType `json:"aggregateType"`
	AggregateID   string              `json:"aggregateId"`
	OccurredAt    time.Time           `json:"occurredAt"`
	Actor         *ActorRef           `json:"actor,omitempty"`
	Data          json.RawMessage     `json:"data"`
}

// Attributes are the broker-level attributes used for subscription filters.
func (e PayloadEnvelope) Attributes() map[string]string {
	return map[string]string{
		"event_type":     string(e.EventType),
		"aggregate_type": string(e.AggregateType),
		"aggregate_id":   e.AggregateID,
	}
}
