package enums

import "fmt"

// AggregateType names the entity a domain event is about.
type AggregateType string

const (
	AggregateRequest AggregateType = "request"
	AggregateOffer   AggregateType = "offer"
	AggregateOrder   AggregateType = "order"
	AggregateUser    AggregateType = "user"
)

var validAggregateTypes = []AggregateType{
	AggregateRequest,
	AggregateOffer,
	AggregateOrder,
	AggregateUser,
}

// IsValid reports whether the aggregate type is known.
func (a AggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseAggregateType converts raw input into AggregateType.
func ParseAggregateType(value string) (AggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// EventType names a domain event published on the marketplace topic.
type EventType string

const (
	EventRequestBroadcasted EventType = "request_broadcasted"
	EventOfferSubmitted     EventType = "offer_submitted"
	EventOrderCreated       EventType = "order_created"
	EventDeliveryClaimed    EventType = "delivery_claimed"
	EventOrderStatusChanged EventType = "order_status_changed"
	EventCounterpartyRated  EventType = "counterparty_rated"
	EventDeadLeadDetected   EventType = "dead_lead_detected"
	EventDeadLeadRescued    EventType = "dead_lead_rescued"
	EventAcceptanceResumed  EventType = "acceptance_resumed"
)

var validEventTypes = []EventType{
	EventRequestBroadcasted,
	EventOfferSubmitted,
	EventOrderCreated,
	EventDeliveryClaimed,
	EventOrderStatusChanged,
	EventCounterpartyRated,
	EventDeadLeadDetected,
	EventDeadLeadRescued,
	EventAcceptanceResumed,
}

// IsValid reports whether the event type is known.
func (e EventType) IsValid() bool {
	for _, candidate := range validEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseEventType converts raw input into EventType.
func ParseEventType(value string) (EventType, error) {
	for _, candidate := range validEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
