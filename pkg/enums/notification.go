package enums

import "fmt"

// NotificationType tags an inbox entry.
type NotificationType string

const (
	NotificationTypeOrder  NotificationType = "order"
	NotificationTypeOffer  NotificationType = "offer"
	NotificationTypeChat   NotificationType = "chat"
	NotificationTypeSystem NotificationType = "system"
	NotificationTypeLead   NotificationType = "lead"
)

var validNotificationTypes = []NotificationType{
	NotificationTypeOrder,
	NotificationTypeOffer,
	NotificationTypeChat,
	NotificationTypeSystem,
	NotificationTypeLead,
}

// IsValid checks whether the given type matches the canonical enum.
func (n NotificationType) IsValid() bool {
	for _, candidate := range validNotificationTypes {
		if candidate == n {
			return true
		}
	}
	return false
}

// ParseNotificationType converts raw strings into NotificationType.
func ParseNotificationType(value string) (NotificationType, error) {
	for _, candidate := range validNotificationTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification type %q", value)
}

// NotificationTypeFor maps a market signal to the inbox entry it produces.
func NotificationTypeFor(kind SignalKind) NotificationType {
	switch kind {
	case SignalOffer:
		return NotificationTypeOffer
	case SignalLead:
		return NotificationTypeLead
	case SignalOrder, SignalJob:
		return NotificationTypeOrder
	default:
		return NotificationTypeSystem
	}
}
