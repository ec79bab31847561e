package enums

import "fmt"

// OrderStatus advances strictly forward; delivered is terminal.
type OrderStatus string

const (
	OrderStatusPendingAssignment OrderStatus = "pending_assignment"
	OrderStatusAssigned          OrderStatus = "assigned"
	OrderStatusCollected         OrderStatus = "collected"
	OrderStatusDelivered         OrderStatus = "delivered"
)

// orderStatusSequence is ordered; the index is the status rank.
var orderStatusSequence = []OrderStatus{
	OrderStatusPendingAssignment,
	OrderStatusAssigned,
	OrderStatusCollected,
	OrderStatusDelivered,
}

// String implements fmt.Stringer.
func (s OrderStatus) String() string {
	return string(s)
}

// IsValid reports whether the status is known.
func (s OrderStatus) IsValid() bool {
	return s.Rank() >= 0
}

// Rank returns the position of s in the lifecycle, or -1 when unknown.
func (s OrderStatus) Rank() int {
	for i, candidate := range orderStatusSequence {
		if candidate == s {
			return i
		}
	}
	return -1
}

// Next returns the only status s may advance to.
func (s OrderStatus) Next() (OrderStatus, bool) {
	rank := s.Rank()
	if rank < 0 || rank == len(orderStatusSequence)-1 {
		return "", false
	}
	return orderStatusSequence[rank+1], true
}

// IsTerminal reports whether s is delivered.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusDelivered
}

// ParseOrderStatus converts raw input into an OrderStatus.
func ParseOrderStatus(value string) (OrderStatus, error) {
	for _, candidate := range orderStatusSequence {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order status %q", value)
}
