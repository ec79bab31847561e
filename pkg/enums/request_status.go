package enums

import "fmt"

// RequestStatus tracks a product request from assistant draft to fulfilment.
type RequestStatus string

const (
	RequestStatusDrafting    RequestStatus = "drafting"
	RequestStatusSummarized  RequestStatus = "summarized"
	RequestStatusBroadcasted RequestStatus = "broadcasted"
	RequestStatusFulfilled   RequestStatus = "fulfilled"
	RequestStatusCancelled   RequestStatus = "cancelled"
)

var validRequestStatuses = []RequestStatus{
	RequestStatusDrafting,
	RequestStatusSummarized,
	RequestStatusBroadcasted,
	RequestStatusFulfilled,
	RequestStatusCancelled,
}

// String implements fmt.Stringer.
func (s RequestStatus) String() string {
	return string(s)
}

// IsValid reports whether the status is known.
func (s RequestStatus) IsValid() bool {
	for _, candidate := range validRequestStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// AcceptsOffers is true only while the request is live on the town broadcast.
func (s RequestStatus) AcceptsOffers() bool {
	return s == RequestStatusBroadcasted
}

// ParseRequestStatus converts raw input into a RequestStatus.
func ParseRequestStatus(value string) (RequestStatus, error) {
	for _, candidate := range validRequestStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid request status %q", value)
}
