package enums

import "fmt"

// AcceptanceStep is the saga marker persisted on an order while an offer
// acceptance is in flight. Committed means every step landed.
type AcceptanceStep string

const (
	AcceptanceOrderCreated   AcceptanceStep = "order_created"
	AcceptanceRivalsRejected AcceptanceStep = "rivals_rejected"
	AcceptanceOfferAccepted  AcceptanceStep = "offer_accepted"
	AcceptanceCommitted      AcceptanceStep = "committed"
)

var acceptanceSequence = []AcceptanceStep{
	AcceptanceOrderCreated,
	AcceptanceRivalsRejected,
	AcceptanceOfferAccepted,
	AcceptanceCommitted,
}

// String implements fmt.Stringer.
func (s AcceptanceStep) String() string {
	return string(s)
}

// IsValid reports whether the step is known.
func (s AcceptanceStep) IsValid() bool {
	return s.Rank() >= 0
}

// Rank is the position of s in the saga, or -1.
func (s AcceptanceStep) Rank() int {
	for i, candidate := range acceptanceSequence {
		if candidate == s {
			return i
		}
	}
	return -1
}

// Reached reports whether s is at or past target.
func (s AcceptanceStep) Reached(target AcceptanceStep) bool {
	return s.Rank() >= target.Rank()
}

// InFlight is true until the saga commits. Orders written before the marker
// existed carry an empty step and count as committed.
func (s AcceptanceStep) InFlight() bool {
	return s != "" && s != AcceptanceCommitted
}

// ParseAcceptanceStep converts raw input into an AcceptanceStep.
func ParseAcceptanceStep(value string) (AcceptanceStep, error) {
	for _, candidate := range acceptanceSequence {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid acceptance step %q", value)
}
