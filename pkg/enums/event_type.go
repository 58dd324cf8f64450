package enums

import "fmt"

// EventType classifies incoming payment-provider webhook events.
type EventType string

const (
	EventTypeSucceeded  EventType = "succeeded"
	EventTypeRefunded   EventType = "refunded"
	EventTypeChargeback EventType = "chargeback"
)

var validEventTypes = []EventType{
	EventTypeSucceeded,
	EventTypeRefunded,
	EventTypeChargeback,
}

// String implements fmt.Stringer.
func (e EventType) String() string {
	return string(e)
}

// IsValid reports whether the value is a known EventType.
func (e EventType) IsValid() bool {
	for _, candidate := range validEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseEventType converts raw input into an EventType.
func ParseEventType(value string) (EventType, error) {
	for _, candidate := range validEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
