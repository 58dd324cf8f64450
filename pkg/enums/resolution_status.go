package enums

import "fmt"

// ResolutionStatus tracks a manual-resolution entry through its lifecycle.
type ResolutionStatus string

const (
	ResolutionStatusPending           ResolutionStatus = "pending"
	ResolutionStatusInProgress        ResolutionStatus = "in_progress"
	ResolutionStatusResolved          ResolutionStatus = "resolved"
	ResolutionStatusEscalated         ResolutionStatus = "escalated"
	ResolutionStatusSLAMissedRefunded ResolutionStatus = "sla_missed_refunded"
)

var validResolutionStatuses = []ResolutionStatus{
	ResolutionStatusPending,
	ResolutionStatusInProgress,
	ResolutionStatusResolved,
	ResolutionStatusEscalated,
	ResolutionStatusSLAMissedRefunded,
}

// String implements fmt.Stringer.
func (r ResolutionStatus) String() string {
	return string(r)
}

// IsValid reports whether the value is a known ResolutionStatus.
func (r ResolutionStatus) IsValid() bool {
	for _, candidate := range validResolutionStatuses {
		if candidate == r {
			return true
		}
	}
	return false
}

// IsActive reports whether the entry still needs human or monitor attention.
func (r ResolutionStatus) IsActive() bool {
	return r == ResolutionStatusPending || r == ResolutionStatusInProgress
}

// IsTerminal reports whether no further transitions are allowed.
func (r ResolutionStatus) IsTerminal() bool {
	switch r {
	case ResolutionStatusResolved, ResolutionStatusEscalated, ResolutionStatusSLAMissedRefunded:
		return true
	}
	return false
}

// ParseResolutionStatus converts raw input into a ResolutionStatus.
func ParseResolutionStatus(value string) (ResolutionStatus, error) {
	for _, candidate := range validResolutionStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid resolution status %q", value)
}
