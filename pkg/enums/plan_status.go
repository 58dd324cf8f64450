package enums

import "fmt"

// PlanStatus tracks the delivery state of a generated meal plan.
type PlanStatus string

const (
	PlanStatusProcessing PlanStatus = "processing"
	PlanStatusCompleted  PlanStatus = "completed"
	PlanStatusFailed     PlanStatus = "failed"
	PlanStatusRefunded   PlanStatus = "refunded"
)

var validPlanStatuses = []PlanStatus{
	PlanStatusProcessing,
	PlanStatusCompleted,
	PlanStatusFailed,
	PlanStatusRefunded,
}

// String implements fmt.Stringer.
func (p PlanStatus) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PlanStatus.
func (p PlanStatus) IsValid() bool {
	for _, candidate := range validPlanStatuses {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePlanStatus converts raw input into a PlanStatus.
func ParsePlanStatus(value string) (PlanStatus, error) {
	for _, candidate := range validPlanStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid plan status %q", value)
}
