package enums

import "fmt"

// IssueType names the terminal failure class behind a manual-resolution entry.
type IssueType string

const (
	IssueTypeMissingIntakeData          IssueType = "missing_intake_data"
	IssueTypeGenerationValidationFailed IssueType = "generation_validation_failed"
	IssueTypeNotificationFailed         IssueType = "notification_failed"
	IssueTypeManualRefundRequired       IssueType = "manual_refund_required"
)

var validIssueTypes = []IssueType{
	IssueTypeMissingIntakeData,
	IssueTypeGenerationValidationFailed,
	IssueTypeNotificationFailed,
	IssueTypeManualRefundRequired,
}

// String implements fmt.Stringer.
func (i IssueType) String() string {
	return string(i)
}

// IsValid reports whether the value is a known IssueType.
func (i IssueType) IsValid() bool {
	for _, candidate := range validIssueTypes {
		if candidate == i {
			return true
		}
	}
	return false
}

// ParseIssueType converts raw input into an IssueType.
func ParseIssueType(value string) (IssueType, error) {
	for _, candidate := range validIssueTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid issue type %q", value)
}
