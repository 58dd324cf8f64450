package enums

import "fmt"

// BlacklistReason records why an identity was blocked from checkout.
type BlacklistReason string

const (
	BlacklistReasonChargeback  BlacklistReason = "chargeback"
	BlacklistReasonRefundAbuse BlacklistReason = "refund_abuse"
)

var validBlacklistReasons = []BlacklistReason{
	BlacklistReasonChargeback,
	BlacklistReasonRefundAbuse,
}

// String implements fmt.Stringer.
func (b BlacklistReason) String() string {
	return string(b)
}

// IsValid reports whether the value is a known BlacklistReason.
func (b BlacklistReason) IsValid() bool {
	for _, candidate := range validBlacklistReasons {
		if candidate == b {
			return true
		}
	}
	return false
}

// ParseBlacklistReason converts raw input into a BlacklistReason.
func ParseBlacklistReason(value string) (BlacklistReason, error) {
	for _, candidate := range validBlacklistReasons {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid blacklist reason %q", value)
}
