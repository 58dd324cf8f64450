package enums

import "fmt"

// OrderStatus tracks the lifecycle of a payment transaction.
type OrderStatus string

const (
	OrderStatusSucceeded  OrderStatus = "succeeded"
	OrderStatusRefunded   OrderStatus = "refunded"
	OrderStatusChargeback OrderStatus = "chargeback"
)

var validOrderStatuses = []OrderStatus{
	OrderStatusSucceeded,
	OrderStatusRefunded,
	OrderStatusChargeback,
}

// String implements fmt.Stringer.
func (o OrderStatus) String() string {
	return string(o)
}

// IsValid reports whether the value is a known OrderStatus.
func (o OrderStatus) IsValid() bool {
	for _, candidate := range validOrderStatuses {
		if candidate == o {
			return true
		}
	}
	return false
}

// ParseOrderStatus converts raw input into an OrderStatus.
func ParseOrderStatus(value string) (OrderStatus, error) {
	for _, candidate := range validOrderStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order status %q", value)
}
