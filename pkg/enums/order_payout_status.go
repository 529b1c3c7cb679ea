package enums

import "fmt"

// OrderPayoutStatus is the settlement snapshot kept on the order.
type OrderPayoutStatus string

const (
	OrderPayoutStatusNotEligible OrderPayoutStatus = "not_eligible"
	OrderPayoutStatusEligible    OrderPayoutStatus = "eligible"
	OrderPayoutStatusProcessing  OrderPayoutStatus = "processing"
	OrderPayoutStatusCompleted   OrderPayoutStatus = "completed"
	OrderPayoutStatusFailed      OrderPayoutStatus = "failed"
	OrderPayoutStatusCancelled   OrderPayoutStatus = "cancelled"
)

var validOrderPayoutStatuses = []OrderPayoutStatus{
	OrderPayoutStatusNotEligible,
	OrderPayoutStatusEligible,
	OrderPayoutStatusProcessing,
	OrderPayoutStatusCompleted,
	OrderPayoutStatusFailed,
	OrderPayoutStatusCancelled,
}

// String implements fmt.Stringer.
func (o OrderPayoutStatus) String() string {
	return string(o)
}

// IsValid reports whether the value is a known OrderPayoutStatus.
func (o OrderPayoutStatus) IsValid() bool {
	for _, candidate := range validOrderPayoutStatuses {
		if candidate == o {
			return true
		}
	}
	return false
}

// ParseOrderPayoutStatus converts raw input into a OrderPayoutStatus.
func ParseOrderPayoutStatus(value string) (OrderPayoutStatus, error) {
	for _, candidate := range validOrderPayoutStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order payout status %q", value)
}
