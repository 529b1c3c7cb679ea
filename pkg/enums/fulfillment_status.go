package enums

import "fmt"

// FulfillmentStatus tracks the physical progress of an order.
type FulfillmentStatus string

const (
	FulfillmentStatusPending        FulfillmentStatus = "Pending"
	FulfillmentStatusProcessing     FulfillmentStatus = "Processing"
	FulfillmentStatusShipped        FulfillmentStatus = "Shipped"
	FulfillmentStatusPickupReady    FulfillmentStatus = "Pickup_Ready"
	FulfillmentStatusOutForDelivery FulfillmentStatus = "Out_for_Delivery"
	FulfillmentStatusDelivered      FulfillmentStatus = "Delivered"
	FulfillmentStatusCancelled      FulfillmentStatus = "Cancelled"
)

var validFulfillmentStatuses = []FulfillmentStatus{
	FulfillmentStatusPending,
	FulfillmentStatusProcessing,
	FulfillmentStatusShipped,
	FulfillmentStatusPickupReady,
	FulfillmentStatusOutForDelivery,
	FulfillmentStatusDelivered,
	FulfillmentStatusCancelled,
}

// String implements fmt.Stringer.
func (s FulfillmentStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known FulfillmentStatus.
func (s FulfillmentStatus) IsValid() bool {
	for _, candidate := range validFulfillmentStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseFulfillmentStatus converts raw input into a FulfillmentStatus.
func ParseFulfillmentStatus(value string) (FulfillmentStatus, error) {
	for _, candidate := range validFulfillmentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid fulfillment status %q", value)
}

// IsCancellable reports whether a human may still cancel the order.
func (s FulfillmentStatus) IsCancellable() bool {
	return s == FulfillmentStatusPending || s == FulfillmentStatusProcessing
}
