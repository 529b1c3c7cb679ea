package enums

import "fmt"

// AssignmentStatus tracks the delivery agent assignment on an order.
type AssignmentStatus string

const (
	AssignmentStatusUnassigned        AssignmentStatus = "unassigned"
	AssignmentStatusAssigned          AssignmentStatus = "assigned"
	AssignmentStatusAccepted          AssignmentStatus = "accepted"
	AssignmentStatusRejected          AssignmentStatus = "rejected"
	AssignmentStatusPickupCompleted   AssignmentStatus = "pickup_completed"
	AssignmentStatusLocationReached   AssignmentStatus = "location_reached"
	AssignmentStatusDeliveryCompleted AssignmentStatus = "delivery_completed"
)

var validAssignmentStatuses = []AssignmentStatus{
	AssignmentStatusUnassigned,
	AssignmentStatusAssigned,
	AssignmentStatusAccepted,
	AssignmentStatusRejected,
	AssignmentStatusPickupCompleted,
	AssignmentStatusLocationReached,
	AssignmentStatusDeliveryCompleted,
}

// String implements fmt.Stringer.
func (a AssignmentStatus) String() string {
	return string(a)
}

// IsValid reports whether the value is a known AssignmentStatus.
func (a AssignmentStatus) IsValid() bool {
	for _, candidate := range validAssignmentStatuses {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseAssignmentStatus converts raw input into a AssignmentStatus.
func ParseAssignmentStatus(value string) (AssignmentStatus, error) {
	for _, candidate := range validAssignmentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid assignment status %q", value)
}
