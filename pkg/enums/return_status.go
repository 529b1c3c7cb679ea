package enums

import "fmt"

// ReturnStatus tracks the post-delivery return workflow.
type ReturnStatus string

const (
	ReturnStatusEligible         ReturnStatus = "eligible"
	ReturnStatusRequested        ReturnStatus = "requested"
	ReturnStatusApproved         ReturnStatus = "approved"
	ReturnStatusAssigned         ReturnStatus = "assigned"
	ReturnStatusAccepted         ReturnStatus = "accepted"
	ReturnStatusPickedUp         ReturnStatus = "picked_up"
	ReturnStatusReturnedToSeller ReturnStatus = "returned_to_seller"
	ReturnStatusCompleted        ReturnStatus = "completed"
	ReturnStatusRejected         ReturnStatus = "rejected"
)

var validReturnStatuses = []ReturnStatus{
	ReturnStatusEligible,
	ReturnStatusRequested,
	ReturnStatusApproved,
	ReturnStatusAssigned,
	ReturnStatusAccepted,
	ReturnStatusPickedUp,
	ReturnStatusReturnedToSeller,
	ReturnStatusCompleted,
	ReturnStatusRejected,
}

// String implements fmt.Stringer.
func (r ReturnStatus) String() string {
	return string(r)
}

// IsValid reports whether the value is a known ReturnStatus.
func (r ReturnStatus) IsValid() bool {
	for _, candidate := range validReturnStatuses {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseReturnStatus converts raw input into a ReturnStatus.
func ParseReturnStatus(value string) (ReturnStatus, error) {
	for _, candidate := range validReturnStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid return status %q", value)
}

// IsTerminal reports whether the return workflow has finished.
func (r ReturnStatus) IsTerminal() bool {
	return r == ReturnStatusCompleted || r == ReturnStatusRejected
}

// BlocksPayout reports whether a return in this state holds back settlement.
func (r ReturnStatus) BlocksPayout() bool {
	switch r {
	case "", ReturnStatusEligible, ReturnStatusRejected:
		return false
	}
	return true
}
