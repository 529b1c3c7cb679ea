package enums

import "fmt"

// PayoutBatchStatus is derived from the child payouts of a batch.
type PayoutBatchStatus string

const (
	PayoutBatchStatusPending         PayoutBatchStatus = "pending"
	PayoutBatchStatusInitiated       PayoutBatchStatus = "initiated"
	PayoutBatchStatusCompleted       PayoutBatchStatus = "completed"
	PayoutBatchStatusPartiallyFailed PayoutBatchStatus = "partially_failed"
	// PayoutBatchStatusSuperseded marks a batch whose payouts all moved to a
	// later batch.
	PayoutBatchStatusSuperseded PayoutBatchStatus = "superseded"
)

var validPayoutBatchStatuses = []PayoutBatchStatus{
	PayoutBatchStatusPending,
	PayoutBatchStatusInitiated,
	PayoutBatchStatusCompleted,
	PayoutBatchStatusPartiallyFailed,
	PayoutBatchStatusSuperseded,
}

// String implements fmt.Stringer.
func (p PayoutBatchStatus) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PayoutBatchStatus.
func (p PayoutBatchStatus) IsValid() bool {
	for _, candidate := range validPayoutBatchStatuses {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePayoutBatchStatus converts raw input into a PayoutBatchStatus.
func ParsePayoutBatchStatus(value string) (PayoutBatchStatus, error) {
	for _, candidate := range validPayoutBatchStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payout batch status %q", value)
}
