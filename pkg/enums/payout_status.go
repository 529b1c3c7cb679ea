package enums

import "fmt"

// PayoutStatus tracks a single transfer at the payout provider.
type PayoutStatus string

const (
	PayoutStatusPending         PayoutStatus = "pending"
	PayoutStatusInitiated       PayoutStatus = "initiated"
	PayoutStatusProcessing      PayoutStatus = "processing"
	PayoutStatusCompleted       PayoutStatus = "completed"
	PayoutStatusFailed          PayoutStatus = "failed"
	PayoutStatusCancelled       PayoutStatus = "cancelled"
	PayoutStatusReversed        PayoutStatus = "reversed"
	PayoutStatusApprovalPending PayoutStatus = "approval_pending"
)

var validPayoutStatuses = []PayoutStatus{
	PayoutStatusPending,
	PayoutStatusInitiated,
	PayoutStatusProcessing,
	PayoutStatusCompleted,
	PayoutStatusFailed,
	PayoutStatusCancelled,
	PayoutStatusReversed,
	PayoutStatusApprovalPending,
}

// String implements fmt.Stringer.
func (p PayoutStatus) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PayoutStatus.
func (p PayoutStatus) IsValid() bool {
	for _, candidate := range validPayoutStatuses {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePayoutStatus converts raw input into a PayoutStatus.
func ParsePayoutStatus(value string) (PayoutStatus, error) {
	for _, candidate := range validPayoutStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payout status %q", value)
}

// IsTerminal reports whether the provider will not move the transfer again.
func (p PayoutStatus) IsTerminal() bool {
	switch p {
	case PayoutStatusCompleted, PayoutStatusFailed, PayoutStatusCancelled, PayoutStatusReversed:
		return true
	}
	return false
}

// IsInFlight reports whether the transfer is still awaiting a provider outcome.
func (p PayoutStatus) IsInFlight() bool {
	switch p {
	case PayoutStatusPending, PayoutStatusInitiated, PayoutStatusProcessing, PayoutStatusApprovalPending:
		return true
	}
	return false
}
