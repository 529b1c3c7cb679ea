package enums

import "fmt"

// BeneficiaryStatus mirrors the provider's verification state for a seller account.
type BeneficiaryStatus string

const (
	BeneficiaryStatusVerified  BeneficiaryStatus = "VERIFIED"
	BeneficiaryStatusInvalid   BeneficiaryStatus = "INVALID"
	BeneficiaryStatusInitiated BeneficiaryStatus = "INITIATED"
	BeneficiaryStatusCancelled BeneficiaryStatus = "CANCELLED"
	BeneficiaryStatusFailed    BeneficiaryStatus = "FAILED"
	BeneficiaryStatusDeleted   BeneficiaryStatus = "DELETED"
)

var validBeneficiaryStatuses = []BeneficiaryStatus{
	BeneficiaryStatusVerified,
	BeneficiaryStatusInvalid,
	BeneficiaryStatusInitiated,
	BeneficiaryStatusCancelled,
	BeneficiaryStatusFailed,
	BeneficiaryStatusDeleted,
}

// String implements fmt.Stringer.
func (b BeneficiaryStatus) String() string {
	return string(b)
}

// IsValid reports whether the value is a known BeneficiaryStatus.
func (b BeneficiaryStatus) IsValid() bool {
	for _, candidate := range validBeneficiaryStatuses {
		if candidate == b {
			return true
		}
	}
	return false
}

// ParseBeneficiaryStatus converts raw input into a BeneficiaryStatus.
func ParseBeneficiaryStatus(value string) (BeneficiaryStatus, error) {
	for _, candidate := range validBeneficiaryStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid beneficiary status %q", value)
}

// IsPending reports whether the provider has not decided on the account yet.
func (b BeneficiaryStatus) IsPending() bool {
	return b == BeneficiaryStatusInitiated
}
