package payoutgateway

import (
	"strings"

	"github.com/angelmondragon/marketplace-payouts/pkg/enums"
)

// ClassifyStatus maps a provider status string onto a local payout status.
// Anything unrecognised is treated as still processing.
func ClassifyStatus(raw string) enums.PayoutStatus {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "SUCCESS", "COMPLETED":
		return enums.PayoutStatusCompleted
	case "FAILED", "REJECTED":
		return enums.PayoutStatusFailed
	case "REVERSED":
		return enums.PayoutStatusReversed
	case "APPROVAL_PENDING":
		return enums.PayoutStatusApprovalPending
	default:
		return enums.PayoutStatusProcessing
	}
}

// retryableCodes are provider failure codes that may succeed when the same
// transfer is submitted again later.
var retryableCodes = map[string]struct{}{
	"BANK_GATEWAY_ERROR":       {},
	"BENEFICIARY_BANK_OFFLINE": {},
	"DEST_BANK_UNAVAILABLE":    {},
	"IMPS_MODE_FAIL":           {},
	"NPCI_UNAVAILABLE":         {},
	"PAYOUT_TIMEOUT":           {},
	"RATE_LIMIT_EXCEEDED":      {},
	"RETRY_LATER":              {},
	"NETWORK_ERROR":            {},
	"PROVIDER_UNAVAILABLE":     {},
}

func IsRetryableCode(code string) bool {
	_, ok := retryableCodes[strings.ToUpper(strings.TrimSpace(code))]
	return ok
}

// classifyBeneficiary maps the provider's verification state. Unknown values
// are kept as INITIATED so they are refreshed later.
func classifyBeneficiary(raw string) enums.BeneficiaryStatus {
	status, err := enums.ParseBeneficiaryStatus(strings.ToUpper(strings.TrimSpace(raw)))
	if err != nil {
		return enums.BeneficiaryStatusInitiated
	}
	return status
}
