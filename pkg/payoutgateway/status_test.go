package payoutgateway

import (
	"errors"
	"net/http"
	"testing"

	"github.com/angelmondragon/marketplace-payouts/pkg/enums"
	"github.com/stretchr/testify/assert"
)

func TestClassifyStatus(t *testing.T) {
	cases := map[string]enums.PayoutStatus{
		"SUCCESS":          enums.PayoutStatusCompleted,
		"completed":        enums.PayoutStatusCompleted,
		"FAILED":           enums.PayoutStatusFailed,
		"REJECTED":         enums.PayoutStatusFailed,
		"REVERSED":         enums.PayoutStatusReversed,
		"APPROVAL_PENDING": enums.PayoutStatusApprovalPending,
		"PENDING":          enums.PayoutStatusProcessing,
		"QUEUED":           enums.PayoutStatusProcessing,
		"":                 enums.PayoutStatusProcessing,
	}
	for raw, want := range cases {
		assert.Equal(t, want, ClassifyStatus(raw), raw)
	}
}

func TestRetryability(t *testing.T) {
	assert.True(t, IsRetryableCode("bank_gateway_error"))
	assert.False(t, IsRetryableCode("INSUFFICIENT_BALANCE"))
	assert.False(t, IsRetryableCode("INVALID_ACCOUNT"))

	assert.True(t, (&ProviderError{Code: CodeNetworkError}).Retryable())
	assert.True(t, (&ProviderError{StatusCode: http.StatusInternalServerError}).Retryable())
	assert.False(t, (&ProviderError{StatusCode: http.StatusBadRequest, Code: "INVALID_IFSC"}).Retryable())
	assert.True(t, (&ProviderError{StatusCode: http.StatusUnprocessableEntity, Code: "RETRY_LATER"}).Retryable())

	assert.False(t, IsRetryable(nil))
	assert.True(t, IsRetryable(errors.New("connection reset")))
}

func TestVerifySignature(t *testing.T) {
	payload := []byte(`{"transfer_id":"ORDER_1","status":"SUCCESS"}`)
	sig := Sign(payload, "whsec")

	assert.True(t, VerifySignature(payload, sig, "whsec"))
	assert.False(t, VerifySignature(payload, sig, "other"))
	assert.False(t, VerifySignature([]byte(`{"transfer_id":"ORDER_2"}`), sig, "whsec"))
	assert.False(t, VerifySignature(payload, "", "whsec"))
	assert.False(t, VerifySignature(payload, sig, ""))
}
