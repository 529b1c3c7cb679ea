package payoutgateway

import (
	"errors"
	"fmt"
	"net/http"
)

// Codes synthesised locally when the provider gave no body.
const (
	CodeNetworkError        = "NETWORK_ERROR"
	CodeProviderUnavailable = "PROVIDER_UNAVAILABLE"
	CodeDuplicateTransfer   = "TRANSFER_ID_ALREADY_EXISTS"
)

// ProviderError is returned for every failed provider call.
type ProviderError struct {
	StatusCode int
	Code       string
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("payout provider %s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("payout provider status %d %s: %s", e.StatusCode, e.Code, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Upstream exposes the provider status and code to error dumps.
func (e *ProviderError) Upstream() (int, string) { return e.StatusCode, e.Code }

// Retryable reports whether the call may succeed if repeated. Transport
// failures and 5xx responses are retryable. Other 4xx responses are business
// rejections unless the code is on the allow-list.
func (e *ProviderError) Retryable() bool {
	switch {
	case e.StatusCode == 0:
		return true
	case e.StatusCode == http.StatusTooManyRequests:
		return true
	case e.StatusCode >= http.StatusInternalServerError:
		return true
	case IsRetryableCode(e.Code):
		return true
	default:
		return false
	}
}

// IsDuplicate reports whether the provider already holds this transfer ID.
func (e *ProviderError) IsDuplicate() bool {
	return e.StatusCode == http.StatusConflict || e.Code == CodeDuplicateTransfer
}

// AsProviderError extracts a ProviderError from err.
func AsProviderError(err error) (*ProviderError, bool) {
	var perr *ProviderError
	if errors.As(err, &perr) {
		return perr, true
	}
	return nil, false
}

// IsRetryable treats unknown errors as retryable so nothing is failed
// permanently on an unclassified error.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if perr, ok := AsProviderError(err); ok {
		return perr.Retryable()
	}
	return true
}
