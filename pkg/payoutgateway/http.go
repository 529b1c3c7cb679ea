package payoutgateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/angelmondragon/marketplace-payouts/pkg/config"
	"github.com/sethvargo/go-retry"
)

const (
	defaultTimeout          = 30 * time.Second
	defaultStatusRetries    = 3
	defaultStatusBackoff    = 500 * time.Millisecond
	maxStatusBackoff        = 5 * time.Second
	errorBodyReadLimit      = 4096
	headerClientID          = "X-Client-Id"
	headerClientSecret      = "X-Client-Secret"
	headerIdempotencyKey    = "X-Idempotency-Key"
	beneficiariesPath       = "beneficiaries"
	transfersPath           = "transfers"
	batchTransfersPath      = "transfers/batch"
	transferStatusQueryPath = "transfers/%s"
)

var errBaseURLRequired = errors.New("payout provider base url is required")

// HTTPClient talks to the provider's JSON API. Reads are retried with
// exponential backoff. Creates are sent once and rely on the transfer ID for
// idempotent resubmission.
type HTTPClient struct {
	httpClient    *http.Client
	baseURL       string
	clientID      string
	clientSecret  string
	timeout       time.Duration
	statusRetries uint64
	statusBackoff time.Duration
}

var _ Client = (*HTTPClient)(nil)

// Option configures optional client behavior.
type Option func(*HTTPClient)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *HTTPClient) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithStatusRetry overrides the read retry policy.
func WithStatusRetry(retries uint64, backoff time.Duration) Option {
	return func(c *HTTPClient) {
		c.statusRetries = retries
		if backoff > 0 {
			c.statusBackoff = backoff
		}
	}
}

// NewHTTPClient builds the provider client from configuration.
func NewHTTPClient(cfg config.ProviderConfig, opts ...Option) (*HTTPClient, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errBaseURLRequired
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	client := &HTTPClient{
		httpClient:    &http.Client{},
		baseURL:       baseURL,
		clientID:      cfg.ClientID,
		clientSecret:  cfg.ClientSecret,
		timeout:       timeout,
		statusRetries: cfg.StatusRetries,
		statusBackoff: cfg.StatusBackoff,
	}
	if client.statusBackoff <= 0 {
		client.statusBackoff = defaultStatusBackoff
	}
	if cfg.StatusRetries == 0 {
		client.statusRetries = defaultStatusRetries
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

func (c *HTTPClient) CreateBeneficiary(ctx context.Context, details BeneficiaryDetails) (Beneficiary, error) {
	var resp Beneficiary
	if err := c.do(ctx, http.MethodPost, beneficiariesPath, details, &resp); err != nil {
		return Beneficiary{}, err
	}
	resp.Status = classifyBeneficiary(string(resp.Status))
	return resp, nil
}

func (c *HTTPClient) GetBeneficiary(ctx context.Context, beneficiaryID string) (Beneficiary, error) {
	var resp Beneficiary
	path := beneficiariesPath + "/" + url.PathEscape(strings.TrimSpace(beneficiaryID))
	err := c.withReadRetry(ctx, func(ctx context.Context) error {
		return c.do(ctx, http.MethodGet, path, nil, &resp)
	})
	if err != nil {
		return Beneficiary{}, err
	}
	resp.Status = classifyBeneficiary(string(resp.Status))
	return resp, nil
}

func (c *HTTPClient) CreateBatchTransfer(ctx context.Context, batchID string, transfers []Transfer) (BatchResult, error) {
	body := struct {
		BatchTransferID string     `json:"batch_transfer_id"`
		Transfers       []Transfer `json:"transfers"`
	}{BatchTransferID: batchID, Transfers: transfers}

	var resp BatchResult
	if err := c.do(ctx, http.MethodPost, batchTransfersPath, body, &resp); err != nil {
		return BatchResult{}, err
	}
	for i := range resp.Transfers {
		resp.Transfers[i].Status = ClassifyStatus(resp.Transfers[i].RawStatus)
	}
	return resp, nil
}

func (c *HTTPClient) CreateTransfer(ctx context.Context, transfer Transfer) (TransferResult, error) {
	var resp TransferResult
	if err := c.do(ctx, http.MethodPost, transfersPath, transfer, &resp); err != nil {
		return TransferResult{}, err
	}
	if resp.TransferID == "" {
		resp.TransferID = transfer.TransferID
	}
	resp.Status = ClassifyStatus(resp.RawStatus)
	return resp, nil
}

func (c *HTTPClient) GetTransferStatus(ctx context.Context, transferID string) (TransferStatus, error) {
	var resp TransferStatus
	path := fmt.Sprintf(transferStatusQueryPath, url.PathEscape(strings.TrimSpace(transferID)))
	err := c.withReadRetry(ctx, func(ctx context.Context) error {
		return c.do(ctx, http.MethodGet, path, nil, &resp)
	})
	if err != nil {
		return TransferStatus{}, err
	}
	if resp.TransferID == "" {
		resp.TransferID = transferID
	}
	resp.Status = ClassifyStatus(resp.RawStatus)
	return resp, nil
}

func (c *HTTPClient) withReadRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	backoff := retry.NewExponential(c.statusBackoff)
	backoff = retry.WithCappedDuration(maxStatusBackoff, backoff)
	backoff = retry.WithMaxRetries(c.statusRetries, backoff)

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn(ctx)
		if err != nil && IsRetryable(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body any, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal %s request: %w", path, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/"+path, reader)
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.clientID != "" {
		req.Header.Set(headerClientID, c.clientID)
		req.Header.Set(headerClientSecret, c.clientSecret)
	}
	if transfer, ok := body.(Transfer); ok {
		req.Header.Set(headerIdempotencyKey, transfer.TransferID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &ProviderError{Code: CodeNetworkError, Message: err.Error(), Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeProviderError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &ProviderError{StatusCode: resp.StatusCode, Code: CodeProviderUnavailable, Message: "decode response", Err: err}
	}
	return nil
}

func decodeProviderError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyReadLimit))
	var body struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	perr := &ProviderError{StatusCode: resp.StatusCode}
	if err := json.Unmarshal(raw, &body); err == nil {
		perr.Code = body.Code
		perr.Message = body.Message
	}
	if perr.Message == "" {
		perr.Message = strings.TrimSpace(string(raw))
	}
	if perr.Code == "" && resp.StatusCode >= http.StatusInternalServerError {
		perr.Code = CodeProviderUnavailable
	}
	return perr
}
