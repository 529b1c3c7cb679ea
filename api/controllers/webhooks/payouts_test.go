package webhooks

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/angelmondragon/marketplace-payouts/internal/reconciliation"
	"github.com/angelmondragon/marketplace-payouts/internal/testsupport"
	pkgerrors "github.com/angelmondragon/marketplace-payouts/pkg/errors"
	"github.com/angelmondragon/marketplace-payouts/pkg/payoutgateway"
)

const testSecret = "whsec_test"

type fakePayoutWebhookService struct {
	calls int
	err   error
}

func (f *fakePayoutWebhookService) VerifyWebhook(raw []byte, signature string) error {
	if !payoutgateway.VerifySignature(raw, signature, testSecret) {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid webhook signature")
	}
	return nil
}

func (f *fakePayoutWebhookService) HandleWebhook(context.Context, []byte, string) (reconciliation.WebhookResult, error) {
	f.calls++
	if f.err != nil {
		return reconciliation.WebhookResult{}, f.err
	}
	return reconciliation.WebhookResult{Applied: 1}, nil
}

func newGuard(t *testing.T, store *testsupport.MemoryStore) *reconciliation.WebhookGuard {
	t.Helper()
	guard, err := reconciliation.NewWebhookGuard(store, time.Minute, "payout-webhook")
	if err != nil {
		t.Fatalf("guard setup: %v", err)
	}
	return guard
}

func post(handler http.Handler, payload []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/payouts", bytes.NewReader(payload))
	if signature != "" {
		req.Header.Set(payoutgateway.SignatureHeader, signature)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

var successPayload = []byte(`{"transfer_id":"ORDER_1","status":"SUCCESS","transfer_utr":"UTR1"}`)

func TestPayoutWebhook_SuccessAndIdempotent(t *testing.T) {
	service := &fakePayoutWebhookService{}
	handler := PayoutWebhook(service, newGuard(t, testsupport.NewMemoryStore()), nil)
	signature := payoutgateway.Sign(successPayload, testSecret)

	if rec := post(handler, successPayload, signature); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	// Replay the same delivery
	if rec := post(handler, successPayload, signature); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on duplicate, got %d (%s)", rec.Code, rec.Body.String())
	}
	if service.calls != 1 {
		t.Fatalf("expected duplicate not processed, call count %d", service.calls)
	}
}

func TestPayoutWebhook_InvalidSignatureDoesNotMark(t *testing.T) {
	store := testsupport.NewMemoryStore()
	service := &fakePayoutWebhookService{}
	handler := PayoutWebhook(service, newGuard(t, store), nil)

	if rec := post(handler, successPayload, payoutgateway.Sign(successPayload, "wrong")); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for invalid signature, got %d", rec.Code)
	}
	if rec := post(handler, successPayload, ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for missing signature, got %d", rec.Code)
	}
	if service.calls != 0 {
		t.Fatalf("service should not be invoked on invalid signature")
	}
	key, err := reconciliation.DeliveryKey(successPayload)
	if err != nil {
		t.Fatalf("delivery key: %v", err)
	}
	if store.Has("mp:idempotency:payout-webhook:" + key) {
		t.Fatalf("forged delivery must not be marked")
	}
}

func TestPayoutWebhook_FailureReleasesDeliveryKey(t *testing.T) {
	service := &fakePayoutWebhookService{err: pkgerrors.Wrap(pkgerrors.CodeDependency, errors.New("db down"), "apply")}
	handler := PayoutWebhook(service, newGuard(t, testsupport.NewMemoryStore()), nil)
	signature := payoutgateway.Sign(successPayload, testSecret)

	if rec := post(handler, successPayload, signature); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	service.err = nil
	if rec := post(handler, successPayload, signature); rec.Code != http.StatusOK {
		t.Fatalf("expected redelivery to succeed, got %d", rec.Code)
	}
	if service.calls != 2 {
		t.Fatalf("expected redelivery to reach the service, call count %d", service.calls)
	}
}

func TestPayoutWebhook_SecondFailureForRetriedTransferIsProcessed(t *testing.T) {
	service := &fakePayoutWebhookService{}
	handler := PayoutWebhook(service, newGuard(t, testsupport.NewMemoryStore()), nil)
	firstFailure := []byte(`{"transfer_id":"ORDER_1","status":"FAILED","status_code":"BANK_GATEWAY_ERROR"}`)
	secondFailure := []byte(`{"transfer_id":"ORDER_1","status":"FAILED","status_code":"NPCI_UNAVAILABLE"}`)

	for _, payload := range [][]byte{firstFailure, secondFailure} {
		if rec := post(handler, payload, payoutgateway.Sign(payload, testSecret)); rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
		}
	}
	if service.calls != 2 {
		t.Fatalf("expected both failures to reach the service, call count %d", service.calls)
	}
}

func TestPayoutWebhook_RejectsMalformedPayload(t *testing.T) {
	service := &fakePayoutWebhookService{}
	handler := PayoutWebhook(service, newGuard(t, testsupport.NewMemoryStore()), nil)
	payload := []byte(`{"status":"SUCCESS"}`)

	if rec := post(handler, payload, payoutgateway.Sign(payload, testSecret)); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
