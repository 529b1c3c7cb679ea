package routes

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/marketplace-payouts/api/middleware"
	"github.com/angelmondragon/marketplace-payouts/internal/reconciliation"
	"github.com/angelmondragon/marketplace-payouts/internal/settlement"
	"github.com/angelmondragon/marketplace-payouts/internal/testsupport"
	"github.com/angelmondragon/marketplace-payouts/pkg/config"
	"github.com/angelmondragon/marketplace-payouts/pkg/db/models"
	"github.com/angelmondragon/marketplace-payouts/pkg/enums"
	"github.com/angelmondragon/marketplace-payouts/pkg/payoutgateway"
)

const (
	testAdminKey      = "admin-secret"
	testWebhookSecret = "whsec_router"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error { return nil }

type stubSettlement struct {
	batches int
}

func (s *stubSettlement) ProcessManualBatchPayout(context.Context, settlement.Filters) (settlement.Summary, error) {
	s.batches++
	return settlement.Summary{Source: settlement.SourceManual, Processed: 1}, nil
}

func (s *stubSettlement) RetryPayout(_ context.Context, id uuid.UUID) (*models.Payout, error) {
	return &models.Payout{ID: id, Status: enums.PayoutStatusInitiated}, nil
}

type stubReconciliation struct{}

func (stubReconciliation) VerifyWebhook(raw []byte, signature string) error {
	if !payoutgateway.VerifySignature(raw, signature, testWebhookSecret) {
		return assert.AnError
	}
	return nil
}

func (stubReconciliation) HandleWebhook(context.Context, []byte, string) (reconciliation.WebhookResult, error) {
	return reconciliation.WebhookResult{Applied: 1}, nil
}

func newTestRouter(t *testing.T, adminKey string) (http.Handler, *stubSettlement) {
	t.Helper()
	store := testsupport.NewMemoryStore()
	guard, err := reconciliation.NewWebhookGuard(store, 0, "payout_webhook")
	require.NoError(t, err)

	cfg := &config.Config{
		App:   config.AppConfig{Env: "test"},
		Admin: config.AdminConfig{APIKey: adminKey},
	}
	settle := &stubSettlement{}
	handler := NewRouter(Params{
		Config:         cfg,
		DB:             stubPinger{},
		Redis:          stubPinger{},
		Idempotency:    store,
		Metrics:        promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{}),
		Settlement:     settle,
		Reconciliation: stubReconciliation{},
		WebhookGuard:   guard,
	})
	return handler, settle
}

func TestPublicRoutes(t *testing.T) {
	handler, _ := newTestRouter(t, testAdminKey)

	for _, path := range []string{"/health/live", "/health/ready", "/metrics", "/api/public/ping"} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func adminRequest(method, path, body, key string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(middleware.AdminKeyHeader, key)
	req.Header.Set(middleware.AdminIDHeader, uuid.NewString())
	return req
}

func TestAdminRoutesRequireKey(t *testing.T) {
	handler, settle := newTestRouter(t, testAdminKey)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, adminRequest(http.MethodGet, "/api/admin/v1/ping", "", "wrong"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, adminRequest(http.MethodGet, "/api/admin/v1/ping", "", testAdminKey))
	assert.Equal(t, http.StatusOK, rec.Code)

	disabled, _ := newTestRouter(t, "")
	rec = httptest.NewRecorder()
	disabled.ServeHTTP(rec, adminRequest(http.MethodGet, "/api/admin/v1/ping", "", testAdminKey))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Zero(t, settle.batches)
}

func TestAdminBatchReplaysByIdempotencyKey(t *testing.T) {
	handler, settle := newTestRouter(t, testAdminKey)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, adminRequest(http.MethodPost, "/api/admin/v1/payouts/batches", `{}`, testAdminKey))
	assert.Equal(t, http.StatusBadRequest, rec.Code, "idempotency key is required")

	adminID := uuid.NewString()
	send := func() *httptest.ResponseRecorder {
		req := adminRequest(http.MethodPost, "/api/admin/v1/payouts/batches", `{"force":false}`, testAdminKey)
		req.Header.Set(middleware.AdminIDHeader, adminID)
		req.Header.Set("Idempotency-Key", "batch-1")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	first := send()
	require.Equal(t, http.StatusAccepted, first.Code, first.Body.String())
	second := send()
	assert.Equal(t, http.StatusAccepted, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, 1, settle.batches)
}

func TestPayoutWebhookRoute(t *testing.T) {
	handler, _ := newTestRouter(t, testAdminKey)

	raw, err := json.Marshal(map[string]string{"transfer_id": "ORDER_1", "status": "SUCCESS"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/payouts", strings.NewReader(string(raw)))
	req.Header.Set(payoutgateway.SignatureHeader, payoutgateway.Sign(raw, testWebhookSecret))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}
